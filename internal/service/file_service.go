package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/stemsi/exam-portal/internal/model"
)

// Sentinel errors for material uploads.
var (
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrFileTooLarge        = errors.New("file too large")
)

type materialType struct {
	ext      string
	fileType model.FileType
}

// Allowed material MIME types.
var allowedMIMETypes = map[string]materialType{
	"application/pdf": {".pdf", model.FileTypePDF},
	"image/jpeg":      {".jpg", model.FileTypeImage},
	"image/jpg":       {".jpg", model.FileTypeImage},
	"image/png":       {".png", model.FileTypeImage},
	"image/gif":       {".gif", model.FileTypeImage},
}

// UploadInput describes one uploaded material.
type UploadInput struct {
	ExamID      int64
	DisplayName string
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// FileService manages exam materials.
type FileService struct {
	files    FileStore
	exams    ExamStore
	storage  MaterialStorage
	maxBytes int64
	log      zerolog.Logger
}

// NewFileService creates a new FileService.
func NewFileService(files FileStore, exams ExamStore, storage MaterialStorage, maxBytes int64, log zerolog.Logger) *FileService {
	return &FileService{
		files:    files,
		exams:    exams,
		storage:  storage,
		maxBytes: maxBytes,
		log:      log.With().Str("component", "file_service").Logger(),
	}
}

// Upload stores the material and appends it to the exam's file list.
func (s *FileService) Upload(ctx context.Context, in UploadInput) (*model.File, error) {
	contentType := strings.ToLower(strings.TrimSpace(strings.SplitN(in.ContentType, ";", 2)[0]))
	mt, ok := allowedMIMETypes[contentType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFileType, in.ContentType)
	}
	if in.Size > s.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes (max: %d)", ErrFileTooLarge, in.Size, s.maxBytes)
	}

	if _, err := s.exams.GetByID(ctx, in.ExamID); err != nil {
		return nil, storeErr("get exam", "exam", err)
	}

	ref, err := s.storage.Save(ctx, io.LimitReader(in.Body, s.maxBytes), mt.ext)
	if err != nil {
		return nil, &PersistenceError{Op: "store material", Err: err}
	}

	displayName := strings.TrimSpace(in.DisplayName)
	if displayName == "" {
		displayName = strings.TrimSuffix(filepath.Base(in.Filename), filepath.Ext(in.Filename))
	}

	f := &model.File{
		ExamID:      in.ExamID,
		DisplayName: displayName,
		Filename:    filepath.Base(in.Filename),
		ContentRef:  ref,
		FileType:    mt.fileType,
	}
	if err := s.files.Create(ctx, f); err != nil {
		if rmErr := s.storage.Remove(ctx, ref); rmErr != nil {
			s.log.Warn().Err(rmErr).Str("ref", ref).Msg("Failed to remove orphaned material")
		}
		return nil, storeErr("create file", "file", err)
	}

	s.log.Info().Int64("exam_id", in.ExamID).Int64("file_id", f.ID).Str("type", string(f.FileType)).Msg("Material uploaded")
	return f, nil
}

// Get retrieves a file's metadata.
func (s *FileService) Get(ctx context.Context, id int64) (*model.File, error) {
	f, err := s.files.GetByID(ctx, id)
	if err != nil {
		return nil, storeErr("get file", "file", err)
	}
	return f, nil
}

// ListByExam returns an exam's files in display order.
func (s *FileService) ListByExam(ctx context.Context, examID int64) ([]model.File, error) {
	files, err := s.files.ListByExam(ctx, examID)
	if err != nil {
		return nil, storeErr("list files", "file", err)
	}
	if files == nil {
		files = []model.File{}
	}
	return files, nil
}

// Update renames a file and optionally moves it.
func (s *FileService) Update(ctx context.Context, id int64, displayName string, sortOrder *int) (*model.File, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, &ValidationError{Field: "display_name", Message: "is required"}
	}
	f, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	f.DisplayName = displayName
	if sortOrder != nil {
		f.SortOrder = *sortOrder
	}
	if err := s.files.Update(ctx, f); err != nil {
		return nil, storeErr("update file", "file", err)
	}
	return f, nil
}

// Delete removes a file row and then its stored bytes, best-effort.
func (s *FileService) Delete(ctx context.Context, id int64) error {
	f, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.files.Delete(ctx, id); err != nil {
		return storeErr("delete file", "file", err)
	}
	if err := s.storage.Remove(ctx, f.ContentRef); err != nil {
		s.log.Warn().Err(err).Int64("file_id", id).Str("ref", f.ContentRef).Msg("Failed to remove stored material")
	}
	return nil
}

// ContentPath resolves where a file's bytes can be read from.
func (s *FileService) ContentPath(f *model.File) (string, error) {
	return s.storage.Path(f.ContentRef)
}
