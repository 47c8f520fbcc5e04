package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exam-portal/internal/model"
)

// ExamService manages exams and the single active exam.
type ExamService struct {
	exams   ExamStore
	files   FileStore
	storage MaterialStorage
	log     zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(exams ExamStore, files FileStore, storage MaterialStorage, log zerolog.Logger) *ExamService {
	return &ExamService{
		exams:   exams,
		files:   files,
		storage: storage,
		log:     log.With().Str("component", "exam_service").Logger(),
	}
}

// FindByID retrieves an exam.
func (s *ExamService) FindByID(ctx context.Context, id int64) (*model.Exam, error) {
	e, err := s.exams.GetByID(ctx, id)
	if err != nil {
		return nil, storeErr("get exam", "exam", err)
	}
	return e, nil
}

// GetActive returns the active exam, or nil when no exam is active.
func (s *ExamService) GetActive(ctx context.Context) (*model.Exam, error) {
	e, err := s.exams.GetActive(ctx)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get active exam", "exam", err)
	}
	return e, nil
}

// SetActive makes examID the only active exam.
func (s *ExamService) SetActive(ctx context.Context, examID int64) error {
	if examID <= 0 {
		return &ValidationError{Field: "id", Message: "must be a positive id"}
	}
	if err := s.exams.SetActive(ctx, examID); err != nil {
		return storeErr("activate exam", "active exam", err)
	}
	s.log.Info().Int64("exam_id", examID).Msg("Exam activated")
	return nil
}

// Deactivate clears the active flag of one exam.
func (s *ExamService) Deactivate(ctx context.Context, examID int64) error {
	if err := s.exams.Deactivate(ctx, examID); err != nil {
		return storeErr("deactivate exam", "exam", err)
	}
	s.log.Info().Int64("exam_id", examID).Msg("Exam deactivated")
	return nil
}

// Create adds a new inactive exam.
func (s *ExamService) Create(ctx context.Context, name string, date *time.Time) (*model.Exam, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &ValidationError{Field: "name", Message: "is required"}
	}
	e := &model.Exam{Name: name, Date: date}
	if err := s.exams.Create(ctx, e); err != nil {
		return nil, storeErr("create exam", "exam", err)
	}
	return e, nil
}

// Update renames an exam or changes its date.
func (s *ExamService) Update(ctx context.Context, id int64, name string, date *time.Time) (*model.Exam, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &ValidationError{Field: "name", Message: "is required"}
	}
	e, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	e.Name = name
	e.Date = date
	if err := s.exams.Update(ctx, e); err != nil {
		return nil, storeErr("update exam", "exam", err)
	}
	return e, nil
}

// List returns all exams, newest first.
func (s *ExamService) List(ctx context.Context) ([]model.Exam, error) {
	exams, err := s.exams.List(ctx)
	if err != nil {
		return nil, storeErr("list exams", "exam", err)
	}
	if exams == nil {
		exams = []model.Exam{}
	}
	return exams, nil
}

// Delete removes an exam with its credentials and files. Stored material
// is removed after the rows are gone; removal failures are only logged.
func (s *ExamService) Delete(ctx context.Context, id int64) error {
	refs, err := s.files.ContentRefsByExam(ctx, id)
	if err != nil {
		return storeErr("list exam files", "file", err)
	}

	if err := s.exams.Delete(ctx, id); err != nil {
		return storeErr("delete exam", "exam", err)
	}

	for _, ref := range refs {
		if err := s.storage.Remove(ctx, ref); err != nil {
			s.log.Warn().Err(err).Int64("exam_id", id).Str("ref", ref).Msg("Failed to remove stored material")
		}
	}

	s.log.Info().Int64("exam_id", id).Int("files", len(refs)).Msg("Exam deleted")
	return nil
}

// Stats returns per-exam credential usage for the dashboard.
func (s *ExamService) Stats(ctx context.Context) ([]model.ExamStats, error) {
	stats, err := s.exams.Stats(ctx)
	if err != nil {
		return nil, storeErr("exam stats", "exam", err)
	}
	if stats == nil {
		stats = []model.ExamStats{}
	}
	return stats, nil
}

// StatsFor returns the usage row for a single exam.
func (s *ExamService) StatsFor(ctx context.Context, examID int64) (*model.ExamStats, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return nil, err
	}
	for i := range stats {
		if stats[i].ExamID == examID {
			return &stats[i], nil
		}
	}
	return nil, ErrNotFound
}
