package handler

import (
	"mime"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exam-portal/internal/model"
	"github.com/stemsi/exam-portal/internal/response"
	"github.com/stemsi/exam-portal/internal/service"
	"github.com/stemsi/exam-portal/internal/validator"
)

// FileHandler handles exam material management.
type FileHandler struct {
	fileService *service.FileService
	log         zerolog.Logger
}

// NewFileHandler creates a new FileHandler.
func NewFileHandler(fileService *service.FileService, log zerolog.Logger) *FileHandler {
	return &FileHandler{
		fileService: fileService,
		log:         log.With().Str("component", "file_handler").Logger(),
	}
}

// ListFiles godoc
// GET /api/v1/admin/exams/:id/files
func (h *FileHandler) ListFiles(c *gin.Context) {
	examID, ok := parseID(c, "id")
	if !ok {
		return
	}

	files, err := h.fileService.ListByExam(c.Request.Context(), examID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"files": files})
}

// UploadFile godoc
// POST /api/v1/admin/files/upload
// Multipart form: file, exam_id, display_name (optional).
func (h *FileHandler) UploadFile(c *gin.Context) {
	examID, err := strconv.ParseInt(c.PostForm("exam_id"), 10, 64)
	if err != nil || examID <= 0 {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, map[string]string{"exam_id": "exam_id is required"})
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrFileRequired)
		return
	}
	defer file.Close()

	f, err := h.fileService.Upload(c.Request.Context(), service.UploadInput{
		ExamID:      examID,
		DisplayName: c.PostForm("display_name"),
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Created(c, gin.H{"file": f})
}

// UpdateFile godoc
// PUT /api/v1/admin/files/:id
func (h *FileHandler) UpdateFile(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req model.UpdateFileRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	f, err := h.fileService.Update(c.Request.Context(), id, req.DisplayName, req.SortOrder)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"file": f})
}

// DeleteFile godoc
// DELETE /api/v1/admin/files/:id
func (h *FileHandler) DeleteFile(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.fileService.Delete(c.Request.Context(), id); err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{})
}

// ServeFile godoc
// GET /api/v1/admin/files/:id
// Streams any material for admin preview.
func (h *FileHandler) ServeFile(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	f, err := h.fileService.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	serveMaterial(c, h.log, h.fileService, f)
}

// serveMaterial streams a material inline under its original filename.
func serveMaterial(c *gin.Context, log zerolog.Logger, files *service.FileService, f *model.File) {
	path, err := files.ContentPath(f)
	if err != nil {
		log.Error().Err(err).Int64("file_id", f.ID).Msg("Unresolvable content reference")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	c.Header("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": f.Filename}))
	c.File(path)
}
