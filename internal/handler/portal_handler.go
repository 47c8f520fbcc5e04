package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exam-portal/internal/middleware"
	"github.com/stemsi/exam-portal/internal/response"
	"github.com/stemsi/exam-portal/internal/service"
)

// PortalHandler serves an examinee's own exam and its materials.
type PortalHandler struct {
	authService *service.AuthService
	fileService *service.FileService
	log         zerolog.Logger
}

// NewPortalHandler creates a new PortalHandler.
func NewPortalHandler(authService *service.AuthService, fileService *service.FileService, log zerolog.Logger) *PortalHandler {
	return &PortalHandler{
		authService: authService,
		fileService: fileService,
		log:         log.With().Str("component", "portal_handler").Logger(),
	}
}

// GetExamData godoc
// GET /api/v1/exam/data
// Returns the exam bound to the session and its materials in display order.
func (h *PortalHandler) GetExamData(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	files, err := h.fileService.ListByExam(c.Request.Context(), claims.Principal.ExamID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"exam": gin.H{
			"id":   claims.Principal.ExamID,
			"name": claims.Principal.ExamName,
		},
		"username": claims.Principal.Username,
		"files":    files,
	})
}

// GetFile godoc
// GET /api/v1/exam/files/:id
// Streams a material. Files of other exams are forbidden.
func (h *PortalHandler) GetFile(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	f, err := h.fileService.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	if err := h.authService.AuthorizeMaterial(&claims.Principal, f); err != nil {
		h.log.Warn().
			Str("username", claims.Principal.Username).
			Int64("session_exam_id", claims.Principal.ExamID).
			Int64("file_exam_id", f.ExamID).
			Msg("Cross-exam material access denied")
		respondError(c, h.log, err)
		return
	}

	serveMaterial(c, h.log, h.fileService, f)
}
