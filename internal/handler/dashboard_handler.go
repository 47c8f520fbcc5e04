package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exam-portal/internal/response"
	"github.com/stemsi/exam-portal/internal/service"
)

// DashboardHandler handles admin dashboard endpoints.
type DashboardHandler struct {
	examService *service.ExamService
	log         zerolog.Logger
}

// NewDashboardHandler creates a new DashboardHandler.
func NewDashboardHandler(examService *service.ExamService, log zerolog.Logger) *DashboardHandler {
	return &DashboardHandler{
		examService: examService,
		log:         log.With().Str("component", "dashboard_handler").Logger(),
	}
}

// GetDashboardData godoc
// GET /api/v1/admin/dashboard
// Returns the active exam and per-exam credential usage.
func (h *DashboardHandler) GetDashboardData(c *gin.Context) {
	ctx := c.Request.Context()

	active, err := h.examService.GetActive(ctx)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	stats, err := h.examService.Stats(ctx)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"active_exam": active,
		"exams":       stats,
	})
}
