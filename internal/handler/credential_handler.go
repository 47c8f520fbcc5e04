package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exam-portal/internal/model"
	"github.com/stemsi/exam-portal/internal/response"
	"github.com/stemsi/exam-portal/internal/service"
	"github.com/stemsi/exam-portal/internal/validator"
)

// CredentialHandler handles examinee credential management.
type CredentialHandler struct {
	credentialService *service.CredentialService
	log               zerolog.Logger
}

// NewCredentialHandler creates a new CredentialHandler.
func NewCredentialHandler(credentialService *service.CredentialService, log zerolog.Logger) *CredentialHandler {
	return &CredentialHandler{
		credentialService: credentialService,
		log:               log.With().Str("component", "credential_handler").Logger(),
	}
}

// ListCredentials godoc
// GET /api/v1/admin/exams/:id/credentials
// Lists an exam's credentials with used/total counts.
func (h *CredentialHandler) ListCredentials(c *gin.Context) {
	examID, ok := parseID(c, "id")
	if !ok {
		return
	}

	creds, count, err := h.credentialService.ListByExam(c.Request.Context(), examID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"credentials": creds, "count": count})
}

// GenerateCredentials godoc
// POST /api/v1/admin/credentials/generate
// Mints a batch of credentials. Passwords are only returned here and in listings.
func (h *CredentialHandler) GenerateCredentials(c *gin.Context) {
	var req model.GenerateCredentialsRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	creds, err := h.credentialService.GenerateBatch(c.Request.Context(), req.ExamID, req.Count, req.Prefix)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Created(c, gin.H{"credentials": creds})
}

// CreateCredential godoc
// POST /api/v1/admin/credentials
func (h *CredentialHandler) CreateCredential(c *gin.Context) {
	var req model.CreateCredentialRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	cred, err := h.credentialService.CreateOne(c.Request.Context(), req.ExamID, req.Username, req.Password, req.ExamineeName)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Created(c, gin.H{"credential": cred})
}

// UpdateCredential godoc
// PUT /api/v1/admin/credentials/:id
// Sets the examinee name recorded against a credential.
func (h *CredentialHandler) UpdateCredential(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req model.UpdateCredentialRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.credentialService.UpdateExamineeName(c.Request.Context(), id, req.ExamineeName); err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{})
}

// ResetCredential godoc
// POST /api/v1/admin/credentials/:id/reset
// Marks a used credential as unused so it can log in again.
func (h *CredentialHandler) ResetCredential(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.credentialService.Reset(c.Request.Context(), id); err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{})
}

// DeleteCredential godoc
// DELETE /api/v1/admin/credentials/:id
func (h *CredentialHandler) DeleteCredential(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.credentialService.Delete(c.Request.Context(), id); err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{})
}

// DeleteExamCredentials godoc
// DELETE /api/v1/admin/exams/:id/credentials
func (h *CredentialHandler) DeleteExamCredentials(c *gin.Context) {
	examID, ok := parseID(c, "id")
	if !ok {
		return
	}

	n, err := h.credentialService.DeleteByExam(c.Request.Context(), examID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": n})
}
