package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exam-portal/internal/response"
	"github.com/stemsi/exam-portal/internal/service"
)

// respondError maps service errors onto the response envelope.
// Storage failures are logged in full and surfaced only as INTERNAL_ERROR.
func respondError(c *gin.Context, log zerolog.Logger, err error) {
	var (
		ve *service.ValidationError
		ce *service.ConflictError
		re *service.RateLimitedError
		ae *service.AuthError
		pe *service.PersistenceError
	)

	switch {
	case errors.As(err, &ve):
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation,
			map[string]string{ve.Field: ve.Message})
	case errors.As(err, &ce):
		response.FailWithMessage(c, http.StatusConflict, response.ErrConflict,
			ce.Error()+".", nil)
	case errors.As(err, &re):
		c.Header("Retry-After", strconv.Itoa(re.RetryAfterMinutes*60))
		response.FailWithMessage(c, http.StatusTooManyRequests, response.ErrRateLimitExceeded,
			"Too many failed attempts. Try again in "+strconv.Itoa(re.RetryAfterMinutes)+" minute(s).",
			map[string]string{"retry_after_minutes": strconv.Itoa(re.RetryAfterMinutes)})
	case errors.As(err, &ae):
		if ae.Reason == service.ReasonForbidden {
			response.Fail(c, http.StatusForbidden, response.ErrForbidden)
			return
		}
		response.Fail(c, http.StatusUnauthorized, response.ErrLoginRejected)
	case errors.Is(err, service.ErrNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrUnsupportedFileType):
		response.Fail(c, http.StatusBadRequest, response.ErrUnsupportedFile)
	case errors.Is(err, service.ErrFileTooLarge):
		response.Fail(c, http.StatusRequestEntityTooLarge, response.ErrFileTooLarge)
	case errors.As(err, &pe):
		log.Error().Err(pe.Err).Str("op", pe.Op).Str("path", c.FullPath()).Msg("Storage failure")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	default:
		log.Error().Err(err).Str("path", c.FullPath()).Msg("Unhandled error")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

// parseID reads a positive integer path parameter. It writes a 400 and
// returns false when the parameter is malformed.
func parseID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return 0, false
	}
	return id, true
}
