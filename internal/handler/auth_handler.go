package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exam-portal/internal/middleware"
	"github.com/stemsi/exam-portal/internal/model"
	"github.com/stemsi/exam-portal/internal/response"
	"github.com/stemsi/exam-portal/internal/service"
	"github.com/stemsi/exam-portal/internal/validator"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	authService  *service.AuthService
	cookieSecure bool
	log          zerolog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *service.AuthService, cookieSecure bool, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		authService:  authService,
		cookieSecure: cookieSecure,
		log:          log.With().Str("component", "auth_handler").Logger(),
	}
}

// Login godoc
// POST /api/v1/auth/login
// Consumes a single-use credential and opens an examinee session bound to its exam.
func (h *AuthHandler) Login(c *gin.Context) {
	var req model.LoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	session, err := h.authService.Login(c.Request.Context(), service.LoginInput{
		Username:  req.Username,
		Password:  req.Password,
		ClientKey: c.ClientIP(),
	})
	if err != nil {
		h.logRejection(c, "examinee", req.Username, err)
		respondError(c, h.log, err)
		return
	}

	h.respondSession(c, session)
}

// AdminLogin godoc
// POST /api/v1/auth/admin/login
// Validates username + password against the bcrypt hash and opens an admin session.
func (h *AuthHandler) AdminLogin(c *gin.Context) {
	var req model.LoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	session, err := h.authService.AdminLogin(c.Request.Context(), service.LoginInput{
		Username:  req.Username,
		Password:  req.Password,
		ClientKey: c.ClientIP(),
	})
	if err != nil {
		h.logRejection(c, "admin", req.Username, err)
		respondError(c, h.log, err)
		return
	}

	h.respondSession(c, session)
}

// Logout godoc
// POST /api/v1/auth/logout
// POST /api/v1/auth/admin/logout
// Ends the current session.
func (h *AuthHandler) Logout(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	if err := h.authService.Logout(c.Request.Context(), claims); err != nil {
		respondError(c, h.log, err)
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookieName, "", -1, "/", "", h.cookieSecure, true)
	response.Success(c, http.StatusOK, gin.H{})
}

// Me godoc
// GET /api/v1/auth/me
// Returns the examinee's session principal.
func (h *AuthHandler) Me(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"principal":  claims.Principal,
		"expires_at": claims.ExpiresAt.Time,
	})
}

// AdminMe godoc
// GET /api/v1/auth/admin/me
// Returns the profile of the currently authenticated admin.
func (h *AuthHandler) AdminMe(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	admin, err := h.authService.GetAdmin(c.Request.Context(), claims.Principal.SubjectID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"admin": admin})
}

func (h *AuthHandler) respondSession(c *gin.Context, session *service.IssuedSession) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookieName, session.Token,
		int(h.authService.SessionTTL().Seconds()), "/", "", h.cookieSecure, true)

	response.Success(c, http.StatusOK, model.LoginResponse{
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt,
		Principal: session.Principal,
	})
}

// logRejection records why a login failed. The client only sees a generic rejection.
func (h *AuthHandler) logRejection(c *gin.Context, kind, username string, err error) {
	var ae *service.AuthError
	if !errors.As(err, &ae) {
		return
	}
	h.log.Info().
		Str("kind", kind).
		Str("username", username).
		Str("ip", c.ClientIP()).
		Str("reason", string(ae.Reason)).
		Msg("Login rejected")
}
