package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exam-portal/internal/model"
	"github.com/stemsi/exam-portal/internal/response"
	"github.com/stemsi/exam-portal/internal/service"
)

const (
	// ContextKeyClaims is the Gin context key for session claims.
	ContextKeyClaims = "claims"

	// SessionCookieName carries the session token for browser clients.
	SessionCookieName = "portal_session"
)

// RequireExaminee admits only live examinee sessions.
func RequireExaminee(authService *service.AuthService) gin.HandlerFunc {
	return requireKind(authService, model.PrincipalExaminee, response.ErrExamineeAccessOnly)
}

// RequireAdmin admits only live admin sessions.
func RequireAdmin(authService *service.AuthService) gin.HandlerFunc {
	return requireKind(authService, model.PrincipalAdmin, response.ErrAdminAccessOnly)
}

func requireKind(authService *service.AuthService, kind model.PrincipalKind, denied response.ErrCode) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := ExtractToken(c)
		if tokenStr == "" {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		claims, err := authService.Authenticate(c.Request.Context(), tokenStr)
		if err != nil {
			status, code := authFailure(err)
			response.AbortFail(c, status, code)
			return
		}

		if claims.Principal.Kind != kind {
			response.AbortFail(c, http.StatusForbidden, denied)
			return
		}

		c.Set(ContextKeyClaims, claims)
		c.Next()
	}
}

func authFailure(err error) (int, response.ErrCode) {
	switch {
	case errors.Is(err, service.ErrTokenExpired):
		return http.StatusUnauthorized, response.ErrTokenExpired
	case errors.Is(err, service.ErrSessionRevoked):
		return http.StatusUnauthorized, response.ErrSessionRevoked
	case errors.Is(err, service.ErrTokenInvalid):
		return http.StatusUnauthorized, response.ErrTokenInvalid
	default:
		return http.StatusInternalServerError, response.ErrInternal
	}
}

// GetClaims retrieves the session claims from the Gin context.
func GetClaims(c *gin.Context) *service.Claims {
	val, exists := c.Get(ContextKeyClaims)
	if !exists {
		return nil
	}
	claims, ok := val.(*service.Claims)
	if !ok {
		return nil
	}
	return claims
}

// ExtractToken reads the session token from the Authorization header, the
// session cookie, or the token query parameter, in that order.
func ExtractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
	}

	if cookie, err := c.Cookie(SessionCookieName); err == nil && cookie != "" {
		return cookie
	}

	// WebSocket clients cannot set headers on the upgrade request.
	return c.Query("token")
}
