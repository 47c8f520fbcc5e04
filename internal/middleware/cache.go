package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
)

// PrivateCache lets only the requesting browser cache the response.
// Materials are per-session, so shared caches must not keep them.
func PrivateCache(maxAgeSeconds int) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", fmt.Sprintf("private, max-age=%d", maxAgeSeconds))
		c.Next()
	}
}

// NoStore disables caching of API responses.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}
