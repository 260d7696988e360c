package middleware

import (
	"github.com/NomadCrew/nomad-crew-payments/config"
	"github.com/gin-gonic/gin"
)

// SecurityHeadersMiddleware sets browser hardening headers. Responses carry
// payment data, so nothing is cacheable.
func SecurityHeadersMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Cache-Control", "no-store")

		if cfg.IsProduction() {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
