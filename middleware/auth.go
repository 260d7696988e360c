package middleware

import (
	"errors"
	"strings"

	apperrors "github.com/NomadCrew/nomad-crew-payments/errors"
	"github.com/NomadCrew/nomad-crew-payments/logger"
	"github.com/gin-gonic/gin"
)

// AuthMiddleware validates the bearer token and stores the caller's user ID
// under UserIDKey. WebSocket upgrades may pass the token as ?token= because
// browsers cannot set headers on them.
func AuthMiddleware(validator Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logger.GetLogger()

		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" && isWebSocketUpgrade(c) {
			token = c.Query("token")
		}
		if token == "" {
			_ = c.Error(apperrors.AuthenticationFailed("Authorization required"))
			c.Abort()
			return
		}

		userID, err := validator.Validate(c.Request.Context(), token)
		if err != nil {
			log.Warnw("Invalid JWT token",
				"error", err,
				"path", c.Request.URL.Path,
				"client_ip", c.ClientIP())

			authErr := apperrors.AuthenticationFailed("Invalid authentication token")
			if errors.Is(err, ErrTokenExpired) {
				authErr = apperrors.AuthenticationFailed("Your session has expired")
				authErr.Detail = "token_expired"
			}
			_ = c.Error(authErr)
			c.Abort()
			return
		}

		c.Set(string(UserIDKey), userID)
		c.Next()
	}
}

// GetUserID returns the authenticated caller, or "" outside AuthMiddleware.
func GetUserID(c *gin.Context) string {
	return c.GetString(string(UserIDKey))
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

func isWebSocketUpgrade(c *gin.Context) bool {
	return strings.Contains(strings.ToLower(c.GetHeader("Connection")), "upgrade") &&
		strings.EqualFold(c.GetHeader("Upgrade"), "websocket")
}
