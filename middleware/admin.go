package middleware

import (
	apperrors "github.com/NomadCrew/nomad-crew-payments/errors"
	"github.com/gin-gonic/gin"
)

// RequireAdmin rejects callers whose user ID is not in adminIDs. It must run
// after AuthMiddleware.
func RequireAdmin(adminIDs []string) gin.HandlerFunc {
	admins := make(map[string]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = struct{}{}
	}

	return func(c *gin.Context) {
		userID := GetUserID(c)
		if userID == "" {
			_ = c.Error(apperrors.AuthenticationFailed("Authentication required"))
			c.Abort()
			return
		}
		if _, ok := admins[userID]; !ok {
			_ = c.Error(apperrors.Forbidden("Admin access required", "user is not an administrator"))
			c.Abort()
			return
		}
		c.Set(string(IsAdminKey), true)
		c.Next()
	}
}

func IsAdmin(c *gin.Context) bool {
	return c.GetBool(string(IsAdminKey))
}
