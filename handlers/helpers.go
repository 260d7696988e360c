package handlers

import (
	apperrors "github.com/NomadCrew/nomad-crew-payments/errors"
	"github.com/NomadCrew/nomad-crew-payments/middleware"
	"github.com/gin-gonic/gin"
)

func getUserIDFromContext(c *gin.Context) string {
	return c.GetString(string(middleware.UserIDKey))
}

// bindJSONOrError binds the JSON body and records a validation error on
// failure. Returns false when the caller should stop.
func bindJSONOrError(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		_ = c.Error(apperrors.ValidationFailed("invalid_request_payload", err.Error()))
		return false
	}
	return true
}

// requireUser records an authentication error when no user is on the context.
func requireUser(c *gin.Context) (string, bool) {
	userID := getUserIDFromContext(c)
	if userID == "" {
		_ = c.Error(apperrors.AuthenticationFailed("Authentication required"))
		return "", false
	}
	return userID, true
}
