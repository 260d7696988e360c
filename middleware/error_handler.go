package middleware

import (
	"fmt"
	"net/http"

	apperrors "github.com/NomadCrew/nomad-crew-payments/errors"
	"github.com/NomadCrew/nomad-crew-payments/logger"
	"github.com/gin-gonic/gin"
)

type ErrorResponse struct {
	Type      string `json:"type"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// ErrorHandler renders the last error attached with c.Error as JSON.
// Handlers only attach errors; they never write error bodies themselves.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		last := c.Errors.Last()
		status, body := renderError(last)
		body.RequestID = c.GetString(RequestIDKey)

		if appErr, ok := apperrors.As(last.Err); ok {
			logger.LogHTTPError(c, last.Err, status, fmt.Sprintf("%s error", appErr.Type))
		} else {
			logger.LogHTTPError(c, last.Err, status, "Request failed")
		}

		if status == http.StatusTooManyRequests && c.Writer.Header().Get("Retry-After") == "" {
			c.Header("Retry-After", "60")
		}
		c.AbortWithStatusJSON(status, body)
	}
}

func renderError(ginErr *gin.Error) (int, ErrorResponse) {
	if appErr, ok := apperrors.As(ginErr.Err); ok {
		status := appErr.HTTPStatus
		if status == 0 {
			status = http.StatusInternalServerError
		}
		resp := ErrorResponse{
			Type:    string(appErr.Type),
			Code:    appErr.Code,
			Message: appErr.Message,
		}
		if exposeDetail(appErr.Type) || gin.IsDebugging() {
			resp.Details = appErr.Detail
		}
		return status, resp
	}

	switch ginErr.Type {
	case gin.ErrorTypeBind:
		resp := ErrorResponse{Type: string(apperrors.ValidationError), Message: "Failed to bind request"}
		resp.Details = ginErr.Err.Error()
		return http.StatusBadRequest, resp
	case gin.ErrorTypePublic:
		return http.StatusBadRequest, ErrorResponse{Type: string(apperrors.ValidationError), Message: ginErr.Err.Error()}
	}

	resp := ErrorResponse{Type: string(apperrors.ServerError), Message: "Internal Server Error"}
	if gin.IsDebugging() {
		resp.Details = ginErr.Err.Error()
	}
	return http.StatusInternalServerError, resp
}

// exposeDetail lists error types whose detail is safe to show callers.
// Database and server details stay in the logs.
func exposeDetail(t apperrors.ErrorType) bool {
	switch t {
	case apperrors.ValidationError, apperrors.NotFoundError, apperrors.ConflictError,
		apperrors.UnprocessableError, apperrors.AuthError, apperrors.ForbiddenError,
		apperrors.ProcessorFailure:
		return true
	}
	return false
}
