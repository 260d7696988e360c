package logger

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Route params that are safe to log. Pay-link tokens are bearer
// credentials and never appear in logs.
var loggableParams = map[string]bool{"id": true}

// LogHTTPError logs a failed request. The route template is logged instead
// of the raw path. 5xx responses outside release mode carry a stack.
func LogHTTPError(c *gin.Context, err error, statusCode int, message string) {
	route := c.FullPath()
	if route == "" {
		route = "unmatched"
	}

	fields := []zap.Field{
		zap.Error(err),
		zap.Int("status_code", statusCode),
		zap.String("route", route),
		zap.String("method", c.Request.Method),
		zap.String("client_ip", c.ClientIP()),
		zap.Any("headers", filterSensitiveHeaders(c.Request.Header)),
	}

	for _, p := range c.Params {
		if loggableParams[p.Key] {
			fields = append(fields, zap.String("param_"+p.Key, p.Value))
		}
	}
	if requestID := c.GetString("request_id"); requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}
	if userID := c.GetString("userID"); userID != "" {
		fields = append(fields, zap.String("user_id", userID))
	}

	log := GetLogger().Desugar()
	if statusCode >= http.StatusInternalServerError {
		if gin.Mode() != gin.ReleaseMode {
			fields = append(fields, zap.StackSkip("stack_trace", 2))
		}
		log.Error(message, fields...)
		return
	}
	log.Warn(message, fields...)
}

// filterSensitiveHeaders removes sensitive information from headers before logging
func filterSensitiveHeaders(headers http.Header) map[string]string {
	filtered := make(map[string]string, len(headers))

	for name, values := range headers {
		lower := strings.ToLower(name)
		if lower == "authorization" || lower == "cookie" || lower == "stripe-signature" ||
			strings.Contains(lower, "token") ||
			strings.Contains(lower, "key") ||
			strings.Contains(lower, "secret") {
			filtered[name] = "[REDACTED]"
			continue
		}
		if len(values) > 0 {
			filtered[name] = values[0]
		}
	}

	return filtered
}
