package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/NomadCrew/nomad-crew-payments/logger"
	"github.com/NomadCrew/nomad-crew-payments/middleware"
	"github.com/gin-gonic/gin"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// DebugTokenHandler reports why an access token does or does not validate.
// Only mounted in development.
func DebugTokenHandler(validator middleware.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logger.GetLogger()

		token := c.Query("token")
		if token == "" {
			token = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		}
		if token == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "No token provided",
				"help":  "Provide token as query parameter or Authorization: Bearer header",
			})
			return
		}

		response := gin.H{"token_length": len(token)}

		parsed, err := jwt.Parse([]byte(token), jwt.WithVerify(false))
		if err != nil {
			response["parse_success"] = false
			response["parse_error"] = err.Error()
			c.JSON(http.StatusOK, response)
			return
		}
		response["parse_success"] = true

		claims := gin.H{"sub": parsed.Subject(), "iss": parsed.Issuer()}
		if exp := parsed.Expiration(); !exp.IsZero() {
			claims["expires_at"] = exp.Format(time.RFC3339)
			claims["is_expired"] = time.Now().After(exp)
		}
		response["claims"] = claims

		userID, err := validator.Validate(c.Request.Context(), token)
		if err != nil {
			log.Debugw("Debug token validation failed", "error", err)
			response["validation_success"] = false
			response["validation_error"] = err.Error()
			response["key_not_found"] = errors.Is(err, middleware.ErrJWKSKeyNotFound)
		} else {
			response["validation_success"] = true
			response["user_id"] = userID
		}
		c.JSON(http.StatusOK, response)
	}
}
