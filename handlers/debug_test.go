package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/NomadCrew/nomad-crew-payments/middleware"
	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestDebugTokenHandler(t *testing.T) {
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
		"sub": testUserID,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	t.Run("valid token", func(t *testing.T) {
		validator := new(MockValidator)
		validator.On("Validate", mock.Anything, token).Return(testUserID, nil)
		r := buildRouter(http.MethodGet, "/debug/token", DebugTokenHandler(validator), "")

		w := doRequest(r, http.MethodGet, "/debug/token?token="+token, nil, "")

		require.Equal(t, http.StatusOK, w.Code)
		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, true, body["validation_success"])
		assert.Equal(t, testUserID, body["user_id"])
	})

	t.Run("unknown key", func(t *testing.T) {
		validator := new(MockValidator)
		validator.On("Validate", mock.Anything, token).
			Return("", fmt.Errorf("%w: kid-1", middleware.ErrJWKSKeyNotFound))
		r := buildRouter(http.MethodGet, "/debug/token", DebugTokenHandler(validator), "")

		w := doRequest(r, http.MethodGet, "/debug/token?token="+token, nil, "")

		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, false, body["validation_success"])
		assert.Equal(t, true, body["key_not_found"])
	})

	t.Run("no token", func(t *testing.T) {
		r := buildRouter(http.MethodGet, "/debug/token", DebugTokenHandler(new(MockValidator)), "")
		w := doRequest(r, http.MethodGet, "/debug/token", nil, "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
