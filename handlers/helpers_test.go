package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/NomadCrew/nomad-crew-payments/middleware"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

const (
	testUserID      = "11111111-1111-1111-1111-111111111111"
	testSplitID     = "22222222-2222-2222-2222-222222222222"
	testPaymentID   = "33333333-3333-3333-3333-333333333333"
	testRefundReqID = "44444444-4444-4444-4444-444444444444"
)

// buildRouter mounts one handler behind the error handler, matching the
// production setup so c.Error() calls produce the right status.
func buildRouter(method, path string, handler gin.HandlerFunc, userID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.ErrorHandler())
	r.Use(func(c *gin.Context) {
		if userID != "" {
			c.Set(string(middleware.UserIDKey), userID)
		}
		c.Next()
	})
	r.Handle(method, path, handler)
	return r
}

func doRequest(r http.Handler, method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func jsonBody(t *testing.T, v interface{}) *bytes.Buffer {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewBuffer(data)
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponse {
	t.Helper()
	var resp middleware.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}
