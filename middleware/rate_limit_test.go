package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRateLimiter struct {
	mock.Mock
}

func (m *mockRateLimiter) CheckLimit(_ context.Context, key string, limit int, duration time.Duration) (bool, time.Duration, error) {
	args := m.Called(key, limit, duration)
	return args.Bool(0), args.Get(1).(time.Duration), args.Error(2)
}

func withUser(userID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(string(UserIDKey), userID)
		c.Next()
	}
}

func TestEndpointRateLimiter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	const key = "endpoint:POST:/v1/individual-payments/:id/charge:user:user-1"

	tests := []struct {
		name           string
		setup          func(m *mockRateLimiter)
		expectedStatus int
		retryAfter     string
	}{
		{
			name: "under the limit",
			setup: func(m *mockRateLimiter) {
				m.On("CheckLimit", key, 5, time.Minute).Return(true, time.Duration(0), nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "over the limit",
			setup: func(m *mockRateLimiter) {
				m.On("CheckLimit", key, 5, time.Minute).Return(false, 42*time.Second, nil)
			},
			expectedStatus: http.StatusTooManyRequests,
			retryAfter:     "42",
		},
		{
			name: "redis failure lets the request through",
			setup: func(m *mockRateLimiter) {
				m.On("CheckLimit", key, 5, time.Minute).Return(false, time.Duration(0), errors.New("redis down"))
			},
			expectedStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter := new(mockRateLimiter)
			tt.setup(limiter)

			r := gin.New()
			r.Use(ErrorHandler(), withUser("user-1"))
			r.POST("/v1/individual-payments/:id/charge", EndpointRateLimiter(limiter, 5, time.Minute), func(c *gin.Context) {
				c.Status(http.StatusOK)
			})

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/individual-payments/p1/charge", nil))

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.retryAfter != "" {
				assert.Equal(t, tt.retryAfter, w.Header().Get("Retry-After"))
				assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
				var body map[string]any
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
				assert.Equal(t, "RATE_LIMIT_EXCEEDED", body["type"])
			}
			limiter.AssertExpectations(t)
		})
	}
}

func TestEndpointRateLimiter_AnonymousUsesIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := new(mockRateLimiter)
	limiter.On("CheckLimit", "endpoint:GET:/v1/pay-links/:token:ip:192.0.2.1", 10, time.Minute).
		Return(true, time.Duration(0), nil)

	r := gin.New()
	r.GET("/v1/pay-links/:token", EndpointRateLimiter(limiter, 10, time.Minute), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/pay-links/abc", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	limiter.AssertExpectations(t)
}

func TestStreamConnectionLimiter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	window := time.Hour

	tests := []struct {
		name           string
		count          int64
		expectedStatus int
	}{
		{name: "first stream", count: 1, expectedStatus: http.StatusOK},
		{name: "too many streams", count: 4, expectedStatus: http.StatusTooManyRequests},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, redisMock := redismock.NewClientMock()
			redisMock.ExpectTxPipeline()
			redisMock.ExpectIncr("ws_conn:user-1").SetVal(tt.count)
			redisMock.ExpectExpire("ws_conn:user-1", window).SetVal(true)
			redisMock.ExpectTxPipelineExec()
			redisMock.ExpectDecr("ws_conn:user-1").SetVal(tt.count - 1)

			r := gin.New()
			r.Use(ErrorHandler(), withUser("user-1"), StreamConnectionLimiter(client, 3, window))
			r.GET("/stream", func(c *gin.Context) { c.Status(http.StatusOK) })

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stream", nil))

			assert.Equal(t, tt.expectedStatus, w.Code)
			require.NoError(t, redisMock.ExpectationsWereMet())
		})
	}
}

func TestStreamConnectionLimiter_RequiresUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	client, redisMock := redismock.NewClientMock()

	r := gin.New()
	r.Use(ErrorHandler(), StreamConnectionLimiter(client, 3, time.Hour))
	r.GET("/stream", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stream", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	require.NoError(t, redisMock.ExpectationsWereMet())
}
