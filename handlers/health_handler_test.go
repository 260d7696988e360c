package handlers

import (
	"net/http"
	"testing"

	"github.com/NomadCrew/nomad-crew-payments/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name            string
		status          types.HealthStatus
		readinessStatus int
	}{
		{name: "up", status: types.HealthStatusUp, readinessStatus: http.StatusOK},
		{name: "degraded still ready", status: types.HealthStatusDegraded, readinessStatus: http.StatusOK},
		{name: "down", status: types.HealthStatusDown, readinessStatus: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := new(MockHealthChecker)
			checker.On("CheckHealth", mock.Anything).Return(types.HealthCheck{
				Status:     tt.status,
				Components: map[string]types.HealthComponent{"database": {Status: tt.status}},
			})
			h := NewHealthHandler(checker)

			r := buildRouter(http.MethodGet, "/health/readiness", h.ReadinessCheck, "")
			w := doRequest(r, http.MethodGet, "/health/readiness", nil, "")
			assert.Equal(t, tt.readinessStatus, w.Code)

			r = buildRouter(http.MethodGet, "/health", h.DetailedHealth, "")
			w = doRequest(r, http.MethodGet, "/health", nil, "")
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Contains(t, w.Body.String(), string(tt.status))
		})
	}
}

func TestLivenessCheck(t *testing.T) {
	h := NewHealthHandler(new(MockHealthChecker))
	r := buildRouter(http.MethodGet, "/health/liveness", h.LivenessCheck, "")

	w := doRequest(r, http.MethodGet, "/health/liveness", nil, "")

	assert.Equal(t, http.StatusOK, w.Code)
}
