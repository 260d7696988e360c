package handlers

import (
	"context"
	"net/http"

	"github.com/NomadCrew/nomad-crew-payments/types"
	"github.com/gin-gonic/gin"
)

type HealthChecker interface {
	CheckHealth(ctx context.Context) types.HealthCheck
}

type HealthHandler struct {
	healthService HealthChecker
}

func NewHealthHandler(healthService HealthChecker) *HealthHandler {
	return &HealthHandler{
		healthService: healthService,
	}
}

// LivenessCheck handles kubernetes liveness probe
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.Status(http.StatusOK)
}

// ReadinessCheck fails only when a dependency is down; degraded still serves traffic.
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	health := h.healthService.CheckHealth(c.Request.Context())

	if !health.Ready() {
		c.JSON(http.StatusServiceUnavailable, health)
		return
	}

	c.JSON(http.StatusOK, health)
}

// DetailedHealth godoc
// @Summary Service health
// @Description Reports database, redis and worker pool status
// @Tags health
// @Produce json
// @Success 200 {object} types.HealthCheck
// @Router /health [get]
func (h *HealthHandler) DetailedHealth(c *gin.Context) {
	health := h.healthService.CheckHealth(c.Request.Context())
	c.JSON(http.StatusOK, health)
}
