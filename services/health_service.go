package services

import (
	"context"
	"fmt"
	"time"

	"github.com/NomadCrew/nomad-crew-payments/logger"
	"github.com/NomadCrew/nomad-crew-payments/types"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	dbPingAttempts     = 3
	dbPingBackoff      = 50 * time.Millisecond
	poolDegradedRatio  = 0.8
	queueDegradedRatio = 0.8
)

// DatabasePinger is the part of a pgx pool the health check needs.
type DatabasePinger interface {
	Ping(ctx context.Context) error
}

type HealthService struct {
	dbPool      DatabasePinger
	redisClient redis.UniversalClient
	version     string
	startTime   time.Time
	log         *zap.SugaredLogger

	// poolUsage returns acquired and maximum connections.
	poolUsage func() (acquired, max int32)
	// queueUsage returns queued jobs and queue capacity.
	queueUsage func() (depth, capacity int)
}

func NewHealthService(dbPool DatabasePinger, redisClient redis.UniversalClient, version string) *HealthService {
	return &HealthService{
		dbPool:      dbPool,
		redisClient: redisClient,
		version:     version,
		startTime:   time.Now(),
		log:         logger.GetLogger(),
	}
}

// PoolUsage adapts a pgx pool for SetPoolUsageGetter.
func PoolUsage(pool *pgxpool.Pool) func() (int32, int32) {
	return func() (int32, int32) {
		stat := pool.Stat()
		return stat.AcquiredConns(), stat.MaxConns()
	}
}

func (h *HealthService) SetPoolUsageGetter(fn func() (acquired, max int32)) {
	h.poolUsage = fn
}

func (h *HealthService) SetQueueUsageGetter(fn func() (depth, capacity int)) {
	h.queueUsage = fn
}

func (h *HealthService) CheckHealth(ctx context.Context) types.HealthCheck {
	components := map[string]types.HealthComponent{
		"database": h.checkDatabase(ctx),
		"redis":    h.checkRedis(ctx),
	}
	if h.queueUsage != nil {
		components["worker_pool"] = h.checkQueue()
	}

	return types.HealthCheck{
		Status:     types.OverallStatus(components),
		Components: components,
		Version:    h.version,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Uptime:     h.uptime(),
	}
}

// CheckLiveness only reports that the process is serving.
func (h *HealthService) CheckLiveness() types.HealthCheck {
	return types.HealthCheck{
		Status:    types.HealthStatusUp,
		Version:   h.version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    h.uptime(),
	}
}

// IsReady reports whether every dependency is reachable. A degraded
// component does not make the service unready.
func (h *HealthService) IsReady(ctx context.Context) (bool, types.HealthCheck) {
	check := h.CheckHealth(ctx)
	return check.Ready(), check
}

func (h *HealthService) uptime() string {
	return time.Since(h.startTime).Round(time.Second).String()
}

func (h *HealthService) checkDatabase(ctx context.Context) types.HealthComponent {
	if h.dbPool == nil {
		return types.HealthComponent{Status: types.HealthStatusDown, Details: "Database not configured"}
	}

	start := time.Now()
	err := h.pingDatabase(ctx)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		h.log.Errorw("Database health check failed", "error", err)
		return types.HealthComponent{
			Status:  types.HealthStatusDown,
			Details: "Database connection failed",
		}
	}

	if h.poolUsage != nil {
		acquired, max := h.poolUsage()
		if max > 0 && float64(acquired)/float64(max) > poolDegradedRatio {
			return types.HealthComponent{
				Status:    types.HealthStatusDegraded,
				Details:   fmt.Sprintf("Connection pool near capacity (%d/%d)", acquired, max),
				LatencyMs: latency,
			}
		}
	}

	return types.HealthComponent{Status: types.HealthStatusUp, LatencyMs: latency}
}

func (h *HealthService) pingDatabase(ctx context.Context) error {
	var err error
	for attempt := 1; attempt <= dbPingAttempts; attempt++ {
		if err = h.dbPool.Ping(ctx); err == nil || attempt == dbPingAttempts {
			return err
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(time.Duration(attempt) * dbPingBackoff):
		}
	}
	return err
}

func (h *HealthService) checkRedis(ctx context.Context) types.HealthComponent {
	if h.redisClient == nil {
		return types.HealthComponent{Status: types.HealthStatusDown, Details: "Redis not configured"}
	}
	start := time.Now()
	if err := h.redisClient.Ping(ctx).Err(); err != nil {
		h.log.Errorw("Redis health check failed", "error", err)
		return types.HealthComponent{
			Status:  types.HealthStatusDown,
			Details: "Redis connection failed",
		}
	}

	return types.HealthComponent{Status: types.HealthStatusUp, LatencyMs: time.Since(start).Milliseconds()}
}

func (h *HealthService) checkQueue() types.HealthComponent {
	depth, capacity := h.queueUsage()
	if capacity > 0 && float64(depth)/float64(capacity) > queueDegradedRatio {
		return types.HealthComponent{
			Status:  types.HealthStatusDegraded,
			Details: fmt.Sprintf("Notification queue near capacity (%d/%d)", depth, capacity),
		}
	}
	return types.HealthComponent{Status: types.HealthStatusUp}
}
