package config

import (
	"context"
	"crypto/tls"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/NomadCrew/nomad-crew-payments/logger"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// NewPostgresPoolConfig builds a pgxpool.Config from DatabaseConfig. TLS is
// enabled for hosted databases (sslmode=require or a neon.tech/supabase.co host).
func NewPostgresPoolConfig(cfg *DatabaseConfig) (*pgxpool.Config, error) {
	log := logger.GetLogger()

	connStr := cfg.URL()
	log.Infow("Connecting to database",
		"host", cfg.Host,
		"port", cfg.Port,
		"database", cfg.Name,
		"sslmode", cfg.SSLMode,
		"connection_string", logger.MaskConnectionString(connStr))

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	if cfg.SSLMode == "require" || strings.Contains(cfg.Host, "neon.tech") || strings.Contains(cfg.Host, "supabase.co") {
		poolConfig.ConnConfig.TLSConfig = &tls.Config{
			ServerName: cfg.Host,
			MinVersion: tls.VersionTLS12,
		}
	}

	connMaxLife, err := time.ParseDuration(cfg.ConnMaxLife)
	if err != nil {
		log.Warnw("Invalid connection max lifetime, using default 30m", "value", cfg.ConnMaxLife, "error", err)
		connMaxLife = 30 * time.Minute
	}

	poolConfig.MaxConns = int32(math.Min(float64(cfg.MaxOpenConns), float64(math.MaxInt32)))
	poolConfig.MinConns = int32(math.Min(float64(cfg.MaxIdleConns), float64(math.MaxInt32)))
	if poolConfig.MaxConns <= 0 {
		poolConfig.MaxConns = 4
	}
	if poolConfig.MinConns > poolConfig.MaxConns {
		poolConfig.MinConns = poolConfig.MaxConns
	}
	poolConfig.MaxConnLifetime = connMaxLife
	poolConfig.HealthCheckPeriod = 30 * time.Second
	poolConfig.ConnConfig.ConnectTimeout = 5 * time.Second

	log.Infow("Configured database connection pool",
		"max_conns", poolConfig.MaxConns,
		"min_conns", poolConfig.MinConns,
		"max_conn_lifetime", connMaxLife.String())

	return poolConfig, nil
}

// NewRedisOptions builds redis.Options with retry and timeout settings.
func NewRedisOptions(cfg *RedisConfig) *redis.Options {
	opts := &redis.Options{
		Addr:            cfg.Address,
		Password:        cfg.Password,
		DB:              cfg.DB,
		PoolSize:        cfg.PoolSize,
		MinIdleConns:    cfg.MinIdleConns,
		ConnMaxLifetime: time.Hour,
		MaxRetries:      3,
		MinRetryBackoff: 100 * time.Millisecond,
		MaxRetryBackoff: 2 * time.Second,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     3 * time.Second,
		WriteTimeout:    3 * time.Second,
	}

	logger.GetLogger().Infow("Configuring Redis connection",
		"address", cfg.Address,
		"db", cfg.DB,
		"pool_size", cfg.PoolSize,
		"use_tls", cfg.UseTLS)

	if cfg.UseTLS || strings.Contains(cfg.Address, "upstash.io") {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	return opts
}

// PingRedis pings Redis up to attempts times, sleeping delay between tries.
func PingRedis(ctx context.Context, client redis.UniversalClient, attempts int, delay time.Duration) error {
	log := logger.GetLogger()
	var lastErr error

	for i := 0; i < attempts; i++ {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		lastErr = client.Ping(pingCtx).Err()
		cancel()

		if lastErr == nil {
			if i > 0 {
				log.Infow("Successfully connected to Redis after retries", "attempt", i+1)
			}
			return nil
		}

		if i < attempts-1 {
			log.Warnw("Failed to ping Redis, retrying...", "error", lastErr, "attempt", i+1, "max_attempts", attempts)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return fmt.Errorf("redis unreachable after %d attempts: %w", attempts, lastErr)
}
