package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	apperrors "github.com/NomadCrew/nomad-crew-payments/errors"
	"github.com/NomadCrew/nomad-crew-payments/logger"
	"github.com/NomadCrew/nomad-crew-payments/services"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// EndpointRateLimiter limits each caller to requests per window on the
// route it is mounted on. Redis failures let the request through; charge
// requests are idempotent at the processor so a missed limit costs nothing.
func EndpointRateLimiter(rateLimiter services.RateLimiterInterface, requests int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if requests <= 0 {
			c.Next()
			return
		}

		key := fmt.Sprintf("endpoint:%s:%s:%s", c.Request.Method, c.FullPath(), getRateLimitIdentifier(c))
		allowed, retryAfter, err := rateLimiter.CheckLimit(c.Request.Context(), key, requests, window)
		if err != nil {
			logger.GetLogger().Warnw("Rate limit check failed, allowing request", "key", key, "error", err)
			c.Next()
			return
		}

		if !allowed {
			setRateLimitHeaders(c, requests, retryAfter)
			_ = c.Error(apperrors.RateLimitExceeded(
				fmt.Sprintf("Too many requests. Please try again in %d seconds.", int(retryAfter.Seconds()))))
			c.Abort()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(requests))
		c.Next()
	}
}

// StreamConnectionLimiter caps concurrent status streams per user. The
// counter is released when the handler returns, so it counts open sockets
// rather than attempts; window only bounds how long a leaked count lives.
func StreamConnectionLimiter(redisClient redis.UniversalClient, maxConnPerUser int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := GetUserID(c)
		if userID == "" {
			_ = c.Error(apperrors.AuthenticationFailed("Authentication required"))
			c.Abort()
			return
		}

		ctx := c.Request.Context()
		key := "ws_conn:" + userID

		pipe := redisClient.TxPipeline()
		incr := pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, window)
		if _, err := pipe.Exec(ctx); err != nil {
			_ = c.Error(apperrors.InternalServerError("Rate limit check failed"))
			c.Abort()
			return
		}

		// The request context is already done once the socket closes.
		defer func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			redisClient.Decr(releaseCtx, key)
		}()

		if incr.Val() > int64(maxConnPerUser) {
			_ = c.Error(apperrors.RateLimitExceeded("Too many open status streams"))
			c.Abort()
			return
		}

		c.Next()
	}
}

// getRateLimitIdentifier prefers the authenticated user over the client IP.
func getRateLimitIdentifier(c *gin.Context) string {
	if userID := GetUserID(c); userID != "" {
		return "user:" + userID
	}
	return "ip:" + c.ClientIP()
}

func setRateLimitHeaders(c *gin.Context, limit int, retryAfter time.Duration) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
	c.Header("X-RateLimit-Remaining", "0")
	if retryAfter > 0 {
		c.Header("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(retryAfter).Unix(), 10))
		c.Header("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
	}
}
