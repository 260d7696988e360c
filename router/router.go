package router

import (
	"time"

	"github.com/NomadCrew/nomad-crew-payments/config"
	"github.com/NomadCrew/nomad-crew-payments/handlers"
	"github.com/NomadCrew/nomad-crew-payments/internal/websocket"
	"github.com/NomadCrew/nomad-crew-payments/middleware"
	"github.com/NomadCrew/nomad-crew-payments/services"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// Dependencies struct holds all dependencies required for setting up routes.
type Dependencies struct {
	Config              *config.Config
	JWTValidator        middleware.Validator
	RateLimiter         services.RateLimiterInterface
	RedisClient         redis.UniversalClient
	SplitPaymentHandler *handlers.SplitPaymentHandler
	RefundHandler       *handlers.RefundHandler
	RetryHandler        *handlers.RetryHandler
	WebhookHandler      *handlers.WebhookHandler
	HealthHandler       *handlers.HealthHandler
	StreamHandler       *websocket.Handler
	Logger              *zap.SugaredLogger
}

// SetupRouter configures and returns the main Gin engine with all routes defined.
func SetupRouter(deps Dependencies) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	if err := r.SetTrustedProxies(deps.Config.Server.TrustedProxies); err != nil && deps.Logger != nil {
		deps.Logger.Warnw("Invalid trusted proxies, ignoring forwarded headers", "error", err)
		_ = r.SetTrustedProxies(nil)
	}

	// Global Middleware
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(&deps.Config.Server))
	r.Use(middleware.SecurityHeadersMiddleware(deps.Config))

	// Health and Metrics Routes (no auth)
	r.GET("/health", deps.HealthHandler.DetailedHealth)
	r.GET("/health/liveness", deps.HealthHandler.LivenessCheck)
	r.GET("/health/readiness", deps.HealthHandler.ReadinessCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	if deps.Config.IsDevelopment() {
		r.GET("/debug/token", handlers.DebugTokenHandler(deps.JWTValidator))
	}

	window := time.Duration(deps.Config.RateLimit.WindowSeconds) * time.Second

	v1 := r.Group("/v1")
	{
		// Public routes
		v1.GET("/pay-links/:token",
			middleware.EndpointRateLimiter(deps.RateLimiter, deps.Config.RateLimit.ChargeRequestsPerWindow, window),
			deps.SplitPaymentHandler.GetPayLinkHandler)
		v1.POST("/webhooks/stripe", deps.WebhookHandler.StripeWebhookHandler)

		// --- Authenticated Routes ---
		authRoutes := v1.Group("")
		authRoutes.Use(middleware.AuthMiddleware(deps.JWTValidator))
		{
			splitRoutes := authRoutes.Group("/split-payments")
			{
				splitRoutes.POST("", deps.SplitPaymentHandler.CreateSplitPaymentHandler)
				splitRoutes.GET("", deps.SplitPaymentHandler.ListSplitPaymentsHandler)
				splitRoutes.GET("/:id", deps.SplitPaymentHandler.GetSplitPaymentHandler)
				splitRoutes.POST("/:id/evaluate", deps.SplitPaymentHandler.EvaluateSplitPaymentHandler)
				splitRoutes.GET("/:id/refunds", deps.RefundHandler.ListRefundRequestsHandler)
				splitRoutes.GET("/:id/stream",
					middleware.StreamConnectionLimiter(deps.RedisClient, deps.Config.RateLimit.StreamConnectionsPerUser, time.Hour),
					deps.StreamHandler.StreamSplitPayment)
			}

			paymentRoutes := authRoutes.Group("/individual-payments")
			{
				paymentRoutes.POST("/:id/charge",
					middleware.EndpointRateLimiter(deps.RateLimiter, deps.Config.RateLimit.ChargeRequestsPerWindow, window),
					deps.SplitPaymentHandler.ChargeHandler)
				paymentRoutes.POST("/:id/sync", deps.SplitPaymentHandler.SyncPaymentHandler)
				paymentRoutes.POST("/:id/reminders", deps.SplitPaymentHandler.SendReminderHandler)
			}

			refundRoutes := authRoutes.Group("/refunds")
			{
				refundRoutes.POST("", deps.RefundHandler.CreateRefundRequestHandler)
				refundRoutes.GET("/:id", deps.RefundHandler.GetRefundRequestHandler)
				refundRoutes.POST("/:id/review", deps.RefundHandler.StartReviewHandler)
				refundRoutes.POST("/:id/deny", deps.RefundHandler.DenyHandler)
				refundRoutes.POST("/:id/process", deps.RefundHandler.ProcessRefundHandler)
				refundRoutes.POST("/:id/evidence", deps.RefundHandler.UploadEvidenceHandler)
				refundRoutes.GET("/:id/evidence", deps.RefundHandler.GetEvidenceURLHandler)
			}

			authRoutes.POST("/operations/retry", deps.RetryHandler.RetryOperationHandler)

			adminRoutes := authRoutes.Group("/admin")
			adminRoutes.Use(middleware.RequireAdmin(deps.Config.Server.AdminUserIDs))
			{
				adminRoutes.GET("/refunds/export", deps.RefundHandler.ExportRefundsHandler)
			}
		}
	}

	return r
}
