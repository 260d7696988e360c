// @title NomadCrew Payments API
// @version 1.0
// @description Split payments, individual charges and refunds for group bookings.
// @BasePath /v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NomadCrew/nomad-crew-payments/config"
	"github.com/NomadCrew/nomad-crew-payments/db"
	_ "github.com/NomadCrew/nomad-crew-payments/docs"
	"github.com/NomadCrew/nomad-crew-payments/handlers"
	"github.com/NomadCrew/nomad-crew-payments/internal/auth"
	"github.com/NomadCrew/nomad-crew-payments/internal/cache"
	"github.com/NomadCrew/nomad-crew-payments/internal/events"
	"github.com/NomadCrew/nomad-crew-payments/internal/processor"
	"github.com/NomadCrew/nomad-crew-payments/internal/store/postgres"
	"github.com/NomadCrew/nomad-crew-payments/internal/websocket"
	"github.com/NomadCrew/nomad-crew-payments/logger"
	"github.com/NomadCrew/nomad-crew-payments/middleware"
	"github.com/NomadCrew/nomad-crew-payments/models/splitpayment"
	paymentsvc "github.com/NomadCrew/nomad-crew-payments/models/splitpayment/service"
	"github.com/NomadCrew/nomad-crew-payments/router"
	"github.com/NomadCrew/nomad-crew-payments/services"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	logger.InitLogger()
	log := logger.GetLogger()
	defer func() { _ = logger.Close() }()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	validator := auth.NewConfigValidator(cfg)
	validator.PrintValidationResults(validator.ValidateAuthConfig())

	ctx := context.Background()

	if err := db.RunMigrations(cfg.Database.URL()); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	poolConfig, err := config.NewPostgresPoolConfig(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to build database config: %v", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	redisClient := redis.NewClient(config.NewRedisOptions(&cfg.Redis))
	if err := config.PingRedis(ctx, redisClient, 3, 2*time.Second); err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	// Events
	publisher := events.NewRedisPublisher(redisClient, events.Config{
		PublishTimeout:   time.Duration(cfg.EventService.PublishTimeoutSeconds) * time.Second,
		SubscribeTimeout: 10 * time.Second,
		EventBufferSize:  cfg.EventService.EventBufferSize,
	})
	eventService := events.NewService(publisher, prometheus.DefaultRegisterer)
	if err := eventService.RegisterHandler("metrics", events.NewMetricsHandler(prometheus.DefaultRegisterer)); err != nil {
		log.Fatalf("Failed to register event handler: %v", err)
	}

	workerPool := services.NewWorkerPool(cfg.WorkerPool)
	workerPool.Start()

	// Stores and processor
	splitStore := postgres.NewSplitPaymentStore(pool)
	refundStore := postgres.NewRefundStore(pool)
	stripeProcessor := processor.NewStripeProcessor(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret)

	payLinks := auth.NewPayLinkSigner(
		auth.NewSecretManager(cfg.PaymentPolicy.PayLinkSecret, cfg.PaymentPolicy.PayLinkPreviousSecret),
		cfg.PaymentPolicy.PayLinkTTL)

	// Notification channels
	emailService := services.NewEmailService(&cfg.Email)

	var push services.PushSender
	if facade := services.NewNotificationFacadeService(&cfg.Notification, nil); facade.IsEnabled() {
		push = facade
	}

	var mirror services.StatusMirror
	feed := services.NewSupabaseService(services.SupabaseServiceConfig{
		IsEnabled:   cfg.Supabase.FeedEnabled,
		SupabaseURL: cfg.Supabase.URL,
		SupabaseKey: cfg.Supabase.ServiceKey,
	})
	if feed.IsEnabled() {
		mirror = feed
	}

	notifier := services.NewNotificationDispatcher(
		services.NotificationDispatcherConfig{
			FrontendURL:    cfg.Server.FrontendURL,
			PublishTimeout: time.Duration(cfg.EventService.PublishTimeoutSeconds) * time.Second,
		},
		workerPool,
		splitStore,
		eventService,
		emailService,
		push,
		mirror,
		payLinks,
	)

	var evidence paymentsvc.EvidenceStorage
	if cfg.Storage.Enabled() {
		s3Storage, err := paymentsvc.NewS3EvidenceStorage(ctx, cfg.Storage)
		if err != nil {
			log.Fatalf("Failed to initialize evidence storage: %v", err)
		}
		evidence = s3Storage
	} else {
		log.Warn("Evidence storage not configured, refund evidence uploads are disabled")
	}

	// Split payment services
	refundService := paymentsvc.NewRefundService(refundStore, splitStore, stripeProcessor, notifier, evidence,
		cfg.Server.AdminUserIDs, cfg.Storage.MaxEvidenceBytes)
	coordinator := paymentsvc.NewCoordinator(splitStore, cache.NewRedisCache(redisClient, "split_payment_view:"), notifier, workerPool, refundService,
		paymentsvc.CoordinatorConfig{
			Policy:              splitpayment.PolicyFromConfig(cfg.PaymentPolicy),
			SupportedCurrencies: cfg.PaymentPolicy.SupportedCurrencies,
			ViewCacheTTL:        cfg.PaymentPolicy.ViewCacheTTL,
		})
	refundService.SetViewInvalidator(coordinator)
	chargeService := paymentsvc.NewChargeService(splitStore, stripeProcessor, coordinator, notifier, payLinks)
	retryService := paymentsvc.NewRetryService(coordinator, chargeService, refundService)

	// Auth and streaming
	jwtValidator, err := middleware.NewJWTValidator(&cfg.Supabase)
	if err != nil {
		log.Fatalf("Failed to initialize JWT validator: %v", err)
	}

	hubConfig := websocket.DefaultHubConfig()
	hub := websocket.NewHub(eventService, hubConfig)

	healthService := services.NewHealthService(pool, redisClient, cfg.Server.Version)
	healthService.SetPoolUsageGetter(services.PoolUsage(pool))
	healthService.SetQueueUsageGetter(func() (int, int) {
		return workerPool.QueueDepth(), workerPool.QueueCapacity()
	})

	r := router.SetupRouter(router.Dependencies{
		Config:              cfg,
		JWTValidator:        jwtValidator,
		RateLimiter:         services.NewRateLimitService(redisClient),
		RedisClient:         redisClient,
		SplitPaymentHandler: handlers.NewSplitPaymentHandler(coordinator, chargeService),
		RefundHandler:       handlers.NewRefundHandler(refundService, cfg.Storage.MaxEvidenceBytes),
		RetryHandler:        handlers.NewRetryHandler(retryService),
		WebhookHandler:      handlers.NewWebhookHandler(chargeService),
		HealthHandler:       handlers.NewHealthHandler(healthService),
		StreamHandler:       websocket.NewHandler(hub, coordinator, &cfg.Server, hubConfig),
		Logger:              log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infow("Starting server", "port", cfg.Server.Port, "environment", cfg.Server.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.WorkerPool.ShutdownTimeoutSeconds)*time.Second)
	defer cancel()

	// Close streams first; hijacked connections are not tracked by srv.Shutdown.
	if err := hub.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Stream hub shutdown failed", "error", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Server forced to shutdown", "error", err)
	}
	if err := workerPool.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Worker pool shutdown failed", "error", err)
	}
	if err := eventService.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Event service shutdown failed", "error", err)
	}

	log.Info("Server exited")
}
