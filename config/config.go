// Package config handles loading and validation of application configuration
// from environment variables.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/NomadCrew/nomad-crew-payments/logger"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Environment represents the application's running environment (development or production).
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"

	minJWTLength = 32

	// basisPointsScale is 100%. Thresholds are stored as integer basis points.
	basisPointsScale = 10000
)

// ServerConfig holds server-specific configuration.
type ServerConfig struct {
	Environment    Environment `mapstructure:"ENVIRONMENT" yaml:"environment"`
	Port           string      `mapstructure:"PORT" yaml:"port"`
	AllowedOrigins []string    `mapstructure:"ALLOWED_ORIGINS" yaml:"allowed_origins"`
	Version        string      `mapstructure:"VERSION" yaml:"version"`
	FrontendURL    string      `mapstructure:"FRONTEND_URL" yaml:"frontend_url"`
	// TrustedProxies is a list of CIDR ranges or IPs of trusted reverse proxies.
	// If empty, X-Forwarded-For headers are ignored entirely.
	TrustedProxies []string `mapstructure:"TRUSTED_PROXIES" yaml:"trusted_proxies"`
	// AdminUserIDs may review any refund request and export reports.
	AdminUserIDs []string `mapstructure:"ADMIN_USER_IDS" yaml:"admin_user_ids"`
}

// DatabaseConfig holds PostgreSQL database connection details.
type DatabaseConfig struct {
	Host         string `mapstructure:"HOST" yaml:"host"`
	Port         int    `mapstructure:"PORT" yaml:"port"`
	User         string `mapstructure:"USER" yaml:"user"`
	Password     string `mapstructure:"PASSWORD" yaml:"password"`
	Name         string `mapstructure:"NAME" yaml:"name"`
	SSLMode      string `mapstructure:"SSL_MODE" yaml:"ssl_mode"`
	MaxOpenConns int    `mapstructure:"MAX_OPEN_CONNS" yaml:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"MAX_IDLE_CONNS" yaml:"max_idle_conns"`
	ConnMaxLife  string `mapstructure:"CONN_MAX_LIFE" yaml:"conn_max_life"`
}

// URL returns a postgres:// connection URL suitable for golang-migrate and pgxpool.
func (c *DatabaseConfig) URL() string {
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		c.Name,
		sslmode,
	)
}

// RedisConfig holds Redis connection details.
type RedisConfig struct {
	Address      string `mapstructure:"ADDRESS" yaml:"address"`
	Password     string `mapstructure:"PASSWORD" yaml:"password"`
	DB           int    `mapstructure:"DB" yaml:"db"`
	UseTLS       bool   `mapstructure:"USE_TLS" yaml:"use_tls"`
	PoolSize     int    `mapstructure:"POOL_SIZE" yaml:"pool_size"`
	MinIdleConns int    `mapstructure:"MIN_IDLE_CONNS" yaml:"min_idle_conns"`
}

// SupabaseConfig holds the project URL and keys used for token validation
// and the realtime status feed.
type SupabaseConfig struct {
	URL         string `mapstructure:"URL" yaml:"url"`
	ServiceKey  string `mapstructure:"SERVICE_KEY" yaml:"service_key"`
	JWTSecret   string `mapstructure:"JWT_SECRET" yaml:"jwt_secret"`
	FeedEnabled bool   `mapstructure:"FEED_ENABLED" yaml:"feed_enabled"`
}

// StripeConfig holds payment processor credentials.
type StripeConfig struct {
	SecretKey     string `mapstructure:"SECRET_KEY" yaml:"secret_key"`
	WebhookSecret string `mapstructure:"WEBHOOK_SECRET" yaml:"webhook_secret"`
}

// EmailConfig holds configuration for sending emails.
type EmailConfig struct {
	FromAddress  string `mapstructure:"FROM_ADDRESS" yaml:"from_address"`
	FromName     string `mapstructure:"FROM_NAME" yaml:"from_name"`
	ResendAPIKey string `mapstructure:"RESEND_API_KEY" yaml:"resend_api_key"`
}

// StorageConfig holds the S3-compatible bucket used for refund evidence.
type StorageConfig struct {
	Endpoint        string `mapstructure:"ENDPOINT" yaml:"endpoint"`
	Region          string `mapstructure:"REGION" yaml:"region"`
	Bucket          string `mapstructure:"BUCKET" yaml:"bucket"`
	AccessKeyID     string `mapstructure:"ACCESS_KEY_ID" yaml:"access_key_id"`
	SecretAccessKey string `mapstructure:"SECRET_ACCESS_KEY" yaml:"secret_access_key"`
	// MaxEvidenceBytes caps a single evidence upload.
	MaxEvidenceBytes int64 `mapstructure:"MAX_EVIDENCE_BYTES" yaml:"max_evidence_bytes"`
}

// Enabled reports whether evidence storage is configured.
func (c *StorageConfig) Enabled() bool {
	return c.Bucket != "" && c.AccessKeyID != "" && c.SecretAccessKey != ""
}

// PaymentPolicyConfig holds the split payment policy values.
type PaymentPolicyConfig struct {
	// MinimumThresholdBasisPoints is the paid share of the total (in 1/100 %)
	// at which an expired split still completes. 8000 = 80%.
	MinimumThresholdBasisPoints int `mapstructure:"MINIMUM_THRESHOLD_BPS" yaml:"minimum_threshold_bps"`
	// ReminderCooldown is the minimum time between two reminders for one payment.
	ReminderCooldown time.Duration `mapstructure:"REMINDER_COOLDOWN" yaml:"reminder_cooldown"`
	// DefaultDeadline is applied when a split is created without a deadline.
	DefaultDeadline time.Duration `mapstructure:"DEFAULT_DEADLINE" yaml:"default_deadline"`
	// SupportedCurrencies lists ISO 4217 codes accepted at creation.
	SupportedCurrencies []string `mapstructure:"SUPPORTED_CURRENCIES" yaml:"supported_currencies"`
	// ViewCacheTTL bounds how long a split payment view is served from cache.
	ViewCacheTTL time.Duration `mapstructure:"VIEW_CACHE_TTL" yaml:"view_cache_ttl"`
	// PayLinkSecret signs the pay links embedded in reminder emails.
	PayLinkSecret string `mapstructure:"PAY_LINK_SECRET" yaml:"pay_link_secret"`
	// PayLinkPreviousSecret keeps links signed before a secret change valid until they expire.
	PayLinkPreviousSecret string `mapstructure:"PAY_LINK_PREVIOUS_SECRET" yaml:"pay_link_previous_secret"`
	// PayLinkTTL is the validity of a pay link.
	PayLinkTTL time.Duration `mapstructure:"PAY_LINK_TTL" yaml:"pay_link_ttl"`
}

// EventServiceConfig holds configuration for the Redis-based event service.
type EventServiceConfig struct {
	// Timeout for publishing a single event to Redis (in seconds)
	PublishTimeoutSeconds int `mapstructure:"PUBLISH_TIMEOUT_SECONDS" yaml:"publish_timeout_seconds"`
	// Buffer size for the channel delivering events to a single subscriber
	EventBufferSize int `mapstructure:"EVENT_BUFFER_SIZE" yaml:"event_buffer_size"`
}

// RateLimitConfig holds configuration for rate limiting.
type RateLimitConfig struct {
	// Maximum charge attempts per user per window
	ChargeRequestsPerWindow int `mapstructure:"CHARGE_REQUESTS_PER_WINDOW" yaml:"charge_requests_per_window"`
	// Window duration in seconds for rate limiting
	WindowSeconds int `mapstructure:"WINDOW_SECONDS" yaml:"window_seconds"`
	// Maximum concurrently open status streams per user
	StreamConnectionsPerUser int `mapstructure:"STREAM_CONNECTIONS_PER_USER" yaml:"stream_connections_per_user"`
}

// NotificationConfig holds configuration for the external notification facade API.
type NotificationConfig struct {
	Enabled        bool   `mapstructure:"ENABLED" yaml:"enabled"`
	APIUrl         string `mapstructure:"API_URL" yaml:"api_url"`
	APIKey         string `mapstructure:"API_KEY" yaml:"api_key"`
	TimeoutSeconds int    `mapstructure:"TIMEOUT_SECONDS" yaml:"timeout_seconds"`
}

// WorkerPoolConfig holds configuration for the background worker pool.
type WorkerPoolConfig struct {
	// MaxWorkers is the number of concurrent workers (default: 10)
	MaxWorkers int `mapstructure:"MAX_WORKERS" yaml:"max_workers"`
	// QueueSize is the maximum number of pending jobs (default: 1000)
	QueueSize int `mapstructure:"QUEUE_SIZE" yaml:"queue_size"`
	// ShutdownTimeoutSeconds is the max time to wait for workers during shutdown (default: 30)
	ShutdownTimeoutSeconds int `mapstructure:"SHUTDOWN_TIMEOUT_SECONDS" yaml:"shutdown_timeout_seconds"`
	// MaxAttempts is how often a failing job runs before it is given up (default: 3)
	MaxAttempts int `mapstructure:"MAX_ATTEMPTS" yaml:"max_attempts"`
}

// Config aggregates all application configuration sections.
type Config struct {
	Server        ServerConfig        `mapstructure:"SERVER" yaml:"server"`
	Database      DatabaseConfig      `mapstructure:"DATABASE" yaml:"database"`
	Redis         RedisConfig         `mapstructure:"REDIS" yaml:"redis"`
	Supabase      SupabaseConfig      `mapstructure:"SUPABASE" yaml:"supabase"`
	Stripe        StripeConfig        `mapstructure:"STRIPE" yaml:"stripe"`
	Email         EmailConfig         `mapstructure:"EMAIL" yaml:"email"`
	Storage       StorageConfig       `mapstructure:"STORAGE" yaml:"storage"`
	PaymentPolicy PaymentPolicyConfig `mapstructure:"PAYMENT_POLICY" yaml:"payment_policy"`
	EventService  EventServiceConfig  `mapstructure:"EVENT_SERVICE" yaml:"event_service"`
	RateLimit     RateLimitConfig     `mapstructure:"RATE_LIMIT" yaml:"rate_limit"`
	Notification  NotificationConfig  `mapstructure:"NOTIFICATION" yaml:"notification"`
	WorkerPool    WorkerPoolConfig    `mapstructure:"WORKER_POOL" yaml:"worker_pool"`
}

// IsDevelopment returns true if the application is running in development environment.
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == EnvDevelopment
}

// IsProduction returns true if the application is running in production environment.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == EnvProduction
}

// bindEnvVars binds multiple environment variables to config keys.
// Format: []{configKey, envVar}
func bindEnvVars(v *viper.Viper, bindings [][2]string) error {
	for _, b := range bindings {
		if err := v.BindEnv(b[0], b[1]); err != nil {
			return fmt.Errorf("failed to bind %s: %w", b[0], err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER.ENVIRONMENT", EnvDevelopment)
	v.SetDefault("SERVER.PORT", "8080")
	v.SetDefault("SERVER.ALLOWED_ORIGINS", []string{"*"})
	v.SetDefault("SERVER.TRUSTED_PROXIES", []string{})
	v.SetDefault("SERVER.ADMIN_USER_IDS", []string{})
	v.SetDefault("SERVER.FRONTEND_URL", "http://localhost:3000")
	v.SetDefault("DATABASE.MAX_OPEN_CONNS", 5)
	v.SetDefault("DATABASE.MAX_IDLE_CONNS", 2)
	v.SetDefault("DATABASE.CONN_MAX_LIFE", "1h")
	v.SetDefault("DATABASE.HOST", "localhost")
	v.SetDefault("DATABASE.PORT", 5432)
	v.SetDefault("DATABASE.USER", "postgres")
	v.SetDefault("DATABASE.PASSWORD", "")
	v.SetDefault("DATABASE.NAME", "nomadcrew_payments")
	v.SetDefault("DATABASE.SSL_MODE", "disable")
	v.SetDefault("REDIS.DB", 0)
	v.SetDefault("REDIS.ADDRESS", "localhost:6379")
	v.SetDefault("REDIS.PASSWORD", "")
	v.SetDefault("REDIS.USE_TLS", false)
	v.SetDefault("REDIS.POOL_SIZE", 3)
	v.SetDefault("REDIS.MIN_IDLE_CONNS", 1)
	v.SetDefault("SUPABASE.FEED_ENABLED", false)
	v.SetDefault("EMAIL.FROM_NAME", "NomadCrew Payments")
	v.SetDefault("STORAGE.REGION", "auto")
	v.SetDefault("STORAGE.MAX_EVIDENCE_BYTES", 10<<20)
	v.SetDefault("PAYMENT_POLICY.MINIMUM_THRESHOLD_BPS", 8000)
	v.SetDefault("PAYMENT_POLICY.REMINDER_COOLDOWN", 24*time.Hour)
	v.SetDefault("PAYMENT_POLICY.DEFAULT_DEADLINE", 7*24*time.Hour)
	v.SetDefault("PAYMENT_POLICY.SUPPORTED_CURRENCIES", []string{"USD", "EUR", "GBP", "CAD", "AUD", "JPY", "CHF", "SEK", "INR"})
	v.SetDefault("PAYMENT_POLICY.VIEW_CACHE_TTL", 30*time.Second)
	v.SetDefault("PAYMENT_POLICY.PAY_LINK_TTL", 72*time.Hour)
	v.SetDefault("EVENT_SERVICE.PUBLISH_TIMEOUT_SECONDS", 5)
	v.SetDefault("EVENT_SERVICE.EVENT_BUFFER_SIZE", 100)
	v.SetDefault("RATE_LIMIT.CHARGE_REQUESTS_PER_WINDOW", 10)
	v.SetDefault("RATE_LIMIT.WINDOW_SECONDS", 60)
	v.SetDefault("RATE_LIMIT.STREAM_CONNECTIONS_PER_USER", 5)
	v.SetDefault("NOTIFICATION.ENABLED", false)
	v.SetDefault("NOTIFICATION.API_URL", "")
	v.SetDefault("NOTIFICATION.API_KEY", "")
	v.SetDefault("NOTIFICATION.TIMEOUT_SECONDS", 10)
	v.SetDefault("WORKER_POOL.MAX_WORKERS", 10)
	v.SetDefault("WORKER_POOL.QUEUE_SIZE", 1000)
	v.SetDefault("WORKER_POOL.SHUTDOWN_TIMEOUT_SECONDS", 30)
	v.SetDefault("WORKER_POOL.MAX_ATTEMPTS", 3)
}

// LoadConfig loads configuration from environment variables using Viper,
// sets default values, binds environment variables to config struct fields,
// unmarshals the configuration, and validates it.
func LoadConfig() (*Config, error) {
	v := viper.New()
	log := logger.GetLogger()

	setDefaults(v)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	envBindings := [][2]string{
		// Server config
		{"SERVER.ENVIRONMENT", "SERVER_ENVIRONMENT"},
		{"SERVER.PORT", "PORT"},
		{"SERVER.ALLOWED_ORIGINS", "ALLOWED_ORIGINS"},
		{"SERVER.TRUSTED_PROXIES", "TRUSTED_PROXIES"},
		{"SERVER.ADMIN_USER_IDS", "ADMIN_USER_IDS"},
		{"SERVER.FRONTEND_URL", "FRONTEND_URL"},
		// Database config
		{"DATABASE.HOST", "DB_HOST"},
		{"DATABASE.PORT", "DB_PORT"},
		{"DATABASE.USER", "DB_USER"},
		{"DATABASE.PASSWORD", "DB_PASSWORD"},
		{"DATABASE.NAME", "DB_NAME"},
		{"DATABASE.SSL_MODE", "DB_SSL_MODE"},
		// Redis config
		{"REDIS.ADDRESS", "REDIS_ADDRESS"},
		{"REDIS.PASSWORD", "REDIS_PASSWORD"},
		{"REDIS.DB", "REDIS_DB"},
		{"REDIS.USE_TLS", "REDIS_USE_TLS"},
		// Supabase
		{"SUPABASE.URL", "SUPABASE_URL"},
		{"SUPABASE.SERVICE_KEY", "SUPABASE_SERVICE_KEY"},
		{"SUPABASE.JWT_SECRET", "SUPABASE_JWT_SECRET"},
		{"SUPABASE.FEED_ENABLED", "SUPABASE_FEED_ENABLED"},
		// Stripe
		{"STRIPE.SECRET_KEY", "STRIPE_SECRET_KEY"},
		{"STRIPE.WEBHOOK_SECRET", "STRIPE_WEBHOOK_SECRET"},
		// Email config
		{"EMAIL.FROM_ADDRESS", "EMAIL_FROM_ADDRESS"},
		{"EMAIL.FROM_NAME", "EMAIL_FROM_NAME"},
		{"EMAIL.RESEND_API_KEY", "RESEND_API_KEY"},
		// Evidence storage
		{"STORAGE.ENDPOINT", "STORAGE_ENDPOINT"},
		{"STORAGE.REGION", "STORAGE_REGION"},
		{"STORAGE.BUCKET", "STORAGE_BUCKET"},
		{"STORAGE.ACCESS_KEY_ID", "STORAGE_ACCESS_KEY_ID"},
		{"STORAGE.SECRET_ACCESS_KEY", "STORAGE_SECRET_ACCESS_KEY"},
		// Payment policy
		{"PAYMENT_POLICY.MINIMUM_THRESHOLD_BPS", "PAYMENT_MINIMUM_THRESHOLD_BPS"},
		{"PAYMENT_POLICY.REMINDER_COOLDOWN", "PAYMENT_REMINDER_COOLDOWN"},
		{"PAYMENT_POLICY.DEFAULT_DEADLINE", "PAYMENT_DEFAULT_DEADLINE"},
		{"PAYMENT_POLICY.SUPPORTED_CURRENCIES", "PAYMENT_SUPPORTED_CURRENCIES"},
		{"PAYMENT_POLICY.VIEW_CACHE_TTL", "PAYMENT_VIEW_CACHE_TTL"},
		{"PAYMENT_POLICY.PAY_LINK_SECRET", "PAY_LINK_SECRET"},
		{"PAYMENT_POLICY.PAY_LINK_PREVIOUS_SECRET", "PAY_LINK_PREVIOUS_SECRET"},
		{"PAYMENT_POLICY.PAY_LINK_TTL", "PAY_LINK_TTL"},
		// Event service config
		{"EVENT_SERVICE.PUBLISH_TIMEOUT_SECONDS", "EVENT_SERVICE_PUBLISH_TIMEOUT_SECONDS"},
		{"EVENT_SERVICE.EVENT_BUFFER_SIZE", "EVENT_SERVICE_EVENT_BUFFER_SIZE"},
		// Rate limit config
		{"RATE_LIMIT.CHARGE_REQUESTS_PER_WINDOW", "RATE_LIMIT_CHARGE_REQUESTS_PER_WINDOW"},
		{"RATE_LIMIT.WINDOW_SECONDS", "RATE_LIMIT_WINDOW_SECONDS"},
		{"RATE_LIMIT.STREAM_CONNECTIONS_PER_USER", "RATE_LIMIT_STREAM_CONNECTIONS_PER_USER"},
		// Notification config
		{"NOTIFICATION.ENABLED", "NOTIFICATION_ENABLED"},
		{"NOTIFICATION.API_URL", "NOTIFICATION_API_URL"},
		{"NOTIFICATION.API_KEY", "NOTIFICATION_API_KEY"},
		{"NOTIFICATION.TIMEOUT_SECONDS", "NOTIFICATION_TIMEOUT_SECONDS"},
		// WorkerPool config
		{"WORKER_POOL.MAX_WORKERS", "WORKER_POOL_MAX_WORKERS"},
		{"WORKER_POOL.QUEUE_SIZE", "WORKER_POOL_QUEUE_SIZE"},
		{"WORKER_POOL.SHUTDOWN_TIMEOUT_SECONDS", "WORKER_POOL_SHUTDOWN_TIMEOUT_SECONDS"},
		{"WORKER_POOL.MAX_ATTEMPTS", "WORKER_POOL_MAX_ATTEMPTS"},
	}

	if err := bindEnvVars(v, envBindings); err != nil {
		return nil, err
	}

	log.Infow("Configuration loaded",
		"environment", v.GetString("SERVER.ENVIRONMENT"),
		"server_port", v.GetString("SERVER.PORT"),
		"db_host", v.GetString("DATABASE.HOST"),
		"minimum_threshold_bps", v.GetInt("PAYMENT_POLICY.MINIMUM_THRESHOLD_BPS"),
		"reminder_cooldown", v.GetDuration("PAYMENT_POLICY.REMINDER_COOLDOWN"),
		"stripe_key", logger.MaskSecret(v.GetString("STRIPE.SECRET_KEY")),
	)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal failed: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	log.Info("Configuration validated successfully")
	return &cfg, nil
}

// validateConfig checks if the loaded configuration values are valid.
func validateConfig(cfg *Config) error {
	log := logger.GetLogger()

	if cfg.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if !containsWildcard(cfg.Server.AllowedOrigins) {
		for _, origin := range cfg.Server.AllowedOrigins {
			if _, err := url.ParseRequestURI(origin); err != nil {
				return fmt.Errorf("invalid allowed origin '%s': %w", origin, err)
			}
		}
	}

	if cfg.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if cfg.Database.User == "" {
		return fmt.Errorf("database user is required")
	}
	if cfg.Database.Password == "" {
		log.Warn("Database password is not set. Ensure this is intended (e.g., using trusted auth).")
	}
	if cfg.Database.Name == "" {
		return fmt.Errorf("database name is required")
	}

	if cfg.Redis.Address == "" {
		return fmt.Errorf("redis address is required")
	}

	if err := validateSupabaseConfig(&cfg.Supabase, log); err != nil {
		return err
	}

	if cfg.Stripe.SecretKey == "" {
		return fmt.Errorf("stripe secret key is required")
	}
	if cfg.Stripe.WebhookSecret == "" {
		return fmt.Errorf("stripe webhook secret is required")
	}

	if cfg.Email.FromAddress == "" {
		return fmt.Errorf("email from address is required")
	}
	if cfg.Email.ResendAPIKey == "" {
		return fmt.Errorf("resend API key is required")
	}

	if !cfg.Storage.Enabled() {
		log.Warn("Evidence storage is not configured; refund evidence uploads are disabled")
	}

	if err := validatePaymentPolicy(&cfg.PaymentPolicy); err != nil {
		return err
	}

	if cfg.EventService.PublishTimeoutSeconds <= 0 {
		return fmt.Errorf("event service publish timeout must be positive")
	}
	if cfg.EventService.EventBufferSize <= 0 {
		return fmt.Errorf("event service buffer size must be positive")
	}

	if cfg.RateLimit.ChargeRequestsPerWindow <= 0 {
		return fmt.Errorf("rate limit charge requests per window must be positive")
	}
	if cfg.RateLimit.WindowSeconds <= 0 {
		return fmt.Errorf("rate limit window seconds must be positive")
	}
	if cfg.RateLimit.StreamConnectionsPerUser <= 0 {
		return fmt.Errorf("rate limit stream connections per user must be positive")
	}

	if err := validateNotificationConfig(&cfg.Notification, log); err != nil {
		return err
	}

	if cfg.WorkerPool.MaxWorkers <= 0 {
		return fmt.Errorf("worker pool max workers must be positive")
	}
	if cfg.WorkerPool.QueueSize <= 0 {
		return fmt.Errorf("worker pool queue size must be positive")
	}
	if cfg.WorkerPool.ShutdownTimeoutSeconds <= 0 {
		return fmt.Errorf("worker pool shutdown timeout must be positive")
	}

	return nil
}

func validateSupabaseConfig(cfg *SupabaseConfig, log *zap.SugaredLogger) error {
	if len(cfg.JWTSecret) < minJWTLength {
		return fmt.Errorf("supabase JWT secret must be at least %d characters long", minJWTLength)
	}
	if cfg.FeedEnabled && (cfg.URL == "" || cfg.ServiceKey == "") {
		log.Warn("Supabase URL or service key missing, disabling payment status feed")
		cfg.FeedEnabled = false
	}
	return nil
}

func validatePaymentPolicy(cfg *PaymentPolicyConfig) error {
	if cfg.MinimumThresholdBasisPoints <= 0 || cfg.MinimumThresholdBasisPoints > basisPointsScale {
		return fmt.Errorf("minimum threshold must be between 1 and %d basis points", basisPointsScale)
	}
	if cfg.ReminderCooldown < 0 {
		return fmt.Errorf("reminder cooldown must not be negative")
	}
	if cfg.DefaultDeadline <= 0 {
		return fmt.Errorf("default deadline must be positive")
	}
	if len(cfg.SupportedCurrencies) == 0 {
		return fmt.Errorf("at least one supported currency is required")
	}
	for i, c := range cfg.SupportedCurrencies {
		cfg.SupportedCurrencies[i] = strings.ToUpper(strings.TrimSpace(c))
	}
	if len(cfg.PayLinkSecret) < minJWTLength {
		return fmt.Errorf("pay link secret must be at least %d characters long", minJWTLength)
	}
	if cfg.PayLinkTTL <= 0 {
		return fmt.Errorf("pay link TTL must be positive")
	}
	return nil
}

// validateNotificationConfig validates the notification facade configuration.
// If enabled but missing API key, it auto-disables the service with a warning.
func validateNotificationConfig(cfg *NotificationConfig, log *zap.SugaredLogger) error {
	if !cfg.Enabled {
		return nil
	}

	if cfg.APIUrl == "" {
		log.Warn("Notification API URL not set, auto-disabling notification service")
		cfg.Enabled = false
		return nil
	}
	if _, err := url.ParseRequestURI(cfg.APIUrl); err != nil {
		return fmt.Errorf("invalid notification API URL: %w", err)
	}

	if cfg.APIKey == "" {
		log.Warn("Notification API key not set, auto-disabling notification service")
		cfg.Enabled = false
		return nil
	}

	if cfg.TimeoutSeconds <= 0 {
		return fmt.Errorf("notification timeout must be positive")
	}

	return nil
}

// containsWildcard checks if the list of allowed origins contains the wildcard "*".
func containsWildcard(origins []string) bool {
	for _, origin := range origins {
		if origin == "*" {
			return true
		}
	}
	return false
}
