package main

import (
	"fmt"
	"os"

	"github.com/NomadCrew/nomad-crew-payments/config"
	"github.com/NomadCrew/nomad-crew-payments/logger"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Writes config/config.<env>.yaml from the current environment so a
// deployment can be reviewed before it goes out. Secrets are masked.

var requiredKeys = []string{
	"DB_PASSWORD",
	"SUPABASE_URL",
	"SUPABASE_JWT_SECRET",
	"STRIPE_SECRET_KEY",
	"STRIPE_WEBHOOK_SECRET",
	"PAY_LINK_SECRET",
}

func validateRequiredEnv(key string) error {
	value := os.Getenv(key)
	if value == "" {
		return fmt.Errorf("ERROR: %s environment variable is not set in your .env file. Please set it and try again", key)
	}
	if len(value) < 8 {
		return fmt.Errorf("ERROR: %s value is too short. It must be at least 8 characters long. Current length: %d", key, len(value))
	}
	return nil
}

func maskSecrets(cfg *config.Config) {
	cfg.Database.Password = logger.MaskSecret(cfg.Database.Password)
	cfg.Redis.Password = logger.MaskSecret(cfg.Redis.Password)
	cfg.Supabase.ServiceKey = logger.MaskSecret(cfg.Supabase.ServiceKey)
	cfg.Supabase.JWTSecret = logger.MaskSecret(cfg.Supabase.JWTSecret)
	cfg.Stripe.SecretKey = logger.MaskSecret(cfg.Stripe.SecretKey)
	cfg.Stripe.WebhookSecret = logger.MaskSecret(cfg.Stripe.WebhookSecret)
	cfg.Email.ResendAPIKey = logger.MaskSecret(cfg.Email.ResendAPIKey)
	cfg.Storage.SecretAccessKey = logger.MaskSecret(cfg.Storage.SecretAccessKey)
	cfg.Notification.APIKey = logger.MaskSecret(cfg.Notification.APIKey)
	cfg.PaymentPolicy.PayLinkSecret = logger.MaskSecret(cfg.PaymentPolicy.PayLinkSecret)
	cfg.PaymentPolicy.PayLinkPreviousSecret = logger.MaskSecret(cfg.PaymentPolicy.PayLinkPreviousSecret)
}

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("ERROR: .env file not found!")
		fmt.Println("Please create a .env file by copying .env.example and filling in the required values:")
		fmt.Println("cp .env.example .env")
		os.Exit(1)
	}

	for _, key := range requiredKeys {
		if err := validateRequiredEnv(key); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	maskSecrets(cfg)

	yamlData, err := yaml.Marshal(cfg)
	if err != nil {
		fmt.Printf("Error marshaling YAML: %v\n", err)
		os.Exit(1)
	}

	env := string(cfg.Server.Environment)
	if len(os.Args) > 1 {
		env = os.Args[1]
	}

	if err := os.MkdirAll("config", 0755); err != nil {
		fmt.Printf("Error creating config directory: %v\n", err)
		os.Exit(1)
	}

	filename := fmt.Sprintf("config/config.%s.yaml", env)
	if err := os.WriteFile(filename, yamlData, 0644); err != nil {
		fmt.Printf("Error writing config file: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Successfully generated %s\n", filename)
}
