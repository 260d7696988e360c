package auth

import (
	"testing"

	"github.com/NomadCrew/nomad-crew-payments/config"
	"github.com/stretchr/testify/assert"
)

func validAuthConfig() *config.Config {
	return &config.Config{
		Server:   config.ServerConfig{Environment: config.EnvDevelopment},
		Supabase: config.SupabaseConfig{URL: "https://project.supabase.co", JWTSecret: "supabase-secret-0123456789abcdef"},
		Stripe:   config.StripeConfig{SecretKey: "sk_test_abc", WebhookSecret: "whsec_abc"},
		PaymentPolicy: config.PaymentPolicyConfig{
			PayLinkSecret: "paylink-secret-0123456789abcdef0",
		},
	}
}

func TestConfigValidator_ValidateAuthConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *config.Config)
		wantErr int
	}{
		{"valid", func(c *config.Config) {}, 0},
		{"malformed stripe key", func(c *config.Config) { c.Stripe.SecretKey = "pk_test_abc" }, 1},
		{"test key in production", func(c *config.Config) { c.Server.Environment = config.EnvProduction }, 1},
		{"live key in development", func(c *config.Config) { c.Stripe.SecretKey = "sk_live_abc" }, 1},
		{"bad webhook secret", func(c *config.Config) { c.Stripe.WebhookSecret = "secret" }, 1},
		{"shared secrets", func(c *config.Config) { c.PaymentPolicy.PayLinkSecret = c.Supabase.JWTSecret }, 1},
		{"previous equals current", func(c *config.Config) {
			c.PaymentPolicy.PayLinkPreviousSecret = c.PaymentPolicy.PayLinkSecret
		}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validAuthConfig()
			tt.mutate(cfg)
			errs := NewConfigValidator(cfg).ValidateAuthConfig()
			assert.Len(t, errs, tt.wantErr)
		})
	}
}
