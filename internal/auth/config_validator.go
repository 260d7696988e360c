package auth

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/NomadCrew/nomad-crew-payments/config"
	"github.com/NomadCrew/nomad-crew-payments/logger"
)

// ConfigValidator checks credentials whose shape config.LoadConfig cannot judge alone.
type ConfigValidator struct {
	config *config.Config
}

// NewConfigValidator creates a new validator for auth configuration
func NewConfigValidator(cfg *config.Config) *ConfigValidator {
	return &ConfigValidator{config: cfg}
}

// ValidateAuthConfig returns every problem found. None of them stop startup.
func (v *ConfigValidator) ValidateAuthConfig() []error {
	var errs []error
	stripe := v.config.Stripe
	production := v.config.Server.Environment == config.EnvProduction

	switch {
	case !strings.HasPrefix(stripe.SecretKey, "sk_") && !strings.HasPrefix(stripe.SecretKey, "rk_"):
		errs = append(errs, fmt.Errorf("stripe secret key has an unexpected format"))
	case production && strings.Contains(stripe.SecretKey, "_test_"):
		errs = append(errs, fmt.Errorf("stripe test key configured in production"))
	case !production && strings.Contains(stripe.SecretKey, "_live_"):
		errs = append(errs, fmt.Errorf("stripe live key configured outside production"))
	}

	if !strings.HasPrefix(stripe.WebhookSecret, "whsec_") {
		errs = append(errs, fmt.Errorf("stripe webhook secret has an unexpected format"))
	}

	if v.config.Supabase.URL != "" {
		if _, err := url.ParseRequestURI(v.config.Supabase.URL); err != nil {
			errs = append(errs, fmt.Errorf("invalid Supabase URL: %w", err))
		}
	}

	policy := v.config.PaymentPolicy
	if policy.PayLinkSecret == v.config.Supabase.JWTSecret {
		errs = append(errs, fmt.Errorf("pay link secret must differ from the Supabase JWT secret"))
	}
	if policy.PayLinkPreviousSecret != "" && policy.PayLinkPreviousSecret == policy.PayLinkSecret {
		errs = append(errs, fmt.Errorf("previous pay link secret equals the current one"))
	}

	return errs
}

// PrintValidationResults logs all validation results
func (v *ConfigValidator) PrintValidationResults(errs []error) {
	log := logger.GetLogger()

	if len(errs) == 0 {
		log.Info("Auth configuration validation passed successfully")
		return
	}

	log.Warnw("Auth configuration validation found problems", "error_count", len(errs))
	for i, err := range errs {
		log.Warnw("Validation error", "index", i+1, "error", err.Error())
	}
}
