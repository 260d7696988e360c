package middleware

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/NomadCrew/nomad-crew-payments/config"
	"github.com/NomadCrew/nomad-crew-payments/logger"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

var (
	ErrTokenExpired      = errors.New("token expired")
	ErrTokenInvalid      = errors.New("token invalid")
	ErrTokenMissingClaim = errors.New("token missing required claim")
	// ErrValidationMethodUnavailable is returned when the token can be checked
	// by neither the shared secret nor a JWKS key.
	ErrValidationMethodUnavailable = errors.New("no validation method available for token")
	ErrJWKSKeyNotFound             = errors.New("jwks key not found")
)

const (
	jwksCacheTTL   = 15 * time.Minute
	tokenClockSkew = 30 * time.Second
)

// Validator turns a bearer token into the caller's user ID.
type Validator interface {
	Validate(ctx context.Context, tokenString string) (string, error)
}

// JWTValidator accepts Supabase access tokens signed either with the project
// JWT secret (HS256) or with an asymmetric key published on the JWKS endpoint.
type JWTValidator struct {
	jwks         *JWKSCache
	staticSecret []byte
}

var _ Validator = (*JWTValidator)(nil)

func NewJWTValidator(cfg *config.SupabaseConfig) (*JWTValidator, error) {
	log := logger.GetLogger()
	v := &JWTValidator{}

	if cfg.JWTSecret != "" {
		v.staticSecret = []byte(cfg.JWTSecret)
	} else {
		log.Warn("JWT Validator: SUPABASE_JWT_SECRET not set, HS256 validation disabled")
	}

	if cfg.URL != "" {
		jwksURL := strings.TrimSuffix(cfg.URL, "/") + "/auth/v1/.well-known/jwks.json"
		v.jwks = NewJWKSCache(jwksURL, cfg.ServiceKey, jwksCacheTTL, nil)
		log.Infow("JWT Validator: JWKS validation enabled", "url", jwksURL)
	}

	if v.staticSecret == nil && v.jwks == nil {
		return nil, fmt.Errorf("JWT validator configuration error: a JWT secret or a Supabase URL is required")
	}
	return v, nil
}

// Validate returns the token's subject. Tokens carrying a kid are checked
// against JWKS, the rest against the shared secret.
func (v *JWTValidator) Validate(ctx context.Context, tokenString string) (string, error) {
	msg, err := jws.Parse([]byte(tokenString))
	if err != nil || len(msg.Signatures()) == 0 {
		return "", fmt.Errorf("%w: malformed token", ErrTokenInvalid)
	}
	header := msg.Signatures()[0].ProtectedHeaders()

	switch {
	case header.Algorithm() == jwa.HS256 && v.staticSecret != nil:
		return v.parse(tokenString, jwt.WithKey(jwa.HS256, v.staticSecret))
	case header.KeyID() != "" && v.jwks != nil:
		key, err := v.jwks.GetKey(ctx, header.KeyID())
		if err != nil {
			if errors.Is(err, ErrJWKSKeyNotFound) {
				return "", err
			}
			return "", fmt.Errorf("%w: %w", ErrTokenInvalid, err)
		}
		var alg jwa.KeyAlgorithm = header.Algorithm()
		if key.Algorithm().String() != "" {
			alg = key.Algorithm()
		}
		return v.parse(tokenString, jwt.WithKey(alg, key))
	default:
		return "", ErrValidationMethodUnavailable
	}
}

func (v *JWTValidator) parse(tokenString string, keyOpt jwt.ParseOption) (string, error) {
	token, err := jwt.Parse([]byte(tokenString),
		keyOpt,
		jwt.WithValidate(true),
		jwt.WithAcceptableSkew(tokenClockSkew),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired()) {
			return "", fmt.Errorf("%w: %w", ErrTokenExpired, err)
		}
		return "", fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}
	if token.Subject() == "" {
		return "", ErrTokenMissingClaim
	}
	return token.Subject(), nil
}
