package auth

import (
	"fmt"
	"time"

	"github.com/NomadCrew/nomad-crew-payments/errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const payLinkIssuer = "nomadcrew-payments"

// PayLinkClaims identifies the share a reminder link lets its recipient pay.
type PayLinkClaims struct {
	IndividualPaymentID string `json:"individualPaymentId"`
	SplitPaymentID      string `json:"splitPaymentId"`
	ParticipantID       string `json:"participantId"`
	jwt.RegisteredClaims
}

// PayLinkSigner issues and verifies pay-link tokens.
type PayLinkSigner struct {
	secrets *SecretManager
	ttl     time.Duration
	now     func() time.Time
}

func NewPayLinkSigner(secrets *SecretManager, ttl time.Duration) *PayLinkSigner {
	return &PayLinkSigner{secrets: secrets, ttl: ttl, now: time.Now}
}

// Sign returns an HS256 token for the share.
func (s *PayLinkSigner) Sign(individualPaymentID, splitPaymentID, participantID string) (string, error) {
	secret := s.secrets.GetCurrentSecret()
	if secret == "" {
		return "", fmt.Errorf("pay link secret is not configured")
	}

	now := s.now()
	claims := PayLinkClaims{
		IndividualPaymentID: individualPaymentID,
		SplitPaymentID:      splitPaymentID,
		ParticipantID:       participantID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    payLinkIssuer,
			Subject:   participantID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign pay link: %w", err)
	}
	return signed, nil
}

// Verify checks the token against every valid secret.
func (s *PayLinkSigner) Verify(tokenString string) (*PayLinkClaims, error) {
	for _, secret := range s.secrets.GetValidSecrets() {
		claims := &PayLinkClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims,
			func(token *jwt.Token) (interface{}, error) {
				return []byte(secret), nil
			},
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(payLinkIssuer),
			jwt.WithExpirationRequired(),
			jwt.WithTimeFunc(s.now),
		)
		if err == nil && token.Valid {
			if claims.IndividualPaymentID == "" {
				return nil, errors.AuthenticationFailed("Invalid pay link")
			}
			return claims, nil
		}
	}
	return nil, errors.AuthenticationFailed("Invalid or expired pay link")
}
