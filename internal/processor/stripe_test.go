package processor

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/NomadCrew/nomad-crew-payments/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
)

const testWebhookSecret = "whsec_test"

func init() {
	logger.IsTest = true
}

func newTestProcessor(t *testing.T, handler http.HandlerFunc) *StripeProcessor {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
	return NewStripeProcessorWithBackends("sk_test_123", testWebhookSecret, &stripe.Backends{
		API:     backend,
		Connect: backend,
		Uploads: backend,
	})
}

func signPayload(payload []byte, secret string, at time.Time) string {
	ts := at.Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.%s", ts, payload)))
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestStripeProcessor_CreatePaymentIntent(t *testing.T) {
	p := newTestProcessor(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payment_intents", r.URL.Path)
		assert.Equal(t, "charge-p1-1", r.Header.Get("Idempotency-Key"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "1000", r.PostForm.Get("amount"))
		assert.Equal(t, "eur", r.PostForm.Get("currency"))
		assert.Equal(t, "p1", r.PostForm.Get("metadata[individual_payment_id]"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_1","object":"payment_intent","client_secret":"pi_1_secret_abc",
			"status":"requires_payment_method","amount":1000,"currency":"eur",
			"metadata":{"individual_payment_id":"p1"}}`))
	})

	intent, err := p.CreatePaymentIntent(context.Background(), IntentRequest{
		Amount:         1000,
		Currency:       "EUR",
		IdempotencyKey: "charge-p1-1",
		Metadata:       map[string]string{MetadataIndividualPaymentID: "p1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_1", intent.ID)
	assert.Equal(t, "pi_1_secret_abc", intent.ClientSecret)
	assert.Equal(t, IntentPending, intent.Status)
}

func TestStripeProcessor_CreatePaymentIntentDeclined(t *testing.T) {
	p := newTestProcessor(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":{"type":"card_error","code":"card_declined","message":"Your card was declined."}}`))
	})

	_, err := p.CreatePaymentIntent(context.Background(), IntentRequest{Amount: 500, Currency: "USD"})
	require.Error(t, err)
	assert.Equal(t, "Your card was declined.", FailureMessage(err))
}

func TestStripeProcessor_ConfirmPayment(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status IntentStatus
	}{
		{"succeeded", `{"id":"pi_1","object":"payment_intent","status":"succeeded"}`, IntentSucceeded},
		{"awaiting payer", `{"id":"pi_1","object":"payment_intent","status":"requires_payment_method"}`, IntentPending},
		{"declined", `{"id":"pi_1","object":"payment_intent","status":"requires_payment_method",
			"last_payment_error":{"type":"card_error","message":"Insufficient funds."}}`, IntentFailed},
		{"canceled", `{"id":"pi_1","object":"payment_intent","status":"canceled"}`, IntentCanceled},
		{"processing", `{"id":"pi_1","object":"payment_intent","status":"processing"}`, IntentPending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProcessor(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v1/payment_intents/pi_1", r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tt.body))
			})

			intent, err := p.ConfirmPayment(context.Background(), "pi_1")
			require.NoError(t, err)
			assert.Equal(t, tt.status, intent.Status)
		})
	}
}

func TestStripeProcessor_CreateRefund(t *testing.T) {
	t.Run("succeeds", func(t *testing.T) {
		p := newTestProcessor(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/refunds", r.URL.Path)
			assert.Equal(t, "refund-r1-p1", r.Header.Get("Idempotency-Key"))
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "pi_1", r.PostForm.Get("payment_intent"))
			assert.Equal(t, "500", r.PostForm.Get("amount"))

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"re_1","object":"refund","status":"succeeded","amount":500}`))
		})

		refund, err := p.CreateRefund(context.Background(), RefundRequest{
			IntentID: "pi_1", Amount: 500, IdempotencyKey: "refund-r1-p1",
		})
		require.NoError(t, err)
		assert.Equal(t, "re_1", refund.ID)
		assert.Equal(t, int64(500), refund.Amount)
	})

	t.Run("failed status is an error", func(t *testing.T) {
		p := newTestProcessor(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"re_2","object":"refund","status":"failed","amount":500}`))
		})

		_, err := p.CreateRefund(context.Background(), RefundRequest{IntentID: "pi_1", Amount: 500})
		assert.Error(t, err)
	})
}

func TestStripeProcessor_ParseWebhook(t *testing.T) {
	p := NewStripeProcessor("sk_test_123", testWebhookSecret)

	event := func(eventType, object string) []byte {
		return []byte(fmt.Sprintf(`{"id":"evt_1","object":"event","api_version":%q,"type":%q,"data":{"object":%s}}`,
			stripe.APIVersion, eventType, object))
	}

	t.Run("succeeded with metadata", func(t *testing.T) {
		payload := event("payment_intent.succeeded",
			`{"id":"pi_1","object":"payment_intent","status":"succeeded","metadata":{"individual_payment_id":"p1"}}`)

		cb, err := p.ParseWebhook(payload, signPayload(payload, testWebhookSecret, time.Now()))
		require.NoError(t, err)
		assert.Equal(t, "pi_1", cb.IntentID)
		assert.Equal(t, "p1", cb.PaymentID)
		assert.Equal(t, IntentSucceeded, cb.Outcome)
	})

	t.Run("payment failed carries reason", func(t *testing.T) {
		payload := event("payment_intent.payment_failed",
			`{"id":"pi_1","object":"payment_intent","status":"requires_payment_method","last_payment_error":{"message":"Your card was declined."}}`)

		cb, err := p.ParseWebhook(payload, signPayload(payload, testWebhookSecret, time.Now()))
		require.NoError(t, err)
		assert.Equal(t, IntentFailed, cb.Outcome)
		assert.Equal(t, "Your card was declined.", cb.FailureReason)
	})

	t.Run("bad signature", func(t *testing.T) {
		payload := event("payment_intent.succeeded", `{"id":"pi_1","object":"payment_intent"}`)

		_, err := p.ParseWebhook(payload, signPayload(payload, "whsec_other", time.Now()))
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("unsupported event", func(t *testing.T) {
		payload := event("charge.refunded", `{"id":"ch_1","object":"charge"}`)

		_, err := p.ParseWebhook(payload, signPayload(payload, testWebhookSecret, time.Now()))
		assert.ErrorIs(t, err, ErrUnsupportedEvent)
	})
}
