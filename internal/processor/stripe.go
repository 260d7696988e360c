package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/NomadCrew/nomad-crew-payments/logger"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"
)

const (
	eventIntentSucceeded = "payment_intent.succeeded"
	eventIntentFailed    = "payment_intent.payment_failed"
	eventIntentCanceled  = "payment_intent.canceled"
)

// StripeProcessor implements Processor on the Stripe API.
type StripeProcessor struct {
	api           *client.API
	webhookSecret string
	log           *zap.SugaredLogger
}

var _ Processor = (*StripeProcessor)(nil)

// NewStripeProcessor creates a processor using the default Stripe backends.
func NewStripeProcessor(secretKey, webhookSecret string) *StripeProcessor {
	return NewStripeProcessorWithBackends(secretKey, webhookSecret, nil)
}

// NewStripeProcessorWithBackends lets callers point the client at another API host.
func NewStripeProcessorWithBackends(secretKey, webhookSecret string, backends *stripe.Backends) *StripeProcessor {
	api := &client.API{}
	api.Init(secretKey, backends)

	log := logger.Named("stripe")
	log.Infow("Stripe processor initialized", "secretKey", logger.MaskSecret(secretKey))

	return &StripeProcessor{
		api:           api,
		webhookSecret: webhookSecret,
		log:           log,
	}
}

// CreatePaymentIntent creates an intent for one share. The idempotency key
// makes a retried request return the intent created the first time.
func (p *StripeProcessor) CreatePaymentIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	if req.ReceiptEmail != nil {
		params.ReceiptEmail = req.ReceiptEmail
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	pi, err := p.api.PaymentIntents.New(params)
	if err != nil {
		p.log.Warnw("Failed to create payment intent",
			"idempotencyKey", req.IdempotencyKey,
			"amount", req.Amount,
			"currency", req.Currency,
			"error", FailureMessage(err))
		return nil, fmt.Errorf("stripe: create payment intent: %w", err)
	}

	p.log.Debugw("Created payment intent",
		"intentID", pi.ID,
		"clientSecret", logger.MaskSecret(pi.ClientSecret),
		"idempotencyKey", req.IdempotencyKey)
	return toIntent(pi), nil
}

// ConfirmPayment retrieves the intent and maps its status.
func (p *StripeProcessor) ConfirmPayment(ctx context.Context, intentID string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := p.api.PaymentIntents.Get(intentID, params)
	if err != nil {
		return nil, fmt.Errorf("stripe: retrieve payment intent %s: %w", intentID, err)
	}
	return toIntent(pi), nil
}

// CreateRefund refunds part or all of a succeeded intent.
func (p *StripeProcessor) CreateRefund(ctx context.Context, req RefundRequest) (*Refund, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.IntentID),
		Amount:        stripe.Int64(req.Amount),
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	r, err := p.api.Refunds.New(params)
	if err != nil {
		p.log.Warnw("Failed to create refund",
			"intentID", req.IntentID,
			"idempotencyKey", req.IdempotencyKey,
			"error", FailureMessage(err))
		return nil, fmt.Errorf("stripe: create refund: %w", err)
	}
	if r.Status == stripe.RefundStatusFailed || r.Status == stripe.RefundStatusCanceled {
		return nil, fmt.Errorf("stripe: refund %s ended in status %s", r.ID, r.Status)
	}
	return &Refund{ID: r.ID, Status: string(r.Status), Amount: r.Amount}, nil
}

// ParseWebhook verifies the Stripe-Signature header and extracts the intent outcome.
func (p *StripeProcessor) ParseWebhook(payload []byte, signature string) (*Callback, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		p.log.Warnw("Webhook signature verification failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	eventType := string(event.Type)
	var outcome IntentStatus
	switch eventType {
	case eventIntentSucceeded:
		outcome = IntentSucceeded
	case eventIntentFailed:
		outcome = IntentFailed
	case eventIntentCanceled:
		outcome = IntentCanceled
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEvent, eventType)
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("failed to decode payment intent from event %s: %w", event.ID, err)
	}

	cb := &Callback{
		EventID:   event.ID,
		EventType: eventType,
		IntentID:  pi.ID,
		PaymentID: pi.Metadata[MetadataIndividualPaymentID],
		Outcome:   outcome,
	}
	if pi.LastPaymentError != nil {
		cb.FailureReason = pi.LastPaymentError.Msg
	}
	if outcome == IntentCanceled && cb.FailureReason == "" {
		cb.FailureReason = "payment intent canceled"
	}
	return cb, nil
}

func toIntent(pi *stripe.PaymentIntent) *Intent {
	intent := &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       mapIntentStatus(pi),
		Metadata:     pi.Metadata,
	}
	if pi.LastPaymentError != nil {
		intent.FailureReason = pi.LastPaymentError.Msg
	}
	return intent
}

func mapIntentStatus(pi *stripe.PaymentIntent) IntentStatus {
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return IntentSucceeded
	case stripe.PaymentIntentStatusCanceled:
		return IntentCanceled
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		// A declined attempt falls back here with the decline recorded;
		// a fresh intent waiting for the payer has no error yet.
		if pi.LastPaymentError != nil {
			return IntentFailed
		}
		return IntentPending
	default:
		return IntentPending
	}
}

// FailureMessage returns the processor's human readable message for err.
func FailureMessage(err error) string {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Msg != "" {
		return stripeErr.Msg
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
