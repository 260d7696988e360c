// Package processor wraps the external payment processor behind a narrow
// contract so the payment services never depend on a vendor SDK directly.
package processor

import (
	"context"
	"errors"
)

// Metadata keys attached to every intent so webhooks can be matched back to a share.
const (
	MetadataIndividualPaymentID = "individual_payment_id"
	MetadataSplitPaymentID      = "split_payment_id"
	MetadataRefundRequestID     = "refund_request_id"
)

var (
	// ErrInvalidSignature is returned when a webhook payload fails verification.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrUnsupportedEvent is returned for webhook events the service does not consume.
	ErrUnsupportedEvent = errors.New("unsupported webhook event")
)

// IntentStatus is the processor-neutral state of a payment intent.
type IntentStatus string

const (
	IntentPending   IntentStatus = "pending"
	IntentSucceeded IntentStatus = "succeeded"
	IntentFailed    IntentStatus = "failed"
	IntentCanceled  IntentStatus = "canceled"
)

// IntentRequest describes a charge of one share.
type IntentRequest struct {
	Amount         int64
	Currency       string
	IdempotencyKey string
	Description    string
	ReceiptEmail   *string
	Metadata       map[string]string
}

type Intent struct {
	ID            string
	ClientSecret  string
	Status        IntentStatus
	FailureReason string
	Metadata      map[string]string
}

type RefundRequest struct {
	IntentID       string
	Amount         int64
	IdempotencyKey string
	Metadata       map[string]string
}

type Refund struct {
	ID     string
	Status string
	Amount int64
}

// Callback is a verified processor notification about an intent.
type Callback struct {
	EventID   string
	EventType string
	IntentID  string
	// PaymentID is read from intent metadata. It lets a callback that arrives
	// before the intent id was stored still find its share.
	PaymentID     string
	Outcome       IntentStatus
	FailureReason string
}

// Processor is the contract the payment services charge and refund through.
type Processor interface {
	CreatePaymentIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	// ConfirmPayment fetches the current state of an intent. Used to reconcile
	// shares whose webhook never arrived.
	ConfirmPayment(ctx context.Context, intentID string) (*Intent, error)
	CreateRefund(ctx context.Context, req RefundRequest) (*Refund, error)
	ParseWebhook(payload []byte, signature string) (*Callback, error)
}
