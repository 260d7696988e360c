package types

import (
	"context"
	"encoding/json"
	"time"

	"github.com/NomadCrew/nomad-crew-payments/errors"
)

type EventType string

const (
	CategorySplitPayment = "SPLIT_PAYMENT"
	CategoryPayment      = "PAYMENT"
	CategoryRefund       = "REFUND"
)

const (
	EventTypeSplitPaymentCreated       EventType = CategorySplitPayment + "_CREATED"
	EventTypeSplitPaymentStatusChanged EventType = CategorySplitPayment + "_STATUS_CHANGED"

	EventTypePaymentProcessing EventType = CategoryPayment + "_PROCESSING"
	EventTypePaymentPaid       EventType = CategoryPayment + "_PAID"
	EventTypePaymentFailed     EventType = CategoryPayment + "_FAILED"
	EventTypePaymentReminder   EventType = CategoryPayment + "_REMINDER"

	EventTypeRefundRequested EventType = CategoryRefund + "_REQUESTED"
	EventTypeRefundUpdated   EventType = CategoryRefund + "_UPDATED"
)

type BaseEvent struct {
	ID             string    `json:"id"`
	Type           EventType `json:"type"`
	SplitPaymentID string    `json:"splitPaymentId"`
	UserID         string    `json:"userId,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	Version        int       `json:"version"`
}

// EventMetadata for tracking and debugging
type EventMetadata struct {
	CorrelationID string            `json:"correlationId,omitempty"`
	Source        string            `json:"source"`
	Tags          map[string]string `json:"tags,omitempty"`
}

type Event struct {
	BaseEvent
	Metadata EventMetadata   `json:"metadata"`
	Payload  json.RawMessage `json:"payload"`
}

func (e Event) Validate() error {
	if e.ID == "" {
		return errors.ValidationFailed("invalid event", "event ID is required")
	}
	if e.Type == "" {
		return errors.ValidationFailed("invalid event", "event type is required")
	}
	if e.SplitPaymentID == "" {
		return errors.ValidationFailed("invalid event", "split payment ID is required")
	}
	if e.Timestamp.IsZero() {
		return errors.ValidationFailed("invalid event", "timestamp is required")
	}
	return nil
}

// EventPublisher fans events out to everyone following a split payment.
type EventPublisher interface {
	Publish(ctx context.Context, splitPaymentID string, event Event) error
	PublishBatch(ctx context.Context, splitPaymentID string, events []Event) error
	Subscribe(ctx context.Context, splitPaymentID string, subscriberID string, filters ...EventType) (<-chan Event, error)
	Unsubscribe(ctx context.Context, splitPaymentID string, subscriberID string) error
}

// EventHandler for processing events in-process
type EventHandler interface {
	HandleEvent(ctx context.Context, event Event) error
	SupportedEvents() []EventType
}

type SplitStatusChangedPayload struct {
	PreviousStatus SplitPaymentStatus `json:"previousStatus"`
	NewStatus      SplitPaymentStatus `json:"newStatus"`
	PaidAmount     int64              `json:"paidAmount"`
	TotalAmount    int64              `json:"totalAmount"`
}

type PaymentStatusPayload struct {
	IndividualPaymentID string                  `json:"individualPaymentId"`
	ParticipantID       string                  `json:"participantId"`
	Status              IndividualPaymentStatus `json:"status"`
	Amount              int64                   `json:"amount"`
	FailureReason       *string                 `json:"failureReason,omitempty"`
}

type ReminderPayload struct {
	IndividualPaymentID string `json:"individualPaymentId"`
	ParticipantID       string `json:"participantId"`
	ReminderCount       int    `json:"reminderCount"`
}

type RefundUpdatedPayload struct {
	RefundRequestID string       `json:"refundRequestId"`
	Status          RefundStatus `json:"status"`
	ProcessedAmount int64        `json:"processedAmount"`
}
