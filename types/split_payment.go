package types

import "time"

type SplitPaymentStatus string

const (
	SplitStatusPending               SplitPaymentStatus = "pending"
	SplitStatusPartiallyPaid         SplitPaymentStatus = "partially_paid"
	SplitStatusCompleted             SplitPaymentStatus = "completed"
	SplitStatusCompletedPartial      SplitPaymentStatus = "completed_partial"
	SplitStatusCancelledInsufficient SplitPaymentStatus = "cancelled_insufficient"
)

// IsTerminal reports whether no further transition is allowed.
func (s SplitPaymentStatus) IsTerminal() bool {
	switch s {
	case SplitStatusCompleted, SplitStatusCompletedPartial, SplitStatusCancelledInsufficient:
		return true
	}
	return false
}

func (s SplitPaymentStatus) IsValid() bool {
	switch s {
	case SplitStatusPending, SplitStatusPartiallyPaid, SplitStatusCompleted,
		SplitStatusCompletedPartial, SplitStatusCancelledInsufficient:
		return true
	}
	return false
}

// CanTransitionTo enforces monotonic progress: pending -> partially_paid -> terminal.
func (s SplitPaymentStatus) CanTransitionTo(next SplitPaymentStatus) bool {
	if s.IsTerminal() || s == next {
		return false
	}
	if s == SplitStatusPartiallyPaid && next == SplitStatusPending {
		return false
	}
	return next.IsValid()
}

type IndividualPaymentStatus string

const (
	PaymentStatusPending    IndividualPaymentStatus = "pending"
	PaymentStatusProcessing IndividualPaymentStatus = "processing"
	PaymentStatusPaid       IndividualPaymentStatus = "paid"
	PaymentStatusFailed     IndividualPaymentStatus = "failed"
	PaymentStatusRefunded   IndividualPaymentStatus = "refunded"
)

func (s IndividualPaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusProcessing, PaymentStatusPaid,
		PaymentStatusFailed, PaymentStatusRefunded:
		return true
	}
	return false
}

// SplitStrategy selects how the total is divided among participants.
type SplitStrategy string

const (
	SplitStrategyEqual    SplitStrategy = "equal"
	SplitStrategyCustom   SplitStrategy = "custom"
	SplitStrategyWeighted SplitStrategy = "weighted"
)

type SplitPayment struct {
	ID               string             `json:"id"`
	BookingID        string             `json:"bookingId"`
	OrganizerID      string             `json:"organizerId"`
	TotalAmount      int64              `json:"totalAmount"`
	Currency         string             `json:"currency"`
	ParticipantCount int                `json:"participantCount"`
	PaymentDeadline  time.Time          `json:"paymentDeadline"`
	Status           SplitPaymentStatus `json:"status"`
	Description      *string            `json:"description,omitempty"`
	CreatedAt        time.Time          `json:"createdAt"`
	UpdatedAt        time.Time          `json:"updatedAt"`
}

// DeadlinePassed reports whether now is at or after the payment deadline.
func (s *SplitPayment) DeadlinePassed(now time.Time) bool {
	return !now.Before(s.PaymentDeadline)
}

type IndividualPayment struct {
	ID                string                  `json:"id"`
	SplitPaymentID    string                  `json:"splitPaymentId"`
	ParticipantID     string                  `json:"participantId"`
	ParticipantEmail  *string                 `json:"-"`
	Position          int                     `json:"position"`
	AmountDue         int64                   `json:"amountDue"`
	Status            IndividualPaymentStatus `json:"status"`
	ProcessorIntentID *string                 `json:"processorIntentId,omitempty"`
	AttemptCount      int                     `json:"attemptCount"`
	FailureReason     *string                 `json:"failureReason,omitempty"`
	PaidAt            *time.Time              `json:"paidAt,omitempty"`
	ReminderCount     int                     `json:"reminderCount"`
	LastReminderAt    *time.Time              `json:"lastReminderAt,omitempty"`
	RefundedAmount    int64                   `json:"refundedAmount"`
	RefundRequestID   *string                 `json:"refundRequestId,omitempty"`
	ProcessorRefundID *string                 `json:"-"`
	CreatedAt         time.Time               `json:"createdAt"`
	UpdatedAt         time.Time               `json:"updatedAt"`
}

// Participant is one payer in a new split payment. Position follows the
// order the participant joined; the organizer is always first.
type Participant struct {
	UserID string  `json:"userId" binding:"required"`
	Email  *string `json:"email,omitempty" binding:"omitempty,email"`
	// Amount is required for the custom strategy, in minor units.
	Amount *int64 `json:"amount,omitempty"`
	// Weight is required for the weighted strategy.
	Weight *int64 `json:"weight,omitempty"`
}

// Share is a computed amount for one participant.
type Share struct {
	ParticipantID string `json:"participantId"`
	Position      int    `json:"position"`
	Amount        int64  `json:"amount"`
}

// Request types

type SplitPaymentCreate struct {
	BookingID       string        `json:"bookingId" binding:"required"`
	TotalAmount     int64         `json:"totalAmount"`
	Currency        string        `json:"currency" binding:"required,len=3"`
	PaymentDeadline *time.Time    `json:"paymentDeadline,omitempty"`
	Strategy        SplitStrategy `json:"strategy,omitempty" binding:"omitempty,oneof=equal custom weighted"`
	Participants    []Participant `json:"participants"`
	OrganizerEmail  *string       `json:"organizerEmail,omitempty" binding:"omitempty,email"`
	Description     *string       `json:"description,omitempty" binding:"omitempty,max=500"`
}

// ChargeHandle is returned to the client to confirm the charge with the processor SDK.
type ChargeHandle struct {
	IndividualPaymentID string `json:"individualPaymentId"`
	IntentID            string `json:"intentId"`
	ClientSecret        string `json:"clientSecret"`
	Amount              int64  `json:"amount"`
	Currency            string `json:"currency"`
	AttemptCount        int    `json:"attemptCount"`
}

// Response types

// SplitPaymentView is the read model served to clients.
type SplitPaymentView struct {
	SplitPayment
	Payments        []IndividualPayment `json:"payments"`
	PaidAmount      int64               `json:"paidAmount"`
	PaidCount       int                 `json:"paidCount"`
	ThresholdAmount int64               `json:"thresholdAmount"`
	ProgressBps     int64               `json:"progressBps"`
	DisplayTotal    string              `json:"displayTotal"`
	DisplayPaid     string              `json:"displayPaid"`
	DeadlinePassed  bool                `json:"deadlinePassed"`
	EvaluatedAt     time.Time           `json:"evaluatedAt"`
}

// PayLinkView is what a signed reminder link resolves to. It carries no
// secrets; the payer still signs in to charge.
type PayLinkView struct {
	IndividualPaymentID string                  `json:"individualPaymentId"`
	SplitPaymentID      string                  `json:"splitPaymentId"`
	ParticipantID       string                  `json:"participantId"`
	AmountDue           int64                   `json:"amountDue"`
	Currency            string                  `json:"currency"`
	DisplayAmount       string                  `json:"displayAmount"`
	Status              IndividualPaymentStatus `json:"status"`
	PaymentDeadline     time.Time               `json:"paymentDeadline"`
	ExpiresAt           time.Time               `json:"expiresAt"`
}

// RetryResult is returned by the retry entry point. Result holds the
// re-entered operation's own response.
type RetryResult struct {
	OperationID string `json:"operationId"`
	Kind        string `json:"kind"`
	Result      any    `json:"result"`
}
