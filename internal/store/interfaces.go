package store

import (
	"context"
	"time"

	"github.com/NomadCrew/nomad-crew-payments/types"
)

// SplitPaymentStore persists split payments and their individual payments.
// Every status write is conditional on the status the caller last observed,
// so concurrent callers cannot move a row backwards or twice.
type SplitPaymentStore interface {
	// CreateSplitPayment inserts the split payment and all its shares atomically.
	CreateSplitPayment(ctx context.Context, split *types.SplitPayment, payments []*types.IndividualPayment) error
	GetSplitPayment(ctx context.Context, id string) (*types.SplitPayment, error)
	// ListSplitPaymentsForUser returns splits the user organizes or participates in.
	ListSplitPaymentsForUser(ctx context.Context, userID string) ([]*types.SplitPayment, error)

	GetIndividualPayment(ctx context.Context, id string) (*types.IndividualPayment, error)
	GetIndividualPaymentByIntent(ctx context.Context, intentID string) (*types.IndividualPayment, error)
	// ListIndividualPayments returns the shares ordered by position.
	ListIndividualPayments(ctx context.Context, splitPaymentID string) ([]*types.IndividualPayment, error)

	// CompareAndSetSplitStatus writes next only if the row still has expected.
	CompareAndSetSplitStatus(ctx context.Context, id string, expected, next types.SplitPaymentStatus) (bool, error)
	// CancelAndQueueRefunds moves the split to cancelled_insufficient and inserts
	// the refund requests in one transaction. Requests whose dedupe key exists are skipped.
	CancelAndQueueRefunds(ctx context.Context, id string, expected types.SplitPaymentStatus, refunds []*types.RefundRequest) (bool, error)
	// QueueRefund inserts one refund request unless its dedupe key exists.
	// Reports whether the row was inserted.
	QueueRefund(ctx context.Context, req *types.RefundRequest) (bool, error)

	// ClaimPaymentForCharge moves a pending or failed payment to processing and
	// increments its attempt count. Returns ErrConflict when the row is in any other state.
	ClaimPaymentForCharge(ctx context.Context, id string) (*types.IndividualPayment, error)
	AttachIntent(ctx context.Context, id, intentID string) error
	// MarkPaymentPaid moves processing or failed to paid. intentID fills a
	// missing intent id when the callback raced AttachIntent.
	MarkPaymentPaid(ctx context.Context, id, intentID string, paidAt time.Time) (bool, error)
	// MarkPaymentFailed moves processing to failed.
	MarkPaymentFailed(ctx context.Context, id string, reason string) (bool, error)
	// RecordReminder bumps the reminder count of a pending payment whose last
	// reminder is older than notAfter. Returns ErrConflict otherwise.
	RecordReminder(ctx context.Context, id string, at, notAfter time.Time) (*types.IndividualPayment, error)
	// ClaimPaymentForRefund binds a paid payment to one refund request before
	// the processor is called. The claim succeeds when the payment is unclaimed
	// or already held by the same request, and is never released.
	ClaimPaymentForRefund(ctx context.Context, id, refundRequestID string) (bool, error)
	// MarkPaymentRefunded moves paid to refunded and records the refund. Only
	// the request holding the claim, or any request on an unclaimed row, wins.
	MarkPaymentRefunded(ctx context.Context, id, refundRequestID, processorRefundID string, amount int64) (bool, error)
}

// RefundTransition carries the fields written with a refund status change.
// Nil fields keep their stored value.
type RefundTransition struct {
	Status          types.RefundStatus
	ProcessedAmount *int64
	FailureReason   *string
	ReviewerID      *string
	ReviewNote      *string
}

// RefundStore persists refund requests.
type RefundStore interface {
	CreateRefundRequest(ctx context.Context, req *types.RefundRequest) error
	GetRefundRequest(ctx context.Context, id string) (*types.RefundRequest, error)
	ListRefundRequests(ctx context.Context, splitPaymentID string) ([]*types.RefundRequest, error)
	// ListRefundRequestsByStatus returns every request when statuses is empty.
	ListRefundRequestsByStatus(ctx context.Context, statuses []types.RefundStatus) ([]*types.RefundRequest, error)
	// TransitionRefund applies update only if the current status is one of from.
	TransitionRefund(ctx context.Context, id string, from []types.RefundStatus, update RefundTransition) (bool, error)
	AppendEvidence(ctx context.Context, id, key string) error
}
