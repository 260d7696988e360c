package service

import (
	"context"
	"io"
	"time"

	"github.com/NomadCrew/nomad-crew-payments/types"
)

// Notifier fans state changes out to email, push and realtime subscribers.
// Every method is fire-and-forget: delivery failures are logged, never returned.
type Notifier interface {
	NotifySplitCreated(ctx context.Context, split *types.SplitPayment, payments []*types.IndividualPayment)
	NotifySplitStatusChange(ctx context.Context, split *types.SplitPayment, previous types.SplitPaymentStatus, paidAmount int64)
	NotifyPaymentUpdate(ctx context.Context, split *types.SplitPayment, payment *types.IndividualPayment)
	SendReminder(ctx context.Context, split *types.SplitPayment, payment *types.IndividualPayment)
	NotifyRefundUpdate(ctx context.Context, split *types.SplitPayment, req *types.RefundRequest)
}

// JobQueue runs work in the background. Enqueue returns false when the job
// was dropped.
type JobQueue interface {
	Enqueue(name string, fn func(ctx context.Context) error) bool
}

// EvidenceStorage keeps refund evidence files.
type EvidenceStorage interface {
	Save(ctx context.Context, key string, body io.ReadSeeker, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// SplitEvaluator re-runs the completion decision for one split payment and
// drops its cached view after a payment changes. RefundLatePayment queues the
// refund of a payment that succeeded after the split was cancelled.
type SplitEvaluator interface {
	Evaluate(ctx context.Context, splitPaymentID string) (*types.SplitPayment, error)
	Invalidate(ctx context.Context, splitPaymentID string)
	RefundLatePayment(ctx context.Context, split *types.SplitPayment, paymentID string) error
}

// RefundRunner executes an approved refund request against the processor.
type RefundRunner interface {
	ProcessRefund(ctx context.Context, refundRequestID string) (*types.RefundRequest, error)
}

// SplitPaymentServiceInterface is what the HTTP layer needs from the coordinator.
type SplitPaymentServiceInterface interface {
	CreateSplitPayment(ctx context.Context, organizerID string, input types.SplitPaymentCreate) (*types.SplitPaymentView, error)
	GetSplitPaymentView(ctx context.Context, splitPaymentID, userID string) (*types.SplitPaymentView, error)
	ListForUser(ctx context.Context, userID string) ([]*types.SplitPayment, error)
	EvaluateForUser(ctx context.Context, splitPaymentID, userID string) (*types.SplitPaymentView, error)
	RequestReminder(ctx context.Context, individualPaymentID, callerID string) (*types.IndividualPayment, error)
}

// ChargeServiceInterface is what the HTTP layer needs from the charge service.
type ChargeServiceInterface interface {
	InitiateCharge(ctx context.Context, individualPaymentID, payerID string) (*types.ChargeHandle, error)
	SyncPayment(ctx context.Context, individualPaymentID, callerID string) (*types.IndividualPayment, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
	DescribePayLink(ctx context.Context, token string) (*types.PayLinkView, error)
}

// RefundServiceInterface is what the HTTP layer needs from the refund workflow.
type RefundServiceInterface interface {
	CreateRefundRequest(ctx context.Context, requesterID string, input types.RefundRequestCreate) (*types.RefundRequestResponse, error)
	GetRefundRequest(ctx context.Context, refundRequestID, userID string) (*types.RefundRequestResponse, error)
	ListRefundRequests(ctx context.Context, splitPaymentID, userID string) ([]*types.RefundRequest, error)
	StartReview(ctx context.Context, refundRequestID, reviewerID string) (*types.RefundRequest, error)
	Deny(ctx context.Context, refundRequestID, reviewerID string, note *string) (*types.RefundRequest, error)
	Approve(ctx context.Context, refundRequestID, reviewerID string) (*types.RefundRequest, error)
	AttachEvidence(ctx context.Context, refundRequestID, requesterID, fileName string, file io.Reader) (*types.RefundRequest, error)
	EvidenceURL(ctx context.Context, refundRequestID, key, userID string) (string, error)
	ExportRefunds(ctx context.Context, w io.Writer, statuses []types.RefundStatus) error
	IsAdmin(userID string) bool
}

// RetryServiceInterface re-enters an operation by its operation id.
type RetryServiceInterface interface {
	Retry(ctx context.Context, operationID, callerID string) (*types.RetryResult, error)
}
