package types

import "time"

type RefundStatus string

const (
	RefundStatusPendingReview     RefundStatus = "pending_review"
	RefundStatusUnderReview       RefundStatus = "under_review"
	RefundStatusApprovedProcessed RefundStatus = "approved_processed"
	RefundStatusDenied            RefundStatus = "denied"
	RefundStatusProcessingFailed  RefundStatus = "processing_failed"
)

func (s RefundStatus) IsValid() bool {
	switch s {
	case RefundStatusPendingReview, RefundStatusUnderReview, RefundStatusApprovedProcessed,
		RefundStatusDenied, RefundStatusProcessingFailed:
		return true
	}
	return false
}

// IsTerminal reports whether the request can no longer change.
func (s RefundStatus) IsTerminal() bool {
	return s == RefundStatusApprovedProcessed || s == RefundStatusDenied
}

// CanProcess reports whether ProcessRefund may run from this status.
func (s RefundStatus) CanProcess() bool {
	switch s {
	case RefundStatusPendingReview, RefundStatusUnderReview, RefundStatusProcessingFailed:
		return true
	}
	return false
}

type RefundReason string

const (
	RefundReasonCancellation    RefundReason = "cancellation"
	RefundReasonServiceIssue    RefundReason = "service_issue"
	RefundReasonDuplicateCharge RefundReason = "duplicate_charge"
	RefundReasonSplitCancelled  RefundReason = "split_cancelled_insufficient"
	RefundReasonOther           RefundReason = "other"
)

type RefundAmountType string

const (
	RefundAmountFull    RefundAmountType = "full"
	RefundAmountPartial RefundAmountType = "partial"
	RefundAmountCustom  RefundAmountType = "custom"
)

type RefundRequest struct {
	ID                  string           `json:"id"`
	SplitPaymentID      string           `json:"splitPaymentId"`
	IndividualPaymentID *string          `json:"individualPaymentId,omitempty"`
	RequesterID         string           `json:"requesterId"`
	ReasonCategory      RefundReason     `json:"reasonCategory"`
	Description         *string          `json:"description,omitempty"`
	AmountType          RefundAmountType `json:"amountType"`
	CustomAmount        *int64           `json:"customAmount,omitempty"`
	Status              RefundStatus     `json:"status"`
	ProcessedAmount     int64            `json:"processedAmount"`
	FailureReason       *string          `json:"failureReason,omitempty"`
	ReviewerID          *string          `json:"reviewerId,omitempty"`
	ReviewNote          *string          `json:"reviewNote,omitempty"`
	DedupeKey           *string          `json:"-"`
	EvidenceKeys        []string         `json:"evidenceKeys"`
	CreatedAt           time.Time        `json:"createdAt"`
	UpdatedAt           time.Time        `json:"updatedAt"`
}

// RefundAllocation is the part of an eligible refund charged back to one payment.
type RefundAllocation struct {
	IndividualPaymentID string `json:"individualPaymentId"`
	IntentID            string `json:"-"`
	Amount              int64  `json:"amount"`
}

// RefundEligibility is the outcome of an eligibility check. AlreadyRefunded
// is what earlier attempts of the same request refunded.
type RefundEligibility struct {
	EligibleAmount  int64              `json:"eligibleAmount"`
	PaidInScope     int64              `json:"paidInScope"`
	AlreadyRefunded int64              `json:"alreadyRefunded"`
	Currency        string             `json:"currency"`
	Allocations     []RefundAllocation `json:"allocations"`
}

// Request types

type RefundRequestCreate struct {
	SplitPaymentID      string           `json:"splitPaymentId" binding:"required"`
	IndividualPaymentID *string          `json:"individualPaymentId,omitempty"`
	ReasonCategory      RefundReason     `json:"reasonCategory" binding:"required,oneof=cancellation service_issue duplicate_charge other"`
	Description         *string          `json:"description,omitempty" binding:"omitempty,max=2000"`
	AmountType          RefundAmountType `json:"amountType" binding:"required,oneof=full partial custom"`
	CustomAmount        *int64           `json:"customAmount,omitempty"`
}

type RefundReviewUpdate struct {
	Note *string `json:"note,omitempty" binding:"omitempty,max=2000"`
}

// Response types

type RefundRequestResponse struct {
	RefundRequest
	Eligibility *RefundEligibility `json:"eligibility,omitempty"`
}
