package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	apperrors "github.com/NomadCrew/nomad-crew-payments/errors"
	"github.com/NomadCrew/nomad-crew-payments/internal/processor"
	"github.com/NomadCrew/nomad-crew-payments/internal/store"
	"github.com/NomadCrew/nomad-crew-payments/logger"
	"github.com/NomadCrew/nomad-crew-payments/models/splitpayment"
	"github.com/NomadCrew/nomad-crew-payments/types"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Allowed MIME types for evidence uploads
var allowedEvidenceTypes = map[string]bool{
	"application/pdf": true,
	"image/jpeg":      true,
	"image/png":       true,
	"image/heic":      true,
	"image/heif":      true,
}

// DefaultMaxEvidenceBytes is the evidence size limit when none is configured (10MB).
const DefaultMaxEvidenceBytes = 10 * 1024 * 1024

var processableStatuses = []types.RefundStatus{
	types.RefundStatusPendingReview,
	types.RefundStatusUnderReview,
	types.RefundStatusProcessingFailed,
}

var safeFilenameRe = regexp.MustCompile(`[^a-zA-Z0-9._\-]`)

// RefundService runs the refund and dispute workflow.
type RefundService struct {
	refunds          store.RefundStore
	splits           store.SplitPaymentStore
	processor        processor.Processor
	notifier         Notifier
	evidence         EvidenceStorage
	views            SplitEvaluator
	admins           map[string]struct{}
	maxEvidenceBytes int64
	metrics          *paymentMetrics
	log              *zap.SugaredLogger
	now              func() time.Time
}

var (
	_ RefundServiceInterface = (*RefundService)(nil)
	_ RefundRunner           = (*RefundService)(nil)
)

// NewRefundService wires the workflow. evidence may be nil when no bucket is
// configured; uploads are then rejected.
func NewRefundService(refunds store.RefundStore, splits store.SplitPaymentStore, proc processor.Processor, notifier Notifier, evidence EvidenceStorage, adminIDs []string, maxEvidenceBytes int64) *RefundService {
	admins := make(map[string]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = struct{}{}
	}
	if maxEvidenceBytes <= 0 {
		maxEvidenceBytes = DefaultMaxEvidenceBytes
	}
	return &RefundService{
		refunds:          refunds,
		splits:           splits,
		processor:        proc,
		notifier:         notifier,
		evidence:         evidence,
		admins:           admins,
		maxEvidenceBytes: maxEvidenceBytes,
		metrics:          newPaymentMetrics(),
		log:              logger.Named("refunds"),
		now:              time.Now,
	}
}

// SetViewInvalidator lets the service drop cached split views once refunds
// change payment statuses. The coordinator is built after this service.
func (s *RefundService) SetViewInvalidator(views SplitEvaluator) {
	s.views = views
}

func (s *RefundService) IsAdmin(userID string) bool {
	_, ok := s.admins[userID]
	return ok
}

func refundIdempotencyKey(refundRequestID, paymentID string) string {
	return fmt.Sprintf("refund-%s-%s", refundRequestID, paymentID)
}

// CreateRefundRequest files a refund request. Participants can only ask for
// their own payment back; the organizer can scope a request to the whole
// split or any one payment.
func (s *RefundService) CreateRefundRequest(ctx context.Context, requesterID string, input types.RefundRequestCreate) (*types.RefundRequestResponse, error) {
	split, payments, err := s.loadSplit(ctx, input.SplitPaymentID)
	if err != nil {
		return nil, err
	}

	if requesterID != split.OrganizerID {
		own := paymentOf(requesterID, payments)
		if own == nil {
			return nil, apperrors.Unauthorized("Not a participant", fmt.Sprintf("user %s is not part of split payment %s", requesterID, split.ID))
		}
		if input.IndividualPaymentID != nil && *input.IndividualPaymentID != own.ID {
			return nil, apperrors.Unauthorized("Participants can only refund their own payment", fmt.Sprintf("payment %s", *input.IndividualPaymentID))
		}
		input.IndividualPaymentID = &own.ID
	} else if input.IndividualPaymentID != nil && !slices.ContainsFunc(payments, func(p *types.IndividualPayment) bool {
		return p.ID == *input.IndividualPaymentID
	}) {
		return nil, apperrors.NotFound("Individual payment", *input.IndividualPaymentID)
	}

	if input.ReasonCategory == types.RefundReasonSplitCancelled {
		return nil, apperrors.ValidationFailed("Invalid reason category", "this reason is reserved for automatic refunds")
	}
	if input.AmountType != types.RefundAmountFull && (input.CustomAmount == nil || *input.CustomAmount <= 0) {
		return nil, apperrors.InvalidAmount("partial and custom refunds need a positive amount")
	}

	now := s.now().UTC()
	req := &types.RefundRequest{
		ID:                  uuid.NewString(),
		SplitPaymentID:      split.ID,
		IndividualPaymentID: input.IndividualPaymentID,
		RequesterID:         requesterID,
		ReasonCategory:      input.ReasonCategory,
		Description:         input.Description,
		AmountType:          input.AmountType,
		Status:              types.RefundStatusPendingReview,
		EvidenceKeys:        []string{},
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if input.AmountType != types.RefundAmountFull {
		req.CustomAmount = input.CustomAmount
	}

	eligibility, err := splitpayment.EvaluateRefundEligibility(req, split, payments)
	if err != nil {
		return nil, err
	}

	if err := s.refunds.CreateRefundRequest(ctx, req); err != nil {
		return nil, storeError(err, "Refund request", req.ID)
	}

	s.log.Infow("Refund requested",
		"refundRequestID", req.ID,
		"splitPaymentID", split.ID,
		"requesterID", requesterID,
		"reason", req.ReasonCategory,
		"amountType", req.AmountType,
		"eligible", eligibility.EligibleAmount)

	s.notifier.NotifyRefundUpdate(ctx, split, req)
	return &types.RefundRequestResponse{RefundRequest: *req, Eligibility: eligibility}, nil
}

// GetRefundRequest returns the request with a fresh eligibility preview.
// The requester, the organizer and admins can read it.
func (s *RefundService) GetRefundRequest(ctx context.Context, refundRequestID, userID string) (*types.RefundRequestResponse, error) {
	req, err := s.refunds.GetRefundRequest(ctx, refundRequestID)
	if err != nil {
		return nil, storeError(err, "Refund request", refundRequestID)
	}
	split, payments, err := s.loadSplit(ctx, req.SplitPaymentID)
	if err != nil {
		return nil, err
	}
	if userID != req.RequesterID && userID != split.OrganizerID && !s.IsAdmin(userID) {
		return nil, apperrors.Unauthorized("Not allowed to view this refund request", fmt.Sprintf("user %s", userID))
	}

	resp := &types.RefundRequestResponse{RefundRequest: *req}
	if !req.Status.IsTerminal() {
		if eligibility, err := splitpayment.EvaluateRefundEligibility(req, split, payments); err == nil {
			resp.Eligibility = eligibility
		}
	}
	return resp, nil
}

// ListRefundRequests lists a split's refund requests for any of its members.
func (s *RefundService) ListRefundRequests(ctx context.Context, splitPaymentID, userID string) ([]*types.RefundRequest, error) {
	split, payments, err := s.loadSplit(ctx, splitPaymentID)
	if err != nil {
		return nil, err
	}
	if !isParticipant(userID, split, payments) && !s.IsAdmin(userID) {
		return nil, apperrors.Unauthorized("Not a participant", fmt.Sprintf("user %s is not part of split payment %s", userID, splitPaymentID))
	}
	requests, err := s.refunds.ListRefundRequests(ctx, splitPaymentID)
	if err != nil {
		return nil, storeError(err, "Refund requests", splitPaymentID)
	}
	return requests, nil
}

// EvaluateRefundEligibility previews what processing the request would refund.
func (s *RefundService) EvaluateRefundEligibility(ctx context.Context, refundRequestID string) (*types.RefundEligibility, error) {
	req, err := s.refunds.GetRefundRequest(ctx, refundRequestID)
	if err != nil {
		return nil, storeError(err, "Refund request", refundRequestID)
	}
	split, payments, err := s.loadSplit(ctx, req.SplitPaymentID)
	if err != nil {
		return nil, err
	}
	return splitpayment.EvaluateRefundEligibility(req, split, payments)
}

// StartReview moves a pending request under review.
func (s *RefundService) StartReview(ctx context.Context, refundRequestID, reviewerID string) (*types.RefundRequest, error) {
	req, split, err := s.authorizeReview(ctx, refundRequestID, reviewerID)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, req, split, "start review",
		[]types.RefundStatus{types.RefundStatusPendingReview},
		store.RefundTransition{Status: types.RefundStatusUnderReview, ReviewerID: &reviewerID})
}

// Deny closes a request without refunding anything.
func (s *RefundService) Deny(ctx context.Context, refundRequestID, reviewerID string, note *string) (*types.RefundRequest, error) {
	req, split, err := s.authorizeReview(ctx, refundRequestID, reviewerID)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, req, split, "deny refund",
		[]types.RefundStatus{types.RefundStatusPendingReview, types.RefundStatusUnderReview},
		store.RefundTransition{Status: types.RefundStatusDenied, ReviewerID: &reviewerID, ReviewNote: note})
}

// Approve lets a reviewer run the refund.
func (s *RefundService) Approve(ctx context.Context, refundRequestID, reviewerID string) (*types.RefundRequest, error) {
	if _, _, err := s.authorizeReview(ctx, refundRequestID, reviewerID); err != nil {
		return nil, err
	}
	return s.ProcessRefund(ctx, refundRequestID)
}

func (s *RefundService) authorizeReview(ctx context.Context, refundRequestID, reviewerID string) (*types.RefundRequest, *types.SplitPayment, error) {
	req, err := s.refunds.GetRefundRequest(ctx, refundRequestID)
	if err != nil {
		return nil, nil, storeError(err, "Refund request", refundRequestID)
	}
	split, err := s.splits.GetSplitPayment(ctx, req.SplitPaymentID)
	if err != nil {
		return nil, nil, storeError(err, "Split payment", req.SplitPaymentID)
	}
	if reviewerID != split.OrganizerID && !s.IsAdmin(reviewerID) {
		return nil, nil, apperrors.Unauthorized("Only the organizer or an admin can review refunds", fmt.Sprintf("user %s", reviewerID))
	}
	return req, split, nil
}

func (s *RefundService) transition(ctx context.Context, req *types.RefundRequest, split *types.SplitPayment, action string, from []types.RefundStatus, update store.RefundTransition) (*types.RefundRequest, error) {
	ok, err := s.refunds.TransitionRefund(ctx, req.ID, from, update)
	if err != nil {
		return nil, storeError(err, "Refund request", req.ID)
	}
	current, err := s.refunds.GetRefundRequest(ctx, req.ID)
	if err != nil {
		return nil, storeError(err, "Refund request", req.ID)
	}
	if !ok {
		if current.Status == update.Status {
			return current, nil
		}
		return nil, apperrors.InvalidState(string(current.Status), action)
	}

	s.log.Infow("Refund request transitioned", "refundRequestID", req.ID, "from", req.Status, "to", current.Status)
	s.notifier.NotifyRefundUpdate(ctx, split, current)
	return current, nil
}

// ProcessRefund charges the eligible amount back through the processor.
//
// An approved request returns as is. Each payment is claimed for this
// request before the processor is called, so overlapping requests never
// refund the same payment; a payment held by another request is skipped.
// Payments this request already refunded are skipped too, and every
// processor call carries refund-<request>-<payment> as idempotency key, so
// retrying after a failure never refunds twice. The request only becomes
// approved_processed once every call has succeeded.
func (s *RefundService) ProcessRefund(ctx context.Context, refundRequestID string) (*types.RefundRequest, error) {
	req, err := s.refunds.GetRefundRequest(ctx, refundRequestID)
	if err != nil {
		return nil, storeError(err, "Refund request", refundRequestID)
	}
	switch req.Status {
	case types.RefundStatusApprovedProcessed:
		return req, nil
	case types.RefundStatusDenied:
		return nil, apperrors.InvalidState(string(req.Status), "process refund")
	}

	split, payments, err := s.loadSplit(ctx, req.SplitPaymentID)
	if err != nil {
		return nil, err
	}
	eligibility, err := splitpayment.EvaluateRefundEligibility(req, split, payments)
	if err != nil {
		return nil, err
	}

	refunded := eligibility.AlreadyRefunded
	for _, alloc := range eligibility.Allocations {
		if alloc.IntentID == "" {
			return nil, s.failRefund(ctx, req, split, refunded,
				fmt.Errorf("payment %s has no processor intent", alloc.IndividualPaymentID))
		}

		claimed, err := s.splits.ClaimPaymentForRefund(ctx, alloc.IndividualPaymentID, req.ID)
		if err != nil {
			return nil, storeError(err, "Individual payment", alloc.IndividualPaymentID)
		}
		if !claimed {
			s.metrics.refundCalls.WithLabelValues("skipped").Inc()
			s.log.Warnw("Payment held by another refund request, skipping",
				"refundRequestID", req.ID,
				"individualPaymentID", alloc.IndividualPaymentID)
			continue
		}

		result, err := s.processor.CreateRefund(ctx, processor.RefundRequest{
			IntentID:       alloc.IntentID,
			Amount:         alloc.Amount,
			IdempotencyKey: refundIdempotencyKey(req.ID, alloc.IndividualPaymentID),
			Metadata: map[string]string{
				processor.MetadataRefundRequestID:     req.ID,
				processor.MetadataIndividualPaymentID: alloc.IndividualPaymentID,
				processor.MetadataSplitPaymentID:      split.ID,
			},
		})
		if err != nil {
			s.metrics.refundCalls.WithLabelValues("failed").Inc()
			return nil, s.failRefund(ctx, req, split, refunded, err)
		}
		s.metrics.refundCalls.WithLabelValues("succeeded").Inc()

		recorded, err := s.splits.MarkPaymentRefunded(ctx, alloc.IndividualPaymentID, req.ID, result.ID, alloc.Amount)
		if err != nil {
			// The processor call is idempotent, so a retry records it again.
			return nil, storeError(err, "Individual payment", alloc.IndividualPaymentID)
		}
		if !recorded {
			// The claim is never released, so only a concurrent run of this
			// same request can have recorded it; that run counts the amount.
			s.log.Warnw("Refund already recorded for payment",
				"refundRequestID", req.ID,
				"individualPaymentID", alloc.IndividualPaymentID,
				"processorRefundID", result.ID)
			continue
		}
		refunded += alloc.Amount

		s.log.Infow("Payment refunded",
			"refundRequestID", req.ID,
			"individualPaymentID", alloc.IndividualPaymentID,
			"processorRefundID", result.ID,
			"amount", alloc.Amount)
	}

	if refunded == 0 {
		return nil, apperrors.NothingToRefund(fmt.Sprintf("payments of refund request %s are held by other requests", req.ID))
	}

	if s.views != nil {
		s.views.Invalidate(ctx, split.ID)
	}
	return s.transition(ctx, req, split, "process refund", processableStatuses,
		store.RefundTransition{Status: types.RefundStatusApprovedProcessed, ProcessedAmount: &refunded})
}

// failRefund records the failure and returns the error for the caller.
func (s *RefundService) failRefund(ctx context.Context, req *types.RefundRequest, split *types.SplitPayment, refunded int64, cause error) error {
	reason := processor.FailureMessage(cause)
	s.log.Warnw("Refund processing failed",
		"refundRequestID", req.ID,
		"splitPaymentID", split.ID,
		"refundedSoFar", refunded,
		"reason", reason)

	if s.views != nil && refunded > 0 {
		s.views.Invalidate(ctx, split.ID)
	}
	ok, err := s.refunds.TransitionRefund(ctx, req.ID, processableStatuses, store.RefundTransition{
		Status:          types.RefundStatusProcessingFailed,
		ProcessedAmount: &refunded,
		FailureReason:   &reason,
	})
	if err != nil {
		s.log.Errorw("Failed to record refund failure", "refundRequestID", req.ID, "error", err)
	} else if ok {
		req.Status = types.RefundStatusProcessingFailed
		req.FailureReason = &reason
		req.ProcessedAmount = refunded
		s.notifier.NotifyRefundUpdate(ctx, split, req)
	}
	return apperrors.ProcessorError(cause)
}

// AttachEvidence stores an evidence file for an open request. The content
// type is sniffed from the bytes; the client's claim is ignored.
func (s *RefundService) AttachEvidence(ctx context.Context, refundRequestID, requesterID, fileName string, file io.Reader) (*types.RefundRequest, error) {
	if s.evidence == nil {
		return nil, apperrors.ValidationFailed("evidence_storage_disabled", "evidence uploads are not configured")
	}
	req, err := s.refunds.GetRefundRequest(ctx, refundRequestID)
	if err != nil {
		return nil, storeError(err, "Refund request", refundRequestID)
	}
	if req.RequesterID != requesterID {
		return nil, apperrors.Unauthorized("Only the requester can attach evidence", fmt.Sprintf("user %s", requesterID))
	}
	if req.Status.IsTerminal() {
		return nil, apperrors.InvalidState(string(req.Status), "attach evidence")
	}

	// Read one byte past the limit to tell "exactly at" from "over".
	data, err := io.ReadAll(io.LimitReader(file, s.maxEvidenceBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read evidence: %w", err)
	}
	if int64(len(data)) > s.maxEvidenceBytes {
		return nil, apperrors.ValidationFailed("file_too_large", fmt.Sprintf("file exceeds maximum of %d bytes", s.maxEvidenceBytes))
	}
	if len(data) == 0 {
		return nil, apperrors.ValidationFailed("empty_file", "evidence file is empty")
	}

	mimeType := mimetype.Detect(data).String()
	if !allowedEvidenceTypes[mimeType] {
		return nil, apperrors.ValidationFailed("invalid_mime_type", fmt.Sprintf("MIME type %s is not allowed. Allowed: pdf, jpeg, png, heic", mimeType))
	}

	key := fmt.Sprintf("refunds/%s/%d_%s", req.ID, s.now().UnixNano(), sanitizeFilename(fileName))
	if err := s.evidence.Save(ctx, key, bytes.NewReader(data), int64(len(data)), mimeType); err != nil {
		return nil, fmt.Errorf("failed to store evidence: %w", err)
	}
	if err := s.refunds.AppendEvidence(ctx, req.ID, key); err != nil {
		if delErr := s.evidence.Delete(ctx, key); delErr != nil {
			s.log.Warnw("Failed to clean up orphaned evidence", "key", key, "error", delErr)
		}
		return nil, storeError(err, "Refund request", req.ID)
	}

	s.log.Infow("Evidence attached", "refundRequestID", req.ID, "key", key, "mimeType", mimeType, "size", len(data))

	updated, err := s.refunds.GetRefundRequest(ctx, req.ID)
	if err != nil {
		return nil, storeError(err, "Refund request", req.ID)
	}
	return updated, nil
}

// EvidenceURL returns a short-lived download link for one evidence file.
func (s *RefundService) EvidenceURL(ctx context.Context, refundRequestID, key, userID string) (string, error) {
	resp, err := s.GetRefundRequest(ctx, refundRequestID, userID)
	if err != nil {
		return "", err
	}
	if s.evidence == nil || !slices.Contains(resp.EvidenceKeys, key) {
		return "", apperrors.NotFound("Evidence", key)
	}
	return s.evidence.PresignGet(ctx, key, 5*time.Minute)
}

func (s *RefundService) loadSplit(ctx context.Context, splitPaymentID string) (*types.SplitPayment, []*types.IndividualPayment, error) {
	split, err := s.splits.GetSplitPayment(ctx, splitPaymentID)
	if err != nil {
		return nil, nil, storeError(err, "Split payment", splitPaymentID)
	}
	payments, err := s.splits.ListIndividualPayments(ctx, splitPaymentID)
	if err != nil {
		return nil, nil, storeError(err, "Split payment", splitPaymentID)
	}
	return split, payments, nil
}

// sanitizeFilename strips any directory and keeps a conservative charset.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = safeFilenameRe.ReplaceAllString(name, "_")
	if name == "" || name == "." || name == ".." || strings.Trim(name, "_") == "" {
		name = "evidence"
	}
	if len(name) > 200 {
		ext := filepath.Ext(name)
		if len(ext) > 20 {
			ext = ""
		}
		name = name[:200-len(ext)] + ext
	}
	return name
}
