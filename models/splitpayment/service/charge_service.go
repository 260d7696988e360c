package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/NomadCrew/nomad-crew-payments/errors"
	"github.com/NomadCrew/nomad-crew-payments/internal/auth"
	"github.com/NomadCrew/nomad-crew-payments/internal/processor"
	"github.com/NomadCrew/nomad-crew-payments/internal/store"
	"github.com/NomadCrew/nomad-crew-payments/logger"
	"github.com/NomadCrew/nomad-crew-payments/pkg/valueobjects"
	"github.com/NomadCrew/nomad-crew-payments/types"
	"go.uber.org/zap"
)

// ChargeService drives one participant's payment through the processor.
type ChargeService struct {
	splits    store.SplitPaymentStore
	processor processor.Processor
	evaluator SplitEvaluator
	notifier  Notifier
	payLinks  *auth.PayLinkSigner
	metrics   *paymentMetrics
	log       *zap.SugaredLogger
	now       func() time.Time
}

var _ ChargeServiceInterface = (*ChargeService)(nil)

func NewChargeService(splits store.SplitPaymentStore, proc processor.Processor, evaluator SplitEvaluator, notifier Notifier, payLinks *auth.PayLinkSigner) *ChargeService {
	return &ChargeService{
		splits:    splits,
		processor: proc,
		evaluator: evaluator,
		notifier:  notifier,
		payLinks:  payLinks,
		metrics:   newPaymentMetrics(),
		log:       logger.Named("charge"),
		now:       time.Now,
	}
}

func chargeIdempotencyKey(paymentID string, attempt int) string {
	return fmt.Sprintf("charge-%s-%d", paymentID, attempt)
}

// InitiateCharge claims the payment and creates a processor intent for its
// share. Every precondition is checked before the processor is called, and
// the claim is a compare-and-swap, so two concurrent calls charge once.
// A passed deadline does not block the charge.
func (s *ChargeService) InitiateCharge(ctx context.Context, individualPaymentID, payerID string) (*types.ChargeHandle, error) {
	payment, err := s.splits.GetIndividualPayment(ctx, individualPaymentID)
	if err != nil {
		return nil, storeError(err, "Individual payment", individualPaymentID)
	}
	if payment.ParticipantID != payerID {
		return nil, apperrors.Unauthorized("Payer does not own this payment", fmt.Sprintf("payment %s belongs to another participant", individualPaymentID))
	}
	if err := chargeableStatus(payment); err != nil {
		return nil, err
	}

	split, err := s.splits.GetSplitPayment(ctx, payment.SplitPaymentID)
	if err != nil {
		return nil, storeError(err, "Split payment", payment.SplitPaymentID)
	}
	if split.Status == types.SplitStatusCancelledInsufficient {
		return nil, apperrors.InvalidState(string(split.Status), "charge a payment")
	}

	claimed, err := s.splits.ClaimPaymentForCharge(ctx, individualPaymentID)
	if err != nil {
		if !isConflict(err) {
			return nil, storeError(err, "Individual payment", individualPaymentID)
		}
		s.metrics.casConflicts.WithLabelValues("claim").Inc()
		current, getErr := s.splits.GetIndividualPayment(ctx, individualPaymentID)
		if getErr != nil {
			return nil, storeError(getErr, "Individual payment", individualPaymentID)
		}
		if statusErr := chargeableStatus(current); statusErr != nil {
			return nil, statusErr
		}
		return nil, apperrors.PaymentInProgress(individualPaymentID)
	}

	s.log.Infow("Charge claimed",
		"individualPaymentID", claimed.ID,
		"splitPaymentID", split.ID,
		"attempt", claimed.AttemptCount,
		"amount", claimed.AmountDue)

	intent, err := s.processor.CreatePaymentIntent(ctx, processor.IntentRequest{
		Amount:         claimed.AmountDue,
		Currency:       split.Currency,
		IdempotencyKey: chargeIdempotencyKey(claimed.ID, claimed.AttemptCount),
		Description:    fmt.Sprintf("Share %d of split payment %s", claimed.Position+1, split.ID),
		ReceiptEmail:   claimed.ParticipantEmail,
		Metadata: map[string]string{
			processor.MetadataIndividualPaymentID: claimed.ID,
			processor.MetadataSplitPaymentID:      split.ID,
		},
	})
	if err != nil {
		s.metrics.chargeAttempts.WithLabelValues("processor_error").Inc()
		reason := processor.FailureMessage(err)
		if _, markErr := s.splits.MarkPaymentFailed(ctx, claimed.ID, reason); markErr != nil {
			s.log.Errorw("Failed to record charge failure", "individualPaymentID", claimed.ID, "error", markErr)
		}
		claimed.Status = types.PaymentStatusFailed
		claimed.FailureReason = &reason
		s.evaluator.Invalidate(ctx, split.ID)
		s.notifier.NotifyPaymentUpdate(ctx, split, claimed)
		return nil, apperrors.ProcessorError(err)
	}

	if err := s.splits.AttachIntent(ctx, claimed.ID, intent.ID); err != nil {
		if !isConflict(err) {
			return nil, storeError(err, "Individual payment", claimed.ID)
		}
		// A callback already settled the payment and stored the intent.
		s.log.Debugw("Intent attach skipped, payment already settled", "individualPaymentID", claimed.ID, "intentID", intent.ID)
	}
	s.metrics.chargeAttempts.WithLabelValues("initiated").Inc()

	claimed.ProcessorIntentID = &intent.ID
	switch intent.Status {
	case processor.IntentSucceeded, processor.IntentFailed, processor.IntentCanceled:
		if _, err := s.applyOutcome(ctx, claimed, intent.ID, intent.Status, intent.FailureReason); err != nil {
			s.log.Warnw("Failed to apply immediate intent outcome", "individualPaymentID", claimed.ID, "error", err)
		}
	default:
		s.evaluator.Invalidate(ctx, split.ID)
		s.notifier.NotifyPaymentUpdate(ctx, split, claimed)
	}

	return &types.ChargeHandle{
		IndividualPaymentID: claimed.ID,
		IntentID:            intent.ID,
		ClientSecret:        intent.ClientSecret,
		Amount:              claimed.AmountDue,
		Currency:            split.Currency,
		AttemptCount:        claimed.AttemptCount,
	}, nil
}

func chargeableStatus(p *types.IndividualPayment) error {
	switch p.Status {
	case types.PaymentStatusPaid:
		return apperrors.AlreadyPaid(p.ID)
	case types.PaymentStatusRefunded:
		return apperrors.AlreadyRefunded(p.ID)
	case types.PaymentStatusProcessing:
		return apperrors.PaymentInProgress(p.ID)
	}
	return nil
}

// HandleWebhook verifies and applies a processor callback. Events this
// service does not act on are acknowledged and ignored.
func (s *ChargeService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	cb, err := s.processor.ParseWebhook(payload, signature)
	if err != nil {
		if errors.Is(err, processor.ErrUnsupportedEvent) {
			s.log.Debugw("Ignoring unsupported webhook event", "error", err)
			return nil
		}
		if errors.Is(err, processor.ErrInvalidSignature) {
			return apperrors.AuthenticationFailed("invalid webhook signature")
		}
		return apperrors.ValidationFailed("Invalid webhook payload", err.Error())
	}
	_, err = s.HandleProcessorCallback(ctx, cb)
	return err
}

// HandleProcessorCallback applies a processor outcome to the payment the
// intent belongs to. Outcomes that were already applied are no-ops.
func (s *ChargeService) HandleProcessorCallback(ctx context.Context, cb *processor.Callback) (*types.IndividualPayment, error) {
	payment, err := s.splits.GetIndividualPaymentByIntent(ctx, cb.IntentID)
	if errors.Is(err, store.ErrNotFound) && cb.PaymentID != "" {
		// The callback can beat AttachIntent; fall back to the id in the intent metadata.
		payment, err = s.splits.GetIndividualPayment(ctx, cb.PaymentID)
	}
	if err != nil {
		return nil, storeError(err, "Individual payment", cb.IntentID)
	}

	s.log.Infow("Processor callback received",
		"eventID", cb.EventID,
		"eventType", cb.EventType,
		"intentID", cb.IntentID,
		"individualPaymentID", payment.ID,
		"outcome", cb.Outcome)

	return s.applyOutcome(ctx, payment, cb.IntentID, cb.Outcome, cb.FailureReason)
}

// SyncPayment reconciles a processing payment with the processor, for
// callbacks that never arrived.
func (s *ChargeService) SyncPayment(ctx context.Context, individualPaymentID, callerID string) (*types.IndividualPayment, error) {
	payment, err := s.splits.GetIndividualPayment(ctx, individualPaymentID)
	if err != nil {
		return nil, storeError(err, "Individual payment", individualPaymentID)
	}
	if callerID != payment.ParticipantID {
		split, err := s.splits.GetSplitPayment(ctx, payment.SplitPaymentID)
		if err != nil {
			return nil, storeError(err, "Split payment", payment.SplitPaymentID)
		}
		if callerID != split.OrganizerID {
			return nil, apperrors.Unauthorized("Not allowed to sync this payment", fmt.Sprintf("user %s", callerID))
		}
	}

	if payment.Status != types.PaymentStatusProcessing || payment.ProcessorIntentID == nil {
		return payment, nil
	}

	intent, err := s.processor.ConfirmPayment(ctx, *payment.ProcessorIntentID)
	if err != nil {
		return nil, apperrors.ProcessorError(err)
	}
	return s.applyOutcome(ctx, payment, intent.ID, intent.Status, intent.FailureReason)
}

func (s *ChargeService) applyOutcome(ctx context.Context, payment *types.IndividualPayment, intentID string, outcome processor.IntentStatus, reason string) (*types.IndividualPayment, error) {
	var applied bool
	var err error

	switch outcome {
	case processor.IntentSucceeded:
		if payment.Status == types.PaymentStatusRefunded {
			return payment, nil
		}
		if payment.Status == types.PaymentStatusPaid {
			// A redelivered callback still queues a refund a failed first
			// delivery may have missed.
			split, err := s.splits.GetSplitPayment(ctx, payment.SplitPaymentID)
			if err != nil {
				return nil, storeError(err, "Split payment", payment.SplitPaymentID)
			}
			if err := s.refundIfCancelled(ctx, split, payment); err != nil {
				return nil, err
			}
			return payment, nil
		}
		applied, err = s.splits.MarkPaymentPaid(ctx, payment.ID, intentID, s.now().UTC())
		if applied {
			s.metrics.chargeAttempts.WithLabelValues("succeeded").Inc()
		}

	case processor.IntentFailed, processor.IntentCanceled:
		if payment.Status != types.PaymentStatusProcessing {
			return payment, nil
		}
		if reason == "" {
			reason = string(outcome)
		}
		applied, err = s.splits.MarkPaymentFailed(ctx, payment.ID, reason)
		if applied {
			s.metrics.chargeAttempts.WithLabelValues("failed").Inc()
		}

	default:
		return payment, nil
	}

	if err != nil {
		return nil, storeError(err, "Individual payment", payment.ID)
	}

	updated, err := s.splits.GetIndividualPayment(ctx, payment.ID)
	if err != nil {
		return nil, storeError(err, "Individual payment", payment.ID)
	}
	if !applied {
		s.log.Debugw("Outcome already applied", "individualPaymentID", payment.ID, "outcome", outcome, "status", updated.Status)
		return updated, nil
	}

	split, err := s.splits.GetSplitPayment(ctx, updated.SplitPaymentID)
	if err != nil {
		return nil, storeError(err, "Split payment", updated.SplitPaymentID)
	}
	s.notifier.NotifyPaymentUpdate(ctx, split, updated)

	if updated.Status == types.PaymentStatusPaid {
		current, err := s.evaluator.Evaluate(ctx, updated.SplitPaymentID)
		if err != nil {
			// The payment is recorded; the next read or retry evaluates again.
			s.log.Errorw("Evaluation after payment failed", "splitPaymentID", updated.SplitPaymentID, "error", err)
			current = split
		}
		// A failure here fails the callback so the processor redelivers it.
		if err := s.refundIfCancelled(ctx, current, updated); err != nil {
			return nil, err
		}
	} else {
		s.evaluator.Invalidate(ctx, updated.SplitPaymentID)
	}
	return updated, nil
}

// refundIfCancelled queues the refund of a payment collected after its split
// was cancelled.
func (s *ChargeService) refundIfCancelled(ctx context.Context, split *types.SplitPayment, payment *types.IndividualPayment) error {
	if split.Status != types.SplitStatusCancelledInsufficient || payment.Status != types.PaymentStatusPaid {
		return nil
	}
	return s.evaluator.RefundLatePayment(ctx, split, payment.ID)
}

// DescribePayLink resolves a signed reminder link to the payment it points at.
func (s *ChargeService) DescribePayLink(ctx context.Context, token string) (*types.PayLinkView, error) {
	if s.payLinks == nil {
		return nil, apperrors.NotFound("Pay link", "disabled")
	}
	claims, err := s.payLinks.Verify(token)
	if err != nil {
		return nil, err
	}

	payment, err := s.splits.GetIndividualPayment(ctx, claims.IndividualPaymentID)
	if err != nil {
		return nil, storeError(err, "Individual payment", claims.IndividualPaymentID)
	}
	if payment.SplitPaymentID != claims.SplitPaymentID || payment.ParticipantID != claims.ParticipantID {
		return nil, apperrors.AuthenticationFailed("pay link does not match payment")
	}
	split, err := s.splits.GetSplitPayment(ctx, payment.SplitPaymentID)
	if err != nil {
		return nil, storeError(err, "Split payment", payment.SplitPaymentID)
	}

	view := &types.PayLinkView{
		IndividualPaymentID: payment.ID,
		SplitPaymentID:      split.ID,
		ParticipantID:       payment.ParticipantID,
		AmountDue:           payment.AmountDue,
		Currency:            split.Currency,
		Status:              payment.Status,
		PaymentDeadline:     split.PaymentDeadline,
	}
	if claims.ExpiresAt != nil {
		view.ExpiresAt = claims.ExpiresAt.Time
	}
	if m, err := valueobjects.NewMoney(payment.AmountDue, valueobjects.Currency(split.Currency)); err == nil {
		view.DisplayAmount = m.Format(valueobjects.DefaultLocale)
	}
	return view, nil
}
