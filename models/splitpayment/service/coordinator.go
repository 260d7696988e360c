package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	apperrors "github.com/NomadCrew/nomad-crew-payments/errors"
	"github.com/NomadCrew/nomad-crew-payments/internal/cache"
	"github.com/NomadCrew/nomad-crew-payments/internal/store"
	"github.com/NomadCrew/nomad-crew-payments/logger"
	"github.com/NomadCrew/nomad-crew-payments/models/splitpayment"
	"github.com/NomadCrew/nomad-crew-payments/pkg/valueobjects"
	"github.com/NomadCrew/nomad-crew-payments/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxEvaluateRounds bounds how often Evaluate re-reads after losing a
// status swap before it settles for the stored status.
const maxEvaluateRounds = 3

// CoordinatorConfig holds the policy and cache settings of the coordinator.
type CoordinatorConfig struct {
	Policy              splitpayment.Policy
	SupportedCurrencies []string
	ViewCacheTTL        time.Duration
	Locale              string
}

// Coordinator owns split payment creation, completion decisions, reminders
// and the read model served to clients.
type Coordinator struct {
	splits   store.SplitPaymentStore
	// views is keyed by split payment id; the cache carries the namespace.
	views    cache.Cache
	notifier Notifier
	jobs     JobQueue
	refunds  RefundRunner
	cfg      CoordinatorConfig
	metrics  *paymentMetrics
	log      *zap.SugaredLogger
	now      func() time.Time
}

var (
	_ SplitPaymentServiceInterface = (*Coordinator)(nil)
	_ SplitEvaluator               = (*Coordinator)(nil)
)

// NewCoordinator wires the coordinator. refunds and jobs are used to process
// the refunds queued when a split is cancelled.
func NewCoordinator(splits store.SplitPaymentStore, views cache.Cache, notifier Notifier, jobs JobQueue, refunds RefundRunner, cfg CoordinatorConfig) *Coordinator {
	if cfg.Locale == "" {
		cfg.Locale = valueobjects.DefaultLocale
	}
	return &Coordinator{
		splits:   splits,
		views:    views,
		notifier: notifier,
		jobs:     jobs,
		refunds:  refunds,
		cfg:      cfg,
		metrics:  newPaymentMetrics(),
		log:      logger.Named("coordinator"),
		now:      time.Now,
	}
}

// CreateSplitPayment validates the input, computes the shares and stores the
// split with all its individual payments in one transaction.
func (c *Coordinator) CreateSplitPayment(ctx context.Context, organizerID string, input types.SplitPaymentCreate) (*types.SplitPaymentView, error) {
	currency, err := valueobjects.ParseCurrency(input.Currency)
	if err != nil {
		return nil, err
	}
	if len(c.cfg.SupportedCurrencies) > 0 && !slices.ContainsFunc(c.cfg.SupportedCurrencies, func(code string) bool {
		return strings.EqualFold(code, string(currency))
	}) {
		return nil, apperrors.InvalidCurrency(input.Currency)
	}

	total, err := valueobjects.NewMoney(input.TotalAmount, currency)
	if err != nil {
		return nil, err
	}

	now := c.now().UTC()
	deadline := now.Add(c.cfg.Policy.DefaultDeadline)
	if input.PaymentDeadline != nil {
		deadline = input.PaymentDeadline.UTC()
	}
	if !deadline.After(now) {
		return nil, apperrors.ValidationFailed("Invalid payment deadline", "deadline must be in the future")
	}

	strategy := input.Strategy
	if strategy == "" {
		strategy = types.SplitStrategyEqual
	}
	participants := splitpayment.OrderParticipants(organizerID, input.OrganizerEmail, input.Participants)
	shares, err := splitpayment.ComputeShares(total, participants, strategy)
	if err != nil {
		return nil, err
	}

	split := &types.SplitPayment{
		ID:               uuid.NewString(),
		BookingID:        input.BookingID,
		OrganizerID:      organizerID,
		TotalAmount:      total.Minor(),
		Currency:         currency.String(),
		ParticipantCount: len(shares),
		PaymentDeadline:  deadline,
		Status:           types.SplitStatusPending,
		Description:      input.Description,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	payments := make([]*types.IndividualPayment, len(shares))
	for i, share := range shares {
		payments[i] = &types.IndividualPayment{
			ID:               uuid.NewString(),
			SplitPaymentID:   split.ID,
			ParticipantID:    share.ParticipantID,
			ParticipantEmail: participants[i].Email,
			Position:         share.Position,
			AmountDue:        share.Amount,
			Status:           types.PaymentStatusPending,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
	}

	if err := c.splits.CreateSplitPayment(ctx, split, payments); err != nil {
		return nil, storeError(err, "Split payment", split.ID)
	}

	c.log.Infow("Split payment created",
		"splitPaymentID", split.ID,
		"bookingID", split.BookingID,
		"organizerID", organizerID,
		"participants", len(payments),
		"strategy", strategy,
		"total", total.String())

	c.notifier.NotifySplitCreated(ctx, split, payments)
	return c.buildView(split, payments, now), nil
}

// Evaluate loads the split, decides its status and writes any change with a
// compare-and-swap. Losing the swap is not an error: the rows are re-read and
// the stored status returned. Only the caller that wins a swap notifies and
// schedules refunds, so repeated or concurrent calls act once.
func (c *Coordinator) Evaluate(ctx context.Context, splitPaymentID string) (*types.SplitPayment, error) {
	split, _, err := c.evaluate(ctx, splitPaymentID)
	return split, err
}

func (c *Coordinator) evaluate(ctx context.Context, splitPaymentID string) (*types.SplitPayment, []*types.IndividualPayment, error) {
	for round := 0; ; round++ {
		split, payments, err := c.load(ctx, splitPaymentID)
		if err != nil {
			return nil, nil, err
		}

		decision := splitpayment.EvaluateCompletion(split, payments, c.now(), c.cfg.Policy)
		if !decision.Changed() {
			return split, payments, nil
		}

		won, refundIDs, err := c.applyDecision(ctx, split, decision)
		if err != nil {
			return nil, nil, err
		}

		if won {
			previous := split.Status
			split.Status = decision.Next
			split.UpdatedAt = c.now().UTC()
			c.afterTransition(ctx, split, previous, decision, refundIDs)
			return split, payments, nil
		}

		c.metrics.casConflicts.WithLabelValues("evaluate").Inc()
		c.log.Debugw("Lost split status swap, re-reading",
			"splitPaymentID", splitPaymentID,
			"expected", decision.Current,
			"wanted", decision.Next,
			"round", round)

		if round+1 >= maxEvaluateRounds {
			split, payments, err := c.load(ctx, splitPaymentID)
			return split, payments, err
		}
	}
}

func (c *Coordinator) applyDecision(ctx context.Context, split *types.SplitPayment, d splitpayment.Decision) (bool, []string, error) {
	if d.Next != types.SplitStatusCancelledInsufficient {
		ok, err := c.splits.CompareAndSetSplitStatus(ctx, split.ID, d.Current, d.Next)
		if err != nil {
			return false, nil, storeError(err, "Split payment", split.ID)
		}
		return ok, nil, nil
	}

	now := c.now().UTC()
	requests := make([]*types.RefundRequest, 0, len(d.RefundPaymentIDs))
	ids := make([]string, 0, len(d.RefundPaymentIDs))
	for _, paymentID := range d.RefundPaymentIDs {
		req := autoRefundRequest(split.ID, paymentID, now)
		requests = append(requests, req)
		ids = append(ids, req.ID)
	}

	ok, err := c.splits.CancelAndQueueRefunds(ctx, split.ID, d.Current, requests)
	if err != nil {
		return false, nil, storeError(err, "Split payment", split.ID)
	}
	return ok, ids, nil
}

// autoRefundRequest is the full refund queued for a payment on a cancelled
// split. Its dedupe key keeps a payment from being queued twice.
func autoRefundRequest(splitPaymentID, paymentID string, now time.Time) *types.RefundRequest {
	dedupe := "auto:" + paymentID
	return &types.RefundRequest{
		ID:                  uuid.NewString(),
		SplitPaymentID:      splitPaymentID,
		IndividualPaymentID: &paymentID,
		RequesterID:         SystemActor,
		ReasonCategory:      types.RefundReasonSplitCancelled,
		AmountType:          types.RefundAmountFull,
		Status:              types.RefundStatusPendingReview,
		DedupeKey:           &dedupe,
		EvidenceKeys:        []string{},
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// RefundLatePayment queues the automatic refund of a payment collected after
// its split was cancelled. Calling it again for the same payment, or for one
// the cancellation already queued, does nothing.
func (c *Coordinator) RefundLatePayment(ctx context.Context, split *types.SplitPayment, paymentID string) error {
	if split.Status != types.SplitStatusCancelledInsufficient {
		return nil
	}
	req := autoRefundRequest(split.ID, paymentID, c.now().UTC())
	queued, err := c.splits.QueueRefund(ctx, req)
	if err != nil {
		return storeError(err, "Refund request", req.ID)
	}
	if !queued {
		return nil
	}

	c.log.Infow("Late payment on cancelled split, refund queued",
		"splitPaymentID", split.ID,
		"individualPaymentID", paymentID,
		"refundRequestID", req.ID)
	c.invalidate(ctx, split.ID)
	c.scheduleRefund(req.ID)
	return nil
}

func (c *Coordinator) afterTransition(ctx context.Context, split *types.SplitPayment, previous types.SplitPaymentStatus, d splitpayment.Decision, refundIDs []string) {
	c.metrics.splitTransitions.WithLabelValues(string(previous), string(split.Status)).Inc()
	c.log.Infow("Split payment status changed",
		"splitPaymentID", split.ID,
		"from", previous,
		"to", split.Status,
		"paidAmount", d.Tally.PaidAmount,
		"paidCount", d.Tally.PaidCount,
		"total", split.TotalAmount,
		"refundsQueued", len(refundIDs))

	c.invalidate(ctx, split.ID)
	c.notifier.NotifySplitStatusChange(ctx, split, previous, d.Tally.PaidAmount)

	for _, id := range refundIDs {
		c.scheduleRefund(id)
	}
}

// scheduleRefund runs an automatic refund in the background. A dropped job
// leaves the request in pending_review, where Retry picks it up.
func (c *Coordinator) scheduleRefund(refundRequestID string) {
	if c.jobs == nil || c.refunds == nil {
		return
	}
	queued := c.jobs.Enqueue("refund:"+refundRequestID, func(ctx context.Context) error {
		_, err := c.refunds.ProcessRefund(ctx, refundRequestID)
		return err
	})
	if !queued {
		c.log.Warnw("Automatic refund not queued, left for retry", "refundRequestID", refundRequestID)
	}
}

// GetSplitPaymentView returns the split with its payments and aggregates.
// Expired splits are evaluated on read, so a view never shows a stale
// non-terminal status after the deadline.
func (c *Coordinator) GetSplitPaymentView(ctx context.Context, splitPaymentID, userID string) (*types.SplitPaymentView, error) {
	var cached types.SplitPaymentView
	hit, err := c.views.Get(ctx, splitPaymentID, &cached)
	if err != nil {
		c.log.Warnw("View cache read failed", "splitPaymentID", splitPaymentID, "error", err)
	}
	if hit && err == nil && c.cacheUsable(&cached) {
		c.metrics.viewCache.WithLabelValues("hit").Inc()
		if !viewVisibleTo(&cached, userID) {
			return nil, apperrors.Unauthorized("Not a participant", fmt.Sprintf("user %s is not part of split payment %s", userID, splitPaymentID))
		}
		return &cached, nil
	}
	c.metrics.viewCache.WithLabelValues("miss").Inc()

	split, payments, err := c.evaluate(ctx, splitPaymentID)
	if err != nil {
		return nil, err
	}
	if !isParticipant(userID, split, payments) {
		return nil, apperrors.Unauthorized("Not a participant", fmt.Sprintf("user %s is not part of split payment %s", userID, splitPaymentID))
	}

	view := c.buildView(split, payments, c.now())
	if err := c.views.Set(ctx, splitPaymentID, view, c.cfg.ViewCacheTTL); err != nil {
		c.log.Warnw("View cache write failed", "splitPaymentID", splitPaymentID, "error", err)
	}
	return view, nil
}

// EvaluateForUser forces an evaluation on behalf of a participant.
func (c *Coordinator) EvaluateForUser(ctx context.Context, splitPaymentID, userID string) (*types.SplitPaymentView, error) {
	split, payments, err := c.evaluate(ctx, splitPaymentID)
	if err != nil {
		return nil, err
	}
	if !isParticipant(userID, split, payments) {
		return nil, apperrors.Unauthorized("Not a participant", fmt.Sprintf("user %s is not part of split payment %s", userID, splitPaymentID))
	}
	c.invalidate(ctx, splitPaymentID)
	return c.buildView(split, payments, c.now()), nil
}

// cacheUsable rejects views that may be stale because the deadline passed
// while the split was still open.
func (c *Coordinator) cacheUsable(v *types.SplitPaymentView) bool {
	return v.Status.IsTerminal() || !v.SplitPayment.DeadlinePassed(c.now())
}

func viewVisibleTo(v *types.SplitPaymentView, userID string) bool {
	if v.OrganizerID == userID {
		return true
	}
	for _, p := range v.Payments {
		if p.ParticipantID == userID {
			return true
		}
	}
	return false
}

// ListForUser returns the user's splits, evaluating those whose deadline
// has passed while they were still open.
func (c *Coordinator) ListForUser(ctx context.Context, userID string) ([]*types.SplitPayment, error) {
	splits, err := c.splits.ListSplitPaymentsForUser(ctx, userID)
	if err != nil {
		return nil, storeError(err, "Split payments", userID)
	}

	now := c.now()
	for i, split := range splits {
		if split.Status.IsTerminal() || !split.DeadlinePassed(now) {
			continue
		}
		evaluated, err := c.Evaluate(ctx, split.ID)
		if err != nil {
			c.log.Warnw("Lazy evaluation failed while listing", "splitPaymentID", split.ID, "error", err)
			continue
		}
		splits[i] = evaluated
	}
	return splits, nil
}

// RequestReminder lets the organizer nudge a participant who has not paid.
// Reminders closer together than the policy cooldown are rejected.
func (c *Coordinator) RequestReminder(ctx context.Context, individualPaymentID, callerID string) (*types.IndividualPayment, error) {
	payment, err := c.splits.GetIndividualPayment(ctx, individualPaymentID)
	if err != nil {
		return nil, storeError(err, "Individual payment", individualPaymentID)
	}
	split, err := c.splits.GetSplitPayment(ctx, payment.SplitPaymentID)
	if err != nil {
		return nil, storeError(err, "Split payment", payment.SplitPaymentID)
	}

	if callerID != split.OrganizerID {
		return nil, apperrors.Unauthorized("Only the organizer can send reminders", fmt.Sprintf("user %s is not the organizer", callerID))
	}
	// Unpaid shares of a completed_partial split are still owed.
	if split.Status == types.SplitStatusCancelledInsufficient {
		return nil, apperrors.InvalidState(string(split.Status), "send a reminder")
	}

	now := c.now().UTC()
	notAfter := now.Add(-c.cfg.Policy.ReminderCooldown)
	if err := c.checkReminder(payment, notAfter); err != nil {
		return nil, err
	}

	updated, err := c.splits.RecordReminder(ctx, individualPaymentID, now, notAfter)
	if err != nil {
		if isConflict(err) {
			// Changed between the read and the write; report what it is now.
			current, getErr := c.splits.GetIndividualPayment(ctx, individualPaymentID)
			if getErr != nil {
				return nil, storeError(getErr, "Individual payment", individualPaymentID)
			}
			if checkErr := c.checkReminder(current, notAfter); checkErr != nil {
				return nil, checkErr
			}
			return nil, apperrors.ReminderTooSoon("another reminder was just sent")
		}
		return nil, storeError(err, "Individual payment", individualPaymentID)
	}

	c.metrics.remindersSent.Inc()
	c.log.Infow("Payment reminder requested",
		"individualPaymentID", updated.ID,
		"splitPaymentID", split.ID,
		"reminderCount", updated.ReminderCount)

	c.invalidate(ctx, split.ID)
	c.notifier.SendReminder(ctx, split, updated)
	return updated, nil
}

func (c *Coordinator) checkReminder(payment *types.IndividualPayment, notAfter time.Time) error {
	if payment.Status != types.PaymentStatusPending {
		return apperrors.InvalidState(string(payment.Status), "send a reminder")
	}
	if payment.LastReminderAt != nil && payment.LastReminderAt.After(notAfter) {
		next := payment.LastReminderAt.Add(c.cfg.Policy.ReminderCooldown)
		return apperrors.ReminderTooSoon(fmt.Sprintf("next reminder allowed after %s", next.UTC().Format(time.RFC3339)))
	}
	return nil
}

// Invalidate drops the cached view of a split payment.
func (c *Coordinator) Invalidate(ctx context.Context, splitPaymentID string) {
	c.invalidate(ctx, splitPaymentID)
}

func (c *Coordinator) invalidate(ctx context.Context, splitPaymentID string) {
	if err := c.views.Delete(ctx, splitPaymentID); err != nil {
		c.log.Warnw("View cache invalidation failed", "splitPaymentID", splitPaymentID, "error", err)
	}
}

func (c *Coordinator) load(ctx context.Context, splitPaymentID string) (*types.SplitPayment, []*types.IndividualPayment, error) {
	split, err := c.splits.GetSplitPayment(ctx, splitPaymentID)
	if err != nil {
		return nil, nil, storeError(err, "Split payment", splitPaymentID)
	}
	payments, err := c.splits.ListIndividualPayments(ctx, splitPaymentID)
	if err != nil {
		return nil, nil, storeError(err, "Split payment", splitPaymentID)
	}
	return split, payments, nil
}

func (c *Coordinator) buildView(split *types.SplitPayment, payments []*types.IndividualPayment, now time.Time) *types.SplitPaymentView {
	tally := splitpayment.TallyPayments(payments)
	view := &types.SplitPaymentView{
		SplitPayment:    *split,
		Payments:        make([]types.IndividualPayment, len(payments)),
		PaidAmount:      tally.PaidAmount,
		PaidCount:       tally.PaidCount,
		ThresholdAmount: c.cfg.Policy.ThresholdAmount(split.TotalAmount),
		ProgressBps:     splitpayment.ProgressBasisPoints(tally.PaidAmount, split.TotalAmount),
		DeadlinePassed:  split.DeadlinePassed(now),
		EvaluatedAt:     now.UTC(),
	}
	for i, p := range payments {
		view.Payments[i] = *p
	}

	currency := valueobjects.Currency(split.Currency)
	if total, err := valueobjects.NewMoney(split.TotalAmount, currency); err == nil {
		view.DisplayTotal = total.Format(c.cfg.Locale)
	}
	if paid, err := valueobjects.NewMoney(tally.PaidAmount, currency); err == nil {
		view.DisplayPaid = paid.Format(c.cfg.Locale)
	}
	return view
}
