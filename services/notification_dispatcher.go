package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/NomadCrew/nomad-crew-payments/internal/auth"
	"github.com/NomadCrew/nomad-crew-payments/internal/events"
	"github.com/NomadCrew/nomad-crew-payments/internal/notification"
	"github.com/NomadCrew/nomad-crew-payments/logger"
	paymentsvc "github.com/NomadCrew/nomad-crew-payments/models/splitpayment/service"
	"github.com/NomadCrew/nomad-crew-payments/pkg/valueobjects"
	"github.com/NomadCrew/nomad-crew-payments/types"
	"go.uber.org/zap"
)

const eventSource = "split_payment_service"

// PaymentLister resolves the participants of a split payment.
type PaymentLister interface {
	ListIndividualPayments(ctx context.Context, splitPaymentID string) ([]*types.IndividualPayment, error)
}

// PushSender delivers push notifications. Implemented by NotificationFacadeService.
type PushSender interface {
	SendPaymentReminder(ctx context.Context, userID string, data notification.PaymentReminderData) error
	SendSplitStatus(ctx context.Context, userIDs []string, data notification.SplitStatusData, priority notification.Priority) error
	SendRefundUpdate(ctx context.Context, userID string, data notification.RefundUpdateData) error
}

// StatusMirror keeps an external copy of split status. Implemented by SupabaseService.
type StatusMirror interface {
	MirrorStatus(ctx context.Context, row PaymentStatusRow) error
}

type NotificationDispatcherConfig struct {
	FrontendURL    string
	Locale         string
	PublishTimeout time.Duration
}

// DeliveryQueue runs notification deliveries in the background. A failed
// delivery may run again: push and feed rows are keyed so repeats collapse,
// an email whose send timed out after acceptance can arrive twice.
type DeliveryQueue interface {
	EnqueueDelivery(name string, fn func(ctx context.Context) error) bool
}

// NotificationDispatcher implements the split payment Notifier. Realtime
// events are published inline; email, push and the feed mirror run on the
// job queue.
type NotificationDispatcher struct {
	jobs      DeliveryQueue
	payments  PaymentLister
	publisher types.EventPublisher
	email     types.EmailService
	push      PushSender
	mirror    StatusMirror
	payLinks  *auth.PayLinkSigner
	cfg       NotificationDispatcherConfig
	log       *zap.SugaredLogger
}

var _ paymentsvc.Notifier = (*NotificationDispatcher)(nil)

// NewNotificationDispatcher wires the delivery channels. email, push and
// mirror may be nil.
func NewNotificationDispatcher(
	cfg NotificationDispatcherConfig,
	jobs DeliveryQueue,
	payments PaymentLister,
	publisher types.EventPublisher,
	email types.EmailService,
	push PushSender,
	mirror StatusMirror,
	payLinks *auth.PayLinkSigner,
) *NotificationDispatcher {
	if cfg.Locale == "" {
		cfg.Locale = valueobjects.DefaultLocale
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	return &NotificationDispatcher{
		jobs:      jobs,
		payments:  payments,
		publisher: publisher,
		email:     email,
		push:      push,
		mirror:    mirror,
		payLinks:  payLinks,
		cfg:       cfg,
		log:       logger.Named("notifier"),
	}
}

func (d *NotificationDispatcher) NotifySplitCreated(ctx context.Context, split *types.SplitPayment, payments []*types.IndividualPayment) {
	d.publish(ctx, types.EventTypeSplitPaymentCreated, split.ID, split.OrganizerID, split)
	d.mirrorStatus(split, 0, types.EventTypeSplitPaymentCreated)

	var recipients []string
	for _, p := range payments {
		if p.ParticipantID != split.OrganizerID {
			recipients = append(recipients, p.ParticipantID)
		}
	}
	if len(recipients) == 0 || d.push == nil {
		return
	}

	data := notification.SplitStatusData{
		SplitPaymentID: split.ID,
		Status:         string(split.Status),
		Message:        fmt.Sprintf("A group payment of %s was created. Pay your share by %s.", d.display(split.TotalAmount, split.Currency), split.PaymentDeadline.Format("Jan 2, 2006")),
	}
	d.enqueue("split_created_push", func(ctx context.Context) error {
		return d.push.SendSplitStatus(ctx, recipients, data, notification.PriorityMedium)
	})
}

func (d *NotificationDispatcher) NotifySplitStatusChange(ctx context.Context, split *types.SplitPayment, previous types.SplitPaymentStatus, paidAmount int64) {
	d.publish(ctx, types.EventTypeSplitPaymentStatusChanged, split.ID, "", types.SplitStatusChangedPayload{
		PreviousStatus: previous,
		NewStatus:      split.Status,
		PaidAmount:     paidAmount,
		TotalAmount:    split.TotalAmount,
	})
	d.mirrorStatus(split, paidAmount, types.EventTypeSplitPaymentStatusChanged)

	snapshot := *split
	d.enqueue("split_status_delivery", func(ctx context.Context) error {
		payments, err := d.payments.ListIndividualPayments(ctx, snapshot.ID)
		if err != nil {
			return fmt.Errorf("list participants: %w", err)
		}

		statusText := splitStatusText(snapshot.Status)
		if d.push != nil {
			userIDs := make([]string, 0, len(payments))
			for _, p := range payments {
				userIDs = append(userIDs, p.ParticipantID)
			}
			priority := notification.PriorityMedium
			if snapshot.Status.IsTerminal() {
				priority = notification.PriorityHigh
			}
			if err := d.push.SendSplitStatus(ctx, userIDs, notification.SplitStatusData{
				SplitPaymentID: snapshot.ID,
				Status:         string(snapshot.Status),
				Message:        statusText,
			}, priority); err != nil {
				d.log.Warnw("Split status push incomplete", "splitPaymentID", snapshot.ID, "error", err)
			}
		}

		if d.email == nil {
			return nil
		}
		for _, p := range payments {
			if p.ParticipantEmail == nil {
				continue
			}
			data := map[string]interface{}{
				"StatusText":  statusText,
				"PaidAmount":  d.display(paidAmount, snapshot.Currency),
				"TotalAmount": d.display(snapshot.TotalAmount, snapshot.Currency),
				"Refunding":   snapshot.Status == types.SplitStatusCancelledInsufficient && p.Status == types.PaymentStatusPaid,
			}
			if err := d.email.SendEmail(ctx, types.EmailData{
				To:           *p.ParticipantEmail,
				Subject:      "Group payment update",
				Template:     types.EmailTemplateSplitStatus,
				TemplateData: data,
			}); err != nil {
				d.log.Warnw("Split status email failed",
					"splitPaymentID", snapshot.ID,
					"to", logger.MaskEmail(*p.ParticipantEmail),
					"error", err)
			}
		}
		return nil
	})
}

func (d *NotificationDispatcher) NotifyPaymentUpdate(ctx context.Context, split *types.SplitPayment, payment *types.IndividualPayment) {
	eventType := types.EventTypePaymentProcessing
	switch payment.Status {
	case types.PaymentStatusPaid:
		eventType = types.EventTypePaymentPaid
	case types.PaymentStatusFailed:
		eventType = types.EventTypePaymentFailed
	}
	d.publish(ctx, eventType, split.ID, payment.ParticipantID, types.PaymentStatusPayload{
		IndividualPaymentID: payment.ID,
		ParticipantID:       payment.ParticipantID,
		Status:              payment.Status,
		Amount:              payment.AmountDue,
		FailureReason:       payment.FailureReason,
	})

	if d.mirror == nil || payment.Status != types.PaymentStatusPaid {
		return
	}
	snapshot := *split
	d.enqueue("payment_feed_mirror", func(ctx context.Context) error {
		payments, err := d.payments.ListIndividualPayments(ctx, snapshot.ID)
		if err != nil {
			return fmt.Errorf("list participants: %w", err)
		}
		var paid int64
		for _, p := range payments {
			if p.Status == types.PaymentStatusPaid {
				paid += p.AmountDue
			}
		}
		return d.mirror.MirrorStatus(ctx, StatusRowFor(&snapshot, paid, eventType))
	})
}

func (d *NotificationDispatcher) SendReminder(ctx context.Context, split *types.SplitPayment, payment *types.IndividualPayment) {
	d.publish(ctx, types.EventTypePaymentReminder, split.ID, payment.ParticipantID, types.ReminderPayload{
		IndividualPaymentID: payment.ID,
		ParticipantID:       payment.ParticipantID,
		ReminderCount:       payment.ReminderCount,
	})

	payURL := d.payURL(split, payment)
	amount := d.display(payment.AmountDue, split.Currency)
	deadline := split.PaymentDeadline.UTC().Format("Jan 2, 2006 15:04 MST")
	splitID, paymentID, participantID := split.ID, payment.ID, payment.ParticipantID
	reminderCount := payment.ReminderCount
	var email string
	if payment.ParticipantEmail != nil {
		email = *payment.ParticipantEmail
	}

	d.enqueue("payment_reminder", func(ctx context.Context) error {
		if d.push != nil {
			if err := d.push.SendPaymentReminder(ctx, participantID, notification.PaymentReminderData{
				SplitPaymentID:      splitID,
				IndividualPaymentID: paymentID,
				AmountDisplay:       amount,
				Deadline:            deadline,
				PayURL:              payURL,
				ReminderCount:       reminderCount,
			}); err != nil {
				d.log.Warnw("Reminder push failed", "individualPaymentID", paymentID, "error", err)
			}
		}
		if d.email == nil || email == "" {
			return nil
		}
		return d.email.SendEmail(ctx, types.EmailData{
			To:       email,
			Subject:  "Reminder: your share of the group booking is due",
			Template: types.EmailTemplateReminder,
			TemplateData: map[string]interface{}{
				"AmountDue": amount,
				"Deadline":  deadline,
				"PayURL":    payURL,
			},
			QRCodeURL: payURL,
		})
	})
}

func (d *NotificationDispatcher) NotifyRefundUpdate(ctx context.Context, split *types.SplitPayment, req *types.RefundRequest) {
	eventType := types.EventTypeRefundUpdated
	if req.Status == types.RefundStatusPendingReview {
		eventType = types.EventTypeRefundRequested
	}
	d.publish(ctx, eventType, split.ID, req.RequesterID, types.RefundUpdatedPayload{
		RefundRequestID: req.ID,
		Status:          req.Status,
		ProcessedAmount: req.ProcessedAmount,
	})

	snapshot := *req
	currency := split.Currency
	d.enqueue("refund_update_delivery", func(ctx context.Context) error {
		payments, err := d.payments.ListIndividualPayments(ctx, snapshot.SplitPaymentID)
		if err != nil {
			return fmt.Errorf("list participants: %w", err)
		}
		recipient := refundRecipient(&snapshot, payments)
		if recipient == nil {
			return nil
		}

		var amount string
		if snapshot.ProcessedAmount > 0 {
			amount = d.display(snapshot.ProcessedAmount, currency)
		}
		if d.push != nil {
			if err := d.push.SendRefundUpdate(ctx, recipient.ParticipantID, notification.RefundUpdateData{
				RefundRequestID: snapshot.ID,
				SplitPaymentID:  snapshot.SplitPaymentID,
				Status:          string(snapshot.Status),
				AmountDisplay:   amount,
			}); err != nil {
				d.log.Warnw("Refund push failed", "refundRequestID", snapshot.ID, "error", err)
			}
		}
		if d.email == nil || recipient.ParticipantEmail == nil {
			return nil
		}
		data := map[string]interface{}{
			"StatusText": refundStatusText(snapshot.Status),
			"RefundID":   snapshot.ID,
		}
		if amount != "" {
			data["Amount"] = amount
		}
		if snapshot.ReviewNote != nil {
			data["Note"] = *snapshot.ReviewNote
		}
		return d.email.SendEmail(ctx, types.EmailData{
			To:           *recipient.ParticipantEmail,
			Subject:      "Refund request update",
			Template:     types.EmailTemplateRefundUpdate,
			TemplateData: data,
		})
	})
}

func (d *NotificationDispatcher) publish(ctx context.Context, eventType types.EventType, splitPaymentID, userID string, payload any) {
	if d.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, d.cfg.PublishTimeout)
	defer cancel()
	if err := events.PublishEventWithContext(ctx, d.publisher, eventType, splitPaymentID, userID, payload, eventSource); err != nil {
		d.log.Warnw("Failed to publish event",
			"type", eventType,
			"splitPaymentID", splitPaymentID,
			"error", err)
	}
}

func (d *NotificationDispatcher) mirrorStatus(split *types.SplitPayment, paidAmount int64, eventType types.EventType) {
	if d.mirror == nil {
		return
	}
	row := StatusRowFor(split, paidAmount, eventType)
	d.enqueue("status_feed_mirror", func(ctx context.Context) error {
		return d.mirror.MirrorStatus(ctx, row)
	})
}

func (d *NotificationDispatcher) enqueue(name string, fn func(ctx context.Context) error) {
	if !d.jobs.EnqueueDelivery(name, fn) {
		d.log.Warnw("Notification job dropped", "job", name)
	}
}

func (d *NotificationDispatcher) payURL(split *types.SplitPayment, payment *types.IndividualPayment) string {
	base := strings.TrimSuffix(d.cfg.FrontendURL, "/")
	if d.payLinks == nil {
		return fmt.Sprintf("%s/split-payments/%s", base, split.ID)
	}
	token, err := d.payLinks.Sign(payment.ID, split.ID, payment.ParticipantID)
	if err != nil {
		d.log.Warnw("Failed to sign pay link", "individualPaymentID", payment.ID, "error", err)
		return fmt.Sprintf("%s/split-payments/%s", base, split.ID)
	}
	return fmt.Sprintf("%s/pay/%s", base, token)
}

func (d *NotificationDispatcher) display(amount int64, currency string) string {
	m, err := valueobjects.NewMoney(amount, valueobjects.Currency(currency))
	if err != nil {
		return fmt.Sprintf("%d %s", amount, currency)
	}
	return m.Format(d.cfg.Locale)
}

// refundRecipient is the requester, or for automatic refunds the payer of
// the refunded payment.
func refundRecipient(req *types.RefundRequest, payments []*types.IndividualPayment) *types.IndividualPayment {
	for _, p := range payments {
		if req.RequesterID != paymentsvc.SystemActor && p.ParticipantID == req.RequesterID {
			return p
		}
		if req.RequesterID == paymentsvc.SystemActor && req.IndividualPaymentID != nil && p.ID == *req.IndividualPaymentID {
			return p
		}
	}
	return nil
}

func splitStatusText(status types.SplitPaymentStatus) string {
	switch status {
	case types.SplitStatusPartiallyPaid:
		return "Payments have started coming in."
	case types.SplitStatusCompleted:
		return "Everyone has paid. The booking is fully funded."
	case types.SplitStatusCompletedPartial:
		return "The deadline has passed and enough was collected to keep the booking."
	case types.SplitStatusCancelledInsufficient:
		return "The deadline has passed without enough payments. The booking is cancelled and payments will be refunded."
	default:
		return "Waiting for payments."
	}
}

func refundStatusText(status types.RefundStatus) string {
	switch status {
	case types.RefundStatusPendingReview:
		return "Your refund request was received."
	case types.RefundStatusUnderReview:
		return "Your refund request is being reviewed."
	case types.RefundStatusApprovedProcessed:
		return "Your refund has been processed."
	case types.RefundStatusDenied:
		return "Your refund request was denied."
	case types.RefundStatusProcessingFailed:
		return "We could not process your refund yet. We will try again."
	default:
		return string(status)
	}
}
