package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/NomadCrew/nomad-crew-payments/config"
	"github.com/NomadCrew/nomad-crew-payments/internal/notification"
	"github.com/NomadCrew/nomad-crew-payments/logger"
	"go.uber.org/zap"
)

// NotificationFacadeService is the PushSender backed by the notification
// facade. A disabled service accepts every call and sends nothing.
type NotificationFacadeService struct {
	client  *notification.Client
	enabled bool
	log     *zap.SugaredLogger
}

var _ PushSender = (*NotificationFacadeService)(nil)

// NewNotificationFacadeService creates a new notification service. httpClient
// may be nil.
func NewNotificationFacadeService(cfg *config.NotificationConfig, httpClient *http.Client) *NotificationFacadeService {
	log := logger.Named("push")

	if !cfg.Enabled {
		log.Info("Push notifications disabled")
		return &NotificationFacadeService{log: log}
	}

	if httpClient == nil {
		httpClient = &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second}
	}

	return &NotificationFacadeService{
		client:  notification.NewClient(cfg.APIUrl, cfg.APIKey, notification.WithHTTPClient(httpClient)),
		enabled: true,
		log:     log,
	}
}

// IsEnabled returns whether notifications are enabled
func (s *NotificationFacadeService) IsEnabled() bool {
	return s.enabled
}

func (s *NotificationFacadeService) deliver(kind, userID string, ref []interface{}, send func() (*notification.Response, error)) error {
	fields := append([]interface{}{"kind", kind, "userId", userID}, ref...)

	resp, err := send()
	if err != nil {
		s.log.Errorw("Push notification failed", append(fields, "error", err)...)
		return err
	}
	s.log.Infow("Push notification sent", append(fields, "notificationId", resp.NotificationID, "channels", resp.ChannelsUsed)...)
	return nil
}

// SendPaymentReminder pushes a reminder to the participant who still owes a share.
func (s *NotificationFacadeService) SendPaymentReminder(ctx context.Context, userID string, data notification.PaymentReminderData) error {
	if !s.enabled {
		return nil
	}
	err := s.deliver("payment_reminder", userID, []interface{}{"individualPaymentId", data.IndividualPaymentID},
		func() (*notification.Response, error) { return s.client.SendPaymentReminder(ctx, userID, data) })
	if err != nil {
		return fmt.Errorf("payment reminder failed: %w", err)
	}
	return nil
}

// SendSplitStatus notifies each listed user once. One failed user does not
// stop delivery to the rest.
func (s *NotificationFacadeService) SendSplitStatus(ctx context.Context, userIDs []string, data notification.SplitStatusData, priority notification.Priority) error {
	if !s.enabled {
		return nil
	}

	seen := make(map[string]struct{}, len(userIDs))
	var failed []error
	for _, userID := range userIDs {
		if _, dup := seen[userID]; dup {
			continue
		}
		seen[userID] = struct{}{}

		err := s.deliver("split_status", userID, []interface{}{"splitPaymentId", data.SplitPaymentID, "status", data.Status},
			func() (*notification.Response, error) { return s.client.SendSplitStatus(ctx, userID, data, priority) })
		if err != nil {
			failed = append(failed, fmt.Errorf("user %s: %w", userID, err))
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("failed to send notifications to %d users: %w", len(failed), errors.Join(failed...))
	}
	return nil
}

// SendRefundUpdate tells the requester where their refund request stands.
func (s *NotificationFacadeService) SendRefundUpdate(ctx context.Context, userID string, data notification.RefundUpdateData) error {
	if !s.enabled {
		return nil
	}
	err := s.deliver("refund_update", userID, []interface{}{"refundRequestId", data.RefundRequestID},
		func() (*notification.Response, error) { return s.client.SendRefundUpdate(ctx, userID, data) })
	if err != nil {
		return fmt.Errorf("refund update failed: %w", err)
	}
	return nil
}
