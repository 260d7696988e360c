// Package notification is a client for the push notification facade API.
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// namespace for deterministic notification IDs. The facade drops a request
// whose notificationId it has already delivered, so a retried job never
// pushes twice.
var notificationNamespace = uuid.MustParse("5b7c1f0e-2d4a-4e8b-9a61-3f0d8c2e7b15")

const maxErrorBody = 4 << 10

type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// ClientOption is a function that configures the client
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// NewClient creates a client for the facade at apiURL. The /notify path is
// appended when missing.
func NewClient(apiURL, apiKey string, opts ...ClientOption) *Client {
	endpoint := strings.TrimSuffix(apiURL, "/")
	if !strings.HasSuffix(endpoint, "/notify") {
		endpoint += "/notify"
	}

	c := &Client{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NotificationID derives the idempotency key for one logical notification.
func NotificationID(parts ...string) string {
	return uuid.NewSHA1(notificationNamespace, []byte(strings.Join(parts, "|"))).String()
}

// Send delivers one request. Any 2xx status is success.
func (c *Client) Send(ctx context.Context, req *Request) (*Response, error) {
	if err := c.validateRequest(req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var out Response
	decodeErr := json.Unmarshal(raw, &out)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		reason := out.Error
		if decodeErr != nil || reason == "" {
			reason = strings.TrimSpace(string(raw))
		}
		if reason == "" {
			return nil, fmt.Errorf("notification failed with status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("notification failed with status %d: %s", resp.StatusCode, reason)
	}
	if decodeErr != nil && len(raw) > 0 {
		return nil, fmt.Errorf("failed to decode response: %w", decodeErr)
	}
	if out.NotificationID == "" {
		out.NotificationID = req.NotificationID
	}
	return &out, nil
}

func (c *Client) validateRequest(req *Request) error {
	if req.UserID == "" {
		return fmt.Errorf("userId is required")
	}
	switch req.EventType {
	case "":
		return fmt.Errorf("eventType is required")
	case EventTypePaymentReminder, EventTypeSplitStatus, EventTypePaymentFailed, EventTypeRefundUpdate:
	default:
		return fmt.Errorf("invalid eventType: %s", req.EventType)
	}

	switch req.Priority {
	case "", PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
	default:
		return fmt.Errorf("invalid priority: %s", req.Priority)
	}

	if req.Data == nil {
		req.Data = make(map[string]interface{})
	}
	return nil
}

// SendPaymentReminder nudges a participant who has not paid their share.
// Each reminder count gets its own notification ID.
func (c *Client) SendPaymentReminder(ctx context.Context, userID string, data PaymentReminderData) (*Response, error) {
	return c.Send(ctx, &Request{
		UserID:         userID,
		EventType:      EventTypePaymentReminder,
		Priority:       PriorityHigh,
		NotificationID: NotificationID("reminder", data.IndividualPaymentID, strconv.Itoa(data.ReminderCount)),
		Data: map[string]interface{}{
			"splitPaymentId":      data.SplitPaymentID,
			"individualPaymentId": data.IndividualPaymentID,
			"amountDisplay":       data.AmountDisplay,
			"deadline":            data.Deadline,
			"payUrl":              data.PayURL,
		},
	})
}

func (c *Client) SendSplitStatus(ctx context.Context, userID string, data SplitStatusData, priority Priority) (*Response, error) {
	return c.Send(ctx, &Request{
		UserID:         userID,
		EventType:      EventTypeSplitStatus,
		Priority:       priority,
		NotificationID: NotificationID("split", data.SplitPaymentID, data.Status, userID),
		Data: map[string]interface{}{
			"splitPaymentId": data.SplitPaymentID,
			"status":         data.Status,
			"message":        data.Message,
		},
	})
}

func (c *Client) SendRefundUpdate(ctx context.Context, userID string, data RefundUpdateData) (*Response, error) {
	return c.Send(ctx, &Request{
		UserID:         userID,
		EventType:      EventTypeRefundUpdate,
		Priority:       PriorityMedium,
		NotificationID: NotificationID("refund", data.RefundRequestID, data.Status),
		Data: map[string]interface{}{
			"refundRequestId": data.RefundRequestID,
			"splitPaymentId":  data.SplitPaymentID,
			"status":          data.Status,
			"amountDisplay":   data.AmountDisplay,
		},
	})
}
