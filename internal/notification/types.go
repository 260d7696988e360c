package notification

// EventType represents the type of notification event
type EventType string

const (
	EventTypePaymentReminder EventType = "PAYMENT_REMINDER"
	EventTypeSplitStatus     EventType = "SPLIT_STATUS"
	EventTypePaymentFailed   EventType = "PAYMENT_FAILED"
	EventTypeRefundUpdate    EventType = "REFUND_UPDATE"
)

// Priority represents the notification priority level
type Priority string

const (
	PriorityCritical Priority = "CRITICAL"
	PriorityHigh     Priority = "HIGH"
	PriorityMedium   Priority = "MEDIUM"
	PriorityLow      Priority = "LOW"
)

// Request is one notification for one user. NotificationID makes delivery
// idempotent on the facade side.
type Request struct {
	UserID         string                 `json:"userId"`
	EventType      EventType              `json:"eventType"`
	Priority       Priority               `json:"priority,omitempty"`
	NotificationID string                 `json:"notificationId,omitempty"`
	Data           map[string]interface{} `json:"data"`
}

// Response represents the response from the notification facade API
type Response struct {
	NotificationID string   `json:"notificationId"`
	MessageID      string   `json:"messageId"`
	Status         string   `json:"status"`
	ChannelsUsed   []string `json:"channelsUsed"`
	Error          string   `json:"error,omitempty"`
}

type PaymentReminderData struct {
	SplitPaymentID      string `json:"splitPaymentId"`
	IndividualPaymentID string `json:"individualPaymentId"`
	AmountDisplay       string `json:"amountDisplay"`
	Deadline            string `json:"deadline"`
	PayURL              string `json:"payUrl,omitempty"`
	// ReminderCount is the reminder's sequence number for this payment.
	ReminderCount int `json:"reminderCount"`
}

type SplitStatusData struct {
	SplitPaymentID string `json:"splitPaymentId"`
	Status         string `json:"status"`
	Message        string `json:"message"`
}

type RefundUpdateData struct {
	RefundRequestID string `json:"refundRequestId"`
	SplitPaymentID  string `json:"splitPaymentId"`
	Status          string `json:"status"`
	AmountDisplay   string `json:"amountDisplay,omitempty"`
}
