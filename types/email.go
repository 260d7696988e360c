package types

import "context"

// Email templates known to the email service.
const (
	EmailTemplateReminder     = "payment_reminder"
	EmailTemplateSplitStatus  = "split_status"
	EmailTemplateRefundUpdate = "refund_update"
)

type EmailService interface {
	SendEmail(ctx context.Context, data EmailData) error
}

type EmailData struct {
	To           string
	Subject      string
	Template     string
	TemplateData map[string]interface{}
	// QRCodeURL, when set, is rendered as a PNG QR code and attached.
	QRCodeURL string
}
