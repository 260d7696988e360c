package services

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"github.com/NomadCrew/nomad-crew-payments/config"
	"github.com/NomadCrew/nomad-crew-payments/logger"
	"github.com/NomadCrew/nomad-crew-payments/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/resend/resend-go/v2"
	"github.com/skip2/go-qrcode"
)

type EmailMetrics struct {
	sendLatency prometheus.Histogram
	errorCount  prometheus.Counter
	sentCount   prometheus.Counter
}

type emailTemplate struct {
	tmpl     *template.Template
	required []string
}

type EmailService struct {
	config    *config.EmailConfig
	client    *resend.Client
	metrics   *EmailMetrics
	templates map[string]emailTemplate
}

var _ types.EmailService = (*EmailService)(nil)

func NewEmailService(cfg *config.EmailConfig) *EmailService {
	return NewEmailServiceWithRegistry(cfg, prometheus.DefaultRegisterer)
}

func NewEmailServiceWithRegistry(cfg *config.EmailConfig, reg prometheus.Registerer) *EmailService {
	logger.GetLogger().Infow("Initializing email service",
		"from", cfg.FromAddress, "apiKey", logger.MaskSecret(cfg.ResendAPIKey))

	metrics := &EmailMetrics{
		sendLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "payments_email_send_duration_seconds",
			Help:    "Time taken to send emails",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		}),
		errorCount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "payments_email_errors_total",
			Help: "Total number of email sending errors",
		}),
		sentCount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "payments_emails_sent_total",
			Help: "Total number of emails sent",
		}),
	}
	reg.MustRegister(metrics.sendLatency, metrics.errorCount, metrics.sentCount)

	return &EmailService{
		config:  cfg,
		client:  resend.NewClient(cfg.ResendAPIKey),
		metrics: metrics,
		templates: map[string]emailTemplate{
			types.EmailTemplateReminder: {
				tmpl:     template.Must(template.New(types.EmailTemplateReminder).Parse(reminderEmailTemplate)),
				required: []string{"AmountDue", "Deadline", "PayURL"},
			},
			types.EmailTemplateSplitStatus: {
				tmpl:     template.Must(template.New(types.EmailTemplateSplitStatus).Parse(splitStatusEmailTemplate)),
				required: []string{"StatusText", "PaidAmount", "TotalAmount"},
			},
			types.EmailTemplateRefundUpdate: {
				tmpl:     template.Must(template.New(types.EmailTemplateRefundUpdate).Parse(refundUpdateEmailTemplate)),
				required: []string{"StatusText", "RefundID"},
			},
		},
	}
}

// SendEmail renders the named template and sends it through Resend.
func (s *EmailService) SendEmail(ctx context.Context, data types.EmailData) error {
	startTime := time.Now()
	log := logger.Named("email")
	defer func() {
		s.metrics.sendLatency.Observe(time.Since(startTime).Seconds())
	}()

	tpl, ok := s.templates[data.Template]
	if !ok {
		s.metrics.errorCount.Inc()
		return fmt.Errorf("unknown email template: %s", data.Template)
	}
	for _, field := range tpl.required {
		if _, ok := data.TemplateData[field]; !ok {
			s.metrics.errorCount.Inc()
			err := fmt.Errorf("missing required template field: %s", field)
			log.Errorw("Invalid template data", "template", data.Template, "error", err)
			return err
		}
	}

	var htmlContent bytes.Buffer
	if err := tpl.tmpl.Execute(&htmlContent, data.TemplateData); err != nil {
		s.metrics.errorCount.Inc()
		log.Errorw("Failed to execute email template", "template", data.Template, "error", err)
		return fmt.Errorf("failed to execute template: %w", err)
	}

	params := &resend.SendEmailRequest{
		From:    fmt.Sprintf("%s <%s>", s.config.FromName, s.config.FromAddress),
		To:      []string{data.To},
		Subject: data.Subject,
		Html:    htmlContent.String(),
	}

	if data.QRCodeURL != "" {
		png, err := qrcode.Encode(data.QRCodeURL, qrcode.Medium, 256)
		if err != nil {
			// The link is in the body; the QR code is a convenience.
			log.Warnw("Failed to render pay link QR code", "error", err)
		} else {
			params.Attachments = []*resend.Attachment{{
				Content:  png,
				Filename: "pay-link.png",
			}}
		}
	}

	if _, err := s.client.Emails.SendWithContext(ctx, params); err != nil {
		s.metrics.errorCount.Inc()
		log.Errorw("Failed to send email",
			"error", err,
			"to", logger.MaskEmail(data.To),
			"template", data.Template)
		return fmt.Errorf("email send failed: %w", err)
	}

	s.metrics.sentCount.Inc()
	log.Infow("Email sent", "to", logger.MaskEmail(data.To), "template", data.Template)
	return nil
}

const emailStyles = `<style>
        body { font-family: sans-serif; background-color: #f7f7f7; color: #333333; margin: 0; padding: 20px; text-align: center; }
        .container { max-width: 600px; margin: 20px auto; background-color: #ffffff; padding: 30px; border-radius: 12px; }
        h1 { color: #F46315; font-size: 26px; margin-bottom: 20px; }
        p { font-size: 16px; line-height: 1.6; margin-bottom: 20px; }
        .button { display: inline-block; padding: 12px 24px; font-weight: bold; text-decoration: none; background-color: #F46315; color: #ffffff; border-radius: 8px; }
        .link { font-size: 13px; color: #777777; word-break: break-all; }
    </style>`

const reminderEmailTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Your share is waiting</title>
    ` + emailStyles + `
</head>
<body>
    <div class="container">
        <h1>Your share is still open</h1>
        <p>{{if .OrganizerName}}{{.OrganizerName}} is{{else}}Your group is{{end}} collecting payments for {{if .Description}}"{{.Description}}"{{else}}a group booking{{end}}.</p>
        <p>Your share is <strong>{{.AmountDue}}</strong>, due by {{.Deadline}}.</p>
        <p><a href="{{.PayURL}}" class="button">Pay my share</a></p>
        <p class="link">Or open this link, or scan the attached QR code:<br/>{{.PayURL}}</p>
    </div>
</body>
</html>`

const splitStatusEmailTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Group payment update</title>
    ` + emailStyles + `
</head>
<body>
    <div class="container">
        <h1>{{.StatusText}}</h1>
        <p>{{.PaidAmount}} of {{.TotalAmount}} has been collected.</p>
        {{if .Refunding}}<p>Payments already made will be refunded automatically.</p>{{end}}
    </div>
</body>
</html>`

const refundUpdateEmailTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Refund update</title>
    ` + emailStyles + `
</head>
<body>
    <div class="container">
        <h1>{{.StatusText}}</h1>
        <p>Refund request {{.RefundID}}{{if .Amount}} for {{.Amount}}{{end}}.</p>
        {{if .Note}}<p>{{.Note}}</p>{{end}}
    </div>
</body>
</html>`
