package services

import (
	"context"
	"fmt"
	"time"

	"github.com/NomadCrew/nomad-crew-payments/logger"
	"github.com/NomadCrew/nomad-crew-payments/types"
	"github.com/supabase-community/supabase-go"
	"go.uber.org/zap"
)

// paymentStatusFeedTable is watched by Supabase Realtime subscribers in the app.
const paymentStatusFeedTable = "payment_status_feed"

// PaymentStatusRow is one row of the realtime status feed. There is a single
// row per split payment; every change overwrites it.
type PaymentStatusRow struct {
	SplitPaymentID string                   `json:"split_payment_id"`
	BookingID      string                   `json:"booking_id"`
	Status         types.SplitPaymentStatus `json:"status"`
	PaidAmount     int64                    `json:"paid_amount"`
	TotalAmount    int64                    `json:"total_amount"`
	Currency       string                   `json:"currency"`
	LastEvent      types.EventType          `json:"last_event"`
	UpdatedAt      time.Time                `json:"updated_at"`
}

// SupabaseService mirrors split payment status into Supabase so clients can
// follow it over Supabase Realtime.
type SupabaseService struct {
	client    *supabase.Client
	logger    *zap.SugaredLogger
	isEnabled bool
}

// SupabaseServiceConfig contains configuration for the Supabase service
type SupabaseServiceConfig struct {
	IsEnabled   bool
	SupabaseURL string
	SupabaseKey string
}

// NewSupabaseService creates a new Supabase service instance. A client that
// cannot be built leaves the service disabled.
func NewSupabaseService(config SupabaseServiceConfig) *SupabaseService {
	log := logger.GetLogger().Named("supabase_feed")
	s := &SupabaseService{logger: log}
	if !config.IsEnabled {
		return s
	}

	client, err := supabase.NewClient(config.SupabaseURL, config.SupabaseKey, nil)
	if err != nil {
		log.Warnw("Supabase feed disabled", "error", err, "key", logger.MaskSecret(config.SupabaseKey))
		return s
	}
	s.client = client
	s.isEnabled = true
	return s
}

// IsEnabled returns whether the Supabase integration is enabled
func (s *SupabaseService) IsEnabled() bool {
	return s.isEnabled
}

// MirrorStatus upserts the feed row for a split payment.
func (s *SupabaseService) MirrorStatus(ctx context.Context, row PaymentStatusRow) error {
	if !s.isEnabled {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = time.Now().UTC()
	}

	_, _, err := s.client.From(paymentStatusFeedTable).
		Upsert(row, "split_payment_id", "minimal", "").
		Execute()
	if err != nil {
		s.logger.Warnw("Failed to mirror payment status",
			"splitPaymentID", row.SplitPaymentID,
			"status", row.Status,
			"error", err)
		return fmt.Errorf("supabase upsert %s: %w", paymentStatusFeedTable, err)
	}
	return nil
}

// StatusRowFor builds the feed row for a split payment.
func StatusRowFor(split *types.SplitPayment, paidAmount int64, lastEvent types.EventType) PaymentStatusRow {
	return PaymentStatusRow{
		SplitPaymentID: split.ID,
		BookingID:      split.BookingID,
		Status:         split.Status,
		PaidAmount:     paidAmount,
		TotalAmount:    split.TotalAmount,
		Currency:       split.Currency,
		LastEvent:      lastEvent,
		UpdatedAt:      split.UpdatedAt,
	}
}
