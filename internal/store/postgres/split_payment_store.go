package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NomadCrew/nomad-crew-payments/internal/store"
	"github.com/NomadCrew/nomad-crew-payments/logger"
	"github.com/NomadCrew/nomad-crew-payments/types"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const splitPaymentColumns = `id::text, booking_id, organizer_id, total_amount, currency, participant_count,
		payment_deadline, status, description, created_at, updated_at`

const individualPaymentColumns = `id::text, split_payment_id::text, participant_id, participant_email, position,
		amount_due, status, processor_intent_id, attempt_count, failure_reason, paid_at, reminder_count,
		last_reminder_at, refunded_amount, refund_request_id::text, processor_refund_id, created_at, updated_at`

// SplitPaymentStore implements store.SplitPaymentStore using PostgreSQL.
type SplitPaymentStore struct {
	db  DB
	log *zap.SugaredLogger
}

var _ store.SplitPaymentStore = (*SplitPaymentStore)(nil)

// NewSplitPaymentStore creates a new SplitPaymentStore.
func NewSplitPaymentStore(db DB) *SplitPaymentStore {
	return &SplitPaymentStore{
		db:  db,
		log: logger.Named("split_payment_store"),
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSplitPayment(row rowScanner) (*types.SplitPayment, error) {
	var sp types.SplitPayment
	var status string
	err := row.Scan(
		&sp.ID,
		&sp.BookingID,
		&sp.OrganizerID,
		&sp.TotalAmount,
		&sp.Currency,
		&sp.ParticipantCount,
		&sp.PaymentDeadline,
		&status,
		&sp.Description,
		&sp.CreatedAt,
		&sp.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	sp.Status = types.SplitPaymentStatus(status)
	return &sp, nil
}

func scanIndividualPayment(row rowScanner) (*types.IndividualPayment, error) {
	var p types.IndividualPayment
	var status string
	err := row.Scan(
		&p.ID,
		&p.SplitPaymentID,
		&p.ParticipantID,
		&p.ParticipantEmail,
		&p.Position,
		&p.AmountDue,
		&status,
		&p.ProcessorIntentID,
		&p.AttemptCount,
		&p.FailureReason,
		&p.PaidAt,
		&p.ReminderCount,
		&p.LastReminderAt,
		&p.RefundedAmount,
		&p.RefundRequestID,
		&p.ProcessorRefundID,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Status = types.IndividualPaymentStatus(status)
	return &p, nil
}

// CreateSplitPayment inserts the split payment and its shares in one transaction.
func (s *SplitPaymentStore) CreateSplitPayment(ctx context.Context, split *types.SplitPayment, payments []*types.IndividualPayment) error {
	now := time.Now().UTC()
	split.CreatedAt, split.UpdatedAt = now, now

	err := WithTx(ctx, s.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO split_payments (id, booking_id, organizer_id, total_amount, currency, participant_count,
				payment_deadline, status, description, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			split.ID,
			split.BookingID,
			split.OrganizerID,
			split.TotalAmount,
			split.Currency,
			split.ParticipantCount,
			split.PaymentDeadline,
			string(split.Status),
			split.Description,
			now,
			now,
		)
		if err != nil {
			return fmt.Errorf("failed to insert split payment: %w", err)
		}

		for _, p := range payments {
			p.CreatedAt, p.UpdatedAt = now, now
			_, err := tx.Exec(ctx, `
				INSERT INTO individual_payments (id, split_payment_id, participant_id, participant_email, position,
					amount_due, status, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				p.ID,
				p.SplitPaymentID,
				p.ParticipantID,
				p.ParticipantEmail,
				p.Position,
				p.AmountDue,
				string(p.Status),
				now,
				now,
			)
			if err != nil {
				return fmt.Errorf("failed to insert individual payment for %s: %w", p.ParticipantID, err)
			}
		}
		return nil
	})
	if err != nil {
		s.log.Errorw("Failed to create split payment", "splitPaymentID", split.ID, "error", err)
		return mapError(err)
	}
	return nil
}

// GetSplitPayment retrieves a split payment by ID.
func (s *SplitPaymentStore) GetSplitPayment(ctx context.Context, id string) (*types.SplitPayment, error) {
	row := s.db.QueryRow(ctx, `SELECT `+splitPaymentColumns+` FROM split_payments WHERE id = $1`, id)
	sp, err := scanSplitPayment(row)
	if err != nil {
		return nil, mapError(err)
	}
	return sp, nil
}

// ListSplitPaymentsForUser returns the splits a user organizes or owes a share in, newest first.
func (s *SplitPaymentStore) ListSplitPaymentsForUser(ctx context.Context, userID string) ([]*types.SplitPayment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+splitPaymentColumns+`
		FROM split_payments sp
		WHERE sp.organizer_id = $1
		   OR EXISTS (SELECT 1 FROM individual_payments ip WHERE ip.split_payment_id = sp.id AND ip.participant_id = $1)
		ORDER BY sp.created_at DESC`, userID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var result []*types.SplitPayment
	for rows.Next() {
		sp, err := scanSplitPayment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// GetIndividualPayment retrieves one share by ID.
func (s *SplitPaymentStore) GetIndividualPayment(ctx context.Context, id string) (*types.IndividualPayment, error) {
	row := s.db.QueryRow(ctx, `SELECT `+individualPaymentColumns+` FROM individual_payments WHERE id = $1`, id)
	p, err := scanIndividualPayment(row)
	if err != nil {
		return nil, mapError(err)
	}
	return p, nil
}

// GetIndividualPaymentByIntent finds the share a processor intent belongs to.
func (s *SplitPaymentStore) GetIndividualPaymentByIntent(ctx context.Context, intentID string) (*types.IndividualPayment, error) {
	row := s.db.QueryRow(ctx, `SELECT `+individualPaymentColumns+` FROM individual_payments WHERE processor_intent_id = $1`, intentID)
	p, err := scanIndividualPayment(row)
	if err != nil {
		return nil, mapError(err)
	}
	return p, nil
}

// ListIndividualPayments returns all shares of a split payment ordered by position.
func (s *SplitPaymentStore) ListIndividualPayments(ctx context.Context, splitPaymentID string) ([]*types.IndividualPayment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+individualPaymentColumns+`
		FROM individual_payments
		WHERE split_payment_id = $1
		ORDER BY position ASC`, splitPaymentID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var result []*types.IndividualPayment
	for rows.Next() {
		p, err := scanIndividualPayment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// CompareAndSetSplitStatus writes next only if the stored status is still expected.
func (s *SplitPaymentStore) CompareAndSetSplitStatus(ctx context.Context, id string, expected, next types.SplitPaymentStatus) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE split_payments SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2`,
		id, string(expected), string(next))
	if err != nil {
		return false, mapError(err)
	}
	return tag.RowsAffected() == 1, nil
}

// CancelAndQueueRefunds cancels the split and records its refund requests atomically.
func (s *SplitPaymentStore) CancelAndQueueRefunds(ctx context.Context, id string, expected types.SplitPaymentStatus, refunds []*types.RefundRequest) (bool, error) {
	swapped := false
	err := WithTx(ctx, s.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE split_payments SET status = $3, updated_at = NOW()
			WHERE id = $1 AND status = $2`,
			id, string(expected), string(types.SplitStatusCancelledInsufficient))
		if err != nil {
			return fmt.Errorf("failed to cancel split payment: %w", err)
		}
		if tag.RowsAffected() != 1 {
			return nil
		}
		swapped = true

		for _, r := range refunds {
			if _, err := insertRefundRequest(ctx, tx, r, true); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.log.Errorw("Failed to cancel split payment", "splitPaymentID", id, "error", err)
		return false, mapError(err)
	}
	return swapped, nil
}

// QueueRefund records a single refund request, skipping known dedupe keys.
func (s *SplitPaymentStore) QueueRefund(ctx context.Context, req *types.RefundRequest) (bool, error) {
	inserted, err := insertRefundRequest(ctx, s.db, req, true)
	if err != nil {
		s.log.Errorw("Failed to queue refund request", "refundRequestID", req.ID, "error", err)
		return false, mapError(err)
	}
	return inserted, nil
}

// ClaimPaymentForCharge starts a new charge attempt on a pending or failed share.
func (s *SplitPaymentStore) ClaimPaymentForCharge(ctx context.Context, id string) (*types.IndividualPayment, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE individual_payments
		SET status = 'processing', attempt_count = attempt_count + 1, failure_reason = NULL, updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'failed')
		RETURNING `+individualPaymentColumns, id)
	p, err := scanIndividualPayment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrConflict
		}
		return nil, mapError(err)
	}
	return p, nil
}

// AttachIntent records the processor intent for the current attempt.
func (s *SplitPaymentStore) AttachIntent(ctx context.Context, id, intentID string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE individual_payments SET processor_intent_id = $2, updated_at = NOW()
		WHERE id = $1 AND status IN ('processing', 'paid')`,
		id, intentID)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrConflict
	}
	return nil
}

// MarkPaymentPaid records a successful charge.
func (s *SplitPaymentStore) MarkPaymentPaid(ctx context.Context, id, intentID string, paidAt time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE individual_payments
		SET status = 'paid', paid_at = $2, failure_reason = NULL,
			processor_intent_id = COALESCE(NULLIF($3, ''), processor_intent_id), updated_at = NOW()
		WHERE id = $1 AND status IN ('processing', 'failed')`,
		id, paidAt, intentID)
	if err != nil {
		return false, mapError(err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkPaymentFailed records a failed charge attempt.
func (s *SplitPaymentStore) MarkPaymentFailed(ctx context.Context, id string, reason string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE individual_payments SET status = 'failed', failure_reason = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'processing'`,
		id, reason)
	if err != nil {
		return false, mapError(err)
	}
	return tag.RowsAffected() == 1, nil
}

// RecordReminder counts a reminder if the share is pending and outside the cooldown.
func (s *SplitPaymentStore) RecordReminder(ctx context.Context, id string, at, notAfter time.Time) (*types.IndividualPayment, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE individual_payments
		SET reminder_count = reminder_count + 1, last_reminder_at = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'pending' AND (last_reminder_at IS NULL OR last_reminder_at <= $3)
		RETURNING `+individualPaymentColumns, id, at, notAfter)
	p, err := scanIndividualPayment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrConflict
		}
		return nil, mapError(err)
	}
	return p, nil
}

// ClaimPaymentForRefund reserves a paid share for one refund request.
func (s *SplitPaymentStore) ClaimPaymentForRefund(ctx context.Context, id, refundRequestID string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE individual_payments SET refund_request_id = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'paid' AND (refund_request_id IS NULL OR refund_request_id = $2)`,
		id, refundRequestID)
	if err != nil {
		return false, mapError(err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkPaymentRefunded moves a paid share to refunded.
func (s *SplitPaymentStore) MarkPaymentRefunded(ctx context.Context, id, refundRequestID, processorRefundID string, amount int64) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE individual_payments
		SET status = 'refunded', refund_request_id = $2, processor_refund_id = $3, refunded_amount = $4, updated_at = NOW()
		WHERE id = $1 AND status = 'paid' AND (refund_request_id IS NULL OR refund_request_id = $2)`,
		id, refundRequestID, processorRefundID, amount)
	if err != nil {
		return false, mapError(err)
	}
	return tag.RowsAffected() == 1, nil
}
