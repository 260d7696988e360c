package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/NomadCrew/nomad-crew-payments/internal/store"
	"github.com/NomadCrew/nomad-crew-payments/logger"
	"github.com/NomadCrew/nomad-crew-payments/types"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

const refundRequestColumns = `id::text, split_payment_id::text, individual_payment_id::text, requester_id, reason_category,
		description, amount_type, custom_amount, status, processed_amount, failure_reason, reviewer_id,
		review_note, dedupe_key, evidence_keys, created_at, updated_at`

// RefundStore implements store.RefundStore using PostgreSQL.
type RefundStore struct {
	db  DB
	log *zap.SugaredLogger
}

var _ store.RefundStore = (*RefundStore)(nil)

// NewRefundStore creates a new RefundStore.
func NewRefundStore(db DB) *RefundStore {
	return &RefundStore{
		db:  db,
		log: logger.Named("refund_store"),
	}
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// insertRefundRequest reports whether a row was written; with skipDuplicates
// an existing dedupe key leaves the table unchanged.
func insertRefundRequest(ctx context.Context, q execer, r *types.RefundRequest, skipDuplicates bool) (bool, error) {
	now := time.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now
	if r.EvidenceKeys == nil {
		r.EvidenceKeys = []string{}
	}

	query := `
		INSERT INTO refund_requests (id, split_payment_id, individual_payment_id, requester_id, reason_category,
			description, amount_type, custom_amount, status, dedupe_key, evidence_keys, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	if skipDuplicates {
		query += ` ON CONFLICT (dedupe_key) DO NOTHING`
	}

	tag, err := q.Exec(ctx, query,
		r.ID,
		r.SplitPaymentID,
		r.IndividualPaymentID,
		r.RequesterID,
		string(r.ReasonCategory),
		r.Description,
		string(r.AmountType),
		r.CustomAmount,
		string(r.Status),
		r.DedupeKey,
		r.EvidenceKeys,
		now,
		now,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert refund request: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanRefundRequest(row rowScanner) (*types.RefundRequest, error) {
	var r types.RefundRequest
	var reason, amountType, status string
	err := row.Scan(
		&r.ID,
		&r.SplitPaymentID,
		&r.IndividualPaymentID,
		&r.RequesterID,
		&reason,
		&r.Description,
		&amountType,
		&r.CustomAmount,
		&status,
		&r.ProcessedAmount,
		&r.FailureReason,
		&r.ReviewerID,
		&r.ReviewNote,
		&r.DedupeKey,
		&r.EvidenceKeys,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.ReasonCategory = types.RefundReason(reason)
	r.AmountType = types.RefundAmountType(amountType)
	r.Status = types.RefundStatus(status)
	if r.EvidenceKeys == nil {
		r.EvidenceKeys = []string{}
	}
	return &r, nil
}

// CreateRefundRequest inserts a new refund request. A duplicate dedupe key is a conflict.
func (s *RefundStore) CreateRefundRequest(ctx context.Context, req *types.RefundRequest) error {
	if _, err := insertRefundRequest(ctx, s.db, req, false); err != nil {
		s.log.Errorw("Failed to create refund request", "refundRequestID", req.ID, "error", err)
		return mapError(err)
	}
	return nil
}

// GetRefundRequest retrieves a refund request by ID.
func (s *RefundStore) GetRefundRequest(ctx context.Context, id string) (*types.RefundRequest, error) {
	row := s.db.QueryRow(ctx, `SELECT `+refundRequestColumns+` FROM refund_requests WHERE id = $1`, id)
	r, err := scanRefundRequest(row)
	if err != nil {
		return nil, mapError(err)
	}
	return r, nil
}

// ListRefundRequests returns the refund requests of a split payment, oldest first.
func (s *RefundStore) ListRefundRequests(ctx context.Context, splitPaymentID string) ([]*types.RefundRequest, error) {
	return s.list(ctx, `
		SELECT `+refundRequestColumns+`
		FROM refund_requests
		WHERE split_payment_id = $1
		ORDER BY created_at ASC`, splitPaymentID)
}

// ListRefundRequestsByStatus returns requests in the given statuses, or all when none are given.
func (s *RefundStore) ListRefundRequestsByStatus(ctx context.Context, statuses []types.RefundStatus) ([]*types.RefundRequest, error) {
	if len(statuses) == 0 {
		return s.list(ctx, `SELECT `+refundRequestColumns+` FROM refund_requests ORDER BY created_at ASC`)
	}
	return s.list(ctx, `
		SELECT `+refundRequestColumns+`
		FROM refund_requests
		WHERE status = ANY($1)
		ORDER BY created_at ASC`, statusStrings(statuses))
}

func (s *RefundStore) list(ctx context.Context, query string, args ...any) ([]*types.RefundRequest, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var result []*types.RefundRequest
	for rows.Next() {
		r, err := scanRefundRequest(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// TransitionRefund applies update only when the current status is one of from.
func (s *RefundStore) TransitionRefund(ctx context.Context, id string, from []types.RefundStatus, update store.RefundTransition) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE refund_requests
		SET status = $2,
			processed_amount = COALESCE($3, processed_amount),
			failure_reason = $4,
			reviewer_id = COALESCE($5, reviewer_id),
			review_note = COALESCE($6, review_note),
			updated_at = NOW()
		WHERE id = $1 AND status = ANY($7)`,
		id,
		string(update.Status),
		update.ProcessedAmount,
		update.FailureReason,
		update.ReviewerID,
		update.ReviewNote,
		statusStrings(from),
	)
	if err != nil {
		return false, mapError(err)
	}
	return tag.RowsAffected() == 1, nil
}

// AppendEvidence adds a storage key to the request's evidence list.
func (s *RefundStore) AppendEvidence(ctx context.Context, id, key string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE refund_requests SET evidence_keys = array_append(evidence_keys, $2), updated_at = NOW()
		WHERE id = $1`,
		id, key)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func statusStrings(statuses []types.RefundStatus) []string {
	out := make([]string, len(statuses))
	for i, st := range statuses {
		out[i] = string(st)
	}
	return out
}
