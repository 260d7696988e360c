package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/NomadCrew/nomad-crew-payments/internal/store"
	"github.com/NomadCrew/nomad-crew-payments/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var refundColumnNames = []string{
	"id", "split_payment_id", "individual_payment_id", "requester_id", "reason_category", "description",
	"amount_type", "custom_amount", "status", "processed_amount", "failure_reason", "reviewer_id",
	"review_note", "dedupe_key", "evidence_keys", "created_at", "updated_at",
}

func refundRow(rows *pgxmock.Rows, id string, status types.RefundStatus, evidence []string) *pgxmock.Rows {
	now := time.Now()
	paymentID := "p1"
	return rows.AddRow(id, "split-1", &paymentID, "user-1", "service_issue", (*string)(nil),
		"full", (*int64)(nil), string(status), int64(0), (*string)(nil), (*string)(nil),
		(*string)(nil), (*string)(nil), evidence, now, now)
}

func newMockRefundStore(t *testing.T) (*RefundStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewRefundStore(mock), mock
}

func TestRefundStore_CreateRefundRequest(t *testing.T) {
	ctx := context.Background()
	req := &types.RefundRequest{
		ID: "r1", SplitPaymentID: "split-1", RequesterID: "user-1",
		ReasonCategory: types.RefundReasonServiceIssue, AmountType: types.RefundAmountFull,
		Status: types.RefundStatusPendingReview,
	}

	t.Run("inserts", func(t *testing.T) {
		s, mock := newMockRefundStore(t)
		mock.ExpectExec("INSERT INTO refund_requests").
			WithArgs("r1", "split-1", pgxmock.AnyArg(), "user-1", "service_issue", pgxmock.AnyArg(),
				"full", pgxmock.AnyArg(), "pending_review", pgxmock.AnyArg(), []string{}, pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, s.CreateRefundRequest(ctx, req))
		assert.Equal(t, []string{}, req.EvidenceKeys)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate dedupe key is a conflict", func(t *testing.T) {
		s, mock := newMockRefundStore(t)
		mock.ExpectExec("INSERT INTO refund_requests").
			WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "refund_requests_dedupe_key_key"})

		err := s.CreateRefundRequest(ctx, req)
		assert.ErrorIs(t, err, store.ErrConflict)
	})
}

func TestRefundStore_GetRefundRequest(t *testing.T) {
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		s, mock := newMockRefundStore(t)
		mock.ExpectQuery("FROM refund_requests WHERE id").
			WithArgs("r1").
			WillReturnRows(refundRow(pgxmock.NewRows(refundColumnNames), "r1", types.RefundStatusUnderReview, []string{"evidence/r1/a.png"}))

		r, err := s.GetRefundRequest(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, types.RefundStatusUnderReview, r.Status)
		assert.Equal(t, types.RefundReasonServiceIssue, r.ReasonCategory)
		require.NotNil(t, r.IndividualPaymentID)
		assert.Equal(t, "p1", *r.IndividualPaymentID)
		assert.Equal(t, []string{"evidence/r1/a.png"}, r.EvidenceKeys)
	})

	t.Run("not found", func(t *testing.T) {
		s, mock := newMockRefundStore(t)
		mock.ExpectQuery("FROM refund_requests WHERE id").
			WithArgs("missing").
			WillReturnError(pgx.ErrNoRows)

		_, err := s.GetRefundRequest(ctx, "missing")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestRefundStore_ListRefundRequestsByStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("filters by status", func(t *testing.T) {
		s, mock := newMockRefundStore(t)
		rows := pgxmock.NewRows(refundColumnNames)
		refundRow(rows, "r1", types.RefundStatusPendingReview, []string{})
		mock.ExpectQuery("WHERE status = ANY").
			WithArgs([]string{"pending_review", "under_review"}).
			WillReturnRows(rows)

		result, err := s.ListRefundRequestsByStatus(ctx, []types.RefundStatus{types.RefundStatusPendingReview, types.RefundStatusUnderReview})
		require.NoError(t, err)
		require.Len(t, result, 1)
		assert.Equal(t, "r1", result[0].ID)
	})

	t.Run("all statuses", func(t *testing.T) {
		s, mock := newMockRefundStore(t)
		rows := pgxmock.NewRows(refundColumnNames)
		refundRow(rows, "r1", types.RefundStatusDenied, []string{})
		refundRow(rows, "r2", types.RefundStatusApprovedProcessed, []string{})
		mock.ExpectQuery("FROM refund_requests ORDER BY").WillReturnRows(rows)

		result, err := s.ListRefundRequestsByStatus(ctx, nil)
		require.NoError(t, err)
		assert.Len(t, result, 2)
	})
}

func TestRefundStore_TransitionRefund(t *testing.T) {
	ctx := context.Background()
	amount := int64(500)

	t.Run("applies from an allowed status", func(t *testing.T) {
		s, mock := newMockRefundStore(t)
		mock.ExpectExec("UPDATE refund_requests").
			WithArgs("r1", "approved_processed", &amount, (*string)(nil), (*string)(nil), (*string)(nil),
				[]string{"pending_review", "under_review", "processing_failed"}).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		ok, err := s.TransitionRefund(ctx, "r1",
			[]types.RefundStatus{types.RefundStatusPendingReview, types.RefundStatusUnderReview, types.RefundStatusProcessingFailed},
			store.RefundTransition{Status: types.RefundStatusApprovedProcessed, ProcessedAmount: &amount})
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("no-op from a terminal status", func(t *testing.T) {
		s, mock := newMockRefundStore(t)
		mock.ExpectExec("UPDATE refund_requests").
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		ok, err := s.TransitionRefund(ctx, "r1", []types.RefundStatus{types.RefundStatusPendingReview},
			store.RefundTransition{Status: types.RefundStatusDenied})
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestRefundStore_AppendEvidence(t *testing.T) {
	ctx := context.Background()
	s, mock := newMockRefundStore(t)

	mock.ExpectExec("array_append").
		WithArgs("r1", "evidence/r1/a.png").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("array_append").
		WithArgs("missing", "evidence/missing/a.png").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, s.AppendEvidence(ctx, "r1", "evidence/r1/a.png"))
	assert.ErrorIs(t, s.AppendEvidence(ctx, "missing", "evidence/missing/a.png"), store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
