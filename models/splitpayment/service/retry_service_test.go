package service

import (
	"context"
	"testing"
	"time"

	apperrors "github.com/NomadCrew/nomad-crew-payments/errors"
	"github.com/NomadCrew/nomad-crew-payments/internal/auth"
	"github.com/NomadCrew/nomad-crew-payments/internal/processor"
	"github.com/NomadCrew/nomad-crew-payments/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestParseOperationID(t *testing.T) {
	tests := []struct {
		in       string
		kind, id string
		wantErr  bool
	}{
		{in: "charge:p1", kind: OperationCharge, id: "p1"},
		{in: " refund:r-9 ", kind: OperationRefund, id: "r-9"},
		{in: "evaluate:split-1", kind: OperationEvaluate, id: "split-1"},
		{in: "charge:", wantErr: true},
		{in: "p1", wantErr: true},
		{in: "delete:p1", wantErr: true},
		{in: "charge:a:b", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			kind, id, err := ParseOperationID(tt.in)
			if tt.wantErr {
				assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidOperation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.kind, kind)
			assert.Equal(t, tt.id, id)
		})
	}
}

func newRetryFixture(t *testing.T) (*refundFixture, *RetryService) {
	t.Helper()
	f := newRefundFixture(t)
	charges := NewChargeService(f.store, f.proc, f.coord, f.notifier, auth.NewPayLinkSigner(auth.NewSecretManager("s", ""), time.Hour))
	return f, NewRetryService(f.coord, charges, f.refunds)
}

func TestRetryService_Charge(t *testing.T) {
	f, retry := newRetryFixture(t)
	f.seed(1000, testNow.Add(time.Hour), statuses(pending, failed), 500, 500)

	f.proc.On("CreatePaymentIntent", mock.Anything, mock.Anything).
		Return(&processor.Intent{ID: "pi_r", ClientSecret: "cs", Status: processor.IntentPending}, nil).Once()

	result, err := retry.Retry(context.Background(), "charge:p1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, OperationCharge, result.Kind)
	handle, ok := result.Result.(*types.ChargeHandle)
	require.True(t, ok)
	assert.Equal(t, "pi_r", handle.IntentID)

	// Preconditions still apply on retry.
	_, err = retry.Retry(context.Background(), "charge:p1", "user-1")
	assert.True(t, apperrors.HasCode(err, apperrors.CodePaymentInProgress))
}

func TestRetryService_Refund(t *testing.T) {
	f, retry := newRetryFixture(t)
	f.seed(1000, testNow.Add(time.Hour), statuses(paid, pending), 500, 500)
	resp := f.request(t, "org", types.RefundRequestCreate{AmountType: types.RefundAmountFull})

	f.proc.On("CreateRefund", mock.Anything, mock.Anything).Return(refundOK("re_1"), nil).Once()

	_, err := retry.Retry(context.Background(), "refund:"+resp.ID, "user-1")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))

	result, err := retry.Retry(context.Background(), "refund:"+resp.ID, "org")
	require.NoError(t, err)
	req, ok := result.Result.(*types.RefundRequest)
	require.True(t, ok)
	assert.Equal(t, types.RefundStatusApprovedProcessed, req.Status)
}

func TestRetryService_Evaluate(t *testing.T) {
	f, retry := newRetryFixture(t)
	f.seed(1000, testNow.Add(-time.Hour), statuses(paid, paid, pending), 450, 450, 100)

	result, err := retry.Retry(context.Background(), "evaluate:split-1", "user-2")
	require.NoError(t, err)
	view, ok := result.Result.(*types.SplitPaymentView)
	require.True(t, ok)
	assert.Equal(t, types.SplitStatusCompletedPartial, view.Status)

	_, err = retry.Retry(context.Background(), "evaluate:split-1", "stranger")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))
}
