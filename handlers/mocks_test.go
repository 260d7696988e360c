package handlers

import (
	"context"
	"io"

	"github.com/NomadCrew/nomad-crew-payments/models/splitpayment/service"
	"github.com/NomadCrew/nomad-crew-payments/types"
	"github.com/stretchr/testify/mock"
)

type MockSplitPaymentService struct {
	mock.Mock
}

var _ service.SplitPaymentServiceInterface = (*MockSplitPaymentService)(nil)

func (m *MockSplitPaymentService) CreateSplitPayment(ctx context.Context, organizerID string, input types.SplitPaymentCreate) (*types.SplitPaymentView, error) {
	args := m.Called(ctx, organizerID, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.SplitPaymentView), args.Error(1)
}

func (m *MockSplitPaymentService) GetSplitPaymentView(ctx context.Context, splitPaymentID, userID string) (*types.SplitPaymentView, error) {
	args := m.Called(ctx, splitPaymentID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.SplitPaymentView), args.Error(1)
}

func (m *MockSplitPaymentService) ListForUser(ctx context.Context, userID string) ([]*types.SplitPayment, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*types.SplitPayment), args.Error(1)
}

func (m *MockSplitPaymentService) EvaluateForUser(ctx context.Context, splitPaymentID, userID string) (*types.SplitPaymentView, error) {
	args := m.Called(ctx, splitPaymentID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.SplitPaymentView), args.Error(1)
}

func (m *MockSplitPaymentService) RequestReminder(ctx context.Context, individualPaymentID, callerID string) (*types.IndividualPayment, error) {
	args := m.Called(ctx, individualPaymentID, callerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.IndividualPayment), args.Error(1)
}

type MockChargeService struct {
	mock.Mock
}

var _ service.ChargeServiceInterface = (*MockChargeService)(nil)

func (m *MockChargeService) InitiateCharge(ctx context.Context, individualPaymentID, payerID string) (*types.ChargeHandle, error) {
	args := m.Called(ctx, individualPaymentID, payerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.ChargeHandle), args.Error(1)
}

func (m *MockChargeService) SyncPayment(ctx context.Context, individualPaymentID, callerID string) (*types.IndividualPayment, error) {
	args := m.Called(ctx, individualPaymentID, callerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.IndividualPayment), args.Error(1)
}

func (m *MockChargeService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	args := m.Called(ctx, payload, signature)
	return args.Error(0)
}

func (m *MockChargeService) DescribePayLink(ctx context.Context, token string) (*types.PayLinkView, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.PayLinkView), args.Error(1)
}

type MockRefundService struct {
	mock.Mock
}

var _ service.RefundServiceInterface = (*MockRefundService)(nil)

func (m *MockRefundService) CreateRefundRequest(ctx context.Context, requesterID string, input types.RefundRequestCreate) (*types.RefundRequestResponse, error) {
	args := m.Called(ctx, requesterID, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.RefundRequestResponse), args.Error(1)
}

func (m *MockRefundService) GetRefundRequest(ctx context.Context, refundRequestID, userID string) (*types.RefundRequestResponse, error) {
	args := m.Called(ctx, refundRequestID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.RefundRequestResponse), args.Error(1)
}

func (m *MockRefundService) ListRefundRequests(ctx context.Context, splitPaymentID, userID string) ([]*types.RefundRequest, error) {
	args := m.Called(ctx, splitPaymentID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*types.RefundRequest), args.Error(1)
}

func (m *MockRefundService) StartReview(ctx context.Context, refundRequestID, reviewerID string) (*types.RefundRequest, error) {
	args := m.Called(ctx, refundRequestID, reviewerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.RefundRequest), args.Error(1)
}

func (m *MockRefundService) Deny(ctx context.Context, refundRequestID, reviewerID string, note *string) (*types.RefundRequest, error) {
	args := m.Called(ctx, refundRequestID, reviewerID, note)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.RefundRequest), args.Error(1)
}

func (m *MockRefundService) Approve(ctx context.Context, refundRequestID, reviewerID string) (*types.RefundRequest, error) {
	args := m.Called(ctx, refundRequestID, reviewerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.RefundRequest), args.Error(1)
}

func (m *MockRefundService) AttachEvidence(ctx context.Context, refundRequestID, requesterID, fileName string, file io.Reader) (*types.RefundRequest, error) {
	args := m.Called(ctx, refundRequestID, requesterID, fileName, file)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.RefundRequest), args.Error(1)
}

func (m *MockRefundService) EvidenceURL(ctx context.Context, refundRequestID, key, userID string) (string, error) {
	args := m.Called(ctx, refundRequestID, key, userID)
	return args.String(0), args.Error(1)
}

func (m *MockRefundService) ExportRefunds(ctx context.Context, w io.Writer, statuses []types.RefundStatus) error {
	args := m.Called(ctx, w, statuses)
	return args.Error(0)
}

func (m *MockRefundService) IsAdmin(userID string) bool {
	return m.Called(userID).Bool(0)
}

type MockRetryService struct {
	mock.Mock
}

func (m *MockRetryService) Retry(ctx context.Context, operationID, callerID string) (*types.RetryResult, error) {
	args := m.Called(ctx, operationID, callerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.RetryResult), args.Error(1)
}

type MockHealthChecker struct {
	mock.Mock
}

func (m *MockHealthChecker) CheckHealth(ctx context.Context) types.HealthCheck {
	return m.Called(ctx).Get(0).(types.HealthCheck)
}

type MockValidator struct {
	mock.Mock
}

func (m *MockValidator) Validate(ctx context.Context, token string) (string, error) {
	args := m.Called(ctx, token)
	return args.String(0), args.Error(1)
}
