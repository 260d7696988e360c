package service

import (
	"context"
	"strings"

	apperrors "github.com/NomadCrew/nomad-crew-payments/errors"
	"github.com/NomadCrew/nomad-crew-payments/logger"
	"github.com/NomadCrew/nomad-crew-payments/types"
	"go.uber.org/zap"
)

// Operation kinds accepted by Retry.
const (
	OperationCharge   = "charge"
	OperationRefund   = "refund"
	OperationEvaluate = "evaluate"
)

// RetryService re-enters a failed or interrupted operation from its
// <kind>:<id> handle. Every kind goes through the normal entry point so all
// preconditions are checked again.
type RetryService struct {
	splits  SplitPaymentServiceInterface
	charges ChargeServiceInterface
	refunds RefundServiceInterface
	log     *zap.SugaredLogger
}

var _ RetryServiceInterface = (*RetryService)(nil)

func NewRetryService(splits SplitPaymentServiceInterface, charges ChargeServiceInterface, refunds RefundServiceInterface) *RetryService {
	return &RetryService{
		splits:  splits,
		charges: charges,
		refunds: refunds,
		log:     logger.Named("retry"),
	}
}

// ParseOperationID splits an operation id into kind and target id.
func ParseOperationID(operationID string) (kind, id string, err error) {
	kind, id, ok := strings.Cut(strings.TrimSpace(operationID), ":")
	if !ok || id == "" || strings.ContainsAny(id, " :") {
		return "", "", apperrors.InvalidOperation(operationID)
	}
	switch kind {
	case OperationCharge, OperationRefund, OperationEvaluate:
		return kind, id, nil
	}
	return "", "", apperrors.InvalidOperation(operationID)
}

func (s *RetryService) Retry(ctx context.Context, operationID, callerID string) (*types.RetryResult, error) {
	kind, id, err := ParseOperationID(operationID)
	if err != nil {
		return nil, err
	}

	s.log.Infow("Retrying operation", "operationID", operationID, "callerID", callerID)

	var result any
	switch kind {
	case OperationCharge:
		result, err = s.charges.InitiateCharge(ctx, id, callerID)
	case OperationRefund:
		result, err = s.refunds.Approve(ctx, id, callerID)
	case OperationEvaluate:
		result, err = s.splits.EvaluateForUser(ctx, id, callerID)
	}
	if err != nil {
		s.log.Warnw("Retry failed", "operationID", operationID, "error", err)
		return nil, err
	}
	return &types.RetryResult{OperationID: operationID, Kind: kind, Result: result}, nil
}
