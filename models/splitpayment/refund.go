package splitpayment

import (
	"fmt"

	apperrors "github.com/NomadCrew/nomad-crew-payments/errors"
	"github.com/NomadCrew/nomad-crew-payments/types"
)

// EvaluateRefundEligibility works out how much of the request can be
// refunded and which payments it comes from.
//
// The scope is the whole split, or the one payment the request names. A full
// request refunds everything paid in scope; partial and custom requests are
// capped at the paid amount. A paid payment claimed by another request is
// that request's to refund and is left out. Payments this request already refunded on an
// earlier attempt count towards the eligible amount but get no allocation,
// so a retry only charges back what is still outstanding. Allocation is
// greedy in position order and never exceeds a payment's amount.
func EvaluateRefundEligibility(req *types.RefundRequest, split *types.SplitPayment, payments []*types.IndividualPayment) (*types.RefundEligibility, error) {
	var inScope []*types.IndividualPayment
	for _, p := range payments {
		if p.SplitPaymentID != split.ID {
			continue
		}
		if req.IndividualPaymentID != nil && p.ID != *req.IndividualPaymentID {
			continue
		}
		inScope = append(inScope, p)
	}

	var paid, already int64
	var refundable []*types.IndividualPayment
	for _, p := range inScope {
		switch {
		case p.Status == types.PaymentStatusPaid && claimedByOther(p, req.ID):
		case p.Status == types.PaymentStatusPaid:
			paid += p.AmountDue
			refundable = append(refundable, p)
		case p.Status == types.PaymentStatusRefunded && p.RefundRequestID != nil && *p.RefundRequestID == req.ID:
			already += p.RefundedAmount
		}
	}

	if paid == 0 && already == 0 {
		return nil, apperrors.NothingToRefund(fmt.Sprintf("no paid payment in scope of split payment %s", split.ID))
	}

	eligible := already + paid
	if req.AmountType != types.RefundAmountFull {
		if req.CustomAmount == nil || *req.CustomAmount <= 0 {
			return nil, apperrors.InvalidAmount("partial and custom refunds need a positive amount")
		}
		eligible = min(*req.CustomAmount, already+paid)
	}

	remaining := eligible - already
	allocations := make([]types.RefundAllocation, 0, len(refundable))
	for _, p := range refundable {
		if remaining <= 0 {
			break
		}
		amount := min(p.AmountDue, remaining)
		alloc := types.RefundAllocation{IndividualPaymentID: p.ID, Amount: amount}
		if p.ProcessorIntentID != nil {
			alloc.IntentID = *p.ProcessorIntentID
		}
		allocations = append(allocations, alloc)
		remaining -= amount
	}

	return &types.RefundEligibility{
		EligibleAmount:  eligible,
		PaidInScope:     paid,
		AlreadyRefunded: already,
		Currency:        split.Currency,
		Allocations:     allocations,
	}, nil
}

func claimedByOther(p *types.IndividualPayment, refundRequestID string) bool {
	return p.RefundRequestID != nil && *p.RefundRequestID != refundRequestID
}
