package splitpayment

import (
	"time"

	"github.com/NomadCrew/nomad-crew-payments/types"
)

// Tally counts a split's individual payments by status. Refunded payments
// are never counted as paid.
type Tally struct {
	Total           int   `json:"total"`
	PaidCount       int   `json:"paidCount"`
	PendingCount    int   `json:"pendingCount"`
	ProcessingCount int   `json:"processingCount"`
	FailedCount     int   `json:"failedCount"`
	RefundedCount   int   `json:"refundedCount"`
	PaidAmount      int64 `json:"paidAmount"`
}

// AllPaid reports whether every share has been paid.
func (t Tally) AllPaid() bool {
	return t.Total > 0 && t.PaidCount == t.Total
}

func TallyPayments(payments []*types.IndividualPayment) Tally {
	t := Tally{Total: len(payments)}
	for _, p := range payments {
		switch p.Status {
		case types.PaymentStatusPaid:
			t.PaidCount++
			t.PaidAmount += p.AmountDue
		case types.PaymentStatusPending:
			t.PendingCount++
		case types.PaymentStatusProcessing:
			t.ProcessingCount++
		case types.PaymentStatusFailed:
			t.FailedCount++
		case types.PaymentStatusRefunded:
			t.RefundedCount++
		}
	}
	return t
}

// Decision is the outcome of EvaluateCompletion.
type Decision struct {
	Current types.SplitPaymentStatus
	Next    types.SplitPaymentStatus
	Tally   Tally
	// RefundPaymentIDs lists the paid payments to refund when the split is
	// cancelled for missing the threshold, in position order.
	RefundPaymentIDs []string
}

// Changed reports whether the decision moves the split to a new status.
func (d Decision) Changed() bool {
	return d.Next != d.Current
}

// EvaluateCompletion decides the split's status from its payments at now.
// It never moves a terminal split and never moves partially_paid back to
// pending, so evaluating the same rows twice yields the same decision.
func EvaluateCompletion(split *types.SplitPayment, payments []*types.IndividualPayment, now time.Time, policy Policy) Decision {
	tally := TallyPayments(payments)
	d := Decision{Current: split.Status, Next: split.Status, Tally: tally}

	if split.Status.IsTerminal() {
		return d
	}

	switch {
	case tally.AllPaid():
		d.Next = types.SplitStatusCompleted

	case split.DeadlinePassed(now):
		if policy.MeetsThreshold(tally.PaidAmount, split.TotalAmount) {
			d.Next = types.SplitStatusCompletedPartial
			break
		}
		d.Next = types.SplitStatusCancelledInsufficient
		for _, p := range payments {
			if p.Status == types.PaymentStatusPaid {
				d.RefundPaymentIDs = append(d.RefundPaymentIDs, p.ID)
			}
		}

	case tally.PaidCount > 0:
		d.Next = types.SplitStatusPartiallyPaid
	}

	if d.Next != d.Current && !d.Current.CanTransitionTo(d.Next) {
		d.Next = d.Current
		d.RefundPaymentIDs = nil
	}
	return d
}
