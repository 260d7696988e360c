// Package splitpayment holds the pure split payment policy: how a total is
// divided into shares, when a split is complete, and how much of it can be
// refunded. Nothing here touches storage or the payment processor.
package splitpayment

import (
	"time"

	"github.com/NomadCrew/nomad-crew-payments/config"
	"github.com/shopspring/decimal"
)

// BasisPointsScale is 100% expressed in basis points.
const BasisPointsScale = 10000

var basisPoints = decimal.NewFromInt(BasisPointsScale)

// Policy carries the configurable rules applied to every split payment.
type Policy struct {
	MinimumThresholdBasisPoints int64
	ReminderCooldown            time.Duration
	DefaultDeadline             time.Duration
}

// DefaultPolicy completes expired splits at 80% and allows one reminder a day.
func DefaultPolicy() Policy {
	return Policy{
		MinimumThresholdBasisPoints: 8000,
		ReminderCooldown:            24 * time.Hour,
		DefaultDeadline:             7 * 24 * time.Hour,
	}
}

// PolicyFromConfig falls back to the default for every unset value.
func PolicyFromConfig(cfg config.PaymentPolicyConfig) Policy {
	p := DefaultPolicy()
	if cfg.MinimumThresholdBasisPoints > 0 {
		p.MinimumThresholdBasisPoints = int64(cfg.MinimumThresholdBasisPoints)
	}
	if cfg.ReminderCooldown > 0 {
		p.ReminderCooldown = cfg.ReminderCooldown
	}
	if cfg.DefaultDeadline > 0 {
		p.DefaultDeadline = cfg.DefaultDeadline
	}
	return p
}

// MeetsThreshold reports paid*10000 >= total*bps. The products can exceed
// int64 for large totals, so the comparison runs on decimals.
func (p Policy) MeetsThreshold(paid, total int64) bool {
	lhs := decimal.NewFromInt(paid).Mul(basisPoints)
	rhs := decimal.NewFromInt(total).Mul(decimal.NewFromInt(p.MinimumThresholdBasisPoints))
	return lhs.GreaterThanOrEqual(rhs)
}

// ThresholdAmount is the smallest paid amount that meets the threshold.
func (p Policy) ThresholdAmount(total int64) int64 {
	return decimal.NewFromInt(total).
		Mul(decimal.NewFromInt(p.MinimumThresholdBasisPoints)).
		Div(basisPoints).
		Ceil().
		IntPart()
}

// ProgressBasisPoints returns floor(paid/total) in basis points.
func ProgressBasisPoints(paid, total int64) int64 {
	if total <= 0 {
		return 0
	}
	return decimal.NewFromInt(paid).Mul(basisPoints).Div(decimal.NewFromInt(total)).Floor().IntPart()
}
