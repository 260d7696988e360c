// Package valueobjects holds immutable money types. Amounts are integers in
// the currency's minor unit; decimals only appear at the display boundary.
package valueobjects

import (
	"fmt"

	"github.com/NomadCrew/nomad-crew-payments/errors"
	"github.com/shopspring/decimal"
)

const (
	ErrInvalidAmount    = "INVALID_AMOUNT"
	ErrCurrencyMismatch = "CURRENCY_MISMATCH"
)

// Money is an amount in minor units of a currency.
type Money struct {
	minor    int64
	currency Currency
}

// NewMoney creates Money from minor units. Negative amounts are rejected.
func NewMoney(minor int64, currency Currency) (Money, error) {
	if !currency.IsValid() {
		return Money{}, errors.InvalidCurrency(string(currency))
	}
	if minor < 0 {
		return Money{}, errors.InvalidAmount("amount cannot be negative")
	}
	return Money{minor: minor, currency: currency}, nil
}

// FromDisplay converts a display amount ("12.34") into Money. More decimal
// places than the currency allows is an error, not a rounding.
func FromDisplay(amount string, currencyCode string) (Money, error) {
	currency, err := ParseCurrency(currencyCode)
	if err != nil {
		return Money{}, err
	}

	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, errors.InvalidAmount(fmt.Sprintf("invalid amount format: %v", err))
	}
	if d.IsNegative() {
		return Money{}, errors.InvalidAmount("amount cannot be negative")
	}

	exp := currency.Exponent()
	scaled := d.Mul(decimal.New(1, exp))
	if !scaled.Equal(scaled.Truncate(0)) {
		return Money{}, errors.InvalidAmount(fmt.Sprintf("%s allows at most %d decimal places", currency, exp))
	}
	if scaled.GreaterThan(decimal.NewFromInt(maxMinor)) {
		return Money{}, errors.InvalidAmount("amount out of range")
	}

	return Money{minor: scaled.IntPart(), currency: currency}, nil
}

// maxMinor bounds amounts so that share and tax arithmetic stays within int64.
const maxMinor = int64(1) << 53

// Minor returns the amount in minor units.
func (m Money) Minor() int64 {
	return m.minor
}

// Currency returns the currency code
func (m Money) Currency() Currency {
	return m.currency
}

// Display returns the amount in major units as an exact decimal.
func (m Money) Display() decimal.Decimal {
	return decimal.New(m.minor, -m.currency.Exponent())
}

// DisplayString renders the major amount with the currency's fixed precision ("12.30").
func (m Money) DisplayString() string {
	return m.Display().StringFixed(m.currency.Exponent())
}

// Add adds two monetary values of the same currency
func (m Money) Add(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, currencyMismatch(m.currency, other.currency, "add")
	}
	return Money{minor: m.minor + other.minor, currency: m.currency}, nil
}

// Subtract subtracts two monetary values of the same currency
func (m Money) Subtract(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, currencyMismatch(m.currency, other.currency, "subtract")
	}
	if other.minor > m.minor {
		return Money{}, errors.InvalidAmount("subtraction would result in negative amount")
	}
	return Money{minor: m.minor - other.minor, currency: m.currency}, nil
}

// Split divides money into n parts that differ by at most one minor unit.
// The leftover units go to the first parts, one each.
func (m Money) Split(n int) ([]Money, error) {
	if n <= 0 {
		return nil, errors.InvalidParticipants("number of parts must be positive")
	}
	weights := make([]int64, n)
	for i := range weights {
		weights[i] = 1
	}
	return m.Allocate(weights)
}

// Allocate distributes the amount proportionally to the given positive
// weights. Each part gets floor(amount*w/W); leftover units are handed out
// one at a time in order, so parts always sum to the original amount.
func (m Money) Allocate(weights []int64) ([]Money, error) {
	if len(weights) == 0 {
		return nil, errors.InvalidParticipants("no parts to allocate to")
	}

	total := decimal.Zero
	for _, w := range weights {
		if w <= 0 {
			return nil, errors.InvalidAmount("allocation weights must be positive")
		}
		total = total.Add(decimal.NewFromInt(w))
	}

	amount := decimal.NewFromInt(m.minor)
	parts := make([]Money, len(weights))
	var allocated int64
	for i, w := range weights {
		share := amount.Mul(decimal.NewFromInt(w)).Div(total).Floor().IntPart()
		parts[i] = Money{minor: share, currency: m.currency}
		allocated += share
	}

	for i := 0; allocated < m.minor; i = (i + 1) % len(parts) {
		parts[i].minor++
		allocated++
	}

	return parts, nil
}

// IsZero checks if the amount is zero
func (m Money) IsZero() bool {
	return m.minor == 0
}

// IsPositive reports whether the amount is above zero.
func (m Money) IsPositive() bool {
	return m.minor > 0
}

// Equals checks if two monetary values are equal
func (m Money) Equals(other Money) bool {
	return m.currency == other.currency && m.minor == other.minor
}

// Compare returns -1, 0 or 1. Currencies must match.
func (m Money) Compare(other Money) (int, error) {
	if m.currency != other.currency {
		return 0, currencyMismatch(m.currency, other.currency, "compare")
	}
	switch {
	case m.minor < other.minor:
		return -1, nil
	case m.minor > other.minor:
		return 1, nil
	default:
		return 0, nil
	}
}

// String returns a string representation of the money value
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.DisplayString(), m.currency)
}
