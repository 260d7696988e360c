package valueobjects

import (
	"fmt"
	"strings"

	"github.com/NomadCrew/nomad-crew-payments/errors"
)

// Currency represents a valid ISO 4217 currency code
type Currency string

const (
	USD Currency = "USD"
	EUR Currency = "EUR"
	GBP Currency = "GBP"
	CAD Currency = "CAD"
	AUD Currency = "AUD"
	JPY Currency = "JPY"
	CHF Currency = "CHF"
	SEK Currency = "SEK"
	INR Currency = "INR"
	KRW Currency = "KRW"
	BHD Currency = "BHD"
)

type currencyInfo struct {
	// exponent is the number of minor-unit digits (2 for cents, 0 for yen).
	exponent int32
	symbol   string
}

var currencies = map[Currency]currencyInfo{
	USD: {exponent: 2, symbol: "$"},
	EUR: {exponent: 2, symbol: "€"},
	GBP: {exponent: 2, symbol: "£"},
	CAD: {exponent: 2, symbol: "CA$"},
	AUD: {exponent: 2, symbol: "A$"},
	JPY: {exponent: 0, symbol: "¥"},
	CHF: {exponent: 2, symbol: "CHF"},
	SEK: {exponent: 2, symbol: "kr"},
	INR: {exponent: 2, symbol: "₹"},
	KRW: {exponent: 0, symbol: "₩"},
	BHD: {exponent: 3, symbol: "BD"},
}

// ParseCurrency normalizes and validates an ISO 4217 code.
func ParseCurrency(code string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(code)))
	if !c.IsValid() {
		return "", errors.InvalidCurrency(code)
	}
	return c, nil
}

// IsValid reports whether the currency is known.
func (c Currency) IsValid() bool {
	_, ok := currencies[c]
	return ok
}

// Exponent returns the number of minor-unit digits for the currency.
func (c Currency) Exponent() int32 {
	return currencies[c].exponent
}

// Symbol returns the display symbol, falling back to the code.
func (c Currency) Symbol() string {
	if info, ok := currencies[c]; ok {
		return info.symbol
	}
	return string(c)
}

// Lower returns the lowercase code the payment processor expects.
func (c Currency) Lower() string {
	return strings.ToLower(string(c))
}

func (c Currency) String() string {
	return string(c)
}

func currencyMismatch(a, b Currency, op string) error {
	return errors.ValidationFailed(
		ErrCurrencyMismatch,
		fmt.Sprintf("cannot %s %s and %s", op, a, b),
	)
}
