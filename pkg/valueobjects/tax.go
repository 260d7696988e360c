package valueobjects

import (
	"fmt"
	"strings"

	"github.com/NomadCrew/nomad-crew-payments/errors"
	"github.com/shopspring/decimal"
)

// TaxRate is a regional rate in basis points (1/100 of a percent).
type TaxRate struct {
	Region      string `json:"region"`
	BasisPoints int64  `json:"basisPoints"`
	Label       string `json:"label"`
}

var taxRates = map[string]TaxRate{
	"US":    {Region: "US", BasisPoints: 0, Label: "Sales tax"},
	"US-CA": {Region: "US-CA", BasisPoints: 725, Label: "Sales tax"},
	"US-NY": {Region: "US-NY", BasisPoints: 400, Label: "Sales tax"},
	"US-TX": {Region: "US-TX", BasisPoints: 625, Label: "Sales tax"},
	"US-FL": {Region: "US-FL", BasisPoints: 600, Label: "Sales tax"},
	"CA-ON": {Region: "CA-ON", BasisPoints: 1300, Label: "HST"},
	"CA-BC": {Region: "CA-BC", BasisPoints: 1200, Label: "GST+PST"},
	"GB":    {Region: "GB", BasisPoints: 2000, Label: "VAT"},
	"DE":    {Region: "DE", BasisPoints: 1900, Label: "MwSt"},
	"FR":    {Region: "FR", BasisPoints: 2000, Label: "TVA"},
	"ES":    {Region: "ES", BasisPoints: 2100, Label: "IVA"},
	"IT":    {Region: "IT", BasisPoints: 2200, Label: "IVA"},
	"NL":    {Region: "NL", BasisPoints: 2100, Label: "BTW"},
	"SE":    {Region: "SE", BasisPoints: 2500, Label: "Moms"},
	"CH":    {Region: "CH", BasisPoints: 810, Label: "MWST"},
	"JP":    {Region: "JP", BasisPoints: 1000, Label: "Consumption tax"},
	"AU":    {Region: "AU", BasisPoints: 1000, Label: "GST"},
	"IN":    {Region: "IN", BasisPoints: 1800, Label: "GST"},
}

var basisPointsDivisor = decimal.NewFromInt(10000)

// LookupTaxRate returns the rate for an ISO 3166 region ("DE", "US-CA").
// A subdivision without its own entry falls back to its country.
func LookupTaxRate(region string) (TaxRate, error) {
	key := strings.ToUpper(strings.TrimSpace(region))
	if rate, ok := taxRates[key]; ok {
		return rate, nil
	}
	if country, _, found := strings.Cut(key, "-"); found {
		if rate, ok := taxRates[country]; ok {
			return rate, nil
		}
	}
	return TaxRate{}, errors.ValidationFailed("Unknown tax region", fmt.Sprintf("Region: %s", region))
}

// ComputeTax returns the tax due on a net amount, rounded half away from
// zero to the currency's minor unit.
func ComputeTax(net Money, region string) (Money, error) {
	rate, err := LookupTaxRate(region)
	if err != nil {
		return Money{}, err
	}
	tax := decimal.NewFromInt(net.minor).
		Mul(decimal.NewFromInt(rate.BasisPoints)).
		Div(basisPointsDivisor).
		Round(0)
	return Money{minor: tax.IntPart(), currency: net.currency}, nil
}

// ExtractIncludedTax splits a tax-inclusive gross amount into net and tax.
// The net part is rounded; tax is the remainder so net+tax == gross.
func ExtractIncludedTax(gross Money, region string) (net Money, tax Money, err error) {
	rate, err := LookupTaxRate(region)
	if err != nil {
		return Money{}, Money{}, err
	}
	divisor := basisPointsDivisor.Add(decimal.NewFromInt(rate.BasisPoints))
	netMinor := decimal.NewFromInt(gross.minor).Mul(basisPointsDivisor).Div(divisor).Round(0).IntPart()
	net = Money{minor: netMinor, currency: gross.currency}
	tax = Money{minor: gross.minor - netMinor, currency: gross.currency}
	return net, tax, nil
}
