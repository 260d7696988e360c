package valueobjects

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		name     string
		minor    int64
		currency Currency
		locale   string
		want     string
	}{
		{name: "us dollars", minor: 123456, currency: USD, locale: "en-US", want: "$1,234.56"},
		{name: "small amount", minor: 5, currency: USD, locale: "en-US", want: "$0.05"},
		{name: "german euros", minor: 123456, currency: EUR, locale: "de-DE", want: "1.234,56 €"},
		{name: "underscore locale", minor: 123456, currency: EUR, locale: "de_de", want: "1.234,56 €"},
		{name: "yen without decimals", minor: 1234567, currency: JPY, locale: "ja-JP", want: "¥1,234,567"},
		{name: "unknown locale falls back", minor: 100000, currency: GBP, locale: "xx-YY", want: "£1,000.00"},
		{name: "french grouping", minor: 1234567, currency: EUR, locale: "fr-FR", want: "12 345,67 €"},
		{name: "swiss", minor: 100000000, currency: CHF, locale: "de-CH", want: "CHF 1'000'000.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewMoney(tt.minor, tt.currency)
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.Format(tt.locale))
		})
	}
}

func TestGroupDigits(t *testing.T) {
	assert.Equal(t, "0", groupDigits("0", ","))
	assert.Equal(t, "999", groupDigits("999", ","))
	assert.Equal(t, "1,000", groupDigits("1000", ","))
	assert.Equal(t, "123,456", groupDigits("123456", ","))
	assert.Equal(t, "1,234,567", groupDigits("1234567", ","))
}
