package valueobjects

import (
	"strings"
)

// localeFormat describes how a locale writes amounts.
type localeFormat struct {
	group       string
	decimal     string
	symbolAfter bool
	space       bool
}

var locales = map[string]localeFormat{
	"en-US": {group: ",", decimal: "."},
	"en-GB": {group: ",", decimal: "."},
	"en-CA": {group: ",", decimal: "."},
	"en-AU": {group: ",", decimal: "."},
	"en-IN": {group: ",", decimal: "."},
	"ja-JP": {group: ",", decimal: "."},
	"de-DE": {group: ".", decimal: ",", symbolAfter: true, space: true},
	"es-ES": {group: ".", decimal: ",", symbolAfter: true, space: true},
	"it-IT": {group: ".", decimal: ",", symbolAfter: true, space: true},
	"nl-NL": {group: ".", decimal: ",", space: true},
	"fr-FR": {group: " ", decimal: ",", symbolAfter: true, space: true},
	"sv-SE": {group: " ", decimal: ",", symbolAfter: true, space: true},
	"de-CH": {group: "'", decimal: ".", space: true},
}

// DefaultLocale is used for unknown or empty locales.
const DefaultLocale = "en-US"

// Format renders m for a BCP 47 locale, e.g. "$1,234.56" for en-US or
// "1.234,56 €" for de-DE. Unknown locales fall back to en-US.
func (m Money) Format(locale string) string {
	lf, ok := locales[normalizeLocale(locale)]
	if !ok {
		lf = locales[DefaultLocale]
	}

	fixed := m.DisplayString()
	intPart, fracPart, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	b.WriteString(groupDigits(intPart, lf.group))
	if fracPart != "" {
		b.WriteString(lf.decimal)
		b.WriteString(fracPart)
	}
	number := b.String()

	symbol := m.currency.Symbol()
	sep := ""
	if lf.space {
		sep = " "
	}
	if lf.symbolAfter {
		return number + sep + symbol
	}
	return symbol + sep + number
}

func normalizeLocale(locale string) string {
	locale = strings.ReplaceAll(strings.TrimSpace(locale), "_", "-")
	lang, region, found := strings.Cut(locale, "-")
	if !found {
		return strings.ToLower(lang)
	}
	return strings.ToLower(lang) + "-" + strings.ToUpper(region)
}

func groupDigits(digits, sep string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteString(sep)
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
