package crawler

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	priceTokenRegex = regexp.MustCompile(`\d+[.,]?\d*`)
	nonPriceRegex   = regexp.MustCompile(`[^0-9,.\s]`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
)

// ParsePrice converts a locale-formatted price string such as "1 299,00 €"
// into a decimal. The boolean is false when no value could be read.
//
// When both separators are present "." is the thousands separator and ","
// the decimal one; a lone "," is a decimal separator. If the cleaned string
// is still not a number the last number-looking token of the original text
// is used.
func ParsePrice(text string) (decimal.Decimal, bool) {
	if text == "" {
		return decimal.Zero, false
	}

	t := strings.ReplaceAll(text, "\u00a0", " ")
	t = nonPriceRegex.ReplaceAllString(t, "")
	t = whitespaceRegex.ReplaceAllString(t, "")
	t = normalizeSeparators(t)

	if d, ok := parseDecimal(t); ok {
		return d, true
	}

	matches := priceTokenRegex.FindAllString(text, -1)
	if len(matches) == 0 {
		return decimal.Zero, false
	}
	return parseDecimal(strings.ReplaceAll(matches[len(matches)-1], ",", "."))
}

// priceTokens returns every number-looking token of text in order
func priceTokens(text string) []string {
	return priceTokenRegex.FindAllString(text, -1)
}

func normalizeSeparators(t string) string {
	switch {
	case strings.Contains(t, ",") && strings.Contains(t, "."):
		t = strings.ReplaceAll(t, ".", "")
		return strings.ReplaceAll(t, ",", ".")
	case strings.Count(t, ",") == 1:
		return strings.Replace(t, ",", ".", 1)
	}
	return t
}

func parseDecimal(s string) (decimal.Decimal, bool) {
	// "42." reads as 42
	s = strings.TrimSuffix(s, ".")
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
