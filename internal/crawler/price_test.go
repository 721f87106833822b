package crawler

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		ok    bool
	}{
		{"thousands space and comma decimal", "1 299,00 €", "1299", true},
		{"plain decimal point", "19.99", "19.99", true},
		{"empty", "", "", false},
		{"whitespace only", "   ", "", false},
		{"noisy text", "abc 42,50 kr", "42.5", true},
		{"mixed separators", "1.299,50", "1299.5", true},
		{"non-breaking space", "1\u00a0049,95\u00a0€", "1049.95", true},
		{"trailing dot", "42.", "42", true},
		{"last number wins on fallback", "1.2.3", "3", true},
		{"no digits", "Tarjous!", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParsePrice(tt.input)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDiscountPct(t *testing.T) {
	p := Product{
		PriceCurrent:  decimal.NewFromInt(80),
		PriceOriginal: decimal.NewFromInt(100),
	}
	assert.True(t, decimal.NewFromInt(20).Equal(p.DiscountPct()))
	assert.True(t, p.HasPrices())

	// Original price of zero never divides
	p.PriceOriginal = decimal.Zero
	assert.True(t, p.DiscountPct().IsZero())
	assert.False(t, p.HasPrices())

	// A price increase is not a negative discount
	p.PriceOriginal = decimal.NewFromInt(50)
	assert.True(t, p.DiscountPct().IsZero())
}
