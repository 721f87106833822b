package crawler

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Product represents one extracted listing with both prices present
type Product struct {
	Source        string          `json:"source"`
	Title         string          `json:"title"`
	URL           string          `json:"url"`
	PriceCurrent  decimal.Decimal `json:"price_current"`
	PriceOriginal decimal.Decimal `json:"price_original"`
	Currency      string          `json:"currency"`
	Image         string          `json:"image,omitempty"`
}

// DiscountPct returns max(0, (1 - current/original) * 100), or 0 when the
// original price is not positive.
func (p Product) DiscountPct() decimal.Decimal {
	if !p.PriceOriginal.IsPositive() {
		return decimal.Zero
	}
	pct := decimal.NewFromInt(1).Sub(p.PriceCurrent.Div(p.PriceOriginal)).Mul(hundred)
	if pct.IsNegative() {
		return decimal.Zero
	}
	return pct
}

// HasPrices reports whether both prices are strictly positive
func (p Product) HasPrices() bool {
	return p.PriceCurrent.IsPositive() && p.PriceOriginal.IsPositive()
}

// Candidate is a product record read from a structured-data block.
// Prices are optional at this stage.
type Candidate struct {
	Name          string
	URL           string
	Image         string
	Price         decimal.NullDecimal
	PriceOriginal decimal.NullDecimal
	Currency      string
}

// SourceConfig describes one catalog page and how to read its listing cards
type SourceConfig struct {
	Name                  string `yaml:"name"`
	URL                   string `yaml:"url"`
	Dynamic               bool   `yaml:"dynamic"`
	ItemSelector          string `yaml:"item_selector"`
	LinkSelector          string `yaml:"link_selector"`
	PriceCurrentSelector  string `yaml:"price_current_selector"`
	PriceOriginalSelector string `yaml:"price_original_selector,omitempty"`

	// Optional per-source overrides
	Paginate       bool     `yaml:"paginate,omitempty"`
	MaxPages       int      `yaml:"max_pages,omitempty"`
	Currency       string   `yaml:"currency,omitempty"`
	MinDiscountPct *float64 `yaml:"min_discount_pct,omitempty"`
	MaxItems       int      `yaml:"max_items,omitempty"`
}

// CurrencyOr returns the source currency or def
func (s SourceConfig) CurrencyOr(def string) string {
	if s.Currency != "" {
		return s.Currency
	}
	return def
}

// MinDiscountOr returns the source discount threshold or def
func (s SourceConfig) MinDiscountOr(def float64) float64 {
	if s.MinDiscountPct != nil {
		return *s.MinDiscountPct
	}
	return def
}

// MaxItemsOr returns the source delivery cap or def
func (s SourceConfig) MaxItemsOr(def int) int {
	if s.MaxItems > 0 {
		return s.MaxItems
	}
	return def
}

// PageFetcher retrieves the raw markup of a source
type PageFetcher interface {
	Fetch(ctx context.Context, src SourceConfig) (string, error)
}

// Renderer fetches a page through a real browser engine and returns the
// DOM after it has settled.
type Renderer interface {
	Render(ctx context.Context, url string, settle time.Duration) (string, error)
}
