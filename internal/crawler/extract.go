package crawler

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"sjsage522/dealnotifier/helpers"
	pkgerrors "sjsage522/dealnotifier/pkg/errors"
)

// Method names the extractor that produced a page's products
type Method string

const (
	MethodStructured Method = "structured"
	MethodHeuristic  Method = "heuristic"
)

// Extraction is the outcome of reading one source page
type Extraction struct {
	Products   []Product
	Method     Method
	Candidates int
}

// Extractor turns page markup into products: structured data first, listing
// card selectors only when structured data yields no product with both prices.
type Extractor struct {
	DefaultCurrency string
}

// NewExtractor creates an extractor using currency when a page names none
func NewExtractor(currency string) *Extractor {
	return &Extractor{DefaultCurrency: currency}
}

// Extract parses page and returns the products of src found in it
func (e *Extractor) Extract(src SourceConfig, page string) (*Extraction, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return nil, pkgerrors.NewExtraction(src.Name, "HTML parsing failed", err)
	}

	currency := src.CurrencyOr(e.DefaultCurrency)

	candidates := ExtractStructured(doc, currency)
	if products := productsFromCandidates(src, doc, candidates); len(products) > 0 {
		return &Extraction{
			Products:   products,
			Method:     MethodStructured,
			Candidates: len(candidates),
		}, nil
	}

	return &Extraction{
		Products:   ExtractListings(src, doc, currency),
		Method:     MethodHeuristic,
		Candidates: len(candidates),
	}, nil
}

// productsFromCandidates keeps candidates carrying both prices. A candidate
// without its own URL takes the page's canonical link.
func productsFromCandidates(src SourceConfig, doc *goquery.Document, candidates []Candidate) []Product {
	var products []Product
	var canonical string
	canonicalRead := false

	for _, c := range candidates {
		if !c.Price.Valid || !c.PriceOriginal.Valid {
			continue
		}

		url := c.URL
		if url == "" {
			if !canonicalRead {
				canonical = strings.TrimSpace(doc.Find(`link[rel="canonical"]`).First().AttrOr("href", ""))
				canonicalRead = true
			}
			url = canonical
		}
		if url != "" {
			url = helpers.ResolveURL(src.URL, url)
		}

		title := c.Name
		if title == "" {
			title = untitled
		}

		products = append(products, Product{
			Source:        src.Name,
			Title:         title,
			URL:           url,
			PriceCurrent:  c.Price.Decimal,
			PriceOriginal: c.PriceOriginal.Decimal,
			Currency:      c.Currency,
			Image:         c.Image,
		})
	}

	return products
}
