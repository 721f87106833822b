package crawler

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"sjsage522/dealnotifier/helpers"
)

const untitled = "Untitled"

// ExtractListings walks the listing cards of doc with the source's selectors.
// Cards without a link or without both prices are skipped.
func ExtractListings(src SourceConfig, doc *goquery.Document, currency string) []Product {
	var products []Product

	doc.Find(src.ItemSelector).Each(func(_ int, card *goquery.Selection) {
		if p, ok := listingFromCard(src, card, currency); ok {
			products = append(products, p)
		}
	})

	return products
}

func listingFromCard(src SourceConfig, card *goquery.Selection, currency string) (Product, bool) {
	link := card.Find(src.LinkSelector).First()
	if link.Length() == 0 {
		return Product{}, false
	}
	href, exists := link.Attr("href")
	if !exists || strings.TrimSpace(href) == "" {
		return Product{}, false
	}

	current, original, ok := cardPrices(src, card)
	if !ok {
		return Product{}, false
	}

	return Product{
		Source:        src.Name,
		Title:         cardTitle(link),
		URL:           helpers.ResolveURL(src.URL, href),
		PriceCurrent:  current,
		PriceOriginal: original,
		Currency:      currency,
		Image:         cardImage(src, card),
	}, true
}

// cardTitle prefers the link's title attribute, then aria-label, then text
func cardTitle(link *goquery.Selection) string {
	for _, attr := range []string{"title", "aria-label"} {
		if v := strings.TrimSpace(link.AttrOr(attr, "")); v != "" {
			return v
		}
	}
	if text := helpers.SpacedText(link); text != "" {
		return text
	}
	return untitled
}

// cardPrices reads both prices of a card. When no original price can be
// read but the current-price element holds two or more numbers, the first
// number is the original price and the last one the current price.
func cardPrices(src SourceConfig, card *goquery.Selection) (current, original decimal.Decimal, ok bool) {
	var currentText string
	currentSel := card.Find(src.PriceCurrentSelector).First()
	if currentSel.Length() > 0 {
		currentText = helpers.SpacedText(currentSel)
	}
	current, hasCurrent := ParsePrice(currentText)

	var hasOriginal bool
	if src.PriceOriginalSelector != "" {
		if originalSel := card.Find(src.PriceOriginalSelector).First(); originalSel.Length() > 0 {
			original, hasOriginal = ParsePrice(helpers.SpacedText(originalSel))
		}
	}

	if !hasOriginal && currentSel.Length() > 0 {
		if tokens := priceTokens(currentText); len(tokens) >= 2 {
			current, hasCurrent = ParsePrice(tokens[len(tokens)-1])
			original, hasOriginal = ParsePrice(tokens[0])
		}
	}

	return current, original, hasCurrent && hasOriginal
}

func cardImage(src SourceConfig, card *goquery.Selection) string {
	img := card.Find("img").First()
	if img.Length() == 0 {
		return ""
	}
	for _, attr := range []string{"src", "data-src"} {
		if v := strings.TrimSpace(img.AttrOr(attr, "")); v != "" && !strings.HasPrefix(v, "data:") {
			return helpers.ResolveURL(src.URL, v)
		}
	}
	return ""
}
