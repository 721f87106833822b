package crawler

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
)

// originalPriceKeys are checked in order; the first key present wins.
var originalPriceKeys = []string{"priceOriginal", "priceBeforeDiscount", "msrp", "listPrice", "priceWas"}

// ExtractStructured collects a Candidate for every product record embedded
// in the page's ld+json blocks that carries a current price. Malformed
// blocks are skipped.
func ExtractStructured(doc *goquery.Document, defaultCurrency string) []Candidate {
	var candidates []Candidate

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var data interface{}
		if err := json.Unmarshal([]byte(strings.TrimSpace(s.Text())), &data); err != nil {
			return
		}

		for _, record := range productRecords(data) {
			if c, ok := candidateFromRecord(record, defaultCurrency); ok {
				candidates = append(candidates, c)
			}
		}
	})

	return candidates
}

// productRecords flattens a decoded block into the objects that describe a
// product: top-level objects, @graph members and ItemList entries.
func productRecords(data interface{}) []map[string]interface{} {
	var records []map[string]interface{}

	var visit func(v interface{}, depth int)
	visit = func(v interface{}, depth int) {
		if depth > 6 {
			return
		}
		switch node := v.(type) {
		case []interface{}:
			for _, item := range node {
				visit(item, depth+1)
			}
		case map[string]interface{}:
			if isProductRecord(node) {
				records = append(records, node)
			}
			if graph, ok := node["@graph"]; ok {
				visit(graph, depth+1)
			}
			if elements, ok := node["itemListElement"]; ok {
				visit(elements, depth+1)
			}
			if item, ok := node["item"].(map[string]interface{}); ok {
				visit(item, depth+1)
			}
		}
	}
	visit(data, 0)

	return records
}

// isProductRecord accepts Product-typed records and any record with a
// name and a nested offer.
func isProductRecord(record map[string]interface{}) bool {
	if hasType(record["@type"], "Product") {
		return true
	}
	_, hasName := record["name"]
	_, hasOffers := record["offers"]
	return hasName && hasOffers
}

func hasType(v interface{}, want string) bool {
	switch t := v.(type) {
	case string:
		return t == want
	case []interface{}:
		for _, item := range t {
			if s, ok := item.(string); ok && s == want {
				return true
			}
		}
	}
	return false
}

func candidateFromRecord(record map[string]interface{}, defaultCurrency string) (Candidate, bool) {
	c := Candidate{
		Name:     stringValue(record["name"]),
		URL:      stringValue(record["url"]),
		Image:    imageValue(record["image"]),
		Currency: defaultCurrency,
	}

	offer := firstOffer(record["offers"])
	if offer != nil {
		if price, ok := priceValue(offer["price"]); ok {
			c.Price = decimal.NewNullDecimal(price)
		} else if low, ok := priceValue(offer["lowPrice"]); ok {
			c.Price = decimal.NewNullDecimal(low)
		}
		if currency := stringValue(offer["priceCurrency"]); currency != "" {
			c.Currency = currency
		}
	}
	if !c.Price.Valid {
		return Candidate{}, false
	}

	if original, found := originalPrice(record); found {
		c.PriceOriginal = original
	} else if offer != nil {
		c.PriceOriginal, _ = originalPrice(offer)
	}

	return c, true
}

// originalPrice returns the value of the first alternate price key present
// in m. found is true even when that value cannot be read as a price.
func originalPrice(m map[string]interface{}) (price decimal.NullDecimal, found bool) {
	for _, key := range originalPriceKeys {
		v, ok := m[key]
		if !ok {
			continue
		}
		if d, ok := priceValue(v); ok {
			return decimal.NewNullDecimal(d), true
		}
		return decimal.NullDecimal{}, true
	}
	return decimal.NullDecimal{}, false
}

func firstOffer(v interface{}) map[string]interface{} {
	switch offers := v.(type) {
	case map[string]interface{}:
		// AggregateOffer without its own price: use the first nested offer
		if _, hasPrice := offers["price"]; !hasPrice {
			if _, hasLow := offers["lowPrice"]; !hasLow {
				if nested := firstOffer(offers["offers"]); nested != nil {
					return nested
				}
			}
		}
		return offers
	case []interface{}:
		if len(offers) > 0 {
			if m, ok := offers[0].(map[string]interface{}); ok {
				return m
			}
		}
	}
	return nil
}

func priceValue(v interface{}) (decimal.Decimal, bool) {
	switch p := v.(type) {
	case float64:
		return decimal.NewFromFloat(p), true
	case string:
		return ParsePrice(p)
	case map[string]interface{}:
		// PriceSpecification
		return priceValue(p["price"])
	}
	return decimal.Zero, false
}

func imageValue(v interface{}) string {
	switch img := v.(type) {
	case string:
		return img
	case []interface{}:
		if len(img) > 0 {
			return imageValue(img[0])
		}
	case map[string]interface{}:
		return stringValue(img["url"])
	}
	return ""
}

func stringValue(v interface{}) string {
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}
