package notifier

import (
	"context"
	"fmt"
	"html"
	"strings"

	"sjsage522/dealnotifier/internal/crawler"
	"sjsage522/dealnotifier/services/translator"
)

// Notifier delivers a formatted announcement to a channel
type Notifier interface {
	// Send delivers text to channelID. A nil error means the channel accepted it.
	Send(ctx context.Context, channelID, text string, disablePreview bool) error

	// Close releases the notifier's connections
	Close() error
}

// Trimmer is implemented by notifiers whose destination grows without bound
type Trimmer interface {
	Trim(ctx context.Context) error
}

// FormatMessage renders p as a Telegram HTML message. The title is passed
// through tr and the original title is appended when the translation
// changed it.
func FormatMessage(ctx context.Context, p crawler.Product, tr translator.Translator) string {
	title := p.Title
	if tr != nil {
		title = tr.Translate(ctx, p.Title)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🧭 <b>%s</b>\n", html.EscapeString(p.Source))
	fmt.Fprintf(&b, "🔖 <a href=\"%s\">%s</a>\n", html.EscapeString(p.URL), html.EscapeString(title))
	fmt.Fprintf(&b, "💸 %s %s  <s>%s %s</s>\n",
		p.PriceCurrent.StringFixed(2), html.EscapeString(p.Currency),
		p.PriceOriginal.StringFixed(2), html.EscapeString(p.Currency))
	fmt.Fprintf(&b, "📉 Discount: <b>%s%%</b>", p.DiscountPct().StringFixed(0))
	if title != p.Title {
		fmt.Fprintf(&b, "\n🌐 <i>%s</i>", html.EscapeString(p.Title))
	}
	return b.String()
}
