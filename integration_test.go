package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sjsage522/dealnotifier/internal"
	"sjsage522/dealnotifier/internal/crawler"
	"sjsage522/dealnotifier/services/cache"
	"sjsage522/dealnotifier/services/ledger"
	"sjsage522/dealnotifier/services/notifier"
	"sjsage522/dealnotifier/services/translator"
	"sjsage522/dealnotifier/services/worker"
)

// A catalog split over two pages; page 3 has no listing cards
var catalogPages = map[string]string{
	"": `<html><body>
		<li class="item"><a class="name" href="/p/keitin">Vedenkeitin</a>
			<span class="price"><s>40,00 €</s> 30,00 €</span></li>
		<li class="item"><a class="name" href="/p/imuri">Imuri</a>
			<span class="price"><s>100,00 €</s> 97,00 €</span></li>
	</body></html>`,
	"2": `<html><body>
		<li class="item"><a class="name" href="/p/pannu">Paistinpannu</a>
			<span class="price"><s>50,00 €</s> 25,00 €</span></li>
	</body></html>`,
	"3": `<html><body><p>Ei tuotteita</p></body></html>`,
}

type fakeTelegram struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeTelegram) handler(w http.ResponseWriter, r *http.Request) {
	r.ParseForm()
	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasSuffix(r.URL.Path, "/getMe"):
		fmt.Fprint(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Deals","username":"deals_bot"}}`)
	case strings.HasSuffix(r.URL.Path, "/sendMessage"):
		f.mu.Lock()
		f.sent = append(f.sent, r.FormValue("text"))
		f.mu.Unlock()
		fmt.Fprint(w, `{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":-1001,"type":"channel"}}}`)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeTelegram) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func TestIntegration(t *testing.T) {
	ctx := context.Background()

	var mu sync.Mutex
	var requested []string
	catalog := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("p")
		mu.Lock()
		requested = append(requested, page)
		mu.Unlock()
		fmt.Fprint(w, catalogPages[page])
	}))
	defer catalog.Close()

	tg := &fakeTelegram{}
	telegram := httptest.NewServer(http.HandlerFunc(tg.handler))
	defer telegram.Close()

	translate := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Q string `json:"q"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		english := map[string]string{"Paistinpannu": "Frying pan", "Vedenkeitin": "Kettle"}
		json.NewEncoder(w).Encode(map[string]string{"translatedText": english[req.Q]})
	}))
	defer translate.Close()

	cacheSvc := cache.NewMemoryCache()

	l, err := ledger.NewSQLite(filepath.Join(t.TempDir(), "data", "seen.sqlite"))
	require.NoError(t, err)
	defer l.Close()

	n, err := notifier.NewTelegramNotifierWithEndpoint("123:abc", telegram.URL+"/bot%s/%s", telegram.Client())
	require.NoError(t, err)

	sources, err := crawler.ParseSources([]byte(fmt.Sprintf(`
stores:
  - name: Test Catalog
    url: %s/sale
    paginate: true
    item_selector: li.item
    link_selector: a.name
    price_current_selector: span.price
`, catalog.URL)))
	require.NoError(t, err)

	w := worker.NewWorker(internal.Dependencies{
		Cache:      cacheSvc,
		Fetcher:    crawler.NewFetcher(crawler.FetcherConfig{MaxPages: 5, BlockTime: time.Minute}, cacheSvc, nil),
		Ledger:     l,
		Notifier:   n,
		Translator: translator.NewHTTPTranslator(translate.URL, "fi", "en", cacheSvc),
	}, sources, worker.Settings{
		ChannelID:         "-1001",
		DisablePreview:    true,
		DefaultCurrency:   "EUR",
		MinDiscountPct:    10,
		MaxItemsPerSource: 30,
		RepostWindow:      72 * time.Hour,
	})

	report, err := w.RunOnce(ctx)
	require.NoError(t, err)

	mu.Lock()
	assert.Equal(t, []string{"", "2", "3"}, requested)
	mu.Unlock()

	// Frying pan (50%) before Kettle (25%); the vacuum (3%) is filtered out
	sent := tg.messages()
	require.Len(t, sent, 2)
	assert.Contains(t, sent[0], "Frying pan</a>")
	assert.Contains(t, sent[0], "🌐 <i>Paistinpannu</i>")
	assert.Contains(t, sent[0], "25.00 EUR  <s>50.00 EUR</s>")
	assert.Contains(t, sent[1], "Kettle</a>")
	assert.Contains(t, sent[1], catalog.URL+"/p/keitin")

	require.Len(t, report.Sources, 1)
	assert.Equal(t, 3, report.Sources[0].Extracted)
	assert.Equal(t, 2, report.Sources[0].Announced)

	rows, err := l.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rows)

	// Nothing new on the second run
	report, err = w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Len(t, tg.messages(), 2)
	assert.Equal(t, 2, report.Sources[0].Skipped)
}
