package worker

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sjsage522/dealnotifier/internal"
	"sjsage522/dealnotifier/internal/crawler"
	pkgerrors "sjsage522/dealnotifier/pkg/errors"
	"sjsage522/dealnotifier/services/ledger"
	"sjsage522/dealnotifier/services/notifier"
)

// MockFetcher returns a fixed page or error per source name
type MockFetcher struct {
	pages map[string]string
	errs  map[string]error
	calls []string
}

var _ crawler.PageFetcher = (*MockFetcher)(nil)

func (m *MockFetcher) Fetch(ctx context.Context, src crawler.SourceConfig) (string, error) {
	m.calls = append(m.calls, src.Name)
	if err, ok := m.errs[src.Name]; ok {
		return "", err
	}
	return m.pages[src.Name], nil
}

// MockNotifier records delivered messages and fails for texts containing
// failOn, or for every text when err is set
type MockNotifier struct {
	mu      sync.Mutex
	sent    []string
	failOn  string
	err     error
	trimmed int
}

var (
	_ notifier.Notifier = (*MockNotifier)(nil)
	_ notifier.Trimmer  = (*MockNotifier)(nil)
)

func (m *MockNotifier) Send(ctx context.Context, channelID, text string, disablePreview bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.failOn != "" && strings.Contains(text, m.failOn) {
		return pkgerrors.NewDelivery("mock", "rejected", errors.New("chat not found"))
	}
	m.sent = append(m.sent, text)
	return nil
}

func (m *MockNotifier) Trim(ctx context.Context) error {
	m.trimmed++
	return nil
}

func (m *MockNotifier) Close() error {
	return nil
}

// MockLedger keeps posted rows in memory
type MockLedger struct {
	rows     []string
	queryErr error
}

var _ ledger.Ledger = (*MockLedger)(nil)

func key(url string, price decimal.Decimal) string {
	return url + "@" + price.StringFixed(2)
}

func (m *MockLedger) WasRecentlyPosted(ctx context.Context, url string, price decimal.Decimal, window time.Duration) (bool, error) {
	if m.queryErr != nil {
		return false, m.queryErr
	}
	for _, r := range m.rows {
		if r == key(url, price) {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockLedger) MarkPosted(ctx context.Context, url string, price decimal.Decimal) error {
	m.rows = append(m.rows, key(url, price))
	return nil
}

func (m *MockLedger) Close() error {
	return nil
}

type card struct {
	path     string
	title    string
	current  string
	original string
}

func listingPage(cards ...card) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, c := range cards {
		fmt.Fprintf(&b, `<div class="card"><a class="link" href="%s">%s</a><span class="now">%s €</span><span class="was">%s €</span></div>`,
			c.path, c.title, c.current, c.original)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func testSource(name string) crawler.SourceConfig {
	return crawler.SourceConfig{
		Name:                  name,
		URL:                   "https://" + strings.ToLower(name) + ".example.fi/sale",
		ItemSelector:          "div.card",
		LinkSelector:          "a.link",
		PriceCurrentSelector:  "span.now",
		PriceOriginalSelector: "span.was",
	}
}

func testSettings() Settings {
	return Settings{
		ChannelID:         "-1001",
		DisablePreview:    true,
		DefaultCurrency:   "EUR",
		MinDiscountPct:    10,
		MaxItemsPerSource: 30,
		RepostWindow:      72 * time.Hour,
		RunInterval:       time.Hour,
	}
}

func TestRunOnceEndToEnd(t *testing.T) {
	ctx := context.Background()

	l, err := ledger.NewSQLite(filepath.Join(t.TempDir(), "seen.sqlite"))
	require.NoError(t, err)
	defer l.Close()

	fetcher := &MockFetcher{pages: map[string]string{
		"Store": listingPage(
			card{"/p/a", "Product A", "75,00", "100,00"},
			card{"/p/b", "Product B", "95,00", "100,00"},
		),
	}}
	mockNotifier := &MockNotifier{}

	w := NewWorker(internal.Dependencies{
		Fetcher:  fetcher,
		Ledger:   l,
		Notifier: mockNotifier,
	}, []crawler.SourceConfig{testSource("Store")}, testSettings())

	report, err := w.RunOnce(ctx)
	require.NoError(t, err)

	require.Len(t, mockNotifier.sent, 1)
	assert.Contains(t, mockNotifier.sent[0], "Product A")
	assert.Contains(t, mockNotifier.sent[0], "Discount: <b>25%</b>")

	rows, err := l.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rows)

	require.Len(t, report.Sources, 1)
	assert.Equal(t, "heuristic", report.Sources[0].Method)
	assert.Equal(t, 2, report.Sources[0].Extracted)
	assert.Equal(t, 1, report.Sources[0].Deals)
	assert.Equal(t, 1, report.Announced())
	assert.NotEmpty(t, report.RunID)
	assert.Same(t, report, w.LastReport())
	assert.Equal(t, 1, mockNotifier.trimmed)

	// The same price is suppressed on the next run
	report, err = w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Len(t, mockNotifier.sent, 1)
	assert.Equal(t, 1, report.Sources[0].Skipped)
}

func TestRunOnceOrderAndCap(t *testing.T) {
	fetcher := &MockFetcher{pages: map[string]string{
		"Store": listingPage(
			card{"/p/1", "Twenty", "80,00", "100,00"},
			card{"/p/2", "Fifty", "50,00", "100,00"},
			card{"/p/3", "Thirty", "70,00", "100,00"},
			card{"/p/4", "Also fifty", "5,00", "10,00"},
		),
	}}
	mockNotifier := &MockNotifier{}

	src := testSource("Store")
	src.MaxItems = 3

	w := NewWorker(internal.Dependencies{
		Fetcher:  fetcher,
		Ledger:   &MockLedger{},
		Notifier: mockNotifier,
	}, []crawler.SourceConfig{src}, testSettings())

	_, err := w.RunOnce(context.Background())
	require.NoError(t, err)

	require.Len(t, mockNotifier.sent, 3)
	assert.Contains(t, mockNotifier.sent[0], ">Fifty<")
	assert.Contains(t, mockNotifier.sent[1], ">Also fifty<")
	assert.Contains(t, mockNotifier.sent[2], ">Thirty<")
}

func TestRunOnceDeliveryFailureIsNotRecorded(t *testing.T) {
	mockLedger := &MockLedger{}
	mockNotifier := &MockNotifier{failOn: "Broken"}

	fetcher := &MockFetcher{pages: map[string]string{
		"Store": listingPage(
			card{"/p/1", "Broken", "50,00", "100,00"},
			card{"/p/2", "Working", "60,00", "100,00"},
		),
	}}

	w := NewWorker(internal.Dependencies{
		Fetcher:  fetcher,
		Ledger:   mockLedger,
		Notifier: mockNotifier,
	}, []crawler.SourceConfig{testSource("Store")}, testSettings())

	report, err := w.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Len(t, mockNotifier.sent, 1)
	assert.Equal(t, []string{"https://store.example.fi/p/2@60.00"}, mockLedger.rows)
	assert.Equal(t, 1, report.Sources[0].Failed)
	assert.Equal(t, 1, report.Sources[0].Announced)
}

func TestRunOnceFetchFailureContinues(t *testing.T) {
	fetcher := &MockFetcher{
		pages: map[string]string{
			"Good": listingPage(card{"/p/1", "Deal", "50,00", "100,00"}),
		},
		errs: map[string]error{
			"Bad": pkgerrors.NewFetch("Bad", "request failed", errors.New("connection refused")),
		},
	}
	mockNotifier := &MockNotifier{}

	w := NewWorker(internal.Dependencies{
		Fetcher:  fetcher,
		Ledger:   &MockLedger{},
		Notifier: mockNotifier,
	}, []crawler.SourceConfig{testSource("Bad"), testSource("Good")}, testSettings())

	report, err := w.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"Bad", "Good"}, fetcher.calls)
	require.Len(t, report.Sources, 2)
	assert.Contains(t, report.Sources[0].Err, "connection refused")
	assert.Len(t, mockNotifier.sent, 1)
}

func TestRunOnceLedgerFailureIsFatal(t *testing.T) {
	fetcher := &MockFetcher{pages: map[string]string{
		"First":  listingPage(card{"/p/1", "Deal", "50,00", "100,00"}),
		"Second": listingPage(card{"/p/2", "Deal", "50,00", "100,00"}),
	}}
	mockNotifier := &MockNotifier{}

	w := NewWorker(internal.Dependencies{
		Fetcher:  fetcher,
		Ledger:   &MockLedger{queryErr: pkgerrors.NewLedger("recency query failed", errors.New("database is locked"))},
		Notifier: mockNotifier,
	}, []crawler.SourceConfig{testSource("First"), testSource("Second")}, testSettings())

	report, err := w.RunOnce(context.Background())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsFatal(err))
	assert.Empty(t, mockNotifier.sent)
	assert.Equal(t, []string{"First"}, fetcher.calls)
	assert.NotEmpty(t, report.Err)
}

func TestRunOnceUntypedLedgerFailureIsFatal(t *testing.T) {
	fetcher := &MockFetcher{pages: map[string]string{
		"First":  listingPage(card{"/p/1", "Deal", "50,00", "100,00"}),
		"Second": listingPage(card{"/p/2", "Deal", "50,00", "100,00"}),
	}}

	w := NewWorker(internal.Dependencies{
		Fetcher:  fetcher,
		Ledger:   &MockLedger{queryErr: errors.New("disk I/O error")},
		Notifier: &MockNotifier{},
	}, []crawler.SourceConfig{testSource("First"), testSource("Second")}, testSettings())

	_, err := w.RunOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, pkgerrors.ErrorTypeLedger, pkgerrors.TypeOf(err))
	assert.Contains(t, err.Error(), "disk I/O error")
	assert.Equal(t, []string{"First"}, fetcher.calls)
}

func TestRunOnceDeliveryConfigurationErrorIsFatal(t *testing.T) {
	fetcher := &MockFetcher{pages: map[string]string{
		"First":  listingPage(card{"/p/1", "Deal", "50,00", "100,00"}),
		"Second": listingPage(card{"/p/2", "Deal", "50,00", "100,00"}),
	}}
	mockLedger := &MockLedger{}

	w := NewWorker(internal.Dependencies{
		Fetcher:  fetcher,
		Ledger:   mockLedger,
		Notifier: &MockNotifier{err: pkgerrors.NewConfiguration("bot token rejected", errors.New("Unauthorized"))},
	}, []crawler.SourceConfig{testSource("First"), testSource("Second")}, testSettings())

	report, err := w.RunOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, pkgerrors.ErrorTypeConfiguration, pkgerrors.TypeOf(err))
	assert.Equal(t, []string{"First"}, fetcher.calls)
	assert.Empty(t, mockLedger.rows)
	require.Len(t, report.Sources, 1)
	assert.Zero(t, report.Sources[0].Failed)
}

func TestRunOnceUntypedFetchFailureIsRecorded(t *testing.T) {
	fetcher := &MockFetcher{
		pages: map[string]string{"Good": listingPage(card{"/p/1", "Deal", "50,00", "100,00"})},
		errs:  map[string]error{"Bad": context.DeadlineExceeded},
	}

	w := NewWorker(internal.Dependencies{
		Fetcher:  fetcher,
		Ledger:   &MockLedger{},
		Notifier: &MockNotifier{},
	}, []crawler.SourceConfig{testSource("Bad"), testSource("Good")}, testSettings())

	report, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Sources, 2)
	assert.Contains(t, report.Sources[0].Err, "[fetch] Bad")
	assert.Equal(t, 1, report.Sources[1].Announced)
}

func TestSelectDealsThreshold(t *testing.T) {
	product := func(url, current string) crawler.Product {
		return crawler.Product{
			URL:           url,
			PriceCurrent:  decimal.RequireFromString(current),
			PriceOriginal: decimal.NewFromInt(100),
		}
	}

	deals := SelectDeals([]crawler.Product{
		product("/below", "90.1"),
		product("/exact", "90"),
		product("", "10"),
		{URL: "/no-original", PriceCurrent: decimal.NewFromInt(1)},
	}, 10)

	require.Len(t, deals, 1)
	assert.Equal(t, "/exact", deals[0].URL)
}

func TestRunOnceRejectsOverlap(t *testing.T) {
	w := NewWorker(internal.Dependencies{}, nil, testSettings())

	w.runMu.Lock()
	_, err := w.RunOnce(context.Background())
	w.runMu.Unlock()

	assert.ErrorIs(t, err, ErrRunInProgress)
}
