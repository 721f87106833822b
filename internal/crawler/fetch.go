package crawler

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"sjsage522/dealnotifier/helpers"
	"sjsage522/dealnotifier/logger"
	pkgerrors "sjsage522/dealnotifier/pkg/errors"
	"sjsage522/dealnotifier/services/cache"
)

const rateLimitKeyPrefix = "dealbot_rate_limited:"

// FetcherConfig holds the page retrieval settings
type FetcherConfig struct {
	Timeout      time.Duration
	MaxPages     int
	PageDelay    time.Duration
	RenderSettle time.Duration
	BlockTime    time.Duration
}

// Fetcher retrieves source pages with one of three strategies: paginated,
// rendered or plain.
type Fetcher struct {
	client     *http.Client
	renderer   Renderer
	cacheSvc   cache.CacheService
	paginators *Paginators
	cfg        FetcherConfig
}

var _ PageFetcher = (*Fetcher)(nil)

// NewFetcher creates a fetcher. renderer and cacheSvc may be nil.
func NewFetcher(cfg FetcherConfig, cacheSvc cache.CacheService, renderer Renderer) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 1
	}
	return &Fetcher{
		client:     helpers.NewClient(cfg.Timeout),
		renderer:   renderer,
		cacheSvc:   cacheSvc,
		paginators: DefaultPaginators(),
		cfg:        cfg,
	}
}

// WithPaginators replaces the page-numbering registry
func (f *Fetcher) WithPaginators(p *Paginators) *Fetcher {
	f.paginators = p
	return f
}

// Fetch returns the markup of src. Catalogs with a pagination convention are
// read page by page; dynamic sources go through the renderer and fall back to
// a plain request when rendering fails.
func (f *Fetcher) Fetch(ctx context.Context, src SourceConfig) (string, error) {
	if f.isBlocked(src) {
		return "", pkgerrors.NewRateLimit(src.Name, f.cfg.BlockTime)
	}

	log := logger.ForFetcher(src.Name)

	if strategy, paginated := f.paginators.For(src); paginated {
		return f.fetchPaginated(ctx, src, strategy)
	}

	if src.Dynamic && f.renderer != nil {
		page, err := f.renderer.Render(ctx, src.URL, f.cfg.RenderSettle)
		if err == nil {
			return page, nil
		}
		log.Warn().Err(pkgerrors.NewRender(src.Name, "rendering failed", err)).Msg("Falling back to plain fetch")
	}

	return f.fetchPlain(ctx, src, src.URL)
}

func (f *Fetcher) fetchPlain(ctx context.Context, src SourceConfig, pageURL string) (string, error) {
	body, err := helpers.FetchPage(ctx, f.client, pageURL)
	if err != nil {
		if errors.Is(err, helpers.ErrRateLimited) {
			f.block(src)
			return "", pkgerrors.New(pkgerrors.ErrorTypeRateLimit, src.Name, "origin rate limited the request", err)
		}
		return "", pkgerrors.NewFetch(src.Name, "request failed for "+pageURL, err)
	}
	return string(body), nil
}

// fetchPaginated collects pages until one has no listing cards, a request
// fails or the page limit is reached. Only a failure of the first page is an
// error.
func (f *Fetcher) fetchPaginated(ctx context.Context, src SourceConfig, strategy PageStrategy) (string, error) {
	log := logger.ForFetcher(src.Name)

	maxPages := src.MaxPages
	if maxPages <= 0 {
		maxPages = f.cfg.MaxPages
	}

	var pages []string
	for n := 1; n <= maxPages; n++ {
		if n > 1 {
			if err := sleepCtx(ctx, f.cfg.PageDelay); err != nil {
				break
			}
		}

		pageURL := strategy.PageURL(src.URL, n)
		page, err := f.fetchPlain(ctx, src, pageURL)
		if err != nil {
			if n == 1 {
				return "", err
			}
			log.Warn().Err(err).Int("page", n).Msg("Stopping pagination")
			break
		}

		pages = append(pages, page)

		// An empty page ends the catalog but its body may still carry structured data
		cards := countCards(page, src.ItemSelector)
		log.Debug().Int("page", n).Int("cards", cards).Msg("Fetched page")
		if cards == 0 {
			break
		}
	}

	return strings.Join(pages, "\n"), nil
}

func (f *Fetcher) isBlocked(src SourceConfig) bool {
	if f.cacheSvc == nil {
		return false
	}
	_, err := f.cacheSvc.Get(rateLimitKey(src.Name))
	return err == nil
}

func (f *Fetcher) block(src SourceConfig) {
	if f.cacheSvc == nil || f.cfg.BlockTime <= 0 {
		return
	}
	if err := f.cacheSvc.Set(rateLimitKey(src.Name), []byte(f.cfg.BlockTime.String()), f.cfg.BlockTime); err != nil {
		logger.ForFetcher(src.Name).Warn().Err(err).Msg("Failed to store rate limit block")
	}
}

func rateLimitKey(name string) string {
	return rateLimitKeyPrefix + url.QueryEscape(strings.ToLower(name))
}

func countCards(page, selector string) int {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return 0
	}
	return doc.Find(selector).Length()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
