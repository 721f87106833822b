package crawler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"sjsage522/dealnotifier/helpers"
	"sjsage522/dealnotifier/logger"
)

// ChromeRenderer renders pages in a headless Chrome driven by chromedp.
// The browser is started on first use and shared by later renders.
type ChromeRenderer struct {
	chromeBin string
	timeout   time.Duration

	mu          sync.Mutex
	allocCtx    context.Context
	cancelAlloc context.CancelFunc
}

var _ Renderer = (*ChromeRenderer)(nil)

// NewChromeRenderer creates a renderer. An empty chromeBin lets chromedp find
// the browser itself.
func NewChromeRenderer(chromeBin string, timeout time.Duration) *ChromeRenderer {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ChromeRenderer{chromeBin: chromeBin, timeout: timeout}
}

func (r *ChromeRenderer) allocator() context.Context {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.allocCtx != nil {
		return r.allocCtx
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(helpers.UserAgent),
	)
	if r.chromeBin != "" {
		opts = append(opts, chromedp.ExecPath(r.chromeBin))
	}

	r.allocCtx, r.cancelAlloc = chromedp.NewExecAllocator(context.Background(), opts...)
	return r.allocCtx
}

// Render navigates to url, waits settle and returns the outer HTML of the document
func (r *ChromeRenderer) Render(ctx context.Context, url string, settle time.Duration) (string, error) {
	tabCtx, cancelTab := chromedp.NewContext(r.allocator(), chromedp.WithLogf(func(string, ...interface{}) {}))
	defer cancelTab()

	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, r.timeout+settle)
	defer cancelTimeout()

	// The caller's context still bounds the render.
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	var html string
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(url),
		chromedp.Sleep(settle),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", url, err)
	}

	logger.ForRenderer().Debug().Str("url", url).Int("bytes", len(html)).Msg("Rendered page")
	return html, nil
}

// Close shuts the browser down
func (r *ChromeRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancelAlloc != nil {
		r.cancelAlloc()
		r.allocCtx, r.cancelAlloc = nil, nil
	}
	return nil
}
