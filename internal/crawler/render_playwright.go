package crawler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"sjsage522/dealnotifier/helpers"
	"sjsage522/dealnotifier/logger"
)

// PlaywrightRenderer renders pages in Chromium through playwright
type PlaywrightRenderer struct {
	timeout time.Duration

	mu      sync.Mutex
	pw      *playwright.Playwright
	browser playwright.Browser
}

var _ Renderer = (*PlaywrightRenderer)(nil)

// NewPlaywrightRenderer creates a renderer. Playwright is started on first use.
func NewPlaywrightRenderer(timeout time.Duration) *PlaywrightRenderer {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &PlaywrightRenderer{timeout: timeout}
}

func (r *PlaywrightRenderer) start() (playwright.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browser != nil {
		return r.browser, nil
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
		},
	})
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	r.pw, r.browser = pw, browser
	return browser, nil
}

// Render opens url in a fresh context, waits settle and returns the page content
func (r *PlaywrightRenderer) Render(ctx context.Context, url string, settle time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	browser, err := r.start()
	if err != nil {
		return "", err
	}

	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent: playwright.String(helpers.UserAgent),
		Locale:    playwright.String("fi-FI"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create browser context: %w", err)
	}
	defer bctx.Close()

	page, err := bctx.NewPage()
	if err != nil {
		return "", fmt.Errorf("failed to create new page: %w", err)
	}

	if _, err := page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(r.timeout.Milliseconds())),
	}); err != nil {
		return "", fmt.Errorf("render %s: %w", url, err)
	}

	if err := sleepCtx(ctx, settle); err != nil {
		return "", err
	}

	content, err := page.Content()
	if err != nil {
		return "", fmt.Errorf("read content of %s: %w", url, err)
	}

	logger.ForRenderer().Debug().Str("url", url).Int("bytes", len(content)).Msg("Rendered page")
	return content, nil
}

// Close stops the browser and the playwright driver
func (r *PlaywrightRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	if r.browser != nil {
		if err := r.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}
	if r.pw != nil {
		if err := r.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}
	r.pw, r.browser = nil, nil

	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %v", errs)
	}
	return nil
}
