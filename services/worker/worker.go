package worker

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"sjsage522/dealnotifier/internal"
	"sjsage522/dealnotifier/internal/crawler"
	"sjsage522/dealnotifier/logger"
	pkgerrors "sjsage522/dealnotifier/pkg/errors"
	"sjsage522/dealnotifier/services/notifier"
	"sjsage522/dealnotifier/services/translator"
)

// ErrRunInProgress is returned when a run is requested while another is active
var ErrRunInProgress = errors.New("a run is already in progress")

// Settings controls deal selection and delivery
type Settings struct {
	ChannelID         string
	DisablePreview    bool
	DefaultCurrency   string
	MinDiscountPct    float64
	MaxItemsPerSource int
	RepostWindow      time.Duration
	DeliveryDelay     time.Duration
	RunInterval       time.Duration
}

// Worker runs the deal pipeline over the configured sources one at a time
type Worker struct {
	deps      internal.Dependencies
	sources   []crawler.SourceConfig
	settings  Settings
	extractor *crawler.Extractor

	runMu  sync.Mutex
	lastMu sync.RWMutex
	last   *RunReport
}

// NewWorker creates a new worker
func NewWorker(deps internal.Dependencies, sources []crawler.SourceConfig, settings Settings) *Worker {
	if deps.Translator == nil {
		deps.Translator = translator.NopTranslator{}
	}
	return &Worker{
		deps:      deps,
		sources:   sources,
		settings:  settings,
		extractor: crawler.NewExtractor(settings.DefaultCurrency),
	}
}

// Start runs the pipeline every RunInterval until ctx is cancelled. Runs
// never overlap: the next one starts interval minus elapsed after the
// previous one began, and at least a second after it ended.
func (w *Worker) Start(ctx context.Context) {
	log := logger.ForPipeline()
	for {
		start := time.Now()
		report, err := w.RunOnce(ctx)
		elapsed := time.Since(start)

		if err != nil {
			log.Error().Err(err).Msg("Run failed")
		} else {
			log.Info().Str("run_id", report.RunID).Int("announced", report.Announced()).
				Dur("elapsed", elapsed).Msg("Run finished")
		}

		wait := w.settings.RunInterval - elapsed
		if wait < time.Second {
			wait = time.Second
		}
		log.Debug().Dur("wait", wait).Msg("Sleeping until next run")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Info().Msg("Worker stopped")
			return
		case <-timer.C:
		}
	}
}

// RunOnce processes every source in order. Source-level failures are
// recorded in the report; only fatal errors (ledger, configuration) abort
// the run and are returned.
func (w *Worker) RunOnce(ctx context.Context) (*RunReport, error) {
	if !w.runMu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer w.runMu.Unlock()

	report := &RunReport{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
	log := logger.ForPipeline().WithField("run_id", report.RunID)
	log.Info().Int("sources", len(w.sources)).Msg("Run started")

	var runErr error
	for _, src := range w.sources {
		if ctx.Err() != nil {
			log.Warn().Msg("Run cancelled between sources")
			break
		}

		sr, err := w.processSource(ctx, src, report.RunID)
		if err != nil && !pkgerrors.IsFatal(err) {
			logger.ForFetcher(src.Name).WithField("run_id", report.RunID).Error().Err(err).
				Str("type", string(pkgerrors.TypeOf(err))).
				Bool("retryable", pkgerrors.IsRetryable(err)).
				Msg("Source failed")
			sr.Err = err.Error()
			err = nil
		}
		report.Sources = append(report.Sources, sr)
		if err != nil {
			runErr = err
			report.Err = err.Error()
			break
		}
	}

	if trimmer, ok := w.deps.Notifier.(notifier.Trimmer); ok {
		if err := trimmer.Trim(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to trim notification stream")
		}
	}

	report.FinishedAt = time.Now().UTC()
	w.setLast(report)
	return report, runErr
}

// processSource runs fetch, extract, select and deliver for one source. A
// returned error ends the source; RunOnce decides by its type whether the
// run goes on.
func (w *Worker) processSource(ctx context.Context, src crawler.SourceConfig, runID string) (sr SourceReport, err error) {
	start := time.Now()
	sr = SourceReport{Name: src.Name}
	defer func() { sr.Duration = time.Since(start) }()

	log := logger.ForFetcher(src.Name).WithField("run_id", runID)

	page, err := w.deps.Fetcher.Fetch(ctx, src)
	if err != nil {
		if pkgerrors.TypeOf(err) == "" {
			err = pkgerrors.NewFetch(src.Name, "fetch failed", err)
		}
		return sr, err
	}
	sr.Bytes = len(page)

	extraction, err := w.extractor.Extract(src, page)
	if err != nil {
		return sr, err
	}
	sr.Method = string(extraction.Method)
	sr.Extracted = len(extraction.Products)

	deals := SelectDeals(extraction.Products, src.MinDiscountOr(w.settings.MinDiscountPct))
	sr.Deals = len(deals)
	log.Info().Str("method", sr.Method).Int("products", sr.Extracted).Int("deals", sr.Deals).Msg("Extracted")
	if logger.IsDebugEnabled() {
		for _, p := range deals {
			log.Debug().Str("title", p.Title).Str("url", p.URL).
				Str("discount", p.DiscountPct().StringFixed(1)).Msg("Deal candidate")
		}
	}

	limit := src.MaxItemsOr(w.settings.MaxItemsPerSource)
	for _, p := range deals {
		if sr.Announced >= limit {
			break
		}

		recent, err := w.deps.Ledger.WasRecentlyPosted(ctx, p.URL, p.PriceCurrent, w.settings.RepostWindow)
		if err != nil {
			return sr, ledgerError("recency check failed", err)
		}
		if recent {
			sr.Skipped++
			continue
		}

		text := notifier.FormatMessage(ctx, p, w.deps.Translator)
		if err := w.deps.Notifier.Send(ctx, w.settings.ChannelID, text, w.settings.DisablePreview); err != nil {
			if pkgerrors.IsFatal(err) {
				return sr, err
			}
			log.Error().Err(err).Str("url", p.URL).Bool("retryable", pkgerrors.IsRetryable(err)).Msg("Delivery failed")
			sr.Failed++
			continue
		}

		if err := w.deps.Ledger.MarkPosted(ctx, p.URL, p.PriceCurrent); err != nil {
			return sr, ledgerError("mark posted failed", err)
		}
		sr.Announced++
		log.Debug().Str("url", p.URL).Str("discount", p.DiscountPct().StringFixed(1)).Msg("Announced")

		if w.settings.DeliveryDelay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(w.settings.DeliveryDelay):
			}
		}
	}

	return sr, nil
}

// ledgerError types err as a ledger failure unless it already carries a type
func ledgerError(message string, err error) error {
	if pkgerrors.TypeOf(err) == pkgerrors.ErrorTypeLedger {
		return err
	}
	return pkgerrors.NewLedger(message, err)
}

// SelectDeals keeps products with both prices, an identity URL and a
// discount of at least minPct, ordered by discount descending. Equal
// discounts keep extraction order.
func SelectDeals(products []crawler.Product, minPct float64) []crawler.Product {
	threshold := decimal.NewFromFloat(minPct)

	deals := make([]crawler.Product, 0, len(products))
	for _, p := range products {
		if !p.HasPrices() || p.URL == "" {
			continue
		}
		if p.DiscountPct().GreaterThanOrEqual(threshold) {
			deals = append(deals, p)
		}
	}

	sort.SliceStable(deals, func(i, j int) bool {
		return deals[i].DiscountPct().GreaterThan(deals[j].DiscountPct())
	})
	return deals
}

// LastReport returns the report of the most recent finished run, or nil
func (w *Worker) LastReport() *RunReport {
	w.lastMu.RLock()
	defer w.lastMu.RUnlock()
	return w.last
}

func (w *Worker) setLast(r *RunReport) {
	w.lastMu.Lock()
	defer w.lastMu.Unlock()
	w.last = r
}
