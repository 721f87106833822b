package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"sjsage522/dealnotifier/config"
	"sjsage522/dealnotifier/internal"
	"sjsage522/dealnotifier/internal/crawler"
	"sjsage522/dealnotifier/logger"
	pkgerrors "sjsage522/dealnotifier/pkg/errors"
	"sjsage522/dealnotifier/services/cache"
	"sjsage522/dealnotifier/services/ledger"
	"sjsage522/dealnotifier/services/notifier"
	"sjsage522/dealnotifier/services/status"
	"sjsage522/dealnotifier/services/translator"
	"sjsage522/dealnotifier/services/worker"
)

func main() {
	// Load environment variables
	godotenv.Load()

	// Initialize logger first
	logger.Init()
	log := logger.Default

	// Load and validate configuration
	cfg := config.LoadConfig()

	storesPath := flag.String("stores", "stores.yaml", "path to the stores YAML file")
	runOnce := flag.Bool("run-once", false, "run the pipeline once and exit")
	loop := flag.Bool("loop", false, "run the pipeline every --hours")
	hours := flag.Float64("hours", cfg.RunInterval.Hours(), "hours between runs in loop mode")
	flag.Parse()

	cfg.RunInterval = time.Duration(*hours * float64(time.Hour))
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(pkgerrors.NewConfiguration("invalid environment", err)).Msg("Invalid configuration")
	}

	sources, err := crawler.LoadSources(*storesPath)
	if err != nil {
		log.Fatal().Err(pkgerrors.NewConfiguration("invalid stores file", err)).Str("path", *storesPath).Msg("Failed to load stores")
	}
	if len(sources) == 0 {
		log.Fatal().Str("path", *storesPath).Msg("No stores configured")
	}

	log.Info().
		Str("environment", cfg.Environment).
		Int("stores", len(sources)).
		Str("notifier", cfg.Notifier).
		Str("ledger", cfg.LedgerDriver).
		Str("renderer", cfg.Renderer).
		Msg("Starting application")

	// Set up context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize services
	services, err := initializeServices(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer services.Cleanup()

	w := worker.NewWorker(services.Dependencies, sources, worker.Settings{
		ChannelID:         cfg.TelegramChatID,
		DisablePreview:    cfg.DisableLinkPreview,
		DefaultCurrency:   cfg.DefaultCurrency,
		MinDiscountPct:    cfg.MinDiscountPct,
		MaxItemsPerSource: cfg.MaxItemsPerSource,
		RepostWindow:      cfg.RepostWindow,
		DeliveryDelay:     cfg.DeliveryDelay,
		RunInterval:       cfg.RunInterval,
	})

	if cfg.StatusAddr != "" {
		srv := status.NewServer(cfg.StatusAddr, w)
		srv.Start()
		defer func() {
			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelShutdown()
			srv.Shutdown(shutdownCtx)
		}()
	}

	if *runOnce || !*loop {
		report, err := w.RunOnce(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Run failed")
			services.Cleanup()
			os.Exit(1)
		}
		log.Info().Str("run_id", report.RunID).Int("announced", report.Announced()).Msg("Run finished")
		return
	}

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	workerDone := make(chan struct{})
	go func() {
		log.Info().Dur("interval", cfg.RunInterval).Msg("Starting deal worker")
		w.Start(ctx)
		close(workerDone)
	}()

	select {
	case sig := <-sigChan:
		log.Info().
			Str("signal", sig.String()).
			Msg("Received shutdown signal")
		cancel()
		<-workerDone
	case <-workerDone:
	}

	// Graceful shutdown
	log.Info().Msg("Shutting down gracefully...")
}

// Services holds all the initialized services
type Services struct {
	internal.Dependencies
	closers []func() error
}

// Cleanup releases every service once
func (s *Services) Cleanup() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			logger.Warn("Cleanup failed: %v", err)
		}
	}
	s.closers = nil
}

// initializeServices initializes all required services
func initializeServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	services := &Services{}

	// Initialize cache service
	services.Cache = cache.New(cfg.MemcacheAddr)
	if cfg.MemcacheAddr != "" {
		logger.Info("Using Memcache at %s", cfg.MemcacheAddr)
	} else {
		logger.Info("MEMCACHE_ADDR not set, using in-process cache")
	}

	// Initialize ledger
	l, err := ledger.Open(ctx, ledger.Options{
		Driver: ledger.Driver(cfg.LedgerDriver),
		Path:   cfg.LedgerPath,
		DSN:    cfg.LedgerDSN,
	})
	if err != nil {
		return nil, err
	}
	services.Ledger = l
	services.closers = append(services.closers, l.Close)

	// Initialize notifier
	switch cfg.Notifier {
	case config.NotifierRedis:
		n := notifier.NewRedisNotifier(cfg.RedisAddr, cfg.RedisDB, cfg.RedisStream, cfg.RedisStreamMaxLength)
		if err := n.Ping(ctx); err != nil {
			services.Cleanup()
			return nil, err
		}
		services.Notifier = n
		logger.Info("Connected to Redis at %s (DB: %d, Stream: %s)", cfg.RedisAddr, cfg.RedisDB, cfg.RedisStream)
	default:
		n, err := notifier.NewTelegramNotifier(cfg.TelegramBotToken)
		if err != nil {
			services.Cleanup()
			return nil, err
		}
		services.Notifier = n
	}
	services.closers = append(services.closers, services.Notifier.Close)

	// Initialize renderer
	var renderer crawler.Renderer
	switch cfg.Renderer {
	case config.RendererChromedp:
		r := crawler.NewChromeRenderer(cfg.ChromeBin, cfg.RenderTimeout)
		renderer = r
		services.closers = append(services.closers, r.Close)
	case config.RendererPlaywright:
		r := crawler.NewPlaywrightRenderer(cfg.RenderTimeout)
		renderer = r
		services.closers = append(services.closers, r.Close)
	}

	services.Fetcher = crawler.NewFetcher(crawler.FetcherConfig{
		Timeout:      cfg.FetchTimeout,
		MaxPages:     cfg.MaxPages,
		PageDelay:    cfg.PageDelay,
		RenderSettle: cfg.RenderSettle,
		BlockTime:    cfg.RateLimitBlock,
	}, services.Cache, renderer)

	// Initialize translator
	if cfg.EnableTranslation && cfg.TranslateURL != "" {
		services.Translator = translator.NewHTTPTranslator(cfg.TranslateURL, cfg.TranslateSource, cfg.TranslateTarget, services.Cache)
		logger.Info("Translating titles %s -> %s via %s", cfg.TranslateSource, cfg.TranslateTarget, cfg.TranslateURL)
	} else {
		services.Translator = translator.NopTranslator{}
	}

	return services, nil
}
