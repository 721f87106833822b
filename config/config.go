package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Notifier backends
const (
	NotifierTelegram = "telegram"
	NotifierRedis    = "redis"
)

// Ledger backends
const (
	LedgerSQLite   = "sqlite"
	LedgerPostgres = "postgres"
)

// Renderer backends
const (
	RendererChromedp   = "chromedp"
	RendererPlaywright = "playwright"
	RendererNone       = "none"
)

// Config represents the application configuration
type Config struct {
	// Notification channel
	Notifier           string
	TelegramBotToken   string
	TelegramChatID     string
	DisableLinkPreview bool

	// Redis stream notifier
	RedisAddr            string
	RedisDB              int
	RedisStream          string
	RedisStreamMaxLength int

	// Memcache configuration, empty address keeps the cache in process
	MemcacheAddr   string
	RateLimitBlock time.Duration

	// Deal selection
	DefaultCurrency   string
	MinDiscountPct    float64
	MaxItemsPerSource int
	RepostWindow      time.Duration

	// Fetching
	FetchTimeout  time.Duration
	MaxPages      int
	PageDelay     time.Duration
	DeliveryDelay time.Duration

	// Rendered-DOM fetch
	Renderer      string
	RenderTimeout time.Duration
	RenderSettle  time.Duration
	ChromeBin     string

	// Posted ledger
	LedgerDriver string
	LedgerPath   string
	LedgerDSN    string

	// Title translation
	EnableTranslation bool
	TranslateURL      string
	TranslateSource   string
	TranslateTarget   string

	// Driver
	RunInterval time.Duration
	StatusAddr  string

	// Environment
	Environment string
}

// LoadConfig loads the configuration from environment variables with defaults
func LoadConfig() *Config {
	return &Config{
		Notifier:             strings.ToLower(getEnv("NOTIFIER", NotifierTelegram)),
		TelegramBotToken:     strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN")),
		TelegramChatID:       strings.TrimSpace(os.Getenv("TELEGRAM_CHAT_ID")),
		DisableLinkPreview:   getEnvBool("DISABLE_LINK_PREVIEW", false),
		RedisAddr:            getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:              getEnvInt("REDIS_DB", 0),
		RedisStream:          getEnv("REDIS_STREAM", "deals"),
		RedisStreamMaxLength: getEnvInt("REDIS_STREAM_MAX_LENGTH", 1000),
		MemcacheAddr:         os.Getenv("MEMCACHE_ADDR"),
		RateLimitBlock:       time.Duration(getEnvInt("RATE_LIMIT_BLOCK_SECONDS", 300)) * time.Second,
		DefaultCurrency:      strings.TrimSpace(getEnv("DEFAULT_CURRENCY", "EUR")),
		MinDiscountPct:       getEnvFloat("MIN_DISCOUNT_PCT", 10),
		MaxItemsPerSource:    getEnvInt("MAX_ITEMS_PER_SOURCE", 30),
		RepostWindow:         hours(getEnvFloat("MIN_HOURS_BETWEEN_REPOSTS", 72)),
		FetchTimeout:         time.Duration(getEnvInt("FETCH_TIMEOUT_SECONDS", 30)) * time.Second,
		MaxPages:             getEnvInt("MAX_PAGES", 3),
		PageDelay:            time.Duration(getEnvInt("PAGE_DELAY_MS", 1000)) * time.Millisecond,
		DeliveryDelay:        time.Duration(getEnvInt("DELIVERY_DELAY_MS", 700)) * time.Millisecond,
		Renderer:             strings.ToLower(getEnv("RENDERER", RendererChromedp)),
		RenderTimeout:        time.Duration(getEnvInt("RENDER_TIMEOUT_SECONDS", 60)) * time.Second,
		RenderSettle:         time.Duration(getEnvInt("RENDER_SETTLE_MS", 1500)) * time.Millisecond,
		ChromeBin:            os.Getenv("CHROME_BIN"),
		LedgerDriver:         strings.ToLower(getEnv("LEDGER_DRIVER", LedgerSQLite)),
		LedgerPath:           getEnv("LEDGER_PATH", "data/seen.sqlite"),
		LedgerDSN:            os.Getenv("LEDGER_DSN"),
		EnableTranslation:    getEnvBool("ENABLE_TRANSLATION", true),
		TranslateURL:         os.Getenv("TRANSLATE_URL"),
		TranslateSource:      getEnv("TRANSLATE_SOURCE", "fi"),
		TranslateTarget:      getEnv("TRANSLATE_TARGET", "en"),
		RunInterval:          hours(getEnvFloat("RUN_INTERVAL_HOURS", 12)),
		StatusAddr:           os.Getenv("STATUS_ADDR"),
		Environment:          getEnv("DEALBOT_ENVIRONMENT", "development"),
	}
}

// Validate checks the configuration. Missing delivery credentials are fatal.
func (c *Config) Validate() error {
	switch c.Notifier {
	case NotifierTelegram:
		if c.TelegramBotToken == "" || c.TelegramChatID == "" {
			return fmt.Errorf("missing TELEGRAM_BOT_TOKEN or TELEGRAM_CHAT_ID")
		}
	case NotifierRedis:
		if c.RedisAddr == "" || c.RedisStream == "" {
			return fmt.Errorf("REDIS_ADDR and REDIS_STREAM are required for the redis notifier")
		}
	default:
		return fmt.Errorf("unknown NOTIFIER %q", c.Notifier)
	}

	switch c.LedgerDriver {
	case LedgerSQLite:
		if c.LedgerPath == "" {
			return fmt.Errorf("LEDGER_PATH is required for the sqlite ledger")
		}
	case LedgerPostgres:
		if c.LedgerDSN == "" {
			return fmt.Errorf("LEDGER_DSN is required for the postgres ledger")
		}
	default:
		return fmt.Errorf("unknown LEDGER_DRIVER %q", c.LedgerDriver)
	}

	switch c.Renderer {
	case RendererChromedp, RendererPlaywright, RendererNone:
	default:
		return fmt.Errorf("unknown RENDERER %q", c.Renderer)
	}

	if c.MinDiscountPct < 0 || c.MinDiscountPct > 100 {
		return fmt.Errorf("MIN_DISCOUNT_PCT must be between 0 and 100")
	}
	if c.MaxItemsPerSource < 1 {
		return fmt.Errorf("MAX_ITEMS_PER_SOURCE must be at least 1")
	}
	if c.MaxPages < 1 {
		return fmt.Errorf("MAX_PAGES must be at least 1")
	}
	if c.RepostWindow <= 0 {
		return fmt.Errorf("MIN_HOURS_BETWEEN_REPOSTS must be positive")
	}
	if c.RunInterval <= 0 {
		return fmt.Errorf("RUN_INTERVAL_HOURS must be positive")
	}
	return nil
}

// IsProduction reports whether the bot runs in production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func hours(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
