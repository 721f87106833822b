package translator

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"sjsage522/dealnotifier/logger"
	"sjsage522/dealnotifier/services/cache"
)

const (
	minTextLength = 3
	cacheTTL      = 7 * 24 * time.Hour
)

// Translator translates product titles. Failures return the input unchanged.
type Translator interface {
	Translate(ctx context.Context, text string) string
}

// NopTranslator returns every text as is
type NopTranslator struct{}

func (NopTranslator) Translate(_ context.Context, text string) string {
	return text
}

// HTTPTranslator calls a LibreTranslate-compatible /translate endpoint and
// memoizes results in a CacheService.
type HTTPTranslator struct {
	endpoint string
	source   string
	target   string
	client   *http.Client
	cacheSvc cache.CacheService
}

var (
	_ Translator = NopTranslator{}
	_ Translator = (*HTTPTranslator)(nil)
)

type translateRequest struct {
	Q      string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	Format string `json:"format"`
}

type translateResponse struct {
	TranslatedText string `json:"translatedText"`
}

// NewHTTPTranslator creates a translator for endpoint. cacheSvc may be nil.
func NewHTTPTranslator(endpoint, source, target string, cacheSvc cache.CacheService) *HTTPTranslator {
	return &HTTPTranslator{
		endpoint: endpoint,
		source:   source,
		target:   target,
		client:   &http.Client{Timeout: 10 * time.Second},
		cacheSvc: cacheSvc,
	}
}

func (t *HTTPTranslator) Translate(ctx context.Context, text string) string {
	trimmed := strings.TrimSpace(text)
	if utf8.RuneCountInString(trimmed) < minTextLength {
		return text
	}

	key := t.cacheKey(trimmed)
	if t.cacheSvc != nil {
		if cached, err := t.cacheSvc.Get(key); err == nil {
			return string(cached)
		}
	}

	translated, err := t.request(ctx, trimmed)
	if err != nil {
		logger.ForTranslator().Warn().Err(err).Str("text", trimmed).Msg("Translation failed, keeping original")
		return text
	}

	if t.cacheSvc != nil {
		if err := t.cacheSvc.Set(key, []byte(translated), cacheTTL); err != nil {
			logger.ForTranslator().Debug().Err(err).Msg("Failed to cache translation")
		}
	}
	return translated
}

func (t *HTTPTranslator) request(ctx context.Context, text string) (string, error) {
	payload, err := json.Marshal(translateRequest{Q: text, Source: t.source, Target: t.target, Format: "text"})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("translate request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("translate unexpected status code: %d", resp.StatusCode)
	}

	var out translateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode translate response: %w", err)
	}
	if strings.TrimSpace(out.TranslatedText) == "" {
		return "", fmt.Errorf("empty translation")
	}
	return out.TranslatedText, nil
}

func (t *HTTPTranslator) cacheKey(text string) string {
	sum := sha1.Sum([]byte(t.source + "|" + t.target + "|" + text))
	return "dealbot_tr:" + hex.EncodeToString(sum[:])
}
