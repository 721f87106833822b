package internal

import (
	"sjsage522/dealnotifier/internal/crawler"
	"sjsage522/dealnotifier/services/cache"
	"sjsage522/dealnotifier/services/ledger"
	"sjsage522/dealnotifier/services/notifier"
	"sjsage522/dealnotifier/services/translator"
)

// Dependencies holds all service dependencies of a pipeline run
type Dependencies struct {
	Cache      cache.CacheService
	Fetcher    crawler.PageFetcher
	Ledger     ledger.Ledger
	Notifier   notifier.Notifier
	Translator translator.Translator
}
