// Package app wires the scraping core from configuration. It is shared by
// the HTTP server and the CLI.
package app

import (
	"log/slog"

	"github.com/maltedev/sku-scraper/internal/batch"
	"github.com/maltedev/sku-scraper/internal/browser"
	"github.com/maltedev/sku-scraper/internal/config"
	"github.com/maltedev/sku-scraper/internal/metrics"
	"github.com/maltedev/sku-scraper/internal/parser"
	"github.com/maltedev/sku-scraper/internal/ratelimit"
	"github.com/maltedev/sku-scraper/internal/scraper"
	"github.com/maltedev/sku-scraper/internal/table"
)

type Core struct {
	Sessions *browser.Manager
	Runner   *batch.Runner
	Table    *table.Table
	Metrics  *metrics.Metrics
}

func BrowserOptions(cfg *config.Config) *browser.Options {
	opts := browser.DefaultOptions()
	opts.Headless = cfg.Browser.Headless
	opts.ExecutablePath = cfg.Browser.ExecutablePath
	opts.InstallDriver = cfg.Browser.InstallDriver
	opts.NavigationTimeout = cfg.Browser.NavigationTimeout
	opts.Locale = cfg.Browser.Locale
	opts.UserAgent = cfg.Browser.UserAgent
	return opts
}

// NewCore builds the session manager, extractor and batch runner around tbl.
// archiver may be nil.
func NewCore(cfg *config.Config, tbl *table.Table, m *metrics.Metrics, archiver batch.Archiver, logger *slog.Logger) *Core {
	sessions := browser.NewManager(BrowserOptions(cfg), logger)

	extractor := scraper.NewExtractor(scraper.Options{
		SearchURL:    cfg.Scraper.SearchURL,
		FieldTimeout: cfg.Scraper.FieldTimeout,
		Selectors:    scraper.DefaultSelectors(),
	}, parser.NewHomeDepotParser(), m, logger)

	tbl.OnChange(m.SetTableRows)

	opts := batch.Options{
		ReleasePerBatch: cfg.Browser.SessionScope == config.SessionScopeBatch,
		Pacer:           ratelimit.NewAdaptive(cfg.Scraper.RateLimitMin, cfg.Scraper.RateLimitMax),
		Archiver:        archiver,
	}

	return &Core{
		Sessions: sessions,
		Runner:   batch.NewRunner(sessions, extractor, tbl, opts, m, logger),
		Table:    tbl,
		Metrics:  m,
	}
}
