package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/maltedev/sku-scraper/internal/browser"
	"github.com/maltedev/sku-scraper/internal/metrics"
	"github.com/maltedev/sku-scraper/internal/models"
	"github.com/maltedev/sku-scraper/internal/parser"
)

// Extractor scrapes name, description, price and stock for a product code.
// Each field gets its own bounded wait; a field that times out or does not
// parse is recorded as models.NotFound and the others are still attempted.
type Extractor struct {
	opts    Options
	parser  parser.Parser
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewExtractor(opts Options, p parser.Parser, m *metrics.Metrics, logger *slog.Logger) *Extractor {
	if opts.FieldTimeout <= 0 {
		opts.FieldTimeout = DefaultOptions().FieldTimeout
	}
	if opts.SearchURL == "" {
		opts.SearchURL = DefaultOptions().SearchURL
	}
	if opts.Selectors == (Selectors{}) {
		opts.Selectors = DefaultSelectors()
	}
	if p == nil {
		p = parser.NewHomeDepotParser()
	}

	return &Extractor{
		opts:    opts,
		parser:  p,
		metrics: m,
		logger:  logger.With("component", "extractor"),
	}
}

// URLFor interpolates code into the search URL as-is.
func (e *Extractor) URLFor(code string) string {
	return fmt.Sprintf(e.opts.SearchURL, code)
}

// Extract navigates page to the code's search URL and reads the four fields.
// Navigation errors and page errors other than wait timeouts are returned.
func (e *Extractor) Extract(ctx context.Context, page browser.Page, code string) (*models.ProductRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	url := e.URLFor(code)
	start := time.Now()

	e.logger.Info("extracting product", "sku", code, "url", url)

	if err := page.Goto(url); err != nil {
		e.metrics.CodeScraped("error", time.Since(start))
		return nil, err
	}

	rec := models.NewProductRecord(code, url)

	var err error
	if rec.Name, err = e.textField(page, code, FieldName, e.opts.Selectors.Name); err != nil {
		e.metrics.CodeScraped("error", time.Since(start))
		return nil, err
	}
	if rec.Description, err = e.textField(page, code, FieldDescription, e.opts.Selectors.Description); err != nil {
		e.metrics.CodeScraped("error", time.Since(start))
		return nil, err
	}
	if rec.Price, err = e.priceField(page, code); err != nil {
		e.metrics.CodeScraped("error", time.Since(start))
		return nil, err
	}
	if rec.Stock, err = e.stockField(page, code); err != nil {
		e.metrics.CodeScraped("error", time.Since(start))
		return nil, err
	}

	e.metrics.CodeScraped("ok", time.Since(start))
	e.logger.Info("extracted product",
		"sku", code,
		"fieldsFound", rec.FoundFields(),
		"took", time.Since(start))

	return rec, nil
}

func (e *Extractor) textField(page browser.Page, code, field, selector string) (models.Field[string], error) {
	text, err := page.WaitText(selector, e.opts.FieldTimeout)
	if err != nil {
		if errors.Is(err, browser.ErrTimeout) {
			e.fallback(code, field, err)
			return models.Missing[string](), nil
		}
		return models.Missing[string](), fmt.Errorf("failed to extract %s: %w", field, err)
	}
	return models.Found(strings.TrimSpace(text)), nil
}

func (e *Extractor) priceField(page browser.Page, code string) (models.Field[decimal.Decimal], error) {
	inner, err := page.WaitInnerHTML(e.opts.Selectors.Price, e.opts.FieldTimeout)
	if err != nil {
		if errors.Is(err, browser.ErrTimeout) {
			e.fallback(code, FieldPrice, err)
			return models.Missing[decimal.Decimal](), nil
		}
		return models.Missing[decimal.Decimal](), fmt.Errorf("failed to extract %s: %w", FieldPrice, err)
	}

	price, err := e.parser.ParsePrice(inner)
	if err != nil {
		e.fallback(code, FieldPrice, err)
		return models.Missing[decimal.Decimal](), nil
	}
	return models.Found(price), nil
}

func (e *Extractor) stockField(page browser.Page, code string) (models.Field[int], error) {
	text, err := page.WaitText(e.opts.Selectors.Stock, e.opts.FieldTimeout)
	if err != nil {
		if errors.Is(err, browser.ErrTimeout) {
			e.fallback(code, FieldStock, err)
			return models.Missing[int](), nil
		}
		return models.Missing[int](), fmt.Errorf("failed to extract %s: %w", FieldStock, err)
	}

	units, err := e.parser.ParseStock(text)
	if err != nil {
		e.fallback(code, FieldStock, err)
		return models.Missing[int](), nil
	}
	return models.Found(units), nil
}

func (e *Extractor) fallback(code, field string, err error) {
	e.metrics.FieldFallback(field)
	e.logger.Debug("field not found", "sku", code, "field", field, "error", err)
}
