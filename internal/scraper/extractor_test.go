package scraper

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/sku-scraper/internal/browser/browsertest"
	"github.com/maltedev/sku-scraper/internal/metrics"
	"github.com/maltedev/sku-scraper/internal/models"
	"github.com/maltedev/sku-scraper/internal/parser"
)

const testSearchURL = "https://shop.example/search/%s"

func newTestExtractor() *Extractor {
	return NewExtractor(Options{
		SearchURL:    testSearchURL,
		FieldTimeout: 5 * time.Second,
	}, parser.NewHomeDepotParser(), metrics.New(), slog.Default())
}

func fullProductPage() browsertest.Content {
	sel := DefaultSelectors()
	return browsertest.Content{
		Text: map[string]string{
			sel.Name:        "  Taladro Percutor 1/2 pulg  ",
			sel.Description: "Taladro con batería de litio",
			sel.Stock:       "15 disponibles",
		},
		HTML: map[string]string{
			sel.Price: `<sup>$</sup>1,234<sup>56</sup>`,
		},
	}
}

func TestExtractor_URLFor(t *testing.T) {
	e := newTestExtractor()
	assert.Equal(t, "https://shop.example/search/123456", e.URLFor("123456"))
	assert.Equal(t, "https://shop.example/search/a b/c", e.URLFor("a b/c"))
}

func TestExtractor_AllFieldsFound(t *testing.T) {
	e := newTestExtractor()
	page := browsertest.NewFakePage().Serve(e.URLFor("123456"), fullProductPage())

	rec, err := e.Extract(context.Background(), page, "123456")
	require.NoError(t, err)

	assert.Equal(t, "123456", rec.SKU)
	assert.Equal(t, "https://shop.example/search/123456", rec.URL)
	assert.Equal(t, models.Found("Taladro Percutor 1/2 pulg"), rec.Name)
	assert.Equal(t, "Taladro con batería de litio", rec.Description.String())
	assert.Equal(t, "1234.56", rec.Price.String())
	assert.Equal(t, models.Found(15), rec.Stock)
	assert.False(t, rec.ScrapedAt.IsZero())
	assert.Equal(t, []string{rec.URL}, page.Visited())
}

func TestExtractor_NothingRendered(t *testing.T) {
	e := newTestExtractor()
	page := browsertest.NewFakePage()

	rec, err := e.Extract(context.Background(), page, "000")
	require.NoError(t, err)

	for _, value := range []string{rec.Name.String(), rec.Description.String(), rec.Price.String(), rec.Stock.String()} {
		assert.Equal(t, models.NotFound, value)
	}
	assert.Equal(t, 0, rec.FoundFields())
}

func TestExtractor_PartialSuccess(t *testing.T) {
	e := newTestExtractor()
	sel := DefaultSelectors()
	page := browsertest.NewFakePage().Serve(e.URLFor("42"), browsertest.Content{
		Text: map[string]string{
			sel.Name:  "Martillo",
			sel.Stock: "Sin unidades disponibles",
		},
	})

	rec, err := e.Extract(context.Background(), page, "42")
	require.NoError(t, err)

	assert.True(t, rec.Name.Found)
	assert.False(t, rec.Description.Found)
	assert.False(t, rec.Price.Found, "price timed out")
	assert.False(t, rec.Stock.Found, "stock text without digits")
}

func TestExtractor_UnparseablePriceFallsBack(t *testing.T) {
	e := newTestExtractor()
	sel := DefaultSelectors()
	page := browsertest.NewFakePage().Serve(e.URLFor("7"), browsertest.Content{
		HTML: map[string]string{sel.Price: `Precio no disponible`},
	})

	rec, err := e.Extract(context.Background(), page, "7")
	require.NoError(t, err)
	assert.Equal(t, models.NotFound, rec.Price.String())
}

func TestExtractor_EachFieldWaitsWithItsOwnBound(t *testing.T) {
	e := newTestExtractor()
	page := browsertest.NewFakePage()

	_, err := e.Extract(context.Background(), page, "1")
	require.NoError(t, err)

	waits := page.Waits()
	require.Len(t, waits, 4)
	sel := DefaultSelectors()
	assert.Equal(t, sel.Name, waits[0].Selector)
	assert.Equal(t, sel.Description, waits[1].Selector)
	assert.Equal(t, sel.Price, waits[2].Selector)
	assert.Equal(t, sel.Stock, waits[3].Selector)
	for _, w := range waits {
		assert.Equal(t, 5*time.Second, w.Timeout)
	}
}

func TestExtractor_NavigationFailurePropagates(t *testing.T) {
	e := newTestExtractor()
	dnsErr := errors.New("net::ERR_NAME_NOT_RESOLVED")
	page := browsertest.NewFakePage().FailNavigation(e.URLFor("9"), dnsErr)

	rec, err := e.Extract(context.Background(), page, "9")
	assert.Nil(t, rec)
	assert.ErrorIs(t, err, dnsErr)
}

func TestExtractor_PageErrorPropagates(t *testing.T) {
	e := newTestExtractor()
	closed := errors.New("target closed")
	sel := DefaultSelectors()
	page := browsertest.NewFakePage().Serve(e.URLFor("9"), browsertest.Content{
		Errors: map[string]error{sel.Description: closed},
	})

	rec, err := e.Extract(context.Background(), page, "9")
	assert.Nil(t, rec)
	assert.ErrorIs(t, err, closed)
	assert.Contains(t, err.Error(), FieldDescription)
}

func TestExtractor_CancelledContext(t *testing.T) {
	e := newTestExtractor()
	page := browsertest.NewFakePage()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Extract(ctx, page, "1")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, page.Visited())
}

func TestNewExtractor_Defaults(t *testing.T) {
	e := NewExtractor(Options{}, nil, nil, slog.Default())

	assert.Equal(t, DefaultOptions().SearchURL, e.opts.SearchURL)
	assert.Equal(t, 5*time.Second, e.opts.FieldTimeout)
	assert.Equal(t, DefaultSelectors(), e.opts.Selectors)
	assert.NotNil(t, e.parser)
}
