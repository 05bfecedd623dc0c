package scraper

import (
	"context"
	"time"

	"github.com/maltedev/sku-scraper/internal/browser"
	"github.com/maltedev/sku-scraper/internal/models"
)

const (
	FieldName        = "name"
	FieldDescription = "description"
	FieldPrice       = "price"
	FieldStock       = "stock"
)

// Scraper extracts one product record per code from an open page.
type Scraper interface {
	Extract(ctx context.Context, page browser.Page, code string) (*models.ProductRecord, error)
}

// Selectors is the DOM contract of the storefront's search result page.
type Selectors struct {
	Name        string
	Description string
	Price       string
	Stock       string
}

func DefaultSelectors() Selectors {
	return Selectors{
		Name:        "h1.product-title",
		Description: "div#product-detail-tabs section",
		Price:       "p.product-price",
		Stock:       "xpath=//p[contains(text(), 'disponibles')]",
	}
}

type Options struct {
	SearchURL    string
	FieldTimeout time.Duration
	Selectors    Selectors
}

func DefaultOptions() Options {
	return Options{
		SearchURL:    "https://www.homedepot.com.mx/comprar/es/catalog/search/%s",
		FieldTimeout: 5 * time.Second,
		Selectors:    DefaultSelectors(),
	}
}
