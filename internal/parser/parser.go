package parser

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrNoPrice  = errors.New("no price in element")
	ErrNoDigits = errors.New("no digits in element")
)

// Parser turns raw element content captured from a product page into typed
// field values.
type Parser interface {
	ParsePrice(innerHTML string) (decimal.Decimal, error)
	ParseStock(text string) (int, error)
}
