package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// NotFound is the placeholder shown for any field that could not be
// extracted within its wait bound.
const NotFound = "Not found"

var notFoundJSON = []byte(strconv.Quote(NotFound))

// Field holds an extracted value or marks it as not found. A zero Field is
// not found.
type Field[T any] struct {
	Value T
	Found bool
}

func Found[T any](v T) Field[T] {
	return Field[T]{Value: v, Found: true}
}

func Missing[T any]() Field[T] {
	return Field[T]{}
}

// String renders the value, or the sentinel when the field is missing.
func (f Field[T]) String() string {
	if !f.Found {
		return NotFound
	}
	if s, ok := any(f.Value).(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprint(f.Value)
}

func (f Field[T]) MarshalJSON() ([]byte, error) {
	if !f.Found {
		return notFoundJSON, nil
	}
	return json.Marshal(f.Value)
}

func (f *Field[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), notFoundJSON) || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*f = Field[T]{}
		return nil
	}

	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = Found(v)
	return nil
}

// ProductRecord is one scraped row. Every field is either a real value or
// NotFound, never absent.
type ProductRecord struct {
	SKU         string                 `json:"sku"`
	Name        Field[string]          `json:"name"`
	Description Field[string]          `json:"description"`
	Price       Field[decimal.Decimal] `json:"price"`
	Stock       Field[int]             `json:"stock_available"`
	URL         string                 `json:"url"`
	ScrapedAt   time.Time              `json:"scraped_at"`
}

func NewProductRecord(sku, url string) *ProductRecord {
	return &ProductRecord{
		SKU:       sku,
		URL:       url,
		ScrapedAt: time.Now(),
	}
}

// IsEmpty reports whether the record carries nothing worth a table row.
func (p *ProductRecord) IsEmpty() bool {
	return p == nil || (p.SKU == "" && p.URL == "")
}

// FoundFields counts the extracted fields that are not the sentinel.
func (p *ProductRecord) FoundFields() int {
	n := 0
	for _, found := range []bool{p.Name.Found, p.Description.Found, p.Price.Found, p.Stock.Found} {
		if found {
			n++
		}
	}
	return n
}
