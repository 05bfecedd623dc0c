// Package scoring derives the display score of a product row. Scores are
// computed on every render and never stored.
package scoring

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/maltedev/sku-scraper/internal/models"
)

// Outcome of one criterion. Absent is kept apart from Fail so a row with a
// missing price does not read as "too expensive".
type Outcome int

const (
	Absent Outcome = iota
	Fail
	Pass
)

func (o Outcome) String() string {
	switch o {
	case Pass:
		return "pass"
	case Fail:
		return "fail"
	default:
		return "absent"
	}
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

var (
	PriceCeiling    = decimal.NewFromInt(500)
	RatingThreshold = 4.0
	InStock         = "in stock"
)

// Inputs are the values the score reads. Rating and Availability are never
// produced by the extractor, so InputsFor leaves them missing and those two
// criteria are always Absent.
type Inputs struct {
	Price        models.Field[decimal.Decimal]
	Rating       models.Field[float64]
	Availability models.Field[string]
}

func InputsFor(rec models.ProductRecord) Inputs {
	return Inputs{Price: rec.Price}
}

type Breakdown struct {
	Price        Outcome `json:"price"`
	Rating       Outcome `json:"rating"`
	Availability Outcome `json:"availability"`
	Total        int     `json:"total"`
}

func Evaluate(rec models.ProductRecord) Breakdown {
	return EvaluateInputs(InputsFor(rec))
}

func EvaluateInputs(in Inputs) Breakdown {
	b := Breakdown{
		Price:        price(in.Price),
		Rating:       rating(in.Rating),
		Availability: availability(in.Availability),
	}
	for _, o := range []Outcome{b.Price, b.Rating, b.Availability} {
		if o == Pass {
			b.Total++
		}
	}
	return b
}

func price(f models.Field[decimal.Decimal]) Outcome {
	if !f.Found {
		return Absent
	}
	if f.Value.LessThan(PriceCeiling) {
		return Pass
	}
	return Fail
}

func rating(f models.Field[float64]) Outcome {
	if !f.Found {
		return Absent
	}
	if f.Value > RatingThreshold {
		return Pass
	}
	return Fail
}

func availability(f models.Field[string]) Outcome {
	if !f.Found {
		return Absent
	}
	if strings.EqualFold(f.Value, InStock) {
		return Pass
	}
	return Fail
}
