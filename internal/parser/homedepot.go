package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const priceRootID = "price-root"

type HomeDepotParser struct {
	priceNoise *regexp.Regexp
	nonDigits  *regexp.Regexp
}

func NewHomeDepotParser() *HomeDepotParser {
	return &HomeDepotParser{
		priceNoise: regexp.MustCompile(`[^0-9.\-]`),
		nonDigits:  regexp.MustCompile(`[^0-9]`),
	}
}

// ParsePrice reads the inner HTML of the price paragraph. The storefront
// renders "<sup>$</sup>1,234<sup>56</sup>": direct text nodes carry the whole
// part and the second <sup> child carries the cents. The first <sup> is a
// currency or unit marker and is ignored. The result is rounded to 2 places.
func (p *HomeDepotParser) ParsePrice(innerHTML string) (decimal.Decimal, error) {
	raw, err := p.JoinPriceParts(innerHTML)
	if err != nil {
		return decimal.Zero, err
	}

	cleaned := strings.ReplaceAll(raw, ",", "")
	cleaned = p.priceNoise.ReplaceAllString(cleaned, "")
	cleaned = strings.TrimSuffix(cleaned, ".")

	if !strings.ContainsAny(cleaned, "0123456789") {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrNoPrice, raw)
	}

	price, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse price %q: %w", raw, err)
	}

	return price.Round(2), nil
}

// JoinPriceParts returns "<text nodes>.<second sup>" without any cleanup.
func (p *HomeDepotParser) JoinPriceParts(innerHTML string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<div id="` + priceRootID + `">` + innerHTML + `</div>`))
	if err != nil {
		return "", fmt.Errorf("failed to parse price HTML: %w", err)
	}

	var mainText, supText strings.Builder
	supCount := 0

	doc.Find("#" + priceRootID).Contents().Each(func(_ int, s *goquery.Selection) {
		node := s.Get(0)
		switch {
		case node.Type == html.TextNode:
			mainText.WriteString(strings.TrimSpace(node.Data))
		case node.Type == html.ElementNode && node.DataAtom == atom.Sup:
			supCount++
			if supCount == 2 {
				supText.WriteString(strings.TrimSpace(s.Text()))
			}
		}
	})

	return mainText.String() + "." + supText.String(), nil
}

// ParseStock keeps only the digits of text such as "15 disponibles".
func (p *HomeDepotParser) ParseStock(text string) (int, error) {
	digits := p.nonDigits.ReplaceAllString(text, "")
	if digits == "" {
		return 0, fmt.Errorf("%w: %q", ErrNoDigits, text)
	}

	units, err := strconv.Atoi(digits)
	if err != nil {
		return 0, fmt.Errorf("failed to parse stock %q: %w", text, err)
	}

	return units, nil
}
