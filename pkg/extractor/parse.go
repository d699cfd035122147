package extractor

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

const fractionPlaces = 4

var errShape = errors.New("value does not match locator shape")

var stripper = strings.NewReplacer(
	"$", "", "€", "", "£", "", "¥", "",
	",", "", "%", "",
	" ", "", "\u00a0", "", "\n", "", "\t", "",
)

var suffixes = map[byte]decimal.Decimal{
	'K': decimal.New(1, 3),
	'M': decimal.New(1, 6),
	'B': decimal.New(1, 9),
	'T': decimal.New(1, 12),
}

var hundred = decimal.NewFromInt(100)

// ParseCandidate converts raw element text into a value according to shape.
func ParseCandidate(text string, shape Shape) (float64, error) {
	raw := strings.TrimSpace(text)
	if raw == "" {
		return 0, errShape
	}
	percent := strings.Contains(raw, "%")
	cleaned := stripper.Replace(raw)

	switch shape {
	case Fraction:
		d, err := decimal.NewFromString(cleaned)
		if err != nil {
			return 0, err
		}
		if percent {
			d = d.Div(hundred)
		} else if !(d.IsPositive() && d.LessThan(decimal.NewFromInt(1))) {
			// a bare number only counts if it is strictly inside (0, 1)
			return 0, errShape
		}
		f, _ := d.Round(fractionPlaces).Float64()
		return f, nil

	default:
		mult := decimal.NewFromInt(1)
		if n := len(cleaned); n > 0 {
			if m, ok := suffixes[strings.ToUpper(cleaned[n-1:])[0]]; ok {
				mult = m
				cleaned = cleaned[:n-1]
			}
		}
		d, err := decimal.NewFromString(cleaned)
		if err != nil {
			return 0, err
		}
		if d.IsNegative() {
			return 0, errShape
		}
		f, _ := d.Mul(mult).Float64()
		return f, nil
	}
}
