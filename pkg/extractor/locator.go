package extractor

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Shape tells the parser how a locator's text is formatted.
type Shape int

const (
	// Amount is a currency figure such as "$1,234,567" or "$1.2B".
	Amount Shape = iota
	// Fraction is either a percentage ("12.34%") or a bare fraction ("0.1234").
	Fraction
)

func (s Shape) String() string {
	if s == Fraction {
		return "fraction"
	}
	return "amount"
}

func ParseShape(s string) (Shape, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "amount":
		return Amount, nil
	case "fraction", "percent", "percentage":
		return Fraction, nil
	}
	return Amount, fmt.Errorf("unknown locator shape: %s", s)
}

// Locator is one fallback strategy for finding a metric on a page.
type Locator interface {
	Priority() int
	Shape() Shape
	Resolve(ctx context.Context, page Page) ([]string, error)
	String() string
}

type CSS struct {
	Order    int
	Selector string
	As       Shape
}

func (l CSS) Priority() int  { return l.Order }
func (l CSS) Shape() Shape   { return l.As }
func (l CSS) String() string { return "css:" + l.Selector }

func (l CSS) Resolve(ctx context.Context, page Page) ([]string, error) {
	return page.QueryCSS(ctx, l.Selector)
}

type XPath struct {
	Order int
	Expr  string
	As    Shape
}

func (l XPath) Priority() int  { return l.Order }
func (l XPath) Shape() Shape   { return l.As }
func (l XPath) String() string { return "xpath:" + l.Expr }

func (l XPath) Resolve(ctx context.Context, page Page) ([]string, error) {
	return page.QueryXPath(ctx, l.Expr)
}

// NewLocator builds a locator from its declarative form. Exactly one of css or xpath is set.
func NewLocator(priority int, css, xpath, shape string) (Locator, error) {
	s, err := ParseShape(shape)
	if err != nil {
		return nil, err
	}
	switch {
	case css != "" && xpath == "":
		return CSS{Order: priority, Selector: css, As: s}, nil
	case xpath != "" && css == "":
		return XPath{Order: priority, Expr: xpath, As: s}, nil
	}
	return nil, fmt.Errorf("locator %d: exactly one of css or xpath must be set", priority)
}

// byPriority returns a copy of locs sorted by ascending priority, keeping list order on ties.
func byPriority(locs []Locator) []Locator {
	out := append([]Locator(nil), locs...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority() < out[j].Priority()
	})
	return out
}
