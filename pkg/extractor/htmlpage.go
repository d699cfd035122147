package extractor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// HTMLPage is a static snapshot of a document.
type HTMLPage struct {
	root *html.Node
	doc  *goquery.Document
}

func NewHTMLPage(r io.Reader) (*HTMLPage, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &HTMLPage{root: root, doc: goquery.NewDocumentFromNode(root)}, nil
}

func NewHTMLPageString(s string) (*HTMLPage, error) {
	return NewHTMLPage(bytes.NewBufferString(s))
}

func (p *HTMLPage) QueryCSS(_ context.Context, selector string) ([]string, error) {
	matcher, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidLocator, selector, err)
	}

	sel := p.doc.FindMatcher(matcher)
	if sel.Length() == 0 {
		return nil, ErrNotFound
	}
	texts := make([]string, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		texts = append(texts, strings.TrimSpace(s.Text()))
	})
	return texts, nil
}

func (p *HTMLPage) QueryXPath(_ context.Context, expr string) ([]string, error) {
	nodes, err := htmlquery.QueryAll(p.root, expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidLocator, expr, err)
	}
	if len(nodes) == 0 {
		return nil, ErrNotFound
	}
	texts := make([]string, 0, len(nodes))
	for _, n := range nodes {
		texts = append(texts, strings.TrimSpace(htmlquery.InnerText(n)))
	}
	return texts, nil
}
