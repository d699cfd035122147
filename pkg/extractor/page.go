package extractor

import (
	"context"
	"errors"
)

var (
	// ErrNotFound means a locator matched nothing on the page. Expected; try the next one.
	ErrNotFound = errors.New("no element matched locator")
	// ErrStale means the matched element went away while being read (live page re-rendered).
	ErrStale = errors.New("element reference is stale")
	// ErrInvalidLocator means the query itself could not be compiled.
	ErrInvalidLocator = errors.New("invalid locator query")
)

// Page is a loaded document that locators can be resolved against. Both methods return
// the visible text of every match in document order, or ErrNotFound.
type Page interface {
	QueryCSS(ctx context.Context, selector string) ([]string, error)
	QueryXPath(ctx context.Context, expr string) ([]string, error)
}
