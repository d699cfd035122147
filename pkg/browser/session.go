// Package browser hands out isolated execution contexts. Every session owns its own
// browser (or HTTP client) and its own temporary directory, so concurrent workers never
// share driver state.
package browser

import (
	"context"
	"fmt"
	"os"

	"turnover.magictradebot.com/pkg/extractor"
)

// Session is one isolated execution context. Close must be called on every exit path.
type Session interface {
	Navigate(ctx context.Context, url string) error
	Page() extractor.Page
	Close() error
}

type Provider interface {
	Acquire(ctx context.Context) (Session, error)
}

func newWorkDir(root string) (string, error) {
	if root == "" {
		root = os.TempDir()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", fmt.Errorf("create temp root %s: %w", root, err)
	}
	dir, err := os.MkdirTemp(root, "session-*")
	if err != nil {
		return "", fmt.Errorf("create session dir: %w", err)
	}
	return dir, nil
}

type blankPage struct{}

func (blankPage) QueryCSS(context.Context, string) ([]string, error) {
	return nil, extractor.ErrNotFound
}
func (blankPage) QueryXPath(context.Context, string) ([]string, error) {
	return nil, extractor.ErrNotFound
}
