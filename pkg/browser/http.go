package browser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"turnover.magictradebot.com/pkg/extractor"
)

type HTTPOptions struct {
	TempRoot    string
	UserAgent   string
	PageTimeout time.Duration
	// Transport is shared between sessions when set; tests point it at httptest servers.
	Transport http.RoundTripper
}

// HTTPProvider renders nothing: it fetches server-side HTML and parses it as a static page.
type HTTPProvider struct {
	opts HTTPOptions
	log  logrus.FieldLogger
}

func NewHTTPProvider(opts HTTPOptions, log logrus.FieldLogger) *HTTPProvider {
	if opts.PageTimeout <= 0 {
		opts.PageTimeout = 30 * time.Second
	}
	return &HTTPProvider{opts: opts, log: log}
}

func (p *HTTPProvider) Acquire(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := newWorkDir(p.opts.TempRoot)
	if err != nil {
		return nil, err
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	return &httpSession{
		client:    &http.Client{Timeout: p.opts.PageTimeout, Jar: jar, Transport: p.opts.Transport},
		dir:       dir,
		userAgent: p.opts.UserAgent,
	}, nil
}

type httpSession struct {
	client    *http.Client
	dir       string
	userAgent string
	page      *extractor.HTMLPage
}

func (s *httpSession) Navigate(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("navigate %s: non-200 response: %d", url, resp.StatusCode)
	}

	// keep the last snapshot next to the session for post-mortem while it is alive
	_ = os.WriteFile(filepath.Join(s.dir, "page.html"), body, 0o644)

	page, err := extractor.NewHTMLPage(bytes.NewReader(body))
	if err != nil {
		return err
	}
	s.page = page
	return nil
}

func (s *httpSession) Page() extractor.Page {
	if s.page == nil {
		return blankPage{}
	}
	return s.page
}

func (s *httpSession) Close() error {
	s.client.CloseIdleConnections()
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("remove session dir %s: %w", s.dir, err)
	}
	return nil
}
