package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"

	"turnover.magictradebot.com/pkg/extractor"
)

type ChromeOptions struct {
	TempRoot    string
	ExecPath    string
	UserAgent   string
	Headless    bool
	PageTimeout time.Duration
	// BlockedURLs are never fetched; the stats block needs no images or fonts.
	BlockedURLs []string
}

// DefaultBlockedURLs skips the heavy assets of a detail page.
var DefaultBlockedURLs = []string{"*.png", "*.jpg", "*.jpeg", "*.gif", "*.svg", "*.webp", "*.woff", "*.woff2"}

type ChromeProvider struct {
	opts ChromeOptions
	log  logrus.FieldLogger
}

func NewChromeProvider(opts ChromeOptions, log logrus.FieldLogger) *ChromeProvider {
	if opts.PageTimeout <= 0 {
		opts.PageTimeout = 60 * time.Second
	}
	return &ChromeProvider{opts: opts, log: log}
}

// Acquire starts a fresh browser with its own user-data directory.
func (p *ChromeProvider) Acquire(ctx context.Context) (Session, error) {
	dir, err := newWorkDir(p.opts.TempRoot)
	if err != nil {
		return nil, err
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(dir),
		chromedp.Flag("headless", p.opts.Headless),
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if p.opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(p.opts.ExecPath))
	}
	if p.opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(p.opts.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	s := &chromeSession{
		ctx:     browserCtx,
		dir:     dir,
		timeout: p.opts.PageTimeout,
		cancel: func() {
			browserCancel()
			allocCancel()
		},
	}

	// the first Run starts the browser process
	var start []chromedp.Action
	if len(p.opts.BlockedURLs) > 0 {
		start = append(start, network.Enable(), network.SetBlockedURLs(p.opts.BlockedURLs))
	}
	if err := chromedp.Run(browserCtx, start...); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("start chrome: %w", err)
	}
	p.log.WithField("dir", dir).Debug("🧭 chrome session started")
	return s, nil
}

type chromeSession struct {
	ctx     context.Context
	cancel  func()
	dir     string
	timeout time.Duration
	loaded  bool
}

func (s *chromeSession) Navigate(ctx context.Context, url string) error {
	tctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	// propagate caller cancellation into the browser context
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(tctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	s.loaded = true
	return nil
}

func (s *chromeSession) Page() extractor.Page {
	if !s.loaded {
		return blankPage{}
	}
	return s
}

func (s *chromeSession) Close() error {
	s.cancel()
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("remove session dir %s: %w", s.dir, err)
	}
	return nil
}

const queryScript = `(() => {
  try {
    const q = %s;
    const out = [];
    %s
    return {texts: out};
  } catch (e) {
    return {invalid: String(e)};
  }
})()`

const cssBody = `document.querySelectorAll(q).forEach(n => out.push((n.innerText || n.textContent || "").trim()));`

const xpathBody = `const r = document.evaluate(q, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
    for (let i = 0; i < r.snapshotLength; i++) {
      const n = r.snapshotItem(i);
      out.push((n.innerText || n.textContent || "").trim());
    }`

type queryResult struct {
	Texts   []string `json:"texts"`
	Invalid string   `json:"invalid"`
}

func (s *chromeSession) QueryCSS(ctx context.Context, selector string) ([]string, error) {
	return s.query(ctx, selector, cssBody)
}

func (s *chromeSession) QueryXPath(ctx context.Context, expr string) ([]string, error) {
	return s.query(ctx, expr, xpathBody)
}

func (s *chromeSession) query(ctx context.Context, q, body string) ([]string, error) {
	quoted, err := json.Marshal(q)
	if err != nil {
		return nil, err
	}

	tctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var res queryResult
	if err := chromedp.Run(tctx, chromedp.Evaluate(fmt.Sprintf(queryScript, quoted, body), &res)); err != nil {
		if isStale(err) {
			return nil, fmt.Errorf("%w: %v", extractor.ErrStale, err)
		}
		return nil, err
	}
	if res.Invalid != "" {
		return nil, fmt.Errorf("%w: %s: %s", extractor.ErrInvalidLocator, q, res.Invalid)
	}
	if len(res.Texts) == 0 {
		return nil, extractor.ErrNotFound
	}
	return res.Texts, nil
}

var staleMarkers = []string{
	"execution context was destroyed",
	"cannot find context with specified id",
	"could not find node with given id",
	"no node with given id",
	"node is detached",
}

// isStale reports CDP errors caused by the page re-rendering underneath a query.
func isStale(err error) bool {
	if errors.Is(err, extractor.ErrStale) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range staleMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
