package collector

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"turnover.magictradebot.com/models"
	"turnover.magictradebot.com/pkg/browser"
	"turnover.magictradebot.com/pkg/extractor"
	"turnover.magictradebot.com/pkg/retry"
)

func quietLog() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type fakeSession struct {
	navErr error
	page   extractor.Page
	closed *int32
	url    string
}

func (s *fakeSession) Navigate(_ context.Context, url string) error {
	s.url = url
	return s.navErr
}
func (s *fakeSession) Page() extractor.Page { return s.page }
func (s *fakeSession) Close() error {
	atomic.AddInt32(s.closed, 1)
	return nil
}

type fakeProvider struct {
	failures int32 // Acquire fails this many times before succeeding; <0 always fails
	acquired int32
	closed   int32
	navErr   error
	html     string
	mu       sync.Mutex
	urls     []string
}

func (p *fakeProvider) Acquire(ctx context.Context) (browser.Session, error) {
	n := atomic.AddInt32(&p.acquired, 1)
	if p.failures < 0 || n <= p.failures {
		return nil, errors.New("exec: text file busy")
	}
	page, err := extractor.NewHTMLPageString(p.html)
	if err != nil {
		return nil, err
	}
	return &recordingSession{fakeSession: fakeSession{navErr: p.navErr, page: page, closed: &p.closed}, p: p}, nil
}

type recordingSession struct {
	fakeSession
	p *fakeProvider
}

func (s *recordingSession) Navigate(ctx context.Context, url string) error {
	s.p.mu.Lock()
	s.p.urls = append(s.p.urls, url)
	s.p.mu.Unlock()
	return s.fakeSession.Navigate(ctx, url)
}

const page = `<html><body>
<div class="cap">$2,000</div><div class="vol">$500</div><div class="tor">25%</div>
</body></html>`

func testCatalog() extractor.Catalog {
	return extractor.Catalog{
		models.MarketCap:    {extractor.CSS{Order: 1, Selector: "div.cap", As: extractor.Amount}},
		models.Volume24h:    {extractor.CSS{Order: 1, Selector: "div.vol", As: extractor.Amount}},
		models.TurnoverRate: {extractor.CSS{Order: 1, Selector: "div.missing", As: extractor.Fraction}, extractor.CSS{Order: 2, Selector: "div.tor", As: extractor.Fraction}},
	}
}

func newTestWorker(p *fakeProvider) *Worker {
	log := quietLog()
	rx := &retry.Executor{Log: log, Sleep: func(context.Context, time.Duration) error { return nil }}
	w := NewWorker(WorkerOptions{
		PageBaseURL:      "https://example.test/",
		Metrics:          models.AllMetrics,
		Catalog:          testCatalog(),
		NavigationPolicy: retry.Policy{MaxAttempts: 3, Delay: time.Second},
		ContextPolicy:    retry.Policy{MaxAttempts: 3, Delay: time.Second},
		Instance:         "test",
	}, p, extractor.New(log), rx, log)
	w.Now = func() time.Time { return time.Date(2024, 5, 1, 13, 47, 12, 999, time.Local) }
	w.Sleep = func(context.Context, time.Duration) error { return nil }
	return w
}

func TestWorkerProcess(t *testing.T) {
	p := &fakeProvider{html: page, failures: 2}
	w := newTestWorker(p)

	rec, err := w.Process(context.Background(), models.MarketPair{Symbol: "SXP/USDT", Slug: "swipe"}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.HourBucket != time.Date(2024, 5, 1, 13, 0, 0, 0, time.Local) {
		t.Fatalf("hour bucket not truncated: %v", rec.HourBucket)
	}
	if *rec.MarketCap != 2000 || *rec.Volume24h != 500 || *rec.TurnoverRate != 0.25 {
		t.Fatalf("unexpected values %+v", rec)
	}
	if p.urls[0] != "https://example.test/currencies/swipe" {
		t.Fatalf("unexpected url %s", p.urls[0])
	}
	if p.closed != 1 {
		t.Fatalf("session must be closed exactly once, got %d", p.closed)
	}
}

func TestWorkerNavigationFailureYieldsSentinels(t *testing.T) {
	p := &fakeProvider{html: page, navErr: errors.New("net::ERR_CONNECTION_RESET")}
	w := newTestWorker(p)

	rec, err := w.Process(context.Background(), models.MarketPair{Symbol: "DEFI/USDT", Slug: "defi"}, 0)
	if err != nil {
		t.Fatalf("navigation failure must not be an error: %v", err)
	}
	for _, m := range models.AllMetrics {
		if v, ok := rec.Value(m); !ok || v != models.Sentinel {
			t.Fatalf("%s: expected sentinel, got %v", m, v)
		}
	}
	if len(p.urls) != 3 {
		t.Fatalf("expected 3 navigation attempts, got %d", len(p.urls))
	}
	if p.closed != 1 {
		t.Fatalf("session must be closed, got %d", p.closed)
	}
}

func TestWorkerContextExhaustionIsFatal(t *testing.T) {
	p := &fakeProvider{html: page, failures: -1}
	w := newTestWorker(p)

	_, err := w.Process(context.Background(), models.MarketPair{Symbol: "SXP/USDT", Slug: "swipe"}, 0)
	if !errors.Is(err, ErrContextUnavailable) {
		t.Fatalf("expected ErrContextUnavailable, got %v", err)
	}
	if p.acquired != 3 {
		t.Fatalf("expected 3 acquire attempts, got %d", p.acquired)
	}
}

func TestWorkerJitterWithinRange(t *testing.T) {
	p := &fakeProvider{html: page}
	w := newTestWorker(p)
	var slept []time.Duration
	w.Sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	base := 500 * time.Millisecond
	for i := 0; i < 20; i++ {
		if _, err := w.Process(context.Background(), models.MarketPair{Symbol: "A/USDT", Slug: "a"}, base); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	for _, d := range slept {
		if d < base || d > 2*base {
			t.Fatalf("jitter %s outside [%s, %s]", d, base, 2*base)
		}
	}
}

type stubProcessor struct {
	mu      sync.Mutex
	jitters []time.Duration
	fail    string
}

func (s *stubProcessor) Process(ctx context.Context, pair models.MarketPair, jitter time.Duration) (models.Record, error) {
	s.mu.Lock()
	s.jitters = append(s.jitters, jitter)
	s.mu.Unlock()
	if pair.Symbol == s.fail {
		return models.Record{}, ErrContextUnavailable
	}
	// finish out of submission order
	if strings.HasPrefix(pair.Symbol, "SLOW") {
		time.Sleep(20 * time.Millisecond)
	}
	return models.Record{Symbol: pair.Symbol, AssetSlug: pair.Slug}, nil
}

func testPairs() []models.MarketPair {
	return []models.MarketPair{
		{Symbol: "SLOW1/USDT", Slug: "slow1"},
		{Symbol: "B/USDT", Slug: "b"},
		{Symbol: "SLOW2/USDT", Slug: "slow2"},
		{Symbol: "D/USDT", Slug: "d"},
	}
}

func TestOrchestratorParallelOneRecordPerPair(t *testing.T) {
	stub := &stubProcessor{}
	o := NewOrchestrator(stub, quietLog())
	pairs := testPairs()

	records, err := o.RunBatch(context.Background(), pairs, RoundOptions{Parallel: true, Threads: 3, JitterBase: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != len(pairs) {
		t.Fatalf("expected %d records, got %d", len(pairs), len(records))
	}
	for i := range pairs {
		if records[i].Symbol != pairs[i].Symbol {
			t.Fatalf("record %d: expected %s, got %s", i, pairs[i].Symbol, records[i].Symbol)
		}
	}
	for _, j := range stub.jitters {
		if j != time.Second {
			t.Fatalf("parallel mode must pass the jitter base, got %s", j)
		}
	}
}

func TestOrchestratorSequentialDisablesJitter(t *testing.T) {
	stub := &stubProcessor{}
	o := NewOrchestrator(stub, quietLog())

	records, err := o.RunBatch(context.Background(), testPairs(), RoundOptions{Parallel: false, JitterBase: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("expected 4 records, got %d", len(records))
	}
	for _, j := range stub.jitters {
		if j != 0 {
			t.Fatalf("sequential mode must not jitter, got %s", j)
		}
	}
}

func TestOrchestratorPropagatesFatal(t *testing.T) {
	for _, parallel := range []bool{true, false} {
		stub := &stubProcessor{fail: "B/USDT"}
		o := NewOrchestrator(stub, quietLog())
		_, err := o.RunBatch(context.Background(), testPairs(), RoundOptions{Parallel: parallel, Threads: 2})
		if !errors.Is(err, ErrContextUnavailable) {
			t.Fatalf("parallel=%v: expected ErrContextUnavailable, got %v", parallel, err)
		}
	}
}
