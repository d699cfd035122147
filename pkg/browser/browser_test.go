package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/sirupsen/logrus"

	"turnover.magictradebot.com/pkg/extractor"
)

func quietLog() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestHTTPSessionIsolationAndCleanup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `<html><body><div class="priceValue">4.2%</div></body></html>`)
	}))
	defer srv.Close()

	root := t.TempDir()
	p := NewHTTPProvider(HTTPOptions{TempRoot: root, UserAgent: "test"}, quietLog())
	ctx := context.Background()

	a, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	b, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	da, db := a.(*httpSession).dir, b.(*httpSession).dir
	if da == db {
		t.Fatal("sessions must not share a working directory")
	}

	if _, err := a.Page().QueryCSS(ctx, "div"); !errors.Is(err, extractor.ErrNotFound) {
		t.Fatalf("page before navigation must be blank, got %v", err)
	}
	if err := a.Navigate(ctx, srv.URL+"/currencies/sxp"); err != nil {
		t.Fatalf("navigate: %v", err)
	}
	texts, err := a.Page().QueryCSS(ctx, "div.priceValue")
	if err != nil || len(texts) != 1 || texts[0] != "4.2%" {
		t.Fatalf("unexpected query result %v, %v", texts, err)
	}
	if err := b.Navigate(ctx, srv.URL+"/missing"); err == nil {
		t.Fatal("expected error for 404 page")
	}

	for _, s := range []Session{a, b} {
		if err := s.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
	}
	for _, d := range []string{da, db} {
		if _, err := os.Stat(d); !os.IsNotExist(err) {
			t.Fatalf("session dir %s not removed", d)
		}
	}
}

func TestIsStale(t *testing.T) {
	if !isStale(errors.New("Execution context was destroyed, most likely because of a navigation")) {
		t.Fatal("expected destroyed context to be stale")
	}
	if isStale(errors.New("net::ERR_NAME_NOT_RESOLVED")) {
		t.Fatal("network errors are not stale references")
	}
}
