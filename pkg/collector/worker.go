package collector

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"turnover.magictradebot.com/models"
	"turnover.magictradebot.com/pkg/browser"
	"turnover.magictradebot.com/pkg/extractor"
	"turnover.magictradebot.com/pkg/retry"
)

// ErrContextUnavailable means no execution context could be created for a pair. It is
// fatal for the round: without a browser no pair can be scraped.
var ErrContextUnavailable = errors.New("execution context unavailable")

type WorkerOptions struct {
	PageBaseURL      string
	Metrics          []models.Metric
	Catalog          extractor.Catalog
	NavigationPolicy retry.Policy
	ContextPolicy    retry.Policy
	Instance         string
}

type Worker struct {
	opts      WorkerOptions
	provider  browser.Provider
	extractor *extractor.Extractor
	retry     *retry.Executor
	limiter   *rate.Limiter
	log       logrus.FieldLogger

	Now   func() time.Time
	Sleep retry.Sleeper
}

func NewWorker(opts WorkerOptions, provider browser.Provider, ex *extractor.Extractor, rx *retry.Executor, log logrus.FieldLogger) *Worker {
	return &Worker{
		opts:      opts,
		provider:  provider,
		extractor: ex,
		retry:     rx,
		log:       log,
		Now:       time.Now,
		Sleep:     retry.SleepContext,
	}
}

// WithLimiter paces page navigations across every worker sharing l.
func (w *Worker) WithLimiter(l *rate.Limiter) *Worker {
	w.limiter = l
	return w
}

// PageURL is the detail page of an asset.
func PageURL(base, slug string) string {
	return strings.TrimRight(base, "/") + "/currencies/" + slug
}

// Process scrapes one pair into one record. Extraction failures never surface as errors;
// they become sentinel values. Only a missing execution context or a cancelled ctx does.
func (w *Worker) Process(ctx context.Context, pair models.MarketPair, jitterBase time.Duration) (models.Record, error) {
	log := w.log.WithFields(logrus.Fields{"symbol": pair.Symbol, "slug": pair.Slug})

	if jitterBase > 0 {
		d := jitterBase + time.Duration(rand.Int64N(int64(jitterBase)+1))
		if err := w.Sleep(ctx, d); err != nil {
			return models.Record{}, err
		}
	}

	session, err := retry.Execute(ctx, w.retry, "create session "+pair.Symbol, w.opts.ContextPolicy, w.provider.Acquire)
	if err != nil {
		if ctx.Err() != nil {
			return models.Record{}, ctx.Err()
		}
		return models.Record{}, fmt.Errorf("%w for %s: %v", ErrContextUnavailable, pair.Symbol, err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			log.WithError(err).Warn("⚠️ Failed to release session")
		}
	}()

	url := PageURL(w.opts.PageBaseURL, pair.Slug)
	log.WithField("url", url).Debug("🌐 Loading page")

	navErr := retry.Do(ctx, w.retry, "webpage "+pair.Symbol, w.opts.NavigationPolicy, func(ctx context.Context) error {
		if w.limiter != nil {
			if err := w.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		return session.Navigate(ctx, url)
	})
	if navErr != nil && ctx.Err() != nil {
		return models.Record{}, ctx.Err()
	}

	rec := models.Record{
		Symbol:    pair.Symbol,
		AssetSlug: pair.Slug,
		Instance:  w.opts.Instance,
	}

	if navErr != nil {
		log.WithError(navErr).Warn("⚠️ Page never loaded, recording sentinels")
		for _, m := range w.opts.Metrics {
			rec.SetValue(m, models.Sentinel)
		}
	} else {
		page := session.Page()
		for _, m := range w.opts.Metrics {
			v := w.extractor.Extract(ctx, page, pair.Symbol, m, w.opts.Catalog[m])
			if m == models.TurnoverRate && v != models.Sentinel && models.NormalizeTurnover(v) == models.Sentinel {
				log.WithField("value", v).Warn("⚠️ Turnover out of range, recording sentinel")
			}
			rec.SetValue(m, v)
		}
	}

	rec.HourBucket = models.HourBucket(w.Now())
	log.WithFields(recordFields(rec)).Info("✅ Pair scraped")
	return rec, nil
}

func recordFields(r models.Record) logrus.Fields {
	f := logrus.Fields{"hour": r.HourBucket.Format(models.HourBucketLayout)}
	for _, m := range models.AllMetrics {
		if v, ok := r.Value(m); ok {
			f[string(m)] = v
		}
	}
	return f
}
