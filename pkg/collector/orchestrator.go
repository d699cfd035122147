// Package collector fans market pairs out to workers and gathers one record per pair.
package collector

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"turnover.magictradebot.com/models"
)

// Processor turns one pair into one record.
type Processor interface {
	Process(ctx context.Context, pair models.MarketPair, jitterBase time.Duration) (models.Record, error)
}

// RoundOptions is the concurrency policy of one round.
type RoundOptions struct {
	Parallel   bool
	Threads    int
	JitterBase time.Duration
}

type Orchestrator struct {
	worker Processor
	log    logrus.FieldLogger
}

func NewOrchestrator(worker Processor, log logrus.FieldLogger) *Orchestrator {
	return &Orchestrator{worker: worker, log: log}
}

// RunBatch returns records in pair order. A worker error (no execution context, or a
// cancelled ctx) aborts the batch; every other outcome is a record.
func (o *Orchestrator) RunBatch(ctx context.Context, pairs []models.MarketPair, opts RoundOptions) ([]models.Record, error) {
	records := make([]models.Record, len(pairs))
	var done int64
	total := len(pairs)

	progress := func(pair models.MarketPair, started time.Time) {
		n := atomic.AddInt64(&done, 1)
		o.log.WithFields(logrus.Fields{
			"symbol":  pair.Symbol,
			"elapsed": time.Since(started).Round(time.Millisecond).String(),
		}).Debugf("⏱️ %d/%d pairs done", n, total)
	}

	if !opts.Parallel {
		o.log.WithField("pairs", total).Info("🐢 Running batch sequentially")
		for i, pair := range pairs {
			started := time.Now()
			rec, err := o.worker.Process(ctx, pair, 0)
			if err != nil {
				return nil, err
			}
			records[i] = rec
			progress(pair, started)
		}
		return records, nil
	}

	threads := opts.Threads
	if threads < 1 {
		threads = 1
	}
	o.log.WithFields(logrus.Fields{"pairs": total, "threads": threads}).Info("🚀 Running batch in parallel")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(threads)
	for i, pair := range pairs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			started := time.Now()
			rec, err := o.worker.Process(gctx, pair, opts.JitterBase)
			if err != nil {
				return err
			}
			records[i] = rec
			progress(pair, started)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}
