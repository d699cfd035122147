// Package pipeline wires one collection round end to end: list pairs, fix their slugs,
// scrape every pair, then persist the batch.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"turnover.magictradebot.com/models"
	"turnover.magictradebot.com/pkg/collector"
)

type PairLister interface {
	ListMarketPairs(ctx context.Context) ([]models.MarketPair, error)
}

type Corrector interface {
	Apply(pairs []models.MarketPair) []models.MarketPair
}

type Batcher interface {
	RunBatch(ctx context.Context, pairs []models.MarketPair, opts collector.RoundOptions) ([]models.Record, error)
}

type Store interface {
	AppendAndNormalize(batch []models.Record) (string, error)
}

type Mirror interface {
	SaveRecords(data []models.Record, instance string) error
}

type Publisher interface {
	PublishBatch(ctx context.Context, runID string, records []models.Record) (int, error)
}

// TestMode narrows a round to a handful of pairs.
type TestMode struct {
	Enabled bool
	Symbols []string
	Others  int
}

// Round holds everything one pass needs. Mirror and Publisher are optional.
type Round struct {
	Lister    PairLister
	Corrector Corrector
	Batcher   Batcher
	Store     Store
	Mirror    Mirror
	Publisher Publisher

	Options  collector.RoundOptions
	Test     TestMode
	Instance string
	Log      logrus.FieldLogger
}

// Run executes one round. Failures of the listing, the batch or the table are returned;
// mirror and stream failures are logged only.
func (r *Round) Run(ctx context.Context) error {
	runID := uuid.NewString()
	log := r.Log.WithField("run", runID)
	started := time.Now()

	pairs, err := r.Lister.ListMarketPairs(ctx)
	if err != nil {
		return fmt.Errorf("fetch pair list: %w", err)
	}
	if r.Corrector != nil {
		pairs = r.Corrector.Apply(pairs)
	}
	if r.Test.Enabled {
		pairs = r.Test.Select(pairs)
		log.WithField("pairs", len(pairs)).Info("🧪 Test mode, reduced pair set")
	}
	if len(pairs) == 0 {
		return fmt.Errorf("no market pairs to collect")
	}

	records, err := r.Batcher.RunBatch(ctx, pairs, r.Options)
	if err != nil {
		return fmt.Errorf("run batch: %w", err)
	}

	backup, err := r.Store.AppendAndNormalize(records)
	if err != nil {
		return err
	}
	if backup == "" {
		log.Info("🆕 No previous table to back up")
	} else {
		log.WithField("backup", backup).Info("💾 Table backed up")
	}

	if r.Mirror != nil {
		if err := r.Mirror.SaveRecords(records, r.Instance); err != nil {
			log.WithError(err).Error("❌ Database mirror failed")
		}
	}
	if r.Publisher != nil {
		if _, err := r.Publisher.PublishBatch(ctx, runID, records); err != nil {
			log.WithError(err).Warn("⚠️ Some records were not streamed")
		}
	}

	log.WithFields(logrus.Fields{
		"pairs":   len(pairs),
		"records": len(records),
		"elapsed": time.Since(started).Round(time.Second).String(),
	}).Info("✅ Round complete")
	return nil
}

// Select keeps the last Others pairs and adds every pair whose label contains one of the
// test symbols. A pair is kept at most once. Others below one is treated as one.
func (t TestMode) Select(pairs []models.MarketPair) []models.MarketPair {
	others := t.Others
	if others < 1 {
		others = 1
	}
	if others > len(pairs) {
		others = len(pairs)
	}

	seen := make(map[string]bool)
	out := make([]models.MarketPair, 0, others+len(t.Symbols))
	keep := func(p models.MarketPair) {
		if seen[p.Symbol] {
			return
		}
		seen[p.Symbol] = true
		out = append(out, p)
	}

	for _, p := range pairs[len(pairs)-others:] {
		keep(p)
	}
	for _, s := range t.Symbols {
		for _, p := range pairs {
			if strings.Contains(p.Symbol, s) {
				keep(p)
			}
		}
	}
	return out
}
