// Package extractor finds metric values on a loaded page by walking an ordered cascade
// of locators. The cascade absorbs markup changes on the source site: a locator that no
// longer matches simply hands over to the next one, and a metric that nothing can find
// is recorded as models.Sentinel instead of failing the run.
package extractor

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"turnover.magictradebot.com/models"
)

type Extractor struct {
	Log logrus.FieldLogger
}

func New(log logrus.FieldLogger) *Extractor {
	return &Extractor{Log: log}
}

// Extract returns the first value any locator yields, or models.Sentinel.
func (e *Extractor) Extract(ctx context.Context, page Page, symbol string, metric models.Metric, locators []Locator) float64 {
	log := e.Log.WithFields(logrus.Fields{"symbol": symbol, "metric": metric})

	for _, loc := range byPriority(locators) {
		texts, err := loc.Resolve(ctx, page)
		switch {
		case errors.Is(err, ErrNotFound):
			continue
		case errors.Is(err, ErrStale):
			log.WithField("locator", loc.String()).Errorf("♻️ element went stale, moving to next locator: %v", err)
			continue
		case err != nil:
			log.WithField("locator", loc.String()).Warnf("⚠️ locator failed, moving to next: %v", err)
			continue
		}

		for _, text := range texts {
			v, err := ParseCandidate(text, loc.Shape())
			if err != nil {
				log.WithFields(logrus.Fields{"locator": loc.String(), "text": text}).Debug("🔸 candidate rejected")
				continue
			}
			log.WithFields(logrus.Fields{"locator": loc.String(), "value": v}).Debug("✅ metric found")
			return v
		}
	}

	log.Warn("⚠️ metric not found by any locator")
	return models.Sentinel
}
