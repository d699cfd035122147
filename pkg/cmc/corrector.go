package cmc

import (
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"turnover.magictradebot.com/models"
)

// Corrector rewrites slugs the listing API is known to get wrong. A correction applies
// to every pair whose label contains its fragment, e.g. "KNC" matches "KNC/USDT".
type Corrector struct {
	fixes []fix
	log   logrus.FieldLogger
}

type fix struct {
	fragment string
	slug     string
}

func NewCorrector(table map[string]string, log logrus.FieldLogger) *Corrector {
	c := &Corrector{log: log}
	for fragment, slug := range table {
		c.fixes = append(c.fixes, fix{fragment: fragment, slug: slug})
	}
	// longer fragments are more specific and applied last, so they win
	sort.Slice(c.fixes, func(i, j int) bool {
		if len(c.fixes[i].fragment) != len(c.fixes[j].fragment) {
			return len(c.fixes[i].fragment) < len(c.fixes[j].fragment)
		}
		return c.fixes[i].fragment < c.fixes[j].fragment
	})
	return c
}

// Apply returns a corrected copy of pairs.
func (c *Corrector) Apply(pairs []models.MarketPair) []models.MarketPair {
	out := make([]models.MarketPair, len(pairs))
	copy(out, pairs)

	for i := range out {
		for _, f := range c.fixes {
			if !strings.Contains(out[i].Symbol, f.fragment) || out[i].Slug == f.slug {
				continue
			}
			c.log.WithFields(logrus.Fields{
				"symbol": out[i].Symbol,
				"from":   out[i].Slug,
				"to":     f.slug,
			}).Info("🩹 Slug corrected")
			out[i].Slug = f.slug
		}
	}
	return out
}
