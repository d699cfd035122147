// models/metric.go
package models

// Sentinel marks a metric that was attempted but could not be located on the page.
const Sentinel = -1.0

type Metric string

const (
	MarketCap    Metric = "market_cap"
	Volume24h    Metric = "volume_24h"
	TurnoverRate Metric = "turnover_rate"
)

// AllMetrics lists every metric in table column order.
var AllMetrics = []Metric{MarketCap, Volume24h, TurnoverRate}

func ParseMetric(s string) (Metric, bool) {
	for _, m := range AllMetrics {
		if string(m) == s {
			return m, true
		}
	}
	return "", false
}
