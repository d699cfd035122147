// models/record.go
package models

import (
	"math"
	"time"
)

// HourBucketLayout is the textual form of an hour bucket in the table.
const HourBucketLayout = "2006-01-02 15:04:05"

func (Record) TableName() string {
	return "CmcTurnoverRecord"
}

// Record is one row of the output table. Metric fields are nil when the metric
// is not collected by the configured table variant.
type Record struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"-"`
	HourBucket   time.Time `gorm:"uniqueIndex:idx_symbol_hour" json:"hour_bucket"`
	Symbol       string    `gorm:"size:50;uniqueIndex:idx_symbol_hour" json:"symbol"`
	AssetSlug    string    `gorm:"size:100" json:"asset_slug"`
	MarketCap    *float64  `json:"market_cap,omitempty"`
	Volume24h    *float64  `gorm:"column:volume_24h" json:"volume_24h,omitempty"`
	TurnoverRate *float64  `json:"turnover_rate,omitempty"`
	Instance     string    `gorm:"size:50" json:"instance,omitempty"`
}

// HourBucket truncates t to the start of its wall-clock hour.
func HourBucket(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
}

// Value returns the metric value and whether the record carries that metric.
func (r Record) Value(m Metric) (float64, bool) {
	var p *float64
	switch m {
	case MarketCap:
		p = r.MarketCap
	case Volume24h:
		p = r.Volume24h
	case TurnoverRate:
		p = r.TurnoverRate
	}
	if p == nil {
		return 0, false
	}
	return *p, true
}

// SetValue stores v for metric m, normalizing turnover into [0, 1].
func (r *Record) SetValue(m Metric, v float64) {
	switch m {
	case MarketCap:
		r.MarketCap = &v
	case Volume24h:
		r.Volume24h = &v
	case TurnoverRate:
		v = NormalizeTurnover(v)
		r.TurnoverRate = &v
	}
}

// NormalizeTurnover keeps a turnover value inside [0, 1]. A value outside the range is
// taken to still be a percentage and divided by 100 once; anything still outside is
// reported as the sentinel.
func NormalizeTurnover(v float64) float64 {
	if v == Sentinel || math.IsNaN(v) {
		return Sentinel
	}
	if v >= 0 && v <= 1 {
		return v
	}
	v /= 100
	if v >= 0 && v <= 1 {
		return v
	}
	return Sentinel
}

// Key identifies a row for deduplication.
func (r Record) Key() string {
	return r.Symbol + "\x00" + r.HourBucket.Format(HourBucketLayout)
}
