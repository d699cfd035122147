// models/market_pair.go
package models

// MarketPair identifies one tradable instrument as listed upstream.
type MarketPair struct {
	Symbol string `json:"marketPair"`       // exchange label, e.g. "SXP/USDT"
	Slug   string `json:"baseCurrencySlug"` // detail-page identifier
}
