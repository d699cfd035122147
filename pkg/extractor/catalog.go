package extractor

import "turnover.magictradebot.com/models"

// Catalog maps each metric to its fallback cascade.
type Catalog map[models.Metric][]Locator

// DefaultCatalog holds the coinmarketcap.com detail-page cascades, newest layout first.
// Older layouts stay in the list because the site rolls changes out unevenly.
func DefaultCatalog() Catalog {
	return Catalog{
		models.MarketCap: {
			XPath{Order: 10, As: Amount, Expr: `//div[contains(@class, "cPJgvg")][.//dt[contains(text(), "Market cap") and not(contains(text(), "Volume"))]]//dd[@class="sc-8755d3ba-0 eXRmzO base-text"]`},
			XPath{Order: 20, As: Amount, Expr: `//div[contains(@class, "statsBlockInner")][.//div[contains(text(), "Market Cap") and not(contains(text(), "24h Volume / Market Cap"))]]//div[@class="statsValue"]`},
			XPath{Order: 30, As: Amount, Expr: `//*[@id="section-coin-stats"]/div/dl/div[1]/div[1]/dd`},
			XPath{Order: 40, As: Amount, Expr: `//*[@id="__next"]/div/div[1]/div[2]/div/div[1]/div[2]/div/div[3]/div[1]/div[1]/div[1]/div[2]/div`},
			XPath{Order: 50, As: Amount, Expr: `//*[@id="__next"]/div/div[1]/div[2]/div/div[1]/div[3]/div/div[3]/div[1]/div[1]/div[1]/div[2]/div`},
		},
		models.Volume24h: {
			XPath{Order: 10, As: Amount, Expr: `//div[contains(@class, "cPJgvg")][.//dt[contains(text(), "Volume (24h)") and not(contains(text(), "Volume/Market cap"))]]//dd[@class="sc-8755d3ba-0 eXRmzO base-text"]`},
			XPath{Order: 20, As: Amount, Expr: `//div[contains(@class, "statsBlockInner")][.//div[contains(@class, "statsLabel") and contains(text(), "Volume") and not(contains(text(), "24h Volume / Market Cap"))]]//div[@class="statsValue"]`},
			XPath{Order: 30, As: Amount, Expr: `//*[@id="section-coin-stats"]/div/dl/div[2]/div[1]/dd`},
			XPath{Order: 40, As: Amount, Expr: `//*[@id="__next"]/div/div[1]/div[2]/div/div[1]/div[2]/div/div[3]/div[1]/div[3]/div[1]/div[2]/div`},
			XPath{Order: 50, As: Amount, Expr: `//*[@id="__next"]/div/div[1]/div[2]/div/div[1]/div[3]/div/div[3]/div[1]/div[3]/div[1]/div[2]/div`},
		},
		models.TurnoverRate: {
			XPath{Order: 10, As: Fraction, Expr: `//div[contains(@class, "cPJgvg")][.//dt[contains(text(), "Volume/Market cap")]]//dd[@class="sc-8755d3ba-0 eXRmzO base-text"]`},
			XPath{Order: 20, As: Fraction, Expr: `//div[contains(@class, "statsBlockInner")][.//div[contains(text(), "24h Volume / Market Cap")]]//div[@class="priceValue"]`},
			XPath{Order: 30, As: Fraction, Expr: `//*[@id="section-coin-stats"]/div/dl/div[3]/div/dd`},
			XPath{Order: 40, As: Fraction, Expr: `//*[@id="__next"]/div/div[1]/div[2]/div/div[1]/div[2]/div/div[3]/div[1]/div[1]/div[2]/div/div[2]`},
			XPath{Order: 50, As: Fraction, Expr: `//*[@id="__next"]/div/div[1]/div[2]/div/div[1]/div[3]/div/div[3]/div[1]/div[1]/div[3]/div/div[2]`},
			// stats-row scan: every value cell, first one shaped like a ratio wins
			CSS{Order: 60, As: Fraction, Selector: `dd.sc-8755d3ba-0.eXRmzO.base-text`},
			CSS{Order: 70, As: Fraction, Selector: `div.priceValue`},
		},
	}
}

// Override replaces the cascade of metric m.
func (c Catalog) Override(m models.Metric, locs []Locator) {
	c[m] = locs
}
