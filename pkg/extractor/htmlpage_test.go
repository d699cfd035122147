package extractor

import (
	"context"
	"errors"
	"testing"

	"turnover.magictradebot.com/models"
)

const statsPage = `<html><body>
<section id="section-coin-stats"><div><dl>
  <div class="sc-cPJgvg"><div><dt>Market cap</dt><dd class="sc-8755d3ba-0 eXRmzO base-text">$1,234,567,890</dd></div></div>
  <div class="sc-cPJgvg"><div><dt>Volume (24h)</dt><dd class="sc-8755d3ba-0 eXRmzO base-text">$98,765,432</dd></div></div>
  <div class="sc-cPJgvg"><div><dt>Volume/Market cap (24h)</dt><dd class="sc-8755d3ba-0 eXRmzO base-text">8.01%</dd></div></div>
</dl></div></section>
</body></html>`

func TestHTMLPageQueries(t *testing.T) {
	page, err := NewHTMLPageString(statsPage)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	ctx := context.Background()

	texts, err := page.QueryCSS(ctx, "dd.base-text")
	if err != nil || len(texts) != 3 {
		t.Fatalf("expected 3 css matches, got %v, %v", texts, err)
	}
	if _, err := page.QueryCSS(ctx, "div.priceValue"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := page.QueryCSS(ctx, "dd[["); !errors.Is(err, ErrInvalidLocator) {
		t.Fatalf("expected ErrInvalidLocator, got %v", err)
	}
	if _, err := page.QueryXPath(ctx, "//dd[("); !errors.Is(err, ErrInvalidLocator) {
		t.Fatalf("expected ErrInvalidLocator for xpath, got %v", err)
	}
}

func TestDefaultCatalogAgainstStatsPage(t *testing.T) {
	page, err := NewHTMLPageString(statsPage)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	ex := quietExtractor()
	cat := DefaultCatalog()
	ctx := context.Background()

	if got := ex.Extract(ctx, page, "SXP/USDT", models.MarketCap, cat[models.MarketCap]); got != 1234567890 {
		t.Errorf("market cap: got %v", got)
	}
	if got := ex.Extract(ctx, page, "SXP/USDT", models.Volume24h, cat[models.Volume24h]); got != 98765432 {
		t.Errorf("volume: got %v", got)
	}
	if got := ex.Extract(ctx, page, "SXP/USDT", models.TurnoverRate, cat[models.TurnoverRate]); got != 0.0801 {
		t.Errorf("turnover: got %v", got)
	}
}
