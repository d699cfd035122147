// Package cmc talks to the market-data listing API and fixes known-bad upstream slugs.
package cmc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"turnover.magictradebot.com/models"
)

type Client struct {
	URL       string
	UserAgent string
	http      *RateLimitedClient
}

func NewClient(url, userAgent string, timeout time.Duration) *Client {
	return &Client{
		URL:       url,
		UserAgent: userAgent,
		http:      NewRateLimitedClient(&http.Client{Timeout: timeout}),
	}
}

type marketPairsResponse struct {
	Data struct {
		MarketPairs []models.MarketPair `json:"marketPairs"`
	} `json:"data"`
	Status struct {
		ErrorCode    string `json:"error_code"`
		ErrorMessage string `json:"error_message"`
	} `json:"status"`
}

// ListMarketPairs fetches the tradable pairs the round will scrape.
func (c *Client) ListMarketPairs(ctx context.Context) ([]models.MarketPair, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return nil, err
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	resp, err := c.http.SendWithRetry(req)
	if err != nil {
		return nil, fmt.Errorf("list market pairs: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("non-200 response: %d\n%s", resp.StatusCode, string(body))
	}

	var parsed marketPairsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode market pairs: %w", err)
	}
	if parsed.Status.ErrorCode != "" && parsed.Status.ErrorCode != "0" {
		return nil, fmt.Errorf("listing api error %s: %s", parsed.Status.ErrorCode, parsed.Status.ErrorMessage)
	}

	pairs := parsed.Data.MarketPairs[:0]
	for _, p := range parsed.Data.MarketPairs {
		if p.Symbol == "" || p.Slug == "" {
			continue
		}
		pairs = append(pairs, p)
	}
	return pairs, nil
}
