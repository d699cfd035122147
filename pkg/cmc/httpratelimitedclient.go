package cmc

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

type RateLimitedClient struct {
	httpClient  *http.Client
	lock        sync.Mutex
	rateLimits  map[string]*RateLimitInfo
	maxRetries  int
	defaultWait time.Duration
	sleep       func(context.Context, time.Duration) error
}

type RateLimitInfo struct {
	used      int
	limit     int
	window    time.Duration
	resetTime time.Time
}

func NewRateLimitedClient(client *http.Client) *RateLimitedClient {
	if client == nil {
		client = &http.Client{}
	}
	return &RateLimitedClient{
		httpClient:  client,
		rateLimits:  make(map[string]*RateLimitInfo),
		maxRetries:  5,
		defaultWait: 5 * time.Second,
		sleep:       sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// SendWithRetry sends req, backing off on 429/418/503 and transient transport errors.
func (c *RateLimitedClient) SendWithRetry(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	retryCount := 0
	for {
		if err := c.applyRateLimiting(ctx, req.URL.Host); err != nil {
			return nil, err
		}

		resp, err := c.httpClient.Do(req)
		if err == nil {
			c.updateRateLimits(req.URL.Host, resp.Header)
			switch resp.StatusCode {
			case http.StatusTooManyRequests, http.StatusTeapot, http.StatusServiceUnavailable:
				delay := c.getRetryDelay(resp, retryCount)
				resp.Body.Close()
				if retryCount >= c.maxRetries {
					return nil, fmt.Errorf("max retries reached: last status %d", resp.StatusCode)
				}
				if err := c.sleep(ctx, delay); err != nil {
					return nil, err
				}
				retryCount++
				continue
			}
			return resp, nil
		}

		if isTransient(err) {
			if retryCount >= c.maxRetries {
				return nil, err
			}
			if err := c.sleep(ctx, c.getRetryDelay(nil, retryCount)); err != nil {
				return nil, err
			}
			retryCount++
			continue
		}
		return nil, err
	}
}

func (c *RateLimitedClient) applyRateLimiting(ctx context.Context, key string) error {
	c.lock.Lock()
	info, exists := c.rateLimits[key]
	var delay time.Duration
	if exists && info.shouldDelay() {
		delay = info.getDelay()
	}
	c.lock.Unlock()

	if delay > 0 {
		return c.sleep(ctx, delay)
	}
	return nil
}

// updateRateLimits records the generic X-RateLimit-* headers when the server sends them.
func (c *RateLimitedClient) updateRateLimits(key string, headers http.Header) {
	limit, errL := strconv.Atoi(headers.Get("X-RateLimit-Limit"))
	remaining, errR := strconv.Atoi(headers.Get("X-RateLimit-Remaining"))
	if errL != nil || errR != nil || limit <= 0 {
		return
	}
	window := time.Minute
	if reset, err := strconv.Atoi(headers.Get("X-RateLimit-Reset")); err == nil && reset > 0 {
		window = time.Duration(reset) * time.Second
	}

	c.lock.Lock()
	defer c.lock.Unlock()
	c.rateLimits[key] = &RateLimitInfo{
		used:      limit - remaining,
		limit:     limit,
		window:    window,
		resetTime: time.Now().Add(window),
	}
}

func (info *RateLimitInfo) shouldDelay() bool {
	remaining := info.limit - info.used
	buffer := int(float64(info.limit) * 0.1)
	return remaining <= buffer
}

func (info *RateLimitInfo) getDelay() time.Duration {
	if info.limit-info.used > 0 {
		return 0
	}
	return time.Until(info.resetTime)
}

func (c *RateLimitedClient) getRetryDelay(resp *http.Response, retry int) time.Duration {
	if resp != nil {
		if val := resp.Header.Get("Retry-After"); val != "" {
			if seconds, err := strconv.Atoi(val); err == nil {
				return time.Duration(seconds) * time.Second
			}
		}
	}
	base := math.Pow(2, float64(retry))
	jitter := rand.Float64()*0.5 + 0.75
	return time.Duration(base * jitter * float64(time.Second))
}

func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, http.ErrHandlerTimeout) ||
		strings.Contains(err.Error(), "timeout") ||
		strings.Contains(err.Error(), "connection reset")
}
