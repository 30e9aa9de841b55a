// Package ratelimit caps the request rate per source host with token buckets.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/story-crawler/internal/crawler"
	"github.com/JakeFAU/story-crawler/internal/metrics"
)

// Config holds rate limiter configuration. A non-positive RPS disables limiting.
type Config struct {
	RPS   float64
	Burst int
}

// Limiter manages one token bucket per host.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// New creates a Limiter.
func New(cfg Config) *Limiter {
	limit := rate.Limit(cfg.RPS)
	if cfg.RPS <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
}

// Wait blocks until rawURL's host may be fetched or ctx is done.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	site := metrics.SanitizeSite(rawURL)

	l.mu.Lock()
	limiter, ok := l.limiters[site]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[site] = limiter
	}
	l.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(site, waited)
	}
	return nil
}

// Fetcher gates another Fetcher behind a Limiter. All batch workers share it,
// so concurrent runs against one host stay under a single budget.
type Fetcher struct {
	next    crawler.Fetcher
	limiter *Limiter
}

var _ crawler.Fetcher = (*Fetcher)(nil)

// Wrap returns next unchanged when cfg disables limiting.
func Wrap(next crawler.Fetcher, cfg Config) crawler.Fetcher {
	if cfg.RPS <= 0 {
		return next
	}
	return &Fetcher{next: next, limiter: New(cfg)}
}

// Fetch waits for a token and delegates. A canceled wait is reported as a
// canceled FetchError so callers treat it like any other failed fetch.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	if err := f.limiter.Wait(ctx, url); err != nil {
		return "", &crawler.FetchError{URL: url, Kind: crawler.FetchErrorCanceled, Err: err}
	}
	return f.next.Fetch(ctx, url) //nolint:wrapcheck // decorator keeps the upstream FetchError intact
}
