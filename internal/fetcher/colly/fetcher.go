// Package collyfetcher implements crawler.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/story-crawler/internal/crawler"
	"github.com/JakeFAU/story-crawler/internal/metrics"
)

const defaultTimeout = 30 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	Logger        *zap.Logger
}

// Fetcher implements crawler.Fetcher using the Colly collector. It performs
// exactly one GET per call and never retries.
type Fetcher struct {
	cfg           Config
	logger        *zap.Logger
	baseCollector *colly.Collector
}

var _ crawler.Fetcher = (*Fetcher)(nil)

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// fetchState is filled in by the collector callbacks of a single fetch.
type fetchState struct {
	body   string
	status int
	err    error
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.WithTransport(&robotsAwareTransport{base: newHTTPTransport()})
	// Clones share the underlying http.Client, so the timeout is set once here.
	c.SetRequestTimeout(cfg.Timeout)
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.IgnoreRobotsTxt = !cfg.RespectRobots

	return &Fetcher{
		cfg:           cfg,
		logger:        logger.Named("fetcher"),
		baseCollector: c,
	}
}

// Fetch executes a single HTTP GET and returns the body as text.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	start := time.Now()
	state := &fetchState{}
	collector := f.buildCollector(state)

	err := f.runCollector(ctx, collector, url, state)
	duration := time.Since(start)
	if err != nil {
		var fe *crawler.FetchError
		result := "error"
		if errors.As(err, &fe) {
			result = string(fe.Kind)
		}
		metrics.ObserveFetch(url, result, 0, duration)
		f.logger.Warn("fetch failed", zap.String("url", url), zap.Duration("duration", duration), zap.Error(err))
		return "", err
	}
	metrics.ObserveFetch(url, "ok", len(state.body), duration)
	f.logger.Debug("fetched", zap.String("url", url), zap.Int("status", state.status), zap.Int("bytes", len(state.body)))
	return state.body, nil
}

func (f *Fetcher) buildCollector(state *fetchState) *colly.Collector {
	collector := f.baseCollector.Clone()
	f.configureCollectorHooks(collector, state)
	return collector
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, state *fetchState) {
	hooks.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "vi-VN,vi;q=0.9,en-US;q=0.8,en;q=0.7")
	})

	hooks.OnResponse(func(r *colly.Response) {
		state.status = r.StatusCode
		state.body = string(r.Body)
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			state.status = r.StatusCode
		}
		state.err = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, state *fetchState) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		kind := crawler.FetchErrorCanceled
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			kind = crawler.FetchErrorTimeout
		}
		return &crawler.FetchError{URL: url, Kind: kind, Err: ctx.Err()}
	case err := <-done:
		if err == nil {
			err = state.err
		}
		if err != nil || !isSuccess(state.status) {
			return classify(url, state.status, err)
		}
		return nil
	}
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func classify(url string, status int, err error) *crawler.FetchError {
	if status != 0 && !isSuccess(status) {
		return &crawler.FetchError{URL: url, StatusCode: status, Kind: crawler.FetchErrorStatus, Err: err}
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &crawler.FetchError{URL: url, Kind: crawler.FetchErrorTimeout, Err: err}
	}
	return &crawler.FetchError{URL: url, StatusCode: status, Kind: crawler.FetchErrorNetwork, Err: err}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
