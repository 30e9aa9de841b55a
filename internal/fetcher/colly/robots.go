package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/JakeFAU/story-crawler/internal/metrics"
)

// robotsRetryBackoff spaces the robots.txt probe attempts. Page fetches are
// never retried; only the robots probe is, because colly aborts the whole
// visit when robots.txt cannot be read.
var robotsRetryBackoff = []time.Duration{
	250 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
}

const allowAllRobots = "User-agent: *\nAllow: /"

// robotsAwareTransport passes page requests straight through and retries
// robots.txt probes on timeouts, falling back to allow-all.
type robotsAwareTransport struct {
	base http.RoundTripper
}

func (t *robotsAwareTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("robots transport received nil request")
	}
	if !isRobotsTxtRequest(req) {
		resp, err := t.base.RoundTrip(req)
		if err != nil {
			return nil, fmt.Errorf("roundtrip %s: %w", req.URL, err)
		}
		return resp, nil
	}
	return t.probeRobots(req)
}

func (t *robotsAwareTransport) probeRobots(req *http.Request) (*http.Response, error) {
	attempts := len(robotsRetryBackoff) + 1
	for attempt := 0; attempt < attempts; attempt++ {
		resp, err := t.base.RoundTrip(req.Clone(req.Context()))
		if err == nil {
			return resp, nil
		}
		if !isTimeout(err) {
			return nil, fmt.Errorf("robots probe: %w", err)
		}
		if attempt == attempts-1 {
			break
		}
		if err := sleepWithContext(req.Context(), robotsRetryBackoff[attempt]); err != nil {
			return nil, err
		}
	}
	metrics.ObserveRobotsFallback()
	return &http.Response{
		StatusCode:    http.StatusOK,
		Status:        "200 OK",
		Body:          io.NopCloser(strings.NewReader(allowAllRobots)),
		ContentLength: int64(len(allowAllRobots)),
		Header:        make(http.Header),
		Request:       req,
	}, nil
}

func isRobotsTxtRequest(req *http.Request) bool {
	return req.URL != nil && strings.EqualFold(req.URL.Path, "/robots.txt")
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "tls: handshake timeout")
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("robots backoff: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
