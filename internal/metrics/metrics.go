// Package metrics exposes Prometheus collectors for the crawler service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchRequestsTotal         *prometheus.CounterVec
	fetchBytesTotal            *prometheus.CounterVec
	fetchDurationSeconds       *prometheus.HistogramVec
	robotsFallbackTotal        prometheus.Counter
	rateLimitDelaySeconds      *prometheus.HistogramVec
	listPagesTotal             *prometheus.CounterVec
	storyResolutionsTotal      *prometheus.CounterVec
	storiesSavedTotal          *prometheus.CounterVec
	chaptersSavedTotal         *prometheus.CounterVec
	chapterNumberConflicts     prometheus.Counter
	batchURLsTotal             *prometheus.CounterVec
	activeBatches              prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storycrawler_fetch_requests_total",
				Help: "Total number of source page fetches, labeled by site and result.",
			},
			[]string{"site", "result"},
		)

		fetchBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storycrawler_fetch_bytes_total",
				Help: "Total number of bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "storycrawler_fetch_duration_seconds",
				Help:    "Histogram of source page fetch latencies, labeled by site.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"site"},
		)

		robotsFallbackTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "storycrawler_robots_fallback_total",
				Help: "Total robots.txt probes that fell back to allow-all after timeouts.",
			},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "storycrawler_rate_limit_delay_seconds",
				Help:    "Time fetches spent waiting on the per-host rate limiter.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"site"},
		)

		listPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storycrawler_list_pages_total",
				Help: "Total chapter-list pages walked, labeled by source adapter.",
			},
			[]string{"source"},
		)

		storyResolutionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storycrawler_story_resolutions_total",
				Help: "Story identity lookups, labeled by the strategy that matched (or none).",
			},
			[]string{"strategy"},
		)

		storiesSavedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storycrawler_stories_saved_total",
				Help: "Total stories written, labeled by created/updated.",
			},
			[]string{"result"},
		)

		chaptersSavedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storycrawler_chapters_saved_total",
				Help: "Total chapters written, labeled by created/updated.",
			},
			[]string{"result"},
		)

		chapterNumberConflicts = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "storycrawler_chapter_number_conflicts_total",
				Help: "Chapters deleted because another record claimed the same number.",
			},
		)

		batchURLsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storycrawler_batch_urls_total",
				Help: "Story URLs processed by batch runs, labeled by status.",
			},
			[]string{"status"},
		)

		activeBatches = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "storycrawler_active_batches",
				Help: "Number of batch runs currently executing.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 30, 120},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records one source fetch.
func ObserveFetch(rawURL, result string, bytesFetched int, duration time.Duration) {
	site := SanitizeSite(rawURL)
	fetchRequestsTotal.WithLabelValues(site, result).Inc()
	fetchDurationSeconds.WithLabelValues(site).Observe(duration.Seconds())
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(site).Add(float64(bytesFetched))
	}
}

// ObserveRateLimitDelay records how long a fetch waited for a rate-limit token.
func ObserveRateLimitDelay(site string, d time.Duration) {
	rateLimitDelaySeconds.WithLabelValues(site).Observe(d.Seconds())
}

// ObserveRobotsFallback increments the robots.txt allow-all fallback counter.
func ObserveRobotsFallback() {
	robotsFallbackTotal.Inc()
}

// ObserveListPage counts one walked chapter-list page.
func ObserveListPage(source string) {
	listPagesTotal.WithLabelValues(source).Inc()
}

// ObserveStoryResolution counts which resolver strategy matched; "none" when no strategy did.
func ObserveStoryResolution(strategy string) {
	storyResolutionsTotal.WithLabelValues(strategy).Inc()
}

// ObserveStorySaved counts a story write.
func ObserveStorySaved(created bool) {
	storiesSavedTotal.WithLabelValues(createdLabel(created)).Inc()
}

// ObserveChapterSaved counts a chapter write.
func ObserveChapterSaved(created bool) {
	chaptersSavedTotal.WithLabelValues(createdLabel(created)).Inc()
}

// ObserveNumberConflict counts chapters removed by number conflict resolution.
func ObserveNumberConflict(removed int) {
	if removed > 0 {
		chapterNumberConflicts.Add(float64(removed))
	}
}

// ObserveBatchURL counts a finished story URL within a batch.
func ObserveBatchURL(status string) {
	batchURLsTotal.WithLabelValues(status).Inc()
}

// IncActiveBatches increments the active batches gauge.
func IncActiveBatches() {
	activeBatches.Inc()
}

// DecActiveBatches decrements the active batches gauge.
func DecActiveBatches() {
	activeBatches.Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

func createdLabel(created bool) string {
	if created {
		return "created"
	}
	return "updated"
}
