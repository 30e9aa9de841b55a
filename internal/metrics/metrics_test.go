package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://truyenfull.vision/path", "truyenfull.vision"},
		{"standard https", "https://TruyenFull.vision/path", "truyenfull.vision"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	if fetchRequestsTotal == nil || chaptersSavedTotal == nil ||
		httpRequestsTotal == nil || chapterNumberConflicts == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveFetch(t *testing.T) {
	Init()
	before := testutil.ToFloat64(fetchRequestsTotal.WithLabelValues("fetch-test.example", "ok"))
	ObserveFetch("https://fetch-test.example/a", "ok", 512, 10*time.Millisecond)
	after := testutil.ToFloat64(fetchRequestsTotal.WithLabelValues("fetch-test.example", "ok"))
	if after-before != 1 {
		t.Fatalf("expected fetch counter to grow by 1, got %f", after-before)
	}
	if got := testutil.ToFloat64(fetchBytesTotal.WithLabelValues("fetch-test.example")); got < 512 {
		t.Fatalf("expected bytes to be recorded, got %f", got)
	}
}

func TestObserveNumberConflictIgnoresZero(t *testing.T) {
	Init()
	before := testutil.ToFloat64(chapterNumberConflicts)
	ObserveNumberConflict(0)
	ObserveNumberConflict(2)
	if got := testutil.ToFloat64(chapterNumberConflicts) - before; got != 2 {
		t.Fatalf("expected conflicts to grow by 2, got %f", got)
	}
}

func TestObserveSavedLabels(t *testing.T) {
	Init()
	before := testutil.ToFloat64(chaptersSavedTotal.WithLabelValues("created"))
	ObserveChapterSaved(true)
	if got := testutil.ToFloat64(chaptersSavedTotal.WithLabelValues("created")) - before; got != 1 {
		t.Fatalf("expected created chapters to grow by 1, got %f", got)
	}
	before = testutil.ToFloat64(storiesSavedTotal.WithLabelValues("updated"))
	ObserveStorySaved(false)
	if got := testutil.ToFloat64(storiesSavedTotal.WithLabelValues("updated")) - before; got != 1 {
		t.Fatalf("expected updated stories to grow by 1, got %f", got)
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://truyenfull.vision", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
