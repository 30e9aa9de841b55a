package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/story-crawler/internal/crawler"
	"github.com/JakeFAU/story-crawler/internal/metrics"
)

func TestFetchReturnsBody(t *testing.T) {
	t.Parallel()
	metrics.Init()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><h3 class=\"title\">Tiên Nghịch</h3>" +
			"<p id=\"ua\">" + r.Header.Get("User-Agent") + "</p>" +
			"<p id=\"lang\">" + r.Header.Get("Accept-Language") + "</p></html>"))
	}))
	defer srv.Close()

	f := New(Config{UserAgent: "story-agent", Timeout: time.Second})
	body, err := f.Fetch(context.Background(), srv.URL+"/tien-nghich/")
	require.NoError(t, err)
	require.Contains(t, body, "Tiên Nghịch")
	require.Contains(t, body, `<p id="ua">story-agent</p>`)
	require.Contains(t, body, `<p id="lang">vi-VN`)
}

func TestFetchCanRevisitSameURL(t *testing.T) {
	t.Parallel()
	metrics.Init()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := New(Config{Timeout: time.Second})
	for i := 0; i < 2; i++ {
		_, err := f.Fetch(context.Background(), srv.URL+"/same")
		require.NoError(t, err)
	}
	require.Equal(t, int32(2), calls.Load())
}

func TestFetchNon2xxIsFetchError(t *testing.T) {
	t.Parallel()
	metrics.Init()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := New(Config{Timeout: time.Second})
	_, err := f.Fetch(context.Background(), srv.URL+"/down")
	var fe *crawler.FetchError
	require.True(t, errors.As(err, &fe), "got %v", err)
	require.Equal(t, crawler.FetchErrorStatus, fe.Kind)
	require.Equal(t, http.StatusServiceUnavailable, fe.StatusCode)
}

func TestFetchTimeoutIsFetchError(t *testing.T) {
	t.Parallel()
	metrics.Init()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	f := New(Config{Timeout: 50 * time.Millisecond})
	_, err := f.Fetch(context.Background(), srv.URL+"/slow")
	var fe *crawler.FetchError
	require.True(t, errors.As(err, &fe), "got %v", err)
	require.NotEqual(t, crawler.FetchErrorStatus, fe.Kind)
}

func TestFetchHonorsCanceledContext(t *testing.T) {
	t.Parallel()
	metrics.Init()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := New(Config{Timeout: time.Second})
	_, err := f.Fetch(ctx, "http://127.0.0.1:1/never")
	var fe *crawler.FetchError
	require.True(t, errors.As(err, &fe), "got %v", err)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	state := &fetchState{}
	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, state)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	require.Contains(t, collyReq.Headers.Get("Accept"), "text/html")

	hooks.onResponse(&colly.Response{StatusCode: http.StatusOK, Body: []byte("body")})
	require.Equal(t, "body", state.body)
	require.Equal(t, http.StatusOK, state.status)

	hooks.onError(&colly.Response{StatusCode: http.StatusNotFound}, errors.New("Not Found"))
	require.Equal(t, http.StatusNotFound, state.status)
	require.EqualError(t, state.err, "Not Found")
}

func TestBuildCollectorAppliesConfig(t *testing.T) {
	t.Parallel()

	f := New(Config{UserAgent: "coverage-agent", RespectRobots: true, Timeout: time.Second})
	collector := f.buildCollector(&fetchState{})
	require.Equal(t, "coverage-agent", collector.UserAgent)
	require.False(t, collector.IgnoreRobotsTxt)
	require.True(t, collector.AllowURLRevisit)
}

func TestConcurrentFetchesShareCollectorSafely(t *testing.T) {
	t.Parallel()
	metrics.Init()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.URL.Path))
	}))
	defer srv.Close()

	f := New(Config{Timeout: time.Second})
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			path := fmt.Sprintf("/chuong-%d/", i)
			body, err := f.Fetch(context.Background(), srv.URL+path)
			if err == nil && body != path {
				err = fmt.Errorf("got %q for %s", body, path)
			}
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
