package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/story-crawler/internal/batch"
	"github.com/JakeFAU/story-crawler/internal/config"
	"github.com/JakeFAU/story-crawler/internal/crawler"
	"github.com/JakeFAU/story-crawler/internal/dispatcher"
	"github.com/JakeFAU/story-crawler/internal/metrics"
	"github.com/JakeFAU/story-crawler/internal/pipeline"
	"github.com/JakeFAU/story-crawler/internal/store"
	"github.com/JakeFAU/story-crawler/internal/upsert"
)

const (
	defaultRequestTimeout = 60 * time.Second
	readinessTimeout      = 2 * time.Second
)

// Operations are the single crawler actions served by POST /api/crawler.
type Operations interface {
	FetchInfo(ctx context.Context, storyURL string) (crawler.StorySourceInfo, error)
	FetchChapters(ctx context.Context, req pipeline.ChaptersRequest) (pipeline.ChaptersResult, error)
	FetchChapterContent(ctx context.Context, chapterURL string) (crawler.ChapterContent, error)
	SaveStory(ctx context.Context, info crawler.StorySourceInfo) (upsert.StoryResult, error)
	SaveChapter(ctx context.Context, in upsert.ChapterInput) (upsert.ChapterResult, error)
}

var _ Operations = (*pipeline.Service)(nil)

// BatchRunner runs a batch on the request goroutine.
type BatchRunner interface {
	Run(ctx context.Context, urls []string) (batch.Report, error)
}

// JobQueue accepts batches for background execution.
type JobQueue interface {
	Submit(ctx context.Context, urls []string) (dispatcher.Job, error)
	Get(id string) (dispatcher.Job, bool)
}

// Server wires HTTP handlers to the crawler operations.
type Server struct {
	router chi.Router
	ops    Operations
	runner BatchRunner
	jobs   JobQueue
	ready  store.Pinger
	cfg    config.Config
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes. jobs and ready
// may be nil; the jobs routes then answer 503 and readiness always passes.
func NewServer(
	ops Operations,
	runner BatchRunner,
	jobs JobQueue,
	ready store.Pinger,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		ops:    ops,
		runner: runner,
		jobs:   jobs,
		ready:  ready,
		cfg:    cfg,
		logger: logger.Named("api"),
	}
	timeout := cfg.Server.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/crawler", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.With(timeoutMiddleware(timeout)).Post("/", s.handleAction)
		// Batches run for as long as their chapter lists take.
		r.Post("/batch", s.runBatch)
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", s.submitJob)
			r.Get("/{job_id}", s.getJob)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()
		if err := s.ready.Ping(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type batchRequest struct {
	URLs []string `json:"urls"`
}

func (s *Server) runBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.URLs) == 0 {
		writeFailure(w, http.StatusBadRequest, "urls required")
		return
	}
	report, err := s.runner.Run(r.Context(), req.URLs)
	if err != nil && report.RunID == "" {
		s.writeOpError(w, r, "batch", err)
		return
	}
	env := envelope{Success: err == nil, Data: report}
	if err != nil {
		env.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, env)
}

func (s *Server) submitJob(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		writeFailure(w, http.StatusServiceUnavailable, "job queue disabled")
		return
	}
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.URLs) == 0 {
		writeFailure(w, http.StatusBadRequest, "urls required")
		return
	}
	job, err := s.jobs.Submit(r.Context(), req.URLs)
	if err != nil {
		status := statusFor(err)
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusRequestTimeout
		}
		writeFailure(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, envelope{Success: true, Data: job})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		writeFailure(w, http.StatusServiceUnavailable, "job queue disabled")
		return
	}
	job, ok := s.jobs.Get(chi.URLParam(r, "job_id"))
	if !ok {
		writeFailure(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: job})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestID returns the id assigned to the request carried by ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("request_id", RequestID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered",
					zap.String("request_id", RequestID(r.Context())),
					zap.Any("error", rec),
					zap.Stack("stack"))
				writeFailure(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, `{"success":false,"error":"request timed out"}`)
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeFailure(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
