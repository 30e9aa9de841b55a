package progress

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/story-crawler/internal/crawler"
)

const defaultSinkTimeout = 5 * time.Second

// Config wires a Journal.
type Config struct {
	RunID uuid.UUID
	Clock crawler.Clock
	// BaseContext is the parent of every sink call. Callers usually pass a
	// context detached from request cancellation.
	BaseContext context.Context
	SinkTimeout time.Duration
	Logger      *zap.Logger
}

// Journal keeps the ordered entries of one batch run and forwards each entry
// to its sinks as it is emitted. It is safe for concurrent use.
type Journal struct {
	cfg    Config
	sinks  []Sink
	logger *zap.Logger

	mu      sync.Mutex
	entries []Entry
}

var _ Emitter = (*Journal)(nil)

// NewJournal constructs a Journal for one run.
func NewJournal(cfg Config, sinks ...Sink) *Journal {
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Journal{
		cfg:    cfg,
		sinks:  append([]Sink(nil), sinks...),
		logger: logger,
	}
}

// RunID returns the run the journal belongs to.
func (j *Journal) RunID() uuid.UUID {
	return j.cfg.RunID
}

// Emit stamps e with the run id and time when unset, records it and fans it
// out. Invalid entries are dropped.
func (j *Journal) Emit(e Entry) {
	if j == nil {
		return
	}
	if e.RunID == uuid.Nil {
		e.RunID = j.cfg.RunID
	}
	if e.Time.IsZero() {
		e.Time = j.now()
	}
	if err := e.Validate(); err != nil {
		j.logger.Debug("discarding invalid journal entry", zap.Error(err))
		return
	}

	j.mu.Lock()
	j.entries = append(j.entries, e)
	j.mu.Unlock()

	batch := []Entry{e}
	for _, sink := range j.sinks {
		if sink == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(j.cfg.BaseContext, j.cfg.SinkTimeout)
		if err := sink.Consume(ctx, batch); err != nil {
			j.logger.Warn("journal sink consume failed", zap.Error(err))
		}
		cancel()
	}
}

// Info emits an info entry.
func (j *Journal) Info(url, format string, args ...any) {
	j.emitf(LevelInfo, url, format, args...)
}

// Success emits a success entry.
func (j *Journal) Success(url, format string, args ...any) {
	j.emitf(LevelSuccess, url, format, args...)
}

// Error emits an error entry.
func (j *Journal) Error(url, format string, args ...any) {
	j.emitf(LevelError, url, format, args...)
}

func (j *Journal) emitf(level Level, url, format string, args ...any) {
	j.Emit(Entry{Level: level, URL: url, Message: fmt.Sprintf(format, args...)})
}

// Entries returns a copy of everything emitted so far.
func (j *Journal) Entries() []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]Entry(nil), j.entries...)
}

func (j *Journal) now() time.Time {
	if j.cfg.Clock != nil {
		return j.cfg.Clock.Now()
	}
	return time.Now().UTC()
}

// CloseSinks closes every sink, returning the first error.
func CloseSinks(ctx context.Context, sinks ...Sink) error {
	var first error
	for _, sink := range sinks {
		if sink == nil {
			continue
		}
		if err := sink.Close(ctx); err != nil && first == nil {
			first = fmt.Errorf("close progress sink: %w", err)
		}
	}
	return first
}
