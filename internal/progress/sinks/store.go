package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/story-crawler/internal/catalog"
	"github.com/JakeFAU/story-crawler/internal/progress"
	"github.com/JakeFAU/story-crawler/internal/store"
)

// StoreSink persists journal entries into the crawl_logs table so a run's
// log outlives the request that started it.
type StoreSink struct {
	store  store.Store
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided store.
func NewStoreSink(st store.Store, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{store: st, logger: logger}
}

// Consume inserts one row per entry and stops at the first failure.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Entry) error {
	if s == nil || s.store == nil {
		return nil
	}
	for _, e := range batch {
		if _, err := s.store.Insert(ctx, catalog.TableCrawlLogs, store.Row{
			catalog.ColRunID:     e.RunID.String(),
			catalog.ColLevel:     string(e.Level),
			catalog.ColURL:       e.URL,
			catalog.ColMessage:   e.Message,
			catalog.ColCreatedAt: e.Time,
		}); err != nil {
			return fmt.Errorf("insert crawl log: %w", err)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
