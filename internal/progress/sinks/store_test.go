package sinks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/story-crawler/internal/catalog"
	"github.com/JakeFAU/story-crawler/internal/progress"
	"github.com/JakeFAU/story-crawler/internal/storage/memory"
	"github.com/JakeFAU/story-crawler/internal/store"
)

func TestStoreSinkPersistsEntries(t *testing.T) {
	t.Parallel()

	st := memory.NewDocumentStore()
	sink := NewStoreSink(st, nil)
	runID := uuid.New()
	now := time.Date(2025, 2, 2, 10, 0, 0, 0, time.UTC)

	batch := []progress.Entry{
		{RunID: runID, Time: now, Level: progress.LevelInfo, URL: "https://x/s", Message: "fetching"},
		{RunID: runID, Time: now.Add(time.Second), Level: progress.LevelError, Message: "failed"},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	rows, err := st.Find(context.Background(), catalog.TableCrawlLogs,
		store.Where(store.Eq(catalog.ColRunID, runID.String())),
		store.FindOptions{OrderBy: catalog.ColID})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "info", rows[0][catalog.ColLevel])
	require.Equal(t, "https://x/s", rows[0][catalog.ColURL])
	require.Equal(t, "failed", rows[1][catalog.ColMessage])
}

func TestStoreSinkHandlesErrors(t *testing.T) {
	t.Parallel()

	sink := NewStoreSink(failingStore{err: errors.New("write failed")}, nil)
	err := sink.Consume(context.Background(), []progress.Entry{
		{RunID: uuid.New(), Time: time.Now(), Level: progress.LevelInfo, Message: "x"},
	})
	require.ErrorContains(t, err, "write failed")
}

func TestNilStoreSinkIsNoop(t *testing.T) {
	t.Parallel()

	var sink *StoreSink
	require.NoError(t, sink.Consume(context.Background(), []progress.Entry{{Message: "x"}}))
}

type failingStore struct {
	store.Store
	err error
}

func (f failingStore) Insert(context.Context, string, store.Row) (store.Row, error) {
	return nil, f.err
}
