// Package memory provides in-memory persistence for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/JakeFAU/story-crawler/internal/store"
)

// DocumentStore keeps tables as insertion-ordered row slices guarded by a
// single lock. Ids are assigned per table starting at 1.
type DocumentStore struct {
	mu     sync.RWMutex
	tables map[string][]store.Row
	nextID map[string]int64
}

var _ store.Store = (*DocumentStore)(nil)

// NewDocumentStore constructs an empty DocumentStore.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		tables: make(map[string][]store.Row),
		nextID: make(map[string]int64),
	}
}

// Find returns copies of matching rows.
func (s *DocumentStore) Find(_ context.Context, table string, filter store.Filter, opts store.FindOptions) ([]store.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []store.Row
	for _, row := range s.tables[table] {
		if store.Matches(row, filter) {
			out = append(out, row.Clone())
		}
	}
	if opts.OrderBy != "" {
		sort.SliceStable(out, func(i, j int) bool {
			a, b := out[i][opts.OrderBy], out[j][opts.OrderBy]
			if opts.Desc {
				return store.Less(b, a)
			}
			return store.Less(a, b)
		})
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// Insert stores a copy of row, assigning the next id when none is set.
func (s *DocumentStore) Insert(_ context.Context, table string, row store.Row) (store.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := row.Clone()
	if id, ok := stored["id"].(int64); ok && id > 0 {
		if id > s.nextID[table] {
			s.nextID[table] = id
		}
	} else {
		s.nextID[table]++
		stored["id"] = s.nextID[table]
	}
	s.tables[table] = append(s.tables[table], stored)
	return stored.Clone(), nil
}

// Update merges set into every matching row.
func (s *DocumentStore) Update(_ context.Context, table string, filter store.Filter, set store.Row) ([]store.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []store.Row
	for _, row := range s.tables[table] {
		if !store.Matches(row, filter) {
			continue
		}
		for k, v := range set {
			if k == "id" {
				continue
			}
			row[k] = v
		}
		out = append(out, row.Clone())
	}
	return out, nil
}

// Delete removes every matching row.
func (s *DocumentStore) Delete(_ context.Context, table string, filter store.Filter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.tables[table]
	kept := rows[:0]
	for _, row := range rows {
		if !store.Matches(row, filter) {
			kept = append(kept, row)
		}
	}
	for i := len(kept); i < len(rows); i++ {
		rows[i] = nil
	}
	s.tables[table] = kept
	return nil
}

// Count returns the number of matching rows.
func (s *DocumentStore) Count(_ context.Context, table string, filter store.Filter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, row := range s.tables[table] {
		if store.Matches(row, filter) {
			n++
		}
	}
	return n, nil
}

// Ping always succeeds.
func (s *DocumentStore) Ping(context.Context) error {
	return nil
}
