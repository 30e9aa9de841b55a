// Package memory provides the in-process batch job queue.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/story-crawler/internal/crawler"
)

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	ch      chan crawler.BatchJob
	closeMu sync.RWMutex
	closed  bool
}

var _ crawler.Queue = (*Queue)(nil)

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		ch: make(chan crawler.BatchJob, capacity),
	}
}

// Enqueue pushes a job, blocking while the queue is full until ctx ends.
func (q *Queue) Enqueue(ctx context.Context, job crawler.BatchJob) error {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		return crawler.ErrQueueClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- job:
		return nil
	}
}

// Dequeue pops the next job, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (crawler.BatchJob, error) {
	select {
	case <-ctx.Done():
		return crawler.BatchJob{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case job, ok := <-q.ch:
		if !ok {
			return crawler.BatchJob{}, crawler.ErrQueueClosed
		}
		return job, nil
	}
}

// Len reports how many jobs are waiting.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close closes the underlying channel for shutdown. Jobs already buffered
// are still delivered.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
