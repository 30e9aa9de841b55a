package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JakeFAU/story-crawler/internal/crawler"
)

func TestQueueEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	result := make(chan crawler.BatchJob, 1)
	errCh := make(chan error, 1)

	go func() {
		job, err := q.Dequeue(context.Background())
		if err != nil {
			errCh <- err
			return
		}
		result <- job
	}()

	job := crawler.BatchJob{ID: "job-1", URLs: []string{"https://truyenfull.vision/tien-nghich/"}}
	if err := q.Enqueue(context.Background(), job); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	select {
	case err := <-errCh:
		t.Fatalf("Dequeue() error = %v", err)
	case got := <-result:
		if got.ID != "job-1" || len(got.URLs) != 1 {
			t.Fatalf("unexpected job %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return job")
	}
}

func TestQueueCancelationErrors(t *testing.T) {
	t.Parallel()

	qDequeue := NewQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := qDequeue.Dequeue(ctx); err == nil ||
		err.Error() != "dequeue canceled: context canceled" {
		t.Fatalf("expected dequeue cancel error, got %v", err)
	}

	qEnqueue := NewQueue(1)
	if err := qEnqueue.Enqueue(context.Background(), crawler.BatchJob{ID: "primed"}); err != nil {
		t.Fatalf("failed to prime enqueue queue: %v", err)
	}
	if qEnqueue.Len() != 1 {
		t.Fatalf("expected one buffered job, got %d", qEnqueue.Len())
	}
	ctx, cancel = context.WithCancel(context.Background())
	cancel()
	if err := qEnqueue.Enqueue(ctx, crawler.BatchJob{}); err == nil ||
		err.Error() != "enqueue canceled: context canceled" {
		t.Fatalf("expected enqueue cancel error, got %v", err)
	}
}

func TestQueueClose(t *testing.T) {
	t.Parallel()

	q := NewQueue(2)
	if err := q.Enqueue(context.Background(), crawler.BatchJob{ID: "buffered"}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	q.Close()

	if err := q.Enqueue(context.Background(), crawler.BatchJob{ID: "late"}); !errors.Is(err, crawler.ErrQueueClosed) {
		t.Fatalf("expected closed error on enqueue, got %v", err)
	}
	if job, err := q.Dequeue(context.Background()); err != nil || job.ID != "buffered" {
		t.Fatalf("expected buffered job after close, got %+v, %v", job, err)
	}
	if _, err := q.Dequeue(context.Background()); !errors.Is(err, crawler.ErrQueueClosed) {
		t.Fatalf("expected queue closed error, got %v", err)
	}
	// Closing twice should be safe.
	q.Close()
}
