package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/story-crawler/internal/crawler"
)

// fakeClient keeps one list per key in memory.
type fakeClient struct {
	mu      sync.Mutex
	lists   map[string][]string
	pushErr error
	popErr  error
	pops    int
	closed  bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{lists: make(map[string][]string)}
}

func (c *fakeClient) LPush(_ context.Context, key string, values ...any) *goredis.IntCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pushErr != nil {
		return goredis.NewIntResult(0, c.pushErr)
	}
	for _, v := range values {
		c.lists[key] = append([]string{string(v.([]byte))}, c.lists[key]...)
	}
	return goredis.NewIntResult(int64(len(c.lists[key])), nil)
}

func (c *fakeClient) BRPop(ctx context.Context, timeout time.Duration, keys ...string) *goredis.StringSliceCmd {
	deadline := time.Now().Add(timeout)
	for {
		c.mu.Lock()
		c.pops++
		if c.popErr != nil {
			c.mu.Unlock()
			return goredis.NewStringSliceResult(nil, c.popErr)
		}
		key := keys[0]
		if list := c.lists[key]; len(list) > 0 {
			last := list[len(list)-1]
			c.lists[key] = list[:len(list)-1]
			c.mu.Unlock()
			return goredis.NewStringSliceResult([]string{key, last}, nil)
		}
		c.mu.Unlock()
		if ctx.Err() != nil {
			return goredis.NewStringSliceResult(nil, ctx.Err())
		}
		if time.Now().After(deadline) {
			return goredis.NewStringSliceResult(nil, goredis.Nil)
		}
		time.Sleep(time.Millisecond)
	}
}

func (c *fakeClient) LLen(_ context.Context, key string) *goredis.IntCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	return goredis.NewIntResult(int64(len(c.lists[key])), nil)
}

func (c *fakeClient) Ping(context.Context) *goredis.StatusCmd {
	return goredis.NewStatusResult("PONG", nil)
}

func (c *fakeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func TestQueueIsFIFO(t *testing.T) {
	t.Parallel()

	q := New(newFakeClient(), Config{PollTimeout: 10 * time.Millisecond})
	ctx := context.Background()
	submitted := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	require.NoError(t, q.Enqueue(ctx, crawler.BatchJob{ID: "a", URLs: []string{"https://x/a/"}, SubmittedAt: submitted}))
	require.NoError(t, q.Enqueue(ctx, crawler.BatchJob{ID: "b", URLs: []string{"https://x/b/"}}))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	first, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, "a", first.ID)
	require.Equal(t, []string{"https://x/a/"}, first.URLs)
	require.True(t, submitted.Equal(first.SubmittedAt))

	second, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, "b", second.ID)
}

func TestDequeueKeepsPollingOnTimeout(t *testing.T) {
	t.Parallel()

	client := newFakeClient()
	q := New(client, Config{PollTimeout: 5 * time.Millisecond})

	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = q.Enqueue(context.Background(), crawler.BatchJob{ID: "late"})
	}()

	job, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, "late", job.ID)

	client.mu.Lock()
	defer client.mu.Unlock()
	require.Greater(t, client.pops, 1)
}

func TestDequeueRespectsContext(t *testing.T) {
	t.Parallel()

	q := New(newFakeClient(), Config{PollTimeout: 5 * time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClosedQueueRejectsWork(t *testing.T) {
	t.Parallel()

	client := newFakeClient()
	q := New(client, Config{})
	q.Close()
	q.Close()

	require.ErrorIs(t, q.Enqueue(context.Background(), crawler.BatchJob{ID: "x"}), crawler.ErrQueueClosed)
	_, err := q.Dequeue(context.Background())
	require.ErrorIs(t, err, crawler.ErrQueueClosed)
	require.True(t, client.closed)
}

func TestQueueSurfacesClientErrors(t *testing.T) {
	t.Parallel()

	client := newFakeClient()
	client.pushErr = errors.New("READONLY")
	client.popErr = errors.New("connection reset")
	q := New(client, Config{Key: "jobs"})

	require.ErrorContains(t, q.Enqueue(context.Background(), crawler.BatchJob{ID: "x"}), "lpush jobs")
	_, err := q.Dequeue(context.Background())
	require.ErrorContains(t, err, "connection reset")
}

func TestDequeueRejectsMalformedPayload(t *testing.T) {
	t.Parallel()

	client := newFakeClient()
	client.lists[DefaultKey] = []string{"{not json"}
	q := New(client, Config{})

	_, err := q.Dequeue(context.Background())
	require.ErrorContains(t, err, "decode job")
}

func TestPing(t *testing.T) {
	t.Parallel()

	require.NoError(t, New(newFakeClient(), Config{}).Ping(context.Background()))
}
