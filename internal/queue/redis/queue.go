// Package redis provides a batch job queue on a Redis list so several serve
// instances can share one backlog.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/JakeFAU/story-crawler/internal/crawler"
)

const (
	// DefaultKey is the list jobs are pushed to.
	DefaultKey = "storycrawler:batch_jobs"

	defaultPollTimeout = time.Second
	dialTimeout        = 3 * time.Second
	ioTimeout          = 2 * time.Second
)

// Client is the subset of the go-redis client the queue uses.
type Client interface {
	LPush(ctx context.Context, key string, values ...any) *goredis.IntCmd
	BRPop(ctx context.Context, timeout time.Duration, keys ...string) *goredis.StringSliceCmd
	LLen(ctx context.Context, key string) *goredis.IntCmd
	Ping(ctx context.Context) *goredis.StatusCmd
	Close() error
}

// Config controls the list key and how long one blocking pop waits.
type Config struct {
	Key         string
	PollTimeout time.Duration
}

// Queue implements crawler.Queue with LPUSH/BRPOP, giving FIFO order.
type Queue struct {
	client Client
	key    string
	poll   time.Duration
	closed atomic.Bool
}

var _ crawler.Queue = (*Queue)(nil)

// Dial parses a redis:// URL, connects and pings.
func Dial(ctx context.Context, redisURL string, cfg Config) (*Queue, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.DialTimeout = dialTimeout
	opts.WriteTimeout = ioTimeout
	// BRPOP blocks for up to the poll timeout; reads must outlast it.
	opts.ReadTimeout = pollTimeout(cfg) + ioTimeout

	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return New(client, cfg), nil
}

// New wraps an existing client.
func New(client Client, cfg Config) *Queue {
	key := cfg.Key
	if key == "" {
		key = DefaultKey
	}
	return &Queue{client: client, key: key, poll: pollTimeout(cfg)}
}

func pollTimeout(cfg Config) time.Duration {
	if cfg.PollTimeout <= 0 {
		return defaultPollTimeout
	}
	return cfg.PollTimeout
}

// Enqueue pushes job onto the list.
func (q *Queue) Enqueue(ctx context.Context, job crawler.BatchJob) error {
	if q.closed.Load() {
		return crawler.ErrQueueClosed
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("lpush %s: %w", q.key, err)
	}
	return nil
}

// Dequeue blocks until a job arrives, ctx ends or the queue is closed. Each
// pop waits at most the poll timeout so Close is noticed promptly.
func (q *Queue) Dequeue(ctx context.Context) (crawler.BatchJob, error) {
	for {
		if q.closed.Load() {
			return crawler.BatchJob{}, crawler.ErrQueueClosed
		}
		if err := ctx.Err(); err != nil {
			return crawler.BatchJob{}, fmt.Errorf("dequeue canceled: %w", err)
		}
		res, err := q.client.BRPop(ctx, q.poll, q.key).Result()
		switch {
		case errors.Is(err, goredis.Nil):
			continue
		case err != nil:
			if ctx.Err() != nil {
				return crawler.BatchJob{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
			}
			return crawler.BatchJob{}, fmt.Errorf("brpop %s: %w", q.key, err)
		}
		// BRPOP replies with [key, value].
		if len(res) != 2 {
			return crawler.BatchJob{}, fmt.Errorf("brpop %s: unexpected reply of %d elements", q.key, len(res))
		}
		var job crawler.BatchJob
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			return crawler.BatchJob{}, fmt.Errorf("decode job: %w", err)
		}
		return job, nil
	}
}

// Len reports how many jobs are waiting in the list.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("llen %s: %w", q.key, err)
	}
	return n, nil
}

// Ping reports whether Redis is reachable.
func (q *Queue) Ping(ctx context.Context) error {
	if err := q.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// Close stops further Enqueue/Dequeue calls and releases the client. Jobs
// left in the list stay there for the next consumer.
func (q *Queue) Close() {
	if q.closed.Swap(true) {
		return
	}
	_ = q.client.Close()
}
