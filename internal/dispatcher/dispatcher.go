// Package dispatcher runs queued batch jobs on a pool of workers and keeps
// their status for polling.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/story-crawler/internal/batch"
	"github.com/JakeFAU/story-crawler/internal/crawler"
)

// DefaultMaxJobs bounds how many jobs the registry remembers.
const DefaultMaxJobs = 500

// Runner executes one batch job.
type Runner interface {
	RunJob(ctx context.Context, job crawler.BatchJob) (batch.Report, error)
}

// Job is the pollable state of a submitted batch.
type Job struct {
	ID          string            `json:"id"`
	Status      crawler.JobStatus `json:"status"`
	URLs        []string          `json:"urls"`
	SubmittedAt time.Time         `json:"submittedAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
	Report      *batch.Report     `json:"report,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// Config sizes the worker pool and the registry.
type Config struct {
	Workers int
	MaxJobs int
}

// Dispatcher fans queued jobs out to a pool of workers.
type Dispatcher struct {
	queue  crawler.Queue
	runner Runner
	ids    crawler.IDGenerator
	clock  crawler.Clock
	cfg    Config
	logger *zap.Logger

	mu    sync.RWMutex
	jobs  map[string]*Job
	order []string
}

// New creates a Dispatcher.
func New(queue crawler.Queue, runner Runner, ids crawler.IDGenerator, clock crawler.Clock, cfg Config, logger *zap.Logger) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.MaxJobs <= 0 {
		cfg.MaxJobs = DefaultMaxJobs
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		queue:  queue,
		runner: runner,
		ids:    ids,
		clock:  clock,
		cfg:    cfg,
		logger: logger.Named("dispatcher"),
		jobs:   make(map[string]*Job),
	}
}

// Run starts all workers and blocks until the context finishes.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < d.cfg.Workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			d.work(ctx, worker)
		}(i)
	}
	<-ctx.Done()
	wg.Wait()
}

func (d *Dispatcher) work(ctx context.Context, worker int) {
	for {
		job, err := d.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, crawler.ErrQueueClosed) {
				return
			}
			d.logger.Error("queue dequeue failed", zap.Int("worker", worker), zap.Error(err))
			continue
		}
		d.logger.Debug("dequeued job", zap.String("job_id", job.ID), zap.Int("worker", worker))
		d.process(ctx, job)
	}
}

func (d *Dispatcher) process(ctx context.Context, job crawler.BatchJob) {
	d.adopt(job)
	d.update(job.ID, func(j *Job) { j.Status = crawler.JobStatusRunning })

	report, err := d.runner.RunJob(ctx, job)
	d.update(job.ID, func(j *Job) {
		if report.RunID != "" {
			r := report
			j.Report = &r
			j.Status = report.Status
		}
		if err != nil {
			j.Error = err.Error()
			if !j.Status.Terminal() {
				j.Status = crawler.JobStatusFailed
			}
		}
	})
	if err != nil {
		d.logger.Error("batch job failed", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	d.logger.Info("batch job finished", zap.String("job_id", job.ID), zap.String("status", string(report.Status)))
}

// Submit registers a job for urls and enqueues it.
func (d *Dispatcher) Submit(ctx context.Context, urls []string) (Job, error) {
	if len(urls) == 0 {
		return Job{}, crawler.Invalidf("urls must not be empty")
	}
	id, err := d.ids.NewID()
	if err != nil {
		return Job{}, fmt.Errorf("generate job id: %w", err)
	}
	now := d.clock.Now()
	job := &Job{
		ID:          id,
		Status:      crawler.JobStatusQueued,
		URLs:        append([]string(nil), urls...),
		SubmittedAt: now,
		UpdatedAt:   now,
	}
	d.register(job)

	if err := d.queue.Enqueue(ctx, crawler.BatchJob{ID: id, URLs: job.URLs, SubmittedAt: now}); err != nil {
		d.forget(id)
		return Job{}, fmt.Errorf("queue enqueue: %w", err)
	}
	d.logger.Info("batch job queued", zap.String("job_id", id), zap.Int("urls", len(urls)))
	return d.snapshot(job), nil
}

// Get returns the current state of a job.
func (d *Dispatcher) Get(id string) (Job, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	j, ok := d.jobs[id]
	if !ok {
		return Job{}, false
	}
	return d.snapshot(j), true
}

func (d *Dispatcher) snapshot(j *Job) Job {
	out := *j
	out.URLs = append([]string(nil), j.URLs...)
	return out
}

func (d *Dispatcher) register(j *Job) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.jobs[j.ID] = j
	d.order = append(d.order, j.ID)
	d.evictLocked()
}

// evictLocked drops the oldest finished jobs once the registry is over capacity.
func (d *Dispatcher) evictLocked() {
	if len(d.order) <= d.cfg.MaxJobs {
		return
	}
	kept := d.order[:0]
	excess := len(d.order) - d.cfg.MaxJobs
	for _, id := range d.order {
		if excess > 0 && d.jobs[id].Status.Terminal() {
			delete(d.jobs, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	d.order = kept
}

// adopt registers a job submitted by another instance sharing the queue.
func (d *Dispatcher) adopt(job crawler.BatchJob) {
	d.mu.RLock()
	_, known := d.jobs[job.ID]
	d.mu.RUnlock()
	if known {
		return
	}
	d.register(&Job{
		ID:          job.ID,
		Status:      crawler.JobStatusQueued,
		URLs:        append([]string(nil), job.URLs...),
		SubmittedAt: job.SubmittedAt,
		UpdatedAt:   d.clock.Now(),
	})
}

func (d *Dispatcher) forget(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.jobs, id)
	for i, v := range d.order {
		if v == id {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
}

func (d *Dispatcher) update(id string, fn func(*Job)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	j, ok := d.jobs[id]
	if !ok {
		return
	}
	fn(j)
	j.UpdatedAt = d.clock.Now()
}
