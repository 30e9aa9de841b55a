// Package app builds the long-lived services of the crawler from configuration
// and owns their shutdown.
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/story-crawler/internal/api"
	"github.com/JakeFAU/story-crawler/internal/batch"
	"github.com/JakeFAU/story-crawler/internal/catalog"
	"github.com/JakeFAU/story-crawler/internal/clock/system"
	"github.com/JakeFAU/story-crawler/internal/config"
	"github.com/JakeFAU/story-crawler/internal/crawler"
	"github.com/JakeFAU/story-crawler/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/story-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/story-crawler/internal/id/uuid"
	"github.com/JakeFAU/story-crawler/internal/metrics"
	"github.com/JakeFAU/story-crawler/internal/pipeline"
	"github.com/JakeFAU/story-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/story-crawler/internal/progress"
	"github.com/JakeFAU/story-crawler/internal/progress/sinks"
	queueMemory "github.com/JakeFAU/story-crawler/internal/queue/memory"
	queueRedis "github.com/JakeFAU/story-crawler/internal/queue/redis"
	"github.com/JakeFAU/story-crawler/internal/reconcile"
	"github.com/JakeFAU/story-crawler/internal/resolver"
	"github.com/JakeFAU/story-crawler/internal/source/truyenfull"
	memoryStorage "github.com/JakeFAU/story-crawler/internal/storage/memory"
	mongoStorage "github.com/JakeFAU/story-crawler/internal/storage/mongo"
	postgresStorage "github.com/JakeFAU/story-crawler/internal/storage/postgres"
	"github.com/JakeFAU/story-crawler/internal/store"
	"github.com/JakeFAU/story-crawler/internal/upsert"
	"github.com/JakeFAU/story-crawler/internal/walker"
)

// Options carries overrides used mostly by tests.
type Options struct {
	// Store replaces the configured backend when set.
	Store store.Store
	// Fetcher replaces the colly fetcher when set.
	Fetcher crawler.Fetcher
	// Pauser replaces the timer pauser used between pages and chapters.
	Pauser crawler.Pauser
	// Registerer receives the journal collectors. Defaults to the global registry.
	Registerer prometheus.Registerer
}

// JobQueue is the batch job queue plus its shutdown hook.
type JobQueue interface {
	crawler.Queue
	Close()
}

// App holds the wired services.
type App struct {
	Config       config.Config
	Logger       *zap.Logger
	Store        store.Store
	Service      *pipeline.Service
	Orchestrator *batch.Orchestrator
	Queue        JobQueue
	Dispatcher   *dispatcher.Dispatcher
	Server       *api.Server

	sinks   []progress.Sink
	closers []func()
}

// New wires every service. It fails fast when the store cannot be reached.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()

	a := &App{Config: cfg, Logger: logger}

	st := opts.Store
	if st == nil {
		var err error
		st, err = a.openStore(ctx)
		if err != nil {
			return nil, err
		}
	}
	a.Store = st

	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = collyfetcher.New(collyfetcher.Config{
			UserAgent:     cfg.Crawler.UserAgent,
			RespectRobots: cfg.Crawler.RespectRobots,
			Timeout:       cfg.FetchTimeout(),
			Logger:        logger.Named("fetcher"),
		})
	}
	fetcher = ratelimit.Wrap(fetcher, ratelimit.Config{
		RPS:   cfg.Crawler.MaxRPS,
		Burst: cfg.Crawler.RateBurst,
	})
	pauser := opts.Pauser
	if pauser == nil {
		pauser = crawler.TimerPauser{}
	}

	clock := system.New()
	ids := uuid.New()
	source := truyenfull.New(cfg.Crawler.SourceBaseURL)
	res := resolver.New(st, logger)

	a.Service = pipeline.New(pipeline.Deps{
		Fetcher: fetcher,
		Source:  source,
		Walker: walker.New(fetcher, source, pauser, walker.Config{
			PageDelay: cfg.Crawler.PageDelay,
			MaxPages:  cfg.Crawler.MaxListPages,
		}, logger),
		Resolver:   res,
		Reconciler: reconcile.New(st, logger),
		Writer: upsert.New(st, res, clock, upsert.Config{
			RequireChapterNumber: cfg.Crawler.RequireChapterNumber,
		}, logger),
		Logger: logger,
	})

	promSink, err := sinks.NewPrometheusSink(opts.Registerer)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("journal metrics: %w", err)
	}
	a.sinks = []progress.Sink{
		sinks.NewLogSink(logger),
		promSink,
		sinks.NewStoreSink(st, logger),
	}

	a.Orchestrator = batch.New(a.Service, pauser, clock, ids, a.sinks, batch.Config{
		ChapterDelay: cfg.Crawler.ChapterDelay,
	}, logger)

	a.Queue, err = a.openQueue(ctx)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.Dispatcher = dispatcher.New(a.Queue, a.Orchestrator, ids, clock, dispatcher.Config{
		Workers: cfg.Batch.Workers,
		MaxJobs: cfg.Batch.MaxJobs,
	}, logger)

	var ready store.Pinger
	if p, ok := st.(store.Pinger); ok {
		ready = p
	}
	a.Server = api.NewServer(a.Service, a.Orchestrator, a.Dispatcher, ready, cfg, logger)

	logger.Info("application services initialized",
		zap.String("store", cfg.Store.Driver),
		zap.String("source", cfg.Crawler.SourceBaseURL),
		zap.Int("batch_workers", cfg.Batch.Workers))
	return a, nil
}

func (a *App) openStore(ctx context.Context) (store.Store, error) {
	cfg := a.Config.Store
	switch cfg.Driver {
	case config.DriverMemory, "":
		a.Logger.Warn("using in-memory store; data is lost on exit")
		return memoryStorage.NewDocumentStore(), nil
	case config.DriverPostgres:
		if cfg.Migrate {
			if err := postgresStorage.Migrate(cfg.DSN, a.Logger); err != nil {
				return nil, fmt.Errorf("migrate postgres: %w", err)
			}
		}
		pg, err := postgresStorage.NewDocumentStore(ctx, postgresStorage.Config{
			DSN:      cfg.DSN,
			MaxConns: cfg.MaxConns,
		})
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		a.closers = append(a.closers, pg.Close)
		return pg, nil
	case config.DriverMongo:
		mg, err := mongoStorage.NewDocumentStore(ctx, mongoStorage.Config{
			URI:      cfg.DSN,
			Database: cfg.Database,
			Indexes:  MongoIndexes(),
		})
		if err != nil {
			return nil, fmt.Errorf("open mongo store: %w", err)
		}
		a.closers = append(a.closers, mg.Close)
		return mg, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func (a *App) openQueue(ctx context.Context) (JobQueue, error) {
	cfg := a.Config.Batch
	if cfg.QueueDriver != config.QueueRedis {
		return queueMemory.NewQueue(cfg.QueueSize), nil
	}
	q, err := queueRedis.Dial(ctx, cfg.RedisURL, queueRedis.Config{Key: cfg.QueueKey})
	if err != nil {
		return nil, fmt.Errorf("open redis queue: %w", err)
	}
	a.Logger.Info("batch jobs queued in redis", zap.String("key", cfg.QueueKey))
	return q, nil
}

// MongoIndexes mirrors the lookups the resolver, reconciler and writer issue.
func MongoIndexes() map[string][]mongoStorage.Index {
	return map[string][]mongoStorage.Index{
		catalog.TableStories: {
			{Keys: []string{catalog.ColSlug}},
			{Keys: []string{catalog.ColName}},
		},
		catalog.TableChapters: {
			{Keys: []string{catalog.ColStoryID, catalog.ColNumber}},
			{Keys: []string{catalog.ColStoryID, catalog.ColSourceURL}},
		},
		catalog.TableCategories: {
			{Keys: []string{catalog.ColSlug}, Unique: true},
		},
		catalog.TableStoryCategories: {
			{Keys: []string{catalog.ColStoryID, catalog.ColCategoryID}, Unique: true},
		},
		catalog.TableCrawlLogs: {
			{Keys: []string{catalog.ColRunID, catalog.ColID}},
		},
	}
}

// Close stops the queue, flushes the journal sinks and releases the store.
// It is safe to call more than once.
func (a *App) Close(ctx context.Context) {
	if a.Queue != nil {
		a.Queue.Close()
	}
	if err := progress.CloseSinks(ctx, a.sinks...); err != nil {
		a.Logger.Warn("close journal sinks", zap.Error(err))
	}
	a.sinks = nil
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
