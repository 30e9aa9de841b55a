// Package batch runs the end-to-end crawl of a list of story URLs: story
// info, story upsert, chapter list reconciliation and every missing chapter.
package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/story-crawler/internal/crawler"
	"github.com/JakeFAU/story-crawler/internal/metrics"
	"github.com/JakeFAU/story-crawler/internal/pipeline"
	"github.com/JakeFAU/story-crawler/internal/progress"
	"github.com/JakeFAU/story-crawler/internal/resolver"
	"github.com/JakeFAU/story-crawler/internal/upsert"
)

// Operations is the subset of pipeline.Service a batch drives.
type Operations interface {
	FetchInfo(ctx context.Context, storyURL string) (crawler.StorySourceInfo, error)
	SaveStory(ctx context.Context, info crawler.StorySourceInfo) (upsert.StoryResult, error)
	FetchChaptersFor(ctx context.Context, storyID int64, storyURL string) (pipeline.ChaptersResult, error)
	FetchChapterContent(ctx context.Context, chapterURL string) (crawler.ChapterContent, error)
	SaveChapter(ctx context.Context, in upsert.ChapterInput) (upsert.ChapterResult, error)
}

var _ Operations = (*pipeline.Service)(nil)

// Config controls batch pacing.
type Config struct {
	ChapterDelay time.Duration
}

// Orchestrator runs batches sequentially on the calling goroutine.
type Orchestrator struct {
	ops    Operations
	pauser crawler.Pauser
	clock  crawler.Clock
	ids    crawler.IDGenerator
	sinks  []progress.Sink
	cfg    Config
	logger *zap.Logger
}

// New constructs an Orchestrator. Entries of every run are forwarded to sinks.
func New(
	ops Operations,
	pauser crawler.Pauser,
	clock crawler.Clock,
	ids crawler.IDGenerator,
	sinks []progress.Sink,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if pauser == nil {
		pauser = crawler.TimerPauser{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		ops:    ops,
		pauser: pauser,
		clock:  clock,
		ids:    ids,
		sinks:  sinks,
		cfg:    cfg,
		logger: logger.Named("batch"),
	}
}

// Run crawls urls under a fresh run id.
func (o *Orchestrator) Run(ctx context.Context, urls []string) (Report, error) {
	id, err := o.ids.NewID()
	if err != nil {
		return Report{}, fmt.Errorf("generate run id: %w", err)
	}
	return o.RunJob(ctx, crawler.BatchJob{ID: id, URLs: urls})
}

// RunJob crawls the URLs of job. Failures of one story or one chapter are
// recorded in the report and do not stop the batch; a panic does, and is
// returned as an error alongside the partial report.
func (o *Orchestrator) RunJob(ctx context.Context, job crawler.BatchJob) (report Report, err error) {
	runID, err := uuid.Parse(job.ID)
	if err != nil {
		return Report{}, crawler.Invalidf("run id %q: %v", job.ID, err)
	}
	urls := cleanURLs(job.URLs)
	if len(urls) == 0 {
		return Report{}, crawler.Invalidf("at least one url is required")
	}

	journal := progress.NewJournal(progress.Config{
		RunID:       runID,
		Clock:       o.clock,
		BaseContext: context.WithoutCancel(ctx),
		Logger:      o.logger,
	}, o.sinks...)
	report = Report{RunID: job.ID, StartedAt: o.clock.Now(), Status: crawler.JobStatusRunning}

	metrics.IncActiveBatches()
	defer metrics.DecActiveBatches()
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("batch panicked", zap.String("run_id", job.ID), zap.Any("panic", r), zap.Stack("stack"))
			journal.Error("", "Batch aborted: %v", r)
			err = fmt.Errorf("batch %s panicked: %v", job.ID, r)
			report.Status = crawler.JobStatusFailed
		}
		report.FinishedAt = o.clock.Now()
		report.Entries = journal.Entries()
	}()

	journal.Info("", "Batch started with %d story url(s)", len(urls))
	canceled := false
	for _, storyURL := range urls {
		if ctx.Err() != nil {
			canceled = true
			break
		}
		story := o.processStory(ctx, journal, storyURL)
		metrics.ObserveBatchURL(string(story.Status))
		report.Counters.add(story.Counters)
		report.Stories = append(report.Stories, story)
	}
	if ctx.Err() != nil {
		canceled = true
	}

	report.Status = deriveStatus(report.Stories, canceled)
	if canceled {
		journal.Error("", "Batch canceled after %d of %d story url(s)", len(report.Stories), len(urls))
		return report, fmt.Errorf("batch %s canceled: %w", job.ID, ctx.Err())
	}
	journal.Info("", "Batch finished: %s (%d saved, %d existing, %d failed)",
		report.Status, report.Counters.Saved, report.Counters.Existing, report.Counters.Failed)
	return report, nil
}

func (o *Orchestrator) processStory(ctx context.Context, j *progress.Journal, storyURL string) StoryReport {
	rep := StoryReport{URL: storyURL, Status: StoryFailed}
	fail := func(step string, err error) StoryReport {
		rep.Error = fmt.Sprintf("%s: %v", step, err)
		j.Error(storyURL, "%s failed: %v", step, err)
		o.logger.Warn("story failed", zap.String("url", storyURL), zap.String("step", step), zap.Error(err))
		return rep
	}

	j.Info(storyURL, "Fetching story info")
	info, err := o.ops.FetchInfo(ctx, storyURL)
	if err != nil {
		return fail("fetch-info", err)
	}
	rep.Name = info.Name
	j.Success(storyURL, "Found %q by %s", info.Name, resolver.Query{Author: info.Author}.NormalizedAuthor())

	saved, err := o.ops.SaveStory(ctx, info)
	if err != nil {
		return fail("save-story", err)
	}
	rep.StoryID, rep.Slug = saved.ID, saved.Slug
	verb := "Updated"
	if saved.Created {
		verb = "Created"
	}
	j.Success(storyURL, "%s story #%d (%s)", verb, saved.ID, saved.Slug)

	j.Info(storyURL, "Walking chapter list")
	list, err := o.ops.FetchChaptersFor(ctx, saved.ID, storyURL)
	if err != nil {
		return fail("fetch-chapters", err)
	}

	rep.Chapters = make([]ChapterReport, len(list.Stubs))
	missing := 0
	for i, stub := range list.Stubs {
		rep.Chapters[i] = ChapterReport{Title: stub.Title, URL: stub.URL, Number: stub.Number, Status: ChapterPending}
		if stub.Exists {
			rep.Chapters[i].Status = ChapterExists
		} else {
			missing++
		}
	}
	j.Info(storyURL, "Found %d chapter(s), %d to download", len(list.Stubs), missing)

	fetched := 0
	for i := range rep.Chapters {
		ch := &rep.Chapters[i]
		if ch.Status != ChapterPending {
			continue
		}
		if fetched > 0 {
			o.pauser.Pause(ctx, o.cfg.ChapterDelay)
		}
		if ctx.Err() != nil {
			break
		}
		fetched++
		o.processChapter(ctx, j, rep.StoryID, ch)
	}

	rep.Counters = tally(rep.Chapters)
	rep.Status = StoryDone
	j.Success(storyURL, "Story finished: %d saved, %d existing, %d failed",
		rep.Counters.Saved, rep.Counters.Existing, rep.Counters.Failed)
	return rep
}

func (o *Orchestrator) processChapter(ctx context.Context, j *progress.Journal, storyID int64, ch *ChapterReport) {
	content, err := o.ops.FetchChapterContent(ctx, ch.URL)
	if err != nil {
		o.chapterFailed(j, ch, "fetch-chapter-content", err)
		return
	}
	title := ch.Title
	if title == "" {
		title = content.Title
	}
	res, err := o.ops.SaveChapter(ctx, upsert.ChapterInput{
		StoryID:   storyID,
		Title:     title,
		Content:   content.Content,
		SourceURL: ch.URL,
		Number:    ch.Number,
	})
	if err != nil {
		o.chapterFailed(j, ch, "save-chapter", err)
		return
	}
	ch.Status = ChapterSuccess
	ch.Note = res.Note
	j.Success(ch.URL, "Saved chapter %d: %s", res.Chapter.Number, res.Chapter.Title)
}

func (o *Orchestrator) chapterFailed(j *progress.Journal, ch *ChapterReport, step string, err error) {
	ch.Status = ChapterError
	ch.Error = fmt.Sprintf("%s: %v", step, err)
	j.Error(ch.URL, "%s failed: %v", step, err)
	var fe *crawler.FetchError
	if errors.As(err, &fe) {
		o.logger.Warn("chapter fetch failed", zap.String("url", ch.URL), zap.String("kind", string(fe.Kind)))
	}
}

func tally(chapters []ChapterReport) Counters {
	var c Counters
	for _, ch := range chapters {
		switch ch.Status {
		case ChapterSuccess:
			c.Saved++
		case ChapterExists:
			c.Existing++
		case ChapterError:
			c.Failed++
		default:
			c.Pending++
		}
	}
	return c
}

// cleanURLs trims entries, drops blanks and keeps the first of duplicates.
func cleanURLs(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, raw := range urls {
		u := strings.TrimSpace(raw)
		if u == "" {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
