// Package walker follows a story's paginated chapter list and flattens it
// into an ordered slice of chapter stubs.
package walker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/story-crawler/internal/crawler"
	"github.com/JakeFAU/story-crawler/internal/metrics"
)

// DefaultMaxPages bounds a walk when no cap is configured.
const DefaultMaxPages = 100

// Config controls pacing and the page cap.
type Config struct {
	PageDelay time.Duration
	MaxPages  int
}

// Walker walks chapter-list pages through a Fetcher and SourceAdapter.
type Walker struct {
	fetcher crawler.Fetcher
	source  crawler.SourceAdapter
	pauser  crawler.Pauser
	cfg     Config
	logger  *zap.Logger
}

// New constructs a Walker. A nil pauser sleeps on a timer.
func New(fetcher crawler.Fetcher, source crawler.SourceAdapter, pauser crawler.Pauser, cfg Config, logger *zap.Logger) *Walker {
	if pauser == nil {
		pauser = crawler.TimerPauser{}
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultMaxPages
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Walker{
		fetcher: fetcher,
		source:  source,
		pauser:  pauser,
		cfg:     cfg,
		logger:  logger.Named("walker"),
	}
}

// Walk returns every stub reachable from storyURL in page order. It stops on
// an empty page, on a page without a next link, or at the page cap. A failed
// fetch aborts the whole walk and no partial list is returned.
func (w *Walker) Walk(ctx context.Context, storyURL string) ([]crawler.ChapterStub, error) {
	var stubs []crawler.ChapterStub
	for page := 1; page <= w.cfg.MaxPages; page++ {
		if page > 1 {
			w.pauser.Pause(ctx, w.cfg.PageDelay)
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("walk %s: %w", storyURL, err)
			}
		}
		pageURL := w.source.ListPageURL(storyURL, page)
		html, err := w.fetcher.Fetch(ctx, pageURL)
		if err != nil {
			return nil, fmt.Errorf("walk %s page %d: %w", storyURL, page, err)
		}
		metrics.ObserveListPage(w.source.Name())

		parsed := w.source.ParseChapterListPage(html)
		if len(parsed.Stubs) == 0 {
			w.logger.Debug("empty chapter page", zap.String("url", pageURL), zap.Int("page", page))
			break
		}
		stubs = append(stubs, parsed.Stubs...)
		if !parsed.HasNext {
			break
		}
		if page == w.cfg.MaxPages {
			w.logger.Warn("chapter page cap reached",
				zap.String("story_url", storyURL),
				zap.Int("max_pages", w.cfg.MaxPages))
		}
	}
	w.logger.Info("chapter list walked", zap.String("story_url", storyURL), zap.Int("chapters", len(stubs)))
	return stubs, nil
}
