// Package pipeline exposes the five crawler operations (fetch-info,
// fetch-chapters, fetch-chapter-content, save-story, save-chapter) over the
// fetcher, source adapter, walker, resolver, reconciler and writer.
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/story-crawler/internal/crawler"
	"github.com/JakeFAU/story-crawler/internal/reconcile"
	"github.com/JakeFAU/story-crawler/internal/resolver"
	"github.com/JakeFAU/story-crawler/internal/upsert"
	"github.com/JakeFAU/story-crawler/internal/walker"
)

// Deps wires the service.
type Deps struct {
	Fetcher    crawler.Fetcher
	Source     crawler.SourceAdapter
	Walker     *walker.Walker
	Resolver   *resolver.Resolver
	Reconciler *reconcile.Reconciler
	Writer     *upsert.Writer
	Logger     *zap.Logger
}

// Service runs single crawler operations.
type Service struct {
	fetcher    crawler.Fetcher
	source     crawler.SourceAdapter
	walker     *walker.Walker
	resolver   *resolver.Resolver
	reconciler *reconcile.Reconciler
	writer     *upsert.Writer
	logger     *zap.Logger
}

// New constructs a Service.
func New(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		fetcher:    deps.Fetcher,
		source:     deps.Source,
		walker:     deps.Walker,
		resolver:   deps.Resolver,
		reconciler: deps.Reconciler,
		writer:     deps.Writer,
		logger:     logger.Named("pipeline"),
	}
}

// FetchInfo downloads a story page and extracts its metadata.
func (s *Service) FetchInfo(ctx context.Context, storyURL string) (crawler.StorySourceInfo, error) {
	storyURL = strings.TrimSpace(storyURL)
	if storyURL == "" {
		return crawler.StorySourceInfo{}, crawler.Invalidf("url is required")
	}
	html, err := s.fetcher.Fetch(ctx, storyURL)
	if err != nil {
		return crawler.StorySourceInfo{}, fmt.Errorf("fetch story info: %w", err)
	}
	info := s.source.ParseStoryInfo(html)
	info.SourceURL = storyURL
	s.logger.Info("story info fetched",
		zap.String("url", storyURL),
		zap.String("name", info.Name),
		zap.Int("categories", len(info.Categories)))
	return info, nil
}

// ChaptersRequest identifies the story whose chapter list is walked.
type ChaptersRequest struct {
	URL         string
	StoryName   string
	StoryAuthor string
}

// ChaptersDebug explains how a chapter list was reconciled.
type ChaptersDebug struct {
	MatchedStoryID *int64 `json:"matchedStoryId"`
	Strategy       string `json:"strategy,omitempty"`
	DBChapterCount int    `json:"dbChapterCount"`
	StoreError     string `json:"storeError,omitempty"`
}

// StrategyStoryID marks a chapter list reconciled against a caller-supplied story id.
const StrategyStoryID = "story-id"

// ChaptersResult is the reconciled chapter list.
type ChaptersResult struct {
	Stubs []crawler.ReconciledChapterStub
	Debug ChaptersDebug
}

// FetchChapters walks the chapter list and marks chapters already persisted
// for the matching story. Store failures degrade to an unmarked list; fetch
// failures are returned.
func (s *Service) FetchChapters(ctx context.Context, req ChaptersRequest) (ChaptersResult, error) {
	storyURL := strings.TrimSpace(req.URL)
	if storyURL == "" {
		return ChaptersResult{}, crawler.Invalidf("url is required")
	}
	if req.StoryName == "" {
		return ChaptersResult{}, crawler.Invalidf("storyName is required")
	}

	stubs, err := s.walker.Walk(ctx, storyURL)
	if err != nil {
		return ChaptersResult{}, err
	}
	result := ChaptersResult{Stubs: unmarked(stubs)}

	match, found, err := s.resolver.Resolve(ctx, resolver.Query{
		Name:      req.StoryName,
		Author:    req.StoryAuthor,
		SourceURL: storyURL,
	})
	if err != nil {
		s.degrade(&result, storyURL, err)
		return result, nil
	}
	if !found {
		s.logger.Info("no stored story for chapter list", zap.String("url", storyURL), zap.Int("stubs", len(stubs)))
		return result, nil
	}
	id := match.Story.ID
	result.Debug.MatchedStoryID = &id
	result.Debug.Strategy = match.Strategy

	reconciled, err := s.reconciler.Reconcile(ctx, id, stubs)
	if err != nil {
		s.degrade(&result, storyURL, err)
		return result, nil
	}
	result.Stubs = reconciled.Stubs
	result.Debug.DBChapterCount = reconciled.DBChapterCount
	return result, nil
}

// FetchChaptersFor walks the chapter list and reconciles it against a story
// whose id is already known. Unlike FetchChapters, store failures are
// returned so the caller can fail the story.
func (s *Service) FetchChaptersFor(ctx context.Context, storyID int64, storyURL string) (ChaptersResult, error) {
	storyURL = strings.TrimSpace(storyURL)
	if storyURL == "" {
		return ChaptersResult{}, crawler.Invalidf("url is required")
	}
	if storyID <= 0 {
		return ChaptersResult{}, crawler.Invalidf("story id is required")
	}

	stubs, err := s.walker.Walk(ctx, storyURL)
	if err != nil {
		return ChaptersResult{}, err
	}
	reconciled, err := s.reconciler.Reconcile(ctx, storyID, stubs)
	if err != nil {
		return ChaptersResult{}, fmt.Errorf("reconcile chapters of story %d: %w", storyID, err)
	}
	return ChaptersResult{
		Stubs: reconciled.Stubs,
		Debug: ChaptersDebug{
			MatchedStoryID: &storyID,
			Strategy:       StrategyStoryID,
			DBChapterCount: reconciled.DBChapterCount,
		},
	}, nil
}

func (s *Service) degrade(result *ChaptersResult, storyURL string, err error) {
	s.logger.Warn("chapter reconciliation skipped", zap.String("url", storyURL), zap.Error(err))
	result.Debug.StoreError = err.Error()
}

func unmarked(stubs []crawler.ChapterStub) []crawler.ReconciledChapterStub {
	out := make([]crawler.ReconciledChapterStub, len(stubs))
	for i, stub := range stubs {
		out[i] = crawler.ReconciledChapterStub{ChapterStub: stub}
	}
	return out
}

// FetchChapterContent downloads a chapter page and extracts its body.
func (s *Service) FetchChapterContent(ctx context.Context, chapterURL string) (crawler.ChapterContent, error) {
	chapterURL = strings.TrimSpace(chapterURL)
	if chapterURL == "" {
		return crawler.ChapterContent{}, crawler.Invalidf("url is required")
	}
	html, err := s.fetcher.Fetch(ctx, chapterURL)
	if err != nil {
		return crawler.ChapterContent{}, fmt.Errorf("fetch chapter content: %w", err)
	}
	return s.source.ParseChapterContent(html), nil
}

// SaveStory persists story metadata and its categories.
func (s *Service) SaveStory(ctx context.Context, info crawler.StorySourceInfo) (upsert.StoryResult, error) {
	return s.writer.SaveStory(ctx, info)
}

// SaveChapter persists one chapter.
func (s *Service) SaveChapter(ctx context.Context, in upsert.ChapterInput) (upsert.ChapterResult, error) {
	return s.writer.SaveChapter(ctx, in)
}
