// Package upsert writes stories, categories and chapters into the document
// store idempotently.
package upsert

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/story-crawler/internal/catalog"
	"github.com/JakeFAU/story-crawler/internal/crawler"
	"github.com/JakeFAU/story-crawler/internal/metrics"
	"github.com/JakeFAU/story-crawler/internal/resolver"
	"github.com/JakeFAU/story-crawler/internal/store"
	"github.com/JakeFAU/story-crawler/internal/textnorm"
)

// DefaultStatus is stored when the source shows no status.
const DefaultStatus = "Đang ra"

// Notes attached to chapter results.
const (
	NoteSaved   = "saved"
	NoteCreated = "created"
)

// Config toggles writer policy.
type Config struct {
	// RequireChapterNumber rejects chapters without an explicit number
	// instead of appending them after the current maximum.
	RequireChapterNumber bool
}

// StoryResult is returned by SaveStory.
type StoryResult struct {
	ID      int64  `json:"id"`
	Slug    string `json:"slug"`
	Created bool   `json:"-"`
}

// ChapterInput is a chapter to persist.
type ChapterInput struct {
	StoryID   int64
	Title     string
	Content   string
	SourceURL string
	Number    *int
}

// ChapterResult is returned by SaveChapter.
type ChapterResult struct {
	Chapter          crawler.ChapterRecord
	Note             string
	Created          bool
	ConflictsRemoved int
}

// Writer performs the upserts.
type Writer struct {
	store    store.Store
	resolver *resolver.Resolver
	clock    crawler.Clock
	cfg      Config
	logger   *zap.Logger
}

// New constructs a Writer.
func New(st store.Store, res *resolver.Resolver, clock crawler.Clock, cfg Config, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{
		store:    st,
		resolver: res,
		clock:    clock,
		cfg:      cfg,
		logger:   logger.Named("upsert"),
	}
}

// SaveStory creates or updates the story described by info and links its
// categories. Views and rating of an existing story are never touched.
func (w *Writer) SaveStory(ctx context.Context, info crawler.StorySourceInfo) (StoryResult, error) {
	q := resolver.Query{Name: info.Name, Author: info.Author, SourceURL: info.SourceURL}
	name := q.NormalizedName()
	if name == "" {
		return StoryResult{}, crawler.Invalidf("story name is required")
	}
	slug := q.Slug()
	status := textnorm.NFC(info.Status)
	if status == "" {
		status = DefaultStatus
	}
	now := w.clock.Now()
	fields := store.Row{
		catalog.ColName:        name,
		catalog.ColSlug:        slug,
		catalog.ColAuthor:      q.NormalizedAuthor(),
		catalog.ColDescription: textnorm.NFC(info.Description),
		catalog.ColImage:       info.Image,
		catalog.ColStatus:      status,
		catalog.ColIsNew:       true,
		catalog.ColUpdatedAt:   now,
	}

	match, found, err := w.resolver.Resolve(ctx, q)
	if err != nil {
		return StoryResult{}, fmt.Errorf("resolve story: %w", err)
	}

	var storyID int64
	if found {
		storyID = match.Story.ID
		if _, err := w.store.Update(ctx, catalog.TableStories, byID(storyID), fields); err != nil {
			return StoryResult{}, &crawler.StoreError{Op: "update", Table: catalog.TableStories, Err: err}
		}
	} else {
		fields[catalog.ColViews] = int64(0)
		fields[catalog.ColRating] = float64(0)
		fields[catalog.ColIsHot] = false
		fields[catalog.ColChaptersCount] = int64(0)
		fields[catalog.ColLatestChapter] = ""
		fields[catalog.ColCreatedAt] = now
		row, err := w.store.Insert(ctx, catalog.TableStories, fields)
		if err != nil {
			return StoryResult{}, &crawler.StoreError{Op: "insert", Table: catalog.TableStories, Err: err}
		}
		storyID = catalog.ID(row)
	}

	if err := w.linkCategories(ctx, storyID, info.Categories); err != nil {
		return StoryResult{}, err
	}

	metrics.ObserveStorySaved(!found)
	w.logger.Info("story saved",
		zap.Int64("story_id", storyID),
		zap.String("slug", slug),
		zap.Bool("created", !found),
		zap.String("strategy", match.Strategy))
	return StoryResult{ID: storyID, Slug: slug, Created: !found}, nil
}

// linkCategories finds or creates each category by slug or case-insensitive
// name and links it to the story once.
func (w *Writer) linkCategories(ctx context.Context, storyID int64, labels []string) error {
	seen := make(map[string]struct{}, len(labels))
	for _, label := range labels {
		name := textnorm.NFC(label)
		slug := textnorm.Slug(name)
		if name == "" || slug == "" {
			continue
		}
		if _, dup := seen[slug]; dup {
			continue
		}
		seen[slug] = struct{}{}

		categoryID, err := w.findOrCreateCategory(ctx, name, slug)
		if err != nil {
			return err
		}
		link := store.Where(
			store.Eq(catalog.ColStoryID, storyID),
			store.Eq(catalog.ColCategoryID, categoryID),
		)
		n, err := w.store.Count(ctx, catalog.TableStoryCategories, link)
		if err != nil {
			return &crawler.StoreError{Op: "count", Table: catalog.TableStoryCategories, Err: err}
		}
		if n > 0 {
			continue
		}
		if _, err := w.store.Insert(ctx, catalog.TableStoryCategories, store.Row{
			catalog.ColStoryID:    storyID,
			catalog.ColCategoryID: categoryID,
		}); err != nil {
			return &crawler.StoreError{Op: "insert", Table: catalog.TableStoryCategories, Err: err}
		}
	}
	return nil
}

func (w *Writer) findOrCreateCategory(ctx context.Context, name, slug string) (int64, error) {
	rows, err := w.store.Find(ctx, catalog.TableCategories,
		store.Filter{}.Or(store.Eq(catalog.ColSlug, slug), store.EqualFold(catalog.ColName, name)),
		store.FindOptions{OrderBy: catalog.ColID, Limit: 1})
	if err != nil {
		return 0, &crawler.StoreError{Op: "find", Table: catalog.TableCategories, Err: err}
	}
	if len(rows) > 0 {
		return catalog.ID(rows[0]), nil
	}
	row, err := w.store.Insert(ctx, catalog.TableCategories, store.Row{
		catalog.ColName: name,
		catalog.ColSlug: slug,
	})
	if err != nil {
		return 0, &crawler.StoreError{Op: "insert", Table: catalog.TableCategories, Err: err}
	}
	w.logger.Debug("category created", zap.String("slug", slug))
	return catalog.ID(row), nil
}

// SaveChapter updates the chapter identified by URL, number or title, or
// inserts a new one, then refreshes the story's chapter count.
func (w *Writer) SaveChapter(ctx context.Context, in ChapterInput) (ChapterResult, error) {
	if in.StoryID <= 0 {
		return ChapterResult{}, crawler.Invalidf("story id is required")
	}
	if textnorm.NFC(in.Title) == "" || in.Content == "" {
		return ChapterResult{}, crawler.Invalidf("title and content are required")
	}
	if in.Number != nil && *in.Number <= 0 {
		in.Number = nil
	}
	if in.Number == nil && w.cfg.RequireChapterNumber {
		return ChapterResult{}, crawler.Invalidf("chapter number is required")
	}
	title := textnorm.StripChapterPrefix(in.Title)
	sourceURL := textnorm.NFC(in.SourceURL)

	existing, found, err := w.locateChapter(ctx, in.StoryID, sourceURL, in.Number, title)
	if err != nil {
		return ChapterResult{}, err
	}

	var result ChapterResult
	if found {
		result, err = w.updateChapter(ctx, existing, in, title, sourceURL)
	} else {
		result, err = w.insertChapter(ctx, in, title, sourceURL)
	}
	if err != nil {
		return ChapterResult{}, err
	}

	if err := w.refreshStory(ctx, in.StoryID, title); err != nil {
		return ChapterResult{}, err
	}
	metrics.ObserveChapterSaved(result.Created)
	w.logger.Debug("chapter saved",
		zap.Int64("story_id", in.StoryID),
		zap.Int64("chapter_id", result.Chapter.ID),
		zap.Int("number", result.Chapter.Number),
		zap.String("note", result.Note))
	return result, nil
}

// locateChapter tries, in order: exact URL, trailing-slash-toggled URL,
// explicit number, and exact stripped title when no number was given.
func (w *Writer) locateChapter(ctx context.Context, storyID int64, sourceURL string, number *int, title string) (crawler.ChapterRecord, bool, error) {
	var lookups []store.Cond
	if sourceURL != "" {
		lookups = append(lookups,
			store.Eq(catalog.ColSourceURL, sourceURL),
			store.Eq(catalog.ColSourceURL, crawler.ToggleTrailingSlash(sourceURL)))
	}
	if number != nil {
		lookups = append(lookups, store.Eq(catalog.ColNumber, int64(*number)))
	} else {
		lookups = append(lookups, store.Eq(catalog.ColTitle, title))
	}
	for _, cond := range lookups {
		rows, err := w.store.Find(ctx, catalog.TableChapters,
			store.Where(store.Eq(catalog.ColStoryID, storyID), cond),
			store.FindOptions{OrderBy: catalog.ColID, Limit: 1})
		if err != nil {
			return crawler.ChapterRecord{}, false, &crawler.StoreError{Op: "find", Table: catalog.TableChapters, Err: err}
		}
		if len(rows) > 0 {
			return catalog.ChapterFromRow(rows[0]), true, nil
		}
	}
	return crawler.ChapterRecord{}, false, nil
}

func (w *Writer) updateChapter(ctx context.Context, existing crawler.ChapterRecord, in ChapterInput, title, sourceURL string) (ChapterResult, error) {
	removed := 0
	set := store.Row{
		catalog.ColTitle:     title,
		catalog.ColContent:   in.Content,
		catalog.ColSourceURL: sourceURL,
	}
	if in.Number != nil {
		var err error
		removed, err = w.resolveNumberConflict(ctx, in.StoryID, *in.Number, existing.ID)
		if err != nil {
			return ChapterResult{}, err
		}
		set[catalog.ColNumber] = int64(*in.Number)
	}
	rows, err := w.store.Update(ctx, catalog.TableChapters, byID(existing.ID), set)
	if err != nil {
		return ChapterResult{}, &crawler.StoreError{Op: "update", Table: catalog.TableChapters, Err: err}
	}
	if len(rows) == 0 {
		return ChapterResult{}, fmt.Errorf("chapter %d: %w", existing.ID, crawler.ErrNotFound)
	}
	return ChapterResult{
		Chapter:          catalog.ChapterFromRow(rows[0]),
		Note:             NoteSaved,
		ConflictsRemoved: removed,
	}, nil
}

// resolveNumberConflict deletes every other chapter of the story that holds
// number, so that keepID can take it. It returns how many were removed.
func (w *Writer) resolveNumberConflict(ctx context.Context, storyID int64, number int, keepID int64) (int, error) {
	conflict := store.Where(
		store.Eq(catalog.ColStoryID, storyID),
		store.Eq(catalog.ColNumber, int64(number)),
		store.Neq(catalog.ColID, keepID),
	)
	rows, err := w.store.Find(ctx, catalog.TableChapters, conflict, store.FindOptions{})
	if err != nil {
		return 0, &crawler.StoreError{Op: "find", Table: catalog.TableChapters, Err: err}
	}
	if len(rows) == 0 {
		return 0, nil
	}
	ids := make([]int64, len(rows))
	for i, row := range rows {
		ids[i] = catalog.ID(row)
	}
	if err := w.store.Delete(ctx, catalog.TableChapters, conflict); err != nil {
		return 0, &crawler.StoreError{Op: "delete", Table: catalog.TableChapters, Err: err}
	}
	metrics.ObserveNumberConflict(len(rows))
	w.logger.Warn("chapter number conflict resolved",
		zap.Int64("story_id", storyID),
		zap.Int("number", number),
		zap.Int64("kept_id", keepID),
		zap.Int64s("deleted_ids", ids))
	return len(rows), nil
}

func (w *Writer) insertChapter(ctx context.Context, in ChapterInput, title, sourceURL string) (ChapterResult, error) {
	var number int
	if in.Number != nil {
		number = *in.Number
	} else {
		next, err := w.nextChapterNumber(ctx, in.StoryID)
		if err != nil {
			return ChapterResult{}, err
		}
		number = next
		w.logger.Warn("appending unnumbered chapter",
			zap.Int64("story_id", in.StoryID),
			zap.String("title", title),
			zap.Int("assigned_number", number))
	}
	row := catalog.ChapterRow(crawler.ChapterRecord{
		StoryID:   in.StoryID,
		Number:    number,
		Title:     title,
		Content:   in.Content,
		SourceURL: sourceURL,
	})
	row[catalog.ColCreatedAt] = w.clock.Now()
	stored, err := w.store.Insert(ctx, catalog.TableChapters, row)
	if err != nil {
		return ChapterResult{}, &crawler.StoreError{Op: "insert", Table: catalog.TableChapters, Err: err}
	}
	return ChapterResult{Chapter: catalog.ChapterFromRow(stored), Note: NoteCreated, Created: true}, nil
}

func (w *Writer) nextChapterNumber(ctx context.Context, storyID int64) (int, error) {
	rows, err := w.store.Find(ctx, catalog.TableChapters,
		store.Where(store.Eq(catalog.ColStoryID, storyID)),
		store.FindOptions{OrderBy: catalog.ColNumber, Desc: true, Limit: 1})
	if err != nil {
		return 0, &crawler.StoreError{Op: "find", Table: catalog.TableChapters, Err: err}
	}
	if len(rows) == 0 {
		return 1, nil
	}
	return catalog.ChapterFromRow(rows[0]).Number + 1, nil
}

// refreshStory recounts the story's chapters and stamps its latest chapter.
func (w *Writer) refreshStory(ctx context.Context, storyID int64, latestTitle string) error {
	n, err := w.store.Count(ctx, catalog.TableChapters, store.Where(store.Eq(catalog.ColStoryID, storyID)))
	if err != nil {
		return &crawler.StoreError{Op: "count", Table: catalog.TableChapters, Err: err}
	}
	rows, err := w.store.Update(ctx, catalog.TableStories, byID(storyID), store.Row{
		catalog.ColChaptersCount: n,
		catalog.ColLatestChapter: latestTitle,
		catalog.ColUpdatedAt:     w.clock.Now(),
	})
	if err != nil {
		return &crawler.StoreError{Op: "update", Table: catalog.TableStories, Err: err}
	}
	if len(rows) == 0 {
		w.logger.Warn("chapter saved for missing story", zap.Int64("story_id", storyID))
	}
	return nil
}

func byID(id int64) store.Filter {
	return store.Where(store.Eq(catalog.ColID, id))
}
