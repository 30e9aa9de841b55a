// Package reconcile marks which scraped chapter stubs already exist for a
// story, using URL, number and title signals.
package reconcile

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/story-crawler/internal/catalog"
	"github.com/JakeFAU/story-crawler/internal/crawler"
	"github.com/JakeFAU/story-crawler/internal/store"
	"github.com/JakeFAU/story-crawler/internal/textnorm"
)

// MaxChapters bounds how many persisted chapters are loaded per story.
const MaxChapters = 10000

// Index holds the identity signals of a story's persisted chapters.
type Index struct {
	urls         map[string]struct{}
	numbers      map[int]struct{}
	exactTitles  map[string]struct{}
	simpleTitles map[string]struct{}
	size         int
}

// NewIndex builds an Index from persisted chapters.
func NewIndex(chapters []crawler.ChapterRecord) *Index {
	idx := &Index{
		urls:         make(map[string]struct{}, len(chapters)),
		numbers:      make(map[int]struct{}, len(chapters)),
		exactTitles:  make(map[string]struct{}, len(chapters)),
		simpleTitles: make(map[string]struct{}, len(chapters)),
		size:         len(chapters),
	}
	for _, c := range chapters {
		if u := crawler.NormalizeSourceURL(c.SourceURL); u != "" {
			idx.urls[u] = struct{}{}
		}
		idx.numbers[c.Number] = struct{}{}
		idx.exactTitles[exactTitle(c.Title)] = struct{}{}
		idx.simpleTitles[textnorm.Simplify(c.Title)] = struct{}{}
	}
	return idx
}

// Len returns the number of indexed chapters.
func (idx *Index) Len() int {
	return idx.size
}

// Exists applies the matching precedence to one stub: a URL match is
// authoritative; a number match needs title agreement; title alone is only
// consulted when the stub has no number.
func (idx *Index) Exists(stub crawler.ChapterStub) bool {
	if u := crawler.NormalizeSourceURL(stub.URL); u != "" {
		if _, ok := idx.urls[u]; ok {
			return true
		}
	}
	if stub.Number != nil {
		if _, ok := idx.numbers[*stub.Number]; !ok {
			return false
		}
		return idx.titleAgrees(stub.Title)
	}
	return idx.titleAgrees(stub.Title)
}

func (idx *Index) titleAgrees(title string) bool {
	clean := textnorm.StripChapterPrefix(title)
	for _, t := range []string{exactTitle(title), exactTitle(clean)} {
		if _, ok := idx.exactTitles[t]; ok {
			return true
		}
	}
	for _, t := range []string{textnorm.Simplify(title), textnorm.Simplify(clean)} {
		if t == "" {
			continue
		}
		if _, ok := idx.simpleTitles[t]; ok {
			return true
		}
	}
	return false
}

func exactTitle(s string) string {
	return strings.ToLower(textnorm.NFC(s))
}

// Classify annotates stubs against the index, preserving order.
func Classify(stubs []crawler.ChapterStub, idx *Index) []crawler.ReconciledChapterStub {
	out := make([]crawler.ReconciledChapterStub, len(stubs))
	for i, stub := range stubs {
		out[i] = crawler.ReconciledChapterStub{ChapterStub: stub, Exists: idx.Exists(stub)}
	}
	return out
}

// Result is the outcome of reconciling a chapter list.
type Result struct {
	Stubs          []crawler.ReconciledChapterStub
	DBChapterCount int
}

// Reconciler loads a story's chapters once and classifies stubs against them.
type Reconciler struct {
	store  store.Store
	logger *zap.Logger
}

// New constructs a Reconciler.
func New(st store.Store, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{store: st, logger: logger.Named("reconcile")}
}

// Reconcile marks every stub that already has a persisted counterpart.
func (r *Reconciler) Reconcile(ctx context.Context, storyID int64, stubs []crawler.ChapterStub) (Result, error) {
	rows, err := r.store.Find(ctx, catalog.TableChapters,
		store.Where(store.Eq(catalog.ColStoryID, storyID)),
		store.FindOptions{OrderBy: catalog.ColNumber, Limit: MaxChapters})
	if err != nil {
		return Result{}, &crawler.StoreError{Op: "find", Table: catalog.TableChapters, Err: err}
	}
	chapters := make([]crawler.ChapterRecord, len(rows))
	for i, row := range rows {
		chapters[i] = catalog.ChapterFromRow(row)
	}
	idx := NewIndex(chapters)
	out := Classify(stubs, idx)

	existing := 0
	for _, s := range out {
		if s.Exists {
			existing++
		}
	}
	r.logger.Info("chapters reconciled",
		zap.Int64("story_id", storyID),
		zap.Int("stubs", len(stubs)),
		zap.Int("existing", existing),
		zap.Int("db_chapters", idx.Len()))
	return Result{Stubs: out, DBChapterCount: idx.Len()}, nil
}
