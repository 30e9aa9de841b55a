// Package resolver decides which persisted story, if any, a scraped story
// refers to. Lookups run as an ordered list of named strategies; the first
// one that finds a story wins.
package resolver

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/JakeFAU/story-crawler/internal/catalog"
	"github.com/JakeFAU/story-crawler/internal/crawler"
	"github.com/JakeFAU/story-crawler/internal/metrics"
	"github.com/JakeFAU/story-crawler/internal/store"
	"github.com/JakeFAU/story-crawler/internal/textnorm"
)

// UnknownAuthor is stored when a source omits the author.
const UnknownAuthor = "Unknown"

// Strategy names.
const (
	StrategyNameAuthor  = "name-author"
	StrategySlug        = "slug"
	StrategyURLSlug     = "url-slug"
	StrategyURLKeywords = "url-keywords"
)

// Query carries the identity signals of a scraped story.
type Query struct {
	Name      string
	Author    string
	SourceURL string
}

// NormalizedName returns the trimmed NFC name.
func (q Query) NormalizedName() string {
	return textnorm.NFC(q.Name)
}

// NormalizedAuthor returns the trimmed NFC author, or UnknownAuthor.
func (q Query) NormalizedAuthor() string {
	if a := textnorm.NFC(q.Author); a != "" {
		return a
	}
	return UnknownAuthor
}

// Slug returns the slug derived from the normalized name.
func (q Query) Slug() string {
	return textnorm.Slug(q.NormalizedName())
}

// Match identifies the resolved story and the strategy that found it.
type Match struct {
	Story    crawler.StoryRecord
	Strategy string
}

// Strategy is one named lookup. Found=false with a nil error means "try the next one".
type Strategy struct {
	Name string
	Find func(ctx context.Context, q Query) (Match, bool, error)
}

// FirstSome combines strategies so that the first match, in order, wins.
// An error from any strategy stops the chain.
func FirstSome(strategies ...Strategy) Strategy {
	return Strategy{
		Name: "first-some",
		Find: func(ctx context.Context, q Query) (Match, bool, error) {
			for _, s := range strategies {
				m, ok, err := s.Find(ctx, q)
				if err != nil {
					return Match{}, false, fmt.Errorf("%s: %w", s.Name, err)
				}
				if ok {
					if m.Strategy == "" {
						m.Strategy = s.Name
					}
					return m, true, nil
				}
			}
			return Match{}, false, nil
		},
	}
}

// Resolver runs the configured strategy chain against the store.
type Resolver struct {
	chain  Strategy
	logger *zap.Logger
}

// New returns a Resolver using the default strategy order: name+author,
// slug from name, slug from the source URL, then URL keywords.
func New(st store.Store, logger *zap.Logger) *Resolver {
	return NewWithStrategies(logger,
		NameAuthor(st),
		SlugFromName(st),
		SlugFromURL(st),
		URLKeywords(st),
	)
}

// NewWithStrategies returns a Resolver over an explicit strategy list.
func NewWithStrategies(logger *zap.Logger, strategies ...Strategy) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{chain: FirstSome(strategies...), logger: logger.Named("resolver")}
}

// Resolve returns the matching story, if any.
func (r *Resolver) Resolve(ctx context.Context, q Query) (Match, bool, error) {
	m, ok, err := r.chain.Find(ctx, q)
	if err != nil {
		return Match{}, false, err
	}
	if !ok {
		metrics.ObserveStoryResolution("none")
		r.logger.Debug("story not found", zap.String("name", q.NormalizedName()), zap.String("source_url", q.SourceURL))
		return Match{}, false, nil
	}
	metrics.ObserveStoryResolution(m.Strategy)
	r.logger.Debug("story resolved",
		zap.String("strategy", m.Strategy),
		zap.Int64("story_id", m.Story.ID),
		zap.String("name", q.NormalizedName()))
	return m, true, nil
}

// NameAuthor matches on the normalized author and the name in any of its
// raw, NFC or NFD spellings.
func NameAuthor(st store.Store) Strategy {
	return Strategy{
		Name: StrategyNameAuthor,
		Find: func(ctx context.Context, q Query) (Match, bool, error) {
			name := q.NormalizedName()
			if name == "" {
				return Match{}, false, nil
			}
			filter := store.Where(store.Eq(catalog.ColAuthor, q.NormalizedAuthor())).Or(
				store.Eq(catalog.ColName, name),
				store.Eq(catalog.ColName, norm.NFD.String(name)),
				store.Eq(catalog.ColName, q.Name),
			)
			return findOne(ctx, st, filter)
		},
	}
}

// SlugFromName matches the slug generated from the normalized name.
func SlugFromName(st store.Store) Strategy {
	return Strategy{
		Name: StrategySlug,
		Find: func(ctx context.Context, q Query) (Match, bool, error) {
			slug := q.Slug()
			if slug == "" {
				return Match{}, false, nil
			}
			return findOne(ctx, st, store.Where(store.Eq(catalog.ColSlug, slug)))
		},
	}
}

// SlugFromURL matches a slug equal to the last path segment of the source URL.
func SlugFromURL(st store.Store) Strategy {
	return Strategy{
		Name: StrategyURLSlug,
		Find: func(ctx context.Context, q Query) (Match, bool, error) {
			segment := crawler.LastPathSegment(q.SourceURL)
			if segment == "" {
				return Match{}, false, nil
			}
			return findOne(ctx, st, store.Where(store.Eq(catalog.ColSlug, segment)))
		},
	}
}

// URLKeywords matches the first story whose slug contains every keyword
// (tokens longer than one character) of the source URL's last segment.
func URLKeywords(st store.Store) Strategy {
	return Strategy{
		Name: StrategyURLKeywords,
		Find: func(ctx context.Context, q Query) (Match, bool, error) {
			tokens := textnorm.Tokens(crawler.LastPathSegment(q.SourceURL))
			if len(tokens) == 0 {
				return Match{}, false, nil
			}
			conds := make([]store.Cond, len(tokens))
			for i, tok := range tokens {
				conds[i] = store.ContainsFold(catalog.ColSlug, tok)
			}
			return findOne(ctx, st, store.Where(conds...))
		},
	}
}

func findOne(ctx context.Context, st store.Store, filter store.Filter) (Match, bool, error) {
	rows, err := st.Find(ctx, catalog.TableStories, filter, store.FindOptions{OrderBy: catalog.ColID, Limit: 1})
	if err != nil {
		return Match{}, false, &crawler.StoreError{Op: "find", Table: catalog.TableStories, Err: err}
	}
	if len(rows) == 0 {
		return Match{}, false, nil
	}
	return Match{Story: catalog.StoryFromRow(rows[0])}, true, nil
}
