// Package catalog maps the crawler's domain records onto rows of the generic
// document store and names the tables and columns they live in.
package catalog

import (
	"fmt"
	"time"

	"github.com/JakeFAU/story-crawler/internal/crawler"
	"github.com/JakeFAU/story-crawler/internal/store"
)

// Tables.
const (
	TableStories         = "stories"
	TableChapters        = "chapters"
	TableCategories      = "categories"
	TableStoryCategories = "story_categories"
	TableCrawlLogs       = "crawl_logs"
)

// Columns shared across tables.
const (
	ColID            = "id"
	ColName          = "name"
	ColSlug          = "slug"
	ColAuthor        = "author"
	ColDescription   = "description"
	ColImage         = "image"
	ColStatus        = "status"
	ColViews         = "views"
	ColRating        = "rating"
	ColIsNew         = "is_new"
	ColIsHot         = "is_hot"
	ColChaptersCount = "chapters_count"
	ColLatestChapter = "latest_chapter"
	ColCreatedAt     = "created_at"
	ColUpdatedAt     = "updated_at"
	ColStoryID       = "story_id"
	ColNumber        = "number"
	ColTitle         = "title"
	ColContent       = "content"
	ColSourceURL     = "source_url"
	ColCategoryID    = "category_id"
	ColRunID         = "run_id"
	ColLevel         = "level"
	ColURL           = "url"
	ColMessage       = "message"
)

// Tables lists every table the crawler writes, in dependency order.
func Tables() []string {
	return []string{TableStories, TableChapters, TableCategories, TableStoryCategories, TableCrawlLogs}
}

// StoryFromRow decodes a stories row.
func StoryFromRow(row store.Row) crawler.StoryRecord {
	return crawler.StoryRecord{
		ID:            asInt64(row[ColID]),
		Name:          asString(row[ColName]),
		Slug:          asString(row[ColSlug]),
		Author:        asString(row[ColAuthor]),
		Description:   asString(row[ColDescription]),
		Image:         asString(row[ColImage]),
		Status:        asString(row[ColStatus]),
		Views:         asInt64(row[ColViews]),
		Rating:        asFloat(row[ColRating]),
		IsNew:         asBool(row[ColIsNew]),
		IsHot:         asBool(row[ColIsHot]),
		ChaptersCount: asInt64(row[ColChaptersCount]),
		LatestChapter: asString(row[ColLatestChapter]),
		UpdatedAt:     asTime(row[ColUpdatedAt]),
		CreatedAt:     asTime(row[ColCreatedAt]),
	}
}

// ChapterFromRow decodes a chapters row.
func ChapterFromRow(row store.Row) crawler.ChapterRecord {
	return crawler.ChapterRecord{
		ID:        asInt64(row[ColID]),
		StoryID:   asInt64(row[ColStoryID]),
		Number:    int(asInt64(row[ColNumber])),
		Title:     asString(row[ColTitle]),
		Content:   asString(row[ColContent]),
		SourceURL: asString(row[ColSourceURL]),
		CreatedAt: asTime(row[ColCreatedAt]),
	}
}

// ChapterRow encodes the mutable columns of a chapter.
func ChapterRow(c crawler.ChapterRecord) store.Row {
	return store.Row{
		ColStoryID:   c.StoryID,
		ColNumber:    int64(c.Number),
		ColTitle:     c.Title,
		ColContent:   c.Content,
		ColSourceURL: c.SourceURL,
	}
}

// CategoryFromRow decodes a categories row.
func CategoryFromRow(row store.Row) crawler.Category {
	return crawler.Category{
		ID:   asInt64(row[ColID]),
		Name: asString(row[ColName]),
		Slug: asString(row[ColSlug]),
	}
}

// ID extracts the id column of row.
func ID(row store.Row) int64 {
	return asInt64(row[ColID])
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int64:
		return float64(n)
	case int32:
		return float64(n)
	case int:
		return float64(n)
	default:
		return 0
	}
}

func asString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func asTime(v any) time.Time {
	t, _ := v.(time.Time)
	return t
}
