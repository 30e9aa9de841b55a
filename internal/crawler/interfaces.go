package crawler

import (
	"context"
	"time"
)

// Fetcher retrieves the body of a page as text.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// SourceAdapter isolates everything that depends on one source site's HTML.
// Parsing never fails: missing elements yield empty fields.
type SourceAdapter interface {
	Name() string
	ParseStoryInfo(html string) StorySourceInfo
	ParseChapterListPage(html string) ChapterListPage
	ParseChapterContent(html string) ChapterContent
	// ListPageURL returns the URL of the given 1-based chapter-list page.
	ListPageURL(storyURL string, page int) string
}

// Pauser waits between requests to the same source.
type Pauser interface {
	Pause(ctx context.Context, delay time.Duration)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run and request IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}

// Queue buffers batch jobs between the API and the dispatcher workers.
type Queue interface {
	Enqueue(ctx context.Context, job BatchJob) error
	Dequeue(ctx context.Context) (BatchJob, error)
}
