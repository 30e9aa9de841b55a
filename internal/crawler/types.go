package crawler

import "time"

// StorySourceInfo is the story metadata scraped from a source page.
type StorySourceInfo struct {
	Name        string   `json:"name"`
	Author      string   `json:"author"`
	Description string   `json:"description"`
	Image       string   `json:"image"`
	Status      string   `json:"status"`
	Categories  []string `json:"categories"`
	// SourceURL is the page the info was fetched from, when known.
	SourceURL string `json:"source_url,omitempty"`
}

// ChapterStub is one entry of a story's chapter list as seen on the source.
type ChapterStub struct {
	Title  string `json:"title"`
	URL    string `json:"url"`
	Number *int   `json:"number"`
}

// HasNumber reports whether the source title carried an explicit chapter number.
func (s ChapterStub) HasNumber() bool {
	return s.Number != nil
}

// ReconciledChapterStub annotates a stub with whether it is already persisted.
type ReconciledChapterStub struct {
	ChapterStub
	Exists bool `json:"exists"`
}

// ChapterListPage is the parsed content of one chapter-list page.
type ChapterListPage struct {
	Stubs   []ChapterStub
	HasNext bool
}

// ChapterContent is the parsed body of a chapter page.
type ChapterContent struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// StoryRecord is the persisted story.
type StoryRecord struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Slug          string    `json:"slug"`
	Author        string    `json:"author"`
	Description   string    `json:"description"`
	Image         string    `json:"image"`
	Status        string    `json:"status"`
	Views         int64     `json:"views"`
	Rating        float64   `json:"rating"`
	IsNew         bool      `json:"is_new"`
	IsHot         bool      `json:"is_hot"`
	ChaptersCount int64     `json:"chapters_count"`
	LatestChapter string    `json:"latest_chapter"`
	UpdatedAt     time.Time `json:"updated_at"`
	CreatedAt     time.Time `json:"created_at"`
}

// ChapterRecord is the persisted chapter. At most one exists per (StoryID, Number).
type ChapterRecord struct {
	ID        int64     `json:"id"`
	StoryID   int64     `json:"story_id"`
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	SourceURL string    `json:"source_url"`
	CreatedAt time.Time `json:"created_at"`
}

// Category is a genre label attached to stories.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// IntPtr returns a pointer to n.
func IntPtr(n int) *int {
	return &n
}

// JobStatus is the lifecycle state of a batch job.
type JobStatus string

// Batch job states.
const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusPartial   JobStatus = "partial"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCanceled  JobStatus = "canceled"
)

// Terminal reports whether no further transitions are expected.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusPartial, JobStatusFailed, JobStatusCanceled:
		return true
	default:
		return false
	}
}

// BatchJob is a queued request to crawl a list of story URLs.
type BatchJob struct {
	ID          string    `json:"id"`
	URLs        []string  `json:"urls"`
	SubmittedAt time.Time `json:"submitted_at"`
}
