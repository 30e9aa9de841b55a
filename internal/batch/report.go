package batch

import (
	"time"

	"github.com/JakeFAU/story-crawler/internal/crawler"
	"github.com/JakeFAU/story-crawler/internal/progress"
)

// ChapterStatus tracks one chapter through a batch run.
type ChapterStatus string

// Chapter states.
const (
	ChapterPending ChapterStatus = "pending"
	ChapterExists  ChapterStatus = "exists"
	ChapterSuccess ChapterStatus = "success"
	ChapterError   ChapterStatus = "error"
)

// StoryStatus is the outcome of one story URL.
type StoryStatus string

// Story outcomes.
const (
	StoryDone   StoryStatus = "done"
	StoryFailed StoryStatus = "failed"
)

// ChapterReport is the per-chapter line of a StoryReport.
type ChapterReport struct {
	Title  string        `json:"title"`
	URL    string        `json:"url"`
	Number *int          `json:"number"`
	Status ChapterStatus `json:"status"`
	Note   string        `json:"note,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// StoryReport summarizes one story URL.
type StoryReport struct {
	URL      string          `json:"url"`
	StoryID  int64           `json:"storyId,omitempty"`
	Name     string          `json:"name,omitempty"`
	Slug     string          `json:"slug,omitempty"`
	Status   StoryStatus     `json:"status"`
	Error    string          `json:"error,omitempty"`
	Chapters []ChapterReport `json:"chapters"`
	Counters Counters        `json:"counters"`
}

// Counters tallies chapter outcomes.
type Counters struct {
	Saved    int `json:"saved"`
	Existing int `json:"existing"`
	Failed   int `json:"failed"`
	Pending  int `json:"pending"`
}

func (c *Counters) add(o Counters) {
	c.Saved += o.Saved
	c.Existing += o.Existing
	c.Failed += o.Failed
	c.Pending += o.Pending
}

// Report is the result of a batch run.
type Report struct {
	RunID      string            `json:"runId"`
	Status     crawler.JobStatus `json:"status"`
	StartedAt  time.Time         `json:"startedAt"`
	FinishedAt time.Time         `json:"finishedAt"`
	Stories    []StoryReport     `json:"stories"`
	Counters   Counters          `json:"counters"`
	Entries    []progress.Entry  `json:"log"`
}

// deriveStatus grades a finished run: every story and chapter succeeded,
// nothing succeeded, or something in between.
func deriveStatus(stories []StoryReport, canceled bool) crawler.JobStatus {
	if canceled {
		return crawler.JobStatusCanceled
	}
	done, clean := 0, true
	for _, s := range stories {
		if s.Status == StoryDone {
			done++
		}
		if s.Status != StoryDone || s.Counters.Failed > 0 || s.Counters.Pending > 0 {
			clean = false
		}
	}
	switch {
	case done == 0:
		return crawler.JobStatusFailed
	case clean:
		return crawler.JobStatusSucceeded
	default:
		return crawler.JobStatusPartial
	}
}
