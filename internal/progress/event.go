package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Level grades a journal entry.
type Level string

// Supported entry levels.
const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Entry is one line of a batch run's log.
type Entry struct {
	// RunID identifies the batch run that emitted the entry.
	RunID uuid.UUID `json:"-"`
	// Time is the UTC timestamp recorded by the emitter.
	Time time.Time `json:"time"`
	// Level grades the outcome the entry reports.
	Level Level `json:"level"`
	// URL optionally scopes the entry to a story or chapter page.
	URL string `json:"url,omitempty"`
	// Message is the human readable log line.
	Message string `json:"message"`
}

// Validate performs coarse validation on entries.
func (e Entry) Validate() error {
	if e.RunID == uuid.Nil {
		return errors.New("run id is required")
	}
	if e.Time.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Level {
	case LevelInfo, LevelSuccess, LevelError:
	default:
		return fmt.Errorf("unknown level %q", e.Level)
	}
	if e.Message == "" {
		return errors.New("message is required")
	}
	return nil
}
