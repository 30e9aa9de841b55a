package crawler

import (
	"errors"
	"fmt"
)

// ErrInvalidInput marks caller mistakes such as missing required fields.
var ErrInvalidInput = errors.New("invalid input")

// ErrNotFound is returned when a referenced record does not exist.
var ErrNotFound = errors.New("not found")

// FetchErrorKind classifies fetch failures.
type FetchErrorKind string

// Fetch failure kinds.
const (
	FetchErrorNetwork  FetchErrorKind = "network"
	FetchErrorStatus   FetchErrorKind = "status"
	FetchErrorTimeout  FetchErrorKind = "timeout"
	FetchErrorCanceled FetchErrorKind = "canceled"
)

// FetchError reports a failed page fetch. It is never retried by the fetcher.
type FetchError struct {
	URL        string
	StatusCode int
	Kind       FetchErrorKind
	Err        error
}

func (e *FetchError) Error() string {
	if e.Kind == FetchErrorStatus {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// StoreError wraps a failure reported by the document store.
type StoreError struct {
	Op    string
	Table string
	Err   error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Table, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Invalidf builds an ErrInvalidInput-wrapping error.
func Invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// ErrQueueClosed is returned by Dequeue once the queue has been shut down.
var ErrQueueClosed = errors.New("queue closed")
