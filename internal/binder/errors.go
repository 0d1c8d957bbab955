package binder

import (
	"errors"
	"fmt"
)

// ErrNoContent signals that no recognized content container was found in an
// article document. It is recoverable: the item is skipped with a warning and
// the job keeps going.
var ErrNoContent = errors.New("no article content found")

// ErrNotFound signals an unknown job id.
var ErrNotFound = errors.New("job not found")

// ErrNoBundle signals that a bundle was requested before one was produced.
var ErrNoBundle = errors.New("no bundle available")

// ErrNoItems signals a job creation request with an empty item list.
var ErrNoItems = errors.New("no posts selected")

// RateLimitError reports a request that stayed rate limited through the full
// retry budget. It escalates to a fatal fetch failure.
type RateLimitError struct {
	URL      string
	Attempts int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited after %d attempts: %s", e.Attempts, e.URL)
}

// FetchError reports a non-retryable remote failure (transport error or
// unexpected status). It is fatal to the whole job.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Recoverable reports whether err is a per-item condition that should degrade
// to a warning instead of failing the job. Everything else is fatal.
func Recoverable(err error) bool {
	return errors.Is(err, ErrNoContent)
}
