// Package binder defines the core types and capability interfaces shared by
// the fetch, extraction, assembly, and job-orchestration subsystems.
package binder

import (
	"context"
	"time"
)

// JobStatus represents the lifecycle state of a conversion job.
type JobStatus string

// Job status values. Transitions are one-directional:
// pending -> running -> completed | failed.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// PostMetadata is one entry of a publication's archive listing. It is
// read-only once constructed.
type PostMetadata struct {
	Title     string `json:"title"`
	Slug      string `json:"slug"`
	Date      string `json:"date"`
	Subtitle  string `json:"subtitle,omitempty"`
	Audience  string `json:"audience,omitempty"`
	WordCount int    `json:"word_count,omitempty"`
	Author    string `json:"author"`
}

// ImageAsset is a fetched image ready for embedding. It is embedded into
// exactly one assembled document and then discarded.
type ImageAsset struct {
	Data      []byte
	MediaType string
	Ext       string
}

// JobSnapshot is the externally visible state of a job at one instant.
type JobSnapshot struct {
	ID          string    `json:"job_id"`
	Status      JobStatus `json:"status"`
	Progress    int       `json:"progress"`
	Total       int       `json:"total"`
	CurrentPost string    `json:"current_post,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// ContentClient fetches remote publication content. Implementations carry the
// publication binding and optional session credential for their lifetime.
type ContentClient interface {
	// PostBatches returns a fresh iterator over the publication's archive
	// listing. Each call restarts from offset zero.
	PostBatches() PostBatches
	// FetchArticle returns the raw HTML document for one post.
	FetchArticle(ctx context.Context, slug string) (string, error)
	// FetchImage downloads an image. Failures of any kind degrade to
	// ok=false rather than an error; image loss is recoverable.
	FetchImage(ctx context.Context, url string) (asset ImageAsset, ok bool)
}

// PostBatches is a lazy, finite walk over a paginated archive listing. Usage
// mirrors sql.Rows: Next advances, Batch returns the current page, Err holds
// the terminal error once Next returns false.
type PostBatches interface {
	Next(ctx context.Context) bool
	Batch() []PostMetadata
	Err() error
}

// ImageFetcher is the subset of ContentClient the document assembler needs.
type ImageFetcher interface {
	FetchImage(ctx context.Context, url string) (asset ImageAsset, ok bool)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job identifiers.
type IDGenerator interface {
	NewID() (string, error)
}
