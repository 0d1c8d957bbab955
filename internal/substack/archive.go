package substack

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bindstack/bindstack/internal/binder"
)

// archiveRecord is one raw entry of the archive listing endpoint.
type archiveRecord struct {
	Title            string `json:"title"`
	Slug             string `json:"slug"`
	PostDate         string `json:"post_date"`
	Subtitle         string `json:"subtitle"`
	Audience         string `json:"audience"`
	WordCount        int    `json:"wordcount"`
	PublishedBylines []struct {
		Name string `json:"name"`
	} `json:"publishedBylines"`
}

// metadata normalizes a raw archive record.
func (r archiveRecord) metadata() binder.PostMetadata {
	title := r.Title
	if title == "" {
		title = "Untitled"
	}
	author := "Unknown"
	if len(r.PublishedBylines) > 0 && r.PublishedBylines[0].Name != "" {
		author = r.PublishedBylines[0].Name
	}
	date := r.PostDate
	if len(date) > 10 {
		date = date[:10]
	}
	return binder.PostMetadata{
		Title:     title,
		Slug:      r.Slug,
		Date:      date,
		Subtitle:  r.Subtitle,
		Audience:  r.Audience,
		WordCount: r.WordCount,
		Author:    author,
	}
}

// PostBatches returns a fresh lazy iterator over the archive listing. Each
// call restarts from offset zero, so the sequence is restartable.
func (c *Client) PostBatches() binder.PostBatches {
	return &postBatches{client: c}
}

type postBatches struct {
	client  *Client
	offset  int
	batch   []binder.PostMetadata
	err     error
	done    bool
	started bool
}

// Next fetches the next archive page. It returns false once an empty page is
// seen or a fetch fails; Err distinguishes the two. A politeness delay runs
// between successful page fetches.
func (b *postBatches) Next(ctx context.Context) bool {
	if b.done || b.err != nil {
		return false
	}
	if b.started {
		b.client.pause.Pause(ctx, b.client.cfg.BatchDelay)
		if ctx.Err() != nil {
			b.err = ctx.Err()
			return false
		}
	}
	url := fmt.Sprintf("%s/api/v1/archive?sort=new&search=&offset=%d&limit=%d",
		b.client.baseURL, b.offset, b.client.cfg.BatchSize)
	body, _, err := b.client.getWithRetry(ctx, "archive", url, b.client.cfg.Timeout)
	if err != nil {
		b.err = err
		return false
	}
	var records []archiveRecord
	if err := json.Unmarshal(body, &records); err != nil {
		b.err = fmt.Errorf("decode archive page: %w", err)
		return false
	}
	if len(records) == 0 {
		b.done = true
		return false
	}
	b.batch = make([]binder.PostMetadata, 0, len(records))
	for _, rec := range records {
		b.batch = append(b.batch, rec.metadata())
	}
	b.offset += len(records)
	b.started = true
	return true
}

// Batch returns the page fetched by the last successful Next call.
func (b *postBatches) Batch() []binder.PostMetadata {
	return b.batch
}

// Err returns the terminal error, nil after a clean end of data.
func (b *postBatches) Err() error {
	return b.err
}

// AllPosts drains a fresh iterator and returns the whole archive listing.
func (c *Client) AllPosts(ctx context.Context) ([]binder.PostMetadata, error) {
	var posts []binder.PostMetadata
	batches := c.PostBatches()
	for batches.Next(ctx) {
		posts = append(posts, batches.Batch()...)
	}
	if err := batches.Err(); err != nil {
		return nil, err
	}
	return posts, nil
}
