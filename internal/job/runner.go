package job

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/bindstack/bindstack/internal/binder"
	"github.com/bindstack/bindstack/internal/epub"
	"github.com/bindstack/bindstack/internal/extract"
	"github.com/bindstack/bindstack/internal/metrics"
)

// ClientFactory builds a content client bound to one publication and
// optional credential. The runner creates one client per job.
type ClientFactory interface {
	New(publication, sessionCookie string) binder.ContentClient
}

// Runner drives the conversion pipeline for one job at a time. Jobs run
// concurrently, each on its own goroutine; the item loop inside a job is
// strictly sequential so progress events stay in request order and the
// remote source's rate limits are respected.
type Runner struct {
	clients   ClientFactory
	builder   *epub.Builder
	itemDelay time.Duration
	logger    *zap.Logger
}

// NewRunner constructs a Runner.
func NewRunner(clients ClientFactory, builder *epub.Builder, itemDelay time.Duration, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		clients:   clients,
		builder:   builder,
		itemDelay: itemDelay,
		logger:    logger,
	}
}

// Run executes the pipeline over the job's requested posts. Recoverable
// per-item conditions degrade to warning events; anything else aborts the
// job. The done event is emitted last, unconditionally.
func (r *Runner) Run(ctx context.Context, j *Job) {
	metrics.IncActiveJobs()
	defer metrics.DecActiveJobs()
	defer j.finishStream()

	j.start()
	client := r.clients.New(j.Publication, j.SessionCookie)

	var artifacts []string
	for i, slug := range j.Slugs {
		if i > 0 {
			r.sleep(ctx, r.itemDelay)
		}
		j.beginPost(i, slug)

		rawHTML, err := client.FetchArticle(ctx, slug)
		if err != nil {
			r.fail(j, slug, err)
			return
		}

		body, err := extract.Body(rawHTML)
		if err != nil {
			if binder.Recoverable(err) {
				r.logger.Info("skipping post, no content",
					zap.String("job_id", j.ID),
					zap.String("slug", slug),
				)
				metrics.ObservePost("skipped")
				j.warn(slug, "Could not extract content")
				continue
			}
			r.fail(j, slug, err)
			return
		}

		meta := extract.DocumentMeta(rawHTML)
		title := meta.Title
		if title == "" {
			title = slug
		}
		author := meta.Author
		if author == "" {
			author = "Unknown"
		}

		path, imageCount, err := r.builder.Assemble(ctx, client, epub.Document{
			Publication: j.Publication,
			Slug:        slug,
			Title:       title,
			Author:      author,
			Date:        meta.Date,
			Subtitle:    meta.Subtitle,
		}, body, j.OutputDir)
		if err != nil {
			// Assembly failures signal an environment problem, not a content
			// gap, so they abort the whole job.
			r.fail(j, slug, err)
			return
		}

		artifacts = append(artifacts, path)
		metrics.ObservePost("assembled")
		metrics.AddImagesEmbedded(imageCount)
		j.completePost(slug, title, imageCount)
	}

	var bundlePath string
	if len(artifacts) > 0 {
		path, err := writeBundle(j.OutputDir, j.Publication, artifacts)
		if err != nil {
			r.fail(j, "", err)
			return
		}
		bundlePath = path
	}

	j.finish(bundlePath)
	metrics.ObserveJob(string(binder.JobStatusCompleted))
	r.logger.Info("job completed",
		zap.String("job_id", j.ID),
		zap.Int("artifacts", len(artifacts)),
	)
}

func (r *Runner) fail(j *Job, slug string, err error) {
	r.logger.Error("job failed",
		zap.String("job_id", j.ID),
		zap.String("slug", slug),
		zap.Error(err),
	)
	j.fail(err.Error())
	metrics.ObserveJob(string(binder.JobStatusFailed))
}

// sleep pauses between items without blocking other jobs.
func (r *Runner) sleep(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
