// Package job owns per-job state, the conversion pipeline, the job registry,
// and fan-out of lifecycle events to subscribers.
package job

import (
	"maps"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bindstack/bindstack/internal/binder"
)

// Job is one conversion request and its live state. It is mutated only by
// its own runner and by subscriber attach/detach; all mutation happens under
// the job mutex so event ordering is consistent for every subscriber.
type Job struct {
	ID            string
	Publication   string
	Slugs         []string
	SessionCookie string
	OutputDir     string
	CreatedAt     time.Time

	keepAlive time.Duration
	logger    *zap.Logger

	mu          sync.Mutex
	status      binder.JobStatus
	progress    int
	total       int
	currentPost string
	errText     string
	bundlePath  string
	subscribers map[*Subscriber]struct{}
}

// Snapshot returns the externally visible state at this instant.
func (j *Job) Snapshot() binder.JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return binder.JobSnapshot{
		ID:          j.ID,
		Status:      j.status,
		Progress:    j.progress,
		Total:       j.total,
		CurrentPost: j.currentPost,
		Error:       j.errText,
	}
}

// BundlePath returns the final bundle location once one exists.
func (j *Job) BundlePath() (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.bundlePath == "" {
		return "", binder.ErrNoBundle
	}
	return j.bundlePath, nil
}

// statusDataLocked builds the payload shared by status and progress events.
// Callers must hold j.mu.
func (j *Job) statusDataLocked() map[string]any {
	return map[string]any{
		"job_id":       j.ID,
		"status":       string(j.status),
		"progress":     j.progress,
		"total":        j.total,
		"current_post": j.currentPost,
		"error":        j.errText,
	}
}

// publishLocked copies the event into every attached subscriber channel.
// Sends never block: channel capacity is sized for the job's full event
// budget at attach time, so a send can only miss if that invariant breaks.
func (j *Job) publishLocked(evt binder.Event) {
	for sub := range j.subscribers {
		copied := binder.Event{Type: evt.Type, Data: maps.Clone(evt.Data)}
		select {
		case sub.ch <- copied:
		default:
			j.logger.Warn("subscriber channel overflow, dropping event",
				zap.String("job_id", j.ID),
				zap.String("event", string(evt.Type)),
			)
		}
	}
}

// start transitions Pending -> Running and announces it.
func (j *Job) start() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status = binder.JobStatusRunning
	j.publishLocked(binder.Event{Type: binder.EventStatus, Data: j.statusDataLocked()})
}

// beginPost marks the item about to be processed and emits progress.
func (j *Job) beginPost(index int, slug string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.progress = index
	j.currentPost = slug
	j.publishLocked(binder.Event{Type: binder.EventProgress, Data: j.statusDataLocked()})
}

// warn reports a recoverable per-item skip.
func (j *Job) warn(slug, message string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.publishLocked(binder.Event{Type: binder.EventWarning, Data: map[string]any{
		"slug":    slug,
		"message": message,
	}})
}

// completePost reports one assembled document.
func (j *Job) completePost(slug, title string, images int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.publishLocked(binder.Event{Type: binder.EventPostComplete, Data: map[string]any{
		"slug":   slug,
		"title":  title,
		"images": images,
	}})
}

// finish transitions to Completed. Progress reaches total even when every
// item was individually skipped.
func (j *Job) finish(bundlePath string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.progress = j.total
	j.currentPost = ""
	j.bundlePath = bundlePath
	j.status = binder.JobStatusCompleted
	j.publishLocked(binder.Event{Type: binder.EventStatus, Data: j.statusDataLocked()})
}

// fail records the fatal error and transitions to Failed, emitting the error
// event followed by the terminal status event.
func (j *Job) fail(message string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.progress = j.total
	j.currentPost = ""
	j.errText = message
	j.status = binder.JobStatusFailed
	j.publishLocked(binder.Event{Type: binder.EventError, Data: map[string]any{"message": message}})
	j.publishLocked(binder.Event{Type: binder.EventStatus, Data: j.statusDataLocked()})
}

// finishStream emits the final done event. It is the only event guaranteed
// exactly once per job regardless of outcome.
func (j *Job) finishStream() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.publishLocked(binder.Event{Type: binder.EventDone, Data: map[string]any{}})
}
