package job

import (
	"context"
	"time"

	"github.com/bindstack/bindstack/internal/binder"
)

// subscriberSlack covers the events outside the per-item budget: the attach
// snapshot, the running and terminal status events, error, and done.
const subscriberSlack = 8

// Subscriber is one attached consumer of a job's event stream. Events are
// buffered until read, never dropped.
type Subscriber struct {
	ch        chan binder.Event
	keepAlive time.Duration
	job       *Job
}

// Subscribe attaches a new subscriber. Before any subsequently published
// event, the channel holds one synthetic status event reflecting the job's
// state at attach time, so late joiners are never missing context.
func (j *Job) Subscribe() *Subscriber {
	j.mu.Lock()
	defer j.mu.Unlock()
	// Each item publishes at most two events (progress plus either
	// post_complete or warning), so this capacity can never overflow.
	sub := &Subscriber{
		ch:        make(chan binder.Event, 2*j.total+subscriberSlack),
		keepAlive: j.keepAlive,
		job:       j,
	}
	sub.ch <- binder.Event{Type: binder.EventStatus, Data: j.statusDataLocked()}
	if j.status.Terminal() {
		// The job's done event has already been broadcast; replay it so a
		// late joiner's stream still terminates immediately.
		sub.ch <- binder.Event{Type: binder.EventDone, Data: map[string]any{}}
		return sub
	}
	j.subscribers[sub] = struct{}{}
	return sub
}

// Close detaches the subscriber from the job, preventing channel
// accumulation over the job's lifetime.
func (s *Subscriber) Close() {
	s.job.mu.Lock()
	defer s.job.mu.Unlock()
	delete(s.job.subscribers, s)
}

// Next returns the next event, waiting up to the keep-alive interval. On an
// idle timeout a no-op ping is returned so transports stay alive; a ping is
// never job activity. The error is non-nil only when ctx finishes.
func (s *Subscriber) Next(ctx context.Context) (binder.Event, error) {
	// Buffered events are served before any timeout: a subscriber attaching
	// to a finished job reads its status and done immediately.
	select {
	case evt := <-s.ch:
		return evt, nil
	default:
	}

	timer := time.NewTimer(s.keepAlive)
	defer timer.Stop()
	select {
	case evt := <-s.ch:
		return evt, nil
	case <-timer.C:
		return binder.Event{Type: binder.EventPing, Data: map[string]any{}}, nil
	case <-ctx.Done():
		return binder.Event{}, ctx.Err()
	}
}
