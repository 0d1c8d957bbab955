package job

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bindstack/bindstack/internal/binder"
)

// RegistryConfig controls job working directories, subscriber keep-alive,
// and expiry.
type RegistryConfig struct {
	// Workdir is the parent for per-job output directories; empty uses the
	// system temp directory.
	Workdir string
	// TTL is the retention window from job creation; expired jobs lose their
	// registry entry and output directory.
	TTL time.Duration
	// ReapInterval is how often expired jobs are swept.
	ReapInterval time.Duration
	// KeepAlive is the subscriber idle interval before a ping.
	KeepAlive time.Duration
}

// Registry is the process-scoped job store. Insert, lookup, and delete are
// safe under concurrent access from job creation, status polling, and the
// reaper.
type Registry struct {
	cfg    RegistryConfig
	clock  binder.Clock
	ids    binder.IDGenerator
	logger *zap.Logger

	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewRegistry constructs a Registry.
func NewRegistry(cfg RegistryConfig, clock binder.Clock, ids binder.IDGenerator, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = 60 * time.Second
	}
	return &Registry{
		cfg:    cfg,
		clock:  clock,
		ids:    ids,
		logger: logger,
		jobs:   make(map[string]*Job),
	}
}

// Create allocates a job in Pending state with its output directory. It
// rejects an empty slug list before any job object is created.
func (r *Registry) Create(publication string, slugs []string, sessionCookie string) (*Job, error) {
	if len(slugs) == 0 {
		return nil, binder.ErrNoItems
	}
	id, err := r.ids.NewID()
	if err != nil {
		return nil, fmt.Errorf("generate job id: %w", err)
	}
	outputDir, err := os.MkdirTemp(r.cfg.Workdir, "bindstack_"+id+"_")
	if err != nil {
		return nil, fmt.Errorf("allocate output dir: %w", err)
	}
	j := &Job{
		ID:            id,
		Publication:   publication,
		Slugs:         append([]string(nil), slugs...),
		SessionCookie: sessionCookie,
		OutputDir:     outputDir,
		CreatedAt:     r.clock.Now(),
		keepAlive:     r.cfg.KeepAlive,
		logger:        r.logger,
		status:        binder.JobStatusPending,
		total:         len(slugs),
		subscribers:   make(map[*Subscriber]struct{}),
	}
	r.mu.Lock()
	r.jobs[id] = j
	r.mu.Unlock()
	return j, nil
}

// Get returns the job for id or binder.ErrNotFound.
func (r *Registry) Get(id string) (*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, binder.ErrNotFound
	}
	return j, nil
}

// Reap blocks, sweeping expired jobs on a ticker until ctx finishes. Jobs
// are destroyed only here, never by their own runner.
func (r *Registry) Reap(ctx context.Context) {
	interval := r.cfg.ReapInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.removeExpired(r.clock.Now())
		}
	}
}

// removeExpired deletes registry entries past the TTL and their output
// directories. It returns the number of jobs reaped.
func (r *Registry) removeExpired(now time.Time) int {
	r.mu.Lock()
	var expired []*Job
	for id, j := range r.jobs {
		if now.Sub(j.CreatedAt) > r.cfg.TTL {
			expired = append(expired, j)
			delete(r.jobs, id)
		}
	}
	r.mu.Unlock()

	for _, j := range expired {
		if err := os.RemoveAll(j.OutputDir); err != nil {
			r.logger.Warn("remove expired job dir failed",
				zap.String("job_id", j.ID),
				zap.Error(err),
			)
		}
		r.logger.Info("reaped expired job", zap.String("job_id", j.ID))
	}
	return len(expired)
}
