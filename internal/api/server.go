// Package api exposes the HTTP interface of the binding service: job
// submission, status, event streaming, bundle download, and archive listing.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bindstack/bindstack/internal/binder"
	"github.com/bindstack/bindstack/internal/job"
	"github.com/bindstack/bindstack/internal/metrics"
)

// Server wires HTTP handlers to the job registry and runner.
type Server struct {
	router   chi.Router
	registry *job.Registry
	runner   *job.Runner
	clients  job.ClientFactory
	logger   *zap.Logger

	// jobCtx bounds the lifetime of job goroutines spawned by submissions;
	// canceling it aborts in-flight jobs at shutdown.
	jobCtx context.Context
}

// requestTimeout bounds the short request/response endpoints. The stream
// endpoint is exempt: it is long-lived on purpose.
const requestTimeout = 60 * time.Second

// NewServer constructs a Server with middleware and routes.
func NewServer(
	jobCtx context.Context,
	registry *job.Registry,
	runner *job.Runner,
	clients job.ClientFactory,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		registry: registry,
		runner:   runner,
		clients:  clients,
		logger:   logger,
		jobCtx:   jobCtx,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/jobs", func(r chi.Router) {
			r.With(timeoutMiddleware(requestTimeout)).Post("/", s.createJob)
			r.Route("/{job_id}", func(r chi.Router) {
				r.With(timeoutMiddleware(requestTimeout)).Get("/", s.getJob)
				r.With(timeoutMiddleware(requestTimeout)).Get("/download", s.downloadBundle)
				r.Get("/stream", s.streamJob)
			})
		})
		r.Get("/publications/{publication}/posts", s.listPosts)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	// The registry is in-memory, so readiness follows liveness.
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type createJobRequest struct {
	Publication   string   `json:"publication"`
	Slugs         []string `json:"slugs"`
	SessionCookie string   `json:"session_cookie"`
}

func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Publication == "" {
		writeError(w, http.StatusBadRequest, "publication required")
		return
	}
	j, err := s.registry.Create(req.Publication, req.Slugs, req.SessionCookie)
	if err != nil {
		if errors.Is(err, binder.ErrNoItems) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("create job failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create job")
		return
	}
	go s.runner.Run(s.jobCtx, j)
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": j.ID})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	j, ok := s.lookupJob(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, j.Snapshot())
}

func (s *Server) downloadBundle(w http.ResponseWriter, r *http.Request) {
	j, ok := s.lookupJob(w, r)
	if !ok {
		return
	}
	path, err := j.BundlePath()
	if err != nil {
		writeError(w, http.StatusBadRequest, "bundle not ready")
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filepath.Base(path)+`"`)
	http.ServeFile(w, r, path)
}

func (s *Server) listPosts(w http.ResponseWriter, r *http.Request) {
	publication := chi.URLParam(r, "publication")
	client := s.clients.New(publication, r.Header.Get("X-Session-Cookie"))

	var posts []binder.PostMetadata
	batches := client.PostBatches()
	for batches.Next(r.Context()) {
		posts = append(posts, batches.Batch()...)
	}
	if err := batches.Err(); err != nil {
		s.logger.Error("archive listing failed",
			zap.String("publication", publication),
			zap.Error(err),
		)
		writeError(w, http.StatusBadGateway, "failed to list publication archive")
		return
	}
	if posts == nil {
		posts = []binder.PostMetadata{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"posts": posts})
}

func (s *Server) lookupJob(w http.ResponseWriter, r *http.Request) (*job.Job, bool) {
	j, err := s.registry.Get(chi.URLParam(r, "job_id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found")
		return nil, false
	}
	return j, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
