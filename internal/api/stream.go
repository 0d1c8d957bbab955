package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/bindstack/bindstack/internal/binder"
)

// streamJob handles GET /v1/jobs/{job_id}/stream. It serves the job's event
// stream as server-sent events until the done event, the client disconnects,
// or the server shuts down. The first event is always the current status, so
// a client attaching at any point sees where the job stands.
func (s *Server) streamJob(w http.ResponseWriter, r *http.Request) {
	j, ok := s.lookupJob(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := j.Subscribe()
	defer sub.Close()

	for {
		evt, err := sub.Next(r.Context())
		if err != nil {
			// Client went away or shutdown; nothing left to send.
			return
		}
		if writeErr := writeSSE(w, evt); writeErr != nil {
			s.logger.Debug("stream write failed",
				zap.String("job_id", j.ID),
				zap.Error(writeErr),
			)
			return
		}
		flusher.Flush()
		if evt.Type == binder.EventDone {
			return
		}
	}
}

// writeSSE frames one event in text/event-stream format.
func writeSSE(w http.ResponseWriter, evt binder.Event) error {
	data, err := json.Marshal(evt.Data)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}
