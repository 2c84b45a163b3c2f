package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/stagelinehq/stageline/internal/streaming"
)

// handleRunStream streams a run's events to the client via Server-Sent Events.
func (s *Server) handleRunStream(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "STREAMING_UNSUPPORTED", "streaming not supported")
		return
	}

	ch, cancel, err := s.deps.Hub.Subscribe(r.Context(), streaming.EventFilter{RunID: runID})
	if err != nil {
		s.deps.Logger.Error("SSE subscribe failed", "run_id", runID, "error", err)
		writeError(w, http.StatusInternalServerError, "SUBSCRIBE_FAILED", "subscribe failed")
		return
	}
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
			flusher.Flush()
		}
	}
}
