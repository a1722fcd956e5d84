package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// handleEvents serves the task event history by default (filtered by
// task_id/since/limit query params) or, with ?stream=true, upgrades to a
// live Server-Sent Events tail off the event broker. The database table
// remains the durable record either way; streaming is a convenience for
// callers that would otherwise poll.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("stream") == "true" {
		s.streamEvents(w, r)
		return
	}

	taskID := r.URL.Query().Get("task_id")
	since := time.Time{}
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, newAPIError(http.StatusBadRequest, "invalid_request", "since must be RFC3339"))
			return
		}
		since = t
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	evs, err := s.readModel.TaskEvents(r.Context(), taskID, since, limit)
	if err != nil {
		writeError(w, classifyError(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": evs})
}

func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	if s.broker == nil {
		writeError(w, newAPIError(http.StatusServiceUnavailable, "unavailable", "event stream not configured"))
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, newAPIError(http.StatusInternalServerError, "internal", "streaming unsupported"))
		return
	}

	sub := s.broker.Subscribe(r.URL.Query().Get("task_id"))
	defer s.broker.Unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}
