package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"contentplane/internal/controller/middleware"
)

// keepAliveInterval is how often an SSE comment is written to hold idle
// connections open through proxies.
const keepAliveInterval = 25 * time.Second

// StreamEvents handles GET /events. It streams pipeline progress as
// server-sent events, scoped to the authenticated tenant. An optional
// pipeline_id query parameter narrows the stream to one pipeline.
//
// Delivery is at-most-once: a slow consumer misses events rather than
// stalling the pipeline. Clients needing the full picture re-read pipeline
// state after reconnecting.
func (h *Handlers) StreamEvents(w http.ResponseWriter, r *http.Request) {
	tenant, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	pipelineID := uuid.Nil
	if s := r.URL.Query().Get("pipeline_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			h.httpError(w, "Invalid pipeline ID", http.StatusBadRequest)
			return
		}
		pipelineID = id
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.httpError(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	events, cancel := h.events.Subscribe(tenant.ID, pipelineID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case ev, open := <-events:
			if !open {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: progress\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}
