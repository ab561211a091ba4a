// Package handlers contains HTTP handlers for the controller API.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"contentplane/internal/broadcast"
	"contentplane/internal/engine"
	"contentplane/internal/store"
	"contentplane/pkg/api"
)

// StoreFactory combines the store interfaces the handlers read from.
type StoreFactory interface {
	Ping(ctx context.Context) error
	store.TenantStore
	store.PipelineStore
	store.LedgerStore
}

// Orchestrator is the engine surface the handlers drive.
type Orchestrator interface {
	Submit(ctx context.Context, tenantID uuid.UUID, req engine.SubmitRequest) (*store.Pipeline, error)
	Cancel(ctx context.Context, pipelineID uuid.UUID, reason string) error
}

// Subscriber hands out progress event channels for the SSE endpoint.
type Subscriber interface {
	Subscribe(tenantID, pipelineID uuid.UUID) (<-chan broadcast.ProgressEvent, func())
}

// Handlers holds all HTTP handlers and their dependencies.
type Handlers struct {
	store  StoreFactory
	engine Orchestrator
	events Subscriber
}

// New creates a new Handlers instance with the given dependencies.
func New(s StoreFactory, e Orchestrator, sub Subscriber) *Handlers {
	return &Handlers{store: s, engine: e, events: sub}
}

// A helper function to write standard JSON responses.
func (h *Handlers) respondJson(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// A helper function to return consistent error messages.
func (h *Handlers) httpError(w http.ResponseWriter, message string, code int) {
	h.respondJson(w, code, api.ErrorResponse{
		Error: message,
		Code:  strconv.Itoa(code),
	})
}

// pagination reads limit/offset query parameters with sane bounds.
func pagination(r *http.Request, defaultLimit int) (limit, offset int) {
	limit = defaultLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	if s := r.URL.Query().Get("offset"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
