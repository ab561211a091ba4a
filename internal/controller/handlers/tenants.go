package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"contentplane/internal/auth"
	"contentplane/internal/store"
	"contentplane/pkg/api"
)

// CreateTenant handles POST /tenants (Admin Only).
// It generates a new API Key, hashes it for storage, and returns the raw key ONCE.
func (h *Handlers) CreateTenant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.CreateTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		h.httpError(w, "Name is required", http.StatusBadRequest)
		return
	}
	if req.MonthlyBudget <= 0 {
		h.httpError(w, "Monthly budget must be positive", http.StatusBadRequest)
		return
	}

	apiKey, err := auth.NewKey()
	if err != nil {
		h.httpError(w, "Entropy failure", http.StatusInternalServerError)
		return
	}
	hashedKey := auth.HashKey(apiKey)

	maxConcurrent := req.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	tenant := &store.Tenant{
		ID:             uuid.New(),
		Name:           req.Name,
		MonthlyBudget:  req.MonthlyBudget,
		MaxConcurrent:  maxConcurrent,
		RateLimit:      req.RateLimit,
		RateLimitBurst: req.RateLimitBurst,
		CreatedAt:      time.Now().UTC(),
	}

	if err := h.store.CreateTenant(ctx, tenant, hashedKey); err != nil {
		h.httpError(w, "Failed to create tenant", http.StatusInternalServerError)
		return
	}

	// Return the Raw Key (This is the only time the user sees it)
	resp := api.CreateTenantResponse{
		ID:     tenant.ID.String(),
		Name:   tenant.Name,
		ApiKey: apiKey,
		Budget: tenant.MonthlyBudget,
	}
	h.respondJson(w, http.StatusCreated, resp)
}
