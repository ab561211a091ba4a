package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"

	"contentplane/internal/agent"
	"contentplane/internal/controller/middleware"
	"contentplane/internal/engine"
	"contentplane/internal/store"
	"contentplane/pkg/api"
)

// SubmitPipeline handles POST /pipelines.
func (h *Handlers) SubmitPipeline(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenant, ok := middleware.TenantFromContext(ctx)
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req api.SubmitPipelineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Stages) == 0 && req.Recipe == "" {
		h.httpError(w, "Either stages or recipe is required", http.StatusBadRequest)
		return
	}

	p, err := h.engine.Submit(ctx, tenant.ID, engine.SubmitRequest{
		Stages:        req.Stages,
		Recipe:        req.Recipe,
		BudgetCeiling: req.BudgetCeiling,
		Config: agent.StageConfig{
			Keywords:        req.Config.Keywords,
			TargetWordCount: req.Config.TargetWordCount,
			ComplianceFlags: req.Config.ComplianceFlags,
			PublishTarget:   req.Config.PublishTarget,
			Overrides:       req.Config.Overrides,
		},
	})
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrInvalidConfiguration):
			h.httpError(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, engine.ErrBudgetExhausted):
			h.httpError(w, "Monthly budget exhausted", http.StatusPaymentRequired)
		default:
			h.httpError(w, "Failed to submit pipeline", http.StatusInternalServerError)
		}
		return
	}

	h.respondJson(w, http.StatusCreated, pipelineResponse(p))
}

// GetPipeline handles GET /pipelines/{id}.
func (h *Handlers) GetPipeline(w http.ResponseWriter, r *http.Request) {
	p, ok := h.ownedPipeline(w, r)
	if !ok {
		return
	}
	h.respondJson(w, http.StatusOK, pipelineResponse(p))
}

// ListPipelines handles GET /pipelines.
func (h *Handlers) ListPipelines(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant, ok := middleware.TenantFromContext(ctx)
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	limit, offset := pagination(r, 50)
	pipelines, err := h.store.ListPipelines(ctx, tenant.ID, limit, offset)
	if err != nil {
		h.httpError(w, "Failed to list pipelines", http.StatusInternalServerError)
		return
	}

	resp := api.ListPipelinesResponse{Pipelines: make([]api.PipelineResponse, 0, len(pipelines))}
	for i := range pipelines {
		resp.Pipelines = append(resp.Pipelines, pipelineResponse(&pipelines[i]))
	}
	h.respondJson(w, http.StatusOK, resp)
}

// ListStageExecutions handles GET /pipelines/{id}/executions.
func (h *Handlers) ListStageExecutions(w http.ResponseWriter, r *http.Request) {
	p, ok := h.ownedPipeline(w, r)
	if !ok {
		return
	}

	limit, offset := pagination(r, 50)
	execs, err := h.store.ListStageExecutions(r.Context(), p.ID, limit, offset)
	if err != nil {
		h.httpError(w, "Failed to list stage executions", http.StatusInternalServerError)
		return
	}

	resp := api.ListStageExecutionsResponse{Executions: make([]api.StageExecutionResponse, 0, len(execs))}
	for _, se := range execs {
		resp.Executions = append(resp.Executions, api.StageExecutionResponse{
			ID:            se.ID.String(),
			Stage:         se.Stage,
			Status:        string(se.Status),
			Attempt:       se.Attempt,
			Cost:          se.Cost,
			OutputSummary: se.OutputSummary,
			Error:         se.ErrorMessage,
			StartedAt:     se.StartedAt,
			CompletedAt:   se.CompletedAt,
		})
	}
	h.respondJson(w, http.StatusOK, resp)
}

// CancelPipeline handles POST /pipelines/{id}/cancel.
func (h *Handlers) CancelPipeline(w http.ResponseWriter, r *http.Request) {
	p, ok := h.ownedPipeline(w, r)
	if !ok {
		return
	}

	var req api.CancelPipelineRequest
	if r.Body != nil {
		// An empty body is a plain cancel with no reason.
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
			h.httpError(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	if err := h.engine.Cancel(r.Context(), p.ID, req.Reason); err != nil {
		if errors.Is(err, engine.ErrNotCancellable) {
			h.httpError(w, "Pipeline already finished", http.StatusConflict)
			return
		}
		h.httpError(w, "Failed to cancel pipeline", http.StatusInternalServerError)
		return
	}
	h.respondJson(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

// ListLedger handles GET /ledger.
func (h *Handlers) ListLedger(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant, ok := middleware.TenantFromContext(ctx)
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	limit, offset := pagination(r, 50)
	entries, err := h.store.ListLedgerEntries(ctx, tenant.ID, limit, offset)
	if err != nil {
		h.httpError(w, "Failed to list ledger entries", http.StatusInternalServerError)
		return
	}

	resp := api.ListLedgerResponse{Entries: make([]api.LedgerEntryResponse, 0, len(entries))}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, api.LedgerEntryResponse{
			ID:          e.ID,
			PipelineID:  e.PipelineID.String(),
			Stage:       e.Stage,
			Amount:      e.Amount,
			Description: e.Description,
			CreatedAt:   e.CreatedAt,
		})
	}
	h.respondJson(w, http.StatusOK, resp)
}

// ownedPipeline loads the {id} pipeline and enforces tenant ownership.
// Foreign pipelines 404 rather than 403 so IDs do not leak across tenants.
func (h *Handlers) ownedPipeline(w http.ResponseWriter, r *http.Request) (*store.Pipeline, bool) {
	ctx := r.Context()
	tenant, ok := middleware.TenantFromContext(ctx)
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
		return nil, false
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.httpError(w, "Invalid pipeline ID", http.StatusBadRequest)
		return nil, false
	}

	p, err := h.store.GetPipelineByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.httpError(w, "Pipeline not found", http.StatusNotFound)
		} else {
			h.httpError(w, "Failed to load pipeline", http.StatusInternalServerError)
		}
		return nil, false
	}
	if p.TenantID != tenant.ID {
		h.httpError(w, "Pipeline not found", http.StatusNotFound)
		return nil, false
	}
	return p, true
}

func pipelineResponse(p *store.Pipeline) api.PipelineResponse {
	completed := p.CompletedStages
	if completed == nil {
		completed = []string{}
	}
	return api.PipelineResponse{
		ID:              p.ID.String(),
		Status:          string(p.Status),
		StageSequence:   p.StageSequence,
		CompletedStages: completed,
		CurrentStage:    p.CurrentStage,
		EstimatedCost:   p.EstimatedCost,
		ActualCost:      p.ActualCost,
		BudgetCeiling:   p.BudgetCeiling,
		Error:           p.ErrorMessage,
		ResultRef:       p.ResultRef,
		CreatedAt:       p.CreatedAt,
		StartedAt:       p.StartedAt,
		CompletedAt:     p.CompletedAt,
	}
}
