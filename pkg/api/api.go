// Package api contains shared JSON request/response structs.
// This package is shared between the CLI and Controller.
package api

import (
	"time"

	"contentplane/internal/money"
)

// CreateTenantRequest is the request body for creating a new tenant.
type CreateTenantRequest struct {
	Name string `json:"name"`
	// MonthlyBudget is the tenant's spending allowance, e.g. "500.00".
	MonthlyBudget money.Amount `json:"monthly_budget"`
	// MaxConcurrent caps how many of the tenant's pipelines run at once.
	MaxConcurrent  int     `json:"max_concurrent,omitempty"`
	RateLimit      float64 `json:"rate_limit,omitempty"`
	RateLimitBurst int     `json:"rate_limit_burst,omitempty"`
}

// CreateTenantResponse is the response body after creating a tenant.
type CreateTenantResponse struct {
	ID     string       `json:"tenant_id"`
	Name   string       `json:"name"`
	ApiKey string       `json:"api_key"`
	Budget money.Amount `json:"monthly_budget"`
}

// SubmitPipelineRequest is the request body for submitting a new pipeline.
// Either Stages or Recipe must be set.
type SubmitPipelineRequest struct {
	Stages []string `json:"stages,omitempty"`
	Recipe string   `json:"recipe,omitempty"`
	// BudgetCeiling caps this run's total spend. Omitted or zero inherits
	// the tenant's remaining monthly budget.
	BudgetCeiling money.Amount `json:"budget_ceiling,omitempty"`
	Config        StageConfig  `json:"config,omitempty"`
}

// StageConfig carries per-run parameters read by individual stages.
type StageConfig struct {
	Keywords        []string          `json:"keywords,omitempty"`
	TargetWordCount int               `json:"target_word_count,omitempty"`
	ComplianceFlags []string          `json:"compliance_flags,omitempty"`
	PublishTarget   string            `json:"publish_target,omitempty"`
	Overrides       map[string]string `json:"overrides,omitempty"`
}

// PipelineResponse represents a pipeline in API responses.
type PipelineResponse struct {
	ID              string       `json:"id"`
	Status          string       `json:"status"`
	StageSequence   []string     `json:"stage_sequence"`
	CompletedStages []string     `json:"completed_stages"`
	CurrentStage    *string      `json:"current_stage,omitempty"`
	EstimatedCost   money.Amount `json:"estimated_cost"`
	ActualCost      money.Amount `json:"actual_cost"`
	BudgetCeiling   money.Amount `json:"budget_ceiling"`
	Error           *string      `json:"error,omitempty"`
	ResultRef       *string      `json:"result_ref,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	StartedAt       *time.Time   `json:"started_at,omitempty"`
	CompletedAt     *time.Time   `json:"completed_at,omitempty"`
}

// ListPipelinesResponse is the response body for listing pipelines.
type ListPipelinesResponse struct {
	Pipelines []PipelineResponse `json:"pipelines"`
}

// StageExecutionResponse represents one stage attempt in API responses.
type StageExecutionResponse struct {
	ID            string       `json:"id"`
	Stage         string       `json:"stage"`
	Status        string       `json:"status"`
	Attempt       int          `json:"attempt"`
	Cost          money.Amount `json:"cost"`
	OutputSummary *string      `json:"output_summary,omitempty"`
	Error         *string      `json:"error,omitempty"`
	StartedAt     *time.Time   `json:"started_at,omitempty"`
	CompletedAt   *time.Time   `json:"completed_at,omitempty"`
}

// ListStageExecutionsResponse is the response body for a pipeline's attempts.
type ListStageExecutionsResponse struct {
	Executions []StageExecutionResponse `json:"executions"`
}

// CancelPipelineRequest optionally carries a reason for the cancellation.
type CancelPipelineRequest struct {
	Reason string `json:"reason,omitempty"`
}

// LedgerEntryResponse represents one immutable charge record.
type LedgerEntryResponse struct {
	ID          int64        `json:"id"`
	PipelineID  string       `json:"pipeline_id"`
	Stage       string       `json:"stage"`
	Amount      money.Amount `json:"amount"`
	Description string       `json:"description,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// ListLedgerResponse is the response body for the tenant cost ledger.
type ListLedgerResponse struct {
	Entries []LedgerEntryResponse `json:"entries"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}
