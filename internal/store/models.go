// Package store contains the database layer for contentplane.
package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"contentplane/internal/money"
)

// Tenant represents a tenant in the multi-tenant system.
// All operations must be scoped by TenantID. Tenants own budgets,
// concurrency quotas, and every pipeline they submit.
type Tenant struct {
	ID            uuid.UUID
	Name          string
	MonthlyBudget money.Amount
	MonthlySpend  money.Amount
	MaxConcurrent int
	// RateLimit is requests per second for the public API. 0 means unlimited.
	RateLimit      float64
	RateLimitBurst int
	CreatedAt      time.Time
}

// MonthlyRemaining returns how much budget the tenant has left this month.
func (t *Tenant) MonthlyRemaining() money.Amount {
	remaining := t.MonthlyBudget - t.MonthlySpend
	if remaining < 0 {
		return 0
	}
	return remaining
}

// PipelineStatus represents the state of a pipeline.
type PipelineStatus string

const (
	PipelineStatusQueued    PipelineStatus = "queued"
	PipelineStatusRunning   PipelineStatus = "running"
	PipelineStatusCompleted PipelineStatus = "completed"
	PipelineStatusFailed    PipelineStatus = "failed"
	PipelineStatusCancelled PipelineStatus = "cancelled"
)

// Terminal reports whether the status permits no further transitions.
func (s PipelineStatus) Terminal() bool {
	return s == PipelineStatusCompleted || s == PipelineStatusFailed || s == PipelineStatusCancelled
}

// Pipeline represents one end-to-end content run through a configured
// sequence of stages.
//
// Invariant: CompletedStages is always a prefix of StageSequence, and
// CurrentStage, if set, is the stage immediately following that prefix.
type Pipeline struct {
	ID              uuid.UUID
	TenantID        uuid.UUID
	Status          PipelineStatus
	StageSequence   []string
	CompletedStages []string
	CurrentStage    *string
	Config          json.RawMessage
	EstimatedCost   money.Amount
	ActualCost      money.Amount
	BudgetCeiling   money.Amount
	ErrorMessage    *string
	ResultRef       *string
	CreatedAt       time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
}

// StageStatus represents the state of a single stage attempt.
type StageStatus string

const (
	StageStatusPending   StageStatus = "pending"
	StageStatusRunning   StageStatus = "running"
	StageStatusSucceeded StageStatus = "succeeded"
	StageStatusFailed    StageStatus = "failed"
	StageStatusSkipped   StageStatus = "skipped"
)

// StageExecution represents one attempt of one agent invocation within a
// pipeline. Retries create a new row per attempt; at most one row per
// (pipeline, stage) is ever in the running state because stages execute
// strictly sequentially.
type StageExecution struct {
	ID            uuid.UUID
	PipelineID    uuid.UUID
	TenantID      uuid.UUID
	Stage         string
	Status        StageStatus
	Attempt       int
	Cost          money.Amount
	OutputSummary *string
	ErrorMessage  *string
	CreatedAt     time.Time
	StartedAt     *time.Time
	CompletedAt   *time.Time
}

// CostLedgerEntry is an immutable record of a monetary charge attributed to
// a tenant, pipeline, and stage. Entries are append-only: never mutated,
// never deleted.
type CostLedgerEntry struct {
	ID          int64
	TenantID    uuid.UUID
	PipelineID  uuid.UUID
	Stage       string
	Amount      money.Amount
	Description string
	CreatedAt   time.Time
}
