package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"contentplane/internal/money"
)

// DBTransaction defines the methods shared by *sql.DB and *sql.Tx.
// This allows us to pass either a connection pool or an active transaction
// to the repository methods.
type DBTransaction interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type Tx interface {
	DBTransaction
	Commit() error
	Rollback() error
}

// TenantStore handles tenant records, including the spend counter that backs
// budget enforcement.
type TenantStore interface {
	// CreateTenant inserts a new tenant to the database.
	CreateTenant(ctx context.Context, tenant *Tenant, hashedKey string) error

	// GetTenantByID returns a tenant by its ID.
	GetTenantByID(ctx context.Context, id uuid.UUID) (*Tenant, error)

	// GetTenantByAPIKeyHash returns a tenant by its API key hash.
	GetTenantByAPIKeyHash(ctx context.Context, hash string) (*Tenant, error)

	// ReserveSpend atomically increments the tenant's monthly spend by amount
	// iff the result stays within the monthly budget. Returns false when the
	// increment was rejected. The check and the increment are a single
	// conditional update so two concurrent stages cannot jointly overspend.
	ReserveSpend(ctx context.Context, tx DBTransaction, tenantID uuid.UUID, amount money.Amount) (bool, error)

	// AdjustSpend applies a signed delta to the tenant's monthly spend
	// unconditionally. Used to release a reservation, in full or down to the
	// actual cost. Increases that must respect the budget go through
	// ReserveSpend instead.
	AdjustSpend(ctx context.Context, tx DBTransaction, tenantID uuid.UUID, delta money.Amount) error
}

// PipelineStore handles the persistence of pipelines and their stage
// execution history.
type PipelineStore interface {
	// CreatePipeline inserts a new pipeline in the queued state.
	CreatePipeline(ctx context.Context, tx DBTransaction, p *Pipeline) error

	// GetPipelineByID returns a pipeline by its ID.
	GetPipelineByID(ctx context.Context, id uuid.UUID) (*Pipeline, error)

	// ListPipelines returns a tenant's pipelines, newest first.
	ListPipelines(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]Pipeline, error)

	// SetRunning transitions a queued pipeline to running and records the
	// first stage and start time.
	SetRunning(ctx context.Context, id uuid.UUID, firstStage string) error

	// Advance appends completedStage to the completed prefix, adds addCost to
	// the accumulated actual cost, and moves current_stage to nextStage.
	// A nil nextStage means the sequence is exhausted: the pipeline becomes
	// completed and resultRef, if non-nil, is recorded.
	Advance(ctx context.Context, tx DBTransaction, id uuid.UUID, completedStage string, nextStage *string, addCost money.Amount, resultRef *string) error

	// Finalize moves a pipeline to a terminal failed or cancelled state.
	// Already-completed stages are preserved.
	Finalize(ctx context.Context, tx DBTransaction, id uuid.UUID, status PipelineStatus, errMsg *string) error

	// CreateStageExecution inserts a new stage attempt row.
	CreateStageExecution(ctx context.Context, tx DBTransaction, se *StageExecution) error

	// FinishStageExecution records the outcome of a stage attempt.
	FinishStageExecution(ctx context.Context, tx DBTransaction, id uuid.UUID, status StageStatus, cost money.Amount, outputSummary, errMsg *string) error

	// ListStageExecutions returns a pipeline's attempts in execution order.
	ListStageExecutions(ctx context.Context, pipelineID uuid.UUID, limit, offset int) ([]StageExecution, error)
}

// LedgerStore is the append-only audit trail of charges.
type LedgerStore interface {
	// AppendLedgerEntry inserts an immutable charge record and fills in its ID.
	AppendLedgerEntry(ctx context.Context, tx DBTransaction, entry *CostLedgerEntry) error

	// ListLedgerEntries returns a tenant's charges, newest first.
	ListLedgerEntries(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]CostLedgerEntry, error)

	// SumPipelineLedger returns the sum of all charges for one pipeline.
	SumPipelineLedger(ctx context.Context, pipelineID uuid.UUID) (money.Amount, error)
}

// Store combines everything the controller and engine need, plus transaction
// and health primitives.
type Store interface {
	BeginTx(ctx context.Context) (Tx, error)
	Ping(ctx context.Context) error
	TenantStore
	PipelineStore
	LedgerStore
}
