package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"contentplane/internal/money"
	"contentplane/internal/store"
)

const pipelineColumns = "id, tenant_id, status, stage_sequence, completed_stages, current_stage, config, estimated_cost, actual_cost, budget_ceiling, error_message, result_ref, created_at, started_at, completed_at"

// CreatePipeline inserts a new pipeline row in the queued state.
// Stage lists are stored as TEXT[] columns.
func (s *Store) CreatePipeline(ctx context.Context, tx store.DBTransaction, p *store.Pipeline) error {
	executor := s.getExecutor(tx)
	query := `
		INSERT INTO pipelines (id, tenant_id, status, stage_sequence, completed_stages, config, estimated_cost, actual_cost, budget_ceiling, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := executor.ExecContext(ctx, query,
		p.ID,
		p.TenantID,
		p.Status,
		pq.Array(p.StageSequence),
		pq.Array(p.CompletedStages),
		[]byte(p.Config),
		p.EstimatedCost,
		p.ActualCost,
		p.BudgetCeiling,
		p.CreatedAt,
	)
	return err
}

func (s *Store) GetPipelineByID(ctx context.Context, id uuid.UUID) (*store.Pipeline, error) {
	query := "SELECT " + pipelineColumns + " FROM pipelines WHERE id = $1"

	var p store.Pipeline
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.TenantID, &p.Status,
		pq.Array(&p.StageSequence), pq.Array(&p.CompletedStages), &p.CurrentStage,
		&p.Config, &p.EstimatedCost, &p.ActualCost, &p.BudgetCeiling,
		&p.ErrorMessage, &p.ResultRef,
		&p.CreatedAt, &p.StartedAt, &p.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListPipelines(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]store.Pipeline, error) {
	query := "SELECT " + pipelineColumns + ` FROM pipelines
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := s.db.QueryContext(ctx, query, tenantID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pipelines []store.Pipeline
	for rows.Next() {
		var p store.Pipeline
		if err := rows.Scan(
			&p.ID, &p.TenantID, &p.Status,
			pq.Array(&p.StageSequence), pq.Array(&p.CompletedStages), &p.CurrentStage,
			&p.Config, &p.EstimatedCost, &p.ActualCost, &p.BudgetCeiling,
			&p.ErrorMessage, &p.ResultRef,
			&p.CreatedAt, &p.StartedAt, &p.CompletedAt,
		); err != nil {
			return nil, err
		}
		pipelines = append(pipelines, p)
	}
	return pipelines, rows.Err()
}

// SetRunning transitions a queued pipeline to running. The queued guard keeps
// a concurrent cancellation from being overwritten.
func (s *Store) SetRunning(ctx context.Context, id uuid.UUID, firstStage string) error {
	query := `
		UPDATE pipelines
		SET status = $1, current_stage = $2, started_at = NOW()
		WHERE id = $3 AND status = $4
	`

	_, err := s.db.ExecContext(ctx, query, store.PipelineStatusRunning, firstStage, id, store.PipelineStatusQueued)
	return err
}

// Advance records one completed stage. With a next stage the pipeline stays
// running; without one the sequence is exhausted and the pipeline completes.
func (s *Store) Advance(ctx context.Context, tx store.DBTransaction, id uuid.UUID, completedStage string, nextStage *string, addCost money.Amount, resultRef *string) error {
	executor := s.getExecutor(tx)

	if nextStage != nil {
		_, err := executor.ExecContext(ctx, `
			UPDATE pipelines
			SET completed_stages = array_append(completed_stages, $1),
			    actual_cost = actual_cost + $2,
			    current_stage = $3
			WHERE id = $4
		`, completedStage, addCost, *nextStage, id)
		return err
	}

	_, err := executor.ExecContext(ctx, `
		UPDATE pipelines
		SET completed_stages = array_append(completed_stages, $1),
		    actual_cost = actual_cost + $2,
		    current_stage = NULL,
		    status = $3,
		    result_ref = $4,
		    completed_at = NOW()
		WHERE id = $5
	`, completedStage, addCost, store.PipelineStatusCompleted, resultRef, id)
	return err
}

// Finalize moves a pipeline to a terminal failed or cancelled state. The
// non-terminal guard makes the transition idempotent under races.
func (s *Store) Finalize(ctx context.Context, tx store.DBTransaction, id uuid.UUID, status store.PipelineStatus, errMsg *string) error {
	executor := s.getExecutor(tx)
	_, err := executor.ExecContext(ctx, `
		UPDATE pipelines
		SET status = $1, error_message = $2, current_stage = NULL, completed_at = NOW()
		WHERE id = $3 AND status NOT IN ($4, $5, $6)
	`, status, errMsg, id,
		store.PipelineStatusCompleted, store.PipelineStatusFailed, store.PipelineStatusCancelled)
	return err
}

func (s *Store) CreateStageExecution(ctx context.Context, tx store.DBTransaction, se *store.StageExecution) error {
	executor := s.getExecutor(tx)
	query := `
		INSERT INTO stage_executions (id, pipeline_id, tenant_id, stage, status, attempt, cost, created_at, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	if se.CreatedAt.IsZero() {
		se.CreatedAt = time.Now().UTC()
	}
	_, err := executor.ExecContext(ctx, query,
		se.ID,
		se.PipelineID,
		se.TenantID,
		se.Stage,
		se.Status,
		se.Attempt,
		se.Cost,
		se.CreatedAt,
		se.StartedAt,
	)
	return err
}

func (s *Store) FinishStageExecution(ctx context.Context, tx store.DBTransaction, id uuid.UUID, status store.StageStatus, cost money.Amount, outputSummary, errMsg *string) error {
	executor := s.getExecutor(tx)
	_, err := executor.ExecContext(ctx, `
		UPDATE stage_executions
		SET status = $1, cost = $2, output_summary = $3, error_message = $4, completed_at = NOW()
		WHERE id = $5
	`, status, cost, outputSummary, errMsg, id)
	return err
}

func (s *Store) ListStageExecutions(ctx context.Context, pipelineID uuid.UUID, limit, offset int) ([]store.StageExecution, error) {
	query := `
		SELECT id, pipeline_id, tenant_id, stage, status, attempt, cost, output_summary, error_message, created_at, started_at, completed_at
		FROM stage_executions
		WHERE pipeline_id = $1
		ORDER BY created_at ASC, attempt ASC
		LIMIT $2 OFFSET $3
	`

	rows, err := s.db.QueryContext(ctx, query, pipelineID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var executions []store.StageExecution
	for rows.Next() {
		var se store.StageExecution
		if err := rows.Scan(
			&se.ID, &se.PipelineID, &se.TenantID, &se.Stage, &se.Status,
			&se.Attempt, &se.Cost, &se.OutputSummary, &se.ErrorMessage,
			&se.CreatedAt, &se.StartedAt, &se.CompletedAt,
		); err != nil {
			return nil, err
		}
		executions = append(executions, se)
	}
	return executions, rows.Err()
}
