package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"contentplane/internal/store"
)

func TestCreatePipeline_Success(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	p := &store.Pipeline{
		ID:            uuid.New(),
		TenantID:      uuid.New(),
		Status:        store.PipelineStatusQueued,
		StageSequence: []string{"topic_analysis", "generation"},
		Config:        []byte(`{"keywords":["go"]}`),
		EstimatedCost: 3500,
		BudgetCeiling: 10_0000,
		CreatedAt:     time.Now().UTC(),
	}

	mock.ExpectExec(`INSERT INTO pipelines`).
		WithArgs(p.ID, p.TenantID, string(p.Status),
			pq.Array(p.StageSequence), pq.Array(p.CompletedStages), []byte(p.Config),
			p.EstimatedCost, p.ActualCost, p.BudgetCeiling, p.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.CreatePipeline(context.Background(), nil, p); err != nil {
		t.Fatalf("CreatePipeline failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestGetPipelineByID_Success(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	id := uuid.New()
	tenantID := uuid.New()
	currentStage := "generation"

	mock.ExpectQuery(`SELECT (.+) FROM pipelines WHERE id = \$1`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "tenant_id", "status", "stage_sequence", "completed_stages",
			"current_stage", "config", "estimated_cost", "actual_cost", "budget_ceiling",
			"error_message", "result_ref", "created_at", "started_at", "completed_at",
		}).AddRow(
			id, tenantID, "running",
			"{topic_analysis,generation}", "{topic_analysis}",
			currentStage, []byte(`{}`), int64(3500), int64(1500), int64(10_0000),
			nil, nil, time.Now(), time.Now(), nil,
		))

	p, err := s.GetPipelineByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetPipelineByID failed: %v", err)
	}
	if p.Status != store.PipelineStatusRunning {
		t.Errorf("got status %s, want running", p.Status)
	}
	if len(p.StageSequence) != 2 || p.StageSequence[1] != "generation" {
		t.Errorf("got stage sequence %v", p.StageSequence)
	}
	if len(p.CompletedStages) != 1 || p.CompletedStages[0] != "topic_analysis" {
		t.Errorf("got completed stages %v", p.CompletedStages)
	}
	if p.CurrentStage == nil || *p.CurrentStage != "generation" {
		t.Errorf("got current stage %v", p.CurrentStage)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestAdvance_MidSequence(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	id := uuid.New()
	next := "generation"
	mock.ExpectExec(`UPDATE pipelines\s+SET completed_stages = array_append\(completed_stages, \$1\)`).
		WithArgs("topic_analysis", int64(1500), next, id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.Advance(context.Background(), nil, id, "topic_analysis", &next, 1500, nil); err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestAdvance_FinalStageCompletes(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	id := uuid.New()
	ref := "s3://content/post-42.md"
	mock.ExpectExec(`UPDATE pipelines\s+SET completed_stages = array_append\(completed_stages, \$1\),\s+actual_cost = actual_cost \+ \$2,\s+current_stage = NULL,\s+status = \$3`).
		WithArgs("publish", int64(100), string(store.PipelineStatusCompleted), &ref, id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.Advance(context.Background(), nil, id, "publish", nil, 100, &ref); err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestFinalize_GuardsTerminalStates(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	id := uuid.New()
	msg := "budget exceeded"
	mock.ExpectExec(`UPDATE pipelines\s+SET status = \$1, error_message = \$2, current_stage = NULL, completed_at = NOW\(\)\s+WHERE id = \$3 AND status NOT IN`).
		WithArgs(string(store.PipelineStatusFailed), &msg, id,
			string(store.PipelineStatusCompleted), string(store.PipelineStatusFailed), string(store.PipelineStatusCancelled)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.Finalize(context.Background(), nil, id, store.PipelineStatusFailed, &msg); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestListStageExecutions_Success(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	pipelineID := uuid.New()
	tenantID := uuid.New()
	mock.ExpectQuery(`SELECT (.+) FROM stage_executions\s+WHERE pipeline_id = \$1`).
		WithArgs(pipelineID, 50, 0).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "pipeline_id", "tenant_id", "stage", "status", "attempt",
			"cost", "output_summary", "error_message", "created_at", "started_at", "completed_at",
		}).
			AddRow(uuid.New(), pipelineID, tenantID, "generation", "failed", 1, int64(0), nil, "upstream 503", time.Now(), time.Now(), time.Now()).
			AddRow(uuid.New(), pipelineID, tenantID, "generation", "succeeded", 2, int64(2000), "1200 words", nil, time.Now(), time.Now(), time.Now()))

	execs, err := s.ListStageExecutions(context.Background(), pipelineID, 50, 0)
	if err != nil {
		t.Fatalf("ListStageExecutions failed: %v", err)
	}
	if len(execs) != 2 {
		t.Fatalf("got %d rows, want 2", len(execs))
	}
	if execs[0].Status != store.StageStatusFailed || execs[0].Attempt != 1 {
		t.Errorf("first row = %+v, want failed attempt 1", execs[0])
	}
	if execs[1].Status != store.StageStatusSucceeded || execs[1].Cost != 2000 {
		t.Errorf("second row = %+v, want succeeded with cost 2000", execs[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
