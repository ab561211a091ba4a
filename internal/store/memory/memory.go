// Package memory implements the store interfaces in process memory.
// It backs unit tests and the controller's dev mode; production deployments
// use the postgres implementation.
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"contentplane/internal/money"
	"contentplane/internal/store"
)

// Store is a mutex-guarded in-memory implementation of store.Store.
type Store struct {
	mu         sync.Mutex
	tenants    map[uuid.UUID]*store.Tenant
	keyHashes  map[string]uuid.UUID
	pipelines  map[uuid.UUID]*store.Pipeline
	executions []*store.StageExecution
	ledger     []*store.CostLedgerEntry
	nextEntry  int64
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		tenants:   make(map[uuid.UUID]*store.Tenant),
		keyHashes: make(map[string]uuid.UUID),
		pipelines: make(map[uuid.UUID]*store.Pipeline),
		nextEntry: 1,
	}
}

// memTx satisfies store.Tx. The in-memory store applies every mutation
// immediately, so commit and rollback are no-ops.
type memTx struct{}

func (memTx) ExecContext(context.Context, string, ...interface{}) (sql.Result, error) {
	return nil, nil
}
func (memTx) QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error) {
	return nil, nil
}
func (memTx) QueryRowContext(context.Context, string, ...interface{}) *sql.Row { return nil }
func (memTx) Commit() error                                                    { return nil }
func (memTx) Rollback() error                                                  { return nil }

func (s *Store) BeginTx(ctx context.Context) (store.Tx, error) { return memTx{}, nil }

func (s *Store) Ping(ctx context.Context) error { return nil }

// --- TenantStore ---

func (s *Store) CreateTenant(ctx context.Context, tenant *store.Tenant, hashedKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tenants[tenant.ID]; exists {
		return fmt.Errorf("tenant %s already exists", tenant.ID)
	}
	cp := *tenant
	s.tenants[tenant.ID] = &cp
	s.keyHashes[hashedKey] = tenant.ID
	return nil
}

func (s *Store) GetTenantByID(ctx context.Context, id uuid.UUID) (*store.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tenants[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *t
	return &cp, nil
}

func (s *Store) GetTenantByAPIKeyHash(ctx context.Context, hash string) (*store.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.keyHashes[hash]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *s.tenants[id]
	return &cp, nil
}

func (s *Store) ReserveSpend(ctx context.Context, tx store.DBTransaction, tenantID uuid.UUID, amount money.Amount) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tenants[tenantID]
	if !ok {
		return false, sql.ErrNoRows
	}
	if t.MonthlySpend+amount > t.MonthlyBudget {
		return false, nil
	}
	t.MonthlySpend += amount
	return true, nil
}

func (s *Store) AdjustSpend(ctx context.Context, tx store.DBTransaction, tenantID uuid.UUID, delta money.Amount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tenants[tenantID]
	if !ok {
		return sql.ErrNoRows
	}
	t.MonthlySpend += delta
	if t.MonthlySpend < 0 {
		t.MonthlySpend = 0
	}
	return nil
}

// --- PipelineStore ---

func (s *Store) CreatePipeline(ctx context.Context, tx store.DBTransaction, p *store.Pipeline) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.pipelines[p.ID]; exists {
		return fmt.Errorf("pipeline %s already exists", p.ID)
	}
	cp := clonePipeline(p)
	s.pipelines[p.ID] = cp
	return nil
}

func (s *Store) GetPipelineByID(ctx context.Context, id uuid.UUID) (*store.Pipeline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pipelines[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return clonePipeline(p), nil
}

func (s *Store) ListPipelines(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]store.Pipeline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var all []*store.Pipeline
	for _, p := range s.pipelines {
		if p.TenantID == tenantID {
			all = append(all, p)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	var out []store.Pipeline
	for i := offset; i < len(all) && len(out) < limit; i++ {
		out = append(out, *clonePipeline(all[i]))
	}
	return out, nil
}

func (s *Store) SetRunning(ctx context.Context, id uuid.UUID, firstStage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pipelines[id]
	if !ok {
		return sql.ErrNoRows
	}
	if p.Status != store.PipelineStatusQueued {
		return fmt.Errorf("pipeline %s is %s, not queued", id, p.Status)
	}
	now := time.Now().UTC()
	p.Status = store.PipelineStatusRunning
	p.CurrentStage = &firstStage
	p.StartedAt = &now
	return nil
}

func (s *Store) Advance(ctx context.Context, tx store.DBTransaction, id uuid.UUID, completedStage string, nextStage *string, addCost money.Amount, resultRef *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pipelines[id]
	if !ok {
		return sql.ErrNoRows
	}
	p.CompletedStages = append(p.CompletedStages, completedStage)
	p.ActualCost += addCost
	p.CurrentStage = nextStage
	if nextStage == nil {
		now := time.Now().UTC()
		p.Status = store.PipelineStatusCompleted
		p.CompletedAt = &now
		if resultRef != nil {
			p.ResultRef = resultRef
		}
	}
	return nil
}

func (s *Store) Finalize(ctx context.Context, tx store.DBTransaction, id uuid.UUID, status store.PipelineStatus, errMsg *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pipelines[id]
	if !ok {
		return sql.ErrNoRows
	}
	if p.Status.Terminal() {
		return fmt.Errorf("pipeline %s already terminal (%s)", id, p.Status)
	}
	now := time.Now().UTC()
	p.Status = status
	p.CurrentStage = nil
	p.ErrorMessage = errMsg
	p.CompletedAt = &now
	return nil
}

func (s *Store) CreateStageExecution(ctx context.Context, tx store.DBTransaction, se *store.StageExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *se
	s.executions = append(s.executions, &cp)
	return nil
}

func (s *Store) FinishStageExecution(ctx context.Context, tx store.DBTransaction, id uuid.UUID, status store.StageStatus, cost money.Amount, outputSummary, errMsg *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, se := range s.executions {
		if se.ID == id {
			now := time.Now().UTC()
			se.Status = status
			se.Cost = cost
			se.OutputSummary = outputSummary
			se.ErrorMessage = errMsg
			se.CompletedAt = &now
			return nil
		}
	}
	return sql.ErrNoRows
}

func (s *Store) ListStageExecutions(ctx context.Context, pipelineID uuid.UUID, limit, offset int) ([]store.StageExecution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var all []*store.StageExecution
	for _, se := range s.executions {
		if se.PipelineID == pipelineID {
			all = append(all, se)
		}
	}

	var out []store.StageExecution
	for i := offset; i < len(all) && len(out) < limit; i++ {
		out = append(out, *all[i])
	}
	return out, nil
}

// --- LedgerStore ---

func (s *Store) AppendLedgerEntry(ctx context.Context, tx store.DBTransaction, entry *store.CostLedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.ID = s.nextEntry
	s.nextEntry++
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	cp := *entry
	s.ledger = append(s.ledger, &cp)
	return nil
}

func (s *Store) ListLedgerEntries(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]store.CostLedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var all []*store.CostLedgerEntry
	for _, e := range s.ledger {
		if e.TenantID == tenantID {
			all = append(all, e)
		}
	}
	// Newest first, matching the postgres ordering.
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })

	var out []store.CostLedgerEntry
	for i := offset; i < len(all) && len(out) < limit; i++ {
		out = append(out, *all[i])
	}
	return out, nil
}

func (s *Store) SumPipelineLedger(ctx context.Context, pipelineID uuid.UUID) (money.Amount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sum money.Amount
	for _, e := range s.ledger {
		if e.PipelineID == pipelineID {
			sum += e.Amount
		}
	}
	return sum, nil
}

func clonePipeline(p *store.Pipeline) *store.Pipeline {
	cp := *p
	cp.StageSequence = append([]string(nil), p.StageSequence...)
	cp.CompletedStages = append([]string(nil), p.CompletedStages...)
	return &cp
}
