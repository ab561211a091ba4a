package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"contentplane/internal/money"
	"contentplane/internal/store"
)

// AppendLedgerEntry inserts an immutable charge record. Entries are never
// updated or deleted; corrections are new entries.
func (s *Store) AppendLedgerEntry(ctx context.Context, tx store.DBTransaction, entry *store.CostLedgerEntry) error {
	executor := s.getExecutor(tx)

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	return executor.QueryRowContext(ctx, `
		INSERT INTO cost_ledger (tenant_id, pipeline_id, stage, amount, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, entry.TenantID, entry.PipelineID, entry.Stage, entry.Amount, entry.Description, entry.CreatedAt,
	).Scan(&entry.ID)
}

func (s *Store) ListLedgerEntries(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]store.CostLedgerEntry, error) {
	query := `
		SELECT id, tenant_id, pipeline_id, stage, amount, description, created_at
		FROM cost_ledger
		WHERE tenant_id = $1
		ORDER BY id DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := s.db.QueryContext(ctx, query, tenantID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []store.CostLedgerEntry
	for rows.Next() {
		var e store.CostLedgerEntry
		if err := rows.Scan(&e.ID, &e.TenantID, &e.PipelineID, &e.Stage, &e.Amount, &e.Description, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) SumPipelineLedger(ctx context.Context, pipelineID uuid.UUID) (money.Amount, error) {
	var sum money.Amount
	err := s.db.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(amount), 0) FROM cost_ledger WHERE pipeline_id = $1",
		pipelineID,
	).Scan(&sum)
	return sum, err
}
