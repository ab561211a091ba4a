package postgres

import (
	"context"

	"github.com/google/uuid"

	"contentplane/internal/money"
	"contentplane/internal/store"
)

const tenantColumns = "id, name, monthly_budget, monthly_spend, max_concurrent, rate_limit, rate_limit_burst, created_at"

func (s *Store) CreateTenant(ctx context.Context, tenant *store.Tenant, hashedKey string) error {
	query := `
		INSERT INTO tenants (id, name, api_key_hash, monthly_budget, monthly_spend, max_concurrent, rate_limit, rate_limit_burst, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.db.ExecContext(ctx, query,
		tenant.ID,
		tenant.Name,
		hashedKey,
		tenant.MonthlyBudget,
		tenant.MonthlySpend,
		tenant.MaxConcurrent,
		tenant.RateLimit,
		tenant.RateLimitBurst,
		tenant.CreatedAt,
	)
	return err
}

func (s *Store) GetTenantByID(ctx context.Context, id uuid.UUID) (*store.Tenant, error) {
	query := "SELECT " + tenantColumns + " FROM tenants WHERE id = $1"
	return s.scanTenant(s.db.QueryRowContext(ctx, query, id))
}

func (s *Store) GetTenantByAPIKeyHash(ctx context.Context, hash string) (*store.Tenant, error) {
	query := "SELECT " + tenantColumns + " FROM tenants WHERE api_key_hash = $1"
	return s.scanTenant(s.db.QueryRowContext(ctx, query, hash))
}

func (s *Store) scanTenant(row interface{ Scan(...interface{}) error }) (*store.Tenant, error) {
	var t store.Tenant
	err := row.Scan(
		&t.ID,
		&t.Name,
		&t.MonthlyBudget,
		&t.MonthlySpend,
		&t.MaxConcurrent,
		&t.RateLimit,
		&t.RateLimitBurst,
		&t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ReserveSpend increments monthly_spend by amount only when the result stays
// within monthly_budget. The condition and the increment are one statement,
// so concurrent reservations serialize on the row and cannot jointly
// overspend.
func (s *Store) ReserveSpend(ctx context.Context, tx store.DBTransaction, tenantID uuid.UUID, amount money.Amount) (bool, error) {
	query := `
		UPDATE tenants
		SET monthly_spend = monthly_spend + $1
		WHERE id = $2 AND monthly_spend + $1 <= monthly_budget
	`

	res, err := s.getExecutor(tx).ExecContext(ctx, query, amount, tenantID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// AdjustSpend applies a signed delta to monthly_spend, clamped at zero.
func (s *Store) AdjustSpend(ctx context.Context, tx store.DBTransaction, tenantID uuid.UUID, delta money.Amount) error {
	executor := s.getExecutor(tx)
	_, err := executor.ExecContext(ctx, `
		UPDATE tenants
		SET monthly_spend = GREATEST(monthly_spend + $1, 0)
		WHERE id = $2
	`, delta, tenantID)
	return err
}
