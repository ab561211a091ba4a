// Package ledger enforces budget ceilings and keeps the append-only audit
// trail of charges. Enforcement is fail-closed: when a check errors or is
// uncertain, the charge is denied.
package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"contentplane/internal/money"
	"contentplane/internal/store"
)

// Decision is the outcome of a budget check.
type Decision struct {
	Allowed bool
	Reason  string
}

// Ledger coordinates the tenant spend counter and the charge audit trail.
type Ledger struct {
	tenants store.TenantStore
	entries store.LedgerStore
}

// New creates a ledger over the given stores.
func New(tenants store.TenantStore, entries store.LedgerStore) *Ledger {
	return &Ledger{tenants: tenants, entries: entries}
}

// Reserve checks whether a proposed charge fits both the run's remaining
// ceiling and the tenant's monthly allowance, and reserves it against the
// tenant counter when it does. The monthly check and the increment are one
// conditional store update, so two concurrent stages cannot both pass the
// check and jointly overspend.
func (l *Ledger) Reserve(ctx context.Context, tenantID uuid.UUID, proposed, ceilingRemaining money.Amount) (*Decision, error) {
	if proposed < 0 {
		return &Decision{Allowed: false, Reason: "negative charge"}, fmt.Errorf("negative charge %s", proposed)
	}
	if proposed > ceilingRemaining {
		return &Decision{
			Allowed: false,
			Reason:  fmt.Sprintf("run ceiling exceeded: %s > %s remaining", proposed, ceilingRemaining),
		}, nil
	}

	ok, err := l.tenants.ReserveSpend(ctx, nil, tenantID, proposed)
	if err != nil {
		// Fail closed.
		return &Decision{Allowed: false, Reason: "budget check failed"}, fmt.Errorf("reserve spend for tenant %s: %w", tenantID, err)
	}
	if !ok {
		return &Decision{Allowed: false, Reason: "monthly budget exceeded"}, nil
	}
	return &Decision{Allowed: true, Reason: "within limits"}, nil
}

// Settle converts a reservation into a recorded charge. It appends the
// immutable ledger entry and adjusts the tenant counter by the difference
// between actual and reserved, all under the caller's transaction so a
// charge is never recorded without its stage outcome (and vice versa).
// Entry.Amount is the actual cost incurred. A cost below the reservation
// releases the surplus; a cost above it takes the same guarded path as a
// reservation, so a settle can never push spend past the monthly budget.
func (l *Ledger) Settle(ctx context.Context, tx store.DBTransaction, entry *store.CostLedgerEntry, reserved money.Amount) error {
	if entry.Amount < 0 {
		return fmt.Errorf("negative charge %s", entry.Amount)
	}
	switch delta := entry.Amount - reserved; {
	case delta > 0:
		ok, err := l.tenants.ReserveSpend(ctx, tx, entry.TenantID, delta)
		if err != nil {
			// Fail closed.
			return fmt.Errorf("reserve settle excess for tenant %s: %w", entry.TenantID, err)
		}
		if !ok {
			return fmt.Errorf("charge %s exceeds reservation %s and the remaining monthly budget", entry.Amount, reserved)
		}
	case delta < 0:
		if err := l.tenants.AdjustSpend(ctx, tx, entry.TenantID, delta); err != nil {
			return fmt.Errorf("adjust spend for tenant %s: %w", entry.TenantID, err)
		}
	}
	if err := l.entries.AppendLedgerEntry(ctx, tx, entry); err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}

// Release returns an unused reservation to the tenant's allowance, for
// stages that failed before incurring any cost.
func (l *Ledger) Release(ctx context.Context, tenantID uuid.UUID, reserved money.Amount) error {
	if reserved == 0 {
		return nil
	}
	if err := l.tenants.AdjustSpend(ctx, nil, tenantID, -reserved); err != nil {
		return fmt.Errorf("release reservation for tenant %s: %w", tenantID, err)
	}
	return nil
}

// Remaining returns the tenant's current monthly headroom.
func (l *Ledger) Remaining(ctx context.Context, tenantID uuid.UUID) (money.Amount, error) {
	t, err := l.tenants.GetTenantByID(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("load tenant %s: %w", tenantID, err)
	}
	return t.MonthlyRemaining(), nil
}
