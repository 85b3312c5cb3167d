package postgres

import (
	"context"
	"fmt"

	"trade-analytics-lab/internal/domain"
	"trade-analytics-lab/internal/storage"
)

// Ledger implements storage.Ledger with one transaction per Apply.
type Ledger struct {
	pool *Pool
}

// NewLedger creates a new Postgres ledger.
func NewLedger(pool *Pool) *Ledger {
	return &Ledger{pool: pool}
}

// Compile-time interface check.
var _ storage.Ledger = (*Ledger)(nil)

// Apply inserts executions then upserts positions inside one transaction.
// Any failure rolls the whole unit back.
func (l *Ledger) Apply(ctx context.Context, executions []*domain.Execution, positions []*domain.Position) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if len(executions) > 0 {
		if err := insertExecutionBatch(ctx, tx, executions); err != nil {
			return err
		}
	}
	for _, p := range positions {
		if err := savePosition(ctx, tx, p); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
