package memory

import (
	"context"

	"trade-analytics-lab/internal/domain"
	"trade-analytics-lab/internal/storage"
)

// Ledger implements storage.Ledger over an ExecutionStore and a
// PositionStore by holding both locks for the whole write. Locks are taken
// executions first, positions second.
type Ledger struct {
	executions *ExecutionStore
	positions  *PositionStore
}

// NewLedger creates a Ledger writing into executions and positions.
func NewLedger(executions *ExecutionStore, positions *PositionStore) *Ledger {
	return &Ledger{executions: executions, positions: positions}
}

// Compile-time interface check.
var _ storage.Ledger = (*Ledger)(nil)

// Apply validates every write before making any of them.
func (l *Ledger) Apply(_ context.Context, executions []*domain.Execution, positions []*domain.Position) error {
	l.executions.mu.Lock()
	defer l.executions.mu.Unlock()
	l.positions.mu.Lock()
	defer l.positions.mu.Unlock()

	if err := l.executions.checkLocked(executions); err != nil {
		return err
	}
	for _, p := range positions {
		if err := l.positions.checkLocked(p); err != nil {
			return err
		}
	}

	l.executions.putLocked(executions)
	for _, p := range positions {
		l.positions.data[p.PositionID] = p.Clone()
	}
	return nil
}
