package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-analytics-lab/internal/domain"
	"trade-analytics-lab/internal/storage"
)

func ledgerExecution(id string, at time.Time) *domain.Execution {
	return &domain.Execution{
		ExecutionID: id,
		Symbol:      "AAPL",
		Side:        domain.SideBuy,
		Quantity:    decimal.NewFromInt(10),
		Price:       decimal.NewFromInt(100),
		Timestamp:   at,
		PortfolioID: "pf-1",
	}
}

func ledgerPosition(id string, status domain.PositionStatus) *domain.Position {
	return &domain.Position{
		PositionID:  id,
		Symbol:      "AAPL",
		PortfolioID: "pf-1",
		Direction:   domain.DirectionLong,
		Status:      status,
	}
}

func TestLedger_Apply(t *testing.T) {
	ctx := context.Background()
	executions := NewExecutionStore()
	positions := NewPositionStore()
	ledger := NewLedger(executions, positions)

	closed := ledgerPosition("pos-1", domain.StatusClosed)
	opened := ledgerPosition("pos-2", domain.StatusOpen)
	require.NoError(t, ledger.Apply(ctx, []*domain.Execution{ledgerExecution("ex-1", t0)}, []*domain.Position{closed, opened}))

	_, err := executions.GetByID(ctx, "ex-1")
	require.NoError(t, err)
	got, err := positions.GetByID(ctx, "pos-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClosed, got.Status)
	_, err = positions.GetByID(ctx, "pos-2")
	require.NoError(t, err)
}

func TestLedger_ClosedConflictWritesNothing(t *testing.T) {
	ctx := context.Background()
	executions := NewExecutionStore()
	positions := NewPositionStore()
	ledger := NewLedger(executions, positions)

	require.NoError(t, positions.Save(ctx, ledgerPosition("pos-1", domain.StatusClosed)))

	err := ledger.Apply(ctx,
		[]*domain.Execution{ledgerExecution("ex-1", t0)},
		[]*domain.Position{ledgerPosition("pos-2", domain.StatusOpen), ledgerPosition("pos-1", domain.StatusClosed)})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	_, err = executions.GetByID(ctx, "ex-1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = positions.GetByID(ctx, "pos-2")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestLedger_DuplicateExecutionWritesNothing(t *testing.T) {
	ctx := context.Background()
	executions := NewExecutionStore()
	positions := NewPositionStore()
	ledger := NewLedger(executions, positions)

	require.NoError(t, executions.Insert(ctx, ledgerExecution("ex-1", t0)))

	err := ledger.Apply(ctx, []*domain.Execution{ledgerExecution("ex-1", t0)}, []*domain.Position{ledgerPosition("pos-1", domain.StatusOpen)})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
	_, err = positions.GetByID(ctx, "pos-1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = ledger.Apply(ctx, []*domain.Execution{ledgerExecution("ex-2", t0), ledgerExecution("ex-2", t0)}, nil)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey, "repeated id inside one batch")
	_, err = executions.GetByID(ctx, "ex-2")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
