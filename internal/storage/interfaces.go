package storage

import (
	"context"
	"time"

	"trade-analytics-lab/internal/domain"
)

// ExecutionStore records every ingested execution. Append-only; used to drop
// redeliveries from at-least-once feeds.
type ExecutionStore interface {
	// Insert adds a new execution. Returns ErrDuplicateKey if execution_id exists.
	Insert(ctx context.Context, e *domain.Execution) error

	// InsertBulk adds multiple executions atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, executions []*domain.Execution) error

	// GetByID retrieves an execution. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, executionID string) (*domain.Execution, error)

	// GetByPortfolio retrieves executions for a portfolio ordered by timestamp ASC, execution_id ASC.
	GetByPortfolio(ctx context.Context, portfolioID string) ([]*domain.Execution, error)
}

// PositionStore persists positions. Positions are upserted while OPEN or
// PARTIALLY_CLOSED; a CLOSED position is never updated again.
type PositionStore interface {
	// Save inserts or replaces a position by position_id.
	// Returns ErrInvalidInput when overwriting a CLOSED position.
	Save(ctx context.Context, p *domain.Position) error

	// GetByID retrieves a position. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, positionID string) (*domain.Position, error)

	// GetOpen retrieves the non-closed position for a key. Returns ErrNotFound if flat.
	GetOpen(ctx context.Context, key domain.PositionKey) (*domain.Position, error)

	// GetClosedByPortfolio retrieves CLOSED positions ordered by entry_time ASC, position_id ASC.
	GetClosedByPortfolio(ctx context.Context, portfolioID string) ([]*domain.Position, error)

	// GetClosedByTimeRange retrieves CLOSED positions whose exit time falls in [start, end].
	GetClosedByTimeRange(ctx context.Context, portfolioID string, start, end time.Time) ([]*domain.Position, error)
}

// ReplayStore persists trade replays.
type ReplayStore interface {
	// Save persists a replay and returns its id. Returns ErrDuplicateKey if replay_id exists.
	Save(ctx context.Context, r *domain.Replay) (string, error)

	// FindByID retrieves a replay. Returns ErrNotFound if not exists.
	FindByID(ctx context.Context, replayID string) (*domain.Replay, error)

	// FindBySymbol retrieves replays for a symbol ordered by entry_date ASC, replay_id ASC.
	FindBySymbol(ctx context.Context, symbol string) ([]*domain.Replay, error)

	// FindByDateRange retrieves replays whose entry date falls in [start, end].
	FindByDateRange(ctx context.Context, start, end time.Time) ([]*domain.Replay, error)

	// FindByPortfolioID retrieves replays for a portfolio.
	FindByPortfolioID(ctx context.Context, portfolioID string) ([]*domain.Replay, error)

	// FindByStrategyID retrieves replays for a strategy.
	FindByStrategyID(ctx context.Context, strategyID string) ([]*domain.Replay, error)

	// DeleteByID removes a replay. Returns false if it did not exist.
	DeleteByID(ctx context.Context, replayID string) (bool, error)

	// AppendNote appends a note to a replay. Returns ErrNotFound if not exists.
	AppendNote(ctx context.Context, replayID, note string) error
}

// PriceBarStore caches historical bars per (symbol, interval).
type PriceBarStore interface {
	// InsertBulk adds bars atomically. Returns ErrDuplicateKey if any (symbol, interval, time) exists.
	InsertBulk(ctx context.Context, symbol string, interval domain.BarInterval, bars []domain.PriceBar) error

	// GetByTimeRange retrieves bars within [start, end] ordered by time ASC.
	GetByTimeRange(ctx context.Context, symbol string, interval domain.BarInterval, start, end time.Time) ([]domain.PriceBar, error)
}

// AggregateStore persists computed statistics snapshots. Append-only.
type AggregateStore interface {
	// Insert adds a snapshot. Returns ErrDuplicateKey if (scope, computed_at) exists.
	Insert(ctx context.Context, s *domain.AggregateStatistics) error

	// GetLatest returns the most recent snapshot for a scope. Returns ErrNotFound if none.
	GetLatest(ctx context.Context, scope string) (*domain.AggregateStatistics, error)

	// GetHistory returns all snapshots for a scope ordered by computed_at ASC.
	GetHistory(ctx context.Context, scope string) ([]*domain.AggregateStatistics, error)
}

// Ledger applies executions and the positions they changed as one unit:
// either every execution is recorded and every position saved, or nothing
// is written.
type Ledger interface {
	// Apply records executions and saves positions in order (a flip lists the
	// closed position before the new one). Returns ErrDuplicateKey if any
	// execution_id exists and ErrInvalidInput if a position would overwrite a
	// CLOSED row.
	Apply(ctx context.Context, executions []*domain.Execution, positions []*domain.Position) error
}
