package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"trade-analytics-lab/internal/domain"
	"trade-analytics-lab/internal/storage"
)

// ExecutionStore implements storage.ExecutionStore using PostgreSQL.
type ExecutionStore struct {
	pool *Pool
}

// NewExecutionStore creates a new ExecutionStore.
func NewExecutionStore(pool *Pool) *ExecutionStore {
	return &ExecutionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ExecutionStore = (*ExecutionStore)(nil)

const insertExecutionSQL = `
	INSERT INTO executions (
		execution_id, broker_trade_id, symbol, side, quantity, price, fees,
		executed_at, portfolio_id, strategy_id, trader_id
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
`

const selectExecutionSQL = `
	SELECT execution_id, broker_trade_id, symbol, side, quantity, price, fees,
		executed_at, portfolio_id, strategy_id, trader_id
	FROM executions
`

func executionArgs(e *domain.Execution) []any {
	return []any{
		e.ExecutionID, e.BrokerTradeID, e.Symbol, string(e.Side),
		e.Quantity, e.Price, e.Fees,
		e.Timestamp.UTC(), e.PortfolioID, e.StrategyID, e.TraderID,
	}
}

// Insert adds a new execution. Returns ErrDuplicateKey if execution_id exists.
func (s *ExecutionStore) Insert(ctx context.Context, e *domain.Execution) error {
	start := time.Now()
	_, err := s.pool.Exec(ctx, insertExecutionSQL, executionArgs(e)...)
	observe("insert_execution", start, err)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

// InsertBulk adds multiple executions atomically. Fails entire batch on any duplicate.
func (s *ExecutionStore) InsertBulk(ctx context.Context, executions []*domain.Execution) error {
	if len(executions) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := insertExecutionBatch(ctx, tx, executions); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// insertExecutionBatch queues every insert on tx as one pgx batch.
func insertExecutionBatch(ctx context.Context, tx pgx.Tx, executions []*domain.Execution) error {
	batch := &pgx.Batch{}
	for _, e := range executions {
		if e == nil || e.ExecutionID == "" {
			return storage.ErrInvalidInput
		}
		batch.Queue(insertExecutionSQL, executionArgs(e)...)
	}
	start := time.Now()
	br := tx.SendBatch(ctx, batch)
	for range executions {
		if _, err := br.Exec(); err != nil {
			br.Close()
			observe("insert_executions", start, err)
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert execution in bulk: %w", err)
		}
	}
	err := br.Close()
	observe("insert_executions", start, err)
	if err != nil {
		return fmt.Errorf("close batch: %w", err)
	}
	return nil
}

// GetByID retrieves an execution. Returns ErrNotFound if not exists.
func (s *ExecutionStore) GetByID(ctx context.Context, executionID string) (*domain.Execution, error) {
	start := time.Now()
	row := s.pool.QueryRow(ctx, selectExecutionSQL+` WHERE execution_id = $1`, executionID)

	e, err := scanExecution(row)
	observe("get_execution", start, err)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get execution: %w", err)
	}
	return e, nil
}

// GetByPortfolio retrieves executions ordered by timestamp ASC, execution_id ASC.
func (s *ExecutionStore) GetByPortfolio(ctx context.Context, portfolioID string) ([]*domain.Execution, error) {
	start := time.Now()
	rows, err := s.pool.Query(ctx,
		selectExecutionSQL+` WHERE portfolio_id = $1 ORDER BY executed_at ASC, execution_id ASC`,
		portfolioID)
	if err != nil {
		observe("get_executions_by_portfolio", start, err)
		return nil, fmt.Errorf("get executions by portfolio: %w", err)
	}
	defer rows.Close()

	var out []*domain.Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan execution row: %w", err)
		}
		out = append(out, e)
	}
	err = rows.Err()
	observe("get_executions_by_portfolio", start, err)
	if err != nil {
		return nil, fmt.Errorf("iterate execution rows: %w", err)
	}
	return out, nil
}

func scanExecution(row pgx.Row) (*domain.Execution, error) {
	var (
		e    domain.Execution
		side string
	)
	err := row.Scan(
		&e.ExecutionID, &e.BrokerTradeID, &e.Symbol, &side,
		&e.Quantity, &e.Price, &e.Fees,
		&e.Timestamp, &e.PortfolioID, &e.StrategyID, &e.TraderID,
	)
	if err != nil {
		return nil, err
	}
	e.Side = domain.Side(side)
	e.Timestamp = e.Timestamp.UTC()
	return &e, nil
}
