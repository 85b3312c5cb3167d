package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/vmihailenco/msgpack/v5"

	"trade-analytics-lab/internal/domain"
	"trade-analytics-lab/internal/storage"
)

// PositionStore implements storage.PositionStore using PostgreSQL.
// Entry and exit executions are stored as a msgpack blob alongside the row.
type PositionStore struct {
	pool *Pool
}

// NewPositionStore creates a new PositionStore.
func NewPositionStore(pool *Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PositionStore = (*PositionStore)(nil)

type positionLegs struct {
	Entry []*domain.Execution `msgpack:"entry"`
	Exit  []*domain.Execution `msgpack:"exit"`
}

const selectPositionSQL = `
	SELECT position_id, symbol, portfolio_id, strategy_id, trader_id, direction, status,
		open_quantity, entry_quantity, exit_quantity, avg_entry_price, avg_exit_price,
		realized_pnl, pnl_pct, fees, entry_time, exit_time, holding_days,
		entry_psychology, exit_psychology, behavior_pattern, tags, legs
	FROM positions
`

// Save inserts or replaces a position. The upsert is a no-op on a CLOSED
// row, which is reported as ErrInvalidInput.
func (s *PositionStore) Save(ctx context.Context, p *domain.Position) error {
	return savePosition(ctx, s.pool, p)
}

// savePosition runs the position upsert on q, a pool or a transaction.
func savePosition(ctx context.Context, q execer, p *domain.Position) error {
	if p == nil || p.PositionID == "" || !p.Status.IsValid() {
		return storage.ErrInvalidInput
	}

	legs, err := msgpack.Marshal(positionLegs{Entry: p.EntryExecutions, Exit: p.ExitExecutions})
	if err != nil {
		return fmt.Errorf("encode position legs: %w", err)
	}
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	var exitTime *time.Time
	if p.ExitTime != nil {
		t := p.ExitTime.UTC()
		exitTime = &t
	}

	query := `
		INSERT INTO positions (
			position_id, symbol, portfolio_id, strategy_id, trader_id, direction, status,
			open_quantity, entry_quantity, exit_quantity, avg_entry_price, avg_exit_price,
			realized_pnl, pnl_pct, fees, entry_time, exit_time, holding_days,
			entry_psychology, exit_psychology, behavior_pattern, tags, legs, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18,
			$19, $20, $21, $22, $23, now()
		)
		ON CONFLICT (position_id) DO UPDATE SET
			strategy_id = EXCLUDED.strategy_id,
			trader_id = EXCLUDED.trader_id,
			direction = EXCLUDED.direction,
			status = EXCLUDED.status,
			open_quantity = EXCLUDED.open_quantity,
			entry_quantity = EXCLUDED.entry_quantity,
			exit_quantity = EXCLUDED.exit_quantity,
			avg_entry_price = EXCLUDED.avg_entry_price,
			avg_exit_price = EXCLUDED.avg_exit_price,
			realized_pnl = EXCLUDED.realized_pnl,
			pnl_pct = EXCLUDED.pnl_pct,
			fees = EXCLUDED.fees,
			exit_time = EXCLUDED.exit_time,
			holding_days = EXCLUDED.holding_days,
			entry_psychology = EXCLUDED.entry_psychology,
			exit_psychology = EXCLUDED.exit_psychology,
			behavior_pattern = EXCLUDED.behavior_pattern,
			tags = EXCLUDED.tags,
			legs = EXCLUDED.legs,
			updated_at = now()
		WHERE positions.status <> 'CLOSED'
	`

	start := time.Now()
	tag, err := q.Exec(ctx, query,
		p.PositionID, p.Symbol, p.PortfolioID, p.StrategyID, p.TraderID, string(p.Direction), string(p.Status),
		p.OpenQuantity, p.EntryQuantity, p.ExitQuantity, p.AvgEntryPrice, p.AvgExitPrice,
		p.RealizedPnL, p.PnLPct, p.Fees, p.EntryTime.UTC(), exitTime, p.HoldingDays,
		p.EntryPsychology, p.ExitPsychology, p.BehaviorPattern, tags, legs,
	)
	observe("save_position", start, err)
	if err != nil {
		return fmt.Errorf("save position: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrInvalidInput
	}
	return nil
}

// GetByID retrieves a position. Returns ErrNotFound if not exists.
func (s *PositionStore) GetByID(ctx context.Context, positionID string) (*domain.Position, error) {
	return s.getOne(ctx, "get_position", selectPositionSQL+` WHERE position_id = $1`, positionID)
}

// GetOpen retrieves the non-closed position for key. Returns ErrNotFound if flat.
func (s *PositionStore) GetOpen(ctx context.Context, key domain.PositionKey) (*domain.Position, error) {
	return s.getOne(ctx, "get_open_position",
		selectPositionSQL+` WHERE portfolio_id = $1 AND symbol = $2 AND status <> 'CLOSED'
			ORDER BY entry_time DESC LIMIT 1`,
		key.PortfolioID, key.Symbol)
}

// GetClosedByPortfolio retrieves CLOSED positions ordered by entry_time ASC, position_id ASC.
func (s *PositionStore) GetClosedByPortfolio(ctx context.Context, portfolioID string) ([]*domain.Position, error) {
	return s.getMany(ctx, "get_closed_positions",
		selectPositionSQL+` WHERE portfolio_id = $1 AND status = 'CLOSED'
			ORDER BY entry_time ASC, position_id ASC`,
		portfolioID)
}

// GetClosedByTimeRange retrieves CLOSED positions whose exit time falls in [start, end].
func (s *PositionStore) GetClosedByTimeRange(ctx context.Context, portfolioID string, start, end time.Time) ([]*domain.Position, error) {
	return s.getMany(ctx, "get_closed_positions_by_range",
		selectPositionSQL+` WHERE portfolio_id = $1 AND status = 'CLOSED'
			AND exit_time >= $2 AND exit_time <= $3
			ORDER BY entry_time ASC, position_id ASC`,
		portfolioID, start.UTC(), end.UTC())
}

func (s *PositionStore) getOne(ctx context.Context, op, query string, args ...any) (*domain.Position, error) {
	start := time.Now()
	p, err := scanPosition(s.pool.QueryRow(ctx, query, args...))
	observe(op, start, err)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

func (s *PositionStore) getMany(ctx context.Context, op, query string, args ...any) ([]*domain.Position, error) {
	start := time.Now()
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		observe(op, start, err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []*domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan position row: %w", err)
		}
		out = append(out, p)
	}
	err = rows.Err()
	observe(op, start, err)
	if err != nil {
		return nil, fmt.Errorf("iterate position rows: %w", err)
	}
	return out, nil
}

func scanPosition(row pgx.Row) (*domain.Position, error) {
	var (
		p                 domain.Position
		direction, status string
		legs              []byte
	)
	err := row.Scan(
		&p.PositionID, &p.Symbol, &p.PortfolioID, &p.StrategyID, &p.TraderID, &direction, &status,
		&p.OpenQuantity, &p.EntryQuantity, &p.ExitQuantity, &p.AvgEntryPrice, &p.AvgExitPrice,
		&p.RealizedPnL, &p.PnLPct, &p.Fees, &p.EntryTime, &p.ExitTime, &p.HoldingDays,
		&p.EntryPsychology, &p.ExitPsychology, &p.BehaviorPattern, &p.Tags, &legs,
	)
	if err != nil {
		return nil, err
	}
	p.Direction = domain.Direction(direction)
	p.Status = domain.PositionStatus(status)
	p.EntryTime = p.EntryTime.UTC()
	if p.ExitTime != nil {
		t := p.ExitTime.UTC()
		p.ExitTime = &t
	}

	var l positionLegs
	if len(legs) > 0 {
		if err := msgpack.Unmarshal(legs, &l); err != nil {
			return nil, fmt.Errorf("decode position legs: %w", err)
		}
	}
	for _, e := range append(l.Entry, l.Exit...) {
		e.Timestamp = e.Timestamp.UTC()
	}
	p.EntryExecutions = l.Entry
	p.ExitExecutions = l.Exit
	return &p, nil
}
