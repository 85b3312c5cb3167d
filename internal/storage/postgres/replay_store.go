package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/vmihailenco/msgpack/v5"

	"trade-analytics-lab/internal/domain"
	"trade-analytics-lab/internal/storage"
)

// ReplayStore implements storage.ReplayStore using PostgreSQL. The point
// series is msgpack-encoded into a bytea column.
type ReplayStore struct {
	pool *Pool
}

// NewReplayStore creates a new ReplayStore.
func NewReplayStore(pool *Pool) *ReplayStore {
	return &ReplayStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ReplayStore = (*ReplayStore)(nil)

const selectReplaySQL = `
	SELECT replay_id, position_id, user_id, portfolio_id, strategy_id, symbol, direction, bar_interval,
		quantity, entry_price, exit_price, entry_date, exit_date,
		profit_loss, profit_loss_pct, max_drawdown, max_drawdown_pct, max_run_up, max_run_up_pct,
		volatility, avg_daily_movement, points, notes, created_at
	FROM replays
`

// Save persists r, assigning a replay_id when empty.
func (s *ReplayStore) Save(ctx context.Context, r *domain.Replay) (string, error) {
	if r == nil || r.PositionID == "" {
		return "", storage.ErrInvalidInput
	}

	id := r.ReplayID
	if id == "" {
		id = uuid.NewString()
	}
	points, err := msgpack.Marshal(r.Points)
	if err != nil {
		return "", fmt.Errorf("encode replay points: %w", err)
	}
	notes := r.Notes
	if notes == nil {
		notes = []string{}
	}
	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `
		INSERT INTO replays (
			replay_id, position_id, user_id, portfolio_id, strategy_id, symbol, direction, bar_interval,
			quantity, entry_price, exit_price, entry_date, exit_date,
			profit_loss, profit_loss_pct, max_drawdown, max_drawdown_pct, max_run_up, max_run_up_pct,
			volatility, avg_daily_movement, points, notes, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8,
			$9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18, $19,
			$20, $21, $22, $23, $24
		)
	`

	start := time.Now()
	_, err = s.pool.Exec(ctx, query,
		id, r.PositionID, r.UserID, r.PortfolioID, r.StrategyID, r.Symbol, string(r.Direction), string(r.Interval),
		r.Quantity, r.EntryPrice, r.ExitPrice, r.EntryDate.UTC(), r.ExitDate.UTC(),
		r.ProfitLoss, r.ProfitLossPct, r.MaxDrawdown, r.MaxDrawdownPct, r.MaxRunUp, r.MaxRunUpPct,
		r.Volatility, r.AvgDailyMovement, points, notes, createdAt.UTC(),
	)
	observe("save_replay", start, err)
	if err != nil {
		if isDuplicateKeyError(err) {
			return "", storage.ErrDuplicateKey
		}
		return "", fmt.Errorf("save replay: %w", err)
	}
	return id, nil
}

// FindByID retrieves a replay. Returns ErrNotFound if not exists.
func (s *ReplayStore) FindByID(ctx context.Context, replayID string) (*domain.Replay, error) {
	start := time.Now()
	r, err := scanReplay(s.pool.QueryRow(ctx, selectReplaySQL+` WHERE replay_id = $1`, replayID))
	observe("find_replay", start, err)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("find replay: %w", err)
	}
	return r, nil
}

// FindBySymbol retrieves replays for a symbol.
func (s *ReplayStore) FindBySymbol(ctx context.Context, symbol string) ([]*domain.Replay, error) {
	return s.find(ctx, "find_replays_by_symbol", `WHERE symbol = $1`, symbol)
}

// FindByDateRange retrieves replays whose entry date falls in [start, end].
func (s *ReplayStore) FindByDateRange(ctx context.Context, start, end time.Time) ([]*domain.Replay, error) {
	return s.find(ctx, "find_replays_by_range", `WHERE entry_date >= $1 AND entry_date <= $2`, start.UTC(), end.UTC())
}

// FindByPortfolioID retrieves replays for a portfolio.
func (s *ReplayStore) FindByPortfolioID(ctx context.Context, portfolioID string) ([]*domain.Replay, error) {
	return s.find(ctx, "find_replays_by_portfolio", `WHERE portfolio_id = $1`, portfolioID)
}

// FindByStrategyID retrieves replays for a strategy.
func (s *ReplayStore) FindByStrategyID(ctx context.Context, strategyID string) ([]*domain.Replay, error) {
	return s.find(ctx, "find_replays_by_strategy", `WHERE strategy_id = $1`, strategyID)
}

// DeleteByID removes a replay. Returns false if it did not exist.
func (s *ReplayStore) DeleteByID(ctx context.Context, replayID string) (bool, error) {
	start := time.Now()
	tag, err := s.pool.Exec(ctx, `DELETE FROM replays WHERE replay_id = $1`, replayID)
	observe("delete_replay", start, err)
	if err != nil {
		return false, fmt.Errorf("delete replay: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// AppendNote appends a note to a replay. Returns ErrNotFound if not exists.
func (s *ReplayStore) AppendNote(ctx context.Context, replayID, note string) error {
	if note == "" {
		return storage.ErrInvalidInput
	}

	start := time.Now()
	tag, err := s.pool.Exec(ctx,
		`UPDATE replays SET notes = array_append(notes, $2) WHERE replay_id = $1`,
		replayID, note)
	observe("append_replay_note", start, err)
	if err != nil {
		return fmt.Errorf("append replay note: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *ReplayStore) find(ctx context.Context, op, where string, args ...any) ([]*domain.Replay, error) {
	start := time.Now()
	rows, err := s.pool.Query(ctx, selectReplaySQL+where+` ORDER BY entry_date ASC, replay_id ASC`, args...)
	if err != nil {
		observe(op, start, err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []*domain.Replay
	for rows.Next() {
		r, err := scanReplay(rows)
		if err != nil {
			return nil, fmt.Errorf("scan replay row: %w", err)
		}
		out = append(out, r)
	}
	err = rows.Err()
	observe(op, start, err)
	if err != nil {
		return nil, fmt.Errorf("iterate replay rows: %w", err)
	}
	return out, nil
}

func scanReplay(row pgx.Row) (*domain.Replay, error) {
	var (
		r                   domain.Replay
		direction, interval string
		points              []byte
	)
	err := row.Scan(
		&r.ReplayID, &r.PositionID, &r.UserID, &r.PortfolioID, &r.StrategyID, &r.Symbol, &direction, &interval,
		&r.Quantity, &r.EntryPrice, &r.ExitPrice, &r.EntryDate, &r.ExitDate,
		&r.ProfitLoss, &r.ProfitLossPct, &r.MaxDrawdown, &r.MaxDrawdownPct, &r.MaxRunUp, &r.MaxRunUpPct,
		&r.Volatility, &r.AvgDailyMovement, &points, &r.Notes, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Direction = domain.Direction(direction)
	r.Interval = domain.BarInterval(interval)
	r.EntryDate = r.EntryDate.UTC()
	r.ExitDate = r.ExitDate.UTC()
	r.CreatedAt = r.CreatedAt.UTC()

	if len(points) > 0 {
		if err := msgpack.Unmarshal(points, &r.Points); err != nil {
			return nil, fmt.Errorf("decode replay points: %w", err)
		}
	}
	for i := range r.Points {
		r.Points[i].Time = r.Points[i].Time.UTC()
	}
	return &r, nil
}
