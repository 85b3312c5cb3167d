package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"trade-analytics-lab/internal/domain"
	"trade-analytics-lab/internal/storage"
)

// AggregateStore implements storage.AggregateStore using ClickHouse.
// Headline figures get their own columns for ad-hoc queries; the full
// snapshot round-trips through a msgpack payload.
type AggregateStore struct {
	conn *Conn
}

// NewAggregateStore creates a new AggregateStore.
func NewAggregateStore(conn *Conn) *AggregateStore {
	return &AggregateStore{conn: conn}
}

// Compile-time interface check.
var _ storage.AggregateStore = (*AggregateStore)(nil)

// Insert adds a snapshot. Returns ErrDuplicateKey if (scope, computed_at) exists.
func (s *AggregateStore) Insert(ctx context.Context, a *domain.AggregateStatistics) error {
	if a == nil || a.Scope == "" || a.ComputedAt.IsZero() {
		return storage.ErrInvalidInput
	}

	// ReplacingMergeTree would silently replace; keep append-only semantics.
	exists, err := s.exists(ctx, a.Scope, a.ComputedAt)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	payload, err := msgpack.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode aggregate: %w", err)
	}

	query := `
		INSERT INTO aggregate_statistics (
			scope, computed_at, total_trades, win_rate, net_pnl, profit_factor,
			max_drawdown, sharpe_ratio, payload
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	start := time.Now()
	err = s.conn.Exec(ctx, query,
		a.Scope, a.ComputedAt.UTC(), uint32(a.TotalTrades), a.WinRate, a.NetPnL, a.ProfitFactor,
		a.MaxDrawdown, a.SharpeRatio, string(payload),
	)
	observe("insert_aggregate", start, err)
	if err != nil {
		return fmt.Errorf("insert aggregate: %w", err)
	}
	return nil
}

// GetLatest returns the most recent snapshot for a scope. Returns ErrNotFound if none.
func (s *AggregateStore) GetLatest(ctx context.Context, scope string) (*domain.AggregateStatistics, error) {
	query := `
		SELECT payload FROM aggregate_statistics FINAL
		WHERE scope = ?
		ORDER BY computed_at DESC
		LIMIT 1
	`

	start := time.Now()
	rows, err := s.conn.Query(ctx, query, scope)
	if err != nil {
		observe("get_latest_aggregate", start, err)
		return nil, fmt.Errorf("query latest aggregate: %w", err)
	}
	defer rows.Close()

	out, err := scanAggregates(rows)
	observe("get_latest_aggregate", start, err)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, storage.ErrNotFound
	}
	return out[0], nil
}

// GetHistory returns all snapshots for a scope ordered by computed_at ASC.
func (s *AggregateStore) GetHistory(ctx context.Context, scope string) ([]*domain.AggregateStatistics, error) {
	query := `
		SELECT payload FROM aggregate_statistics FINAL
		WHERE scope = ?
		ORDER BY computed_at ASC
	`

	start := time.Now()
	rows, err := s.conn.Query(ctx, query, scope)
	if err != nil {
		observe("get_aggregate_history", start, err)
		return nil, fmt.Errorf("query aggregate history: %w", err)
	}
	defer rows.Close()

	out, err := scanAggregates(rows)
	observe("get_aggregate_history", start, err)
	return out, err
}

func (s *AggregateStore) exists(ctx context.Context, scope string, computedAt time.Time) (bool, error) {
	query := `
		SELECT count(*) FROM aggregate_statistics FINAL
		WHERE scope = ? AND computed_at = ?
	`

	var count uint64
	if err := s.conn.QueryRow(ctx, query, scope, computedAt.UTC()).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func scanAggregates(rows chRows) ([]*domain.AggregateStatistics, error) {
	var out []*domain.AggregateStatistics
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan aggregate row: %w", err)
		}
		var a domain.AggregateStatistics
		if err := msgpack.Unmarshal([]byte(payload), &a); err != nil {
			return nil, fmt.Errorf("decode aggregate: %w", err)
		}
		a.ComputedAt = a.ComputedAt.UTC()
		a.FirstEntry = a.FirstEntry.UTC()
		a.LastExit = a.LastExit.UTC()
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate aggregate rows: %w", err)
	}
	return out, nil
}
