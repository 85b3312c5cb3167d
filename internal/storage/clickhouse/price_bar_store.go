package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"trade-analytics-lab/internal/domain"
	"trade-analytics-lab/internal/storage"
)

// PriceBarStore implements storage.PriceBarStore using ClickHouse.
type PriceBarStore struct {
	conn *Conn
}

// NewPriceBarStore creates a new PriceBarStore.
func NewPriceBarStore(conn *Conn) *PriceBarStore {
	return &PriceBarStore{conn: conn}
}

// Compile-time interface check.
var _ storage.PriceBarStore = (*PriceBarStore)(nil)

// InsertBulk adds bars atomically. Fails the entire batch on a malformed bar
// or on any (symbol, interval, time) already present in the batch or table.
func (s *PriceBarStore) InsertBulk(ctx context.Context, symbol string, interval domain.BarInterval, bars []domain.PriceBar) error {
	if len(bars) == 0 {
		return nil
	}
	if symbol == "" || !interval.IsValid() {
		return storage.ErrInvalidInput
	}

	times := make([]time.Time, len(bars))
	seen := make(map[int64]struct{}, len(bars))
	minTS, maxTS := time.Time{}, time.Time{}
	for i, b := range bars {
		ts, err := b.Time()
		if err != nil {
			return fmt.Errorf("bar %d: %w", i, storage.ErrInvalidInput)
		}
		ms := ts.UnixMilli()
		if _, dup := seen[ms]; dup {
			return storage.ErrDuplicateKey
		}
		seen[ms] = struct{}{}
		times[i] = ts
		if minTS.IsZero() || ts.Before(minTS) {
			minTS = ts
		}
		if ts.After(maxTS) {
			maxTS = ts
		}
	}

	existing, err := s.existingTimes(ctx, symbol, interval, minTS, maxTS)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	for ms := range seen {
		if _, ok := existing[ms]; ok {
			return storage.ErrDuplicateKey
		}
	}

	start := time.Now()
	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO price_bars (symbol, bar_interval, ts, open, high, low, close, volume)
	`)
	if err != nil {
		observe("insert_price_bars", start, err)
		return fmt.Errorf("prepare batch: %w", err)
	}
	for i, b := range bars {
		if err := batch.Append(symbol, string(interval), times[i], b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			observe("insert_price_bars", start, err)
			return fmt.Errorf("append to batch: %w", err)
		}
	}
	err = batch.Send()
	observe("insert_price_bars", start, err)
	if err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByTimeRange retrieves bars within [start, end] ordered by time ASC.
func (s *PriceBarStore) GetByTimeRange(ctx context.Context, symbol string, interval domain.BarInterval, from, to time.Time) ([]domain.PriceBar, error) {
	query := `
		SELECT ts, open, high, low, close, volume
		FROM price_bars FINAL
		WHERE symbol = ? AND bar_interval = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC
	`

	start := time.Now()
	rows, err := s.conn.Query(ctx, query, symbol, string(interval), from.UTC(), to.UTC())
	if err != nil {
		observe("get_price_bars", start, err)
		return nil, fmt.Errorf("query price bars: %w", err)
	}
	defer rows.Close()

	bars, err := scanPriceBars(rows)
	observe("get_price_bars", start, err)
	return bars, err
}

func (s *PriceBarStore) existingTimes(ctx context.Context, symbol string, interval domain.BarInterval, from, to time.Time) (map[int64]struct{}, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT ts FROM price_bars FINAL
		WHERE symbol = ? AND bar_interval = ? AND ts >= ? AND ts <= ?
	`, symbol, string(interval), from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]struct{})
	for rows.Next() {
		var ts time.Time
		if err := rows.Scan(&ts); err != nil {
			return nil, err
		}
		out[ts.UnixMilli()] = struct{}{}
	}
	return out, rows.Err()
}

func scanPriceBars(rows chRows) ([]domain.PriceBar, error) {
	var bars []domain.PriceBar
	for rows.Next() {
		var (
			ts                              time.Time
			open, high, low, closeP, volume decimal.Decimal
		)
		if err := rows.Scan(&ts, &open, &high, &low, &closeP, &volume); err != nil {
			return nil, fmt.Errorf("scan price bar row: %w", err)
		}
		bars = append(bars, domain.NewPriceBar(ts, open, high, low, closeP, volume))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price bar rows: %w", err)
	}
	return bars, nil
}
