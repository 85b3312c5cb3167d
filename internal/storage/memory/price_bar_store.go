package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"trade-analytics-lab/internal/domain"
	"trade-analytics-lab/internal/storage"
)

type barSeriesKey struct {
	symbol   string
	interval domain.BarInterval
}

type storedBar struct {
	ts  time.Time
	bar domain.PriceBar
}

// PriceBarStore is an in-memory implementation of storage.PriceBarStore.
type PriceBarStore struct {
	mu   sync.RWMutex
	data map[barSeriesKey]map[int64]storedBar // keyed by unix ms
}

// NewPriceBarStore creates a new in-memory price bar store.
func NewPriceBarStore() *PriceBarStore {
	return &PriceBarStore{
		data: make(map[barSeriesKey]map[int64]storedBar),
	}
}

// Compile-time interface check.
var _ storage.PriceBarStore = (*PriceBarStore)(nil)

// InsertBulk adds bars atomically. Bars with malformed dates are rejected.
func (s *PriceBarStore) InsertBulk(_ context.Context, symbol string, interval domain.BarInterval, bars []domain.PriceBar) error {
	if len(bars) == 0 {
		return nil
	}
	if symbol == "" || !interval.IsValid() {
		return storage.ErrInvalidInput
	}

	key := barSeriesKey{symbol: symbol, interval: interval}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.data[key]
	batch := make(map[int64]storedBar, len(bars))
	for _, b := range bars {
		ts, err := b.Time()
		if err != nil {
			return storage.ErrInvalidInput
		}
		ms := ts.UnixMilli()
		if _, ok := existing[ms]; ok {
			return storage.ErrDuplicateKey
		}
		if _, ok := batch[ms]; ok {
			return storage.ErrDuplicateKey
		}
		batch[ms] = storedBar{ts: ts, bar: copyBar(b)}
	}

	if existing == nil {
		existing = make(map[int64]storedBar, len(batch))
		s.data[key] = existing
	}
	for ms, b := range batch {
		existing[ms] = b
	}
	return nil
}

// GetByTimeRange retrieves bars within [start, end] ordered by time ASC.
func (s *PriceBarStore) GetByTimeRange(_ context.Context, symbol string, interval domain.BarInterval, start, end time.Time) ([]domain.PriceBar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []storedBar
	for _, b := range s.data[barSeriesKey{symbol: symbol, interval: interval}] {
		if !b.ts.Before(start) && !b.ts.After(end) {
			matched = append(matched, b)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].ts.Before(matched[j].ts)
	})

	result := make([]domain.PriceBar, len(matched))
	for i, b := range matched {
		result[i] = copyBar(b.bar)
	}
	return result, nil
}

func copyBar(b domain.PriceBar) domain.PriceBar {
	b.Date = append([]int(nil), b.Date...)
	return b
}
