package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"trade-analytics-lab/internal/domain"
	"trade-analytics-lab/internal/storage"
)

// PositionStore is an in-memory implementation of storage.PositionStore.
type PositionStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Position // keyed by position_id
}

// NewPositionStore creates a new in-memory position store.
func NewPositionStore() *PositionStore {
	return &PositionStore{
		data: make(map[string]*domain.Position),
	}
}

// Compile-time interface check.
var _ storage.PositionStore = (*PositionStore)(nil)

// Save inserts or replaces a position. A CLOSED position cannot be overwritten.
func (s *PositionStore) Save(_ context.Context, p *domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkLocked(p); err != nil {
		return err
	}
	s.data[p.PositionID] = p.Clone()
	return nil
}

// checkLocked reports whether p may be saved. Caller holds mu.
func (s *PositionStore) checkLocked(p *domain.Position) error {
	if p == nil || p.PositionID == "" || !p.Status.IsValid() {
		return storage.ErrInvalidInput
	}
	if existing, ok := s.data[p.PositionID]; ok && existing.IsClosed() {
		return storage.ErrInvalidInput
	}
	return nil
}

// GetByID retrieves a position. Returns ErrNotFound if not exists.
func (s *PositionStore) GetByID(_ context.Context, positionID string) (*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.data[positionID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return p.Clone(), nil
}

// GetOpen retrieves the non-closed position for key. Returns ErrNotFound if flat.
func (s *PositionStore) GetOpen(_ context.Context, key domain.PositionKey) (*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.data {
		if p.Key() == key && !p.IsClosed() {
			return p.Clone(), nil
		}
	}
	return nil, storage.ErrNotFound
}

// GetClosedByPortfolio retrieves CLOSED positions ordered by entry_time ASC, position_id ASC.
func (s *PositionStore) GetClosedByPortfolio(_ context.Context, portfolioID string) ([]*domain.Position, error) {
	return s.filterClosed(func(p *domain.Position) bool {
		return p.PortfolioID == portfolioID
	}), nil
}

// GetClosedByTimeRange retrieves CLOSED positions with exit time in [start, end].
func (s *PositionStore) GetClosedByTimeRange(_ context.Context, portfolioID string, start, end time.Time) ([]*domain.Position, error) {
	return s.filterClosed(func(p *domain.Position) bool {
		return p.PortfolioID == portfolioID &&
			!p.ExitTime.Before(start) && !p.ExitTime.After(end)
	}), nil
}

func (s *PositionStore) filterClosed(match func(*domain.Position) bool) []*domain.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Position
	for _, p := range s.data {
		if p.IsClosed() && p.ExitTime != nil && match(p) {
			result = append(result, p.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].EntryTime.Equal(result[j].EntryTime) {
			return result[i].EntryTime.Before(result[j].EntryTime)
		}
		return result[i].PositionID < result[j].PositionID
	})
	return result
}
