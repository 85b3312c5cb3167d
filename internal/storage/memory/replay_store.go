package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"trade-analytics-lab/internal/domain"
	"trade-analytics-lab/internal/storage"
)

// ReplayStore is an in-memory implementation of storage.ReplayStore.
type ReplayStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Replay // keyed by replay_id
}

// NewReplayStore creates a new in-memory replay store.
func NewReplayStore() *ReplayStore {
	return &ReplayStore{
		data: make(map[string]*domain.Replay),
	}
}

// Compile-time interface check.
var _ storage.ReplayStore = (*ReplayStore)(nil)

// Save persists r, assigning a replay_id when empty.
func (s *ReplayStore) Save(_ context.Context, r *domain.Replay) (string, error) {
	if r == nil || r.PositionID == "" {
		return "", storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := copyReplay(r)
	if cp.ReplayID == "" {
		cp.ReplayID = uuid.NewString()
	}
	if _, exists := s.data[cp.ReplayID]; exists {
		return "", storage.ErrDuplicateKey
	}
	s.data[cp.ReplayID] = cp
	return cp.ReplayID, nil
}

// FindByID retrieves a replay. Returns ErrNotFound if not exists.
func (s *ReplayStore) FindByID(_ context.Context, replayID string) (*domain.Replay, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.data[replayID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return copyReplay(r), nil
}

// FindBySymbol retrieves replays for a symbol.
func (s *ReplayStore) FindBySymbol(_ context.Context, symbol string) ([]*domain.Replay, error) {
	return s.filter(func(r *domain.Replay) bool { return r.Symbol == symbol }), nil
}

// FindByDateRange retrieves replays whose entry date falls in [start, end].
func (s *ReplayStore) FindByDateRange(_ context.Context, start, end time.Time) ([]*domain.Replay, error) {
	return s.filter(func(r *domain.Replay) bool {
		return !r.EntryDate.Before(start) && !r.EntryDate.After(end)
	}), nil
}

// FindByPortfolioID retrieves replays for a portfolio.
func (s *ReplayStore) FindByPortfolioID(_ context.Context, portfolioID string) ([]*domain.Replay, error) {
	return s.filter(func(r *domain.Replay) bool { return r.PortfolioID == portfolioID }), nil
}

// FindByStrategyID retrieves replays for a strategy.
func (s *ReplayStore) FindByStrategyID(_ context.Context, strategyID string) ([]*domain.Replay, error) {
	return s.filter(func(r *domain.Replay) bool { return r.StrategyID == strategyID }), nil
}

// DeleteByID removes a replay. Returns false if it did not exist.
func (s *ReplayStore) DeleteByID(_ context.Context, replayID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[replayID]; !ok {
		return false, nil
	}
	delete(s.data, replayID)
	return true, nil
}

// AppendNote appends a note. Returns ErrNotFound if the replay does not exist.
func (s *ReplayStore) AppendNote(_ context.Context, replayID, note string) error {
	if note == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.data[replayID]
	if !ok {
		return storage.ErrNotFound
	}
	r.Notes = append(r.Notes, note)
	return nil
}

func (s *ReplayStore) filter(match func(*domain.Replay) bool) []*domain.Replay {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Replay
	for _, r := range s.data {
		if match(r) {
			result = append(result, copyReplay(r))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].EntryDate.Equal(result[j].EntryDate) {
			return result[i].EntryDate.Before(result[j].EntryDate)
		}
		return result[i].ReplayID < result[j].ReplayID
	})
	return result
}

func copyReplay(r *domain.Replay) *domain.Replay {
	cp := *r
	cp.Points = append([]domain.ReplayPoint(nil), r.Points...)
	cp.Notes = append([]string(nil), r.Notes...)
	return &cp
}
