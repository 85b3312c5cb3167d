package memory

import (
	"context"
	"sort"
	"sync"

	"trade-analytics-lab/internal/domain"
	"trade-analytics-lab/internal/storage"
)

// AggregateStore is an in-memory implementation of storage.AggregateStore.
type AggregateStore struct {
	mu   sync.RWMutex
	data map[string][]*domain.AggregateStatistics // keyed by scope, sorted by computed_at
}

// NewAggregateStore creates a new in-memory aggregate store.
func NewAggregateStore() *AggregateStore {
	return &AggregateStore{
		data: make(map[string][]*domain.AggregateStatistics),
	}
}

// Compile-time interface check.
var _ storage.AggregateStore = (*AggregateStore)(nil)

// Insert adds a snapshot. Returns ErrDuplicateKey if (scope, computed_at) exists.
func (s *AggregateStore) Insert(_ context.Context, a *domain.AggregateStatistics) error {
	if a == nil || a.Scope == "" || a.ComputedAt.IsZero() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.data[a.Scope]
	for _, h := range history {
		if h.ComputedAt.Equal(a.ComputedAt) {
			return storage.ErrDuplicateKey
		}
	}

	history = append(history, copyAggregate(a))
	sort.Slice(history, func(i, j int) bool {
		return history[i].ComputedAt.Before(history[j].ComputedAt)
	})
	s.data[a.Scope] = history
	return nil
}

// GetLatest returns the most recent snapshot for scope.
func (s *AggregateStore) GetLatest(_ context.Context, scope string) (*domain.AggregateStatistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.data[scope]
	if len(history) == 0 {
		return nil, storage.ErrNotFound
	}
	return copyAggregate(history[len(history)-1]), nil
}

// GetHistory returns all snapshots for scope ordered by computed_at ASC.
func (s *AggregateStore) GetHistory(_ context.Context, scope string) ([]*domain.AggregateStatistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.data[scope]
	result := make([]*domain.AggregateStatistics, len(history))
	for i, h := range history {
		result[i] = copyAggregate(h)
	}
	return result, nil
}

func copyAggregate(a *domain.AggregateStatistics) *domain.AggregateStatistics {
	cp := *a
	if a.Groups != nil {
		cp.Groups = make(map[string]map[string]*domain.GroupStatistics, len(a.Groups))
		for dim, groups := range a.Groups {
			inner := make(map[string]*domain.GroupStatistics, len(groups))
			for k, g := range groups {
				gc := *g
				inner[k] = &gc
			}
			cp.Groups[dim] = inner
		}
	}
	return &cp
}
