package memory

import (
	"context"
	"sort"
	"sync"

	"trade-analytics-lab/internal/domain"
	"trade-analytics-lab/internal/storage"
)

// ExecutionStore is an in-memory implementation of storage.ExecutionStore.
type ExecutionStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Execution // keyed by execution_id
}

// NewExecutionStore creates a new in-memory execution store.
func NewExecutionStore() *ExecutionStore {
	return &ExecutionStore{
		data: make(map[string]*domain.Execution),
	}
}

// Compile-time interface check.
var _ storage.ExecutionStore = (*ExecutionStore)(nil)

// Insert adds a new execution. Returns ErrDuplicateKey if execution_id exists.
func (s *ExecutionStore) Insert(_ context.Context, e *domain.Execution) error {
	if e == nil || e.ExecutionID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[e.ExecutionID]; exists {
		return storage.ErrDuplicateKey
	}
	s.putLocked([]*domain.Execution{e})
	return nil
}

// InsertBulk adds multiple executions atomically. Fails entire batch on any duplicate.
func (s *ExecutionStore) InsertBulk(_ context.Context, executions []*domain.Execution) error {
	if len(executions) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkLocked(executions); err != nil {
		return err
	}
	s.putLocked(executions)
	return nil
}

// checkLocked reports whether executions can all be inserted. Caller holds mu.
func (s *ExecutionStore) checkLocked(executions []*domain.Execution) error {
	batchKeys := make(map[string]struct{}, len(executions))
	for _, e := range executions {
		if e == nil || e.ExecutionID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[e.ExecutionID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[e.ExecutionID]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[e.ExecutionID] = struct{}{}
	}
	return nil
}

func (s *ExecutionStore) putLocked(executions []*domain.Execution) {
	for _, e := range executions {
		cp := *e
		s.data[e.ExecutionID] = &cp
	}
}

// GetByID retrieves an execution. Returns ErrNotFound if not exists.
func (s *ExecutionStore) GetByID(_ context.Context, executionID string) (*domain.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.data[executionID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

// GetByPortfolio retrieves executions ordered by timestamp ASC, execution_id ASC.
func (s *ExecutionStore) GetByPortfolio(_ context.Context, portfolioID string) ([]*domain.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Execution
	for _, e := range s.data {
		if e.PortfolioID == portfolioID {
			cp := *e
			result = append(result, &cp)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].Timestamp.Equal(result[j].Timestamp) {
			return result[i].Timestamp.Before(result[j].Timestamp)
		}
		return result[i].ExecutionID < result[j].ExecutionID
	})
	return result, nil
}
