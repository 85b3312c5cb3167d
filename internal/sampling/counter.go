package sampling

import (
	"sort"
	"sync"
	"time"

	"trade-analytics-lab/internal/domain"
)

// CounterStore holds the per (user, day) replay counters. Implementations
// must make Increment atomic per key.
type CounterStore interface {
	// Increment adds one evaluated trade and returns the new count.
	Increment(userID string, day time.Time) int64
	// MarkStored adds one stored trade.
	MarkStored(userID string, day time.Time)
	// Get returns the state for (user, day), zero if never seen.
	Get(userID string, day time.Time) domain.SamplingState
	// PurgeBefore drops every day strictly before day and returns how many
	// (user, day) entries were removed.
	PurgeBefore(day time.Time) int
	// Len returns the number of tracked (user, day) entries.
	Len() int
	// Snapshot returns every tracked state ordered by day, then user.
	Snapshot() []domain.SamplingState
}

type counterKey struct {
	userID string
	day    int64 // unix seconds of UTC midnight
}

func keyOf(userID string, day time.Time) counterKey {
	return counterKey{userID: userID, day: domain.DayOf(day).Unix()}
}

// MemoryCounterStore is a mutex-guarded in-process CounterStore. Counters
// never carry over between days.
type MemoryCounterStore struct {
	mu     sync.Mutex
	states map[counterKey]*domain.SamplingState
}

// NewMemoryCounterStore creates an empty counter store.
func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{
		states: make(map[counterKey]*domain.SamplingState),
	}
}

// Compile-time interface check.
var _ CounterStore = (*MemoryCounterStore)(nil)

func (s *MemoryCounterStore) state(userID string, day time.Time) *domain.SamplingState {
	k := keyOf(userID, day)
	st, ok := s.states[k]
	if !ok {
		st = &domain.SamplingState{UserID: userID, Day: domain.DayOf(day)}
		s.states[k] = st
	}
	return st
}

// Increment implements CounterStore.
func (s *MemoryCounterStore) Increment(userID string, day time.Time) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state(userID, day)
	st.TradesSeen++
	return st.TradesSeen
}

// MarkStored implements CounterStore.
func (s *MemoryCounterStore) MarkStored(userID string, day time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state(userID, day).TradesStored++
}

// Get implements CounterStore.
func (s *MemoryCounterStore) Get(userID string, day time.Time) domain.SamplingState {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.states[keyOf(userID, day)]; ok {
		return *st
	}
	return domain.SamplingState{UserID: userID, Day: domain.DayOf(day)}
}

// PurgeBefore implements CounterStore.
func (s *MemoryCounterStore) PurgeBefore(day time.Time) int {
	cutoff := domain.DayOf(day).Unix()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k := range s.states {
		if k.day < cutoff {
			delete(s.states, k)
			removed++
		}
	}
	return removed
}

// Len implements CounterStore.
func (s *MemoryCounterStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}

// Snapshot implements CounterStore.
func (s *MemoryCounterStore) Snapshot() []domain.SamplingState {
	s.mu.Lock()
	out := make([]domain.SamplingState, 0, len(s.states))
	for _, st := range s.states {
		out = append(out, *st)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Day.Equal(out[j].Day) {
			return out[i].Day.Before(out[j].Day)
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}
