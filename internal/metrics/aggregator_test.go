package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"trade-analytics-lab/internal/storage"
	"trade-analytics-lab/internal/storage/memory"
)

func newTestAggregator(t *testing.T) (*Aggregator, *memory.PositionStore, *memory.AggregateStore) {
	t.Helper()
	positions := memory.NewPositionStore()
	aggregates := memory.NewAggregateStore()
	agg := NewAggregator(positions, aggregates, zerolog.Nop())
	agg.SetClock(func() time.Time { return day0.AddDate(0, 1, 0) })
	return agg, positions, aggregates
}

func seed(t *testing.T, store *memory.PositionStore) {
	t.Helper()
	for _, p := range fixture() {
		if err := store.Save(context.Background(), p); err != nil {
			t.Fatalf("Save %s: %v", p.PositionID, err)
		}
	}
}

func TestAggregator_ComputeAndStore(t *testing.T) {
	agg, positions, aggregates := newTestAggregator(t)
	seed(t, positions)
	ctx := context.Background()

	got, err := agg.ComputeAndStore(ctx, "p1")
	if err != nil {
		t.Fatalf("ComputeAndStore: %v", err)
	}
	if got.Scope != "portfolio:p1" {
		t.Errorf("Scope = %s", got.Scope)
	}
	// The store only returns CLOSED positions, so nothing is excluded here
	if got.TotalTrades != 4 || got.ExcludedTrades != 0 {
		t.Errorf("TotalTrades/Excluded = %d/%d, want 4/0", got.TotalTrades, got.ExcludedTrades)
	}

	latest, err := aggregates.GetLatest(ctx, "portfolio:p1")
	if err != nil {
		t.Fatalf("GetLatest: %v", err)
	}
	if !latest.NetPnL.Equal(d("76")) {
		t.Errorf("stored NetPnL = %s, want 76", latest.NetPnL)
	}

	// Same clock, same scope
	_, err = agg.ComputeAndStore(ctx, "p1")
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestAggregator_NoPositions(t *testing.T) {
	agg, _, _ := newTestAggregator(t)

	_, err := agg.ComputeForPortfolio(context.Background(), "empty")
	if !errors.Is(err, ErrNoPositions) {
		t.Errorf("Expected ErrNoPositions, got %v", err)
	}
}

func TestAggregator_ComputeForStrategy(t *testing.T) {
	agg, positions, _ := newTestAggregator(t)
	seed(t, positions)

	got, err := agg.ComputeForStrategy(context.Background(), "p1", "s1")
	if err != nil {
		t.Fatalf("ComputeForStrategy: %v", err)
	}
	if got.TotalTrades != 2 {
		t.Errorf("TotalTrades = %d, want 2", got.TotalTrades)
	}
	if got.Scope != StrategyScope("p1", "s1") {
		t.Errorf("Scope = %s", got.Scope)
	}
}

func TestAggregator_ComputeForRange(t *testing.T) {
	agg, positions, _ := newTestAggregator(t)
	seed(t, positions)

	// Exits on days 1, 3, 5, 7; keep the first two
	got, err := agg.ComputeForRange(context.Background(), "p1", day0, day0.AddDate(0, 0, 3))
	if err != nil {
		t.Fatalf("ComputeForRange: %v", err)
	}
	if got.TotalTrades != 2 {
		t.Errorf("TotalTrades = %d, want 2", got.TotalTrades)
	}
	if got.LosingTrades != 1 {
		t.Errorf("LosingTrades = %d, want 1", got.LosingTrades)
	}
}
