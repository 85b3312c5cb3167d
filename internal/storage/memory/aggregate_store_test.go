package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"trade-analytics-lab/internal/domain"
	"trade-analytics-lab/internal/storage"
)

func TestAggregateStore_LatestAndHistory(t *testing.T) {
	store := NewAggregateStore()
	ctx := context.Background()

	later := &domain.AggregateStatistics{Scope: "portfolio:p1", ComputedAt: t0.Add(time.Hour), TotalTrades: 5}
	earlier := &domain.AggregateStatistics{
		Scope:       "portfolio:p1",
		ComputedAt:  t0,
		TotalTrades: 3,
		Groups: map[string]map[string]*domain.GroupStatistics{
			domain.DimensionSymbol: {"AAPL": {Key: "AAPL", TotalTrades: 3}},
		},
	}

	for _, a := range []*domain.AggregateStatistics{later, earlier} {
		if err := store.Insert(ctx, a); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	latest, err := store.GetLatest(ctx, "portfolio:p1")
	if err != nil {
		t.Fatalf("GetLatest failed: %v", err)
	}
	if latest.TotalTrades != 5 {
		t.Errorf("GetLatest TotalTrades = %d, want 5", latest.TotalTrades)
	}

	history, _ := store.GetHistory(ctx, "portfolio:p1")
	if len(history) != 2 || history[0].TotalTrades != 3 {
		t.Fatalf("history not ordered by computed_at")
	}

	// Groups are deep copied
	history[0].Groups[domain.DimensionSymbol]["AAPL"].TotalTrades = 99
	again, _ := store.GetHistory(ctx, "portfolio:p1")
	if again[0].Groups[domain.DimensionSymbol]["AAPL"].TotalTrades != 3 {
		t.Error("store was mutated through returned copy")
	}
}

func TestAggregateStore_Errors(t *testing.T) {
	store := NewAggregateStore()
	ctx := context.Background()

	if _, err := store.GetLatest(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	a := &domain.AggregateStatistics{Scope: "s", ComputedAt: t0}
	if err := store.Insert(ctx, a); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := store.Insert(ctx, a); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
	if err := store.Insert(ctx, &domain.AggregateStatistics{Scope: "s"}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}
