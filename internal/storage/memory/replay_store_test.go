package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"trade-analytics-lab/internal/domain"
	"trade-analytics-lab/internal/storage"
)

func testReplay(positionID, symbol, strategy string, entry time.Time) *domain.Replay {
	return &domain.Replay{
		PositionID:  positionID,
		PortfolioID: "p1",
		StrategyID:  strategy,
		Symbol:      symbol,
		Direction:   domain.DirectionLong,
		Interval:    domain.Interval1Hour,
		EntryDate:   entry,
		ExitDate:    entry.Add(3 * time.Hour),
		ProfitLoss:  decimal.NewFromInt(-50),
		Points: []domain.ReplayPoint{
			{Time: entry, Price: decimal.NewFromInt(100), PnL: decimal.Zero},
		},
	}
}

func TestReplayStore_SaveAssignsID(t *testing.T) {
	store := NewReplayStore()
	ctx := context.Background()

	id, err := store.Save(ctx, testReplay("pos1", "AAPL", "s1", t0))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if id == "" {
		t.Fatal("Save returned empty id")
	}

	got, err := store.FindByID(ctx, id)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if got.PositionID != "pos1" || len(got.Points) != 1 {
		t.Errorf("unexpected replay: %+v", got)
	}
}

func TestReplayStore_DuplicateKey(t *testing.T) {
	store := NewReplayStore()
	ctx := context.Background()

	r := testReplay("pos1", "AAPL", "s1", t0)
	r.ReplayID = "r1"
	if _, err := store.Save(ctx, r); err != nil {
		t.Fatalf("First save failed: %v", err)
	}
	_, err := store.Save(ctx, r)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestReplayStore_Finders(t *testing.T) {
	store := NewReplayStore()
	ctx := context.Background()

	fixtures := []*domain.Replay{
		testReplay("pos1", "AAPL", "s1", t0),
		testReplay("pos2", "AAPL", "s2", t0.Add(48*time.Hour)),
		testReplay("pos3", "MSFT", "s1", t0.Add(24*time.Hour)),
	}
	fixtures[2].PortfolioID = "p2"
	for _, r := range fixtures {
		if _, err := store.Save(ctx, r); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	bySymbol, _ := store.FindBySymbol(ctx, "AAPL")
	if len(bySymbol) != 2 || bySymbol[0].PositionID != "pos1" {
		t.Errorf("FindBySymbol: got %d replays", len(bySymbol))
	}

	byStrategy, _ := store.FindByStrategyID(ctx, "s1")
	if len(byStrategy) != 2 {
		t.Errorf("FindByStrategyID: got %d, want 2", len(byStrategy))
	}

	byPortfolio, _ := store.FindByPortfolioID(ctx, "p2")
	if len(byPortfolio) != 1 || byPortfolio[0].Symbol != "MSFT" {
		t.Errorf("FindByPortfolioID: got %d, want 1", len(byPortfolio))
	}

	// Inclusive bounds
	byRange, _ := store.FindByDateRange(ctx, t0, t0.Add(24*time.Hour))
	if len(byRange) != 2 {
		t.Errorf("FindByDateRange: got %d, want 2", len(byRange))
	}
}

func TestReplayStore_DeleteAndNotes(t *testing.T) {
	store := NewReplayStore()
	ctx := context.Background()

	id, err := store.Save(ctx, testReplay("pos1", "AAPL", "s1", t0))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := store.AppendNote(ctx, id, "exited early"); err != nil {
		t.Fatalf("AppendNote failed: %v", err)
	}
	if err := store.AppendNote(ctx, id, "news spike"); err != nil {
		t.Fatalf("AppendNote failed: %v", err)
	}
	got, _ := store.FindByID(ctx, id)
	if len(got.Notes) != 2 || got.Notes[1] != "news spike" {
		t.Errorf("Notes = %v", got.Notes)
	}

	if err := store.AppendNote(ctx, "missing", "x"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	deleted, err := store.DeleteByID(ctx, id)
	if err != nil || !deleted {
		t.Fatalf("DeleteByID = %v, %v", deleted, err)
	}
	deleted, _ = store.DeleteByID(ctx, id)
	if deleted {
		t.Error("second DeleteByID should report false")
	}
	if _, err := store.FindByID(ctx, id); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
}
