package reporting

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"trade-analytics-lab/internal/domain"
	"trade-analytics-lab/internal/storage"
	"trade-analytics-lab/internal/storage/memory"
)

var fixedTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func setupTestData(t *testing.T) (*memory.AggregateStore, *memory.ReplayStore) {
	t.Helper()
	ctx := context.Background()

	aggStore := memory.NewAggregateStore()
	replayStore := memory.NewReplayStore()

	agg := &domain.AggregateStatistics{
		Scope:         "pf-1",
		ComputedAt:    fixedTime.Add(-time.Hour),
		TotalTrades:   3,
		WinningTrades: 2,
		LosingTrades:  1,
		WinRate:       66.6667,
		LossRate:      33.3333,
		NetPnL:        decimal.RequireFromString("150.456"),
		GrossProfit:   decimal.NewFromInt(200),
		GrossLoss:     decimal.RequireFromString("49.544"),
		ProfitFactor:  4.0368,
		MaxDrawdown:   decimal.NewFromInt(50),
		FirstEntry:    time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC),
		LastExit:      time.Date(2024, 3, 20, 20, 0, 0, 0, time.UTC),
		Groups: map[string]map[string]*domain.GroupStatistics{
			domain.DimensionSymbol: {
				"MSFT": {Key: "MSFT", TotalTrades: 1, WinRate: 100, NetPnL: decimal.NewFromInt(120), ProfitFactor: math.Inf(1)},
				"AAPL": {Key: "AAPL", TotalTrades: 2, WinRate: 50, NetPnL: decimal.RequireFromString("30.456"), ProfitFactor: 1.6147},
			},
			domain.DimensionBehaviorPattern: {
				"fomo, chase": {Key: "fomo, chase", TotalTrades: 1, WinRate: 0, NetPnL: decimal.NewFromInt(-40)},
			},
		},
	}
	if err := aggStore.Insert(ctx, agg); err != nil {
		t.Fatalf("Insert aggregate failed: %v", err)
	}

	replays := []*domain.Replay{
		{
			PositionID: "p2", PortfolioID: "pf-1", Symbol: "MSFT", Direction: domain.DirectionShort,
			EntryDate: time.Date(2024, 3, 10, 14, 0, 0, 0, time.UTC), ExitDate: time.Date(2024, 3, 12, 14, 0, 0, 0, time.UTC),
			ProfitLoss: decimal.NewFromInt(120), MaxRunUp: decimal.NewFromInt(150), MaxDrawdown: decimal.NewFromInt(10),
		},
		{
			PositionID: "p1", PortfolioID: "pf-1", Symbol: "AAPL", Direction: domain.DirectionLong,
			EntryDate: time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC), ExitDate: time.Date(2024, 3, 4, 14, 0, 0, 0, time.UTC),
			ProfitLoss: decimal.NewFromInt(-40), MaxRunUp: decimal.NewFromInt(100), MaxDrawdown: decimal.NewFromInt(150),
			Notes: []string{"exited late"},
		},
	}
	for _, r := range replays {
		if _, err := replayStore.Save(ctx, r); err != nil {
			t.Fatalf("Save replay failed: %v", err)
		}
	}

	return aggStore, replayStore
}

func TestGenerator_Generate(t *testing.T) {
	aggStore, replayStore := setupTestData(t)
	gen := NewGenerator(aggStore, replayStore).WithClock(func() time.Time { return fixedTime })

	r, err := gen.Generate(context.Background(), "pf-1", "pf-1")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if !r.GeneratedAt.Equal(fixedTime) {
		t.Errorf("GeneratedAt = %v, want %v", r.GeneratedAt, fixedTime)
	}
	if r.Summary.TotalTrades != 3 {
		t.Errorf("TotalTrades = %d, want 3", r.Summary.TotalTrades)
	}

	// Dimensions and keys are sorted.
	if len(r.Groups) != 2 {
		t.Fatalf("expected 2 group sections, got %d", len(r.Groups))
	}
	if r.Groups[0].Dimension != domain.DimensionBehaviorPattern || r.Groups[1].Dimension != domain.DimensionSymbol {
		t.Errorf("unexpected dimension order: %s, %s", r.Groups[0].Dimension, r.Groups[1].Dimension)
	}
	if r.Groups[1].Rows[0].Key != "AAPL" {
		t.Errorf("expected AAPL first, got %s", r.Groups[1].Rows[0].Key)
	}
	if got := r.Groups[1].Rows[0].NetPnL.String(); got != "30.46" {
		t.Errorf("NetPnL = %s, want 30.46", got)
	}

	// Replays are sorted by entry date.
	if len(r.Replays) != 2 {
		t.Fatalf("expected 2 replays, got %d", len(r.Replays))
	}
	if r.Replays[0].Symbol != "AAPL" || r.Replays[0].Notes != 1 {
		t.Errorf("unexpected first replay: %+v", r.Replays[0])
	}
}

func TestGenerator_MissingScope(t *testing.T) {
	gen := NewGenerator(memory.NewAggregateStore(), nil)
	_, err := gen.Generate(context.Background(), "nope", "")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRenderMarkdown(t *testing.T) {
	aggStore, replayStore := setupTestData(t)
	gen := NewGenerator(aggStore, replayStore).WithClock(func() time.Time { return fixedTime })
	r, err := gen.Generate(context.Background(), "pf-1", "pf-1")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	md := RenderMarkdown(r)
	for _, want := range []string{
		"# Performance Report: pf-1",
		"Generated: 2024-06-01T12:00:00Z",
		"Period: 2024-03-01 to 2024-03-20",
		"| Net P&L | 150.46 |",
		"## By symbol",
		"## By behavior pattern",
		"| MSFT | 1 | 100.0000 | 120.00 | 0.00 | inf |",
		"| AAPL | LONG | 2024-03-01 | 2024-03-04 | -40.00 |",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q", want)
		}
	}

	r.Replays = nil
	if !strings.Contains(RenderMarkdown(r), "No replays available.") {
		t.Error("expected empty replay placeholder")
	}
}

func TestRenderCSV(t *testing.T) {
	aggStore, replayStore := setupTestData(t)
	r, err := NewGenerator(aggStore, replayStore).Generate(context.Background(), "pf-1", "pf-1")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	groups, err := RenderGroupsCSV(r)
	if err != nil {
		t.Fatalf("RenderGroupsCSV failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(groups), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header + 3 rows, got %d lines", len(lines))
	}
	if lines[0] != "dimension,key,total_trades,win_rate,net_pnl,avg_pnl,profit_factor" {
		t.Errorf("unexpected header: %s", lines[0])
	}
	if lines[1] != `behavior_pattern,"fomo, chase",1,0.0000,-40.00,0.00,0.0000` {
		t.Errorf("expected quoted key, got %s", lines[1])
	}
	if !strings.HasSuffix(lines[3], ",inf") {
		t.Errorf("expected inf profit factor, got %s", lines[3])
	}

	replays, err := RenderReplaysCSV(r)
	if err != nil {
		t.Fatalf("RenderReplaysCSV failed: %v", err)
	}
	if n := strings.Count(replays, "\n"); n != 3 {
		t.Errorf("expected 3 lines, got %d", n)
	}
}

func TestFormatFloat(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{1.23456, "1.2346"},
		{0, "0.0000"},
		{math.Inf(1), "inf"},
		{math.Inf(-1), "-inf"},
		{math.NaN(), "nan"},
	}
	for _, tt := range tests {
		if got := FormatFloat(tt.in); got != tt.want {
			t.Errorf("FormatFloat(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
