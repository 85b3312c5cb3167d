package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"trade-analytics-lab/internal/domain"
	"trade-analytics-lab/internal/metrics"
	"trade-analytics-lab/internal/replay"
	"trade-analytics-lab/internal/sampling"
	"trade-analytics-lab/internal/storage"
	"trade-analytics-lab/internal/storage/memory"
)

var t0 = time.Date(2024, 3, 4, 14, 30, 0, 0, time.UTC)

type testStores struct {
	executions *memory.ExecutionStore
	positions  *memory.PositionStore
	aggregates *memory.AggregateStore
	replays    *memory.ReplayStore
	ledger     storage.Ledger
}

func createTestStores() testStores {
	executions := memory.NewExecutionStore()
	positions := memory.NewPositionStore()
	return testStores{
		executions: executions,
		positions:  positions,
		aggregates: memory.NewAggregateStore(),
		replays:    memory.NewReplayStore(),
		ledger:     memory.NewLedger(executions, positions),
	}
}

// failOnceLedger fails its first Apply and delegates afterwards.
type failOnceLedger struct {
	storage.Ledger
	failed bool
}

func (l *failOnceLedger) Apply(ctx context.Context, executions []*domain.Execution, positions []*domain.Position) error {
	if !l.failed {
		l.failed = true
		return errors.New("connection reset")
	}
	return l.Ledger.Apply(ctx, executions, positions)
}

// barsProvider serves the same hourly closes for every symbol.
type barsProvider struct{ closes []int64 }

func (p barsProvider) FetchBars(_ context.Context, _ string, start, _ time.Time, _ domain.BarInterval, _ bool) ([]domain.PriceBar, error) {
	bars := make([]domain.PriceBar, len(p.closes))
	for i, c := range p.closes {
		px := decimal.NewFromInt(c)
		bars[i] = domain.NewPriceBar(start.Add(time.Duration(i)*time.Hour), px, px, px, px, decimal.NewFromInt(1000))
	}
	return bars, nil
}

func newOrchestrator(t *testing.T, stores testStores, withReplay bool) *Orchestrator {
	t.Helper()
	agg := metrics.NewAggregator(stores.positions, stores.aggregates, zerolog.Nop())

	opts := Options{
		Executions: stores.executions,
		Positions:  stores.positions,
		Ledger:     stores.ledger,
		Aggregator: agg,
		Logger:     zerolog.Nop(),
	}
	if withReplay {
		policy, err := sampling.NewPolicy(sampling.DefaultConfig(), sampling.NewMemoryCounterStore(), zerolog.Nop())
		if err != nil {
			t.Fatalf("NewPolicy: %v", err)
		}
		opts.Replayer = replay.NewService(replay.DefaultConfig(), barsProvider{closes: []int64{100, 110, 95}},
			policy, stores.replays, zerolog.Nop())
	}
	return New(opts)
}

func execution(id, portfolio, symbol string, side domain.Side, qty, price int64, at time.Time) *domain.Execution {
	return &domain.Execution{
		ExecutionID: id,
		PortfolioID: portfolio,
		Symbol:      symbol,
		Side:        side,
		Quantity:    decimal.NewFromInt(qty),
		Price:       decimal.NewFromInt(price),
		Fees:        decimal.NewFromInt(1),
		Timestamp:   at,
	}
}

func TestOrchestrator_Run_Empty(t *testing.T) {
	stores := createTestStores()
	orch := newOrchestrator(t, stores, false)

	result, err := orch.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if result.ExecutionsApplied != 0 || len(result.Aggregates) != 0 {
		t.Errorf("expected empty result, got %+v", result)
	}
}

func TestOrchestrator_Run_FullPipeline(t *testing.T) {
	ctx := context.Background()
	stores := createTestStores()
	orch := newOrchestrator(t, stores, true)

	execs := []*domain.Execution{
		// Out of order on purpose; the import phase presorts.
		execution("a2", "pf-1", "AAPL", domain.SideSell, 10, 110, t0.Add(2*time.Hour)),
		execution("a1", "pf-1", "AAPL", domain.SideBuy, 10, 100, t0),
		execution("m1", "pf-1", "MSFT", domain.SideShort, 5, 400, t0),
		execution("m2", "pf-1", "MSFT", domain.SideCover, 5, 390, t0.Add(3*time.Hour)),
		execution("n1", "pf-2", "NVDA", domain.SideBuy, 1, 800, t0),
		execution("a1", "pf-1", "AAPL", domain.SideBuy, 10, 100, t0), // repeated in batch
	}

	result, err := orch.Run(ctx, execs)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.ExecutionsDuplicate != 1 {
		t.Errorf("expected 1 duplicate, got %d", result.ExecutionsDuplicate)
	}
	if result.ExecutionsApplied != 5 {
		t.Errorf("expected 5 applied, got %d", result.ExecutionsApplied)
	}
	if len(result.PositionsClosed) != 2 {
		t.Fatalf("expected 2 closed positions, got %d", len(result.PositionsClosed))
	}
	if len(result.Errors) != 0 {
		t.Errorf("unexpected errors: %v", result.Errors)
	}

	// Only pf-1 closed anything.
	if len(result.Aggregates) != 1 {
		t.Fatalf("expected 1 aggregate, got %d", len(result.Aggregates))
	}
	agg := result.Aggregates[0]
	if agg.Scope != metrics.PortfolioScope("pf-1") || agg.TotalTrades != 2 {
		t.Errorf("unexpected aggregate: scope=%s trades=%d", agg.Scope, agg.TotalTrades)
	}
	if _, err := stores.aggregates.GetLatest(ctx, agg.Scope); err != nil {
		t.Errorf("aggregate not stored: %v", err)
	}

	if result.Replays.Total != 2 || result.Replays.ByStatus[replay.StatusStored] != 2 {
		t.Errorf("unexpected replay summary: %+v", result.Replays)
	}
	replays, _ := stores.replays.FindByPortfolioID(ctx, "pf-1")
	if len(replays) != 2 {
		t.Errorf("expected 2 stored replays, got %d", len(replays))
	}

	open, err := stores.positions.GetOpen(ctx, domain.PositionKey{PortfolioID: "pf-2", Symbol: "NVDA"})
	if err != nil {
		t.Fatalf("expected open NVDA position: %v", err)
	}
	if !open.OpenQuantity.Equal(decimal.NewFromInt(1)) {
		t.Errorf("open quantity = %s, want 1", open.OpenQuantity)
	}
}

func TestOrchestrator_Run_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	stores := createTestStores()
	orch := newOrchestrator(t, stores, false)

	execs := []*domain.Execution{
		execution("a1", "pf-1", "AAPL", domain.SideBuy, 10, 100, t0),
		execution("a2", "pf-1", "AAPL", domain.SideSell, 10, 110, t0.Add(time.Hour)),
	}
	if _, err := orch.Run(ctx, execs); err != nil {
		t.Fatalf("first run: %v", err)
	}

	again, err := orch.Run(ctx, execs)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if again.ExecutionsDuplicate != 2 || again.ExecutionsApplied != 0 || len(again.PositionsClosed) != 0 {
		t.Errorf("second run should be a no-op, got %+v", again)
	}

	closed, _ := stores.positions.GetClosedByPortfolio(ctx, "pf-1")
	if len(closed) != 1 {
		t.Errorf("expected 1 closed position, got %d", len(closed))
	}
}

func TestOrchestrator_Run_ResumesOpenAndIsolatesRejectedKeys(t *testing.T) {
	ctx := context.Background()
	stores := createTestStores()
	orch := newOrchestrator(t, stores, false)

	if _, err := orch.Run(ctx, []*domain.Execution{
		execution("a1", "pf-1", "AAPL", domain.SideBuy, 10, 100, t0),
	}); err != nil {
		t.Fatalf("first run: %v", err)
	}

	result, err := orch.Run(ctx, []*domain.Execution{
		execution("a2", "pf-1", "AAPL", domain.SideSell, 10, 120, t0.Add(time.Hour)),
		execution("x1", "pf-1", "TSLA", domain.SideBuy, 0, 200, t0), // invalid quantity
	})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if result.ExecutionsRejected != 1 || len(result.Errors) != 1 {
		t.Errorf("expected one rejected key, got rejected=%d errors=%v", result.ExecutionsRejected, result.Errors)
	}
	if len(result.PositionsClosed) != 1 {
		t.Fatalf("expected resumed position to close, got %d", len(result.PositionsClosed))
	}
	if !result.PositionsClosed[0].RealizedPnL.Equal(decimal.NewFromInt(200)) {
		t.Errorf("realized = %s, want 200", result.PositionsClosed[0].RealizedPnL)
	}
	if _, err := stores.executions.GetByID(ctx, "x1"); err == nil {
		t.Error("rejected execution must not be stored")
	}
}

func TestOrchestrator_Run_StorageFailureIsRetryable(t *testing.T) {
	ctx := context.Background()
	stores := createTestStores()
	stores.ledger = &failOnceLedger{Ledger: stores.ledger}
	orch := newOrchestrator(t, stores, false)

	execs := []*domain.Execution{
		execution("a1", "pf-1", "AAPL", domain.SideBuy, 10, 100, t0),
		execution("a2", "pf-1", "AAPL", domain.SideSell, 10, 110, t0.Add(time.Hour)),
	}
	if _, err := orch.Run(ctx, execs); err == nil {
		t.Fatal("expected storage failure")
	}
	if _, err := stores.executions.GetByID(ctx, "a1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("failed key must record no executions, got %v", err)
	}
	if closed, _ := stores.positions.GetClosedByPortfolio(ctx, "pf-1"); len(closed) != 0 {
		t.Errorf("failed key must save no positions, got %d", len(closed))
	}

	result, err := orch.Run(ctx, execs)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if result.ExecutionsApplied != 2 || len(result.PositionsClosed) != 1 {
		t.Errorf("retry should apply the batch, got %+v", result)
	}
}
