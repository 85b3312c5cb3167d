package metrics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"trade-analytics-lab/internal/domain"
	"trade-analytics-lab/internal/observability"
	"trade-analytics-lab/internal/storage"
)

// ErrNoPositions is returned when no closed positions are available for aggregation.
var ErrNoPositions = errors.New("no closed positions available for aggregation")

// PortfolioScope returns the aggregate scope for a portfolio.
func PortfolioScope(portfolioID string) string {
	return "portfolio:" + portfolioID
}

// StrategyScope returns the aggregate scope for one strategy within a portfolio.
func StrategyScope(portfolioID, strategyID string) string {
	return PortfolioScope(portfolioID) + "|strategy:" + strategyID
}

// Aggregator computes aggregate statistics from stored positions.
type Aggregator struct {
	positionStore  storage.PositionStore
	aggregateStore storage.AggregateStore
	now            func() time.Time
	log            zerolog.Logger
}

// NewAggregator creates a new metrics aggregator.
func NewAggregator(positions storage.PositionStore, aggregates storage.AggregateStore, log zerolog.Logger) *Aggregator {
	return &Aggregator{
		positionStore:  positions,
		aggregateStore: aggregates,
		now:            time.Now,
		log:            log.With().Str("component", "aggregator").Logger(),
	}
}

// SetClock overrides the clock used for ComputedAt.
func (a *Aggregator) SetClock(now func() time.Time) {
	a.now = now
}

// ComputeForPortfolio aggregates every closed position of a portfolio.
// Returns ErrNoPositions if there are none.
func (a *Aggregator) ComputeForPortfolio(ctx context.Context, portfolioID string) (*domain.AggregateStatistics, error) {
	positions, err := a.positionStore.GetClosedByPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("load positions: %w", err)
	}
	return a.compute(PortfolioScope(portfolioID), positions)
}

// ComputeForRange aggregates closed positions whose exit falls in [start, end].
func (a *Aggregator) ComputeForRange(ctx context.Context, portfolioID string, start, end time.Time) (*domain.AggregateStatistics, error) {
	positions, err := a.positionStore.GetClosedByTimeRange(ctx, portfolioID, start, end)
	if err != nil {
		return nil, fmt.Errorf("load positions: %w", err)
	}
	scope := fmt.Sprintf("%s|%s..%s", PortfolioScope(portfolioID),
		start.UTC().Format(time.DateOnly), end.UTC().Format(time.DateOnly))
	return a.compute(scope, positions)
}

// ComputeForStrategy aggregates one strategy's closed positions in a portfolio.
func (a *Aggregator) ComputeForStrategy(ctx context.Context, portfolioID, strategyID string) (*domain.AggregateStatistics, error) {
	positions, err := a.positionStore.GetClosedByPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("load positions: %w", err)
	}
	filtered := positions[:0:0]
	for _, p := range positions {
		if p.StrategyID == strategyID {
			filtered = append(filtered, p)
		}
	}
	return a.compute(StrategyScope(portfolioID, strategyID), filtered)
}

// ComputeAndStore computes the portfolio aggregate and persists it.
// Returns storage.ErrDuplicateKey if a snapshot with the same timestamp exists.
func (a *Aggregator) ComputeAndStore(ctx context.Context, portfolioID string) (*domain.AggregateStatistics, error) {
	agg, err := a.ComputeForPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	if err := a.aggregateStore.Insert(ctx, agg); err != nil {
		return nil, fmt.Errorf("store aggregate: %w", err)
	}
	return agg, nil
}

func (a *Aggregator) compute(scope string, positions []*domain.Position) (*domain.AggregateStatistics, error) {
	if len(positions) == 0 {
		return nil, ErrNoPositions
	}

	agg := Aggregate(positions)
	agg.Scope = scope
	agg.ComputedAt = a.now().UTC()
	observability.RecordAggregate()

	if agg.ExcludedTrades > 0 {
		a.log.Warn().
			Str("scope", scope).
			Int("excluded", agg.ExcludedTrades).
			Msg("positions excluded by preprocessing")
	}
	a.log.Debug().
		Str("scope", scope).
		Int("trades", agg.TotalTrades).
		Str("net_pnl", agg.NetPnL.String()).
		Msg("aggregate computed")
	return agg, nil
}
