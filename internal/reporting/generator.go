package reporting

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"trade-analytics-lab/internal/domain"
	"trade-analytics-lab/internal/storage"
)

// Generator produces reports from stored data.
type Generator struct {
	aggregates storage.AggregateStore
	replays    storage.ReplayStore
	now        func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator. replays may be nil, in which
// case reports carry no replay section.
func NewGenerator(aggregates storage.AggregateStore, replays storage.ReplayStore) *Generator {
	return &Generator{
		aggregates: aggregates,
		replays:    replays,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate builds the report for scope. The portfolio's replays are listed
// when portfolioID is non-empty. Returns storage.ErrNotFound if no snapshot
// exists for scope.
func (g *Generator) Generate(ctx context.Context, scope, portfolioID string) (*Report, error) {
	summary, err := g.aggregates.GetLatest(ctx, scope)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("no aggregate for scope %q: %w", scope, err)
		}
		return nil, err
	}

	var replays []ReplayRow
	if g.replays != nil && portfolioID != "" {
		stored, err := g.replays.FindByPortfolioID(ctx, portfolioID)
		if err != nil {
			return nil, fmt.Errorf("load replays: %w", err)
		}
		replays = replayRows(stored)
	}

	return &Report{
		GeneratedAt: g.now(),
		Scope:       scope,
		PortfolioID: portfolioID,
		Summary:     summary,
		Groups:      groupSections(summary),
		Replays:     replays,
	}, nil
}

func groupSections(a *domain.AggregateStatistics) []GroupSection {
	dims := make([]string, 0, len(a.Groups))
	for dim := range a.Groups {
		dims = append(dims, dim)
	}
	sort.Strings(dims)

	sections := make([]GroupSection, 0, len(dims))
	for _, dim := range dims {
		keys := make([]string, 0, len(a.Groups[dim]))
		for k := range a.Groups[dim] {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		rows := make([]GroupRow, 0, len(keys))
		for _, k := range keys {
			gs := a.Groups[dim][k]
			rows = append(rows, GroupRow{
				Key:          k,
				TotalTrades:  gs.TotalTrades,
				WinRate:      gs.WinRate,
				NetPnL:       domain.RoundMoney(gs.NetPnL),
				AvgPnL:       domain.RoundMoney(gs.AvgPnL),
				ProfitFactor: gs.ProfitFactor,
			})
		}
		sections = append(sections, GroupSection{Dimension: dim, Rows: rows})
	}
	return sections
}

func replayRows(replays []*domain.Replay) []ReplayRow {
	rows := make([]ReplayRow, 0, len(replays))
	for _, r := range replays {
		rows = append(rows, ReplayRow{
			ReplayID:       r.ReplayID,
			Symbol:         r.Symbol,
			Direction:      r.Direction,
			EntryDate:      r.EntryDate,
			ExitDate:       r.ExitDate,
			ProfitLoss:     domain.RoundMoney(r.ProfitLoss),
			MaxRunUp:       domain.RoundMoney(r.MaxRunUp),
			MaxDrawdown:    domain.RoundMoney(r.MaxDrawdown),
			MaxDrawdownPct: domain.RoundRatio(r.MaxDrawdownPct),
			Volatility:     r.Volatility,
			Notes:          len(r.Notes),
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].EntryDate.Equal(rows[j].EntryDate) {
			return rows[i].EntryDate.Before(rows[j].EntryDate)
		}
		return rows[i].ReplayID < rows[j].ReplayID
	})
	return rows
}
