package reporting

import (
	"time"

	"github.com/shopspring/decimal"

	"trade-analytics-lab/internal/domain"
)

// Report is a portfolio performance report built from the latest aggregate
// snapshot and the stored replays.
type Report struct {
	// Metadata
	GeneratedAt time.Time
	Scope       string
	PortfolioID string

	// Latest aggregate snapshot for Scope
	Summary *domain.AggregateStatistics

	// Group breakdowns (sorted by dimension, then key)
	Groups []GroupSection

	// Replays of the portfolio's closed positions (sorted by entry date)
	Replays []ReplayRow
}

// GroupSection is one grouping dimension of the summary.
type GroupSection struct {
	Dimension string
	Rows      []GroupRow
}

// GroupRow is one key within a dimension.
type GroupRow struct {
	Key          string
	TotalTrades  int
	WinRate      float64
	NetPnL       decimal.Decimal
	AvgPnL       decimal.Decimal
	ProfitFactor float64
}

// ReplayRow summarizes one replay.
type ReplayRow struct {
	ReplayID       string
	Symbol         string
	Direction      domain.Direction
	EntryDate      time.Time
	ExitDate       time.Time
	ProfitLoss     decimal.Decimal
	MaxRunUp       decimal.Decimal
	MaxDrawdown    decimal.Decimal
	MaxDrawdownPct decimal.Decimal
	Volatility     float64
	Notes          int
}
