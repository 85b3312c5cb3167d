package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Grouping dimensions used by AggregateStatistics.Groups.
const (
	DimensionSymbol          = "symbol"
	DimensionPortfolio       = "portfolio"
	DimensionStrategy        = "strategy"
	DimensionEntryPsychology = "entry_psychology"
	DimensionExitPsychology  = "exit_psychology"
	DimensionBehaviorPattern = "behavior_pattern"
)

// AggregateStatistics is derived from a set of closed positions and never
// mutated after computation. Rates are percentages.
type AggregateStatistics struct {
	Scope      string // e.g. portfolio id, or "portfolio|strategy"
	ComputedAt time.Time

	// Counts
	TotalTrades     int
	WinningTrades   int
	LosingTrades    int
	BreakEvenTrades int
	ExcludedTrades  int // dropped by preprocessing
	WinRate         float64
	LossRate        float64
	BreakEvenRate   float64

	// Values
	GrossProfit decimal.Decimal
	GrossLoss   decimal.Decimal // absolute
	NetPnL      decimal.Decimal
	TotalFees   decimal.Decimal
	AvgPnL      decimal.Decimal
	AvgWin      decimal.Decimal
	AvgLoss     decimal.Decimal // absolute
	LargestWin  decimal.Decimal
	LargestLoss decimal.Decimal // absolute
	Expectancy  decimal.Decimal

	// Ratios
	ProfitFactor float64 // +Inf when there are wins and no losses
	RiskReward   float64 // AvgWin / AvgLoss
	SharpeRatio  float64
	SortinoRatio float64

	// Risk
	MaxDrawdown    decimal.Decimal // on the cumulative P&L curve
	MaxDrawdownPct float64
	Volatility     float64 // annualized stdev of per-trade returns, percent

	// Streaks
	MaxConsecutiveWins   int
	MaxConsecutiveLosses int
	CurrentStreak        int // >0 wins, <0 losses

	// Time
	FirstEntry     time.Time
	LastExit       time.Time
	AvgHoldingDays float64
	TradesPerDay   float64
	TradesPerWeek  float64
	TradesPerMonth float64

	// Distribution of per-trade P&L%
	ReturnP10    float64
	ReturnP25    float64
	ReturnMedian float64
	ReturnP75    float64
	ReturnP90    float64

	// Groups[dimension][key]
	Groups map[string]map[string]*GroupStatistics
}

// GroupStatistics is the per-key summary inside a grouping dimension.
type GroupStatistics struct {
	Key          string
	TotalTrades  int
	WinRate      float64
	NetPnL       decimal.Decimal
	AvgPnL       decimal.Decimal
	ProfitFactor float64
}
