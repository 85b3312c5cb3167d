package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReplayPoint is the position's mark-to-market at one bar close.
type ReplayPoint struct {
	Time   time.Time       `msgpack:"t"`
	Price  decimal.Decimal `msgpack:"p"`
	PnL    decimal.Decimal `msgpack:"v"`
	PnLPct decimal.Decimal `msgpack:"r"`
}

// Replay is the simulated price path of a closed position over its holding
// window. Immutable after creation apart from appended Notes.
type Replay struct {
	ReplayID    string
	PositionID  string
	UserID      string
	PortfolioID string
	StrategyID  string
	Symbol      string
	Direction   Direction
	Interval    BarInterval

	Quantity   decimal.Decimal
	EntryPrice decimal.Decimal
	ExitPrice  decimal.Decimal
	EntryDate  time.Time
	ExitDate   time.Time

	ProfitLoss     decimal.Decimal
	ProfitLossPct  decimal.Decimal
	MaxDrawdown    decimal.Decimal
	MaxDrawdownPct decimal.Decimal
	MaxRunUp       decimal.Decimal
	MaxRunUpPct    decimal.Decimal

	Volatility       float64 // annualized, percent
	AvgDailyMovement float64 // mean absolute bar-to-bar move, percent

	Points    []ReplayPoint
	Notes     []string
	CreatedAt time.Time
}

// Rounded returns a copy with money at scale 2 and ratios at scale 4.
func (r *Replay) Rounded() *Replay {
	c := *r
	c.EntryPrice = RoundRatio(r.EntryPrice)
	c.ExitPrice = RoundRatio(r.ExitPrice)
	c.ProfitLoss = RoundMoney(r.ProfitLoss)
	c.ProfitLossPct = RoundRatio(r.ProfitLossPct)
	c.MaxDrawdown = RoundMoney(r.MaxDrawdown)
	c.MaxDrawdownPct = RoundRatio(r.MaxDrawdownPct)
	c.MaxRunUp = RoundMoney(r.MaxRunUp)
	c.MaxRunUpPct = RoundRatio(r.MaxRunUpPct)
	c.Points = make([]ReplayPoint, len(r.Points))
	for i, p := range r.Points {
		c.Points[i] = ReplayPoint{
			Time:   p.Time,
			Price:  RoundRatio(p.Price),
			PnL:    RoundMoney(p.PnL),
			PnLPct: RoundRatio(p.PnLPct),
		}
	}
	c.Notes = append([]string(nil), r.Notes...)
	return &c
}
