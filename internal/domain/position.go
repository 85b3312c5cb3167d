package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction of an open position.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// String returns the string representation of Direction.
func (d Direction) String() string {
	return string(d)
}

// Sign returns +1 for LONG and -1 for SHORT.
func (d Direction) Sign() int {
	if d == DirectionShort {
		return -1
	}
	return 1
}

// DirectionFromSign maps a quantity sign to a direction.
func DirectionFromSign(sign int) Direction {
	if sign < 0 {
		return DirectionShort
	}
	return DirectionLong
}

// PositionStatus is the lifecycle state of a Position.
type PositionStatus string

const (
	StatusOpen            PositionStatus = "OPEN"
	StatusPartiallyClosed PositionStatus = "PARTIALLY_CLOSED"
	StatusClosed          PositionStatus = "CLOSED"
)

// String returns the string representation of PositionStatus.
func (s PositionStatus) String() string {
	return string(s)
}

// IsValid checks if the status is a known value.
func (s PositionStatus) IsValid() bool {
	return s == StatusOpen || s == StatusPartiallyClosed || s == StatusClosed
}

// Position is a round trip reconstructed from executions on one
// (portfolio, symbol) key. OpenQuantity always equals the signed sum of
// EntryExecutions and ExitExecutions. A CLOSED position is never reopened.
type Position struct {
	PositionID  string
	Symbol      string
	PortfolioID string
	StrategyID  string
	TraderID    string
	Direction   Direction
	Status      PositionStatus

	EntryExecutions []*Execution
	ExitExecutions  []*Execution

	OpenQuantity  decimal.Decimal // signed
	EntryQuantity decimal.Decimal // total absolute quantity added
	ExitQuantity  decimal.Decimal // total absolute quantity reduced
	AvgEntryPrice decimal.Decimal
	AvgExitPrice  decimal.Decimal
	RealizedPnL   decimal.Decimal // gross of fees
	PnLPct        decimal.Decimal // realized / (avg entry * entry qty) * 100
	Fees          decimal.Decimal

	EntryTime   time.Time
	ExitTime    *time.Time // set once CLOSED
	HoldingDays int

	// Optional journal annotations, empty when absent.
	EntryPsychology string
	ExitPsychology  string
	BehaviorPattern string
	Tags            []string
}

// Key returns the reconciliation key of the position.
func (p *Position) Key() PositionKey {
	return PositionKey{PortfolioID: p.PortfolioID, Symbol: p.Symbol}
}

// IsClosed reports whether the position is CLOSED.
func (p *Position) IsClosed() bool {
	return p.Status == StatusClosed
}

// NetPnL returns realized P&L minus fees.
func (p *Position) NetPnL() decimal.Decimal {
	return p.RealizedPnL.Sub(p.Fees)
}

// CostBasis returns avg entry price * entry quantity.
func (p *Position) CostBasis() decimal.Decimal {
	return p.AvgEntryPrice.Mul(p.EntryQuantity)
}

// LastExecutionTime returns the timestamp of the latest execution applied.
func (p *Position) LastExecutionTime() time.Time {
	last := p.EntryTime
	for _, e := range p.EntryExecutions {
		if e.Timestamp.After(last) {
			last = e.Timestamp
		}
	}
	for _, e := range p.ExitExecutions {
		if e.Timestamp.After(last) {
			last = e.Timestamp
		}
	}
	return last
}

// Outcome classifies the realized P&L.
func (p *Position) Outcome() Outcome {
	return OutcomeOf(p.RealizedPnL)
}

// Clone returns a deep copy. Executions are immutable and shared.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	c := *p
	c.EntryExecutions = append([]*Execution(nil), p.EntryExecutions...)
	c.ExitExecutions = append([]*Execution(nil), p.ExitExecutions...)
	c.Tags = append([]string(nil), p.Tags...)
	if p.ExitTime != nil {
		t := *p.ExitTime
		c.ExitTime = &t
	}
	return &c
}

// Rounded returns a copy with money fields at scale 2 and ratios at scale 4,
// for presentation and storage.
func (p *Position) Rounded() *Position {
	c := p.Clone()
	c.AvgEntryPrice = RoundRatio(c.AvgEntryPrice)
	c.AvgExitPrice = RoundRatio(c.AvgExitPrice)
	c.RealizedPnL = RoundMoney(c.RealizedPnL)
	c.PnLPct = RoundRatio(c.PnLPct)
	c.Fees = RoundMoney(c.Fees)
	return c
}

// Outcome is the sign class of a P&L value.
type Outcome int

const (
	OutcomeBreakEven Outcome = iota
	OutcomeWin
	OutcomeLoss
)

// String returns WIN, LOSS or BREAK_EVEN.
func (o Outcome) String() string {
	switch o {
	case OutcomeWin:
		return "WIN"
	case OutcomeLoss:
		return "LOSS"
	}
	return "BREAK_EVEN"
}

// OutcomeOf classifies a P&L value by sign.
func OutcomeOf(pnl decimal.Decimal) Outcome {
	switch pnl.Sign() {
	case 1:
		return OutcomeWin
	case -1:
		return OutcomeLoss
	}
	return OutcomeBreakEven
}
