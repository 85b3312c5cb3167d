package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the broker-reported side of a fill.
type Side string

const (
	SideBuy   Side = "BUY"
	SideSell  Side = "SELL"
	SideShort Side = "SHORT"
	SideCover Side = "COVER"
)

// String returns the string representation of Side.
func (s Side) String() string {
	return string(s)
}

// IsValid checks if the side is a known value.
func (s Side) IsValid() bool {
	switch s {
	case SideBuy, SideSell, SideShort, SideCover:
		return true
	}
	return false
}

// Sign returns +1 for BUY/COVER and -1 for SELL/SHORT. Unknown sides return 0.
func (s Side) Sign() int {
	switch s {
	case SideBuy, SideCover:
		return 1
	case SideSell, SideShort:
		return -1
	}
	return 0
}

// Execution is a single broker fill. Immutable once ingested.
type Execution struct {
	ExecutionID   string // unique per broker feed, used for dedup
	BrokerTradeID string
	Symbol        string
	Side          Side
	Quantity      decimal.Decimal // absolute, > 0
	Price         decimal.Decimal // > 0
	Fees          decimal.Decimal // commissions + fees, >= 0
	Timestamp     time.Time

	PortfolioID string
	StrategyID  string // optional
	TraderID    string
}

// SignedQuantity returns Quantity with the side's sign applied.
func (e *Execution) SignedQuantity() decimal.Decimal {
	return e.Quantity.Mul(decimal.NewFromInt(int64(e.Side.Sign())))
}

// Key returns the reconciliation key for this execution.
func (e *Execution) Key() PositionKey {
	return PositionKey{PortfolioID: e.PortfolioID, Symbol: e.Symbol}
}

// Validate checks the invariants every execution must satisfy before it may
// touch a position. Returns *InvalidExecutionError on failure.
func (e *Execution) Validate() error {
	switch {
	case e.ExecutionID == "":
		return NewInvalidExecutionError(e, "missing execution id")
	case e.Symbol == "":
		return NewInvalidExecutionError(e, "missing symbol")
	case e.PortfolioID == "":
		return NewInvalidExecutionError(e, "missing portfolio id")
	case !e.Side.IsValid():
		return NewInvalidExecutionError(e, "unknown side "+string(e.Side))
	case !e.Quantity.IsPositive():
		return NewInvalidExecutionError(e, "quantity must be positive")
	case !e.Price.IsPositive():
		return NewInvalidExecutionError(e, "price must be positive")
	case e.Fees.IsNegative():
		return NewInvalidExecutionError(e, "fees must not be negative")
	case e.Timestamp.IsZero():
		return NewInvalidExecutionError(e, "missing timestamp")
	}
	return nil
}

// Fragment returns a copy of the execution carrying only qty of the original
// fill. Fees are prorated by quantity.
func (e *Execution) Fragment(qty decimal.Decimal) *Execution {
	frag := *e
	frag.Quantity = qty
	if !e.Quantity.IsZero() {
		frag.Fees = e.Fees.Mul(qty).Div(e.Quantity)
	}
	return &frag
}

// PositionKey identifies the stream of executions reconciled together.
type PositionKey struct {
	PortfolioID string
	Symbol      string
}

// String returns "portfolio|symbol".
func (k PositionKey) String() string {
	return k.PortfolioID + "|" + k.Symbol
}
