// Package reconcile turns a stream of executions into positions.
//
// Executions for one (portfolio, symbol) key are applied in the order given
// and must be non-decreasing in timestamp; an execution older than the last
// applied one is rejected, never reordered. SortByTimestamp presorts a batch.
// Each execution either moves the current position through a clean state
// transition or is rejected with *domain.InvalidExecutionError and leaves the
// position untouched.
package reconcile

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"trade-analytics-lab/internal/domain"
	"trade-analytics-lab/internal/idhash"
)

// Result holds the outcome of reconciling executions for one key.
type Result struct {
	Key domain.PositionKey
	// Positions lists the final state of every position touched, in the
	// order they were opened.
	Positions []*domain.Position
	// Open is the position still open after the batch, nil if flat.
	Open *domain.Position
}

// Closed returns the positions of the result that are CLOSED.
func (r *Result) Closed() []*domain.Position {
	var out []*domain.Position
	for _, p := range r.Positions {
		if p.IsClosed() {
			out = append(out, p)
		}
	}
	return out
}

// Reconcile applies executions for a single key on top of open (nil if flat).
// Executions are applied in input order and must not go back in time. The
// batch is all-or-nothing: on the first rejection nothing is returned and
// open is not modified.
func Reconcile(executions []*domain.Execution, open *domain.Position) (*Result, error) {
	if len(executions) == 0 {
		res := &Result{Open: open}
		if open != nil {
			res.Key = open.Key()
		}
		return res, nil
	}

	book := NewBook(executions[0].Key(), open)

	latest := make(map[string]*domain.Position)
	var order []string
	for _, e := range executions {
		changed, err := book.Apply(e)
		if err != nil {
			return nil, err
		}
		for _, p := range changed {
			if _, ok := latest[p.PositionID]; !ok {
				order = append(order, p.PositionID)
			}
			latest[p.PositionID] = p
		}
	}

	positions := make([]*domain.Position, len(order))
	for i, id := range order {
		positions[i] = latest[id]
	}
	return &Result{Key: book.Key(), Positions: positions, Open: book.Open()}, nil
}

// ReconcileAll partitions executions by key and reconciles each key on top
// of its open position from open (may be nil). Results are ordered by key.
// Keys are independent: a rejection in one key aborts only that key, and its
// error is returned alongside the results of the other keys.
func ReconcileAll(executions []*domain.Execution, open map[domain.PositionKey]*domain.Position) ([]*Result, map[domain.PositionKey]error) {
	byKey := make(map[domain.PositionKey][]*domain.Execution)
	var keys []domain.PositionKey
	for _, e := range executions {
		k := e.Key()
		if _, ok := byKey[k]; !ok {
			keys = append(keys, k)
		}
		byKey[k] = append(byKey[k], e)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})

	var results []*Result
	var errs map[domain.PositionKey]error
	for _, k := range keys {
		res, err := Reconcile(byKey[k], open[k])
		if err != nil {
			if errs == nil {
				errs = make(map[domain.PositionKey]error)
			}
			errs[k] = err
			continue
		}
		results = append(results, res)
	}
	return results, errs
}

// SortByTimestamp returns a copy of executions ordered by timestamp. The sort
// is stable, so same-instant executions keep their input order.
func SortByTimestamp(executions []*domain.Execution) []*domain.Execution {
	sorted := make([]*domain.Execution, len(executions))
	copy(sorted, executions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	return sorted
}

// apply is the transition function. It never mutates open; the returned
// positions are fresh copies.
func apply(open *domain.Position, e *domain.Execution) (changed []*domain.Position, next *domain.Position, err error) {
	if err := e.Validate(); err != nil {
		return nil, nil, err
	}

	if open == nil {
		p := openPosition(e)
		return []*domain.Position{p}, p, nil
	}

	if open.Key() != e.Key() {
		return nil, nil, domain.NewInvalidExecutionError(e,
			fmt.Sprintf("key %s does not match open position %s", e.Key(), open.Key()))
	}
	if open.IsClosed() {
		return nil, nil, domain.NewInvalidExecutionError(e, "position "+open.PositionID+" is already closed")
	}

	p := open.Clone()
	sign := e.Side.Sign()

	if sign == p.Direction.Sign() {
		if err := add(p, e); err != nil {
			return nil, nil, domain.NewInvalidExecutionError(e, err.Error())
		}
		return []*domain.Position{p}, p, nil
	}

	openQty := p.OpenQuantity.Abs()
	switch e.Quantity.Cmp(openQty) {
	case -1:
		if err := reduce(p, e, eventReduce); err != nil {
			return nil, nil, domain.NewInvalidExecutionError(e, err.Error())
		}
		return []*domain.Position{p}, p, nil

	case 0:
		if err := reduce(p, e, eventClose); err != nil {
			return nil, nil, domain.NewInvalidExecutionError(e, err.Error())
		}
		return []*domain.Position{p}, nil, nil
	}

	// Flip: the offsetting portion closes p at the execution price, the
	// residual opens a new position in the opposite direction at the same
	// timestamp and price.
	closing := e.Fragment(openQty)
	opening := e.Fragment(e.Quantity.Sub(openQty))
	opening.Fees = e.Fees.Sub(closing.Fees)

	if err := reduce(p, closing, eventClose); err != nil {
		return nil, nil, domain.NewInvalidExecutionError(e, err.Error())
	}
	np := openPosition(opening)
	return []*domain.Position{p, np}, np, nil
}

func openPosition(e *domain.Execution) *domain.Position {
	dir := domain.DirectionFromSign(e.Side.Sign())
	return &domain.Position{
		PositionID:      idhash.ComputePositionID(e.PortfolioID, e.Symbol, dir, e.ExecutionID, e.Timestamp.UnixMilli()),
		Symbol:          e.Symbol,
		PortfolioID:     e.PortfolioID,
		StrategyID:      e.StrategyID,
		TraderID:        e.TraderID,
		Direction:       dir,
		Status:          domain.StatusOpen,
		EntryExecutions: []*domain.Execution{e},
		OpenQuantity:    e.SignedQuantity(),
		EntryQuantity:   e.Quantity,
		ExitQuantity:    decimal.Zero,
		AvgEntryPrice:   e.Price,
		AvgExitPrice:    decimal.Zero,
		RealizedPnL:     decimal.Zero,
		PnLPct:          decimal.Zero,
		Fees:            e.Fees,
		EntryTime:       e.Timestamp,
	}
}

// add grows the position and re-weights the average entry price:
// avg = (avg*|open| + px*q) / (|open| + q).
func add(p *domain.Position, e *domain.Execution) error {
	status, err := transition(p.Status, eventAdd)
	if err != nil {
		return err
	}

	openQty := p.OpenQuantity.Abs()
	newQty := openQty.Add(e.Quantity)
	p.AvgEntryPrice = p.AvgEntryPrice.Mul(openQty).Add(e.Price.Mul(e.Quantity)).Div(newQty)
	p.OpenQuantity = p.OpenQuantity.Add(e.SignedQuantity())
	p.EntryQuantity = p.EntryQuantity.Add(e.Quantity)
	p.Fees = p.Fees.Add(e.Fees)
	p.EntryExecutions = append(p.EntryExecutions, e)
	if p.StrategyID == "" {
		p.StrategyID = e.StrategyID
	}
	p.Status = status
	return nil
}

// reduce realizes (px - avg) * q * sign for the reduced quantity. The average
// entry price is unchanged.
func reduce(p *domain.Position, e *domain.Execution, ev event) error {
	status, err := transition(p.Status, ev)
	if err != nil {
		return err
	}

	dirSign := decimal.NewFromInt(int64(p.Direction.Sign()))
	pnl := e.Price.Sub(p.AvgEntryPrice).Mul(e.Quantity).Mul(dirSign)

	exitQty := p.ExitQuantity.Add(e.Quantity)
	p.AvgExitPrice = p.AvgExitPrice.Mul(p.ExitQuantity).Add(e.Price.Mul(e.Quantity)).Div(exitQty)
	p.ExitQuantity = exitQty
	p.RealizedPnL = p.RealizedPnL.Add(pnl)
	p.OpenQuantity = p.OpenQuantity.Add(e.SignedQuantity())
	p.Fees = p.Fees.Add(e.Fees)
	p.ExitExecutions = append(p.ExitExecutions, e)
	p.PnLPct = domain.PercentOf(p.RealizedPnL, p.CostBasis())
	p.Status = status

	if status == domain.StatusClosed {
		finalize(p, e.Timestamp)
	}
	return nil
}

func finalize(p *domain.Position, at time.Time) {
	exit := at
	p.ExitTime = &exit
	p.OpenQuantity = decimal.Zero
	p.HoldingDays = int(at.Sub(p.EntryTime).Hours() / 24)
}
