package reconcile

import (
	"fmt"

	"trade-analytics-lab/internal/domain"
)

// event is what an execution does to an open position.
type event int

const (
	eventAdd    event = iota // same direction, quantity grows
	eventReduce              // opposite direction, position stays open
	eventClose               // opposite direction, quantity reaches zero
)

func (e event) String() string {
	switch e {
	case eventAdd:
		return "add"
	case eventReduce:
		return "reduce"
	case eventClose:
		return "close"
	}
	return "unknown"
}

// transitions is the position lifecycle. CLOSED has no outgoing edges:
// reopening the key always creates a new Position.
var transitions = map[domain.PositionStatus]map[event]domain.PositionStatus{
	domain.StatusOpen: {
		eventAdd:    domain.StatusOpen,
		eventReduce: domain.StatusPartiallyClosed,
		eventClose:  domain.StatusClosed,
	},
	domain.StatusPartiallyClosed: {
		eventAdd:    domain.StatusPartiallyClosed,
		eventReduce: domain.StatusPartiallyClosed,
		eventClose:  domain.StatusClosed,
	},
}

func transition(from domain.PositionStatus, ev event) (domain.PositionStatus, error) {
	next, ok := transitions[from][ev]
	if !ok {
		return "", fmt.Errorf("illegal transition %s on %s", ev, from)
	}
	return next, nil
}
