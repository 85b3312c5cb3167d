package reconcile

import (
	"fmt"
	"time"

	"trade-analytics-lab/internal/domain"
)

// Book tracks the reconciliation state of a single key. It is not safe for
// concurrent use; Service gives each key to exactly one worker.
type Book struct {
	key      domain.PositionKey
	open     *domain.Position
	lastSeen time.Time
}

// NewBook creates a book for key, optionally resuming from an open position.
func NewBook(key domain.PositionKey, open *domain.Position) *Book {
	b := &Book{key: key}
	if open != nil && !open.IsClosed() {
		b.open = open.Clone()
		b.lastSeen = open.LastExecutionTime()
	}
	return b
}

// Key returns the book's key.
func (b *Book) Key() domain.PositionKey {
	return b.key
}

// Open returns a copy of the open position, nil if flat.
func (b *Book) Open() *domain.Position {
	return b.open.Clone()
}

// LastSeen returns the timestamp of the last applied execution.
func (b *Book) LastSeen() time.Time {
	return b.lastSeen
}

// Apply reconciles one execution. On success it returns copies of every
// position the execution changed (the closed one first on a flip). On
// failure the book is unchanged.
func (b *Book) Apply(e *domain.Execution) ([]*domain.Position, error) {
	changed, next, err := b.Preview(e)
	if err != nil {
		return nil, err
	}
	b.Commit(e, next)
	return changed, nil
}

// Preview computes the effect of e without changing the book. Use Commit to
// accept the preview once its side effects (persistence) have succeeded.
func (b *Book) Preview(e *domain.Execution) (changed []*domain.Position, next *domain.Position, err error) {
	if e == nil {
		return nil, nil, domain.NewInvalidExecutionError(nil, "nil execution")
	}
	if e.Key() != b.key {
		return nil, nil, domain.NewInvalidExecutionError(e,
			fmt.Sprintf("key %s routed to book %s", e.Key(), b.key))
	}
	if !b.lastSeen.IsZero() && e.Timestamp.Before(b.lastSeen) {
		return nil, nil, domain.NewInvalidExecutionError(e,
			fmt.Sprintf("timestamp %s earlier than last processed %s",
				e.Timestamp.Format(time.RFC3339Nano), b.lastSeen.Format(time.RFC3339Nano)))
	}

	changed, next, err = apply(b.open, e)
	if err != nil {
		return nil, nil, err
	}

	out := make([]*domain.Position, len(changed))
	for i, p := range changed {
		out[i] = p.Clone()
	}
	return out, next, nil
}

// Commit makes next the book's open position after e was applied.
func (b *Book) Commit(e *domain.Execution, next *domain.Position) {
	b.open = next
	if e.Timestamp.After(b.lastSeen) {
		b.lastSeen = e.Timestamp
	}
}
