package metrics

import (
	"sort"

	"trade-analytics-lab/internal/domain"
)

// Preprocessor is one step applied to positions before any metric runs.
// A step may drop positions but never fabricates them, and never mutates
// its input slice.
type Preprocessor struct {
	Name  string
	Apply func([]*domain.Position) []*domain.Position
}

// Preprocessors is the fixed, ordered preprocessing pipeline.
var Preprocessors = []Preprocessor{
	{Name: "valid", Apply: filterValid},
	{Name: "chronological", Apply: sortChronological},
}

// Preprocess runs Preprocessors and returns the kept positions along with
// the number dropped.
func Preprocess(positions []*domain.Position) ([]*domain.Position, int) {
	kept := positions
	for _, step := range Preprocessors {
		kept = step.Apply(kept)
	}
	return kept, len(positions) - len(kept)
}

// filterValid keeps CLOSED positions with an exit time and a positive cost basis.
func filterValid(positions []*domain.Position) []*domain.Position {
	out := make([]*domain.Position, 0, len(positions))
	for _, p := range positions {
		if p == nil || !p.IsClosed() || p.ExitTime == nil || p.EntryTime.IsZero() {
			continue
		}
		if !p.EntryQuantity.IsPositive() || !p.AvgEntryPrice.IsPositive() {
			continue
		}
		out = append(out, p)
	}
	return out
}

// sortChronological orders by EntryTime ASC, PositionID ASC.
func sortChronological(positions []*domain.Position) []*domain.Position {
	out := make([]*domain.Position, len(positions))
	copy(out, positions)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].EntryTime.Equal(out[j].EntryTime) {
			return out[i].EntryTime.Before(out[j].EntryTime)
		}
		return out[i].PositionID < out[j].PositionID
	})
	return out
}
