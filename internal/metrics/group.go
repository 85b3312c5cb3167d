package metrics

import "trade-analytics-lab/internal/domain"

// KeyFunc extracts a grouping key. ok is false when the position lacks the
// field, which excludes it from that grouping only.
type KeyFunc func(p *domain.Position) (key string, ok bool)

// Group is one key of a GroupBy result.
type Group struct {
	Key       string
	Positions []*domain.Position
}

// GroupBy partitions positions by key. Groups appear in first-seen key
// order and keep input order within each group.
func GroupBy(positions []*domain.Position, key KeyFunc) []Group {
	index := make(map[string]int)
	var groups []Group
	for _, p := range positions {
		k, ok := key(p)
		if !ok {
			continue
		}
		i, seen := index[k]
		if !seen {
			i = len(groups)
			index[k] = i
			groups = append(groups, Group{Key: k})
		}
		groups[i].Positions = append(groups[i].Positions, p)
	}
	return groups
}

func nonEmpty(s string) (string, bool) {
	return s, s != ""
}

// BySymbol groups by symbol.
func BySymbol(p *domain.Position) (string, bool) { return nonEmpty(p.Symbol) }

// ByPortfolio groups by portfolio.
func ByPortfolio(p *domain.Position) (string, bool) { return nonEmpty(p.PortfolioID) }

// ByStrategy groups by strategy. Positions without a strategy are excluded.
func ByStrategy(p *domain.Position) (string, bool) { return nonEmpty(p.StrategyID) }

// ByEntryPsychology groups by the entry psychology annotation.
func ByEntryPsychology(p *domain.Position) (string, bool) { return nonEmpty(p.EntryPsychology) }

// ByExitPsychology groups by the exit psychology annotation.
func ByExitPsychology(p *domain.Position) (string, bool) { return nonEmpty(p.ExitPsychology) }

// ByBehaviorPattern groups by the behavior pattern annotation.
func ByBehaviorPattern(p *domain.Position) (string, bool) { return nonEmpty(p.BehaviorPattern) }

// Dimension binds a grouping dimension name to its key.
type Dimension struct {
	Name string
	Key  KeyFunc
}

// Dimensions are the groupings reported in AggregateStatistics.Groups.
var Dimensions = []Dimension{
	{Name: domain.DimensionSymbol, Key: BySymbol},
	{Name: domain.DimensionPortfolio, Key: ByPortfolio},
	{Name: domain.DimensionStrategy, Key: ByStrategy},
	{Name: domain.DimensionEntryPsychology, Key: ByEntryPsychology},
	{Name: domain.DimensionExitPsychology, Key: ByExitPsychology},
	{Name: domain.DimensionBehaviorPattern, Key: ByBehaviorPattern},
}
