package metrics

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"trade-analytics-lab/internal/domain"
	"trade-analytics-lab/internal/stats"
)

// MetricKind selects one family of statistics.
type MetricKind int

const (
	KindCounts MetricKind = iota
	KindValues
	KindRatios
	KindDrawdown
	KindVolatility
	KindStreaks
	KindTime
	KindDistribution
	KindGroups
)

var kindNames = map[MetricKind]string{
	KindCounts:       "counts",
	KindValues:       "values",
	KindRatios:       "ratios",
	KindDrawdown:     "drawdown",
	KindVolatility:   "volatility",
	KindStreaks:      "streaks",
	KindTime:         "time",
	KindDistribution: "distribution",
	KindGroups:       "groups",
}

// String returns the kind name.
func (k MetricKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// AllKinds lists every metric kind in computation order.
var AllKinds = []MetricKind{
	KindCounts,
	KindValues,
	KindRatios,
	KindDrawdown,
	KindVolatility,
	KindStreaks,
	KindTime,
	KindDistribution,
	KindGroups,
}

// metricFunc fills its fields of out from in. It must not read other fields of out.
type metricFunc func(in *input, out *domain.AggregateStatistics)

var metricFuncs = map[MetricKind]metricFunc{
	KindCounts:       computeCounts,
	KindValues:       computeValues,
	KindRatios:       computeRatios,
	KindDrawdown:     computeDrawdown,
	KindVolatility:   computeVolatility,
	KindStreaks:      computeStreaks,
	KindTime:         computeTime,
	KindDistribution: computeDistribution,
	KindGroups:       computeGroups,
}

// Aggregate computes every metric kind over positions.
func Aggregate(positions []*domain.Position) *domain.AggregateStatistics {
	return AggregateKinds(positions, AllKinds...)
}

// AggregateKinds runs the preprocessing pipeline and then only the given
// kinds. Scope and ComputedAt are left for the caller to set, so the same
// input always yields the same output.
func AggregateKinds(positions []*domain.Position, kinds ...MetricKind) *domain.AggregateStatistics {
	kept, excluded := Preprocess(positions)
	in := newInput(kept)

	out := &domain.AggregateStatistics{
		TotalTrades:    len(kept),
		ExcludedTrades: excluded,
	}
	for _, k := range kinds {
		if fn, ok := metricFuncs[k]; ok {
			fn(in, out)
		}
	}
	return out
}

// input is derived once per aggregation. positions are preprocessed.
type input struct {
	positions []*domain.Position
	pnls      []decimal.Decimal // realized, chronological
	outcomes  []domain.Outcome
	returns   []float64 // PnLPct / 100, chronological

	wins, losses, breakEven int

	grossProfit decimal.Decimal
	grossLoss   decimal.Decimal // absolute
	fees        decimal.Decimal
	largestWin  decimal.Decimal
	largestLoss decimal.Decimal // absolute
}

func newInput(positions []*domain.Position) *input {
	in := &input{
		positions: positions,
		pnls:      make([]decimal.Decimal, len(positions)),
		outcomes:  make([]domain.Outcome, len(positions)),
		returns:   make([]float64, len(positions)),
	}
	for i, p := range positions {
		pnl := p.RealizedPnL
		in.pnls[i] = pnl
		in.outcomes[i] = p.Outcome()
		r, _ := p.PnLPct.Float64()
		in.returns[i] = r / 100
		in.fees = in.fees.Add(p.Fees)

		switch in.outcomes[i] {
		case domain.OutcomeWin:
			in.wins++
			in.grossProfit = in.grossProfit.Add(pnl)
			if pnl.GreaterThan(in.largestWin) {
				in.largestWin = pnl
			}
		case domain.OutcomeLoss:
			in.losses++
			in.grossLoss = in.grossLoss.Add(pnl.Abs())
			if pnl.Abs().GreaterThan(in.largestLoss) {
				in.largestLoss = pnl.Abs()
			}
		default:
			in.breakEven++
		}
	}
	return in
}

func (in *input) n() int { return len(in.positions) }

func (in *input) avgWin() decimal.Decimal {
	return divInt(in.grossProfit, in.wins)
}

func (in *input) avgLoss() decimal.Decimal {
	return divInt(in.grossLoss, in.losses)
}

func computeCounts(in *input, out *domain.AggregateStatistics) {
	out.WinningTrades = in.wins
	out.LosingTrades = in.losses
	out.BreakEvenTrades = in.breakEven
	out.WinRate = round4(stats.WinRate(in.wins, in.n()))
	out.LossRate = round4(stats.LossRate(in.losses, in.n()))
	out.BreakEvenRate = round4(stats.BreakEvenRate(in.breakEven, in.n()))
}

func computeValues(in *input, out *domain.AggregateStatistics) {
	realized := in.grossProfit.Sub(in.grossLoss)

	out.GrossProfit = domain.RoundMoney(in.grossProfit)
	out.GrossLoss = domain.RoundMoney(in.grossLoss)
	out.TotalFees = domain.RoundMoney(in.fees)
	out.NetPnL = domain.RoundMoney(realized.Sub(in.fees))
	out.AvgPnL = domain.RoundMoney(divInt(realized, in.n()))
	out.AvgWin = domain.RoundMoney(in.avgWin())
	out.AvgLoss = domain.RoundMoney(in.avgLoss())
	out.LargestWin = domain.RoundMoney(in.largestWin)
	out.LargestLoss = domain.RoundMoney(in.largestLoss)

	// win% * avg win - loss% * avg loss
	winShare := divInt(decimal.NewFromInt(int64(in.wins)), in.n())
	lossShare := divInt(decimal.NewFromInt(int64(in.losses)), in.n())
	out.Expectancy = domain.RoundMoney(winShare.Mul(in.avgWin()).Sub(lossShare.Mul(in.avgLoss())))
}

func computeRatios(in *input, out *domain.AggregateStatistics) {
	out.ProfitFactor = round4(stats.ProfitFactor(in.grossProfit, in.grossLoss))
	if in.wins > 0 && in.losses > 0 {
		rr, _ := in.avgWin().Div(in.avgLoss()).Float64()
		out.RiskReward = round4(rr)
	}
	out.SharpeRatio = round4(stats.SharpeRatio(in.returns))
	out.SortinoRatio = round4(stats.SortinoRatio(in.returns))
}

func computeDrawdown(in *input, out *domain.AggregateStatistics) {
	dd := stats.MaxDrawdown(stats.EquityCurve(in.pnls))
	out.MaxDrawdown = domain.RoundMoney(dd.Amount)
	pct, _ := domain.RoundRatio(dd.Pct).Float64()
	out.MaxDrawdownPct = pct
}

func computeVolatility(in *input, out *domain.AggregateStatistics) {
	out.Volatility = round4(stats.Volatility(in.returns, stats.DefaultAnnualizationFactor))
}

func computeStreaks(in *input, out *domain.AggregateStatistics) {
	out.MaxConsecutiveWins = stats.MaxConsecutive(in.outcomes, domain.OutcomeWin)
	out.MaxConsecutiveLosses = stats.MaxConsecutive(in.outcomes, domain.OutcomeLoss)
	out.CurrentStreak = stats.CurrentStreak(in.outcomes)
}

func computeTime(in *input, out *domain.AggregateStatistics) {
	n := in.n()
	if n == 0 {
		return
	}

	out.FirstEntry = in.positions[0].EntryTime
	holding := make([]float64, n)
	for i, p := range in.positions {
		if p.ExitTime.After(out.LastExit) {
			out.LastExit = *p.ExitTime
		}
		holding[i] = float64(p.HoldingDays)
	}
	out.AvgHoldingDays = round4(stats.Mean(holding))

	// Spans shorter than one unit count as one unit.
	spanDays := out.LastExit.Sub(out.FirstEntry).Hours() / 24
	out.TradesPerDay = round4(float64(n) / math.Max(spanDays, 1))
	out.TradesPerWeek = round4(float64(n) / math.Max(spanDays/7, 1))
	out.TradesPerMonth = round4(float64(n) / math.Max(spanDays/30, 1))
}

func computeDistribution(in *input, out *domain.AggregateStatistics) {
	sorted := make([]float64, len(in.returns))
	for i, r := range in.returns {
		sorted[i] = r * 100
	}
	sort.Float64s(sorted)

	out.ReturnP10 = round4(stats.Percentile(sorted, 0.10))
	out.ReturnP25 = round4(stats.Percentile(sorted, 0.25))
	out.ReturnMedian = round4(stats.Percentile(sorted, 0.50))
	out.ReturnP75 = round4(stats.Percentile(sorted, 0.75))
	out.ReturnP90 = round4(stats.Percentile(sorted, 0.90))
}

func computeGroups(in *input, out *domain.AggregateStatistics) {
	out.Groups = make(map[string]map[string]*domain.GroupStatistics, len(Dimensions))
	for _, dim := range Dimensions {
		groups := GroupBy(in.positions, dim.Key)
		if len(groups) == 0 {
			continue
		}
		byKey := make(map[string]*domain.GroupStatistics, len(groups))
		for _, g := range groups {
			byKey[g.Key] = summarize(g)
		}
		out.Groups[dim.Name] = byKey
	}
}

func summarize(g Group) *domain.GroupStatistics {
	in := newInput(g.Positions)
	realized := in.grossProfit.Sub(in.grossLoss)
	return &domain.GroupStatistics{
		Key:          g.Key,
		TotalTrades:  in.n(),
		WinRate:      round4(stats.WinRate(in.wins, in.n())),
		NetPnL:       domain.RoundMoney(realized.Sub(in.fees)),
		AvgPnL:       domain.RoundMoney(divInt(realized, in.n())),
		ProfitFactor: round4(stats.ProfitFactor(in.grossProfit, in.grossLoss)),
	}
}

func divInt(d decimal.Decimal, n int) decimal.Decimal {
	if n == 0 {
		return decimal.Zero
	}
	return d.Div(decimal.NewFromInt(int64(n)))
}

// round4 rounds half away from zero to 4 places. Infinities pass through.
func round4(x float64) float64 {
	if math.IsInf(x, 0) || math.IsNaN(x) {
		return x
	}
	return math.Round(x*1e4) / 1e4
}
