// Package stats holds the pure statistics primitives shared by the metrics
// aggregator and the replay simulator. No function mutates its input.
package stats

import (
	"math"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"trade-analytics-lab/internal/domain"
)

// DefaultAnnualizationFactor is the number of trading days per year.
const DefaultAnnualizationFactor = 252

// WinRate returns wins / total * 100, 0 when total is 0.
func WinRate(wins, total int) float64 {
	return rate(wins, total)
}

// LossRate returns losses / total * 100, 0 when total is 0.
func LossRate(losses, total int) float64 {
	return rate(losses, total)
}

// BreakEvenRate returns breakEven / total * 100, 0 when total is 0.
func BreakEvenRate(breakEven, total int) float64 {
	return rate(breakEven, total)
}

func rate(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

// ProfitFactor returns grossProfit / |grossLoss|.
// Returns +Inf when there is profit and no loss, 0 when both are zero.
func ProfitFactor(grossProfit, grossLoss decimal.Decimal) float64 {
	loss := grossLoss.Abs()
	if loss.IsZero() {
		if grossProfit.IsPositive() {
			return math.Inf(1)
		}
		return 0
	}
	f, _ := grossProfit.Div(loss).Float64()
	return f
}

// Drawdown is the largest peak-to-trough decline of a curve.
type Drawdown struct {
	Amount decimal.Decimal
	Pct    decimal.Decimal // of the peak preceding the trough, 0 if that peak <= 0
}

// MaxDrawdown tracks the running peak of curve and returns the largest
// (peak - value). Zero for empty or non-decreasing curves.
func MaxDrawdown(curve []decimal.Decimal) Drawdown {
	var dd Drawdown
	if len(curve) == 0 {
		return dd
	}

	peak := curve[0]
	for _, v := range curve[1:] {
		if v.GreaterThan(peak) {
			peak = v
			continue
		}
		if drop := peak.Sub(v); drop.GreaterThan(dd.Amount) {
			dd.Amount = drop
			if peak.IsPositive() {
				dd.Pct = domain.PercentOf(drop, peak)
			} else {
				dd.Pct = decimal.Zero
			}
		}
	}
	return dd
}

// Peak returns the largest value of curve, 0 for an empty curve.
func Peak(curve []decimal.Decimal) decimal.Decimal {
	if len(curve) == 0 {
		return decimal.Zero
	}
	return decimal.Max(curve[0], curve[1:]...)
}

// EquityCurve returns the cumulative sums of pnls, starting at zero.
func EquityCurve(pnls []decimal.Decimal) []decimal.Decimal {
	curve := make([]decimal.Decimal, 0, len(pnls)+1)
	cum := decimal.Zero
	curve = append(curve, cum)
	for _, p := range pnls {
		cum = cum.Add(p)
		curve = append(curve, cum)
	}
	return curve
}

// MaxConsecutive returns the longest run of target in outcomes. Any other
// outcome, break-even included, resets the run.
func MaxConsecutive(outcomes []domain.Outcome, target domain.Outcome) int {
	best, cur := 0, 0
	for _, o := range outcomes {
		if o == target {
			cur++
			if cur > best {
				best = cur
			}
		} else {
			cur = 0
		}
	}
	return best
}

// CurrentStreak returns the length of the trailing run: positive for wins,
// negative for losses, 0 when the last outcome is break-even.
func CurrentStreak(outcomes []domain.Outcome) int {
	if len(outcomes) == 0 {
		return 0
	}
	last := outcomes[len(outcomes)-1]
	if last == domain.OutcomeBreakEven {
		return 0
	}
	n := 0
	for i := len(outcomes) - 1; i >= 0 && outcomes[i] == last; i-- {
		n++
	}
	if last == domain.OutcomeLoss {
		return -n
	}
	return n
}

// Mean returns the arithmetic mean, 0 for empty input.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return stat.Mean(xs, nil)
}

// StdDev returns the sample standard deviation (n-1), 0 for fewer than 2 values.
func StdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	return stat.StdDev(xs, nil)
}

// Volatility returns StdDev(returns) * sqrt(annualization) as a percentage.
// A non-positive annualization falls back to DefaultAnnualizationFactor.
func Volatility(returns []float64, annualization float64) float64 {
	if annualization <= 0 {
		annualization = DefaultAnnualizationFactor
	}
	return StdDev(returns) * math.Sqrt(annualization) * 100
}

// Returns converts a price series to simple bar-to-bar returns. Steps from a
// zero price are skipped.
func Returns(prices []decimal.Decimal) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		prev := prices[i-1]
		if prev.IsZero() {
			continue
		}
		r, _ := prices[i].Sub(prev).Div(prev).Float64()
		out = append(out, r)
	}
	return out
}

// Percentile uses linear interpolation between closest ranks.
// sorted must be ascending; p is a fraction (0.10 = 10th percentile).
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}

	idx := p * float64(n-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

// SharpeRatio returns mean / stdev of returns (no risk-free rate),
// 0 when the deviation is zero.
func SharpeRatio(returns []float64) float64 {
	sd := StdDev(returns)
	if sd == 0 {
		return 0
	}
	return Mean(returns) / sd
}

// SortinoRatio returns mean / downside deviation, where the downside
// deviation only counts negative returns. 0 when there are no losses.
func SortinoRatio(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	sumSq := 0.0
	for _, r := range returns {
		if r < 0 {
			sumSq += r * r
		}
	}
	if sumSq == 0 {
		return 0
	}
	return Mean(returns) / math.Sqrt(sumSq/float64(len(returns)))
}
