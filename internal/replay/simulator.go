// Package replay re-runs a closed position against historical bars to show
// how its P&L evolved between entry and exit.
package replay

import (
	"math"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"trade-analytics-lab/internal/domain"
	"trade-analytics-lab/internal/stats"
)

// Simulator computes replays. It holds no mutable state and is safe for
// concurrent use.
type Simulator struct {
	annualization float64
	log           zerolog.Logger
}

// NewSimulator creates a simulator. A non-positive annualization uses
// stats.DefaultAnnualizationFactor.
func NewSimulator(annualization float64, log zerolog.Logger) *Simulator {
	if annualization <= 0 {
		annualization = stats.DefaultAnnualizationFactor
	}
	return &Simulator{
		annualization: annualization,
		log:           log.With().Str("component", "replay").Logger(),
	}
}

type validBar struct {
	point domain.ReplayPoint
	close decimal.Decimal
}

// Replay walks bars (ascending) for a CLOSED position. Malformed bars are
// skipped with a warning. Fewer than two usable bars is an
// *domain.InsufficientDataError. ReplayID and CreatedAt are left unset.
func (s *Simulator) Replay(p *domain.Position, bars []domain.PriceBar) (*domain.Replay, error) {
	if p == nil || !p.IsClosed() || p.ExitTime == nil {
		return nil, ErrPositionNotClosed
	}
	if len(bars) < 2 {
		return nil, &domain.InsufficientDataError{
			Subject: p.PositionID, Have: len(bars), Need: 2, Reason: "fewer than 2 bars",
		}
	}

	valid := s.usableBars(p, bars)
	if len(valid) < 2 {
		reason := "fewer than 2 well-formed bars"
		if len(valid) == 0 {
			reason = "all bars malformed"
		}
		return nil, &domain.InsufficientDataError{
			Subject: p.PositionID, Have: len(valid), Need: 2, Reason: reason,
		}
	}

	qty := p.EntryQuantity
	entry := p.AvgEntryPrice
	sign := decimal.NewFromInt(int64(p.Direction.Sign()))
	cost := p.CostBasis()

	points := make([]domain.ReplayPoint, len(valid))
	closes := make([]decimal.Decimal, len(valid))
	// The path starts flat at entry.
	curve := make([]decimal.Decimal, 0, len(valid)+1)
	curve = append(curve, decimal.Zero)
	for i, b := range valid {
		pnl := b.close.Sub(entry).Mul(qty).Mul(sign)
		pt := b.point
		pt.PnL = pnl
		pt.PnLPct = domain.PercentOf(pnl, cost)
		points[i] = pt
		closes[i] = b.close
		curve = append(curve, pnl)
	}

	dd := stats.MaxDrawdown(curve)
	runUp := stats.Peak(curve)

	r := &domain.Replay{
		PositionID:  p.PositionID,
		UserID:      p.TraderID,
		PortfolioID: p.PortfolioID,
		StrategyID:  p.StrategyID,
		Symbol:      p.Symbol,
		Direction:   p.Direction,

		Quantity:   qty,
		EntryPrice: entry,
		ExitPrice:  p.AvgExitPrice,
		EntryDate:  p.EntryTime,
		ExitDate:   *p.ExitTime,

		ProfitLoss:     p.RealizedPnL,
		ProfitLossPct:  p.PnLPct,
		MaxDrawdown:    dd.Amount,
		MaxDrawdownPct: domain.PercentOf(dd.Amount, cost),
		MaxRunUp:       runUp,
		MaxRunUpPct:    domain.PercentOf(runUp, cost),

		Volatility:       round4(stats.Volatility(stats.Returns(closes), s.annualization)),
		AvgDailyMovement: round4(avgMovement(closes)),
		Points:           points,
	}
	return r.Rounded(), nil
}

// usableBars drops bars with malformed dates, non-positive closes, or
// times not after the previous usable bar.
func (s *Simulator) usableBars(p *domain.Position, bars []domain.PriceBar) []validBar {
	out := make([]validBar, 0, len(bars))
	for i, b := range bars {
		ts, err := b.Time()
		if err != nil {
			s.log.Warn().Err(err).
				Str("position_id", p.PositionID).
				Int("bar", i).
				Msg("skipping malformed bar")
			continue
		}
		if !b.Close.IsPositive() {
			s.log.Warn().
				Str("position_id", p.PositionID).
				Int("bar", i).
				Str("close", b.Close.String()).
				Msg("skipping bar with non-positive close")
			continue
		}
		if n := len(out); n > 0 && !ts.After(out[n-1].point.Time) {
			s.log.Warn().
				Str("position_id", p.PositionID).
				Int("bar", i).
				Time("time", ts).
				Msg("skipping out-of-order bar")
			continue
		}
		out = append(out, validBar{
			point: domain.ReplayPoint{Time: ts, Price: b.Close},
			close: b.Close,
		})
	}
	return out
}

// avgMovement is the mean of |close[i] - close[i-1]| / close[i-1] * 100.
func avgMovement(closes []decimal.Decimal) float64 {
	returns := stats.Returns(closes)
	moves := make([]float64, len(returns))
	for i, r := range returns {
		moves[i] = math.Abs(r) * 100
	}
	return stats.Mean(moves)
}

func round4(x float64) float64 {
	return math.Round(x*1e4) / 1e4
}
