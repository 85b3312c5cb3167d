package server

import (
	"math"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"trade-analytics-lab/internal/domain"
)

// jsonFloat encodes infinities as the strings "inf" and "-inf", which
// encoding/json cannot represent as numbers. NaN encodes as null.
type jsonFloat float64

func (f jsonFloat) MarshalJSON() ([]byte, error) {
	x := float64(f)
	switch {
	case math.IsInf(x, 1):
		return []byte(`"inf"`), nil
	case math.IsInf(x, -1):
		return []byte(`"-inf"`), nil
	case math.IsNaN(x):
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, x, 'f', -1, 64), nil
}

type statsView struct {
	Scope      string    `json:"scope"`
	ComputedAt time.Time `json:"computed_at"`

	TotalTrades     int       `json:"total_trades"`
	WinningTrades   int       `json:"winning_trades"`
	LosingTrades    int       `json:"losing_trades"`
	BreakEvenTrades int       `json:"break_even_trades"`
	ExcludedTrades  int       `json:"excluded_trades"`
	WinRate         jsonFloat `json:"win_rate"`
	LossRate        jsonFloat `json:"loss_rate"`
	BreakEvenRate   jsonFloat `json:"break_even_rate"`

	GrossProfit decimal.Decimal `json:"gross_profit"`
	GrossLoss   decimal.Decimal `json:"gross_loss"`
	NetPnL      decimal.Decimal `json:"net_pnl"`
	TotalFees   decimal.Decimal `json:"total_fees"`
	AvgPnL      decimal.Decimal `json:"avg_pnl"`
	AvgWin      decimal.Decimal `json:"avg_win"`
	AvgLoss     decimal.Decimal `json:"avg_loss"`
	LargestWin  decimal.Decimal `json:"largest_win"`
	LargestLoss decimal.Decimal `json:"largest_loss"`
	Expectancy  decimal.Decimal `json:"expectancy"`

	ProfitFactor jsonFloat `json:"profit_factor"`
	RiskReward   jsonFloat `json:"risk_reward"`
	SharpeRatio  jsonFloat `json:"sharpe_ratio"`
	SortinoRatio jsonFloat `json:"sortino_ratio"`

	MaxDrawdown    decimal.Decimal `json:"max_drawdown"`
	MaxDrawdownPct jsonFloat       `json:"max_drawdown_pct"`
	Volatility     jsonFloat       `json:"volatility"`

	MaxConsecutiveWins   int `json:"max_consecutive_wins"`
	MaxConsecutiveLosses int `json:"max_consecutive_losses"`
	CurrentStreak        int `json:"current_streak"`

	FirstEntry     time.Time `json:"first_entry"`
	LastExit       time.Time `json:"last_exit"`
	AvgHoldingDays jsonFloat `json:"avg_holding_days"`
	TradesPerDay   jsonFloat `json:"trades_per_day"`
	TradesPerWeek  jsonFloat `json:"trades_per_week"`
	TradesPerMonth jsonFloat `json:"trades_per_month"`

	Returns map[string]jsonFloat `json:"return_percentiles"`

	Groups map[string]map[string]groupView `json:"groups,omitempty"`
}

type groupView struct {
	TotalTrades  int             `json:"total_trades"`
	WinRate      jsonFloat       `json:"win_rate"`
	NetPnL       decimal.Decimal `json:"net_pnl"`
	AvgPnL       decimal.Decimal `json:"avg_pnl"`
	ProfitFactor jsonFloat       `json:"profit_factor"`
}

func newStatsView(a *domain.AggregateStatistics) statsView {
	v := statsView{
		Scope:      a.Scope,
		ComputedAt: a.ComputedAt,

		TotalTrades:     a.TotalTrades,
		WinningTrades:   a.WinningTrades,
		LosingTrades:    a.LosingTrades,
		BreakEvenTrades: a.BreakEvenTrades,
		ExcludedTrades:  a.ExcludedTrades,
		WinRate:         jsonFloat(a.WinRate),
		LossRate:        jsonFloat(a.LossRate),
		BreakEvenRate:   jsonFloat(a.BreakEvenRate),

		GrossProfit: a.GrossProfit,
		GrossLoss:   a.GrossLoss,
		NetPnL:      a.NetPnL,
		TotalFees:   a.TotalFees,
		AvgPnL:      a.AvgPnL,
		AvgWin:      a.AvgWin,
		AvgLoss:     a.AvgLoss,
		LargestWin:  a.LargestWin,
		LargestLoss: a.LargestLoss,
		Expectancy:  a.Expectancy,

		ProfitFactor: jsonFloat(a.ProfitFactor),
		RiskReward:   jsonFloat(a.RiskReward),
		SharpeRatio:  jsonFloat(a.SharpeRatio),
		SortinoRatio: jsonFloat(a.SortinoRatio),

		MaxDrawdown:    a.MaxDrawdown,
		MaxDrawdownPct: jsonFloat(a.MaxDrawdownPct),
		Volatility:     jsonFloat(a.Volatility),

		MaxConsecutiveWins:   a.MaxConsecutiveWins,
		MaxConsecutiveLosses: a.MaxConsecutiveLosses,
		CurrentStreak:        a.CurrentStreak,

		FirstEntry:     a.FirstEntry,
		LastExit:       a.LastExit,
		AvgHoldingDays: jsonFloat(a.AvgHoldingDays),
		TradesPerDay:   jsonFloat(a.TradesPerDay),
		TradesPerWeek:  jsonFloat(a.TradesPerWeek),
		TradesPerMonth: jsonFloat(a.TradesPerMonth),

		Returns: map[string]jsonFloat{
			"p10":    jsonFloat(a.ReturnP10),
			"p25":    jsonFloat(a.ReturnP25),
			"median": jsonFloat(a.ReturnMedian),
			"p75":    jsonFloat(a.ReturnP75),
			"p90":    jsonFloat(a.ReturnP90),
		},
	}

	if len(a.Groups) > 0 {
		v.Groups = make(map[string]map[string]groupView, len(a.Groups))
		for dim, keys := range a.Groups {
			gv := make(map[string]groupView, len(keys))
			for k, g := range keys {
				gv[k] = groupView{
					TotalTrades:  g.TotalTrades,
					WinRate:      jsonFloat(g.WinRate),
					NetPnL:       g.NetPnL,
					AvgPnL:       g.AvgPnL,
					ProfitFactor: jsonFloat(g.ProfitFactor),
				}
			}
			v.Groups[dim] = gv
		}
	}
	return v
}

type replayView struct {
	ReplayID    string           `json:"replay_id"`
	PositionID  string           `json:"position_id"`
	PortfolioID string           `json:"portfolio_id"`
	StrategyID  string           `json:"strategy_id,omitempty"`
	Symbol      string           `json:"symbol"`
	Direction   domain.Direction `json:"direction"`
	Interval    string           `json:"interval"`

	Quantity   decimal.Decimal `json:"quantity"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	ExitPrice  decimal.Decimal `json:"exit_price"`
	EntryDate  time.Time       `json:"entry_date"`
	ExitDate   time.Time       `json:"exit_date"`

	ProfitLoss       decimal.Decimal `json:"profit_loss"`
	ProfitLossPct    decimal.Decimal `json:"profit_loss_pct"`
	MaxDrawdown      decimal.Decimal `json:"max_drawdown"`
	MaxDrawdownPct   decimal.Decimal `json:"max_drawdown_pct"`
	MaxRunUp         decimal.Decimal `json:"max_run_up"`
	MaxRunUpPct      decimal.Decimal `json:"max_run_up_pct"`
	Volatility       jsonFloat       `json:"volatility"`
	AvgDailyMovement jsonFloat       `json:"avg_daily_movement"`

	Points    []pointView `json:"points,omitempty"`
	Notes     []string    `json:"notes"`
	CreatedAt time.Time   `json:"created_at"`
}

type pointView struct {
	Time   time.Time       `json:"t"`
	Price  decimal.Decimal `json:"price"`
	PnL    decimal.Decimal `json:"pnl"`
	PnLPct decimal.Decimal `json:"pnl_pct"`
}

// newReplayView renders r rounded. Points are included when withPoints is set.
func newReplayView(r *domain.Replay, withPoints bool) replayView {
	r = r.Rounded()
	v := replayView{
		ReplayID:    r.ReplayID,
		PositionID:  r.PositionID,
		PortfolioID: r.PortfolioID,
		StrategyID:  r.StrategyID,
		Symbol:      r.Symbol,
		Direction:   r.Direction,
		Interval:    string(r.Interval),

		Quantity:   r.Quantity,
		EntryPrice: r.EntryPrice,
		ExitPrice:  r.ExitPrice,
		EntryDate:  r.EntryDate,
		ExitDate:   r.ExitDate,

		ProfitLoss:       r.ProfitLoss,
		ProfitLossPct:    r.ProfitLossPct,
		MaxDrawdown:      r.MaxDrawdown,
		MaxDrawdownPct:   r.MaxDrawdownPct,
		MaxRunUp:         r.MaxRunUp,
		MaxRunUpPct:      r.MaxRunUpPct,
		Volatility:       jsonFloat(r.Volatility),
		AvgDailyMovement: jsonFloat(r.AvgDailyMovement),

		Notes:     r.Notes,
		CreatedAt: r.CreatedAt,
	}
	if v.Notes == nil {
		v.Notes = []string{}
	}
	if withPoints {
		v.Points = make([]pointView, len(r.Points))
		for i, p := range r.Points {
			v.Points[i] = pointView{Time: p.Time, Price: p.Price, PnL: p.PnL, PnLPct: p.PnLPct}
		}
	}
	return v
}

func newReplayViews(replays []*domain.Replay) []replayView {
	out := make([]replayView, len(replays))
	for i, r := range replays {
		out[i] = newReplayView(r, false)
	}
	return out
}

type samplingDayView struct {
	UserID       string `json:"user_id"`
	Day          string `json:"day"`
	TradesSeen   int64  `json:"trades_seen"`
	TradesStored int64  `json:"trades_stored"`
}

type samplingView struct {
	Evaluated       int64             `json:"evaluated"`
	Stored          int64             `json:"stored"`
	Skipped         int64             `json:"skipped"`
	StoreRate       jsonFloat         `json:"store_rate"`
	StoredByReason  map[string]int64  `json:"stored_by_reason"`
	ActiveUserDays  int               `json:"active_user_days"`
	LastEvaluatedAt *time.Time        `json:"last_evaluated_at,omitempty"`
	Days            []samplingDayView `json:"days"`
}

func newSamplingView(stats domain.SamplingStatistics, states []domain.SamplingState) samplingView {
	v := samplingView{
		Evaluated:      stats.Evaluated,
		Stored:         stats.Stored,
		Skipped:        stats.Skipped,
		StoreRate:      jsonFloat(stats.StoreRate()),
		StoredByReason: stats.StoredByReason,
		ActiveUserDays: stats.ActiveUserDays,
		Days:           make([]samplingDayView, 0, len(states)),
	}
	if !stats.LastEvaluatedAt.IsZero() {
		at := stats.LastEvaluatedAt
		v.LastEvaluatedAt = &at
	}
	for _, st := range states {
		v.Days = append(v.Days, samplingDayView{
			UserID:       st.UserID,
			Day:          st.Day.Format(time.DateOnly),
			TradesSeen:   st.TradesSeen,
			TradesStored: st.TradesStored,
		})
	}
	return v
}
