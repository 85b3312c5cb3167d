package reporting

import (
	"encoding/csv"
	"strconv"
	"strings"
	"time"

	"trade-analytics-lab/internal/domain"
)

// RenderGroupsCSV renders the group breakdowns as CSV string.
func RenderGroupsCSV(r *Report) (string, error) {
	var sb strings.Builder
	w := csv.NewWriter(&sb)

	if err := w.Write([]string{"dimension", "key", "total_trades", "win_rate", "net_pnl", "avg_pnl", "profit_factor"}); err != nil {
		return "", err
	}
	for _, g := range r.Groups {
		for _, row := range g.Rows {
			rec := []string{
				g.Dimension,
				row.Key,
				strconv.Itoa(row.TotalTrades),
				FormatFloat(row.WinRate),
				domain.FormatFixed(row.NetPnL, 2),
				domain.FormatFixed(row.AvgPnL, 2),
				FormatFloat(row.ProfitFactor),
			}
			if err := w.Write(rec); err != nil {
				return "", err
			}
		}
	}

	w.Flush()
	return sb.String(), w.Error()
}

// RenderReplaysCSV renders the replay rows as CSV string.
func RenderReplaysCSV(r *Report) (string, error) {
	var sb strings.Builder
	w := csv.NewWriter(&sb)

	header := []string{
		"replay_id", "symbol", "direction", "entry_date", "exit_date",
		"profit_loss", "max_run_up", "max_drawdown", "max_drawdown_pct", "volatility", "notes",
	}
	if err := w.Write(header); err != nil {
		return "", err
	}
	for _, rp := range r.Replays {
		rec := []string{
			rp.ReplayID,
			rp.Symbol,
			string(rp.Direction),
			rp.EntryDate.UTC().Format(time.RFC3339),
			rp.ExitDate.UTC().Format(time.RFC3339),
			domain.FormatFixed(rp.ProfitLoss, 2),
			domain.FormatFixed(rp.MaxRunUp, 2),
			domain.FormatFixed(rp.MaxDrawdown, 2),
			domain.FormatFixed(rp.MaxDrawdownPct, 4),
			FormatFloat(rp.Volatility),
			strconv.Itoa(rp.Notes),
		}
		if err := w.Write(rec); err != nil {
			return "", err
		}
	}

	w.Flush()
	return sb.String(), w.Error()
}
