package reporting

import (
	"fmt"
	"math"
	"strings"
	"time"

	"trade-analytics-lab/internal/domain"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder
	s := r.Summary

	// Header
	sb.WriteString(fmt.Sprintf("# Performance Report: %s\n\n", r.Scope))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Snapshot: %s | Period: %s to %s\n\n",
		s.ComputedAt.Format(time.RFC3339), formatDate(s.FirstEntry), formatDate(s.LastExit)))

	// Trades
	sb.WriteString("## Trades\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Total Trades | %d |\n", s.TotalTrades))
	sb.WriteString(fmt.Sprintf("| Wins / Losses / Break-even | %d / %d / %d |\n", s.WinningTrades, s.LosingTrades, s.BreakEvenTrades))
	sb.WriteString(fmt.Sprintf("| Excluded | %d |\n", s.ExcludedTrades))
	sb.WriteString(fmt.Sprintf("| Win Rate %% | %s |\n", FormatFloat(s.WinRate)))
	sb.WriteString(fmt.Sprintf("| Loss Rate %% | %s |\n", FormatFloat(s.LossRate)))
	sb.WriteString(fmt.Sprintf("| Avg Holding Days | %s |\n", FormatFloat(s.AvgHoldingDays)))
	sb.WriteString(fmt.Sprintf("| Trades / Week | %s |\n", FormatFloat(s.TradesPerWeek)))
	sb.WriteString("\n")

	// P&L
	sb.WriteString("## Profit and Loss\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Net P&L | %s |\n", domain.FormatFixed(s.NetPnL, 2)))
	sb.WriteString(fmt.Sprintf("| Gross Profit | %s |\n", domain.FormatFixed(s.GrossProfit, 2)))
	sb.WriteString(fmt.Sprintf("| Gross Loss | %s |\n", domain.FormatFixed(s.GrossLoss, 2)))
	sb.WriteString(fmt.Sprintf("| Fees | %s |\n", domain.FormatFixed(s.TotalFees, 2)))
	sb.WriteString(fmt.Sprintf("| Avg Win / Avg Loss | %s / %s |\n", domain.FormatFixed(s.AvgWin, 2), domain.FormatFixed(s.AvgLoss, 2)))
	sb.WriteString(fmt.Sprintf("| Largest Win / Loss | %s / %s |\n", domain.FormatFixed(s.LargestWin, 2), domain.FormatFixed(s.LargestLoss, 2)))
	sb.WriteString(fmt.Sprintf("| Expectancy | %s |\n", domain.FormatFixed(s.Expectancy, 2)))
	sb.WriteString("\n")

	// Risk
	sb.WriteString("## Risk\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Profit Factor | %s |\n", FormatFloat(s.ProfitFactor)))
	sb.WriteString(fmt.Sprintf("| Risk/Reward | %s |\n", FormatFloat(s.RiskReward)))
	sb.WriteString(fmt.Sprintf("| Sharpe | %s |\n", FormatFloat(s.SharpeRatio)))
	sb.WriteString(fmt.Sprintf("| Sortino | %s |\n", FormatFloat(s.SortinoRatio)))
	sb.WriteString(fmt.Sprintf("| Max Drawdown | %s (%s%%) |\n", domain.FormatFixed(s.MaxDrawdown, 2), FormatFloat(s.MaxDrawdownPct)))
	sb.WriteString(fmt.Sprintf("| Volatility %% | %s |\n", FormatFloat(s.Volatility)))
	sb.WriteString(fmt.Sprintf("| Max Consecutive Wins / Losses | %d / %d |\n", s.MaxConsecutiveWins, s.MaxConsecutiveLosses))
	sb.WriteString(fmt.Sprintf("| Return P10 / Median / P90 %% | %s / %s / %s |\n",
		FormatFloat(s.ReturnP10), FormatFloat(s.ReturnMedian), FormatFloat(s.ReturnP90)))
	sb.WriteString("\n")

	// Groups
	for _, g := range r.Groups {
		sb.WriteString(fmt.Sprintf("## By %s\n\n", strings.ReplaceAll(g.Dimension, "_", " ")))
		sb.WriteString("| Key | Trades | WinRate | Net P&L | Avg P&L | Profit Factor |\n")
		sb.WriteString("|-----|--------|---------|---------|---------|---------------|\n")
		for _, row := range g.Rows {
			sb.WriteString(fmt.Sprintf("| %s | %d | %s | %s | %s | %s |\n",
				row.Key, row.TotalTrades, FormatFloat(row.WinRate),
				domain.FormatFixed(row.NetPnL, 2), domain.FormatFixed(row.AvgPnL, 2), FormatFloat(row.ProfitFactor)))
		}
		sb.WriteString("\n")
	}

	// Replays
	sb.WriteString("## Replays\n\n")
	if len(r.Replays) > 0 {
		sb.WriteString("| Replay | Symbol | Direction | Entry | Exit | P&L | Run-up | Drawdown | DD% | Vol% |\n")
		sb.WriteString("|--------|--------|-----------|-------|------|-----|--------|----------|-----|------|\n")
		for _, rp := range r.Replays {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s | %s | %s | %s | %s | %s |\n",
				rp.ReplayID, rp.Symbol, rp.Direction, formatDate(rp.EntryDate), formatDate(rp.ExitDate),
				domain.FormatFixed(rp.ProfitLoss, 2), domain.FormatFixed(rp.MaxRunUp, 2), domain.FormatFixed(rp.MaxDrawdown, 2),
				domain.FormatFixed(rp.MaxDrawdownPct, 2), FormatFloat(rp.Volatility)))
		}
	} else {
		sb.WriteString("No replays available.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}

// FormatFloat renders x with 4 decimals; infinities render as "inf"/"-inf".
func FormatFloat(x float64) string {
	switch {
	case math.IsInf(x, 1):
		return "inf"
	case math.IsInf(x, -1):
		return "-inf"
	case math.IsNaN(x):
		return "nan"
	}
	return fmt.Sprintf("%.4f", x)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02")
}
