// Package main imports a file of executions and runs the batch pipeline:
// reconcile into positions, refresh portfolio statistics and optionally
// replay the positions the batch closed.
//
// The file holds a JSON array of executions in the feed message format.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"trade-analytics-lab/internal/app"
	"trade-analytics-lab/internal/config"
	"trade-analytics-lab/internal/domain"
	"trade-analytics-lab/internal/feed"
	"trade-analytics-lab/internal/logger"
	"trade-analytics-lab/internal/metrics"
	"trade-analytics-lab/internal/orchestrator"
	"trade-analytics-lab/internal/replay"
	"trade-analytics-lab/internal/reporting"
	"trade-analytics-lab/internal/sampling"
)

// summary is the JSON form of a run.
type summary struct {
	ExecutionsReceived  int            `json:"executions_received"`
	ExecutionsDuplicate int            `json:"executions_duplicate"`
	ExecutionsApplied   int            `json:"executions_applied"`
	ExecutionsRejected  int            `json:"executions_rejected"`
	PositionsSaved      int            `json:"positions_saved"`
	PositionsClosed     int            `json:"positions_closed"`
	Portfolios          []portfolioRow `json:"portfolios"`
	Replays             map[string]int `json:"replays,omitempty"`
	Errors              []string       `json:"errors,omitempty"`
}

type portfolioRow struct {
	PortfolioID  string `json:"portfolio_id"`
	TotalTrades  int    `json:"total_trades"`
	WinRate      string `json:"win_rate"`
	NetPnL       string `json:"net_pnl"`
	ProfitFactor string `json:"profit_factor"`
}

func main() {
	configPath := flag.String("config", "", "Path to YAML config (optional)")
	file := flag.String("file", "", "JSON file of executions (required)")
	withReplay := flag.Bool("replay", false, "Replay positions closed by this batch")
	outputJSON := flag.Bool("json", false, "Print the summary as JSON")
	flag.Parse()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "Error: --file is required")
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sum, err := run(ctx, cfg, *file, *withReplay, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Reconcile failed")
	}

	if *outputJSON {
		out, _ := json.MarshalIndent(sum, "", "  ")
		fmt.Println(string(out))
		return
	}
	printSummary(sum)
}

func run(ctx context.Context, cfg *config.Config, file string, withReplay bool, log zerolog.Logger) (*summary, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read executions: %w", err)
	}
	executions, err := feed.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", file, err)
	}

	stores, err := app.OpenStores(ctx, cfg.Storage, log)
	if err != nil {
		return nil, err
	}
	defer stores.Close()

	var replayer *replay.Service
	if withReplay {
		replayer, _, err = app.NewReplayService(cfg, stores, sampling.NewMemoryCounterStore(), log)
		if err != nil {
			return nil, err
		}
	}

	orch := orchestrator.New(orchestrator.Options{
		Executions: stores.Executions,
		Positions:  stores.Positions,
		Ledger:     stores.Ledger,
		Aggregator: metrics.NewAggregator(stores.Positions, stores.Aggregates, log),
		Replayer:   replayer,
		Logger:     log,
	})

	res, err := orch.Run(ctx, executions)
	if err != nil {
		return nil, err
	}
	return newSummary(res), nil
}

func newSummary(res *orchestrator.RunResult) *summary {
	s := &summary{
		ExecutionsReceived:  res.ExecutionsReceived,
		ExecutionsDuplicate: res.ExecutionsDuplicate,
		ExecutionsApplied:   res.ExecutionsApplied,
		ExecutionsRejected:  res.ExecutionsRejected,
		PositionsSaved:      res.PositionsSaved,
		PositionsClosed:     len(res.PositionsClosed),
		Errors:              res.Errors,
	}
	if res.Replays.Total > 0 {
		s.Replays = res.Replays.ByStatus
	}
	for _, a := range res.Aggregates {
		s.Portfolios = append(s.Portfolios, portfolioRow{
			PortfolioID:  strings.TrimPrefix(a.Scope, metrics.PortfolioScope("")),
			TotalTrades:  a.TotalTrades,
			WinRate:      reporting.FormatFloat(a.WinRate),
			NetPnL:       domain.FormatFixed(a.NetPnL, 2),
			ProfitFactor: reporting.FormatFloat(a.ProfitFactor),
		})
	}
	sort.Slice(s.Portfolios, func(i, j int) bool {
		return s.Portfolios[i].PortfolioID < s.Portfolios[j].PortfolioID
	})
	return s
}

func printSummary(s *summary) {
	fmt.Printf("\n=== Reconcile Summary ===\n")
	fmt.Printf("Executions received:   %d\n", s.ExecutionsReceived)
	fmt.Printf("Executions duplicate:  %d\n", s.ExecutionsDuplicate)
	fmt.Printf("Executions applied:    %d\n", s.ExecutionsApplied)
	fmt.Printf("Executions rejected:   %d\n", s.ExecutionsRejected)
	fmt.Printf("Positions saved:       %d\n", s.PositionsSaved)
	fmt.Printf("Positions closed:      %d\n", s.PositionsClosed)

	if len(s.Portfolios) > 0 {
		fmt.Printf("\n%-20s %8s %10s %14s %14s\n", "Portfolio", "Trades", "Win rate", "Net P&L", "Profit factor")
		for _, p := range s.Portfolios {
			fmt.Printf("%-20s %8d %10s %14s %14s\n", p.PortfolioID, p.TotalTrades, p.WinRate, p.NetPnL, p.ProfitFactor)
		}
	}

	if len(s.Replays) > 0 {
		fmt.Printf("\nReplays:\n")
		statuses := make([]string, 0, len(s.Replays))
		for st := range s.Replays {
			statuses = append(statuses, st)
		}
		sort.Strings(statuses)
		for _, st := range statuses {
			fmt.Printf("  %-14s %d\n", st, s.Replays[st])
		}
	}

	if len(s.Errors) > 0 {
		fmt.Printf("\nErrors:\n")
		for _, e := range s.Errors {
			fmt.Printf("  - %s\n", e)
		}
	}
}
