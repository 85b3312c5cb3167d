// Package main replays closed positions against historical bars and stores
// the sampled replays.
//
// Either a single position (--position-id) or every closed position of a
// portfolio (--portfolio) is replayed. --from-time/--to-time restrict the
// portfolio run to positions exited in that window; both bounds are required.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"trade-analytics-lab/internal/app"
	"trade-analytics-lab/internal/config"
	"trade-analytics-lab/internal/domain"
	"trade-analytics-lab/internal/logger"
	"trade-analytics-lab/internal/replay"
	"trade-analytics-lab/internal/sampling"
)

// resultRow is one replayed position.
type resultRow struct {
	PositionID string `json:"position_id"`
	Symbol     string `json:"symbol"`
	Status     string `json:"status"`
	ReplayID   string `json:"replay_id,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Error      string `json:"error,omitempty"`
}

type output struct {
	Positions int                       `json:"positions"`
	ByStatus  map[string]int            `json:"by_status"`
	Sampling  domain.SamplingStatistics `json:"sampling"`
	Results   []resultRow               `json:"results"`
}

func main() {
	configPath := flag.String("config", "", "Path to YAML config (optional)")
	portfolioID := flag.String("portfolio", "", "Portfolio whose closed positions are replayed")
	positionID := flag.String("position-id", "", "Replay a single position")
	fromTime := flag.String("from-time", "", "Exit time lower bound (RFC3339)")
	toTime := flag.String("to-time", "", "Exit time upper bound (RFC3339)")
	outputJSON := flag.Bool("json", false, "Output results as JSON")
	flag.Parse()

	if (*portfolioID == "") == (*positionID == "") {
		fmt.Fprintln(os.Stderr, "Error: exactly one of --portfolio or --position-id is required")
		flag.Usage()
		os.Exit(1)
	}

	var from, to time.Time
	if *fromTime != "" || *toTime != "" {
		if *fromTime == "" || *toTime == "" {
			fmt.Fprintln(os.Stderr, "Error: --from-time and --to-time must be specified together")
			os.Exit(1)
		}
		var err error
		if from, err = time.Parse(time.RFC3339, *fromTime); err != nil {
			fmt.Fprintf(os.Stderr, "Error: parse from-time: %v\n", err)
			os.Exit(1)
		}
		if to, err = time.Parse(time.RFC3339, *toTime); err != nil {
			fmt.Fprintf(os.Stderr, "Error: parse to-time: %v\n", err)
			os.Exit(1)
		}
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, err := app.OpenStores(ctx, cfg.Storage, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Open stores")
	}
	defer stores.Close()

	replayer, policy, err := app.NewReplayService(cfg, stores, sampling.NewMemoryCounterStore(), log)
	if err != nil {
		log.Fatal().Err(err).Msg("Create replay service")
	}

	positions, err := loadPositions(ctx, stores, *portfolioID, *positionID, from, to)
	if err != nil {
		log.Fatal().Err(err).Msg("Load positions")
	}
	if len(positions) == 0 {
		log.Warn().Msg("No closed positions to replay")
	}

	results, err := replayer.ReplayBatch(ctx, positions)
	if err != nil {
		log.Fatal().Err(err).Msg("Replay interrupted")
	}

	sum := replay.Summarize(results)
	out := output{
		Positions: sum.Total,
		ByStatus:  sum.ByStatus,
		Sampling:  policy.Statistics(),
		Results:   rows(results),
	}

	if *outputJSON {
		data, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(data))
		return
	}
	printSummary(out)
}

func loadPositions(ctx context.Context, stores *app.Stores, portfolioID, positionID string, from, to time.Time) ([]*domain.Position, error) {
	if positionID != "" {
		p, err := stores.Positions.GetByID(ctx, positionID)
		if err != nil {
			return nil, fmt.Errorf("position %s: %w", positionID, err)
		}
		if !p.IsClosed() {
			return nil, fmt.Errorf("position %s is %s, only closed positions can be replayed", positionID, p.Status)
		}
		return []*domain.Position{p}, nil
	}
	if !from.IsZero() {
		return stores.Positions.GetClosedByTimeRange(ctx, portfolioID, from, to)
	}
	return stores.Positions.GetClosedByPortfolio(ctx, portfolioID)
}

func rows(results []*replay.Result) []resultRow {
	out := make([]resultRow, 0, len(results))
	for _, r := range results {
		if r == nil {
			continue
		}
		row := resultRow{
			PositionID: r.PositionID,
			Status:     r.Status,
			Reason:     string(r.Decision.Reason),
		}
		if r.Replay != nil {
			row.Symbol = r.Replay.Symbol
			if r.Stored() {
				row.ReplayID = r.Replay.ReplayID
			}
		}
		if r.Err != nil {
			row.Error = r.Err.Error()
		}
		out = append(out, row)
	}
	return out
}

func printSummary(out output) {
	for _, r := range out.Results {
		line := fmt.Sprintf("%-40s %-8s %-12s", r.PositionID, r.Symbol, r.Status)
		if r.ReplayID != "" {
			line += " replay=" + r.ReplayID
		}
		if r.Error != "" {
			line += " error=" + r.Error
		}
		fmt.Println(line)
	}

	fmt.Printf("\n=== Replay Summary ===\n")
	fmt.Printf("Positions:         %d\n", out.Positions)
	statuses := make([]string, 0, len(out.ByStatus))
	for st := range out.ByStatus {
		statuses = append(statuses, st)
	}
	sort.Strings(statuses)
	for _, st := range statuses {
		fmt.Printf("  %-15s %d\n", st+":", out.ByStatus[st])
	}
	fmt.Printf("Sampling: evaluated=%d stored=%d skipped=%d store_rate=%.4f\n",
		out.Sampling.Evaluated, out.Sampling.Stored, out.Sampling.Skipped, out.Sampling.StoreRate())
}
