// Package main writes the performance report for a portfolio:
//   - REPORT.md: headline statistics, group breakdowns and replays
//   - GROUPS.csv: one row per (dimension, key)
//   - REPLAYS.csv: one row per stored replay
//
// With --refresh a new snapshot is computed before rendering; otherwise the
// latest stored snapshot is used.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"trade-analytics-lab/internal/app"
	"trade-analytics-lab/internal/config"
	"trade-analytics-lab/internal/logger"
	"trade-analytics-lab/internal/metrics"
	"trade-analytics-lab/internal/reporting"
	"trade-analytics-lab/internal/storage"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config (optional)")
	portfolioID := flag.String("portfolio", "", "Portfolio to report on (required)")
	outputDir := flag.String("output-dir", "docs", "Output directory for generated files")
	refresh := flag.Bool("refresh", false, "Compute a new snapshot before rendering")
	flag.Parse()

	if *portfolioID == "" {
		fmt.Fprintln(os.Stderr, "Error: --portfolio is required")
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log)

	ctx := context.Background()

	stores, err := app.OpenStores(ctx, cfg.Storage, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to databases: %v\n", err)
		os.Exit(1)
	}
	defer stores.Close()

	if *refresh {
		aggregator := metrics.NewAggregator(stores.Positions, stores.Aggregates, log)
		if _, err := aggregator.ComputeAndStore(ctx, *portfolioID); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
			fmt.Fprintf(os.Stderr, "Error computing aggregates: %v\n", err)
			stores.Close()
			os.Exit(1)
		}
	}

	gen := reporting.NewGenerator(stores.Aggregates, stores.Replays)
	rep, err := gen.Generate(ctx, metrics.PortfolioScope(*portfolioID), *portfolioID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating report: %v\n", err)
		if errors.Is(err, storage.ErrNotFound) {
			fmt.Fprintln(os.Stderr, "Run with --refresh to compute a snapshot first")
		}
		stores.Close()
		os.Exit(1)
	}

	files, err := writeReport(rep, *outputDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error writing report: %v\n", err)
		stores.Close()
		os.Exit(1)
	}

	fmt.Println("Report generated successfully:")
	for _, f := range files {
		fmt.Printf("  - %s\n", f)
	}
}

// writeReport renders rep into dir and returns the written paths.
func writeReport(rep *reporting.Report, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	groups, err := reporting.RenderGroupsCSV(rep)
	if err != nil {
		return nil, err
	}
	replays, err := reporting.RenderReplaysCSV(rep)
	if err != nil {
		return nil, err
	}

	outputs := []struct {
		name    string
		content string
	}{
		{"REPORT.md", reporting.RenderMarkdown(rep)},
		{"GROUPS.csv", groups},
		{"REPLAYS.csv", replays},
	}

	paths := make([]string, 0, len(outputs))
	for _, o := range outputs {
		path := filepath.Join(dir, o.name)
		if err := os.WriteFile(path, []byte(o.content), 0o644); err != nil {
			return nil, fmt.Errorf("write %s: %w", o.name, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
