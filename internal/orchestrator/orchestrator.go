// Package orchestrator runs the batch pipeline.
// It coordinates: import → reconciliation → metrics aggregation → replay
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"trade-analytics-lab/internal/domain"
	"trade-analytics-lab/internal/metrics"
	"trade-analytics-lab/internal/observability"
	"trade-analytics-lab/internal/reconcile"
	"trade-analytics-lab/internal/replay"
	"trade-analytics-lab/internal/storage"
)

// Pipeline phases, as recorded in metrics.
const (
	PhaseImport    = "import"
	PhaseReconcile = "reconcile"
	PhaseAggregate = "aggregate"
	PhaseReplay    = "replay"
)

// Orchestrator coordinates the batch pipeline for imported executions.
// It must not run concurrently with a live reconcile.Service over the same
// stores.
type Orchestrator struct {
	executions storage.ExecutionStore
	positions  storage.PositionStore
	ledger     storage.Ledger
	aggregator *metrics.Aggregator
	replayer   *replay.Service
	log        zerolog.Logger
}

// Options for creating Orchestrator.
type Options struct {
	// Required
	Executions storage.ExecutionStore
	Positions  storage.PositionStore
	Ledger     storage.Ledger
	Aggregator *metrics.Aggregator

	// Replayer replays newly closed positions. Nil skips the replay phase.
	Replayer *replay.Service

	Logger zerolog.Logger
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	return &Orchestrator{
		executions: opts.Executions,
		positions:  opts.Positions,
		ledger:     opts.Ledger,
		aggregator: opts.Aggregator,
		replayer:   opts.Replayer,
		log:        opts.Logger.With().Str("component", "orchestrator").Logger(),
	}
}

// RunResult contains results from orchestrator execution.
type RunResult struct {
	ExecutionsReceived  int
	ExecutionsDuplicate int
	ExecutionsApplied   int
	ExecutionsRejected  int

	PositionsSaved  int
	PositionsClosed []*domain.Position

	Aggregates []*domain.AggregateStatistics
	Replays    replay.BatchSummary

	// Errors lists per-key and per-portfolio failures that did not stop the run.
	Errors []string
}

// Run executes the pipeline over executions.
// Phases:
//  1. Import: drop executions already stored or repeated in the batch and
//     sort the rest by timestamp
//  2. Reconcile each (portfolio, symbol) on top of its stored open position
//  3. Aggregate every touched portfolio
//  4. Replay the positions closed by this batch
//
// Keys whose executions are rejected are reported in Errors and leave their
// stored state untouched. Storage failures abort the run.
func (o *Orchestrator) Run(ctx context.Context, executions []*domain.Execution) (*RunResult, error) {
	result := &RunResult{ExecutionsReceived: len(executions)}

	// Phase 1: Import
	fresh, err := timed(PhaseImport, func() ([]*domain.Execution, error) {
		fresh, err := o.dedupe(ctx, executions)
		if err != nil {
			return nil, err
		}
		return reconcile.SortByTimestamp(fresh), nil
	})
	if err != nil {
		return nil, fmt.Errorf("phase 1 (import) failed: %w", err)
	}
	result.ExecutionsDuplicate = len(executions) - len(fresh)
	o.log.Info().
		Int("received", len(executions)).
		Int("new", len(fresh)).
		Msg("Executions imported")

	if len(fresh) == 0 {
		return result, nil
	}

	// Phase 2: Reconcile
	portfolios, err := timed(PhaseReconcile, func() ([]string, error) {
		return o.reconcile(ctx, fresh, result)
	})
	if err != nil {
		return nil, fmt.Errorf("phase 2 (reconcile) failed: %w", err)
	}
	o.log.Info().
		Int("applied", result.ExecutionsApplied).
		Int("rejected", result.ExecutionsRejected).
		Int("closed", len(result.PositionsClosed)).
		Msg("Executions reconciled")

	// Phase 3: Aggregate
	_, _ = timed(PhaseAggregate, func() (struct{}, error) {
		o.aggregate(ctx, portfolios, result)
		return struct{}{}, nil
	})

	// Phase 4: Replay
	if o.replayer != nil && len(result.PositionsClosed) > 0 {
		results, err := timed(PhaseReplay, func() ([]*replay.Result, error) {
			return o.replayer.ReplayBatch(ctx, result.PositionsClosed)
		})
		result.Replays = replay.Summarize(results)
		if err != nil {
			return result, fmt.Errorf("phase 4 (replay) failed: %w", err)
		}
	}

	o.log.Info().
		Int("applied", result.ExecutionsApplied).
		Int("aggregates", len(result.Aggregates)).
		Int("replays_stored", result.Replays.ByStatus[replay.StatusStored]).
		Int("errors", len(result.Errors)).
		Msg("Pipeline completed")

	return result, nil
}

// dedupe drops executions that are already stored or repeated in the batch.
func (o *Orchestrator) dedupe(ctx context.Context, executions []*domain.Execution) ([]*domain.Execution, error) {
	seen := make(map[string]struct{}, len(executions))
	fresh := make([]*domain.Execution, 0, len(executions))
	for _, e := range executions {
		if e == nil {
			continue
		}
		if _, dup := seen[e.ExecutionID]; dup && e.ExecutionID != "" {
			continue
		}
		seen[e.ExecutionID] = struct{}{}

		if e.ExecutionID != "" {
			_, err := o.executions.GetByID(ctx, e.ExecutionID)
			if err == nil {
				continue
			}
			if !errors.Is(err, storage.ErrNotFound) {
				return nil, fmt.Errorf("check execution %s: %w", e.ExecutionID, err)
			}
		}
		fresh = append(fresh, e)
	}
	return fresh, nil
}

// reconcile applies executions per key and persists the touched positions and
// the applied executions. It returns the portfolios that closed a position.
func (o *Orchestrator) reconcile(ctx context.Context, executions []*domain.Execution, result *RunResult) ([]string, error) {
	byKey := make(map[domain.PositionKey][]*domain.Execution)
	open := make(map[domain.PositionKey]*domain.Position)
	for _, e := range executions {
		k := e.Key()
		if _, ok := byKey[k]; !ok {
			p, err := o.positions.GetOpen(ctx, k)
			switch {
			case err == nil:
				open[k] = p
			case !errors.Is(err, storage.ErrNotFound):
				return nil, fmt.Errorf("load open position %s: %w", k, err)
			}
		}
		byKey[k] = append(byKey[k], e)
	}

	results, rejected := reconcile.ReconcileAll(executions, open)

	rejectedKeys := make([]domain.PositionKey, 0, len(rejected))
	for k := range rejected {
		rejectedKeys = append(rejectedKeys, k)
	}
	sort.Slice(rejectedKeys, func(i, j int) bool { return rejectedKeys[i].String() < rejectedKeys[j].String() })
	for _, k := range rejectedKeys {
		result.ExecutionsRejected += len(byKey[k])
		result.Errors = append(result.Errors, fmt.Sprintf("reconcile %s: %v", k, rejected[k]))
		o.log.Warn().Err(rejected[k]).Str("key", k.String()).Msg("Key rejected")
	}

	touched := make(map[string]struct{})
	var portfolios []string
	for _, res := range results {
		// Closed positions first: a flip must free the key's open slot
		// before the new open position is written.
		ordered := append(res.Closed(), openOnly(res.Positions)...)
		if err := o.ledger.Apply(ctx, byKey[res.Key], ordered); err != nil {
			return nil, fmt.Errorf("apply %s: %w", res.Key, err)
		}
		result.PositionsSaved += len(ordered)
		result.ExecutionsApplied += len(byKey[res.Key])

		closed := res.Closed()
		result.PositionsClosed = append(result.PositionsClosed, closed...)
		if _, ok := touched[res.Key.PortfolioID]; !ok && len(closed) > 0 {
			touched[res.Key.PortfolioID] = struct{}{}
			portfolios = append(portfolios, res.Key.PortfolioID)
		}
	}
	sort.Strings(portfolios)
	return portfolios, nil
}

// aggregate recomputes and stores each portfolio's statistics.
func (o *Orchestrator) aggregate(ctx context.Context, portfolios []string, result *RunResult) {
	for _, pf := range portfolios {
		agg, err := o.aggregator.ComputeAndStore(ctx, pf)
		if err != nil {
			// Skip duplicate snapshot (already aggregated this instant)
			if errors.Is(err, storage.ErrDuplicateKey) || errors.Is(err, metrics.ErrNoPositions) {
				continue
			}
			result.Errors = append(result.Errors, fmt.Sprintf("aggregate %s: %v", pf, err))
			continue
		}
		result.Aggregates = append(result.Aggregates, agg)
	}
}

func openOnly(positions []*domain.Position) []*domain.Position {
	var out []*domain.Position
	for _, p := range positions {
		if !p.IsClosed() {
			out = append(out, p)
		}
	}
	return out
}

// timed runs fn and records the phase duration and status.
func timed[T any](phase string, fn func() (T, error)) (T, error) {
	start := time.Now()
	v, err := fn()
	status := "ok"
	if err != nil {
		status = "error"
	}
	observability.RecordPipelineRun(phase, status, time.Since(start).Seconds())
	return v, err
}
