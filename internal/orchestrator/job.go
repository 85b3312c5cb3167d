package orchestrator

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"trade-analytics-lab/internal/domain"
	"trade-analytics-lab/internal/metrics"
	"trade-analytics-lab/internal/storage"
)

// AggregateJob recomputes statistics for portfolios that closed a position
// since its last run. It implements scheduler.Job.
type AggregateJob struct {
	aggregator *metrics.Aggregator
	timeout    time.Duration
	log        zerolog.Logger

	mu    sync.Mutex
	dirty map[string]struct{}
}

// NewAggregateJob creates the job. Each run is bounded by timeout.
func NewAggregateJob(aggregator *metrics.Aggregator, timeout time.Duration, log zerolog.Logger) *AggregateJob {
	return &AggregateJob{
		aggregator: aggregator,
		timeout:    timeout,
		log:        log.With().Str("job", "aggregates").Logger(),
		dirty:      make(map[string]struct{}),
	}
}

// Name returns the job name.
func (j *AggregateJob) Name() string {
	return "aggregates"
}

// PositionClosed marks the position's portfolio for recomputation. Its
// signature matches feed.ClosedFunc.
func (j *AggregateJob) PositionClosed(_ context.Context, p *domain.Position) {
	j.mu.Lock()
	j.dirty[p.PortfolioID] = struct{}{}
	j.mu.Unlock()
}

// Pending returns the portfolios waiting for recomputation, sorted.
func (j *AggregateJob) Pending() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, 0, len(j.dirty))
	for pf := range j.dirty {
		out = append(out, pf)
	}
	sort.Strings(out)
	return out
}

// Run recomputes every pending portfolio. Portfolios that fail stay pending
// and the first error is returned.
func (j *AggregateJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	var firstErr error
	done := 0
	for _, pf := range j.Pending() {
		_, err := j.aggregator.ComputeAndStore(ctx, pf)
		if err != nil && !errors.Is(err, storage.ErrDuplicateKey) && !errors.Is(err, metrics.ErrNoPositions) {
			j.log.Error().Err(err).Str("portfolio_id", pf).Msg("Aggregate failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		j.mu.Lock()
		delete(j.dirty, pf)
		j.mu.Unlock()
		done++
	}

	j.log.Info().Int("portfolios", done).Msg("Aggregates refreshed")
	return firstErr
}
