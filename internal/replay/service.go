package replay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"trade-analytics-lab/internal/domain"
	"trade-analytics-lab/internal/marketdata"
	"trade-analytics-lab/internal/observability"
	"trade-analytics-lab/internal/sampling"
	"trade-analytics-lab/internal/storage"
)

// Replay status labels used for metrics and Result.Status.
const (
	StatusStored           = "stored"
	StatusSampledOut       = "sampled_out"
	StatusInsufficientData = "insufficient_data"
	StatusNoData           = "no_data"
	StatusProviderError    = "provider_error"
	StatusError            = "error"
)

// Config holds replay service settings.
type Config struct {
	Interval      domain.BarInterval `yaml:"interval"`
	Continuous    bool               `yaml:"continuous"`
	Concurrency   int                `yaml:"concurrency"`
	Annualization float64            `yaml:"annualization"`
}

// DefaultConfig returns hourly bars, 8 workers and 252 trading days.
func DefaultConfig() Config {
	return Config{
		Interval:      domain.Interval1Hour,
		Continuous:    false,
		Concurrency:   8,
		Annualization: 252,
	}
}

// Validate returns *domain.ConfigurationError for unusable settings.
func (c Config) Validate() error {
	switch {
	case !c.Interval.IsValid():
		return &domain.ConfigurationError{Field: "replay.interval", Reason: fmt.Sprintf("unknown interval %q", c.Interval)}
	case c.Concurrency < 1:
		return &domain.ConfigurationError{Field: "replay.concurrency", Reason: "must be at least 1"}
	case c.Annualization < 0:
		return &domain.ConfigurationError{Field: "replay.annualization", Reason: "must not be negative"}
	}
	return nil
}

// Result is the outcome of replaying one position.
type Result struct {
	PositionID string
	Status     string
	Replay     *domain.Replay // nil when the replay could not be computed
	Decision   sampling.Decision
	Err        error
}

// Stored reports whether the replay was persisted.
func (r *Result) Stored() bool {
	return r.Status == StatusStored
}

// Service fetches bars, simulates, samples and persists replays.
type Service struct {
	cfg      Config
	provider marketdata.Provider
	sim      *Simulator
	policy   *sampling.Policy
	store    storage.ReplayStore
	log      zerolog.Logger
	now      func() time.Time
}

// NewService creates a replay service. provider is expected to already
// carry retries (marketdata.RetryingProvider).
func NewService(cfg Config, provider marketdata.Provider, policy *sampling.Policy, store storage.ReplayStore, log zerolog.Logger) *Service {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Service{
		cfg:      cfg,
		provider: provider,
		sim:      NewSimulator(cfg.Annualization, log),
		policy:   policy,
		store:    store,
		log:      log.With().Str("component", "replay_service").Logger(),
		now:      time.Now,
	}
}

// SetClock overrides the time source for CreatedAt.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// ReplayPosition replays one closed position. Missing or unreachable price
// data leaves the position without a replay: the Result carries the error
// and a non-stored status. The returned error is non-nil only for failures
// the caller should act on (context cancellation, storage errors, a
// position that is not closed).
func (s *Service) ReplayPosition(ctx context.Context, p *domain.Position) (*Result, error) {
	done := observability.TrackReplay()
	defer done()

	res := &Result{}
	if p == nil || !p.IsClosed() || p.ExitTime == nil {
		res.Status = StatusError
		res.Err = ErrPositionNotClosed
		if p != nil {
			res.PositionID = p.PositionID
		}
		observability.RecordReplay(res.Status)
		return res, ErrPositionNotClosed
	}
	res.PositionID = p.PositionID

	bars, err := s.provider.FetchBars(ctx, p.Symbol, p.EntryTime, *p.ExitTime, s.cfg.Interval, s.cfg.Continuous)
	if err != nil {
		if ctx.Err() != nil {
			return s.finish(res, StatusError, ctx.Err()), ctx.Err()
		}
		switch {
		case errors.Is(err, marketdata.ErrNoData):
			s.log.Info().Str("position_id", p.PositionID).Str("symbol", p.Symbol).Msg("No price data, replay skipped")
			return s.finish(res, StatusNoData, err), nil
		case domain.IsTransient(err):
			s.log.Warn().Err(err).Str("position_id", p.PositionID).Msg("Price provider unavailable, replay skipped")
			return s.finish(res, StatusProviderError, err), nil
		}
		return s.finish(res, StatusProviderError, err), nil
	}

	r, err := s.sim.Replay(p, bars)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientData) {
			s.log.Info().Err(err).Str("position_id", p.PositionID).Msg("Replay skipped")
			return s.finish(res, StatusInsufficientData, err), nil
		}
		return s.finish(res, StatusError, err), err
	}

	r.ReplayID = uuid.NewString()
	r.Interval = s.cfg.Interval
	r.CreatedAt = s.now().UTC()
	res.Replay = r

	pnlPct, _ := r.ProfitLossPct.Float64()
	res.Decision = s.policy.Evaluate(sampling.Request{UserID: r.UserID, At: r.CreatedAt}, pnlPct, r.Volatility)
	if !res.Decision.Store {
		s.policy.UpdateStatistics(r, false)
		return s.finish(res, StatusSampledOut, nil), nil
	}

	if _, err := s.store.Save(ctx, r); err != nil {
		s.policy.UpdateStatistics(r, false)
		err = fmt.Errorf("save replay %s: %w", r.ReplayID, err)
		return s.finish(res, StatusError, err), err
	}
	s.policy.UpdateStatistics(r, true)

	s.log.Debug().
		Str("position_id", p.PositionID).
		Str("replay_id", r.ReplayID).
		Str("reason", string(res.Decision.Reason)).
		Msg("Replay stored")
	return s.finish(res, StatusStored, nil), nil
}

func (s *Service) finish(res *Result, status string, err error) *Result {
	res.Status = status
	res.Err = err
	observability.RecordReplay(status)
	return res
}

// BatchSummary counts batch results by status.
type BatchSummary struct {
	Total    int
	ByStatus map[string]int
}

// Summarize counts results by status.
func Summarize(results []*Result) BatchSummary {
	sum := BatchSummary{Total: len(results), ByStatus: make(map[string]int)}
	for _, r := range results {
		if r != nil {
			sum.ByStatus[r.Status]++
		}
	}
	return sum
}

// ReplayBatch replays positions in parallel, at most cfg.Concurrency at a
// time. Results are in input order. A failure on one position does not
// stop the others; only context cancellation aborts the batch.
func (s *Service) ReplayBatch(ctx context.Context, positions []*domain.Position) ([]*Result, error) {
	results := make([]*Result, len(positions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)

	for i, p := range positions {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := s.ReplayPosition(gctx, p)
			results[i] = res
			if err != nil && ctx.Err() != nil {
				return ctx.Err()
			}
			if err != nil {
				s.log.Error().Err(err).Str("position_id", res.PositionID).Msg("Replay failed")
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}

	sum := Summarize(results)
	s.log.Info().
		Int("positions", sum.Total).
		Int("stored", sum.ByStatus[StatusStored]).
		Int("sampled_out", sum.ByStatus[StatusSampledOut]).
		Msg("Replay batch complete")
	return results, nil
}
