package marketdata

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"trade-analytics-lab/internal/domain"
	"trade-analytics-lab/internal/observability"
)

// RetryConfig bounds retries of transient provider failures.
type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
	AttemptTimeout  time.Duration `yaml:"attempt_timeout"`
}

// DefaultRetryConfig returns the default retry settings.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		AttemptTimeout:  10 * time.Second,
	}
}

// Validate returns *domain.ConfigurationError for unusable settings.
func (c RetryConfig) Validate() error {
	switch {
	case c.MaxAttempts < 1:
		return &domain.ConfigurationError{Field: "marketdata.retry.max_attempts", Reason: "must be at least 1"}
	case c.InitialInterval <= 0:
		return &domain.ConfigurationError{Field: "marketdata.retry.initial_interval", Reason: "must be positive"}
	case c.MaxInterval < c.InitialInterval:
		return &domain.ConfigurationError{Field: "marketdata.retry.max_interval", Reason: "must not be below initial_interval"}
	case c.AttemptTimeout <= 0:
		return &domain.ConfigurationError{Field: "marketdata.retry.attempt_timeout", Reason: "must be positive"}
	}
	return nil
}

// RetryingProvider retries transient failures of next with exponential
// backoff. ErrNoData and other permanent errors are returned at once.
type RetryingProvider struct {
	next Provider
	cfg  RetryConfig
	log  zerolog.Logger
}

// NewRetryingProvider wraps next.
func NewRetryingProvider(next Provider, cfg RetryConfig, log zerolog.Logger) *RetryingProvider {
	return &RetryingProvider{
		next: next,
		cfg:  cfg,
		log:  log.With().Str("component", "marketdata").Logger(),
	}
}

// Compile-time interface check.
var _ Provider = (*RetryingProvider)(nil)

// FetchBars implements Provider. On exhaustion it returns
// *domain.TransientProviderError carrying the attempt count.
func (p *RetryingProvider) FetchBars(ctx context.Context, symbol string, from, to time.Time, interval domain.BarInterval, continuous bool) ([]domain.PriceBar, error) {
	var (
		bars     []domain.PriceBar
		attempts int
	)

	operation := func() error {
		attempts++
		actx, cancel := context.WithTimeout(ctx, p.cfg.AttemptTimeout)
		defer cancel()

		b, err := p.next.FetchBars(actx, symbol, from, to, interval, continuous)
		if err == nil {
			bars = b
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if domain.IsTransient(err) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return backoff.Permanent(err)
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.cfg.InitialInterval
	eb.MaxInterval = p.cfg.MaxInterval
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(p.cfg.MaxAttempts-1)), ctx)

	notify := func(err error, wait time.Duration) {
		observability.RecordProviderRetry()
		p.log.Warn().
			Err(err).
			Str("symbol", symbol).
			Int("attempt", attempts).
			Dur("wait", wait).
			Msg("Retrying price fetch")
	}

	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		if domain.IsTransient(err) || (errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil) {
			inner := err
			var t *domain.TransientProviderError
			if errors.As(err, &t) {
				inner = t.Err
			}
			return nil, &domain.TransientProviderError{Symbol: symbol, Attempts: attempts, Err: inner}
		}
		return nil, err
	}
	return bars, nil
}
