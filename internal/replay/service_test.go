package replay

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-analytics-lab/internal/domain"
	"trade-analytics-lab/internal/marketdata"
	"trade-analytics-lab/internal/sampling"
	"trade-analytics-lab/internal/storage/memory"
)

// providerFunc adapts a function to marketdata.Provider.
type providerFunc func(ctx context.Context, symbol string) ([]domain.PriceBar, error)

func (f providerFunc) FetchBars(ctx context.Context, symbol string, _, _ time.Time, _ domain.BarInterval, _ bool) ([]domain.PriceBar, error) {
	return f(ctx, symbol)
}

var fixedNow = time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, provider marketdata.Provider, cfg sampling.Config) (*Service, *memory.ReplayStore, *sampling.Policy) {
	t.Helper()
	policy, err := sampling.NewPolicy(cfg, sampling.NewMemoryCounterStore(), zerolog.Nop())
	require.NoError(t, err)
	policy.SetClock(func() time.Time { return fixedNow })

	store := memory.NewReplayStore()
	rc := DefaultConfig()
	rc.Concurrency = 4
	svc := NewService(rc, provider, policy, store, zerolog.Nop())
	svc.SetClock(func() time.Time { return fixedNow })
	return svc, store, policy
}

func staticBars(closes ...string) providerFunc {
	return func(context.Context, string) ([]domain.PriceBar, error) {
		return barsFromCloses(closes...), nil
	}
}

func TestService_ReplayPositionStores(t *testing.T) {
	svc, store, policy := newTestService(t, staticBars("100", "110", "95"), sampling.DefaultConfig())
	ctx := context.Background()

	res, err := svc.ReplayPosition(ctx, closedPosition(domain.DirectionLong, "100", "95", "10"))
	require.NoError(t, err)
	require.Equal(t, StatusStored, res.Status)
	require.NotNil(t, res.Replay)
	assert.True(t, res.Stored())
	assert.NotEmpty(t, res.Replay.ReplayID)
	assert.Equal(t, fixedNow, res.Replay.CreatedAt)
	assert.Equal(t, domain.Interval1Hour, res.Replay.Interval)

	got, err := store.FindByID(ctx, res.Replay.ReplayID)
	require.NoError(t, err)
	assert.True(t, got.MaxDrawdown.Equal(d("150")))

	stats := policy.Statistics()
	assert.Equal(t, int64(1), stats.Evaluated)
	assert.Equal(t, int64(1), stats.Stored)
}

func TestService_ReplayPositionSkipsOnProviderFailure(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status string
	}{
		{"no data", fmt.Errorf("AAPL: %w", marketdata.ErrNoData), StatusNoData},
		{"retries exhausted", &domain.TransientProviderError{Symbol: "AAPL", Attempts: 3, Err: errors.New("503")}, StatusProviderError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := providerFunc(func(context.Context, string) ([]domain.PriceBar, error) {
				return nil, tt.err
			})
			svc, store, policy := newTestService(t, provider, sampling.DefaultConfig())

			res, err := svc.ReplayPosition(context.Background(), closedPosition(domain.DirectionLong, "100", "95", "10"))
			require.NoError(t, err)
			assert.Equal(t, tt.status, res.Status)
			assert.Nil(t, res.Replay)
			assert.Error(t, res.Err)

			found, err := store.FindBySymbol(context.Background(), "AAPL")
			require.NoError(t, err)
			assert.Empty(t, found)
			assert.Equal(t, int64(0), policy.Statistics().Evaluated)
		})
	}
}

func TestService_ReplayPositionInsufficientBars(t *testing.T) {
	svc, _, _ := newTestService(t, staticBars("100"), sampling.DefaultConfig())

	res, err := svc.ReplayPosition(context.Background(), closedPosition(domain.DirectionLong, "100", "95", "10"))
	require.NoError(t, err)
	assert.Equal(t, StatusInsufficientData, res.Status)
	assert.ErrorIs(t, res.Err, domain.ErrInsufficientData)
}

func TestService_ReplayPositionRejectsOpen(t *testing.T) {
	svc, _, _ := newTestService(t, staticBars("100", "110"), sampling.DefaultConfig())
	p := closedPosition(domain.DirectionLong, "100", "95", "10")
	p.Status = domain.StatusOpen

	_, err := svc.ReplayPosition(context.Background(), p)
	assert.ErrorIs(t, err, ErrPositionNotClosed)
}

func TestService_ReplayBatchSamples(t *testing.T) {
	cfg := sampling.DefaultConfig()
	cfg.DailyTradeThreshold = 10
	cfg.SamplingRate = 2
	cfg.PreserveSignificantTrades = false
	cfg.PreserveHighVolatilityTrades = false

	var calls atomic.Int32
	provider := providerFunc(func(context.Context, string) ([]domain.PriceBar, error) {
		calls.Add(1)
		return barsFromCloses("100", "101", "100"), nil
	})
	svc, store, policy := newTestService(t, provider, cfg)

	positions := make([]*domain.Position, 20)
	for i := range positions {
		p := closedPosition(domain.DirectionLong, "100", "100", "1")
		p.PositionID = fmt.Sprintf("pos-%02d", i)
		positions[i] = p
	}

	results, err := svc.ReplayBatch(context.Background(), positions)
	require.NoError(t, err)
	require.Len(t, results, 20)
	assert.Equal(t, int32(20), calls.Load())

	for i, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, positions[i].PositionID, r.PositionID)
	}

	sum := Summarize(results)
	// 10 under threshold plus every 2nd of the next 10.
	assert.Equal(t, 15, sum.ByStatus[StatusStored])
	assert.Equal(t, 5, sum.ByStatus[StatusSampledOut])

	found, err := store.FindBySymbol(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Len(t, found, 15)

	stats := policy.Statistics()
	assert.Equal(t, int64(20), stats.Evaluated)
	assert.Equal(t, int64(15), stats.Stored)
	assert.Equal(t, int64(5), stats.Skipped)
}

func TestService_ReplayBatchCancelled(t *testing.T) {
	svc, _, _ := newTestService(t, staticBars("100", "110"), sampling.DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.ReplayBatch(ctx, []*domain.Position{closedPosition(domain.DirectionLong, "100", "95", "10")})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.Interval = "2h"
	assert.ErrorIs(t, bad.Validate(), domain.ErrInvalidConfiguration)

	bad = DefaultConfig()
	bad.Concurrency = 0
	assert.ErrorIs(t, bad.Validate(), domain.ErrInvalidConfiguration)
}
