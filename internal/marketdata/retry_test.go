package marketdata

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"trade-analytics-lab/internal/domain"
	"trade-analytics-lab/internal/storage/memory"
)

// scriptedProvider returns errs in order, then bars.
type scriptedProvider struct {
	errs  []error
	bars  []domain.PriceBar
	calls atomic.Int32
	delay time.Duration
}

func (p *scriptedProvider) FetchBars(ctx context.Context, symbol string, _, _ time.Time, _ domain.BarInterval, _ bool) ([]domain.PriceBar, error) {
	n := int(p.calls.Add(1))
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if n <= len(p.errs) {
		return nil, p.errs[n-1]
	}
	return p.bars, nil
}

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		AttemptTimeout:  time.Second,
	}
}

func testBars() []domain.PriceBar {
	c := decimal.NewFromInt(100)
	return []domain.PriceBar{
		domain.NewPriceBar(from, c, c, c, c, c),
		domain.NewPriceBar(from.Add(time.Hour), c, c, c, c, c),
	}
}

func transient() error {
	return &domain.TransientProviderError{Symbol: "AAPL", Err: errors.New("503")}
}

func TestRetryingProvider_RecoversFromTransient(t *testing.T) {
	next := &scriptedProvider{errs: []error{transient(), transient()}, bars: testBars()}
	p := NewRetryingProvider(next, fastRetry(3), zerolog.Nop())

	bars, err := p.FetchBars(context.Background(), "AAPL", from, to, domain.Interval1Hour, false)
	if err != nil {
		t.Fatalf("FetchBars: %v", err)
	}
	if len(bars) != 2 {
		t.Errorf("expected 2 bars, got %d", len(bars))
	}
	if next.calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", next.calls.Load())
	}
}

func TestRetryingProvider_Exhaustion(t *testing.T) {
	next := &scriptedProvider{errs: []error{transient(), transient(), transient(), transient()}}
	p := NewRetryingProvider(next, fastRetry(3), zerolog.Nop())

	_, err := p.FetchBars(context.Background(), "AAPL", from, to, domain.Interval1Hour, false)
	var te *domain.TransientProviderError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransientProviderError, got %v", err)
	}
	if te.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", te.Attempts)
	}
	if next.calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", next.calls.Load())
	}
}

func TestRetryingProvider_NoDataNotRetried(t *testing.T) {
	next := &scriptedProvider{errs: []error{ErrNoData}}
	p := NewRetryingProvider(next, fastRetry(5), zerolog.Nop())

	_, err := p.FetchBars(context.Background(), "AAPL", from, to, domain.Interval1Hour, false)
	if !errors.Is(err, ErrNoData) {
		t.Errorf("expected ErrNoData, got %v", err)
	}
	if next.calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", next.calls.Load())
	}
}

func TestRetryingProvider_AttemptTimeout(t *testing.T) {
	next := &scriptedProvider{delay: 200 * time.Millisecond}
	cfg := fastRetry(2)
	cfg.AttemptTimeout = 10 * time.Millisecond
	p := NewRetryingProvider(next, cfg, zerolog.Nop())

	_, err := p.FetchBars(context.Background(), "AAPL", from, to, domain.Interval1Hour, false)
	if !domain.IsTransient(err) {
		t.Errorf("expected transient error after timeouts, got %v", err)
	}
	if next.calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", next.calls.Load())
	}
}

func TestRetryingProvider_ParentCancelled(t *testing.T) {
	next := &scriptedProvider{errs: []error{transient(), transient(), transient()}}
	p := NewRetryingProvider(next, fastRetry(3), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.FetchBars(ctx, "AAPL", from, to, domain.Interval1Hour, false)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRetryConfig_Validate(t *testing.T) {
	if err := DefaultRetryConfig().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
	bad := DefaultRetryConfig()
	bad.MaxAttempts = 0
	if err := bad.Validate(); !errors.Is(err, domain.ErrInvalidConfiguration) {
		t.Errorf("expected ConfigurationError, got %v", err)
	}
}

func TestCachedProvider_WritesThrough(t *testing.T) {
	store := memory.NewPriceBarStore()
	next := &scriptedProvider{bars: testBars()}
	p := NewCachedProvider(store, next, zerolog.Nop())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		bars, err := p.FetchBars(ctx, "AAPL", from, to, domain.Interval1Hour, false)
		if err != nil {
			t.Fatalf("FetchBars #%d: %v", i, err)
		}
		if len(bars) != 2 {
			t.Fatalf("FetchBars #%d: %d bars", i, len(bars))
		}
	}
	if next.calls.Load() != 1 {
		t.Errorf("upstream calls = %d, want 1 (second served from cache)", next.calls.Load())
	}

	cached, err := NewStoreProvider(store).FetchBars(ctx, "AAPL", from, to, domain.Interval1Hour, false)
	if err != nil || len(cached) != 2 {
		t.Errorf("StoreProvider = %d bars, %v", len(cached), err)
	}
}

func TestStoreProvider_NoData(t *testing.T) {
	p := NewStoreProvider(memory.NewPriceBarStore())

	_, err := p.FetchBars(context.Background(), "AAPL", from, to, domain.Interval1Hour, false)
	if !errors.Is(err, ErrNoData) {
		t.Errorf("expected ErrNoData, got %v", err)
	}
}
