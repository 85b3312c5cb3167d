// Package marketdata fetches OHLCV bars for replay.
package marketdata

import (
	"context"
	"errors"
	"time"

	"trade-analytics-lab/internal/domain"
)

// ErrNoData is returned when the symbol or range has no bars. Not retryable.
var ErrNoData = errors.New("no price data")

// Provider fetches bars ordered by time ascending. Retryable failures are
// returned as *domain.TransientProviderError.
type Provider interface {
	FetchBars(ctx context.Context, symbol string, from, to time.Time, interval domain.BarInterval, continuous bool) ([]domain.PriceBar, error)
}
