// Package sampling decides which replays are persisted. High-frequency
// traders produce more replays than are worth storing, so past a daily
// per-user threshold only every Nth ordinary trade is kept, while
// significant or volatile trades are always kept.
package sampling

import (
	"trade-analytics-lab/internal/domain"
)

// Config holds sampling thresholds.
type Config struct {
	Enabled bool `yaml:"enabled"`

	// Trades per user per day always stored before sampling starts.
	DailyTradeThreshold int64 `yaml:"daily_trade_threshold"`
	// Past the threshold, store one of every SamplingRate trades.
	SamplingRate int64 `yaml:"sampling_rate"`

	PreserveSignificantTrades      bool    `yaml:"preserve_significant_trades"`
	SignificantProfitLossThreshold float64 `yaml:"significant_pnl_threshold"` // |P&L%|
	PreserveHighVolatilityTrades   bool    `yaml:"preserve_high_volatility_trades"`
	HighVolatilityThreshold        float64 `yaml:"high_volatility_threshold"` // annualized %
}

// DefaultConfig returns the default sampling configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:                        true,
		DailyTradeThreshold:            50,
		SamplingRate:                   5,
		PreserveSignificantTrades:      true,
		SignificantProfitLossThreshold: 5.0,
		PreserveHighVolatilityTrades:   true,
		HighVolatilityThreshold:        50.0,
	}
}

// Validate returns *domain.ConfigurationError for unusable thresholds.
func (c Config) Validate() error {
	switch {
	case c.DailyTradeThreshold < 0:
		return &domain.ConfigurationError{Field: "sampling.daily_trade_threshold", Reason: "must not be negative"}
	case c.SamplingRate < 1:
		return &domain.ConfigurationError{Field: "sampling.sampling_rate", Reason: "must be at least 1"}
	case c.SignificantProfitLossThreshold < 0:
		return &domain.ConfigurationError{Field: "sampling.significant_pnl_threshold", Reason: "must not be negative"}
	case c.HighVolatilityThreshold < 0:
		return &domain.ConfigurationError{Field: "sampling.high_volatility_threshold", Reason: "must not be negative"}
	}
	return nil
}
