package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PriceBar is one OHLCV bar from the market data provider.
// Date holds [year, month, day, hour, minute] with an optional trailing
// second, as delivered by the provider. Bars with missing or out-of-range
// components are malformed and are skipped by the replay simulator.
type PriceBar struct {
	Date   []int           `json:"date"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume decimal.Decimal `json:"volume"`
}

// NewPriceBar builds a bar from a timestamp (UTC components).
func NewPriceBar(ts time.Time, open, high, low, closePrice, volume decimal.Decimal) PriceBar {
	ts = ts.UTC()
	return PriceBar{
		Date:   []int{ts.Year(), int(ts.Month()), ts.Day(), ts.Hour(), ts.Minute(), ts.Second()},
		Open:   open,
		High:   high,
		Low:    low,
		Close:  closePrice,
		Volume: volume,
	}
}

// Time assembles the bar timestamp in UTC.
func (b PriceBar) Time() (time.Time, error) {
	if len(b.Date) < 5 {
		return time.Time{}, fmt.Errorf("bar date has %d components, need at least 5", len(b.Date))
	}
	year, month, day, hour, minute := b.Date[0], b.Date[1], b.Date[2], b.Date[3], b.Date[4]
	second := 0
	if len(b.Date) > 5 {
		second = b.Date[5]
	}

	switch {
	case year < 1:
		return time.Time{}, fmt.Errorf("bar year %d out of range", year)
	case month < 1 || month > 12:
		return time.Time{}, fmt.Errorf("bar month %d out of range", month)
	case hour < 0 || hour > 23:
		return time.Time{}, fmt.Errorf("bar hour %d out of range", hour)
	case minute < 0 || minute > 59:
		return time.Time{}, fmt.Errorf("bar minute %d out of range", minute)
	case second < 0 || second > 59:
		return time.Time{}, fmt.Errorf("bar second %d out of range", second)
	}

	ts := time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC)
	// time.Date normalizes day overflow, e.g. Feb 30 -> Mar 2.
	if ts.Day() != day {
		return time.Time{}, fmt.Errorf("bar day %d out of range for %04d-%02d", day, year, month)
	}
	return ts, nil
}

// BarInterval is the bar granularity requested from the provider.
type BarInterval string

const (
	Interval1Min  BarInterval = "1m"
	Interval5Min  BarInterval = "5m"
	Interval15Min BarInterval = "15m"
	Interval1Hour BarInterval = "1h"
	Interval1Day  BarInterval = "1d"
)

// IsValid checks if the interval is a known value.
func (i BarInterval) IsValid() bool {
	switch i {
	case Interval1Min, Interval5Min, Interval15Min, Interval1Hour, Interval1Day:
		return true
	}
	return false
}

// Duration returns the length of one bar.
func (i BarInterval) Duration() time.Duration {
	switch i {
	case Interval1Min:
		return time.Minute
	case Interval5Min:
		return 5 * time.Minute
	case Interval15Min:
		return 15 * time.Minute
	case Interval1Hour:
		return time.Hour
	}
	return 24 * time.Hour
}
