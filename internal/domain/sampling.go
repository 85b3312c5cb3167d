package domain

import "time"

// SamplingState is the per (user, calendar day) replay counter.
type SamplingState struct {
	UserID       string
	Day          time.Time // midnight UTC
	TradesSeen   int64
	TradesStored int64
}

// SamplingStatistics summarizes sampling decisions across all users.
type SamplingStatistics struct {
	Evaluated       int64
	Stored          int64
	Skipped         int64
	StoredByReason  map[string]int64
	ActiveUserDays  int
	LastEvaluatedAt time.Time
}

// StoreRate returns Stored / Evaluated, 0 when nothing was evaluated.
func (s SamplingStatistics) StoreRate() float64 {
	if s.Evaluated == 0 {
		return 0
	}
	return float64(s.Stored) / float64(s.Evaluated)
}

// DayOf truncates t to its UTC calendar day.
func DayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
