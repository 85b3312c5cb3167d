package sampling

import (
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"trade-analytics-lab/internal/domain"
	"trade-analytics-lab/internal/observability"
)

// Reason explains a sampling decision.
type Reason string

const (
	ReasonDisabled       Reason = "disabled"
	ReasonSignificant    Reason = "significant_pnl"
	ReasonHighVolatility Reason = "high_volatility"
	ReasonUnderThreshold Reason = "under_threshold"
	ReasonSampled        Reason = "sampled"
	ReasonSkipped        Reason = "skipped"
)

// Request identifies whose trade is evaluated and when.
type Request struct {
	UserID string
	At     time.Time // selects the calendar day; zero means now
}

// Decision is the result of Evaluate.
type Decision struct {
	Store  bool
	Reason Reason
	Count  int64 // the user's trades for the day, including this one
}

// Policy applies Config against an injected CounterStore.
type Policy struct {
	cfg      Config
	counters CounterStore
	now      func() time.Time
	log      zerolog.Logger

	mu    sync.Mutex
	stats domain.SamplingStatistics
}

// NewPolicy validates cfg and creates a Policy.
func NewPolicy(cfg Config, counters CounterStore, log zerolog.Logger) (*Policy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if counters == nil {
		counters = NewMemoryCounterStore()
	}
	return &Policy{
		cfg:      cfg,
		counters: counters,
		now:      time.Now,
		log:      log.With().Str("component", "sampling").Logger(),
		stats:    domain.SamplingStatistics{StoredByReason: make(map[string]int64)},
	}, nil
}

// SetClock overrides the clock used for requests without a time.
func (p *Policy) SetClock(now func() time.Time) {
	p.now = now
}

// Config returns the policy configuration.
func (p *Policy) Config() Config {
	return p.cfg
}

// Counters returns the counter store.
func (p *Policy) Counters() CounterStore {
	return p.counters
}

// ShouldStore applies the rules in priority order without touching any
// counter. count is the user's running trade count for the day.
func (p *Policy) ShouldStore(_ Request, profitLossPct, volatility float64, count int64) bool {
	store, _ := p.decide(profitLossPct, volatility, count)
	return store
}

func (p *Policy) decide(profitLossPct, volatility float64, count int64) (bool, Reason) {
	c := p.cfg
	switch {
	case !c.Enabled:
		return true, ReasonDisabled
	case c.PreserveSignificantTrades && math.Abs(profitLossPct) >= c.SignificantProfitLossThreshold:
		return true, ReasonSignificant
	case c.PreserveHighVolatilityTrades && volatility >= c.HighVolatilityThreshold:
		return true, ReasonHighVolatility
	case count <= c.DailyTradeThreshold:
		return true, ReasonUnderThreshold
	case (count-c.DailyTradeThreshold)%c.SamplingRate == 0:
		return true, ReasonSampled
	}
	return false, ReasonSkipped
}

// Evaluate counts the trade against the user's day, whatever the outcome,
// and returns the decision.
func (p *Policy) Evaluate(req Request, profitLossPct, volatility float64) Decision {
	at := req.At
	if at.IsZero() {
		at = p.now()
	}

	count := p.counters.Increment(req.UserID, at)
	store, reason := p.decide(profitLossPct, volatility, count)

	p.mu.Lock()
	p.stats.Evaluated++
	p.stats.LastEvaluatedAt = at
	if store {
		p.stats.StoredByReason[string(reason)]++
	}
	p.mu.Unlock()

	observability.RecordSamplingDecision(string(reason))
	p.log.Debug().
		Str("user_id", req.UserID).
		Int64("count", count).
		Bool("store", store).
		Str("reason", string(reason)).
		Msg("sampling decision")

	return Decision{Store: store, Reason: reason, Count: count}
}

// UpdateStatistics records whether the replay was actually stored.
func (p *Policy) UpdateStatistics(r *domain.Replay, wasStored bool) {
	if r == nil {
		return
	}
	at := r.CreatedAt
	if at.IsZero() {
		at = p.now()
	}
	if wasStored {
		p.counters.MarkStored(r.UserID, at)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if wasStored {
		p.stats.Stored++
	} else {
		p.stats.Skipped++
	}
}

// Statistics returns a snapshot of the global sampling totals.
func (p *Policy) Statistics() domain.SamplingStatistics {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.stats
	s.StoredByReason = make(map[string]int64, len(p.stats.StoredByReason))
	for k, v := range p.stats.StoredByReason {
		s.StoredByReason[k] = v
	}
	s.ActiveUserDays = p.counters.Len()
	return s
}
