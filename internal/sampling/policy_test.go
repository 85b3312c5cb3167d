package sampling

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"trade-analytics-lab/internal/domain"
)

var today = time.Date(2024, 5, 6, 13, 0, 0, 0, time.UTC)

func newPolicy(t *testing.T, cfg Config) *Policy {
	t.Helper()
	p, err := NewPolicy(cfg, NewMemoryCounterStore(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewPolicy: %v", err)
	}
	p.SetClock(func() time.Time { return today })
	return p
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"negative threshold", func(c *Config) { c.DailyTradeThreshold = -1 }, true},
		{"zero rate", func(c *Config) { c.SamplingRate = 0 }, true},
		{"negative rate", func(c *Config) { c.SamplingRate = -2 }, true},
		{"negative pnl threshold", func(c *Config) { c.SignificantProfitLossThreshold = -1 }, true},
		{"negative volatility threshold", func(c *Config) { c.HighVolatilityThreshold = -0.5 }, true},
		{"zero threshold", func(c *Config) { c.DailyTradeThreshold = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, domain.ErrInvalidConfiguration) {
				t.Errorf("error %v is not a ConfigurationError", err)
			}
		})
	}
}

func TestNewPolicy_RejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SamplingRate = 0
	if _, err := NewPolicy(cfg, nil, zerolog.Nop()); !errors.Is(err, domain.ErrInvalidConfiguration) {
		t.Errorf("NewPolicy = %v, want ConfigurationError", err)
	}
}

func TestPolicy_EveryOtherTradePastThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DailyTradeThreshold = 10
	cfg.SamplingRate = 2
	p := newPolicy(t, cfg)
	req := Request{UserID: "u1", At: today}

	storedUnder, storedOver := 0, 0
	for i := 1; i <= 20; i++ {
		dec := p.Evaluate(req, 1.0, 10.0)
		if dec.Count != int64(i) {
			t.Fatalf("trade %d: count = %d", i, dec.Count)
		}
		if !dec.Store {
			continue
		}
		if i <= 10 {
			storedUnder++
		} else {
			storedOver++
		}
	}

	if storedUnder != 10 {
		t.Errorf("stored %d of trades 1-10, want 10", storedUnder)
	}
	if storedOver != 5 {
		t.Errorf("stored %d of trades 11-20, want 5", storedOver)
	}
}

func TestPolicy_RulePriority(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DailyTradeThreshold = 0
	cfg.SamplingRate = 1000
	p := newPolicy(t, cfg)

	tests := []struct {
		name   string
		pnlPct float64
		vol    float64
		count  int64
		want   bool
	}{
		{"significant gain", 5.0, 0, 3, true},
		{"significant loss", -7.5, 0, 3, true},
		{"high volatility", 1.0, 50.0, 3, true},
		{"ordinary past threshold", 1.0, 10.0, 3, false},
		{"ordinary on the Nth", 1.0, 10.0, 1000, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.ShouldStore(Request{UserID: "u"}, tt.pnlPct, tt.vol, tt.count)
			if got != tt.want {
				t.Errorf("ShouldStore = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPolicy_PreserveFlagsOff(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DailyTradeThreshold = 0
	cfg.SamplingRate = 1000
	cfg.PreserveSignificantTrades = false
	cfg.PreserveHighVolatilityTrades = false
	p := newPolicy(t, cfg)

	if p.ShouldStore(Request{}, 50, 500, 3) {
		t.Error("significant/volatile trades must be sampled when preservation is off")
	}
}

func TestPolicy_DisabledStoresEverything(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false
	cfg.DailyTradeThreshold = 0
	p := newPolicy(t, cfg)

	for i := 0; i < 10; i++ {
		dec := p.Evaluate(Request{UserID: "u1"}, 0, 0)
		if !dec.Store || dec.Reason != ReasonDisabled {
			t.Fatalf("decision = %+v, want stored/disabled", dec)
		}
	}
	// The counter still moves while disabled
	if got := p.Counters().Get("u1", today).TradesSeen; got != 10 {
		t.Errorf("TradesSeen = %d, want 10", got)
	}
}

func TestPolicy_CountersPartitionedByUserAndDay(t *testing.T) {
	p := newPolicy(t, DefaultConfig())

	p.Evaluate(Request{UserID: "u1", At: today}, 0, 0)
	p.Evaluate(Request{UserID: "u1", At: today.Add(2 * time.Hour)}, 0, 0)
	p.Evaluate(Request{UserID: "u2", At: today}, 0, 0)
	dec := p.Evaluate(Request{UserID: "u1", At: today.AddDate(0, 0, 1)}, 0, 0)

	if dec.Count != 1 {
		t.Errorf("next day count = %d, want 1 (no carryover)", dec.Count)
	}
	if got := p.Counters().Get("u1", today).TradesSeen; got != 2 {
		t.Errorf("u1 today = %d, want 2", got)
	}
	if got := p.Counters().Get("u2", today).TradesSeen; got != 1 {
		t.Errorf("u2 today = %d, want 1", got)
	}
}

func TestPolicy_ConcurrentEvaluateLosesNoUpdates(t *testing.T) {
	p := newPolicy(t, DefaultConfig())

	const goroutines, perG = 8, 250
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perG; i++ {
				p.Evaluate(Request{UserID: "busy", At: today}, 0, 0)
			}
		}()
	}
	wg.Wait()

	if got := p.Counters().Get("busy", today).TradesSeen; got != goroutines*perG {
		t.Errorf("TradesSeen = %d, want %d", got, goroutines*perG)
	}
	if got := p.Statistics().Evaluated; got != goroutines*perG {
		t.Errorf("Evaluated = %d, want %d", got, goroutines*perG)
	}
}

func TestPolicy_UpdateStatistics(t *testing.T) {
	p := newPolicy(t, DefaultConfig())

	dec := p.Evaluate(Request{UserID: "u1", At: today}, 10, 0)
	r := &domain.Replay{UserID: "u1", CreatedAt: today}
	p.UpdateStatistics(r, dec.Store)
	p.UpdateStatistics(&domain.Replay{UserID: "u1", CreatedAt: today}, false)
	p.UpdateStatistics(nil, true)

	s := p.Statistics()
	if s.Evaluated != 1 || s.Stored != 1 || s.Skipped != 1 {
		t.Errorf("stats = %+v", s)
	}
	if s.StoredByReason[string(ReasonSignificant)] != 1 {
		t.Errorf("StoredByReason = %v", s.StoredByReason)
	}
	if s.ActiveUserDays != 1 {
		t.Errorf("ActiveUserDays = %d, want 1", s.ActiveUserDays)
	}
	if got := p.Counters().Get("u1", today).TradesStored; got != 1 {
		t.Errorf("TradesStored = %d, want 1", got)
	}
	if s.StoreRate() != 1 {
		t.Errorf("StoreRate = %v, want 1", s.StoreRate())
	}
}
