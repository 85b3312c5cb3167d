package idhash

import (
	"testing"

	"trade-analytics-lab/internal/domain"
)

func TestComputePositionID(t *testing.T) {
	tests := []struct {
		name        string
		portfolioID string
		symbol      string
		direction   domain.Direction
		executionID string
		openedAt    int64
	}{
		{
			name:        "long position",
			portfolioID: "portfolio-1",
			symbol:      "AAPL",
			direction:   domain.DirectionLong,
			executionID: "exec-001",
			openedAt:    1704067234567,
		},
		{
			name:        "short position",
			portfolioID: "portfolio-2",
			symbol:      "ESZ4",
			direction:   domain.DirectionShort,
			executionID: "exec-900",
			openedAt:    1704067300000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputePositionID(tt.portfolioID, tt.symbol, tt.direction, tt.executionID, tt.openedAt)

			if len(got) != 64 {
				t.Errorf("ComputePositionID() length = %d, want 64", len(got))
			}

			got2 := ComputePositionID(tt.portfolioID, tt.symbol, tt.direction, tt.executionID, tt.openedAt)
			if got != got2 {
				t.Errorf("ComputePositionID() not deterministic: %s != %s", got, got2)
			}
		})
	}
}

func TestComputePositionID_DifferentInputs(t *testing.T) {
	base := ComputePositionID("p", "AAPL", domain.DirectionLong, "e1", 1000)

	variants := map[string]string{
		"portfolio": ComputePositionID("other", "AAPL", domain.DirectionLong, "e1", 1000),
		"symbol":    ComputePositionID("p", "MSFT", domain.DirectionLong, "e1", 1000),
		"direction": ComputePositionID("p", "AAPL", domain.DirectionShort, "e1", 1000),
		"execution": ComputePositionID("p", "AAPL", domain.DirectionLong, "e2", 1000),
		"time":      ComputePositionID("p", "AAPL", domain.DirectionLong, "e1", 2000),
	}
	for field, id := range variants {
		if id == base {
			t.Errorf("different %s should produce different hash", field)
		}
	}
}

func TestComputeExecutionID_Determinism(t *testing.T) {
	results := make([]string, 10)
	for i := range results {
		results[i] = ComputeExecutionID("portfolio", "T-1", "AAPL", 1704067234567)
	}
	for i := 1; i < len(results); i++ {
		if results[i] != results[0] {
			t.Errorf("Determinism failed: results[%d]=%s != results[0]=%s", i, results[i], results[0])
		}
	}
	if ComputeExecutionID("portfolio", "T-2", "AAPL", 1704067234567) == results[0] {
		t.Error("different broker trade id should produce different hash")
	}
}
