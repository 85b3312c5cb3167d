package feed

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-analytics-lab/internal/domain"
	"trade-analytics-lab/internal/idhash"
)

func TestDecode_SingleObject(t *testing.T) {
	execs, err := Decode([]byte(`{
		"execution_id": "ex-1",
		"symbol": " aapl ",
		"side": "buy",
		"quantity": "10",
		"price": 101.25,
		"fees": "0.5",
		"timestamp": "2024-03-04T14:30:00Z",
		"portfolio_id": "pf-1",
		"strategy_id": "momo"
	}`))
	require.NoError(t, err)
	require.Len(t, execs, 1)

	e := execs[0]
	assert.Equal(t, "ex-1", e.ExecutionID)
	assert.Equal(t, "AAPL", e.Symbol)
	assert.Equal(t, domain.SideBuy, e.Side)
	assert.True(t, e.Quantity.Equal(decimal.NewFromInt(10)))
	assert.True(t, e.Price.Equal(decimal.RequireFromString("101.25")), "numeric price accepted")
	assert.True(t, e.Fees.Equal(decimal.RequireFromString("0.5")))
	assert.Equal(t, time.Date(2024, 3, 4, 14, 30, 0, 0, time.UTC), e.Timestamp)
	assert.Equal(t, "momo", e.StrategyID)
	require.NoError(t, e.Validate())
}

func TestDecode_ArrayAndDerivedID(t *testing.T) {
	execs, err := Decode([]byte(`[
		{"broker_trade_id": "T-9", "symbol": "MSFT", "side": "SHORT", "quantity": 5, "price": "400",
		 "timestamp_ms": 1709562600000, "portfolio_id": "pf-2"},
		{"execution_id": "ex-2", "symbol": "MSFT", "side": "COVER", "quantity": 5, "price": "390",
		 "timestamp_ms": 1709566200000, "portfolio_id": "pf-2"}
	]`))
	require.NoError(t, err)
	require.Len(t, execs, 2)

	want := idhash.ComputeExecutionID("pf-2", "T-9", "MSFT", 1709562600000)
	assert.Equal(t, want, execs[0].ExecutionID)
	assert.Equal(t, time.UnixMilli(1709562600000).UTC(), execs[0].Timestamp)
	assert.True(t, execs[0].Fees.IsZero(), "missing fees decode as zero")
	assert.Equal(t, "ex-2", execs[1].ExecutionID)
}

func TestDecode_Malformed(t *testing.T) {
	for _, payload := range []string{"", "   ", "{", `{"quantity": "ten"}`, `[1, 2]`} {
		_, err := Decode([]byte(payload))
		assert.ErrorIs(t, err, ErrMalformedMessage, "payload %q", payload)
	}
}
