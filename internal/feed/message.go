// Package feed turns broker execution messages into reconciled positions.
// Messages arrive over Kafka or a WebSocket stream and are applied through
// reconcile.Service.
package feed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"trade-analytics-lab/internal/domain"
	"trade-analytics-lab/internal/idhash"
)

// ErrMalformedMessage is returned when a payload cannot be decoded.
var ErrMalformedMessage = errors.New("malformed execution message")

// message is the wire form of one fill. Decimal fields accept JSON strings
// or numbers.
type message struct {
	ExecutionID   string          `json:"execution_id"`
	BrokerTradeID string          `json:"broker_trade_id"`
	Symbol        string          `json:"symbol"`
	Side          string          `json:"side"`
	Quantity      decimal.Decimal `json:"quantity"`
	Price         decimal.Decimal `json:"price"`
	Fees          decimal.Decimal `json:"fees"`
	Timestamp     time.Time       `json:"timestamp"`
	TimestampMs   int64           `json:"timestamp_ms"`
	PortfolioID   string          `json:"portfolio_id"`
	StrategyID    string          `json:"strategy_id"`
	TraderID      string          `json:"trader_id"`
}

// Decode parses a payload holding one execution object or an array of them.
// Feeds that only carry a broker trade id get a derived execution id.
// Field-level validation is left to the reconciler.
func Decode(data []byte) ([]*domain.Execution, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedMessage)
	}

	var msgs []message
	if data[0] == '[' {
		if err := json.Unmarshal(data, &msgs); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
	} else {
		var m message
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		msgs = []message{m}
	}

	out := make([]*domain.Execution, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.execution())
	}
	return out, nil
}

func (m message) execution() *domain.Execution {
	ts := m.Timestamp
	if ts.IsZero() && m.TimestampMs > 0 {
		ts = time.UnixMilli(m.TimestampMs)
	}
	ts = ts.UTC()

	id := m.ExecutionID
	if id == "" && m.BrokerTradeID != "" {
		id = idhash.ComputeExecutionID(m.PortfolioID, m.BrokerTradeID, m.Symbol, ts.UnixMilli())
	}

	return &domain.Execution{
		ExecutionID:   id,
		BrokerTradeID: m.BrokerTradeID,
		Symbol:        strings.ToUpper(strings.TrimSpace(m.Symbol)),
		Side:          domain.Side(strings.ToUpper(strings.TrimSpace(m.Side))),
		Quantity:      m.Quantity,
		Price:         m.Price,
		Fees:          m.Fees,
		Timestamp:     ts,
		PortfolioID:   m.PortfolioID,
		StrategyID:    m.StrategyID,
		TraderID:      m.TraderID,
	}
}
