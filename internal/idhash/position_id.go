package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"trade-analytics-lab/internal/domain"
)

// ComputePositionID computes a deterministic position_id using SHA256.
// Formula: SHA256(portfolio_id|symbol|direction|opening_execution_id|opened_at_ms)
// Returns hex-encoded hash (64 characters).
func ComputePositionID(
	portfolioID string,
	symbol string,
	direction domain.Direction,
	openingExecutionID string,
	openedAtMs int64,
) string {
	data := fmt.Sprintf("%s|%s|%s|%s|%d",
		portfolioID,
		symbol,
		string(direction),
		openingExecutionID,
		openedAtMs,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ComputeExecutionID derives an execution_id for feeds that only carry a
// broker trade id. Formula: SHA256(portfolio_id|broker_trade_id|symbol|timestamp_ms)
func ComputeExecutionID(
	portfolioID string,
	brokerTradeID string,
	symbol string,
	timestampMs int64,
) string {
	data := fmt.Sprintf("%s|%s|%s|%d",
		portfolioID,
		brokerTradeID,
		symbol,
		timestampMs,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
