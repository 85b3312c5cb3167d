// Package app wires configuration into stores and services shared by the
// commands.
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"trade-analytics-lab/internal/config"
	"trade-analytics-lab/internal/marketdata"
	"trade-analytics-lab/internal/replay"
	"trade-analytics-lab/internal/sampling"
	"trade-analytics-lab/internal/storage"
	"trade-analytics-lab/internal/storage/clickhouse"
	"trade-analytics-lab/internal/storage/memory"
	"trade-analytics-lab/internal/storage/migrations"
	"trade-analytics-lab/internal/storage/postgres"
)

// Stores holds all storage implementations.
type Stores struct {
	Executions storage.ExecutionStore
	Positions  storage.PositionStore
	Replays    storage.ReplayStore
	PriceBars  storage.PriceBarStore
	Aggregates storage.AggregateStore
	// Ledger writes executions and positions together; it always targets
	// the same backend as Executions and Positions.
	Ledger storage.Ledger

	closers []func()
}

// OpenStores connects the configured databases and runs their migrations.
// PostgreSQL backs executions, positions and replays; ClickHouse backs price
// bars and aggregate snapshots. Either side falls back to memory when its
// DSN is empty.
func OpenStores(ctx context.Context, cfg config.StorageConfig, log zerolog.Logger) (*Stores, error) {
	executions := memory.NewExecutionStore()
	positions := memory.NewPositionStore()
	s := &Stores{
		Executions: executions,
		Positions:  positions,
		Replays:    memory.NewReplayStore(),
		PriceBars:  memory.NewPriceBarStore(),
		Aggregates: memory.NewAggregateStore(),
		Ledger:     memory.NewLedger(executions, positions),
	}

	if cfg.PostgresDSN != "" {
		pool, err := postgres.NewPoolWithOptions(ctx, cfg.PostgresDSN, postgres.PoolOptions{MaxConns: cfg.PostgresMaxConns})
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		s.closers = append(s.closers, pool.Close)

		applied, err := migrations.RunPostgresMigrations(ctx, pool)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("postgres migrations: %w", err)
		}
		log.Info().Strs("applied", applied).Msg("PostgreSQL ready")

		s.Executions = postgres.NewExecutionStore(pool)
		s.Positions = postgres.NewPositionStore(pool)
		s.Replays = postgres.NewReplayStore(pool)
		s.Ledger = postgres.NewLedger(pool)
	}

	if cfg.ClickHouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouseDSN)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		s.closers = append(s.closers, func() { conn.Close() })
		log.Info().Msg("ClickHouse ready")

		s.PriceBars = clickhouse.NewPriceBarStore(conn)
		s.Aggregates = clickhouse.NewAggregateStore(conn)
	}

	if cfg.UseMemory() {
		log.Warn().Msg("No database configured, using in-memory storage")
	}
	return s, nil
}

// Close releases database connections in reverse order of opening.
func (s *Stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// NewProvider builds the historical bar provider. Without a base URL only
// cached bars are served; otherwise the HTTP client is wrapped in retries
// and, when enabled, the read-through bar cache.
func NewProvider(cfg config.MarketDataConfig, bars storage.PriceBarStore, log zerolog.Logger) marketdata.Provider {
	if cfg.BaseURL == "" {
		log.Warn().Msg("No market data URL configured, replays use cached bars only")
		return marketdata.NewStoreProvider(bars)
	}

	opts := []marketdata.ClientOption{marketdata.WithTimeout(cfg.Timeout)}
	if cfg.APIKey != "" {
		opts = append(opts, marketdata.WithAPIKey(cfg.APIKey))
	}
	var p marketdata.Provider = marketdata.NewRetryingProvider(
		marketdata.NewHTTPClient(cfg.BaseURL, opts...), cfg.Retry, log)

	if cfg.Cache {
		p = marketdata.NewCachedProvider(bars, p, log)
	}
	return p
}

// NewReplayService builds the replay service with its sampling policy.
func NewReplayService(cfg *config.Config, stores *Stores, counters sampling.CounterStore, log zerolog.Logger) (*replay.Service, *sampling.Policy, error) {
	policy, err := sampling.NewPolicy(cfg.Sampling, counters, log)
	if err != nil {
		return nil, nil, err
	}
	provider := NewProvider(cfg.MarketData, stores.PriceBars, log)
	return replay.NewService(cfg.Replay, provider, policy, stores.Replays, log), policy, nil
}
