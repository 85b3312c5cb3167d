// Package config loads application settings from an optional YAML file,
// then applies environment overrides (a .env file is read if present).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"trade-analytics-lab/internal/domain"
	"trade-analytics-lab/internal/logger"
	"trade-analytics-lab/internal/marketdata"
	"trade-analytics-lab/internal/replay"
	"trade-analytics-lab/internal/sampling"
)

// Feed sources.
const (
	FeedNone      = "none"
	FeedKafka     = "kafka"
	FeedWebSocket = "websocket"
)

// Config holds application configuration.
type Config struct {
	Log        logger.Config    `yaml:"log"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Feed       FeedConfig       `yaml:"feed"`
	MarketData MarketDataConfig `yaml:"market_data"`
	Reconcile  ReconcileConfig  `yaml:"reconcile"`
	Replay     replay.Config    `yaml:"replay"`
	Sampling   sampling.Config  `yaml:"sampling"`
	Schedule   ScheduleConfig   `yaml:"schedule"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StorageConfig selects the backing stores. Empty DSNs select in-memory stores.
type StorageConfig struct {
	PostgresDSN      string `yaml:"postgres_dsn"`
	PostgresMaxConns int32  `yaml:"postgres_max_conns"`
	ClickHouseDSN    string `yaml:"clickhouse_dsn"`
}

// UseMemory reports whether no database is configured.
func (s StorageConfig) UseMemory() bool {
	return s.PostgresDSN == "" && s.ClickHouseDSN == ""
}

// FeedConfig configures the live execution stream.
type FeedConfig struct {
	Source    string          `yaml:"source"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	WebSocket WebSocketConfig `yaml:"websocket"`
}

// KafkaConfig configures the Kafka consumer.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`
}

// WebSocketConfig configures the WebSocket source.
type WebSocketConfig struct {
	URL          string        `yaml:"url"`
	MaxReconnect time.Duration `yaml:"max_reconnect"`
}

// MarketDataConfig configures the historical bar provider.
type MarketDataConfig struct {
	BaseURL string                 `yaml:"base_url"`
	APIKey  string                 `yaml:"api_key"`
	Timeout time.Duration          `yaml:"timeout"`
	Cache   bool                   `yaml:"cache"` // read-through ClickHouse cache
	Retry   marketdata.RetryConfig `yaml:"retry"`
}

// ReconcileConfig sizes the reconciliation workers.
type ReconcileConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

// ScheduleConfig holds cron expressions (with seconds).
type ScheduleConfig struct {
	SamplingPrune string `yaml:"sampling_prune"`
	Aggregates    string `yaml:"aggregates"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log: logger.Config{Level: "info"},
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Feed: FeedConfig{
			Source: FeedNone,
			Kafka: KafkaConfig{
				Topic:   "executions",
				GroupID: "trade-analytics",
			},
			WebSocket: WebSocketConfig{MaxReconnect: 30 * time.Second},
		},
		MarketData: MarketDataConfig{
			Timeout: 15 * time.Second,
			Cache:   true,
			Retry:   marketdata.DefaultRetryConfig(),
		},
		Reconcile: ReconcileConfig{Workers: 8, QueueSize: 256},
		Replay:    replay.DefaultConfig(),
		Sampling:  sampling.DefaultConfig(),
		Schedule: ScheduleConfig{
			SamplingPrune: "0 5 0 * * *",
			Aggregates:    "0 */15 * * * *",
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is non-empty), then environment variables. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	// .env is optional; existing environment variables win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Server.Addr, "HTTP_ADDR")
	setString(&c.Storage.PostgresDSN, "POSTGRES_DSN")
	setString(&c.Storage.ClickHouseDSN, "CLICKHOUSE_DSN")
	setString(&c.Feed.Source, "FEED_SOURCE")
	setString(&c.Feed.Kafka.Topic, "KAFKA_TOPIC")
	setString(&c.Feed.Kafka.GroupID, "KAFKA_GROUP_ID")
	setString(&c.Feed.WebSocket.URL, "FEED_WS_URL")
	setString(&c.MarketData.BaseURL, "MARKET_DATA_URL")
	setString(&c.MarketData.APIKey, "MARKET_DATA_API_KEY")

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Feed.Kafka.Brokers = splitList(v)
	}
	if err := setBool(&c.Log.Pretty, "LOG_PRETTY"); err != nil {
		return err
	}
	if err := setBool(&c.Sampling.Enabled, "SAMPLING_ENABLED"); err != nil {
		return err
	}
	if err := setInt(&c.Replay.Concurrency, "REPLAY_CONCURRENCY"); err != nil {
		return err
	}
	if err := setInt(&c.Reconcile.Workers, "RECONCILE_WORKERS"); err != nil {
		return err
	}
	return nil
}

// Validate returns *domain.ConfigurationError for the first unusable setting.
func (c *Config) Validate() error {
	if !logger.ValidLevel(c.Log.Level) {
		return &domain.ConfigurationError{Field: "log.level", Reason: fmt.Sprintf("unknown level %q", c.Log.Level)}
	}
	if c.Server.Addr == "" {
		return &domain.ConfigurationError{Field: "server.addr", Reason: "required"}
	}

	switch c.Feed.Source {
	case FeedNone, "":
	case FeedKafka:
		if len(c.Feed.Kafka.Brokers) == 0 {
			return &domain.ConfigurationError{Field: "feed.kafka.brokers", Reason: "required for kafka feed"}
		}
		if c.Feed.Kafka.Topic == "" {
			return &domain.ConfigurationError{Field: "feed.kafka.topic", Reason: "required for kafka feed"}
		}
	case FeedWebSocket:
		if !strings.HasPrefix(c.Feed.WebSocket.URL, "ws://") && !strings.HasPrefix(c.Feed.WebSocket.URL, "wss://") {
			return &domain.ConfigurationError{Field: "feed.websocket.url", Reason: "must be a ws:// or wss:// URL"}
		}
	default:
		return &domain.ConfigurationError{Field: "feed.source", Reason: fmt.Sprintf("unknown source %q", c.Feed.Source)}
	}

	if c.MarketData.Timeout <= 0 {
		return &domain.ConfigurationError{Field: "market_data.timeout", Reason: "must be positive"}
	}
	if c.Reconcile.Workers < 1 {
		return &domain.ConfigurationError{Field: "reconcile.workers", Reason: "must be at least 1"}
	}
	if c.Reconcile.QueueSize < 0 {
		return &domain.ConfigurationError{Field: "reconcile.queue_size", Reason: "must not be negative"}
	}

	if err := c.MarketData.Retry.Validate(); err != nil {
		return err
	}
	if err := c.Replay.Validate(); err != nil {
		return err
	}
	return c.Sampling.Validate()
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return &domain.ConfigurationError{Field: key, Reason: "not a boolean"}
	}
	*dst = b
	return nil
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return &domain.ConfigurationError{Field: key, Reason: "not an integer"}
	}
	*dst = n
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
