// Package main runs the long-lived service:
//   - Live feed (continuous): Kafka or WebSocket executions → reconciliation
//   - Replay (continuous): every closed position is replayed and sampled
//   - Cron: aggregate refresh and sampling counter pruning
//   - HTTP: health, Prometheus metrics, statistics and replay API
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"trade-analytics-lab/internal/app"
	"trade-analytics-lab/internal/config"
	"trade-analytics-lab/internal/domain"
	"trade-analytics-lab/internal/feed"
	"trade-analytics-lab/internal/logger"
	"trade-analytics-lab/internal/metrics"
	"trade-analytics-lab/internal/orchestrator"
	"trade-analytics-lab/internal/reconcile"
	"trade-analytics-lab/internal/replay"
	"trade-analytics-lab/internal/reporting"
	"trade-analytics-lab/internal/sampling"
	"trade-analytics-lab/internal/scheduler"
	"trade-analytics-lab/internal/server"
)

// feedSource is a running execution stream.
type feedSource interface {
	Run(ctx context.Context) error
}

func main() {
	configPath := flag.String("config", "", "Path to YAML config (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// Logger is not configured yet.
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("Invalid configuration")
	}

	log := logger.New(cfg.Log)
	logger.SetGlobalLogger(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("Server error")
	}
	log.Info().Msg("Shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	stores, err := app.OpenStores(ctx, cfg.Storage, log)
	if err != nil {
		return err
	}
	defer stores.Close()

	counters := sampling.NewMemoryCounterStore()
	replayer, policy, err := app.NewReplayService(cfg, stores, counters, log)
	if err != nil {
		return err
	}

	reconciler := reconcile.NewService(stores.Positions, stores.Executions, stores.Ledger,
		reconcile.WithWorkers(cfg.Reconcile.Workers),
		reconcile.WithQueueSize(cfg.Reconcile.QueueSize),
		reconcile.WithLogger(log),
	)
	defer reconciler.Stop()

	aggregator := metrics.NewAggregator(stores.Positions, stores.Aggregates, log)
	aggJob := orchestrator.NewAggregateJob(aggregator, time.Minute, log)

	// Closed positions are marked for the next aggregate refresh and queued
	// for replay.
	closed := make(chan *domain.Position, 1024)
	onClosed := func(ctx context.Context, p *domain.Position) {
		aggJob.PositionClosed(ctx, p)
		select {
		case closed <- p:
		case <-ctx.Done():
		}
	}
	handler := feed.NewHandler(reconciler, onClosed, log)

	source, err := newFeedSource(cfg.Feed, handler, log)
	if err != nil {
		return err
	}

	sched := scheduler.New(log)
	if err := sched.AddJob(cfg.Schedule.SamplingPrune, sampling.NewPruneJob(counters, log)); err != nil {
		return err
	}
	if err := sched.AddJob(cfg.Schedule.Aggregates, aggJob); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	srv := server.New(server.Config{
		Addr:       cfg.Server.Addr,
		Log:        log,
		Aggregator: aggregator,
		Aggregates: stores.Aggregates,
		Replays:    stores.Replays,
		Reports:    reporting.NewGenerator(stores.Aggregates, stores.Replays),
		Executions: handler,
		Sampling:   policy,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return replayLoop(gctx, replayer, closed, log)
	})

	if source != nil {
		g.Go(func() error {
			return source.Run(gctx)
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func newFeedSource(cfg config.FeedConfig, handler *feed.Handler, log zerolog.Logger) (feedSource, error) {
	switch cfg.Source {
	case config.FeedKafka:
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("Consuming executions from Kafka")
		return &closingKafka{feed.NewKafkaConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID, handler, log)}, nil
	case config.FeedWebSocket:
		wsCfg := feed.DefaultWSConfig()
		wsCfg.MaxReconnectDelay = cfg.WebSocket.MaxReconnect
		return feed.NewWSSource(cfg.WebSocket.URL, wsCfg, handler, log), nil
	case config.FeedNone, "":
		log.Info().Msg("No live feed configured, executions accepted over HTTP only")
		return nil, nil
	}
	return nil, &domain.ConfigurationError{Field: "feed.source", Reason: "unknown source " + cfg.Source}
}

// closingKafka closes the reader once the consumer stops.
type closingKafka struct {
	*feed.KafkaConsumer
}

func (c *closingKafka) Run(ctx context.Context) error {
	defer c.Close()
	return c.KafkaConsumer.Run(ctx)
}

// replayLoop replays closed positions one at a time until ctx is done.
func replayLoop(ctx context.Context, replayer *replay.Service, closed <-chan *domain.Position, log zerolog.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case p := <-closed:
			res, err := replayer.ReplayPosition(ctx, p)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				log.Error().Err(err).Str("position_id", p.PositionID).Msg("Replay failed")
				continue
			}
			log.Debug().Str("position_id", p.PositionID).Str("status", res.Status).Msg("Position replayed")
		}
	}
}
