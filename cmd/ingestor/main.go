/*
Package main implements the market data ingestor.

The ingestor subscribes to an exchange WebSocket feed, normalizes incoming
trade and kline frames, tracks rolling price extrema per symbol and interval,
and publishes every event to two sinks: a durable Redis-backed queue consumed
by the persistence workers, and a sliding-window Redis cache serving recent
history lookups.

Usage:

	go run main.go -config=config.yaml

The process runs until it receives SIGINT or SIGTERM, or until the exchange
connection drops.
*/
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/StockFiew/crypto-pulse-minions/internal/cache"
	"github.com/StockFiew/crypto-pulse-minions/internal/config"
	"github.com/StockFiew/crypto-pulse-minions/internal/exchange"
	"github.com/StockFiew/crypto-pulse-minions/internal/extrema"
	"github.com/StockFiew/crypto-pulse-minions/internal/pipeline"
	"github.com/StockFiew/crypto-pulse-minions/internal/queue"
	"github.com/StockFiew/crypto-pulse-minions/internal/stats"
)

var configPath = flag.String("config", "config.yaml", "Path to the YAML configuration file")

func main() {
	flag.Parse()

	// Initialize structured logger with timestamp and console output
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	applyLogLevel(cfg.LogLevel)

	// Cancel on SIGINT/SIGTERM so every component sharing this context
	// winds down together.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	store := cache.NewRedisStore(rdb)
	if err := store.Ping(ctx); err != nil {
		log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("failed to connect to Redis")
	}

	counters := stats.NewCounters()
	go stats.NewReporter("ingestion", counters, cfg.Stats.ReportInterval).Run(ctx)

	publisher := pipeline.NewPublisher(pipeline.PublisherConfig{
		Queue:     queue.NewRedisQueue(ctx, rdb, cfg.Queue.Name),
		Store:     store,
		Tracker:   extrema.NewTracker(nil),
		Counters:  counters,
		QueueName: cfg.Queue.Name,
		Exchange:  cfg.Exchange.Name,
		Retention: cfg.Cache.Retention,
	})
	dispatcher := pipeline.NewDispatcher(pipeline.NewNormalizer(cfg.Exchange.Name), publisher)

	feed := exchange.NewBinanceFeed(&exchange.FeedConfig{BaseURL: cfg.Exchange.WebsocketURL})
	client, err := feed.Subscribe(ctx, cfg.Exchange.Symbols, cfg.Exchange.KlineIntervals, func(raw []byte) error {
		dispatcher.Dispatch(ctx, raw)
		return nil
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to subscribe to exchange feed")
	}
	defer client.Close()

	log.Info().
		Str("exchange", cfg.Exchange.Name).
		Strs("symbols", cfg.Exchange.Symbols).
		Strs("kline_intervals", cfg.Exchange.KlineIntervals).
		Str("queue", cfg.Queue.Name).
		Dur("retention", cfg.Cache.Retention).
		Msg("ingestor started")

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case <-client.Disconnected():
		log.Warn().Msg("exchange connection lost, shutting down")
	}
}

// applyLogLevel maps the configured level name onto the global zerolog level,
// defaulting to info for unknown values.
func applyLogLevel(level string) {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil || parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
}
