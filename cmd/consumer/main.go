/*
Package main implements the persistence consumer.

The consumer runs a pool of workers pulling market events from the durable
Redis-backed queue and writing them as points into InfluxDB. Delivery is
at-most-once: a message is removed from the queue when a worker picks it up,
so a failed write is counted and logged but never retried.

Usage:

	go run main.go -config=config.yaml

On SIGINT or SIGTERM the pool stops accepting new messages and lets in-flight
writes complete before the process exits.
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

	"github.com/StockFiew/crypto-pulse-minions/internal/config"
	"github.com/StockFiew/crypto-pulse-minions/internal/consumer"
	"github.com/StockFiew/crypto-pulse-minions/internal/queue"
	"github.com/StockFiew/crypto-pulse-minions/internal/stats"
	"github.com/StockFiew/crypto-pulse-minions/internal/tsdb"
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

	if cfg.Influx.URL == "" || cfg.Influx.Bucket == "" {
		log.Fatal().Msg("influx url and bucket must be configured")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("failed to connect to Redis")
	}

	writer := tsdb.NewInfluxWriter(cfg.Influx.URL, cfg.Influx.Token, cfg.Influx.Org, cfg.Influx.Bucket)
	defer writer.Close()

	counters := stats.NewCounters()
	go stats.NewReporter("consumption", counters, cfg.Stats.ReportInterval).Run(ctx)

	pool := consumer.NewPool(queue.NewRedisQueue(ctx, rdb, cfg.Queue.Name), writer, counters, cfg.Queue.Name)
	if err := pool.Start(ctx, cfg.Queue.Workers); err != nil {
		log.Fatal().Err(err).Msg("failed to start consumer pool")
	}

	log.Info().
		Str("queue", cfg.Queue.Name).
		Int("workers", cfg.Queue.Workers).
		Str("influx_bucket", cfg.Influx.Bucket).
		Msg("consumer started")

	<-ctx.Done()
	log.Info().Msg("shutdown signal received, draining in-flight writes")

	if err := pool.Stop(); err != nil {
		log.Error().Err(err).Msg("consumer pool stopped with error")
	}
	log.Info().Msg("consumer stopped")
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
