// Package consumer implements the queue consumer worker pool: a supervised set
// of concurrent workers draining the durable queue and persisting every
// canonical event into the time-series store.
//
// Consumption is at-most-once: the queue removes a message the moment it is
// delivered to a worker, so a persistence failure after delivery is a
// permanent loss recorded only in the aggregate counters — there is no retry
// and no redelivery. Workers share no mutable state except those counters.
package consumer

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/StockFiew/crypto-pulse-minions/internal/model"
	"github.com/StockFiew/crypto-pulse-minions/internal/queue"
	"github.com/StockFiew/crypto-pulse-minions/internal/stats"
	"github.com/StockFiew/crypto-pulse-minions/internal/tsdb"
)

// Pool supervises N independent workers consuming one shared queue
// subscription.
//
// Stopping is cooperative: Stop cancels the workers' dequeue loops but never
// interrupts in-flight message handling — a worker finishes the message it
// holds, lets its write complete and count, and only then reports stopped.
type Pool struct {
	queue     queue.Queue
	writer    tsdb.Writer
	counters  *stats.Counters
	queueName string

	started atomic.Bool
	cancel  context.CancelFunc
	group   *errgroup.Group
}

// NewPool creates a stopped pool draining the named queue into the writer.
func NewPool(q queue.Queue, w tsdb.Writer, counters *stats.Counters, queueName string) *Pool {
	return &Pool{
		queue:     q,
		writer:    w,
		counters:  counters,
		queueName: queueName,
	}
}

// Start spawns n workers, each immediately consuming. It returns an error if
// the pool is already running or n is not positive.
func (p *Pool) Start(ctx context.Context, n int) error {
	if n <= 0 {
		return errors.New("worker count must be positive")
	}
	if !p.started.CompareAndSwap(false, true) {
		return errors.New("pool already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	g, ctx := errgroup.WithContext(ctx)
	p.group = g
	for i := 0; i < n; i++ {
		id := i
		g.Go(func() error {
			p.worker(ctx, id)
			return nil
		})
	}

	log.Info().Int("workers", n).Str("queue", p.queueName).Msg("consumer pool started")
	return nil
}

// Stop broadcasts the stop signal and waits for every worker to drain its
// in-flight message and report stopped.
func (p *Pool) Stop() error {
	if !p.started.CompareAndSwap(true, false) {
		return errors.New("pool not started")
	}
	p.cancel()
	err := p.group.Wait()
	log.Info().Str("queue", p.queueName).Msg("consumer pool stopped")
	return err
}

// worker runs one consume loop until the stop signal is observed. Message
// handling runs on a context detached from the stop signal so an in-flight
// write completes and increments its counter before the worker exits.
func (p *Pool) worker(ctx context.Context, id int) {
	logger := log.With().Int("worker", id).Str("queue", p.queueName).Logger()
	logger.Info().Msg("worker consuming")

	for {
		payload, err := p.queue.Dequeue(ctx, p.queueName)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info().Msg("worker stopped")
				return
			}
			logger.Warn().Err(err).Msg("dequeue failed")
			continue
		}
		p.handle(context.WithoutCancel(ctx), logger, payload)
	}
}

// handle performs the two-level decode and dispatches by event kind.
//
// An empty payload after decode is a no-op, not an error. Unsupported kinds
// are logged and dropped with no counter effect.
func (p *Pool) handle(ctx context.Context, logger zerolog.Logger, raw []byte) {
	var env model.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		logger.Error().Err(err).Msg("malformed queue envelope")
		return
	}
	if len(env.Payload) == 0 {
		return
	}

	switch env.Kind {
	case model.KindTrade:
		p.writeTrade(ctx, logger, env.Payload)
	case model.KindKline:
		p.writeKline(ctx, logger, env.Payload)
	default:
		logger.Error().Str("kind", env.Kind).Msg("unsupported event kind, dropping message")
	}
}

// writeTrade persists one canonical trade. A store failure is logged and
// counted but the message is gone — at-most-once.
func (p *Pool) writeTrade(ctx context.Context, logger zerolog.Logger, payload []byte) {
	var ev model.TradeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		logger.Error().Err(err).Msg("malformed trade payload")
		return
	}

	if err := p.writer.Write(ctx, []tsdb.Point{tradePoint(ev)}); err != nil {
		p.counters.TradeFailure()
		logger.Error().Err(err).Str("symbol", ev.Symbol).Msg("trade write failed")
		return
	}
	p.counters.TradeSuccess()
}

// writeKline persists one canonical kline.
func (p *Pool) writeKline(ctx context.Context, logger zerolog.Logger, payload []byte) {
	var ev model.KlineEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		logger.Error().Err(err).Msg("malformed kline payload")
		return
	}

	if err := p.writer.Write(ctx, []tsdb.Point{klinePoint(ev)}); err != nil {
		p.counters.KlineFailure()
		logger.Error().Err(err).Str("symbol", ev.Symbol).Msg("kline write failed")
		return
	}
	p.counters.KlineSuccess()
}

// tradePoint maps a canonical trade onto a time-series datapoint.
func tradePoint(ev model.TradeEvent) tsdb.Point {
	ts := ev.TradeTime
	if ts == 0 {
		ts = ev.EventTime
	}
	return tsdb.Point{
		Measurement: model.KindTrade,
		Tags: map[string]string{
			"exchange": ev.Exchange,
			"symbol":   ev.Symbol,
		},
		Fields: map[string]interface{}{
			"price":         ev.Price,
			"quantity":      ev.Quantity,
			"tradeId":       ev.TradeID,
			"buyerOrderId":  ev.BuyerOrderID,
			"sellerOrderId": ev.SellerOrderID,
			"isBuyerMaker":  ev.IsBuyerMaker,
		},
		Time: time.UnixMilli(ts),
	}
}

// klinePoint maps a canonical kline onto a time-series datapoint.
func klinePoint(ev model.KlineEvent) tsdb.Point {
	return tsdb.Point{
		Measurement: model.KindKline,
		Tags: map[string]string{
			"exchange": ev.Exchange,
			"symbol":   ev.Symbol,
			"interval": ev.Interval,
		},
		Fields: map[string]interface{}{
			"open":        ev.Open,
			"high":        ev.High,
			"low":         ev.Low,
			"close":       ev.Close,
			"volume":      ev.Volume,
			"tradeCount":  ev.TradeCount,
			"isFinal":     ev.IsFinal,
			"quoteVolume": ev.QuoteVolume,
			"baseVolume":  ev.BaseVolume,
		},
		Time: time.UnixMilli(ev.EventTime),
	}
}
