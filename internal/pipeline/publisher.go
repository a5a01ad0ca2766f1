package pipeline

import (
	"context"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/StockFiew/crypto-pulse-minions/internal/cache"
	"github.com/StockFiew/crypto-pulse-minions/internal/extrema"
	"github.com/StockFiew/crypto-pulse-minions/internal/model"
	"github.com/StockFiew/crypto-pulse-minions/internal/queue"
	"github.com/StockFiew/crypto-pulse-minions/internal/stats"
)

const (
	// defaultRetention is the sliding-window cache retention cutoff.
	defaultRetention = time.Hour

	// defaultPublishDelay is the delay applied to kline enqueues and to the
	// duplicate trade enqueue.
	defaultPublishDelay = 300 * time.Millisecond
)

// PublisherConfig wires the publisher's collaborators and tuning knobs.
type PublisherConfig struct {
	Queue     queue.Queue
	Store     cache.Store
	Tracker   *extrema.Tracker
	Counters  *stats.Counters
	QueueName string
	Exchange  string

	// Retention is the sliding-window age cutoff; zero selects one hour.
	Retention time.Duration

	// PublishDelay is the kline/duplicate-trade enqueue delay; zero selects
	// 300ms.
	PublishDelay time.Duration
}

// Publisher fans one canonical event out to both sinks: the durable queue for
// downstream persistence and the sliding-window cache for low-latency reads.
//
// The two sinks are independent: a queue enqueue failure is counted and logged
// but never suppresses the cache write. A cache write failure on the trade
// path is fatal to that publish attempt — the pending extrema snapshot writes
// and the delayed duplicate enqueue are skipped.
//
// Like the extrema tracker it owns, the publisher runs on the single ingestion
// goroutine; only its counters are touched from elsewhere.
type Publisher struct {
	queue     queue.Queue
	store     cache.Store
	tracker   *extrema.Tracker
	counters  *stats.Counters
	queueName string
	exchange  string
	retention time.Duration
	delay     time.Duration
	now       func() time.Time
}

// NewPublisher creates a publisher from the config, applying defaults for the
// retention window and publish delay.
func NewPublisher(cfg PublisherConfig) *Publisher {
	if cfg.Retention <= 0 {
		cfg.Retention = defaultRetention
	}
	if cfg.PublishDelay <= 0 {
		cfg.PublishDelay = defaultPublishDelay
	}
	return &Publisher{
		queue:     cfg.Queue,
		store:     cfg.Store,
		tracker:   cfg.Tracker,
		counters:  cfg.Counters,
		queueName: cfg.QueueName,
		exchange:  cfg.Exchange,
		retention: cfg.Retention,
		delay:     cfg.PublishDelay,
		now:       time.Now,
	}
}

// PublishTrade runs the trade path: sample extrema for every matching
// interval, enqueue immediately, append to the sliding-window cache, then on
// cache success write one extrema snapshot pair per sampled interval and
// enqueue the same trade a second time with a delay.
//
// The duplicate delayed enqueue is intentional: downstream consumers that
// reconcile against a slightly-lagged copy depend on it.
func (p *Publisher) PublishTrade(ctx context.Context, ev model.TradeEvent) {
	sampled := p.tracker.SampleTrade(ev.Symbol, ev.EventTime, ev.Price)

	payload, env, err := encode(model.KindTrade, ev)
	if err != nil {
		log.Error().Err(err).Str("symbol", ev.Symbol).Msg("trade serialization failed")
		return
	}

	if err := p.queue.Enqueue(ctx, p.queueName, env, 0, 0); err != nil {
		p.counters.TradeFailure()
		log.Error().Err(err).Str("symbol", ev.Symbol).Msg("trade enqueue failed")
	} else {
		p.counters.TradeSuccess()
	}

	channel := cache.Channel(model.KindTrade, ev.Symbol, p.exchange)
	if err := p.store.AppendRanked(ctx, channel, ev.EventTime, payload, p.cutoff()); err != nil {
		log.Error().Err(err).Str("channel", channel).Msg("trade cache append failed")
		return
	}

	for _, s := range sampled {
		p.writeSnapshot(ctx, "high", s.Interval, ev.Symbol, s.State.High)
		p.writeSnapshot(ctx, "low", s.Interval, ev.Symbol, s.State.Low)
	}

	if err := p.queue.Enqueue(ctx, p.queueName, env, 0, p.delay); err != nil {
		p.counters.TradeFailure()
		log.Error().Err(err).Str("symbol", ev.Symbol).Msg("delayed trade enqueue failed")
	}
}

// PublishKline runs the kline path: widen the kline's own interval bucket,
// enqueue with the publish delay, and append to the interval's cache channel.
func (p *Publisher) PublishKline(ctx context.Context, ev model.KlineEvent) {
	if _, ok := p.tracker.SampleKline(ev.Symbol, ev.Interval, ev.High, ev.Low); !ok {
		log.Warn().Str("interval", ev.Interval).Str("symbol", ev.Symbol).Msg("kline interval not tracked")
	}

	payload, env, err := encode(model.KindKline, ev)
	if err != nil {
		log.Error().Err(err).Str("symbol", ev.Symbol).Msg("kline serialization failed")
		return
	}

	if err := p.queue.Enqueue(ctx, p.queueName, env, 0, p.delay); err != nil {
		p.counters.KlineFailure()
		log.Error().Err(err).Str("symbol", ev.Symbol).Msg("kline enqueue failed")
	} else {
		p.counters.KlineSuccess()
	}

	channel := cache.Channel(model.KindKline, ev.Symbol, p.exchange, ev.Interval)
	if err := p.store.AppendRanked(ctx, channel, ev.EventTime, payload, p.cutoff()); err != nil {
		log.Error().Err(err).Str("channel", channel).Msg("kline cache append failed")
	}
}

// cutoff is the current retention boundary in epoch ms.
func (p *Publisher) cutoff() int64 {
	return p.now().Add(-p.retention).UnixMilli()
}

// writeSnapshot stores one extrema value under its dedicated cache key.
// Snapshot write failures degrade to a log line; they do not fail the publish.
func (p *Publisher) writeSnapshot(ctx context.Context, side string, iv extrema.Interval, symbol string, value float64) {
	key := side + ":" + iv.String() + ":" + symbol + ":" + p.exchange
	payload := []byte(strconv.FormatFloat(value, 'f', -1, 64))
	if err := p.store.SetValue(ctx, key, payload); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("extrema snapshot write failed")
	}
}

// encode serializes a canonical event and wraps it in the queue envelope,
// returning both: the bare serialization goes to the sliding-window cache, the
// envelope to the durable queue.
func encode(kind string, ev interface{}) (payload, env []byte, err error) {
	payload, err = json.Marshal(ev)
	if err != nil {
		return nil, nil, err
	}
	env, err = json.Marshal(model.Envelope{Kind: kind, Payload: payload})
	if err != nil {
		return nil, nil, err
	}
	return payload, env, nil
}
