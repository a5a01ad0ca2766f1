package pipeline

import (
	"context"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/StockFiew/crypto-pulse-minions/internal/model"
)

// frame is the combined-stream wrapper around every raw exchange message: a
// stream identifier such as "btcusdt@trade" or "btcusdt@kline_1m" plus the
// raw event payload.
type frame struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// Dispatcher demultiplexes raw incoming frames by stream kind and routes them
// to the matching publisher path.
//
// Counter semantics: the publisher increments the per-kind success/failure
// counters based on the queue enqueue outcome. A malformed frame or an
// unsupported stream kind is logged and dropped without touching counters —
// dropping is the designed behavior for those, not a crash.
type Dispatcher struct {
	norm *Normalizer
	pub  *Publisher
}

// NewDispatcher creates a dispatcher routing frames through the given
// normalizer and publisher.
func NewDispatcher(norm *Normalizer, pub *Publisher) *Dispatcher {
	return &Dispatcher{norm: norm, pub: pub}
}

// Dispatch parses one raw frame and routes it to the trade or kline path.
// It never returns an error to the frame source: every failure mode degrades
// to a log line, so one bad frame cannot stall the feed.
func (d *Dispatcher) Dispatch(ctx context.Context, raw []byte) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		log.Error().Err(err).Msg("malformed frame")
		return
	}
	if f.Stream == "" || len(f.Data) == 0 {
		log.Error().Str("stream", f.Stream).Msg("malformed frame: missing stream or data")
		return
	}

	switch streamKind(f.Stream) {
	case model.KindTrade:
		ev, err := d.norm.Trade(f.Data)
		if err != nil {
			log.Error().Err(err).Str("stream", f.Stream).Msg("malformed trade payload")
			return
		}
		d.pub.PublishTrade(ctx, ev)

	case model.KindKline:
		ev, err := d.norm.Kline(f.Data)
		if err != nil {
			log.Error().Err(err).Str("stream", f.Stream).Msg("malformed kline payload")
			return
		}
		d.pub.PublishKline(ctx, ev)

	default:
		log.Error().Str("stream", f.Stream).Msg("unsupported stream kind, dropping frame")
	}
}

// streamKind extracts the kind tag from a stream identifier:
// "btcusdt@trade" -> "trade", "btcusdt@kline_1m" -> "kline".
func streamKind(stream string) string {
	_, tag, ok := strings.Cut(stream, "@")
	if !ok {
		return ""
	}
	if i := strings.IndexByte(tag, '_'); i >= 0 {
		tag = tag[:i]
	}
	return tag
}
