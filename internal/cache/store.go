// Package cache provides the sliding-window cache used as the low-latency sink
// of the dual-sink publisher.
//
// Each channel is a time-ordered log of serialized events scored by the event's
// native timestamp (epoch ms). Pruning is lazy: every append removes entries
// older than the retention cutoff in the same atomic unit, so a channel never
// holds stale entries once a subsequent write for that channel occurs. There is
// no background sweep.
package cache

import "context"

// Store is the narrowed interface the pipeline core needs from the
// sliding-window cache / key-value store.
type Store interface {
	// AppendRanked appends payload to the channel at the given score and
	// prunes every entry with score strictly below pruneBelow. The append and
	// the prune execute as one atomic unit: a reader never observes a state
	// where one ran without the other. Re-appending an identical
	// (score, payload) pair adds a second ranked entry; ties keep insertion
	// order.
	AppendRanked(ctx context.Context, channel string, score int64, payload []byte, pruneBelow int64) error

	// SetValue stores payload under a plain key, overwriting any previous
	// value. Used for extrema snapshots.
	SetValue(ctx context.Context, key string, payload []byte) error
}

// Channel builds the per-channel key for an event kind, symbol and exchange.
// Kline channels carry the interval label as an extra segment.
func Channel(kind, symbol, exchange string, extra ...string) string {
	ch := kind + ":" + symbol + ":" + exchange
	for _, e := range extra {
		ch += ":" + e
	}
	return ch
}
