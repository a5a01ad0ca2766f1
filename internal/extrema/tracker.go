// Package extrema maintains rolling price extrema per (symbol, interval) bucket.
//
// The tracker keeps one running high/low pair for every combination of trading
// symbol and time window it has sampled. State is widen-only: the high never
// decreases and the low never increases for the lifetime of the process, and is
// reinitialized to the sentinel values (-Inf/+Inf) only on restart.
//
// Thread safety: the tracker is owned by the single ingestion goroutine and is
// deliberately unsynchronized, following the actor pattern used throughout the
// pipeline where one goroutine owns each piece of mutable state.
package extrema

import (
	"math"
	"strconv"
)

// Interval is a time window size expressed in seconds. The zero-able sentinel
// Infinite represents the unbounded window that terminates the interval set.
type Interval int64

// Infinite is the sentinel unbounded interval; its extrema cover the whole
// process lifetime and it is sampled on every trade.
const Infinite Interval = -1

// DefaultIntervals is the fixed, ordered interval set the tracker samples
// trades against. Read-only for the process lifetime.
var DefaultIntervals = []Interval{60, 300, 900, 1800, 3600, 14400, 86400, Infinite}

// klineIntervals maps exchange kline interval labels to tracker intervals.
var klineIntervals = map[string]Interval{
	"1m":  60,
	"5m":  300,
	"15m": 900,
	"30m": 1800,
	"1h":  3600,
	"4h":  14400,
	"1d":  86400,
}

// String renders the interval for use in cache key construction: the second
// count for bounded windows, "inf" for the unbounded one.
func (i Interval) String() string {
	if i == Infinite {
		return "inf"
	}
	return strconv.FormatInt(int64(i), 10)
}

// Matches reports whether the boundary-alignment predicate holds for the given
// event timestamp, i.e. whether a trade at that timestamp should be sampled
// into this interval's extrema. The unbounded interval matches every timestamp.
//
// The predicate compares the raw epoch-millisecond timestamp against the
// interval's second count, as observed upstream. See DESIGN.md for the open
// question around this unit mix.
func (i Interval) Matches(timestampMs int64) bool {
	if i == Infinite {
		return true
	}
	return timestampMs%int64(i) == 0
}

// IntervalFromLabel resolves a kline interval label such as "1m" to its
// tracker interval. The second return is false for unknown labels.
func IntervalFromLabel(label string) (Interval, bool) {
	iv, ok := klineIntervals[label]
	return iv, ok
}

// State holds the running extrema for one (symbol, interval) bucket.
type State struct {
	High float64 // Running maximum, initialized to -Inf
	Low  float64 // Running minimum, initialized to +Inf
}

// Sample is the result of sampling one interval: the interval that matched and
// the bucket state after the update.
type Sample struct {
	Interval Interval
	State    State
}

// key identifies one extrema bucket. Each symbol owns an independent extrema
// trajectory per interval.
type key struct {
	symbol   string
	interval Interval
}

// Tracker maintains rolling high/low state for every sampled
// (symbol, interval) pair. State is long-lived; there is no removal operation.
type Tracker struct {
	intervals []Interval
	buckets   map[key]*State
}

// NewTracker creates a tracker sampling trades against the given interval set.
// A nil set selects DefaultIntervals.
func NewTracker(intervals []Interval) *Tracker {
	if intervals == nil {
		intervals = DefaultIntervals
	}
	return &Tracker{
		intervals: intervals,
		buckets:   make(map[key]*State),
	}
}

// bucket returns the state for the pair, creating it at the sentinel extrema
// on first touch.
func (t *Tracker) bucket(symbol string, interval Interval) *State {
	k := key{symbol: symbol, interval: interval}
	s, ok := t.buckets[k]
	if !ok {
		s = &State{High: math.Inf(-1), Low: math.Inf(1)}
		t.buckets[k] = s
	}
	return s
}

// SampleTrade samples a trade price into every interval whose boundary
// predicate holds for the trade's timestamp, widening the matching buckets'
// extrema. It returns one Sample per interval that was sampled, in interval
// set order, so the publisher can mirror exactly those buckets to the cache.
func (t *Tracker) SampleTrade(symbol string, timestampMs int64, price float64) []Sample {
	var sampled []Sample
	for _, iv := range t.intervals {
		if !iv.Matches(timestampMs) {
			continue
		}
		s := t.bucket(symbol, iv)
		if price > s.High {
			s.High = price
		}
		if price < s.Low {
			s.Low = price
		}
		sampled = append(sampled, Sample{Interval: iv, State: *s})
	}
	return sampled
}

// SampleKline widens the bucket for the kline's own interval against the
// kline's reported high and low. Unlike trade sampling it is unconditional:
// every kline event updates exactly its labeled interval. Unknown interval
// labels are ignored and reported via the second return.
func (t *Tracker) SampleKline(symbol, label string, high, low float64) (Sample, bool) {
	iv, ok := IntervalFromLabel(label)
	if !ok {
		return Sample{}, false
	}
	s := t.bucket(symbol, iv)
	if high > s.High {
		s.High = high
	}
	if low < s.Low {
		s.Low = low
	}
	return Sample{Interval: iv, State: *s}, true
}

// Peek returns a copy of the current state for the pair. The second return is
// false when the pair has never been sampled.
func (t *Tracker) Peek(symbol string, interval Interval) (State, bool) {
	s, ok := t.buckets[key{symbol: symbol, interval: interval}]
	if !ok {
		return State{}, false
	}
	return *s, true
}
