// Package stats provides the per-tick success/failure counters shared by the
// ingestion and consumption stages, and the periodic reporter that logs and
// resets them.
//
// Counters are purely observability state: they are never persisted, and there
// is no ordering guarantee between an increment and the reporter tick that
// reads it. A completion landing just after a reset is attributed to the next
// tick, which is acceptable imprecision for a diagnostics counter.
package stats

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Counters holds the four per-tick cells for one pipeline stage. Increments
// are safe from any goroutine; the reporter swaps each cell to zero when it
// reads them.
type Counters struct {
	successTrades atomic.Int64
	successKlines atomic.Int64
	failedTrades  atomic.Int64
	failedKlines  atomic.Int64
}

// NewCounters returns a zeroed counter set.
func NewCounters() *Counters {
	return &Counters{}
}

// TradeSuccess records one successfully published/persisted trade.
func (c *Counters) TradeSuccess() { c.successTrades.Add(1) }

// TradeFailure records one failed trade publish/persist.
func (c *Counters) TradeFailure() { c.failedTrades.Add(1) }

// KlineSuccess records one successfully published/persisted kline.
func (c *Counters) KlineSuccess() { c.successKlines.Add(1) }

// KlineFailure records one failed kline publish/persist.
func (c *Counters) KlineFailure() { c.failedKlines.Add(1) }

// Snapshot is the value of all four cells at one reporting tick.
type Snapshot struct {
	SuccessTrades int64
	SuccessKlines int64
	FailedTrades  int64
	FailedKlines  int64
}

// SwapZero atomically reads and resets every cell. Each cell is swapped
// individually, so increments racing the swap land in the next tick.
func (c *Counters) SwapZero() Snapshot {
	return Snapshot{
		SuccessTrades: c.successTrades.Swap(0),
		SuccessKlines: c.successKlines.Swap(0),
		FailedTrades:  c.failedTrades.Swap(0),
		FailedKlines:  c.failedKlines.Swap(0),
	}
}

// Reporter logs one line per tick for a named pipeline stage, then resets the
// stage's counters.
type Reporter struct {
	stage    string
	counters *Counters
	interval time.Duration
}

// NewReporter creates a reporter for the given stage name ("ingestion",
// "consumption") ticking at the given interval.
func NewReporter(stage string, counters *Counters, interval time.Duration) *Reporter {
	return &Reporter{stage: stage, counters: counters, interval: interval}
}

// Run ticks until the context is cancelled. It blocks and is intended to be
// started in its own goroutine by the binary's main.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := r.counters.SwapZero()
			log.Info().
				Str("stage", r.stage).
				Int64("successTrades", snap.SuccessTrades).
				Int64("successKlines", snap.SuccessKlines).
				Int64("failedTrades", snap.FailedTrades).
				Int64("failedKlines", snap.FailedKlines).
				Msg("tick stats")
		}
	}
}
