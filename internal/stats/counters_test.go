package stats

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// Test_Counters_SwapZero verifies that a snapshot reads the accumulated values
// and resets every cell to zero.
func Test_Counters_SwapZero(t *testing.T) {
	c := NewCounters()

	c.TradeSuccess()
	c.TradeSuccess()
	c.TradeFailure()
	c.KlineSuccess()

	snap := c.SwapZero()
	assert.Equal(t, int64(2), snap.SuccessTrades)
	assert.Equal(t, int64(1), snap.FailedTrades)
	assert.Equal(t, int64(1), snap.SuccessKlines)
	assert.Equal(t, int64(0), snap.FailedKlines)

	// Second snapshot observes the reset.
	snap = c.SwapZero()
	assert.Equal(t, Snapshot{}, snap)
}

// Test_Counters_ConcurrentIncrements verifies no increments are lost under
// concurrent completions, regardless of how they interleave with snapshots.
func Test_Counters_ConcurrentIncrements(t *testing.T) {
	c := NewCounters()

	const goroutines = 8
	const perGoroutine = 1000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				c.TradeSuccess()
				c.KlineFailure()
			}
		}()
	}
	wg.Wait()

	snap := c.SwapZero()
	assert.Equal(t, int64(goroutines*perGoroutine), snap.SuccessTrades)
	assert.Equal(t, int64(goroutines*perGoroutine), snap.FailedKlines)
}
