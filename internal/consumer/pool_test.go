package consumer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StockFiew/crypto-pulse-minions/internal/model"
	"github.com/StockFiew/crypto-pulse-minions/internal/queue"
	"github.com/StockFiew/crypto-pulse-minions/internal/stats"
	"github.com/StockFiew/crypto-pulse-minions/internal/tsdb"
)

// recordingWriter is a tsdb.Writer that records written points and fails on
// demand.
type recordingWriter struct {
	mu      sync.Mutex
	points  []tsdb.Point
	failOn  func(p tsdb.Point) bool
	written chan struct{}
}

func newRecordingWriter() *recordingWriter {
	return &recordingWriter{written: make(chan struct{}, 1024)}
}

func (w *recordingWriter) Write(ctx context.Context, points []tsdb.Point) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, p := range points {
		if w.failOn != nil && w.failOn(p) {
			return errors.New("store rejected point")
		}
		w.points = append(w.points, p)
		w.written <- struct{}{}
	}
	return nil
}

func (w *recordingWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.points)
}

// blockingWriter blocks every write until released, to hold a message
// in flight across a Stop call.
type blockingWriter struct {
	entered chan struct{}
	release chan struct{}
	wrote   chan struct{}
}

func newBlockingWriter() *blockingWriter {
	return &blockingWriter{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
		wrote:   make(chan struct{}, 1),
	}
}

func (w *blockingWriter) Write(ctx context.Context, points []tsdb.Point) error {
	w.entered <- struct{}{}
	<-w.release
	w.wrote <- struct{}{}
	return nil
}

// enqueueTrade puts an enveloped canonical trade on the queue.
func enqueueTrade(t *testing.T, q *queue.MemoryQueue, name string, symbol string, price float64) {
	t.Helper()
	payload, err := json.Marshal(model.TradeEvent{
		Exchange: "binance", EventType: model.KindTrade,
		EventTime: 1000, Symbol: symbol, Price: price, Quantity: 1, TradeTime: 1000,
	})
	require.NoError(t, err)
	env, err := json.Marshal(model.Envelope{Kind: model.KindTrade, Payload: payload})
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(context.Background(), name, env, 0, 0))
}

// waitFor waits until the condition holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

// Test_Pool_CounterConservation verifies that for M consumed messages with k
// persistence failures, success+fail == M and fail == k after the pool
// drains.
func Test_Pool_CounterConservation(t *testing.T) {
	const total = 20
	const failures = 6

	q := queue.NewMemoryQueue(64)
	w := newRecordingWriter()
	w.failOn = func(p tsdb.Point) bool {
		// Points for the poisoned symbol fail persistently.
		return p.Tags["symbol"] == "FAILUSDT"
	}
	counters := stats.NewCounters()
	pool := NewPool(q, w, counters, "market-events")

	for i := 0; i < total-failures; i++ {
		enqueueTrade(t, q, "market-events", "BTCUSDT", 100+float64(i))
	}
	for i := 0; i < failures; i++ {
		enqueueTrade(t, q, "market-events", "FAILUSDT", 1)
	}

	require.NoError(t, pool.Start(context.Background(), 4))

	waitFor(t, func() bool {
		return q.Len("market-events") == 0 && w.count() == total-failures
	}, "pool did not drain the queue")
	require.NoError(t, pool.Stop())

	snap := counters.SwapZero()
	assert.Equal(t, int64(total), snap.SuccessTrades+snap.FailedTrades)
	assert.Equal(t, int64(failures), snap.FailedTrades)
}

// Test_Pool_KlinePersistence verifies kline messages are dispatched to the
// kline handler with the full point shape.
func Test_Pool_KlinePersistence(t *testing.T) {
	q := queue.NewMemoryQueue(16)
	w := newRecordingWriter()
	counters := stats.NewCounters()
	pool := NewPool(q, w, counters, "market-events")

	payload, err := json.Marshal(model.KlineEvent{
		Exchange: "binance", EventType: model.KindKline, EventTime: 60000,
		Symbol: "BTCUSDT", Interval: "1m",
		Open: 100, High: 101, Low: 99, Close: 100.5, Volume: 12, TradeCount: 7, IsFinal: true,
	})
	require.NoError(t, err)
	env, err := json.Marshal(model.Envelope{Kind: model.KindKline, Payload: payload})
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(context.Background(), "market-events", env, 0, 0))

	require.NoError(t, pool.Start(context.Background(), 1))
	waitFor(t, func() bool { return w.count() == 1 }, "kline was not persisted")
	require.NoError(t, pool.Stop())

	w.mu.Lock()
	point := w.points[0]
	w.mu.Unlock()

	assert.Equal(t, model.KindKline, point.Measurement)
	assert.Equal(t, "1m", point.Tags["interval"])
	assert.Equal(t, 101.0, point.Fields["high"])
	assert.Equal(t, true, point.Fields["isFinal"])
	assert.Equal(t, time.UnixMilli(60000), point.Time)

	snap := counters.SwapZero()
	assert.Equal(t, int64(1), snap.SuccessKlines)
}

// Test_Pool_DropsUnsupportedAndEmpty verifies unsupported kinds and empty
// payloads are dropped without counter effect.
func Test_Pool_DropsUnsupportedAndEmpty(t *testing.T) {
	q := queue.NewMemoryQueue(16)
	w := newRecordingWriter()
	counters := stats.NewCounters()
	pool := NewPool(q, w, counters, "market-events")

	ctx := context.Background()
	unsupported, err := json.Marshal(model.Envelope{Kind: "depth", Payload: []byte(`{"bids":[]}`)})
	require.NoError(t, err)
	empty, err := json.Marshal(model.Envelope{Kind: model.KindTrade})
	require.NoError(t, err)
	garbage := []byte(`not an envelope`)

	require.NoError(t, q.Enqueue(ctx, "market-events", unsupported, 0, 0))
	require.NoError(t, q.Enqueue(ctx, "market-events", empty, 0, 0))
	require.NoError(t, q.Enqueue(ctx, "market-events", garbage, 0, 0))
	enqueueTrade(t, q, "market-events", "BTCUSDT", 100.5)

	require.NoError(t, pool.Start(ctx, 1))
	waitFor(t, func() bool { return w.count() == 1 }, "trailing trade was not persisted")
	require.NoError(t, pool.Stop())

	snap := counters.SwapZero()
	assert.Equal(t, int64(1), snap.SuccessTrades)
	assert.Equal(t, int64(0), snap.FailedTrades)
	assert.Equal(t, int64(0), snap.SuccessKlines+snap.FailedKlines)
}

// Test_Pool_GracefulStop verifies that stopping the pool while a write is in
// flight lets the write complete and count before the worker reports stopped,
// and that nothing enqueued afterwards is handled.
func Test_Pool_GracefulStop(t *testing.T) {
	q := queue.NewMemoryQueue(16)
	w := newBlockingWriter()
	counters := stats.NewCounters()
	pool := NewPool(q, w, counters, "market-events")

	enqueueTrade(t, q, "market-events", "BTCUSDT", 100.5)
	require.NoError(t, pool.Start(context.Background(), 1))

	// Wait until the worker is inside the write.
	select {
	case <-w.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("worker never reached the writer")
	}

	stopped := make(chan error, 1)
	go func() { stopped <- pool.Stop() }()

	// Stop must wait for the in-flight write.
	select {
	case <-stopped:
		t.Fatal("pool stopped while a write was in flight")
	case <-time.After(100 * time.Millisecond):
	}

	close(w.release)
	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not stop after the write completed")
	}

	snap := counters.SwapZero()
	assert.Equal(t, int64(1), snap.SuccessTrades, "in-flight write must count before stop completes")

	// A message arriving after stop is not handled by stopped workers.
	enqueueTrade(t, q, "market-events", "BTCUSDT", 101.0)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, q.Len("market-events"))
	assert.Equal(t, stats.Snapshot{}, counters.SwapZero())
}

// Test_Pool_StartStop_Lifecycle verifies double-start and stop-before-start
// are rejected.
func Test_Pool_StartStop_Lifecycle(t *testing.T) {
	q := queue.NewMemoryQueue(4)
	pool := NewPool(q, newRecordingWriter(), stats.NewCounters(), "market-events")

	assert.Error(t, pool.Stop(), "stop before start must fail")
	assert.Error(t, pool.Start(context.Background(), 0), "zero workers must fail")

	require.NoError(t, pool.Start(context.Background(), 2))
	assert.Error(t, pool.Start(context.Background(), 2), "double start must fail")
	require.NoError(t, pool.Stop())
}
