package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/StockFiew/crypto-pulse-minions/internal/extrema"
	"github.com/StockFiew/crypto-pulse-minions/internal/model"
	"github.com/StockFiew/crypto-pulse-minions/internal/stats"
)

// MockQueue is a mock implementation of queue.Queue for publisher testing.
type MockQueue struct {
	mock.Mock
}

func (m *MockQueue) Enqueue(ctx context.Context, queue string, payload []byte, priority int, delay time.Duration) error {
	args := m.Called(ctx, queue, payload, priority, delay)
	return args.Error(0)
}

func (m *MockQueue) Dequeue(ctx context.Context, queue string) ([]byte, error) {
	args := m.Called(ctx, queue)
	if b := args.Get(0); b != nil {
		return b.([]byte), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockStore is a mock implementation of cache.Store for publisher testing.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) AppendRanked(ctx context.Context, channel string, score int64, payload []byte, pruneBelow int64) error {
	args := m.Called(ctx, channel, score, payload, pruneBelow)
	return args.Error(0)
}

func (m *MockStore) SetValue(ctx context.Context, key string, payload []byte) error {
	args := m.Called(ctx, key, payload)
	return args.Error(0)
}

// newTestPublisher builds a publisher over mocks with a two-interval tracker
// (one bounded, plus the unbounded window).
func newTestPublisher(q *MockQueue, s *MockStore) (*Publisher, *stats.Counters) {
	counters := stats.NewCounters()
	pub := NewPublisher(PublisherConfig{
		Queue:     q,
		Store:     s,
		Tracker:   extrema.NewTracker([]extrema.Interval{60, extrema.Infinite}),
		Counters:  counters,
		QueueName: "market-events",
		Exchange:  "binance",
	})
	return pub, counters
}

func testTrade(symbol string, eventTime int64, price float64) model.TradeEvent {
	return model.TradeEvent{
		Exchange:  "binance",
		EventType: model.KindTrade,
		EventTime: eventTime,
		Symbol:    symbol,
		TradeID:   1,
		Price:     price,
		Quantity:  2,
		TradeTime: eventTime,
		Timestamp: eventTime,
	}
}

// Test_Publisher_TradePath verifies the full trade path: immediate enqueue,
// cache append, one snapshot pair per sampled interval, and exactly one
// duplicate delayed enqueue.
func Test_Publisher_TradePath(t *testing.T) {
	q := &MockQueue{}
	s := &MockStore{}
	pub, counters := newTestPublisher(q, s)

	q.On("Enqueue", mock.Anything, "market-events", mock.Anything, 0, time.Duration(0)).Return(nil).Once()
	q.On("Enqueue", mock.Anything, "market-events", mock.Anything, 0, 300*time.Millisecond).Return(nil).Once()
	s.On("AppendRanked", mock.Anything, "trade:BTCUSDT:binance", int64(60000), mock.Anything, mock.Anything).Return(nil).Once()
	s.On("SetValue", mock.Anything, "high:60:BTCUSDT:binance", []byte("100.5")).Return(nil).Once()
	s.On("SetValue", mock.Anything, "low:60:BTCUSDT:binance", []byte("100.5")).Return(nil).Once()
	s.On("SetValue", mock.Anything, "high:inf:BTCUSDT:binance", []byte("100.5")).Return(nil).Once()
	s.On("SetValue", mock.Anything, "low:inf:BTCUSDT:binance", []byte("100.5")).Return(nil).Once()

	// 60000 ms aligns with the 60s interval, so both intervals sample.
	pub.PublishTrade(context.Background(), testTrade("BTCUSDT", 60000, 100.5))

	q.AssertExpectations(t)
	s.AssertExpectations(t)

	snap := counters.SwapZero()
	assert.Equal(t, int64(1), snap.SuccessTrades)
	assert.Equal(t, int64(0), snap.FailedTrades)
}

// Test_Publisher_TradePath_QueueFailureIndependence verifies a queue enqueue
// failure is counted and logged but never suppresses the cache write or the
// rest of the path — the two sinks are independent.
func Test_Publisher_TradePath_QueueFailureIndependence(t *testing.T) {
	q := &MockQueue{}
	s := &MockStore{}
	pub, counters := newTestPublisher(q, s)

	q.On("Enqueue", mock.Anything, "market-events", mock.Anything, 0, time.Duration(0)).
		Return(errors.New("broker unavailable")).Once()
	q.On("Enqueue", mock.Anything, "market-events", mock.Anything, 0, 300*time.Millisecond).Return(nil).Once()
	s.On("AppendRanked", mock.Anything, "trade:BTCUSDT:binance", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	s.On("SetValue", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	// Unaligned timestamp: only the unbounded interval samples.
	pub.PublishTrade(context.Background(), testTrade("BTCUSDT", 60001, 100.5))

	q.AssertExpectations(t)
	s.AssertNumberOfCalls(t, "AppendRanked", 1)
	s.AssertNumberOfCalls(t, "SetValue", 2)

	snap := counters.SwapZero()
	assert.Equal(t, int64(1), snap.FailedTrades)
	assert.Equal(t, int64(0), snap.SuccessTrades)
}

// Test_Publisher_TradePath_CacheFailureCascade verifies a cache append failure
// is fatal to the publish attempt: no extrema snapshots are written and the
// duplicate delayed enqueue is skipped.
func Test_Publisher_TradePath_CacheFailureCascade(t *testing.T) {
	q := &MockQueue{}
	s := &MockStore{}
	pub, counters := newTestPublisher(q, s)

	q.On("Enqueue", mock.Anything, "market-events", mock.Anything, 0, time.Duration(0)).Return(nil).Once()
	s.On("AppendRanked", mock.Anything, "trade:BTCUSDT:binance", mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("cache unavailable")).Once()

	pub.PublishTrade(context.Background(), testTrade("BTCUSDT", 60000, 100.5))

	q.AssertExpectations(t)
	s.AssertExpectations(t)
	s.AssertNotCalled(t, "SetValue", mock.Anything, mock.Anything, mock.Anything)
	q.AssertNumberOfCalls(t, "Enqueue", 1)

	// The enqueue itself succeeded before the cache failure.
	snap := counters.SwapZero()
	assert.Equal(t, int64(1), snap.SuccessTrades)
}

// Test_Publisher_KlinePath verifies the kline path: delayed enqueue, cache
// append on the interval channel, and widen-only extrema for the kline's own
// interval.
func Test_Publisher_KlinePath(t *testing.T) {
	q := &MockQueue{}
	s := &MockStore{}
	counters := stats.NewCounters()
	tracker := extrema.NewTracker(nil)
	pub := NewPublisher(PublisherConfig{
		Queue:     q,
		Store:     s,
		Tracker:   tracker,
		Counters:  counters,
		QueueName: "market-events",
		Exchange:  "binance",
	})

	q.On("Enqueue", mock.Anything, "market-events", mock.Anything, 0, 300*time.Millisecond).Return(nil).Twice()
	s.On("AppendRanked", mock.Anything, "kline:BTCUSDT:binance:1m", mock.Anything, mock.Anything, mock.Anything).Return(nil).Twice()

	kline := model.KlineEvent{
		Exchange:  "binance",
		EventType: model.KindKline,
		EventTime: 60000,
		Symbol:    "BTCUSDT",
		Interval:  "1m",
		Open:      100, High: 101, Low: 98, Close: 99,
	}
	pub.PublishKline(context.Background(), kline)

	// A later kline with a narrower range must not narrow the extrema.
	kline.High, kline.Low = 99, 98.5
	pub.PublishKline(context.Background(), kline)

	q.AssertExpectations(t)
	s.AssertExpectations(t)

	state, ok := tracker.Peek("BTCUSDT", 60)
	require.True(t, ok)
	assert.Equal(t, 101.0, state.High)
	assert.Equal(t, 98.0, state.Low)

	snap := counters.SwapZero()
	assert.Equal(t, int64(2), snap.SuccessKlines)
}

// Test_Publisher_KlinePath_EnqueueFailure verifies a failed kline enqueue
// increments the kline fail counter but still attempts the cache append.
func Test_Publisher_KlinePath_EnqueueFailure(t *testing.T) {
	q := &MockQueue{}
	s := &MockStore{}
	pub, counters := newTestPublisher(q, s)

	q.On("Enqueue", mock.Anything, "market-events", mock.Anything, 0, 300*time.Millisecond).
		Return(errors.New("broker unavailable")).Once()
	s.On("AppendRanked", mock.Anything, "kline:BTCUSDT:binance:1m", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	pub.PublishKline(context.Background(), model.KlineEvent{
		EventTime: 1000, Symbol: "BTCUSDT", Interval: "1m", High: 101, Low: 98,
	})

	q.AssertExpectations(t)
	s.AssertExpectations(t)

	snap := counters.SwapZero()
	assert.Equal(t, int64(1), snap.FailedKlines)
	assert.Equal(t, int64(0), snap.SuccessKlines)
}

// Test_Publisher_EnvelopeRoundTrip verifies the queue envelope carries the
// canonical event so consumers can perform the two-level decode.
func Test_Publisher_EnvelopeRoundTrip(t *testing.T) {
	payload, env, err := encode(model.KindTrade, testTrade("BTCUSDT", 1000, 100.5))
	require.NoError(t, err)

	var outer model.Envelope
	require.NoError(t, json.Unmarshal(env, &outer))
	assert.Equal(t, model.KindTrade, outer.Kind)
	assert.Equal(t, json.RawMessage(payload), outer.Payload)

	var ev model.TradeEvent
	require.NoError(t, json.Unmarshal(outer.Payload, &ev))
	assert.Equal(t, "BTCUSDT", ev.Symbol)
	assert.Equal(t, 100.5, ev.Price)
	assert.Equal(t, 2.0, ev.Quantity)
}
