// Package model defines the canonical event types for the market data pipeline.
//
// Canonical events are the normalized trade and kline (candlestick) records that
// flow through every stage of the system: the ingestion dispatcher constructs
// them from raw exchange frames, the dual-sink publisher serializes them onto
// the durable queue and the sliding-window cache, and the consumer worker pool
// decodes them back for persistence into the time-series store.
//
// All events are immutable once constructed: no component mutates a canonical
// event after normalization, which makes them safe to share across goroutines
// without synchronization.
package model

import json "github.com/goccy/go-json"

// Event kind tags carried in queue envelopes and the EventType field.
const (
	KindTrade = "trade"
	KindKline = "kline"
)

// TradeEvent is the canonical, exchange-independent representation of a single
// executed trade.
//
// Times are epoch milliseconds. Price and Quantity are float64 by contract with
// the downstream time-series store; precision-sensitive parsing from the
// exchange's string fields happens once, during normalization.
type TradeEvent struct {
	Exchange      string  `json:"exchange"`      // Source exchange name (e.g., "binance")
	EventType     string  `json:"eventType"`     // Always KindTrade
	EventTime     int64   `json:"eventTime"`     // Exchange event time (epoch ms)
	Symbol        string  `json:"symbol"`        // Trading pair symbol (e.g., "BTCUSDT")
	TradeID       int64   `json:"tradeId"`       // Exchange-assigned trade identifier
	Price         float64 `json:"price"`         // Trade execution price
	Quantity      float64 `json:"quantity"`      // Traded base asset quantity
	BuyerOrderID  int64   `json:"buyerOrderId"`  // Buyer order identifier
	SellerOrderID int64   `json:"sellerOrderId"` // Seller order identifier
	TradeTime     int64   `json:"tradeTime"`     // Trade execution time (epoch ms)
	IsBuyerMaker  bool    `json:"isBuyerMaker"`  // True when the buyer was the market maker
	Timestamp     int64   `json:"timestamp"`     // Normalization time (epoch ms)
}

// KlineEvent is the canonical, exchange-independent representation of a
// candlestick update for one interval of one symbol.
//
// A kline event may arrive many times for the same window while the window is
// still open; IsFinal marks the closing update.
type KlineEvent struct {
	Exchange    string  `json:"exchange"`    // Source exchange name
	EventType   string  `json:"eventType"`   // Always KindKline
	EventTime   int64   `json:"eventTime"`   // Exchange event time (epoch ms)
	Symbol      string  `json:"symbol"`      // Trading pair symbol
	Interval    string  `json:"interval"`    // Kline interval label (e.g., "1m")
	Open        float64 `json:"open"`        // Open price of the window
	High        float64 `json:"high"`        // Highest price seen in the window
	Low         float64 `json:"low"`         // Lowest price seen in the window
	Close       float64 `json:"close"`       // Latest/close price of the window
	Volume      float64 `json:"volume"`      // Base asset volume
	TradeCount  int64   `json:"tradeCount"`  // Number of trades in the window
	IsFinal     bool    `json:"isFinal"`     // True when the window has closed
	QuoteVolume float64 `json:"quoteVolume"` // Quote asset volume
	BaseVolume  float64 `json:"baseVolume"`  // Taker buy base asset volume
	Timestamp   int64   `json:"timestamp"`   // Normalization time (epoch ms)
}

// Envelope is the outer wrapper for messages on the durable queue.
//
// The Kind tag lets consumers dispatch without decoding the embedded canonical
// event first; Payload holds the serialized TradeEvent or KlineEvent. An empty
// Payload is valid and treated as a no-op by consumers.
type Envelope struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}
