// Package exchange provides the exchange feed that sources raw market data
// frames for the ingestion pipeline.
//
// The Binance feed subscribes to combined trade and kline streams over a
// single WebSocket connection and forwards every raw frame, unparsed, to the
// configured handler — frame interpretation belongs to the ingestion
// dispatcher, keeping the feed a thin transport concern.
package exchange

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/StockFiew/crypto-pulse-minions/internal/utils"
	"github.com/StockFiew/crypto-pulse-minions/internal/websocket"
)

// defaultBinanceConfig provides sensible defaults for Binance connections.
var defaultBinanceConfig = FeedConfig{
	BaseURL:    "wss://stream.binance.com:9443",
	MaxSymbols: 50,
}

// FeedConfig provides connection parameters for the feed.
type FeedConfig struct {
	// BaseURL is the WebSocket endpoint of the exchange API.
	BaseURL string

	// MaxSymbols caps how many trading pairs one connection subscribes to.
	MaxSymbols int
}

// BinanceFeed streams raw combined-stream frames from Binance.
type BinanceFeed struct {
	config FeedConfig
}

// NewBinanceFeed creates a feed, falling back to defaults for any unset
// configuration field.
func NewBinanceFeed(cfg *FeedConfig) *BinanceFeed {
	if cfg == nil {
		cfg = &defaultBinanceConfig
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBinanceConfig.BaseURL
	}
	if cfg.MaxSymbols <= 0 {
		cfg.MaxSymbols = defaultBinanceConfig.MaxSymbols
	}
	return &BinanceFeed{config: *cfg}
}

// Subscribe connects to the combined stream for the given symbols and kline
// intervals and delivers every raw frame to the handler. The returned client
// exposes the connection lifecycle; the subscription lives until the context
// is cancelled or the connection drops.
func (f *BinanceFeed) Subscribe(ctx context.Context, symbols, klineIntervals []string, handler func(raw []byte) error) (*websocket.Client, error) {
	if err := utils.ValidatePairs(symbols, f.config.MaxSymbols); err != nil {
		return nil, err
	}

	streamURL := f.buildStreamURL(symbols, klineIntervals)
	client, err := websocket.NewClient(ctx, websocket.Config{
		Endpoint: streamURL,
		Handler:  handler,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to create Binance WebSocket client")
		return nil, err
	}

	return client, nil
}

// buildStreamURL constructs the combined-stream URL subscribing each symbol
// to its trade stream and one kline stream per configured interval:
// wss://.../stream?streams=btcusdt@trade/btcusdt@kline_1m/...
func (f *BinanceFeed) buildStreamURL(symbols, klineIntervals []string) string {
	streams := make([]string, 0, len(symbols)*(1+len(klineIntervals)))
	for _, s := range symbols {
		s = strings.ToLower(s)
		streams = append(streams, s+"@trade")
		for _, iv := range klineIntervals {
			streams = append(streams, fmt.Sprintf("%s@kline_%s", s, iv))
		}
	}
	return fmt.Sprintf("%s/stream?streams=%s", f.config.BaseURL, strings.Join(streams, "/"))
}
