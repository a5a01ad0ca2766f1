// Package pipeline implements the ingestion fan-out pipeline: normalization of
// raw exchange frames into canonical events, extrema tracking, and the
// dual-sink publish to the durable queue and the sliding-window cache.
package pipeline

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/StockFiew/crypto-pulse-minions/internal/model"
)

// rawTrade is the exchange wire format of a trade event. Numeric prices and
// quantities arrive as strings to preserve precision in transit; validation
// happens via struct tags before any parsing.
type rawTrade struct {
	EventType     string `json:"e" validate:"required"`
	EventTime     int64  `json:"E" validate:"required,gt=0"`
	Symbol        string `json:"s" validate:"required"`
	TradeID       int64  `json:"t"`
	Price         string `json:"p" validate:"required,numeric"`
	Quantity      string `json:"q" validate:"required,numeric"`
	BuyerOrderID  int64  `json:"b"`
	SellerOrderID int64  `json:"a"`
	TradeTime     int64  `json:"T"`
	IsBuyerMaker  bool   `json:"m"`
}

// rawKline is the exchange wire format of a kline event: an outer event
// wrapper around the kline window payload.
type rawKline struct {
	EventType string       `json:"e" validate:"required"`
	EventTime int64        `json:"E" validate:"required,gt=0"`
	Symbol    string       `json:"s" validate:"required"`
	Kline     klinePayload `json:"k"`
}

type klinePayload struct {
	Interval    string `json:"i" validate:"required"`
	Open        string `json:"o" validate:"required,numeric"`
	Close       string `json:"c" validate:"required,numeric"`
	High        string `json:"h" validate:"required,numeric"`
	Low         string `json:"l" validate:"required,numeric"`
	Volume      string `json:"v" validate:"omitempty,numeric"`
	TradeCount  int64  `json:"n"`
	IsFinal     bool   `json:"x"`
	QuoteVolume string `json:"q" validate:"omitempty,numeric"`
	BaseVolume  string `json:"V" validate:"omitempty,numeric"`
}

// Normalizer converts raw exchange payloads into immutable canonical events.
type Normalizer struct {
	exchange string
	validate *validator.Validate
	now      func() time.Time
}

// NewNormalizer creates a normalizer stamping events with the given exchange
// name.
func NewNormalizer(exchange string) *Normalizer {
	return &Normalizer{
		exchange: exchange,
		validate: validator.New(),
		now:      time.Now,
	}
}

// Trade parses and validates a raw trade payload into a canonical TradeEvent.
func (n *Normalizer) Trade(data []byte) (model.TradeEvent, error) {
	var t rawTrade
	if err := json.Unmarshal(data, &t); err != nil {
		return model.TradeEvent{}, fmt.Errorf("invalid trade payload JSON: %w", err)
	}
	if err := n.validate.Struct(&t); err != nil {
		return model.TradeEvent{}, fmt.Errorf("trade validation failed: %w", err)
	}

	price, err := parsePrice(t.Price)
	if err != nil {
		return model.TradeEvent{}, fmt.Errorf("invalid trade price: %w", err)
	}
	quantity, err := parsePrice(t.Quantity)
	if err != nil {
		return model.TradeEvent{}, fmt.Errorf("invalid trade quantity: %w", err)
	}

	return model.TradeEvent{
		Exchange:      n.exchange,
		EventType:     model.KindTrade,
		EventTime:     t.EventTime,
		Symbol:        t.Symbol,
		TradeID:       t.TradeID,
		Price:         price,
		Quantity:      quantity,
		BuyerOrderID:  t.BuyerOrderID,
		SellerOrderID: t.SellerOrderID,
		TradeTime:     t.TradeTime,
		IsBuyerMaker:  t.IsBuyerMaker,
		Timestamp:     n.now().UnixMilli(),
	}, nil
}

// Kline parses and validates a raw kline payload into a canonical KlineEvent.
func (n *Normalizer) Kline(data []byte) (model.KlineEvent, error) {
	var k rawKline
	if err := json.Unmarshal(data, &k); err != nil {
		return model.KlineEvent{}, fmt.Errorf("invalid kline payload JSON: %w", err)
	}
	if err := n.validate.Struct(&k); err != nil {
		return model.KlineEvent{}, fmt.Errorf("kline validation failed: %w", err)
	}

	var (
		ev  = model.KlineEvent{
			Exchange:   n.exchange,
			EventType:  model.KindKline,
			EventTime:  k.EventTime,
			Symbol:     k.Symbol,
			Interval:   k.Kline.Interval,
			TradeCount: k.Kline.TradeCount,
			IsFinal:    k.Kline.IsFinal,
			Timestamp:  n.now().UnixMilli(),
		}
		err error
	)

	if ev.Open, err = parsePrice(k.Kline.Open); err != nil {
		return model.KlineEvent{}, fmt.Errorf("invalid kline open: %w", err)
	}
	if ev.High, err = parsePrice(k.Kline.High); err != nil {
		return model.KlineEvent{}, fmt.Errorf("invalid kline high: %w", err)
	}
	if ev.Low, err = parsePrice(k.Kline.Low); err != nil {
		return model.KlineEvent{}, fmt.Errorf("invalid kline low: %w", err)
	}
	if ev.Close, err = parsePrice(k.Kline.Close); err != nil {
		return model.KlineEvent{}, fmt.Errorf("invalid kline close: %w", err)
	}
	if ev.Volume, err = parseOptional(k.Kline.Volume); err != nil {
		return model.KlineEvent{}, fmt.Errorf("invalid kline volume: %w", err)
	}
	if ev.QuoteVolume, err = parseOptional(k.Kline.QuoteVolume); err != nil {
		return model.KlineEvent{}, fmt.Errorf("invalid kline quote volume: %w", err)
	}
	if ev.BaseVolume, err = parseOptional(k.Kline.BaseVolume); err != nil {
		return model.KlineEvent{}, fmt.Errorf("invalid kline base volume: %w", err)
	}

	return ev, nil
}

// parsePrice parses an exchange price/quantity string through decimal to
// reject malformed numerics before the float64 conversion.
func parsePrice(s string) (float64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	return d.InexactFloat64(), nil
}

// parseOptional treats an absent string field as zero.
func parseOptional(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return parsePrice(s)
}
