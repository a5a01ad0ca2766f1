// Package websocket provides the WebSocket client used to consume raw market
// data frames from the exchange.
//
// The client manages the full connection lifecycle: dialing, subscription
// messages, a read loop delivering raw frames to a handler, a keepalive ping
// loop, and a once-guarded graceful shutdown. Frame interpretation is the
// handler's job; the client never looks inside a message.
package websocket

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	// defaultPingPeriod is the interval between keepalive pings.
	defaultPingPeriod = 15 * time.Second

	// defaultSendTimeout bounds every write on the connection.
	defaultSendTimeout = 5 * time.Second

	// defaultReadLimit caps incoming message size.
	defaultReadLimit = 1 << 20 // 1MB

	// defaultHandshakeTimeout bounds the opening handshake.
	defaultHandshakeTimeout = 10 * time.Second
)

// Config defines settings for the WebSocket client.
type Config struct {
	// Endpoint is the WebSocket URL to connect to. Required.
	Endpoint string

	// Handler is called with every raw incoming frame. Required. A handler
	// error is logged but never terminates the connection.
	Handler func(raw []byte) error

	// TLSInsecureSkip disables TLS certificate verification.
	TLSInsecureSkip bool

	// PingPeriod is the interval between keepalive pings.
	PingPeriod time.Duration

	// SendTimeout bounds write operations.
	SendTimeout time.Duration

	// SubscriptionMessages are sent immediately after connecting.
	SubscriptionMessages [][]byte
}

// Client wraps a websocket.Conn with lifecycle and frame delivery logic.
type Client struct {
	conn       atomic.Value // stores *websocket.Conn
	disconnect chan struct{}
	cfg        *Config
	ctx        context.Context
	cancel     context.CancelFunc
	once       sync.Once
}

// NewClient dials the endpoint, sends the subscription messages, and starts
// the read and ping loops.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("endpoint URL is required")
	}
	if cfg.Handler == nil {
		return nil, errors.New("frame handler is required")
	}
	if cfg.PingPeriod == 0 {
		cfg.PingPeriod = defaultPingPeriod
	}
	if cfg.SendTimeout == 0 {
		cfg.SendTimeout = defaultSendTimeout
	}

	ctx, cancel := context.WithCancel(ctx)
	c := &Client{
		cfg:        &cfg,
		ctx:        ctx,
		cancel:     cancel,
		disconnect: make(chan struct{}),
	}

	if err := c.run(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start client: %w", err)
	}
	return c, nil
}

// Disconnected is closed when the connection is lost or shut down.
func (c *Client) Disconnected() <-chan struct{} {
	return c.disconnect
}

// run establishes the connection and starts the background goroutines.
func (c *Client) run() error {
	logger := log.With().Str("endpoint", c.cfg.Endpoint).Logger()
	logger.Info().Msg("starting WebSocket client")

	conn, err := c.dial()
	if err != nil {
		return fmt.Errorf("initial dial failed: %w", err)
	}
	c.conn.Store(conn)

	conn.SetReadLimit(defaultReadLimit)
	conn.SetPongHandler(func(string) error {
		// Each pong extends the read deadline.
		deadline := time.Now().Add(c.cfg.PingPeriod * 2)
		if err := conn.SetReadDeadline(deadline); err != nil {
			logger.Warn().Err(err).Msg("failed to set read deadline in pong handler")
		}
		return nil
	})

	for _, msg := range c.cfg.SubscriptionMessages {
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			if closeErr := conn.Close(); closeErr != nil {
				logger.Warn().Err(closeErr).Msg("error closing connection during cleanup")
			}
			return fmt.Errorf("subscription write failed: %w", err)
		}
	}

	go c.readLoop()
	go c.pingLoop()
	go func() {
		<-c.ctx.Done()
		c.Close()
	}()

	return nil
}

// dial opens the WebSocket connection with the configured TLS settings.
func (c *Client) dial() (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: defaultHandshakeTimeout,
	}
	if c.cfg.TLSInsecureSkip {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	conn, resp, err := dialer.DialContext(c.ctx, c.cfg.Endpoint, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// readLoop reads frames until the connection drops or the context is
// cancelled, delegating every frame to the handler. A panicking handler is
// recovered so one bad frame cannot take the client down.
func (c *Client) readLoop() {
	conn := c.conn.Load().(*websocket.Conn)
	logger := log.With().Str("endpoint", c.cfg.Endpoint).Str("component", "readLoop").Logger()

	defer func() {
		logger.Info().Msg("read loop exiting")
		close(c.disconnect)
	}()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
			_, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Info().Err(err).Msg("websocket closed normally")
				} else if websocket.IsUnexpectedCloseError(err) {
					logger.Warn().Err(err).Msg("unexpected websocket closure")
				} else {
					logger.Error().Err(err).Msg("read error")
				}
				return
			}

			func() {
				defer func() {
					if r := recover(); r != nil {
						logger.Error().Any("recover", r).Msg("panic in frame handler")
					}
				}()
				if err := c.cfg.Handler(data); err != nil {
					logger.Error().Err(err).Msg("error handling frame")
				}
			}()
		}
	}
}

// pingLoop sends periodic pings to keep the connection alive.
func (c *Client) pingLoop() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer ticker.Stop()

	logger := log.With().Str("endpoint", c.cfg.Endpoint).Str("component", "pingLoop").Logger()

	for {
		select {
		case <-ticker.C:
			connVal := c.conn.Load()
			if connVal == nil {
				continue
			}
			conn := connVal.(*websocket.Conn)

			if err := conn.SetWriteDeadline(time.Now().Add(c.cfg.SendTimeout)); err != nil {
				logger.Warn().Err(err).Msg("failed to set write deadline")
				continue
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.Warn().Err(err).Msg("ping error")
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// Close gracefully shuts down the client. Safe to call multiple times.
func (c *Client) Close() {
	c.once.Do(func() {
		logger := log.With().Str("endpoint", c.cfg.Endpoint).Logger()
		logger.Info().Msg("initiating graceful shutdown")

		c.cancel()

		if connVal := c.conn.Load(); connVal != nil {
			conn := connVal.(*websocket.Conn)
			if err := conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second),
			); err != nil {
				logger.Warn().Err(err).Msg("failed to send close frame")
			}
			if err := conn.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing websocket connection")
			}
		}
	})
}
