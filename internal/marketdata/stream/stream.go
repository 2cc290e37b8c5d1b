// Package stream consumes a WebSocket quote feed (for example cmd/quotesim)
// and hands each quote to the pipeline.
//
// The expected JSON message on the wire is model.Quote:
//
//	{"symbol":"AAPL","price":185.92,"percent_change":1.25,"volume":4200000,"ts":"..."}
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"aurelius-engine/internal/model"
)

// Config holds configuration for the quote stream.
type Config struct {
	// URL of the quote WebSocket server, e.g. "ws://localhost:9001/ws".
	URL string

	// ReconnectDelay is the initial delay before reconnection attempts.
	// Defaults to 2 seconds if zero.
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the exponential backoff. Defaults to 30s.
	MaxReconnectDelay time.Duration
}

func (c *Config) defaults() {
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
}

// Client reads quotes from a WebSocket feed and passes them to a handler.
type Client struct {
	cfg Config
	log *slog.Logger

	// OnReconnect is called each time a reconnection happens.
	OnReconnect func()
}

// New creates a Client. Returns an error for an unparseable or non-ws URL.
func New(cfg Config) (*Client, error) {
	cfg.defaults()
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("stream: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("stream: unsupported scheme %q", u.Scheme)
	}
	return &Client{cfg: cfg, log: slog.Default().With("component", "stream")}, nil
}

// Run connects and calls handle for each valid quote. It reconnects with
// exponential backoff and blocks until ctx is cancelled. Handler errors are
// logged and the quote is dropped.
func (c *Client) Run(ctx context.Context, handle func(model.Quote) error) error {
	delay := c.cfg.ReconnectDelay

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		connected, err := c.runOnce(ctx, handle)
		if err == nil {
			return nil
		}
		if connected {
			delay = c.cfg.ReconnectDelay
		}

		c.log.Warn("disconnected, reconnecting", "error", err, "delay", delay)
		if c.OnReconnect != nil {
			c.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		delay *= 2
		if delay > c.cfg.MaxReconnectDelay {
			delay = c.cfg.MaxReconnectDelay
		}
	}
}

// runOnce makes a single connection and reads until disconnect or ctx
// cancel. A nil error means ctx was cancelled.
func (c *Client) runOnce(ctx context.Context, handle func(model.Quote) error) (bool, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	c.log.Info("connected", "url", c.cfg.URL)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return true, nil
			}
			return true, err
		}

		var q model.Quote
		if err := json.Unmarshal(raw, &q); err != nil {
			c.log.Warn("parse error", "error", err, "raw", string(raw))
			continue
		}
		if q.Symbol == "" || !(q.Price > 0) {
			c.log.Debug("skipping invalid quote", "symbol", q.Symbol, "price", q.Price)
			continue
		}
		if err := handle(q); err != nil {
			c.log.Debug("quote rejected", "symbol", q.Symbol, "error", err)
		}
	}
}
