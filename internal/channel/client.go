// Pulse - Real-time Notification and Activity Pipeline Agent
// Copyright 2026 PropDesk Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/propdesk/pulse

// Package channel owns the persistent bidirectional connection to the ops
// console server.
//
// Exactly one Client exists per authenticated session. It dials the
// websocket endpoint, performs the identify handshake binding the
// connection to the session identity, and fans inbound events out to
// subscribers. Higher components never touch the transport: they observe
// Connected(), register handlers via Subscribe, and send through Emit.
//
// Key behaviors:
//   - Automatic reconnection with bounded exponential backoff, retried
//     indefinitely until Stop or context cancellation
//   - The identify handshake is repeated on every reconnect; without it the
//     server will not resume targeted delivery
//   - Transient disconnects are never surfaced as errors; consumers only
//     see the Connected flag flip
package channel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/propdesk/pulse/internal/logging"
	"github.com/propdesk/pulse/internal/metrics"
	"github.com/propdesk/pulse/internal/models"
)

// Config holds channel transport tuning.
type Config struct {
	// URL is the websocket endpoint (ws:// or wss://).
	URL string

	// HandshakeTimeout bounds each dial attempt.
	HandshakeTimeout time.Duration

	// PingInterval is the keepalive ping period.
	PingInterval time.Duration

	// ReconnectMin and ReconnectMax bound the exponential backoff between
	// reconnection attempts.
	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig(url string) Config {
	return Config{
		URL:              url,
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     30 * time.Second,
		ReconnectMin:     1 * time.Second,
		ReconnectMax:     32 * time.Second,
	}
}

// frame is the wire envelope for all channel traffic, both directions.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Client is the connection manager. Create with NewClient, run with Start,
// tear down with Stop or Disconnect.
type Client struct {
	cfg       Config
	sessionID string

	conn   *websocket.Conn
	connMu sync.RWMutex

	subs *subscriptionTable

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewClient creates a connection manager bound to the given session
// identity. The identity is consumed read-only for the identify handshake.
func NewClient(cfg Config, sessionID string) *Client {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.ReconnectMin <= 0 {
		cfg.ReconnectMin = time.Second
	}
	if cfg.ReconnectMax < cfg.ReconnectMin {
		cfg.ReconnectMax = 32 * time.Second
	}
	return &Client{
		cfg:       cfg,
		sessionID: sessionID,
		subs:      newSubscriptionTable(),
	}
}

// Start dials the server and begins the read and keepalive loops.
// The initial dial failure is not fatal: the read loop keeps retrying with
// backoff, so Start only errors when already running.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = true
	c.stopChan = make(chan struct{})
	c.mu.Unlock()

	if err := c.connect(ctx); err != nil {
		logging.Warn().Err(err).Msg("initial channel dial failed, will retry")
	}

	c.wg.Add(2)
	go c.readLoop(ctx)
	go c.pingLoop(ctx)

	return nil
}

// Stop shuts the client down and waits for its goroutines. Idempotent.
func (c *Client) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	close(c.stopChan)
	c.mu.Unlock()

	c.closeConnection()
	c.wg.Wait()
	logging.Info().Msg("channel client stopped")
}

// Disconnect tears down the transport and clears all subscriptions.
// Safe to call when already disconnected, and safe to call repeatedly.
func (c *Client) Disconnect() {
	c.Stop()
	c.subs.clear()
}

// Connected reports whether the transport is currently established.
// Consumers use this to gate subscription setup: subscribing while
// disconnected is legal but events sent before reconnect are lost.
func (c *Client) Connected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.conn != nil
}

// Subscribe registers fn for the named event and returns a disposable
// handle. Handlers for one event run in registration order; each handler
// receives the raw JSON payload of the frame.
func (c *Client) Subscribe(event string, fn func(json.RawMessage)) *Subscription {
	return c.subs.add(event, fn)
}

// SubscribeNotification is a convenience wrapper decoding the payload into
// a NotificationEvent before invoking fn. Malformed payloads are dropped.
func (c *Client) SubscribeNotification(event string, fn func(models.NotificationEvent)) *Subscription {
	return c.Subscribe(event, func(raw json.RawMessage) {
		var ev models.NotificationEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			logging.Warn().Str("event", event).Err(err).Msg("dropping malformed notification payload")
			return
		}
		if ev.Type == "" {
			ev.Type = event
		}
		fn(ev)
	})
}

// Emit sends an event to the server, fire-and-forget. No acknowledgment is
// awaited; when disconnected the event is silently dropped.
func (c *Client) Emit(event string, payload interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		logging.Warn().Str("event", event).Err(err).Msg("emit payload marshal failed")
		return
	}

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		logging.Debug().Str("event", event).Msg("emit while disconnected, dropping")
		return
	}

	if err := c.conn.WriteJSON(frame{Event: event, Data: raw}); err != nil {
		logging.Warn().Str("event", event).Err(err).Msg("emit write failed")
		return
	}
	metrics.ChannelEventsEmitted.WithLabelValues(event).Inc()
}

// connect dials the server and performs the identify handshake.
func (c *Client) connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn != nil {
		return nil
	}

	dialer := websocket.Dialer{
		HandshakeTimeout:  c.cfg.HandshakeTimeout,
		EnableCompression: true,
	}

	conn, resp, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return fmt.Errorf("channel dial failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("channel dial: %w", err)
	}

	c.conn = conn
	metrics.ChannelConnected.Set(1)
	logging.Info().Str("url", c.cfg.URL).Msg("channel connected")

	// Identify handshake, fire-and-forget. Mandatory on every (re)connect:
	// the server routes targeted push by session identity.
	c.identifyLocked()

	return nil
}

// identifyLocked emits the identify frame. Caller holds connMu.
func (c *Client) identifyLocked() {
	raw, err := json.Marshal(c.sessionID)
	if err != nil {
		logging.Error().Err(err).Msg("identify payload marshal failed")
		return
	}
	if err := c.conn.WriteJSON(frame{Event: models.EventIdentify, Data: raw}); err != nil {
		logging.Warn().Err(err).Msg("identify emit failed")
		return
	}
	metrics.ChannelEventsEmitted.WithLabelValues(models.EventIdentify).Inc()
	logging.Debug().Msg("identify handshake sent")
}

// readLoop reads frames and drives reconnection. Runs until Stop or
// context cancellation.
func (c *Client) readLoop(ctx context.Context) {
	defer c.wg.Done()

	delay := c.cfg.ReconnectMin

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopChan:
			return
		default:
		}

		c.connMu.RLock()
		conn := c.conn
		c.connMu.RUnlock()

		if conn == nil {
			// Connection lost: back off, then redial and re-identify.
			logging.Info().Dur("delay", delay).Msg("channel reconnecting")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			case <-c.stopChan:
				return
			}

			delay *= 2
			if delay > c.cfg.ReconnectMax {
				delay = c.cfg.ReconnectMax
			}

			metrics.ChannelReconnects.Inc()
			if err := c.connect(ctx); err != nil {
				logging.Warn().Err(err).Msg("channel reconnect failed")
				continue
			}
			delay = c.cfg.ReconnectMin
			continue
		}

		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			if ctx.Err() != nil {
				return
			}
			select {
			case <-c.stopChan:
				return
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.Info().Msg("channel closed by server")
			} else {
				logging.Warn().Err(err).Msg("channel read error")
			}
			c.closeConnection()
			continue
		}

		delay = c.cfg.ReconnectMin
		c.dispatch(f)
	}
}

// dispatch routes one inbound frame to its subscribers, in registration
// order, synchronously. Within this consumer events are therefore processed
// in arrival order.
func (c *Client) dispatch(f frame) {
	if f.Event == "" {
		return
	}
	metrics.ChannelEventsReceived.WithLabelValues(f.Event).Inc()
	for _, fn := range c.subs.handlers(f.Event) {
		fn(f.Data)
	}
}

// pingLoop sends keepalive pings so dead connections are detected.
func (c *Client) pingLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopChan:
			return
		case <-ticker.C:
			c.connMu.RLock()
			conn := c.conn
			c.connMu.RUnlock()
			if conn == nil {
				continue
			}
			deadline := time.Now().Add(10 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, deadline); err != nil {
				logging.Warn().Err(err).Msg("channel ping failed")
				c.closeConnection()
			}
		}
	}
}

// closeConnection closes the transport. Safe for concurrent calls.
func (c *Client) closeConnection() {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return
	}

	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	if err := c.conn.Close(); err != nil {
		logging.Debug().Err(err).Msg("channel close")
	}
	c.conn = nil
	metrics.ChannelConnected.Set(0)
}
