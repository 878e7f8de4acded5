// Package channel maintains the persistent duplex connection to the
// interview backend. One channel carries both JSON control frames and raw
// binary audio frames. There is no reconnection protocol: any closure that
// was not requested by the client is terminal for the session.
package channel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jack-ferreri12/BasicInterviewer-v1/pkg/protocol"
)

const (
	handshakeTimeout = 10 * time.Second
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10
)

// Channel is a duplex websocket connection to the backend.
type Channel struct {
	url    string
	logger *slog.Logger

	onMessage func(protocol.Event)
	onClosed  func(error)

	mu        sync.Mutex
	conn      *websocket.Conn
	open      bool
	closing   bool
	closeOnce sync.Once
}

// Option configures a Channel.
type Option func(*Channel)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Channel) {
		c.logger = logger
	}
}

// New creates a Channel for the given websocket URL.
// Register callbacks before calling Connect.
func New(url string, opts ...Option) *Channel {
	c := &Channel{
		url:    url,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "channel")
	return c
}

// OnMessage sets the callback for inbound control frames. Must be set
// before Connect.
func (c *Channel) OnMessage(fn func(protocol.Event)) {
	c.onMessage = fn
}

// OnClosed sets the callback fired exactly once when the channel closes.
// A nil error means the closure was requested via Close; any other error
// is terminal for the session.
func (c *Channel) OnClosed(fn func(error)) {
	c.onClosed = fn
}

// Connect dials the backend. It is idempotent: connecting an already-open
// channel is a no-op.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.open {
		c.mu.Unlock()
		c.logger.Debug("already connected")
		return nil
	}
	c.mu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("channel: dial %s: %w", c.url, err)
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	c.mu.Lock()
	c.conn = conn
	c.open = true
	c.closing = false
	c.mu.Unlock()

	c.logger.Info("channel connected", "url", c.url)

	go c.readPump(conn)
	go c.keepAlive(conn)

	return nil
}

// IsOpen reports whether the channel is connected.
func (c *Channel) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// SendJSON writes a control frame. If the channel is not open the frame is
// dropped and logged: callers tolerate drops during teardown races.
func (c *Channel) SendJSON(v any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.open {
		c.logger.Warn("dropping control frame, channel not open")
		return
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(v); err != nil {
		c.logger.Warn("control frame write failed", "error", err)
	}
}

// SendBinary writes one raw audio frame. Drops silently (logged at debug,
// frames are high-rate) when the channel is not open.
func (c *Channel) SendBinary(frame []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.open {
		c.logger.Debug("dropping audio frame, channel not open")
		return
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		c.logger.Warn("audio frame write failed", "error", err)
	}
}

// Close shuts the channel down deliberately. Idempotent.
func (c *Channel) Close() {
	c.mu.Lock()
	if !c.open {
		c.mu.Unlock()
		return
	}
	c.closing = true
	conn := c.conn
	c.mu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()
}

// readPump reads inbound frames until the connection dies, then settles
// the closed state exactly once.
func (c *Channel) readPump(conn *websocket.Conn) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			c.settleClosed(err)
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		if msgType != websocket.TextMessage {
			// The backend never pushes binary audio down this channel.
			c.logger.Warn("ignoring unexpected binary frame", "bytes", len(data))
			continue
		}

		ev := protocol.Decode(data)
		if ev.Kind == protocol.EventUnknown {
			c.logger.Debug("inbound frame carried nothing actionable", "raw", string(data))
		}
		if c.onMessage != nil {
			c.onMessage(ev)
		}
	}
}

// keepAlive pings the backend so half-dead connections surface as errors.
func (c *Channel) keepAlive(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		stale := !c.open || c.conn != conn
		c.mu.Unlock()
		if stale {
			return
		}
		if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
			return
		}
	}
}

// settleClosed marks the channel closed and fires OnClosed once. A closure
// that followed a deliberate Close reports nil; everything else reports
// the transport error.
func (c *Channel) settleClosed(err error) {
	c.mu.Lock()
	deliberate := c.closing
	c.open = false
	if c.conn != nil {
		c.conn.Close()
	}
	c.mu.Unlock()

	c.closeOnce.Do(func() {
		if deliberate || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
			c.logger.Info("channel closed")
			err = nil
		} else {
			c.logger.Error("channel closed unexpectedly", "error", err)
		}
		if c.onClosed != nil {
			c.onClosed(err)
		}
	})
}
