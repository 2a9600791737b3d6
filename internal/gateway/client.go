package gateway

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"huddle/internal/event"

	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Client is the middleman between one websocket connection and the rest of
// the system. It satisfies both registry.Handle and device.Link.
type Client struct {
	id   string
	conn *websocket.Conn
	log  zerolog.Logger

	mu     sync.Mutex
	send   chan outboundFrame
	closed bool
}

func newClient(id string, conn *websocket.Conn, bufferSize int, log zerolog.Logger) *Client {
	return &Client{
		id:   id,
		conn: conn,
		log:  log.With().Str("conn", id).Logger(),
		send: make(chan outboundFrame, bufferSize),
	}
}

func (c *Client) ID() string { return c.id }

// Send queues a payload for delivery. It never blocks: a client that cannot
// keep up has its frame dropped, which is the best-effort contract.
func (c *Client) Send(p event.Payload) error {
	return c.enqueue(outboundFrame{Event: p.Name(), Data: p})
}

func (c *Client) enqueue(frame outboundFrame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("connection %s is closed", c.id)
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return fmt.Errorf("send buffer of %s is full", c.id)
	}
}

// Close tears the connection down, telling the peer why. Safe to call from
// any goroutine and more than once.
func (c *Client) Close(reason string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()

	deadline := time.Now().Add(writeWait)
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, deadline)
	_ = c.conn.Close()
}

// writePump serializes all writes to the websocket and keeps the peer alive
// with pings. One pump per connection; it exits when Close drains the
// channel or a write fails.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				return
			}
			raw, err := json.Marshal(frame)
			if err != nil {
				c.log.Error().Err(err).Str("event", frame.Event).Msg("failed to marshal frame")
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
