// Package device owns the ephemeral per-connection state: the bounded
// connection pool, heartbeat-based liveness and the command/response
// correlation over a transport with no native request/response semantics.
// Nothing in here is ever persisted; a restart starts from an empty pool.
package device

import (
	"context"
	"fmt"
	"sync"
	"time"

	"huddle/internal/common"
	"huddle/internal/event"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Link is the transport side of a device connection.
type Link interface {
	ID() string
	Send(p event.Payload) error
	// Close tears the transport down, telling the peer why.
	Close(reason string)
}

type Status string

const (
	StatusConnected    Status = "connected"
	StatusIdle         Status = "idle"
	StatusDisconnected Status = "disconnected"
)

var activeConnections = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "huddle_device_connections",
	Help: "Number of admitted device connections.",
})

// Connection is the process-local record of one live device connection.
type Connection struct {
	ID           string
	UserID       uint64
	Platform     string
	Capabilities []string
	ConnectedAt  time.Time

	link Link

	mu           sync.Mutex
	lastActivity time.Time
	status       Status
}

func (c *Connection) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Connection) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

func (c *Connection) touch(now time.Time) {
	c.mu.Lock()
	c.lastActivity = now
	c.status = StatusConnected
	c.mu.Unlock()
}

func (c *Connection) markIdle() {
	c.mu.Lock()
	if c.status == StatusConnected {
		c.status = StatusIdle
	}
	c.mu.Unlock()
}

// Pool admits connections up to a fixed cap and sweeps out the ones that
// stopped heartbeating. A periodic sweep bounds the number of live timers to
// one, regardless of connection count.
type Pool struct {
	mu    sync.RWMutex
	conns map[string]*Connection

	max           int
	idleTimeout   time.Duration
	sweepInterval time.Duration
	log           zerolog.Logger
	now           func() time.Time
}

func NewPool(max int, idleTimeout, sweepInterval time.Duration, log zerolog.Logger) *Pool {
	return &Pool{
		conns:         make(map[string]*Connection),
		max:           max,
		idleTimeout:   idleTimeout,
		sweepInterval: sweepInterval,
		log:           log.With().Str("component", "device_pool").Logger(),
		now:           time.Now,
	}
}

// Admit registers a new connection, failing the handshake when the pool is
// full. The link's ID doubles as the connection id.
func (p *Pool) Admit(link Link, userID uint64, platform string, capabilities []string) (*Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.conns) >= p.max {
		return nil, fmt.Errorf("%w: connection pool holds %d of %d", common.ErrCapacity, len(p.conns), p.max)
	}

	now := p.now()
	conn := &Connection{
		ID:           link.ID(),
		UserID:       userID,
		Platform:     platform,
		Capabilities: capabilities,
		ConnectedAt:  now,
		link:         link,
		lastActivity: now,
		status:       StatusConnected,
	}
	p.conns[conn.ID] = conn
	activeConnections.Set(float64(len(p.conns)))
	p.log.Debug().Str("conn", conn.ID).Uint64("user", userID).Str("platform", platform).Msg("connection admitted")
	return conn, nil
}

func (p *Pool) Get(connID string) (*Connection, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	conn, ok := p.conns[connID]
	return conn, ok
}

// Touch records activity on the connection. Any inbound frame counts as a
// heartbeat.
func (p *Pool) Touch(connID string) {
	p.mu.RLock()
	conn, ok := p.conns[connID]
	p.mu.RUnlock()
	if ok {
		conn.touch(p.now())
	}
}

func (p *Pool) Remove(connID string) {
	p.mu.Lock()
	conn, ok := p.conns[connID]
	if ok {
		delete(p.conns, connID)
	}
	n := len(p.conns)
	p.mu.Unlock()

	if ok {
		conn.mu.Lock()
		conn.status = StatusDisconnected
		conn.mu.Unlock()
		activeConnections.Set(float64(n))
	}
}

func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.conns)
}

// Sweep force-disconnects every connection whose last activity is older than
// the idle timeout and returns their ids. Connections past half the timeout
// are marked idle; any inbound frame flips them back to connected.
func (p *Pool) Sweep(now time.Time) []string {
	p.mu.Lock()
	var expired []*Connection
	for id, conn := range p.conns {
		switch quiet := now.Sub(conn.LastActivity()); {
		case quiet >= p.idleTimeout:
			expired = append(expired, conn)
			delete(p.conns, id)
		case quiet >= p.idleTimeout/2:
			conn.markIdle()
		}
	}
	n := len(p.conns)
	p.mu.Unlock()

	if len(expired) == 0 {
		return nil
	}
	activeConnections.Set(float64(n))

	ids := make([]string, 0, len(expired))
	for _, conn := range expired {
		conn.mu.Lock()
		conn.status = StatusDisconnected
		conn.mu.Unlock()
		conn.link.Close("timeout")
		ids = append(ids, conn.ID)
		p.log.Info().Str("conn", conn.ID).Uint64("user", conn.UserID).Msg("connection timed out")
	}
	return ids
}

// Run drives the periodic sweep until the context is cancelled.
func (p *Pool) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.Sweep(p.now())
		}
	}
}
