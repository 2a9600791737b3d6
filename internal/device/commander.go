package device

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"huddle/internal/common"
	"huddle/internal/event"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog"
)

// CommandTimeout is the fixed correlation window. It is a contract with the
// devices, not a tuning knob.
const CommandTimeout = 30 * time.Second

// waiter is one pending command. Exactly one of complete/expire wins; the
// loser is a no-op.
type waiter struct {
	once sync.Once
	ch   chan event.CommandResponse
}

func newWaiter() *waiter {
	return &waiter{ch: make(chan event.CommandResponse, 1)}
}

func (w *waiter) complete(resp event.CommandResponse) {
	w.once.Do(func() {
		w.ch <- resp
		close(w.ch)
	})
}

func (w *waiter) expire() {
	w.once.Do(func() {
		close(w.ch)
	})
}

// Commander correlates command frames pushed down a device connection with
// their eventual command_response frames. The pending table is a TTL cache:
// its expiry loop is the single sweeper evicting abandoned correlation ids,
// so neither timers nor waiter entries leak under churn.
type Commander struct {
	pool    *Pool
	pending *ttlcache.Cache[string, *waiter]
	log     zerolog.Logger
}

func NewCommander(pool *Pool, log zerolog.Logger) *Commander {
	return newCommander(pool, CommandTimeout, log)
}

func newCommander(pool *Pool, timeout time.Duration, log zerolog.Logger) *Commander {
	pending := ttlcache.New[string, *waiter](
		ttlcache.WithTTL[string, *waiter](timeout),
		ttlcache.WithDisableTouchOnHit[string, *waiter](),
	)
	pending.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, *waiter]) {
		if reason == ttlcache.EvictionReasonExpired {
			item.Value().expire()
		}
	})
	return &Commander{
		pool:    pool,
		pending: pending,
		log:     log.With().Str("component", "commander").Logger(),
	}
}

// SendCommand pushes {correlationId, action, params} to the target connection
// and suspends the caller until the correlated response, the 30s window
// closing, or context cancellation.
func (c *Commander) SendCommand(ctx context.Context, connID, action string, params json.RawMessage) (event.CommandResponse, error) {
	conn, ok := c.pool.Get(connID)
	if !ok {
		return event.CommandResponse{}, fmt.Errorf("%w: connection %s", common.ErrNotConnected, connID)
	}

	correlationID := uuid.NewString()
	w := newWaiter()
	c.pending.Set(correlationID, w, ttlcache.DefaultTTL)

	cmd := event.Command{CorrelationID: correlationID, Action: action, Params: params}
	if err := conn.link.Send(cmd); err != nil {
		c.pending.Delete(correlationID)
		return event.CommandResponse{}, fmt.Errorf("%w: push to %s failed: %v", common.ErrNotConnected, connID, err)
	}

	select {
	case resp, delivered := <-w.ch:
		if !delivered {
			return event.CommandResponse{}, fmt.Errorf("%w: command %s to %s", common.ErrTimeout, action, connID)
		}
		return resp, nil
	case <-ctx.Done():
		c.pending.Delete(correlationID)
		return event.CommandResponse{}, ctx.Err()
	}
}

// Resolve matches an inbound command_response to its waiter. A response whose
// correlation id is unknown (typically one arriving after the window closed)
// is discarded without effect.
func (c *Commander) Resolve(resp event.CommandResponse) {
	item := c.pending.Get(resp.CorrelationID)
	if item == nil {
		c.log.Debug().Str("correlation_id", resp.CorrelationID).Msg("discarding late command response")
		return
	}
	// Complete before evicting: the TTL expiry races this call for the
	// waiter's once, and an in-window response must not lose to it while we
	// hold the entry.
	item.Value().complete(resp)
	c.pending.Delete(resp.CorrelationID)
}

// Pending reports the number of in-flight commands. Used by tests.
func (c *Commander) Pending() int {
	return c.pending.Len()
}

// Run drives the TTL eviction loop until the context is cancelled.
func (c *Commander) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		c.pending.Stop()
	}()
	c.pending.Start()
	return ctx.Err()
}
