// Package registry tracks every live client session and provides topic-scoped
// fan-out. It owns only the ephemeral subject->handle mapping; canonical chat
// state lives behind the repositories and is reconciled, never duplicated.
package registry

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"huddle/internal/common"
	"huddle/internal/event"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Handle is one live transport binding, e.g. a websocket client. Send must be
// safe for concurrent use and must not block the caller indefinitely.
type Handle interface {
	ID() string
	Send(p event.Payload) error
}

var (
	activeHandles = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "huddle_registry_handles",
		Help: "Number of live registered transport handles.",
	})
	publishedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "huddle_registry_published_total",
		Help: "Events published through the registry, by event name.",
	}, []string{"event"})
)

type entry struct {
	handle    Handle
	principal common.Principal
	topics    map[string]struct{}
}

// Registry is the only place the handle and topic maps are touched; callers
// go through the operations below and never see the maps.
type Registry struct {
	mu      sync.RWMutex
	auth    common.Authenticator
	log     zerolog.Logger
	entries map[string]*entry
	topics  map[string]map[string]*entry
}

func New(auth common.Authenticator, log zerolog.Logger) *Registry {
	return &Registry{
		auth:    auth,
		log:     log.With().Str("component", "registry").Logger(),
		entries: make(map[string]*entry),
		topics:  make(map[string]map[string]*entry),
	}
}

// Register authenticates the credential once and binds the handle to the
// resolved principal, auto-subscribing it to the principal's user topic.
func (r *Registry) Register(handle Handle, credential string) (common.Principal, error) {
	principal, err := r.auth.Authenticate(credential)
	if err != nil {
		return common.Principal{}, err
	}

	r.mu.Lock()
	e := &entry{
		handle:    handle,
		principal: principal,
		topics:    make(map[string]struct{}),
	}
	r.entries[handle.ID()] = e
	r.addToTopic(e, event.UserTopic(principal.ID))
	r.mu.Unlock()

	activeHandles.Inc()
	r.log.Debug().Str("handle", handle.ID()).Uint64("user", principal.ID).Msg("handle registered")
	return principal, nil
}

// Subscribe is idempotent; subscribing an unknown handle is an error so that
// a disconnected client cannot silently keep topics alive.
func (r *Registry) Subscribe(handle Handle, topic string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[handle.ID()]
	if !ok {
		return fmt.Errorf("%w: handle %s", common.ErrNotConnected, handle.ID())
	}
	r.addToTopic(e, topic)
	return nil
}

// Unsubscribe is idempotent; an absent topic or handle is a no-op.
func (r *Registry) Unsubscribe(handle Handle, topic string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[handle.ID()]
	if !ok {
		return
	}
	r.removeFromTopic(e, topic)
}

// Publish delivers the payload to every handle currently subscribed to its
// topic. Best-effort: send failures are logged and dropped, never returned.
// A handle that disconnected a moment earlier simply does not receive it.
func (r *Registry) Publish(topic string, p event.Payload) {
	r.mu.RLock()
	subs := r.topics[topic]
	targets := make([]Handle, 0, len(subs))
	for _, e := range subs {
		targets = append(targets, e.handle)
	}
	r.mu.RUnlock()

	publishedEvents.WithLabelValues(p.Name()).Inc()
	for _, h := range targets {
		if err := h.Send(p); err != nil {
			r.log.Debug().Str("handle", h.ID()).Str("event", p.Name()).Err(err).Msg("dropped event")
		}
	}
}

// Unregister removes the handle and all its subscriptions, then announces the
// subject going offline on every session topic it was visibly active in.
func (r *Registry) Unregister(handle Handle) {
	r.mu.Lock()
	e, ok := r.entries[handle.ID()]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.entries, handle.ID())
	sessionTopics := make([]uint64, 0, len(e.topics))
	for topic := range e.topics {
		if sessionID, ok := parseSessionTopic(topic); ok {
			sessionTopics = append(sessionTopics, sessionID)
		}
		r.removeFromTopic(e, topic)
	}
	r.mu.Unlock()

	activeHandles.Dec()
	for _, sessionID := range sessionTopics {
		r.Publish(event.SessionTopic(sessionID), event.PresenceChanged{
			SessionID: sessionID,
			UserID:    e.principal.ID,
			Online:    false,
		})
	}
	r.log.Debug().Str("handle", handle.ID()).Uint64("user", e.principal.ID).Msg("handle unregistered")
}

// Subscribers reports how many handles are on a topic. Used by tests and the
// debug endpoint.
func (r *Registry) Subscribers(topic string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.topics[topic])
}

// callers hold r.mu
func (r *Registry) addToTopic(e *entry, topic string) {
	if _, ok := e.topics[topic]; ok {
		return
	}
	e.topics[topic] = struct{}{}
	if r.topics[topic] == nil {
		r.topics[topic] = make(map[string]*entry)
	}
	r.topics[topic][e.handle.ID()] = e
}

// callers hold r.mu
func (r *Registry) removeFromTopic(e *entry, topic string) {
	delete(e.topics, topic)
	if subs, ok := r.topics[topic]; ok {
		delete(subs, e.handle.ID())
		if len(subs) == 0 {
			delete(r.topics, topic)
		}
	}
}

func parseSessionTopic(topic string) (uint64, bool) {
	raw, ok := strings.CutPrefix(topic, "session:")
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
