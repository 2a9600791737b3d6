// Package event defines the typed payloads fanned out by the connection
// registry. One struct per event keeps producers and consumers in sync at
// compile time instead of passing ad hoc maps around.
package event

import (
	"encoding/json"
	"fmt"
)

// Payload is implemented by every broadcastable event.
type Payload interface {
	// Topic is the fan-out address the payload is published under.
	Topic() string
	// Name is the wire-visible event name, e.g. "message.created".
	Name() string
}

func SessionTopic(sessionID uint64) string {
	return fmt.Sprintf("session:%d", sessionID)
}

func UserTopic(userID uint64) string {
	return fmt.Sprintf("user:%d", userID)
}

// MessageView is the read-side shape of a message as it goes over the wire.
// Tombstoned content is already blanked by the time a view is published.
type MessageView struct {
	ID        uint64              `json:"id"`
	SessionID uint64              `json:"session_id"`
	SenderID  uint64              `json:"sender_id"`
	Type      string              `json:"type"`
	Content   string              `json:"content"`
	ReplyToID *uint64             `json:"reply_to_id,omitempty"`
	Mentions  []uint64            `json:"mentions,omitempty"`
	Edited    bool                `json:"edited"`
	Deleted   bool                `json:"deleted"`
	Reactions map[string][]uint64 `json:"reactions,omitempty"`
	SentAt    int64               `json:"sent_at"`
}

type MessageCreated struct {
	SessionID uint64      `json:"session_id"`
	Message   MessageView `json:"message"`
}

func (e MessageCreated) Topic() string { return SessionTopic(e.SessionID) }
func (e MessageCreated) Name() string  { return "message.created" }

type MessageEdited struct {
	SessionID uint64      `json:"session_id"`
	Message   MessageView `json:"message"`
}

func (e MessageEdited) Topic() string { return SessionTopic(e.SessionID) }
func (e MessageEdited) Name() string  { return "message.edited" }

type MessageDeleted struct {
	SessionID uint64 `json:"session_id"`
	MessageID uint64 `json:"message_id"`
	DeletedBy uint64 `json:"deleted_by"`
}

func (e MessageDeleted) Topic() string { return SessionTopic(e.SessionID) }
func (e MessageDeleted) Name() string  { return "message.deleted" }

type MemberAdded struct {
	SessionID uint64 `json:"session_id"`
	UserID    uint64 `json:"user_id"`
	Role      string `json:"role"`
	ActorID   uint64 `json:"actor_id"`
}

func (e MemberAdded) Topic() string { return SessionTopic(e.SessionID) }
func (e MemberAdded) Name() string  { return "member.added" }

type MemberRemoved struct {
	SessionID uint64 `json:"session_id"`
	UserID    uint64 `json:"user_id"`
	Reason    string `json:"reason"`
	ActorID   uint64 `json:"actor_id"`
}

func (e MemberRemoved) Topic() string { return SessionTopic(e.SessionID) }
func (e MemberRemoved) Name() string  { return "member.removed" }

// Notification is an arbitrary record delivered to a single user's topic.
type Notification struct {
	UserID uint64          `json:"user_id"`
	Kind   string          `json:"kind"`
	Body   json.RawMessage `json:"body,omitempty"`
}

func (e Notification) Topic() string { return UserTopic(e.UserID) }
func (e Notification) Name() string  { return "notification" }

type PresenceChanged struct {
	SessionID uint64 `json:"session_id"`
	UserID    uint64 `json:"user_id"`
	Online    bool   `json:"online"`
}

func (e PresenceChanged) Topic() string { return SessionTopic(e.SessionID) }
func (e PresenceChanged) Name() string  { return "presence.changed" }

// Command is connection-scoped: it is pushed straight down one device
// connection, never through a topic.
type Command struct {
	CorrelationID string          `json:"correlation_id"`
	Action        string          `json:"action"`
	Params        json.RawMessage `json:"params,omitempty"`
}

func (e Command) Topic() string { return "" }
func (e Command) Name() string  { return "command" }

type CommandResponse struct {
	CorrelationID string          `json:"correlation_id"`
	Success       bool            `json:"success"`
	Data          json.RawMessage `json:"data,omitempty"`
	Error         string          `json:"error,omitempty"`
}

func (e CommandResponse) Topic() string { return "" }
func (e CommandResponse) Name() string  { return "command_response" }
