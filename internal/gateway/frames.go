package gateway

import (
	"encoding/json"
	"errors"

	"huddle/internal/common"
)

// inboundFrame is the single envelope clients send. Type selects the
// operation; unrelated fields are ignored.
type inboundFrame struct {
	Type string `json:"type" validate:"required,oneof=subscribe unsubscribe create_private create_group add_member remove_member send_message edit_message delete_message mark_read react unreact history heartbeat command_response"`

	Topic string `json:"topic,omitempty"`

	SessionID uint64 `json:"session_id,omitempty"`
	MessageID uint64 `json:"message_id,omitempty"`
	UserID    uint64 `json:"user_id,omitempty"`

	// create_group
	Name            string `json:"name,omitempty"`
	MaxParticipants int    `json:"max_participants,omitempty"`
	MuteAll         bool   `json:"mute_all,omitempty"`

	// add_member / remove_member
	Role   string `json:"role,omitempty"`
	Reason string `json:"reason,omitempty"`

	// send_message / edit_message
	MessageType string   `json:"message_type,omitempty"`
	Content     string   `json:"content,omitempty"`
	MediaRef    string   `json:"media_ref,omitempty"`
	ReplyTo     *uint64  `json:"reply_to,omitempty"`
	Mentions    []uint64 `json:"mentions,omitempty"`
	Emoji       string   `json:"emoji,omitempty"`
	BeforeID    uint64   `json:"before_id,omitempty"`
	Limit       int      `json:"limit,omitempty"`

	// command_response
	CorrelationID string          `json:"correlation_id,omitempty"`
	Success       bool            `json:"success,omitempty"`
	Data          json.RawMessage `json:"data,omitempty"`
	Error         string          `json:"error,omitempty"`
}

// outboundFrame wraps every payload going down the wire.
type outboundFrame struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

type errorBody struct {
	Op      string `json:"op"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorCode maps the error taxonomy to short wire codes. The message carries
// the failed constraint; internal detail stays out of it.
func errorCode(err error) string {
	switch {
	case errors.Is(err, common.ErrAuth):
		return "auth"
	case errors.Is(err, common.ErrPermission):
		return "permission"
	case errors.Is(err, common.ErrNotFound):
		return "not_found"
	case errors.Is(err, common.ErrAlreadyMember):
		return "already_member"
	case errors.Is(err, common.ErrCapacity):
		return "capacity"
	case errors.Is(err, common.ErrTimeout):
		return "timeout"
	case errors.Is(err, common.ErrNotConnected):
		return "not_connected"
	default:
		return "invalid"
	}
}
