package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"huddle/internal/chat/service"
	"huddle/internal/common"
	"huddle/internal/dbmysql"
	"huddle/internal/device"
	"huddle/internal/event"
	"huddle/internal/registry"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Gateway binds the shared websocket transport to the realtime core. Every
// client connection is registered for fan-out and admitted into the device
// pool; both registrations die with the socket.
type Gateway struct {
	registry  *registry.Registry
	pool      *device.Pool
	commander *device.Commander
	sessions  service.SessionService
	messages  service.MessageService
	auth      common.Authenticator

	validate   *validator.Validate
	bufferSize int
	log        zerolog.Logger
}

func New(
	reg *registry.Registry,
	pool *device.Pool,
	commander *device.Commander,
	sessions service.SessionService,
	messages service.MessageService,
	auth common.Authenticator,
	bufferSize int,
	log zerolog.Logger,
) *Gateway {
	return &Gateway{
		registry:   reg,
		pool:       pool,
		commander:  commander,
		sessions:   sessions,
		messages:   messages,
		auth:       auth,
		validate:   validator.New(),
		bufferSize: bufferSize,
		log:        log.With().Str("component", "gateway").Logger(),
	}
}

func (g *Gateway) Routes(app *fiber.App) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	app.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		c.Locals("token", bearerToken(c))
		return c.Next()
	})
	app.Get("/ws", websocket.New(g.serve))

	app.Post("/api/connections/:id/command", g.handleCommand)
}

func bearerToken(c *fiber.Ctx) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	parts := strings.Fields(c.Get(fiber.HeaderAuthorization))
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return parts[1]
	}
	return ""
}

// serve owns one websocket connection from handshake to teardown.
func (g *Gateway) serve(conn *websocket.Conn) {
	token, _ := conn.Locals("token").(string)
	client := newClient(uuid.NewString(), conn, g.bufferSize, g.log)

	principal, err := g.registry.Register(client, token)
	if err != nil {
		g.log.Debug().Err(err).Msg("handshake rejected")
		client.Close("unauthenticated")
		return
	}

	var capabilities []string
	if raw := conn.Query("capabilities"); raw != "" {
		capabilities = strings.Split(raw, ",")
	}
	deviceConn, err := g.pool.Admit(client, principal.ID, conn.Query("platform"), capabilities)
	if err != nil {
		g.registry.Unregister(client)
		client.Close("capacity")
		return
	}

	go client.writePump()
	_ = client.enqueue(outboundFrame{Event: "connected", Data: fiber.Map{
		"connection_id": deviceConn.ID,
		"user_id":       principal.ID,
	}})

	defer func() {
		g.pool.Remove(client.ID())
		g.registry.Unregister(client)
		client.Close("closed")
	}()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		g.pool.Touch(client.ID())
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		g.pool.Touch(client.ID())

		var frame inboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			g.replyError(client, "parse", fmt.Errorf("malformed frame: %w", err))
			continue
		}
		if err := g.validate.Struct(frame); err != nil {
			g.replyError(client, frame.Type, fmt.Errorf("invalid frame: %w", err))
			continue
		}
		g.dispatch(client, principal, frame)
	}
}

func (g *Gateway) dispatch(client *Client, principal common.Principal, frame inboundFrame) {
	ctx := context.Background()

	switch frame.Type {
	case "heartbeat":
		// Touch already happened; nothing else to do.

	case "subscribe":
		if err := g.authorizeTopic(ctx, principal, frame.Topic); err != nil {
			g.replyError(client, frame.Type, err)
			return
		}
		if err := g.registry.Subscribe(client, frame.Topic); err != nil {
			g.replyError(client, frame.Type, err)
			return
		}
		g.ack(client, frame.Type, fiber.Map{"topic": frame.Topic})

	case "unsubscribe":
		g.registry.Unsubscribe(client, frame.Topic)
		g.ack(client, frame.Type, fiber.Map{"topic": frame.Topic})

	case "create_private":
		session, err := g.sessions.CreatePrivateSession(ctx, principal.ID, frame.UserID)
		if err != nil {
			g.replyError(client, frame.Type, err)
			return
		}
		g.ack(client, frame.Type, fiber.Map{"session_id": session.ID})

	case "create_group":
		session, err := g.sessions.CreateGroupSession(ctx, principal, service.GroupSettings{
			Name:            frame.Name,
			MaxParticipants: frame.MaxParticipants,
			MuteAll:         frame.MuteAll,
		})
		if err != nil {
			g.replyError(client, frame.Type, err)
			return
		}
		g.ack(client, frame.Type, fiber.Map{"session_id": session.ID})

	case "add_member":
		role := dbmysql.MemberRole(frame.Role)
		if role == "" {
			role = dbmysql.MemberRoleMember
		}
		if _, err := g.sessions.AddMember(ctx, frame.SessionID, frame.UserID, principal, role); err != nil {
			g.replyError(client, frame.Type, err)
			return
		}
		g.ack(client, frame.Type, fiber.Map{"session_id": frame.SessionID, "user_id": frame.UserID})

	case "remove_member":
		reason := dbmysql.MembershipStatus(frame.Reason)
		if reason == "" {
			reason = dbmysql.MembershipLeft
		}
		if err := g.sessions.RemoveMember(ctx, frame.SessionID, frame.UserID, principal, reason); err != nil {
			g.replyError(client, frame.Type, err)
			return
		}
		g.ack(client, frame.Type, fiber.Map{"session_id": frame.SessionID, "user_id": frame.UserID})

	case "send_message":
		msg, err := g.messages.Send(ctx, frame.SessionID, principal, service.Draft{
			Type:     dbmysql.MessageType(frame.MessageType),
			Content:  frame.Content,
			MediaRef: frame.MediaRef,
			ReplyTo:  frame.ReplyTo,
			Mentions: frame.Mentions,
		})
		if err != nil {
			g.replyError(client, frame.Type, err)
			return
		}
		g.ack(client, frame.Type, fiber.Map{"message_id": msg.ID})

	case "edit_message":
		if _, err := g.messages.Edit(ctx, frame.MessageID, principal, frame.Content); err != nil {
			g.replyError(client, frame.Type, err)
			return
		}
		g.ack(client, frame.Type, fiber.Map{"message_id": frame.MessageID})

	case "delete_message":
		if err := g.messages.Delete(ctx, frame.MessageID, principal); err != nil {
			g.replyError(client, frame.Type, err)
			return
		}
		g.ack(client, frame.Type, fiber.Map{"message_id": frame.MessageID})

	case "mark_read":
		if err := g.messages.MarkRead(ctx, frame.SessionID, principal, frame.MessageID); err != nil {
			g.replyError(client, frame.Type, err)
			return
		}
		g.ack(client, frame.Type, fiber.Map{"session_id": frame.SessionID, "message_id": frame.MessageID})

	case "react":
		if err := g.messages.React(ctx, frame.MessageID, principal, frame.Emoji); err != nil {
			g.replyError(client, frame.Type, err)
			return
		}
		g.ack(client, frame.Type, fiber.Map{"message_id": frame.MessageID, "emoji": frame.Emoji})

	case "unreact":
		if err := g.messages.Unreact(ctx, frame.MessageID, principal, frame.Emoji); err != nil {
			g.replyError(client, frame.Type, err)
			return
		}
		g.ack(client, frame.Type, fiber.Map{"message_id": frame.MessageID, "emoji": frame.Emoji})

	case "history":
		views, err := g.messages.History(ctx, frame.SessionID, principal, frame.BeforeID, frame.Limit)
		if err != nil {
			g.replyError(client, frame.Type, err)
			return
		}
		_ = client.enqueue(outboundFrame{Event: "history", Data: fiber.Map{
			"session_id": frame.SessionID,
			"messages":   views,
		}})

	case "command_response":
		g.commander.Resolve(event.CommandResponse{
			CorrelationID: frame.CorrelationID,
			Success:       frame.Success,
			Data:          frame.Data,
			Error:         frame.Error,
		})
	}
}

// authorizeTopic gates subscriptions: session topics need an active
// membership, a user topic belongs to its user alone. Privileged principals
// may watch anything.
func (g *Gateway) authorizeTopic(ctx context.Context, principal common.Principal, topic string) error {
	if principal.Privileged() {
		return nil
	}
	if raw, ok := strings.CutPrefix(topic, "session:"); ok {
		var sessionID uint64
		if _, err := fmt.Sscanf(raw, "%d", &sessionID); err != nil {
			return fmt.Errorf("invalid topic %q", topic)
		}
		member, err := g.sessions.IsMember(ctx, sessionID, principal.ID)
		if err != nil {
			return err
		}
		if !member {
			return fmt.Errorf("%w: not a member of session %d", common.ErrPermission, sessionID)
		}
		return nil
	}
	if topic == event.UserTopic(principal.ID) {
		return nil
	}
	return fmt.Errorf("%w: topic %q", common.ErrPermission, topic)
}

func (g *Gateway) ack(client *Client, op string, data fiber.Map) {
	data["op"] = op
	_ = client.enqueue(outboundFrame{Event: "ack", Data: data})
}

func (g *Gateway) replyError(client *Client, op string, err error) {
	_ = client.enqueue(outboundFrame{Event: "error", Data: errorBody{
		Op:      op,
		Code:    errorCode(err),
		Message: err.Error(),
	}})
}

type commandRequest struct {
	Action string          `json:"action" validate:"required"`
	Params json.RawMessage `json:"params"`
}

// handleCommand lets a privileged caller issue a command to one live
// connection and blocks until the correlated response or the timeout.
func (g *Gateway) handleCommand(c *fiber.Ctx) error {
	principal, err := g.auth.Authenticate(bearerToken(c))
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid credential")
	}
	if !principal.Privileged() {
		return fiber.NewError(fiber.StatusForbidden, "privileged role required")
	}

	var req commandRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed body")
	}
	if err := g.validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	resp, err := g.commander.SendCommand(c.UserContext(), c.Params("id"), req.Action, req.Params)
	switch {
	case err == nil:
		return c.JSON(resp)
	case errors.Is(err, common.ErrNotConnected):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, common.ErrTimeout):
		return fiber.NewError(fiber.StatusGatewayTimeout, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}
