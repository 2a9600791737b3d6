package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"huddle/internal/chat/repository"
	"huddle/internal/common"
	"huddle/internal/dbmysql"
	"huddle/internal/event"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

//go:generate go run go.uber.org/mock/mockgen -source=message_service.go -destination=mocks/mock_message_service.go -package=mocks

const defaultHistoryLimit = 50

// Draft is the sender-supplied part of a new message.
type Draft struct {
	Type     dbmysql.MessageType
	Content  string
	MediaRef string
	ReplyTo  *uint64
	Mentions []uint64
}

// MessageService validates and applies state transitions to messages, keeps
// per-member unread counters correct and broadcasts the results.
type MessageService interface {
	Send(ctx context.Context, sessionID uint64, sender common.Principal, draft Draft) (*dbmysql.Message, error)
	Edit(ctx context.Context, messageID uint64, actor common.Principal, newContent string) (*dbmysql.Message, error)
	Delete(ctx context.Context, messageID uint64, actor common.Principal) error
	MarkRead(ctx context.Context, sessionID uint64, reader common.Principal, uptoMessageID uint64) error
	React(ctx context.Context, messageID uint64, actor common.Principal, emoji string) error
	Unreact(ctx context.Context, messageID uint64, actor common.Principal, emoji string) error
	History(ctx context.Context, sessionID uint64, reader common.Principal, beforeID uint64, limit int) ([]event.MessageView, error)
}

type messageService struct {
	sessions    repository.SessionRepository
	memberships repository.MembershipRepository
	messages    repository.MessageRepository
	reactions   repository.ReactionRepository
	publisher   Publisher

	moderatorBypassMuteAll bool
	log                    zerolog.Logger
	now                    func() time.Time
}

func NewMessageService(
	sessions repository.SessionRepository,
	memberships repository.MembershipRepository,
	messages repository.MessageRepository,
	reactions repository.ReactionRepository,
	publisher Publisher,
	moderatorBypassMuteAll bool,
	log zerolog.Logger,
) MessageService {
	return &messageService{
		sessions:               sessions,
		memberships:            memberships,
		messages:               messages,
		reactions:              reactions,
		publisher:              publisher,
		moderatorBypassMuteAll: moderatorBypassMuteAll,
		log:                    log.With().Str("component", "message_service").Logger(),
		now:                    time.Now,
	}
}

func (s *messageService) Send(ctx context.Context, sessionID uint64, sender common.Principal, draft Draft) (*dbmysql.Message, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	membership, err := s.memberships.Find(ctx, sessionID, sender.ID)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}
	if err := canSend(session, membership, sender, s.now(), s.moderatorBypassMuteAll); err != nil {
		return nil, err
	}

	if draft.Type == "" {
		draft.Type = dbmysql.MessageText
	}
	if draft.Type == dbmysql.MessageText && draft.Content == "" {
		return nil, errors.New("message content cannot be empty")
	}
	if draft.Type != dbmysql.MessageText && draft.Type != dbmysql.MessageSystem && draft.MediaRef == "" {
		return nil, fmt.Errorf("%s message needs a media reference", draft.Type)
	}

	if draft.ReplyTo != nil {
		parent, err := s.messages.FindByID(ctx, *draft.ReplyTo)
		if err != nil {
			return nil, err
		}
		if parent.SessionID != sessionID {
			return nil, fmt.Errorf("%w: reply target is in another session", common.ErrNotFound)
		}
	}

	active, err := s.memberships.ListActive(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(draft.Mentions) > 0 {
		memberIDs := lo.Map(active, func(m *dbmysql.Membership, _ int) uint64 { return m.UserID })
		for _, mentioned := range draft.Mentions {
			if !lo.Contains(memberIDs, mentioned) {
				return nil, fmt.Errorf("%w: mentioned user %d is not an active member", common.ErrNotFound, mentioned)
			}
		}
	}

	msg := &dbmysql.Message{
		SessionID: sessionID,
		SenderID:  sender.ID,
		Type:      draft.Type,
		Content:   draft.Content,
		MediaRef:  draft.MediaRef,
		ReplyToID: draft.ReplyTo,
		Mentions:  encodeMentions(draft.Mentions),
		SentAt:    s.now().UTC(),
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to persist message: %w", err)
	}

	if err := s.sessions.Advance(ctx, sessionID, msg.ID); err != nil {
		return nil, fmt.Errorf("failed to advance session pointer: %w", err)
	}
	if err := s.memberships.IncrementUnread(ctx, sessionID, sender.ID); err != nil {
		return nil, fmt.Errorf("failed to bump unread counters: %w", err)
	}

	s.publisher.Publish(event.SessionTopic(sessionID), event.MessageCreated{
		SessionID: sessionID,
		Message:   messageView(msg, nil, false),
	})
	s.notifyRecipients(active, sender.ID, sessionID, msg.ID)
	return msg, nil
}

func (s *messageService) Edit(ctx context.Context, messageID uint64, actor common.Principal, newContent string) (*dbmysql.Message, error) {
	if newContent == "" {
		return nil, errors.New("message content cannot be empty")
	}

	msg, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if err := canEdit(msg, actor, s.now()); err != nil {
		return nil, err
	}

	// Edited and deleted are independent flags: editing a tombstoned message
	// is pointless for the sender but a privileged actor may still amend the
	// retained history.
	if msg.Deleted && !actor.Privileged() {
		return nil, fmt.Errorf("%w: message is deleted", common.ErrPermission)
	}

	now := s.now()
	msg.Content = newContent
	msg.Edited = true
	msg.EditedAt = &now
	if err := s.messages.Update(ctx, msg); err != nil {
		return nil, err
	}

	reactions, _ := s.reactions.ListByMessage(ctx, messageID)
	s.publisher.Publish(event.SessionTopic(msg.SessionID), event.MessageEdited{
		SessionID: msg.SessionID,
		Message:   messageView(msg, reactions, false),
	})
	return msg, nil
}

func (s *messageService) Delete(ctx context.Context, messageID uint64, actor common.Principal) error {
	msg, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		return err
	}

	var membership *dbmysql.Membership
	if m, err := s.memberships.Find(ctx, msg.SessionID, actor.ID); err == nil {
		membership = m
	}
	if err := canDelete(msg, actor, membership); err != nil {
		return err
	}
	if msg.Deleted {
		return nil // tombstoning twice is a no-op
	}

	now := s.now()
	msg.Deleted = true
	msg.DeletedAt = &now
	msg.DeletedBy = actor.ID
	if err := s.messages.Update(ctx, msg); err != nil {
		return err
	}

	s.publisher.Publish(event.SessionTopic(msg.SessionID), event.MessageDeleted{
		SessionID: msg.SessionID,
		MessageID: msg.ID,
		DeletedBy: actor.ID,
	})
	return nil
}

func (s *messageService) MarkRead(ctx context.Context, sessionID uint64, reader common.Principal, uptoMessageID uint64) error {
	membership, err := s.memberships.Find(ctx, sessionID, reader.ID)
	if err != nil {
		return err
	}
	if membership.Status != dbmysql.MembershipActive {
		return fmt.Errorf("%w: reader is not an active member", common.ErrPermission)
	}

	upto, err := s.messages.FindByID(ctx, uptoMessageID)
	if err != nil {
		return err
	}
	if upto.SessionID != sessionID {
		return fmt.Errorf("%w: message %d is not in session %d", common.ErrNotFound, uptoMessageID, sessionID)
	}

	// prev comes out of the guarded update itself, not the row loaded above:
	// a concurrent MarkRead by the same reader may have advanced the pointer
	// in between, and the read-count bump must cover only the span this call
	// actually advanced.
	prev, applied, err := s.memberships.MarkRead(ctx, membership.ID, uptoMessageID, s.now())
	if err != nil {
		return err
	}
	if !applied {
		// The pointer never moves backward; an older id is a no-op.
		return nil
	}
	return s.messages.IncrementReadCounts(ctx, sessionID, prev, uptoMessageID, reader.ID)
}

func (s *messageService) React(ctx context.Context, messageID uint64, actor common.Principal, emoji string) error {
	if emoji == "" {
		return errors.New("emoji is required")
	}
	msg, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		return err
	}
	if err := s.requireActiveMember(ctx, msg.SessionID, actor.ID); err != nil {
		return err
	}
	return s.reactions.Add(ctx, &dbmysql.Reaction{
		MessageID: messageID,
		UserID:    actor.ID,
		Emoji:     emoji,
	})
}

func (s *messageService) Unreact(ctx context.Context, messageID uint64, actor common.Principal, emoji string) error {
	msg, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		return err
	}
	if err := s.requireActiveMember(ctx, msg.SessionID, actor.ID); err != nil {
		return err
	}
	return s.reactions.Remove(ctx, messageID, actor.ID, emoji)
}

func (s *messageService) History(ctx context.Context, sessionID uint64, reader common.Principal, beforeID uint64, limit int) ([]event.MessageView, error) {
	if !reader.Privileged() {
		if err := s.requireActiveMember(ctx, sessionID, reader.ID); err != nil {
			return nil, err
		}
	}
	if limit <= 0 || limit > 200 {
		limit = defaultHistoryLimit
	}

	messages, err := s.messages.History(ctx, sessionID, beforeID, limit)
	if err != nil {
		return nil, err
	}
	ids := lo.Map(messages, func(m *dbmysql.Message, _ int) uint64 { return m.ID })
	reactions, err := s.reactions.ListByMessages(ctx, ids)
	if err != nil {
		return nil, err
	}
	byMessage := lo.GroupBy(reactions, func(r *dbmysql.Reaction) uint64 { return r.MessageID })

	views := make([]event.MessageView, 0, len(messages))
	for _, msg := range messages {
		views = append(views, messageView(msg, byMessage[msg.ID], reader.Privileged()))
	}
	return views, nil
}

func (s *messageService) requireActiveMember(ctx context.Context, sessionID, userID uint64) error {
	membership, err := s.memberships.Find(ctx, sessionID, userID)
	if errors.Is(err, common.ErrNotFound) {
		return fmt.Errorf("%w: not a member of session %d", common.ErrPermission, sessionID)
	}
	if err != nil {
		return err
	}
	if membership.Status != dbmysql.MembershipActive {
		return fmt.Errorf("%w: membership is %s", common.ErrPermission, membership.Status)
	}
	return nil
}

func (s *messageService) notifyRecipients(active []*dbmysql.Membership, senderID, sessionID, messageID uint64) {
	body, _ := json.Marshal(map[string]uint64{"session_id": sessionID, "message_id": messageID})
	for _, m := range active {
		if m.UserID == senderID || !m.NotificationsEnabled {
			continue
		}
		s.publisher.Publish(event.UserTopic(m.UserID), event.Notification{
			UserID: m.UserID,
			Kind:   "message",
			Body:   body,
		})
	}
}

func encodeMentions(ids []uint64) string {
	if len(ids) == 0 {
		return ""
	}
	raw, _ := json.Marshal(ids)
	return string(raw)
}

func decodeMentions(raw string) []uint64 {
	if raw == "" {
		return nil
	}
	var ids []uint64
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil
	}
	return ids
}
