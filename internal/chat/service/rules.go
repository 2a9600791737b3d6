package service

import (
	"fmt"
	"time"

	"huddle/internal/common"
	"huddle/internal/dbmysql"
	"huddle/internal/event"
)

// EditWindow bounds how long a sender may edit their own message. Privileged
// roles are not subject to it.
const EditWindow = 10 * time.Minute

// The rules below are pure: they take state values and an actor and decide,
// without touching any datastore. Services apply them before mutating.

func canEdit(msg *dbmysql.Message, actor common.Principal, now time.Time) error {
	if actor.Privileged() {
		return nil
	}
	if msg.SenderID != actor.ID {
		return fmt.Errorf("%w: only the sender may edit a message", common.ErrPermission)
	}
	if now.Sub(msg.CreatedAt) >= EditWindow {
		return fmt.Errorf("%w: edit window of %s has closed", common.ErrPermission, EditWindow)
	}
	return nil
}

// canDelete permits the sender, a privileged principal, or a session admin.
// membership may be nil when the actor holds none in the message's session.
func canDelete(msg *dbmysql.Message, actor common.Principal, membership *dbmysql.Membership) error {
	if actor.Privileged() || msg.SenderID == actor.ID {
		return nil
	}
	if membership != nil && membership.Status == dbmysql.MembershipActive && membership.Role == dbmysql.MemberRoleAdmin {
		return nil
	}
	return fmt.Errorf("%w: only the sender, a session admin or a moderator may delete", common.ErrPermission)
}

func canSend(session *dbmysql.Session, membership *dbmysql.Membership, actor common.Principal, now time.Time, moderatorBypassMuteAll bool) error {
	if session.Status != dbmysql.SessionActive {
		return fmt.Errorf("%w: session is %s", common.ErrPermission, session.Status)
	}
	if membership == nil || membership.Status != dbmysql.MembershipActive {
		return fmt.Errorf("%w: sender is not an active member", common.ErrPermission)
	}
	if membership.MutedNow(now) {
		return fmt.Errorf("%w: sender is muted", common.ErrPermission)
	}
	if session.MuteAll && membership.Role != dbmysql.MemberRoleAdmin {
		if actor.Role == common.RoleModerator && moderatorBypassMuteAll {
			return nil
		}
		if actor.Role == common.RoleAdmin {
			return nil
		}
		return fmt.Errorf("%w: session is muted for non-admin members", common.ErrPermission)
	}
	return nil
}

// messageView renders the wire shape of a message. Tombstoned content is
// replaced unless the reader is privileged; edit and reaction history stay
// queryable to privileged actors even on deleted messages.
func messageView(msg *dbmysql.Message, reactions []*dbmysql.Reaction, privileged bool) event.MessageView {
	view := event.MessageView{
		ID:        msg.ID,
		SessionID: msg.SessionID,
		SenderID:  msg.SenderID,
		Type:      string(msg.Type),
		Content:   msg.Content,
		ReplyToID: msg.ReplyToID,
		Mentions:  decodeMentions(msg.Mentions),
		Edited:    msg.Edited,
		Deleted:   msg.Deleted,
		SentAt:    msg.SentAt.Unix(),
	}
	if len(reactions) > 0 {
		view.Reactions = make(map[string][]uint64, len(reactions))
		for _, r := range reactions {
			view.Reactions[r.Emoji] = append(view.Reactions[r.Emoji], r.UserID)
		}
	}
	if msg.Deleted && !privileged {
		view.Content = ""
		view.Mentions = nil
		view.Reactions = nil
	}
	return view
}
