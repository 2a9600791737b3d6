package service

import (
	"testing"
	"time"

	"huddle/internal/common"
	"huddle/internal/dbmysql"

	"github.com/stretchr/testify/assert"
)

var ruleNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestCanEdit(t *testing.T) {
	sender := common.Principal{ID: 1, Role: common.RoleMember, Status: common.StatusActive}
	moderator := common.Principal{ID: 2, Role: common.RoleModerator, Status: common.StatusActive}
	other := common.Principal{ID: 3, Role: common.RoleMember, Status: common.StatusActive}

	tests := []struct {
		name    string
		age     time.Duration
		actor   common.Principal
		wantErr bool
	}{
		{name: "sender inside window", age: 5 * time.Minute, actor: sender},
		{name: "sender just inside window", age: EditWindow - time.Second, actor: sender},
		{name: "sender at window boundary", age: EditWindow, actor: sender, wantErr: true},
		{name: "sender past window", age: EditWindow + time.Second, actor: sender, wantErr: true},
		{name: "moderator past window", age: time.Hour, actor: moderator},
		{name: "non-sender inside window", age: time.Minute, actor: other, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := &dbmysql.Message{SenderID: 1}
			msg.CreatedAt = ruleNow.Add(-tt.age)
			err := canEdit(msg, tt.actor, ruleNow)
			if tt.wantErr {
				assert.ErrorIs(t, err, common.ErrPermission)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCanDelete(t *testing.T) {
	msg := &dbmysql.Message{SenderID: 1}
	sessionAdmin := &dbmysql.Membership{Role: dbmysql.MemberRoleAdmin, Status: dbmysql.MembershipActive}
	kickedAdmin := &dbmysql.Membership{Role: dbmysql.MemberRoleAdmin, Status: dbmysql.MembershipKicked}

	assert.NoError(t, canDelete(msg, common.Principal{ID: 1, Role: common.RoleMember}, nil))
	assert.NoError(t, canDelete(msg, common.Principal{ID: 9, Role: common.RoleAdmin}, nil))
	assert.NoError(t, canDelete(msg, common.Principal{ID: 9, Role: common.RoleMember}, sessionAdmin))
	assert.ErrorIs(t, canDelete(msg, common.Principal{ID: 9, Role: common.RoleMember}, kickedAdmin), common.ErrPermission)
	assert.ErrorIs(t, canDelete(msg, common.Principal{ID: 9, Role: common.RoleMember}, nil), common.ErrPermission)
}

func TestCanSend(t *testing.T) {
	active := func() *dbmysql.Session {
		return &dbmysql.Session{Status: dbmysql.SessionActive}
	}
	mutedAll := func() *dbmysql.Session {
		return &dbmysql.Session{Status: dbmysql.SessionActive, MuteAll: true}
	}
	member := func(role dbmysql.MemberRole) *dbmysql.Membership {
		return &dbmysql.Membership{Role: role, Status: dbmysql.MembershipActive}
	}
	plain := common.Principal{ID: 1, Role: common.RoleMember, Status: common.StatusActive}

	tests := []struct {
		name       string
		session    *dbmysql.Session
		membership *dbmysql.Membership
		actor      common.Principal
		bypass     bool
		wantErr    bool
	}{
		{name: "active member sends", session: active(), membership: member(dbmysql.MemberRoleMember), actor: plain},
		{name: "archived session", session: &dbmysql.Session{Status: dbmysql.SessionArchived}, membership: member(dbmysql.MemberRoleMember), actor: plain, wantErr: true},
		{name: "no membership", session: active(), membership: nil, actor: plain, wantErr: true},
		{name: "left membership", session: active(), membership: &dbmysql.Membership{Status: dbmysql.MembershipLeft}, actor: plain, wantErr: true},
		{name: "mute_all blocks members", session: mutedAll(), membership: member(dbmysql.MemberRoleMember), actor: plain, wantErr: true},
		{name: "mute_all spares session admins", session: mutedAll(), membership: member(dbmysql.MemberRoleAdmin), actor: plain},
		{name: "mute_all spares platform admins", session: mutedAll(), membership: member(dbmysql.MemberRoleMember), actor: common.Principal{ID: 1, Role: common.RoleAdmin, Status: common.StatusActive}},
		{name: "moderator blocked without bypass", session: mutedAll(), membership: member(dbmysql.MemberRoleMember), actor: common.Principal{ID: 1, Role: common.RoleModerator, Status: common.StatusActive}, wantErr: true},
		{name: "moderator passes with bypass", session: mutedAll(), membership: member(dbmysql.MemberRoleMember), actor: common.Principal{ID: 1, Role: common.RoleModerator, Status: common.StatusActive}, bypass: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := canSend(tt.session, tt.membership, tt.actor, ruleNow, tt.bypass)
			if tt.wantErr {
				assert.ErrorIs(t, err, common.ErrPermission)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCanSendMutedMember(t *testing.T) {
	session := &dbmysql.Session{Status: dbmysql.SessionActive}
	until := ruleNow.Add(time.Hour)
	muted := &dbmysql.Membership{Status: dbmysql.MembershipActive, Muted: true, MutedUntil: &until}
	actor := common.Principal{ID: 1, Role: common.RoleMember, Status: common.StatusActive}

	assert.ErrorIs(t, canSend(session, muted, actor, ruleNow, false), common.ErrPermission)

	// the mute has lapsed
	assert.NoError(t, canSend(session, muted, actor, until.Add(time.Second), false))
}

func TestMessageViewTombstone(t *testing.T) {
	msg := &dbmysql.Message{
		SessionID: 5,
		SenderID:  1,
		Type:      dbmysql.MessageText,
		Content:   "secret",
		Mentions:  "[2,3]",
		Deleted:   true,
		SentAt:    ruleNow,
	}
	msg.ID = 99
	reactions := []*dbmysql.Reaction{
		{MessageID: 99, UserID: 2, Emoji: "👍"},
		{MessageID: 99, UserID: 3, Emoji: "👍"},
		{MessageID: 99, UserID: 2, Emoji: "🔥"},
	}

	plain := messageView(msg, reactions, false)
	assert.True(t, plain.Deleted)
	assert.Empty(t, plain.Content)
	assert.Nil(t, plain.Mentions)
	assert.Nil(t, plain.Reactions)

	privileged := messageView(msg, reactions, true)
	assert.Equal(t, "secret", privileged.Content)
	assert.Equal(t, []uint64{2, 3}, privileged.Mentions)
	assert.ElementsMatch(t, []uint64{2, 3}, privileged.Reactions["👍"])
	assert.Equal(t, []uint64{2}, privileged.Reactions["🔥"])
}
