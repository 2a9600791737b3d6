package service

import (
	"context"
	"sync"
	"testing"

	"huddle/internal/chat/repository/mocks"
	"huddle/internal/common"
	"huddle/internal/dbmysql"
	"huddle/internal/event"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"
)

type published struct {
	topic   string
	payload event.Payload
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPublisher) Publish(topic string, payload event.Payload) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{topic: topic, payload: payload})
}

func (p *recordingPublisher) all() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.events...)
}

func (p *recordingPublisher) onTopic(topic string) []event.Payload {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []event.Payload
	for _, e := range p.events {
		if e.topic == topic {
			out = append(out, e.payload)
		}
	}
	return out
}

type sessionFixture struct {
	sessions    *mocks.MockSessionRepository
	memberships *mocks.MockMembershipRepository
	publisher   *recordingPublisher
	svc         SessionService
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := &sessionFixture{
		sessions:    mocks.NewMockSessionRepository(ctrl),
		memberships: mocks.NewMockMembershipRepository(ctrl),
		publisher:   &recordingPublisher{},
	}
	f.svc = NewSessionService(f.sessions, f.memberships, f.publisher, zerolog.Nop())
	return f
}

func TestCreatePrivateSessionInvalidPair(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreatePrivateSession(ctx, 5, 5)
	assert.Error(t, err)
	_, err = f.svc.CreatePrivateSession(ctx, 0, 5)
	assert.Error(t, err)
}

func TestCreatePrivateSessionReturnsExisting(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	existing := &dbmysql.Session{ID: 9, Kind: dbmysql.SessionPrivate}
	// order of the pair must not matter
	f.sessions.EXPECT().FindByPairKey(ctx, "3:7").Return(existing, nil)

	got, err := f.svc.CreatePrivateSession(ctx, 7, 3)
	assert.NoError(t, err)
	assert.Same(t, existing, got)
}

func TestCreatePrivateSessionCreates(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	f.sessions.EXPECT().FindByPairKey(ctx, "3:7").Return(nil, common.ErrNotFound)
	f.sessions.EXPECT().Create(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, s *dbmysql.Session) error {
		assert.Equal(t, dbmysql.SessionPrivate, s.Kind)
		assert.Equal(t, 2, s.MaxParticipants)
		if assert.NotNil(t, s.PairKey) {
			assert.Equal(t, "3:7", *s.PairKey)
		}
		s.ID = 11
		return nil
	})

	var members []uint64
	f.memberships.EXPECT().Create(ctx, gomock.Any()).Times(2).DoAndReturn(func(_ context.Context, m *dbmysql.Membership) error {
		assert.Equal(t, uint64(11), m.SessionID)
		assert.Equal(t, dbmysql.MembershipActive, m.Status)
		members = append(members, m.UserID)
		return nil
	})

	session, err := f.svc.CreatePrivateSession(ctx, 7, 3)
	assert.NoError(t, err)
	assert.Equal(t, uint64(11), session.ID)
	assert.ElementsMatch(t, []uint64{3, 7}, members)
}

func TestCreatePrivateSessionConcurrentConverges(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	// a stateful double: the first creator wins, later callers find its row
	var mu sync.Mutex
	var stored *dbmysql.Session
	creates := 0

	f.sessions.EXPECT().FindByPairKey(ctx, "1:2").AnyTimes().DoAndReturn(func(context.Context, string) (*dbmysql.Session, error) {
		mu.Lock()
		defer mu.Unlock()
		if stored == nil {
			return nil, common.ErrNotFound
		}
		return stored, nil
	})
	f.sessions.EXPECT().Create(ctx, gomock.Any()).AnyTimes().DoAndReturn(func(_ context.Context, s *dbmysql.Session) error {
		mu.Lock()
		defer mu.Unlock()
		creates++
		s.ID = 21
		stored = s
		return nil
	})
	f.memberships.EXPECT().Create(ctx, gomock.Any()).AnyTimes().Return(nil)

	var wg sync.WaitGroup
	ids := make([]uint64, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			session, err := f.svc.CreatePrivateSession(ctx, 1, 2)
			assert.NoError(t, err)
			ids[i] = session.ID
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, creates)
	for _, id := range ids {
		assert.Equal(t, uint64(21), id)
	}
}

func TestCreateGroupSession(t *testing.T) {
	creator := common.Principal{ID: 4, Role: common.RoleMember, Status: common.StatusActive}

	t.Run("invalid settings", func(t *testing.T) {
		f := newSessionFixture(t)
		_, err := f.svc.CreateGroupSession(context.Background(), creator, GroupSettings{Name: ""})
		assert.Error(t, err)
	})

	t.Run("creator becomes admin", func(t *testing.T) {
		f := newSessionFixture(t)
		ctx := context.Background()

		f.sessions.EXPECT().Create(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, s *dbmysql.Session) error {
			assert.Equal(t, dbmysql.SessionGroup, s.Kind)
			assert.Equal(t, "launch crew", s.Name)
			assert.True(t, s.MuteAll)
			s.ID = 30
			return nil
		})
		f.memberships.EXPECT().Create(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, m *dbmysql.Membership) error {
			assert.Equal(t, uint64(30), m.SessionID)
			assert.Equal(t, creator.ID, m.UserID)
			assert.Equal(t, dbmysql.MemberRoleAdmin, m.Role)
			return nil
		})

		session, err := f.svc.CreateGroupSession(ctx, creator, GroupSettings{Name: "launch crew", MaxParticipants: 50, MuteAll: true})
		assert.NoError(t, err)
		assert.Equal(t, uint64(30), session.ID)
	})
}

func TestAddMemberRejections(t *testing.T) {
	member := common.Principal{ID: 1, Role: common.RoleMember, Status: common.StatusActive}
	activeInviter := &dbmysql.Membership{SessionID: 10, UserID: 1, Role: dbmysql.MemberRoleMember, Status: dbmysql.MembershipActive}
	group := func() *dbmysql.Session {
		return &dbmysql.Session{ID: 10, Kind: dbmysql.SessionGroup, Status: dbmysql.SessionActive, MaxParticipants: 100}
	}

	tests := []struct {
		name    string
		role    dbmysql.MemberRole
		setup   func(f *sessionFixture)
		wantErr error
	}{
		{
			name: "private membership is fixed",
			setup: func(f *sessionFixture) {
				f.sessions.EXPECT().FindByID(gomock.Any(), uint64(10)).Return(&dbmysql.Session{ID: 10, Kind: dbmysql.SessionPrivate, Status: dbmysql.SessionActive}, nil)
			},
			wantErr: common.ErrPermission,
		},
		{
			name: "archived session",
			setup: func(f *sessionFixture) {
				f.sessions.EXPECT().FindByID(gomock.Any(), uint64(10)).Return(&dbmysql.Session{ID: 10, Kind: dbmysql.SessionGroup, Status: dbmysql.SessionArchived}, nil)
			},
			wantErr: common.ErrPermission,
		},
		{
			name: "inviter is not a member",
			setup: func(f *sessionFixture) {
				f.sessions.EXPECT().FindByID(gomock.Any(), uint64(10)).Return(group(), nil)
				f.memberships.EXPECT().Find(gomock.Any(), uint64(10), uint64(1)).Return(nil, common.ErrNotFound)
			},
			wantErr: common.ErrPermission,
		},
		{
			name: "member may not grant admin",
			role: dbmysql.MemberRoleAdmin,
			setup: func(f *sessionFixture) {
				f.sessions.EXPECT().FindByID(gomock.Any(), uint64(10)).Return(group(), nil)
				f.memberships.EXPECT().Find(gomock.Any(), uint64(10), uint64(1)).Return(activeInviter, nil)
			},
			wantErr: common.ErrPermission,
		},
		{
			name: "target already active",
			setup: func(f *sessionFixture) {
				f.sessions.EXPECT().FindByID(gomock.Any(), uint64(10)).Return(group(), nil)
				f.memberships.EXPECT().Find(gomock.Any(), uint64(10), uint64(1)).Return(activeInviter, nil)
				f.memberships.EXPECT().Find(gomock.Any(), uint64(10), uint64(2)).Return(&dbmysql.Membership{Status: dbmysql.MembershipActive}, nil)
			},
			wantErr: common.ErrAlreadyMember,
		},
		{
			name: "target is banned",
			setup: func(f *sessionFixture) {
				f.sessions.EXPECT().FindByID(gomock.Any(), uint64(10)).Return(group(), nil)
				f.memberships.EXPECT().Find(gomock.Any(), uint64(10), uint64(1)).Return(activeInviter, nil)
				f.memberships.EXPECT().Find(gomock.Any(), uint64(10), uint64(2)).Return(&dbmysql.Membership{Status: dbmysql.MembershipBanned}, nil)
			},
			wantErr: common.ErrPermission,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSessionFixture(t)
			tt.setup(f)

			role := tt.role
			if role == "" {
				role = dbmysql.MemberRoleMember
			}
			_, err := f.svc.AddMember(context.Background(), 10, 2, member, role)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, f.publisher.all())
		})
	}
}

func TestAddMemberCreatesAndNotifies(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	inviter := common.Principal{ID: 1, Role: common.RoleMember, Status: common.StatusActive}

	f.sessions.EXPECT().FindByID(ctx, uint64(10)).Return(&dbmysql.Session{ID: 10, Kind: dbmysql.SessionGroup, Status: dbmysql.SessionActive, MaxParticipants: 100}, nil)
	f.memberships.EXPECT().Find(ctx, uint64(10), uint64(1)).Return(&dbmysql.Membership{Status: dbmysql.MembershipActive}, nil)
	f.memberships.EXPECT().Find(ctx, uint64(10), uint64(2)).Return(nil, common.ErrNotFound)
	f.memberships.EXPECT().CountActive(ctx, uint64(10)).Return(int64(3), nil)
	f.memberships.EXPECT().Create(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, m *dbmysql.Membership) error {
		assert.Equal(t, uint64(2), m.UserID)
		assert.True(t, m.NotificationsEnabled)
		return nil
	})

	membership, err := f.svc.AddMember(ctx, 10, 2, inviter, dbmysql.MemberRoleMember)
	assert.NoError(t, err)
	assert.Equal(t, dbmysql.MembershipActive, membership.Status)

	sessionEvents := f.publisher.onTopic(event.SessionTopic(10))
	if assert.Len(t, sessionEvents, 1) {
		added, ok := sessionEvents[0].(event.MemberAdded)
		assert.True(t, ok)
		assert.Equal(t, uint64(2), added.UserID)
		assert.Equal(t, uint64(1), added.ActorID)
	}
	assert.Len(t, f.publisher.onTopic(event.UserTopic(2)), 1)
}

func TestAddMemberReactivates(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	inviter := common.Principal{ID: 1, Role: common.RoleMember, Status: common.StatusActive}
	left := &dbmysql.Membership{ID: 55, SessionID: 10, UserID: 2, Status: dbmysql.MembershipLeft, Role: dbmysql.MemberRoleMember}

	f.sessions.EXPECT().FindByID(ctx, uint64(10)).Return(&dbmysql.Session{ID: 10, Kind: dbmysql.SessionGroup, Status: dbmysql.SessionActive}, nil)
	f.memberships.EXPECT().Find(ctx, uint64(10), uint64(1)).Return(&dbmysql.Membership{Status: dbmysql.MembershipActive}, nil)
	f.memberships.EXPECT().Find(ctx, uint64(10), uint64(2)).Return(left, nil)
	f.memberships.EXPECT().Update(ctx, left).Return(nil)

	membership, err := f.svc.AddMember(ctx, 10, 2, inviter, dbmysql.MemberRoleMember)
	assert.NoError(t, err)
	assert.Equal(t, uint64(55), membership.ID)
	assert.Equal(t, dbmysql.MembershipActive, membership.Status)
}

// A send that bumps the unread counter between the reactivation's read and
// its write must not be erased: membership updates persist transition fields
// only, never the counters.
func TestReactivationPreservesConcurrentUnread(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	inviter := common.Principal{ID: 1, Role: common.RoleMember, Status: common.StatusActive}

	store := &dbmysql.Membership{
		ID:          55,
		SessionID:   10,
		UserID:      2,
		Role:        dbmysql.MemberRoleMember,
		Status:      dbmysql.MembershipLeft,
		UnreadCount: 3,
	}

	f.sessions.EXPECT().FindByID(ctx, uint64(10)).Return(&dbmysql.Session{ID: 10, Kind: dbmysql.SessionGroup, Status: dbmysql.SessionActive}, nil)
	f.memberships.EXPECT().Find(ctx, uint64(10), uint64(1)).Return(&dbmysql.Membership{Status: dbmysql.MembershipActive}, nil)
	f.memberships.EXPECT().Find(ctx, uint64(10), uint64(2)).DoAndReturn(func(context.Context, uint64, uint64) (*dbmysql.Membership, error) {
		snapshot := *store
		// a concurrent send lands right after the row was loaded
		store.UnreadCount++
		return &snapshot, nil
	})
	f.memberships.EXPECT().Update(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, m *dbmysql.Membership) error {
		// the repository contract: transition fields only
		store.Status = m.Status
		store.Role = m.Role
		return nil
	})

	membership, err := f.svc.AddMember(ctx, 10, 2, inviter, dbmysql.MemberRoleMember)
	assert.NoError(t, err)
	assert.Equal(t, dbmysql.MembershipActive, membership.Status)
	assert.Equal(t, dbmysql.MembershipActive, store.Status)
	assert.Equal(t, uint64(4), store.UnreadCount)
}

// A two-seat group fills up, rejects the third seat, then accepts it again
// once somebody leaves.
func TestGroupCapacityLifecycle(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	admin := common.Principal{ID: 1, Role: common.RoleMember, Status: common.StatusActive}
	session := &dbmysql.Session{ID: 10, Kind: dbmysql.SessionGroup, Status: dbmysql.SessionActive, MaxParticipants: 2}

	var mu sync.Mutex
	rows := map[uint64]*dbmysql.Membership{
		1: {ID: 1, SessionID: 10, UserID: 1, Role: dbmysql.MemberRoleAdmin, Status: dbmysql.MembershipActive},
	}
	nextID := uint64(2)

	f.sessions.EXPECT().FindByID(ctx, uint64(10)).AnyTimes().Return(session, nil)
	f.memberships.EXPECT().Find(ctx, uint64(10), gomock.Any()).AnyTimes().DoAndReturn(func(_ context.Context, _, userID uint64) (*dbmysql.Membership, error) {
		mu.Lock()
		defer mu.Unlock()
		m, ok := rows[userID]
		if !ok {
			return nil, common.ErrNotFound
		}
		return m, nil
	})
	f.memberships.EXPECT().CountActive(ctx, uint64(10)).AnyTimes().DoAndReturn(func(context.Context, uint64) (int64, error) {
		mu.Lock()
		defer mu.Unlock()
		var n int64
		for _, m := range rows {
			if m.Status == dbmysql.MembershipActive {
				n++
			}
		}
		return n, nil
	})
	f.memberships.EXPECT().Create(ctx, gomock.Any()).AnyTimes().DoAndReturn(func(_ context.Context, m *dbmysql.Membership) error {
		mu.Lock()
		defer mu.Unlock()
		m.ID = nextID
		nextID++
		rows[m.UserID] = m
		return nil
	})
	f.memberships.EXPECT().Update(ctx, gomock.Any()).AnyTimes().Return(nil)

	// seat two of two
	_, err := f.svc.AddMember(ctx, 10, 2, admin, dbmysql.MemberRoleMember)
	assert.NoError(t, err)

	// the third seat does not exist
	_, err = f.svc.AddMember(ctx, 10, 3, admin, dbmysql.MemberRoleMember)
	assert.ErrorIs(t, err, common.ErrCapacity)

	// user 2 leaves, freeing the seat
	assert.NoError(t, f.svc.RemoveMember(ctx, 10, 2, common.Principal{ID: 2, Role: common.RoleMember, Status: common.StatusActive}, dbmysql.MembershipLeft))

	_, err = f.svc.AddMember(ctx, 10, 3, admin, dbmysql.MemberRoleMember)
	assert.NoError(t, err)
}

func TestRemoveMember(t *testing.T) {
	admin := &dbmysql.Membership{SessionID: 10, UserID: 1, Role: dbmysql.MemberRoleAdmin, Status: dbmysql.MembershipActive}

	t.Run("invalid reason", func(t *testing.T) {
		f := newSessionFixture(t)
		err := f.svc.RemoveMember(context.Background(), 10, 2, common.Principal{ID: 1}, dbmysql.MembershipActive)
		assert.Error(t, err)
	})

	t.Run("self leave", func(t *testing.T) {
		f := newSessionFixture(t)
		ctx := context.Background()
		target := &dbmysql.Membership{ID: 7, SessionID: 10, UserID: 2, Status: dbmysql.MembershipActive}

		f.memberships.EXPECT().Find(ctx, uint64(10), uint64(2)).Return(target, nil)
		f.memberships.EXPECT().Update(ctx, target).Return(nil)

		err := f.svc.RemoveMember(ctx, 10, 2, common.Principal{ID: 2, Role: common.RoleMember, Status: common.StatusActive}, dbmysql.MembershipLeft)
		assert.NoError(t, err)
		assert.Equal(t, dbmysql.MembershipLeft, target.Status)

		events := f.publisher.onTopic(event.SessionTopic(10))
		if assert.Len(t, events, 1) {
			removed := events[0].(event.MemberRemoved)
			assert.Equal(t, "left", removed.Reason)
		}
	})

	t.Run("non-admin cannot kick", func(t *testing.T) {
		f := newSessionFixture(t)
		ctx := context.Background()
		target := &dbmysql.Membership{SessionID: 10, UserID: 2, Status: dbmysql.MembershipActive}

		f.memberships.EXPECT().Find(ctx, uint64(10), uint64(2)).Return(target, nil)
		f.memberships.EXPECT().Find(ctx, uint64(10), uint64(3)).Return(&dbmysql.Membership{Role: dbmysql.MemberRoleMember, Status: dbmysql.MembershipActive}, nil)

		err := f.svc.RemoveMember(ctx, 10, 2, common.Principal{ID: 3, Role: common.RoleMember, Status: common.StatusActive}, dbmysql.MembershipKicked)
		assert.ErrorIs(t, err, common.ErrPermission)
	})

	t.Run("admin kicks", func(t *testing.T) {
		f := newSessionFixture(t)
		ctx := context.Background()
		target := &dbmysql.Membership{SessionID: 10, UserID: 2, Status: dbmysql.MembershipActive}

		f.memberships.EXPECT().Find(ctx, uint64(10), uint64(2)).Return(target, nil)
		f.memberships.EXPECT().Find(ctx, uint64(10), uint64(1)).Return(admin, nil)
		f.memberships.EXPECT().Update(ctx, target).Return(nil)

		err := f.svc.RemoveMember(ctx, 10, 2, common.Principal{ID: 1, Role: common.RoleMember, Status: common.StatusActive}, dbmysql.MembershipKicked)
		assert.NoError(t, err)
		assert.Equal(t, dbmysql.MembershipKicked, target.Status)
	})

	t.Run("already gone", func(t *testing.T) {
		f := newSessionFixture(t)
		ctx := context.Background()

		f.memberships.EXPECT().Find(ctx, uint64(10), uint64(2)).Return(&dbmysql.Membership{Status: dbmysql.MembershipLeft}, nil)

		err := f.svc.RemoveMember(ctx, 10, 2, common.Principal{ID: 2, Role: common.RoleMember, Status: common.StatusActive}, dbmysql.MembershipLeft)
		assert.ErrorIs(t, err, common.ErrNotFound)
	})
}

func TestIsMember(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	f.memberships.EXPECT().Find(ctx, uint64(10), uint64(1)).Return(&dbmysql.Membership{Status: dbmysql.MembershipActive}, nil)
	ok, err := f.svc.IsMember(ctx, 10, 1)
	assert.NoError(t, err)
	assert.True(t, ok)

	f.memberships.EXPECT().Find(ctx, uint64(10), uint64(2)).Return(&dbmysql.Membership{Status: dbmysql.MembershipKicked}, nil)
	ok, err = f.svc.IsMember(ctx, 10, 2)
	assert.NoError(t, err)
	assert.False(t, ok)

	f.memberships.EXPECT().Find(ctx, uint64(10), uint64(3)).Return(nil, common.ErrNotFound)
	ok, err = f.svc.IsMember(ctx, 10, 3)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestGroupCapacityUnlimitedWhenZero(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	inviter := common.Principal{ID: 1, Role: common.RoleMember, Status: common.StatusActive}

	// MaxParticipants == 0 means no cap; CountActive must not even be asked
	f.sessions.EXPECT().FindByID(ctx, uint64(10)).Return(&dbmysql.Session{ID: 10, Kind: dbmysql.SessionGroup, Status: dbmysql.SessionActive, MaxParticipants: 0}, nil)
	f.memberships.EXPECT().Find(ctx, uint64(10), uint64(1)).Return(&dbmysql.Membership{Status: dbmysql.MembershipActive}, nil)
	f.memberships.EXPECT().Find(ctx, uint64(10), uint64(2)).Return(nil, common.ErrNotFound)
	f.memberships.EXPECT().Create(ctx, gomock.Any()).Return(nil)

	_, err := f.svc.AddMember(ctx, 10, 2, inviter, dbmysql.MemberRoleMember)
	assert.NoError(t, err)
}
