package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"huddle/internal/chat/repository"
	"huddle/internal/common"
	"huddle/internal/dbmysql"
	"huddle/internal/event"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

//go:generate go run go.uber.org/mock/mockgen -source=session_service.go -destination=mocks/mock_session_service.go -package=mocks

// Publisher is the slice of the connection registry the services need.
type Publisher interface {
	Publish(topic string, p event.Payload)
}

// GroupSettings are the creator-supplied knobs of a group session.
type GroupSettings struct {
	Name            string `validate:"required,min=1,max=128"`
	MaxParticipants int    `validate:"gte=0,lte=10000"`
	MuteAll         bool
}

// SessionService enforces who can see, join and administer sessions.
type SessionService interface {
	CreatePrivateSession(ctx context.Context, a, b uint64) (*dbmysql.Session, error)
	CreateGroupSession(ctx context.Context, creator common.Principal, settings GroupSettings) (*dbmysql.Session, error)
	AddMember(ctx context.Context, sessionID, targetID uint64, invitedBy common.Principal, role dbmysql.MemberRole) (*dbmysql.Membership, error)
	RemoveMember(ctx context.Context, sessionID, targetID uint64, actor common.Principal, reason dbmysql.MembershipStatus) error
	IsMember(ctx context.Context, sessionID, userID uint64) (bool, error)
	IsAdmin(membership *dbmysql.Membership) bool
	IsMuted(membership *dbmysql.Membership) bool
}

type sessionService struct {
	sessions    repository.SessionRepository
	memberships repository.MembershipRepository
	publisher   Publisher
	validate    *validator.Validate
	log         zerolog.Logger
	now         func() time.Time

	// Serializes private-session creation per unordered pair so concurrent
	// callers converge on exactly one session. The unique pair_key index is
	// the cross-process backstop.
	pairMu    sync.Mutex
	pairLocks map[string]*sync.Mutex
}

func NewSessionService(
	sessions repository.SessionRepository,
	memberships repository.MembershipRepository,
	publisher Publisher,
	log zerolog.Logger,
) SessionService {
	return &sessionService{
		sessions:    sessions,
		memberships: memberships,
		publisher:   publisher,
		validate:    validator.New(),
		log:         log.With().Str("component", "session_service").Logger(),
		now:         time.Now,
		pairLocks:   make(map[string]*sync.Mutex),
	}
}

func (s *sessionService) pairLock(key string) *sync.Mutex {
	s.pairMu.Lock()
	defer s.pairMu.Unlock()
	mu, ok := s.pairLocks[key]
	if !ok {
		mu = &sync.Mutex{}
		s.pairLocks[key] = mu
	}
	return mu
}

// CreatePrivateSession returns the existing session linking the unordered
// pair {a,b} if one exists, creating it with two active memberships
// otherwise.
func (s *sessionService) CreatePrivateSession(ctx context.Context, a, b uint64) (*dbmysql.Session, error) {
	if a == 0 || b == 0 || a == b {
		return nil, errors.New("a private session needs two distinct participants")
	}

	key := dbmysql.PairKey(a, b)
	mu := s.pairLock(key)
	mu.Lock()
	defer mu.Unlock()

	existing, err := s.sessions.FindByPairKey(ctx, key)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}

	session := &dbmysql.Session{
		Kind:            dbmysql.SessionPrivate,
		CreatorID:       a,
		MaxParticipants: 2,
		Status:          dbmysql.SessionActive,
		PairKey:         &key,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create private session: %w", err)
	}

	for _, userID := range []uint64{a, b} {
		m := &dbmysql.Membership{
			SessionID:            session.ID,
			UserID:               userID,
			Role:                 dbmysql.MemberRoleMember,
			Status:               dbmysql.MembershipActive,
			NotificationsEnabled: true,
		}
		if err := s.memberships.Create(ctx, m); err != nil {
			return nil, fmt.Errorf("failed to create membership for user %d: %w", userID, err)
		}
	}

	s.log.Info().Uint64("session", session.ID).Str("pair", key).Msg("private session created")
	return session, nil
}

func (s *sessionService) CreateGroupSession(ctx context.Context, creator common.Principal, settings GroupSettings) (*dbmysql.Session, error) {
	if err := s.validate.Struct(settings); err != nil {
		return nil, fmt.Errorf("invalid group settings: %w", err)
	}

	session := &dbmysql.Session{
		Kind:            dbmysql.SessionGroup,
		Name:            settings.Name,
		CreatorID:       creator.ID,
		MaxParticipants: settings.MaxParticipants,
		MuteAll:         settings.MuteAll,
		Status:          dbmysql.SessionActive,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create group session: %w", err)
	}

	m := &dbmysql.Membership{
		SessionID:            session.ID,
		UserID:               creator.ID,
		Role:                 dbmysql.MemberRoleAdmin,
		Status:               dbmysql.MembershipActive,
		NotificationsEnabled: true,
	}
	if err := s.memberships.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to create creator membership: %w", err)
	}

	s.log.Info().Uint64("session", session.ID).Uint64("creator", creator.ID).Msg("group session created")
	return session, nil
}

func (s *sessionService) AddMember(ctx context.Context, sessionID, targetID uint64, invitedBy common.Principal, role dbmysql.MemberRole) (*dbmysql.Membership, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Kind == dbmysql.SessionPrivate {
		return nil, fmt.Errorf("%w: private session membership is fixed", common.ErrPermission)
	}
	if session.Status != dbmysql.SessionActive {
		return nil, fmt.Errorf("%w: session is %s", common.ErrPermission, session.Status)
	}

	inviter, err := s.memberships.Find(ctx, sessionID, invitedBy.ID)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}
	inviterActive := inviter != nil && inviter.Status == dbmysql.MembershipActive
	if !inviterActive && !invitedBy.Privileged() {
		return nil, fmt.Errorf("%w: inviter is not an active member", common.ErrPermission)
	}
	if role == dbmysql.MemberRoleAdmin && !s.IsAdmin(inviter) && !invitedBy.Privileged() {
		return nil, fmt.Errorf("%w: only admins may grant the admin role", common.ErrPermission)
	}

	existing, err := s.memberships.Find(ctx, sessionID, targetID)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		switch existing.Status {
		case dbmysql.MembershipActive:
			return nil, fmt.Errorf("%w: user %d", common.ErrAlreadyMember, targetID)
		case dbmysql.MembershipBanned:
			return nil, fmt.Errorf("%w: user %d is banned from the session", common.ErrPermission, targetID)
		}
	}

	if session.MaxParticipants > 0 {
		active, err := s.memberships.CountActive(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if active >= int64(session.MaxParticipants) {
			return nil, fmt.Errorf("%w: session holds %d of %d members", common.ErrCapacity, active, session.MaxParticipants)
		}
	}

	var membership *dbmysql.Membership
	if existing != nil {
		// Re-join after left/kicked reactivates the row, keeping history.
		existing.Status = dbmysql.MembershipActive
		existing.Role = role
		if err := s.memberships.Update(ctx, existing); err != nil {
			return nil, err
		}
		membership = existing
	} else {
		membership = &dbmysql.Membership{
			SessionID:            sessionID,
			UserID:               targetID,
			Role:                 role,
			Status:               dbmysql.MembershipActive,
			NotificationsEnabled: true,
		}
		if err := s.memberships.Create(ctx, membership); err != nil {
			return nil, err
		}
	}

	s.publisher.Publish(event.SessionTopic(sessionID), event.MemberAdded{
		SessionID: sessionID,
		UserID:    targetID,
		Role:      string(role),
		ActorID:   invitedBy.ID,
	})
	s.publisher.Publish(event.UserTopic(targetID), event.Notification{
		UserID: targetID,
		Kind:   "session.invited",
	})
	return membership, nil
}

func (s *sessionService) RemoveMember(ctx context.Context, sessionID, targetID uint64, actor common.Principal, reason dbmysql.MembershipStatus) error {
	switch reason {
	case dbmysql.MembershipLeft, dbmysql.MembershipKicked, dbmysql.MembershipBanned:
	default:
		return fmt.Errorf("invalid removal reason %q", reason)
	}

	membership, err := s.memberships.Find(ctx, sessionID, targetID)
	if err != nil {
		return err
	}
	if membership.Status != dbmysql.MembershipActive {
		return fmt.Errorf("%w: active membership of user %d in session %d", common.ErrNotFound, targetID, sessionID)
	}

	selfLeave := actor.ID == targetID && reason == dbmysql.MembershipLeft
	if !selfLeave && !actor.Privileged() {
		actorMembership, err := s.memberships.Find(ctx, sessionID, actor.ID)
		if err != nil {
			return fmt.Errorf("%w: only admins may remove members", common.ErrPermission)
		}
		if !s.IsAdmin(actorMembership) || actorMembership.Status != dbmysql.MembershipActive {
			return fmt.Errorf("%w: only admins may remove members", common.ErrPermission)
		}
	}

	// History is kept; only the status flips.
	membership.Status = reason
	if err := s.memberships.Update(ctx, membership); err != nil {
		return err
	}

	s.publisher.Publish(event.SessionTopic(sessionID), event.MemberRemoved{
		SessionID: sessionID,
		UserID:    targetID,
		Reason:    string(reason),
		ActorID:   actor.ID,
	})
	return nil
}

func (s *sessionService) IsMember(ctx context.Context, sessionID, userID uint64) (bool, error) {
	membership, err := s.memberships.Find(ctx, sessionID, userID)
	if errors.Is(err, common.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return membership.Status == dbmysql.MembershipActive, nil
}

func (s *sessionService) IsAdmin(membership *dbmysql.Membership) bool {
	return membership != nil && membership.Role == dbmysql.MemberRoleAdmin
}

func (s *sessionService) IsMuted(membership *dbmysql.Membership) bool {
	return membership != nil && membership.MutedNow(s.now())
}
