package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"huddle/internal/common"
	"huddle/internal/dbmysql"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

//go:generate go run go.uber.org/mock/mockgen -source=membership_repository.go -destination=mocks/mock_membership_repository.go -package=mocks

type MembershipRepository interface {
	Find(ctx context.Context, sessionID, userID uint64) (*dbmysql.Membership, error)
	ListActive(ctx context.Context, sessionID uint64) ([]*dbmysql.Membership, error)
	CountActive(ctx context.Context, sessionID uint64) (int64, error)
	Create(ctx context.Context, membership *dbmysql.Membership) error
	// Update persists the transition fields (status, role, mute, pin,
	// notification flags). The counter columns are never written here; they
	// belong to the atomic IncrementUnread/MarkRead updates below.
	Update(ctx context.Context, membership *dbmysql.Membership) error
	// IncrementUnread atomically bumps unread_count for every active member of
	// the session except the sender. No lost updates under concurrent sends.
	IncrementUnread(ctx context.Context, sessionID, exceptUserID uint64) error
	// MarkRead advances the monotonic last-read pointer and zeroes the unread
	// counter, returning the pointer value it advanced from. applied is false
	// when uptoMessageID is not ahead of the current pointer (the call is
	// then a no-op). Concurrent calls serialize on the row, so the
	// (prev, upto] spans of successive advances never overlap.
	MarkRead(ctx context.Context, membershipID, uptoMessageID uint64, at time.Time) (prev uint64, applied bool, err error)
}

type membershipRepo struct {
	db *gorm.DB
}

func NewMembershipRepository(db *gorm.DB) MembershipRepository {
	return &membershipRepo{db: db}
}

func (r *membershipRepo) Find(ctx context.Context, sessionID, userID uint64) (*dbmysql.Membership, error) {
	var m dbmysql.Membership
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND user_id = ?", sessionID, userID).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: membership of user %d in session %d", common.ErrNotFound, userID, sessionID)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *membershipRepo) ListActive(ctx context.Context, sessionID uint64) ([]*dbmysql.Membership, error) {
	var members []*dbmysql.Membership
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND status = ?", sessionID, dbmysql.MembershipActive).
		Find(&members).Error
	return members, err
}

func (r *membershipRepo) CountActive(ctx context.Context, sessionID uint64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&dbmysql.Membership{}).
		Where("session_id = ? AND status = ?", sessionID, dbmysql.MembershipActive).
		Count(&n).Error
	return n, err
}

func (r *membershipRepo) Create(ctx context.Context, membership *dbmysql.Membership) error {
	return r.db.WithContext(ctx).Create(membership).Error
}

func (r *membershipRepo) Update(ctx context.Context, membership *dbmysql.Membership) error {
	// Only the fields the services transition. A full-row save would write
	// back a stale unread_count loaded before a concurrent IncrementUnread.
	return r.db.WithContext(ctx).
		Model(membership).
		Select("status", "role", "muted", "muted_until", "pinned", "notifications_enabled").
		Updates(membership).Error
}

func (r *membershipRepo) IncrementUnread(ctx context.Context, sessionID, exceptUserID uint64) error {
	return r.db.WithContext(ctx).
		Model(&dbmysql.Membership{}).
		Where("session_id = ? AND user_id <> ? AND status = ?",
			sessionID, exceptUserID, dbmysql.MembershipActive).
		Update("unread_count", gorm.Expr("unread_count + 1")).Error
}

func (r *membershipRepo) MarkRead(ctx context.Context, membershipID, uptoMessageID uint64, at time.Time) (prev uint64, applied bool, err error) {
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m dbmysql.Membership
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&m, membershipID).Error; err != nil {
			return err
		}
		// The row lock makes prev exclusive to this call: a concurrent
		// advance either ran before (we see its pointer) or waits behind us.
		if m.LastReadMessageID >= uptoMessageID {
			return nil
		}
		prev = m.LastReadMessageID
		applied = true
		return tx.Model(&dbmysql.Membership{}).
			Where("id = ?", membershipID).
			Updates(map[string]interface{}{
				"last_read_message_id": uptoMessageID,
				"unread_count":         0,
				"last_read_at":         at,
			}).Error
	})
	return prev, applied, err
}
