package repository

import (
	"context"
	"errors"
	"fmt"

	"huddle/internal/common"
	"huddle/internal/dbmysql"

	"gorm.io/gorm"
)

//go:generate go run go.uber.org/mock/mockgen -source=session_repository.go -destination=mocks/mock_session_repository.go -package=mocks

type SessionRepository interface {
	FindByID(ctx context.Context, id uint64) (*dbmysql.Session, error)
	FindByPairKey(ctx context.Context, pairKey string) (*dbmysql.Session, error)
	Create(ctx context.Context, session *dbmysql.Session) error
	// Advance moves the session's last-message pointer and bumps the message
	// counter in one atomic update. The pointer never moves backward, so
	// concurrent sends may apply in any order.
	Advance(ctx context.Context, sessionID, messageID uint64) error
}

type sessionRepo struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &sessionRepo{db: db}
}

func (r *sessionRepo) FindByID(ctx context.Context, id uint64) (*dbmysql.Session, error) {
	var session dbmysql.Session
	err := r.db.WithContext(ctx).First(&session, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: session %d", common.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepo) FindByPairKey(ctx context.Context, pairKey string) (*dbmysql.Session, error) {
	var session dbmysql.Session
	err := r.db.WithContext(ctx).
		Where("pair_key = ?", pairKey).
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: private session for pair %s", common.ErrNotFound, pairKey)
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepo) Create(ctx context.Context, session *dbmysql.Session) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *sessionRepo) Advance(ctx context.Context, sessionID, messageID uint64) error {
	// GREATEST keeps the pointer monotonic when concurrent sends commit out
	// of id order; the counter still counts every message.
	return r.db.WithContext(ctx).
		Model(&dbmysql.Session{}).
		Where("id = ?", sessionID).
		Updates(map[string]interface{}{
			"last_message_id": gorm.Expr("GREATEST(last_message_id, ?)", messageID),
			"message_count":   gorm.Expr("message_count + 1"),
		}).Error
}
