package repository

import (
	"context"
	"errors"
	"fmt"

	"huddle/internal/common"
	"huddle/internal/dbmysql"

	"gorm.io/gorm"
)

//go:generate go run go.uber.org/mock/mockgen -source=message_repository.go -destination=mocks/mock_message_repository.go -package=mocks

type MessageRepository interface {
	Create(ctx context.Context, msg *dbmysql.Message) error
	FindByID(ctx context.Context, id uint64) (*dbmysql.Message, error)
	Update(ctx context.Context, msg *dbmysql.Message) error
	// History returns up to limit messages of the session with id < beforeID,
	// newest first. beforeID == 0 means "from the end".
	History(ctx context.Context, sessionID, beforeID uint64, limit int) ([]*dbmysql.Message, error)
	// IncrementReadCounts bumps read_count on the reader's newly-read slice
	// (afterID, uptoID], excluding the reader's own messages.
	IncrementReadCounts(ctx context.Context, sessionID, afterID, uptoID, readerID uint64) error
}

type messageRepo struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepo{db: db}
}

func (r *messageRepo) Create(ctx context.Context, msg *dbmysql.Message) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

func (r *messageRepo) FindByID(ctx context.Context, id uint64) (*dbmysql.Message, error) {
	var msg dbmysql.Message
	err := r.db.WithContext(ctx).First(&msg, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: message %d", common.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *messageRepo) Update(ctx context.Context, msg *dbmysql.Message) error {
	return r.db.WithContext(ctx).Save(msg).Error
}

func (r *messageRepo) History(ctx context.Context, sessionID, beforeID uint64, limit int) ([]*dbmysql.Message, error) {
	q := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID)
	if beforeID > 0 {
		q = q.Where("id < ?", beforeID)
	}
	var messages []*dbmysql.Message
	err := q.Order("id DESC").Limit(limit).Find(&messages).Error
	return messages, err
}

func (r *messageRepo) IncrementReadCounts(ctx context.Context, sessionID, afterID, uptoID, readerID uint64) error {
	return r.db.WithContext(ctx).
		Model(&dbmysql.Message{}).
		Where("session_id = ? AND id > ? AND id <= ? AND sender_id <> ?",
			sessionID, afterID, uptoID, readerID).
		Update("read_count", gorm.Expr("read_count + 1")).Error
}
