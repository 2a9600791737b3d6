package repository

import (
	"context"

	"huddle/internal/dbmysql"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

//go:generate go run go.uber.org/mock/mockgen -source=reaction_repository.go -destination=mocks/mock_reaction_repository.go -package=mocks

type ReactionRepository interface {
	// Add is idempotent: reacting twice with the same emoji is a no-op.
	Add(ctx context.Context, reaction *dbmysql.Reaction) error
	// Remove is idempotent: removing an absent reaction is a no-op.
	Remove(ctx context.Context, messageID, userID uint64, emoji string) error
	ListByMessage(ctx context.Context, messageID uint64) ([]*dbmysql.Reaction, error)
	ListByMessages(ctx context.Context, messageIDs []uint64) ([]*dbmysql.Reaction, error)
}

type reactionRepo struct {
	db *gorm.DB
}

func NewReactionRepository(db *gorm.DB) ReactionRepository {
	return &reactionRepo{db: db}
}

func (r *reactionRepo) Add(ctx context.Context, reaction *dbmysql.Reaction) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(reaction).Error
}

func (r *reactionRepo) Remove(ctx context.Context, messageID, userID uint64, emoji string) error {
	return r.db.WithContext(ctx).
		Where("message_id = ? AND user_id = ? AND emoji = ?", messageID, userID, emoji).
		Delete(&dbmysql.Reaction{}).Error
}

func (r *reactionRepo) ListByMessage(ctx context.Context, messageID uint64) ([]*dbmysql.Reaction, error) {
	var reactions []*dbmysql.Reaction
	err := r.db.WithContext(ctx).
		Where("message_id = ?", messageID).
		Find(&reactions).Error
	return reactions, err
}

func (r *reactionRepo) ListByMessages(ctx context.Context, messageIDs []uint64) ([]*dbmysql.Reaction, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}
	var reactions []*dbmysql.Reaction
	err := r.db.WithContext(ctx).
		Where("message_id IN ?", messageIDs).
		Find(&reactions).Error
	return reactions, err
}
