package dbmysql

import "time"

// Reaction is one (message, user, emoji) row. The unique index makes add
// idempotent at the storage layer.
type Reaction struct {
	ID        uint64    `gorm:"primaryKey"`
	MessageID uint64    `gorm:"not null;uniqueIndex:idx_reactions_msg_user_emoji"`
	UserID    uint64    `gorm:"not null;uniqueIndex:idx_reactions_msg_user_emoji"`
	Emoji     string    `gorm:"size:32;not null;uniqueIndex:idx_reactions_msg_user_emoji"`
	CreatedAt time.Time
}

func (Reaction) TableName() string { return "reactions" }
