package dbmysql

import (
	"fmt"
	"time"
)

type SessionKind string

const (
	SessionPrivate SessionKind = "private"
	SessionGroup   SessionKind = "group"
)

type SessionStatus string

const (
	SessionActive   SessionStatus = "active"
	SessionArchived SessionStatus = "archived"
	SessionDeleted  SessionStatus = "deleted"
)

// Session is one conversation, private (exactly two members) or group.
type Session struct {
	ID              uint64        `gorm:"primaryKey"`
	Kind            SessionKind   `gorm:"size:16;not null;index"`
	Name            string        `gorm:"size:128"` // group sessions only
	CreatorID       uint64        `gorm:"not null;index"`
	MaxParticipants int           `gorm:"not null;default:0"` // 0 = unbounded
	MuteAll         bool          `gorm:"not null;default:false"`
	Status          SessionStatus `gorm:"size:16;not null;default:active"`

	// PairKey is "min:max" of the two participant ids for private sessions,
	// NULL for groups (NULLs never collide in the unique index). It backstops
	// the service pair lock so concurrent creators converge on one row.
	PairKey *string `gorm:"size:48;uniqueIndex"`

	LastMessageID uint64 `gorm:"not null;default:0"`
	MessageCount  uint64 `gorm:"not null;default:0"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Session) TableName() string { return "sessions" }

// PairKey builds the canonical unordered-pair key for a private session.
func PairKey(a, b uint64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}
