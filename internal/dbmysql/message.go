package dbmysql

import "time"

type MessageType string

const (
	MessageText     MessageType = "text"
	MessageImage    MessageType = "image"
	MessageFile     MessageType = "file"
	MessageVoice    MessageType = "voice"
	MessageVideo    MessageType = "video"
	MessageLocation MessageType = "location"
	MessageSystem   MessageType = "system"
)

// Message is an append-mostly record inside a session. The auto-increment ID
// is the ordering and pagination cursor; SentAt is advisory only.
type Message struct {
	ID        uint64      `gorm:"primaryKey"`
	SessionID uint64      `gorm:"not null;index"`
	SenderID  uint64      `gorm:"not null;index"`
	Type      MessageType `gorm:"size:16;not null;default:text"`
	Content   string      `gorm:"type:text"`
	MediaRef  string      `gorm:"size:512"` // object key for non-text types
	ReplyToID *uint64
	Mentions  string `gorm:"type:json"` // json array of user ids

	Edited   bool `gorm:"not null;default:false"`
	EditedAt *time.Time

	// Deletion is a tombstone: the row stays, content is hidden on read.
	Deleted   bool `gorm:"not null;default:false"`
	DeletedAt *time.Time
	DeletedBy uint64 `gorm:"not null;default:0"`

	ReadCount uint64 `gorm:"not null;default:0"`

	SentAt    time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Message) TableName() string { return "messages" }
