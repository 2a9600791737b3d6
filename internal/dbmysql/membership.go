package dbmysql

import "time"

type MemberRole string

const (
	MemberRoleAdmin  MemberRole = "admin"
	MemberRoleMember MemberRole = "member"
)

type MembershipStatus string

const (
	MembershipActive MembershipStatus = "active"
	MembershipLeft   MembershipStatus = "left"
	MembershipKicked MembershipStatus = "kicked"
	MembershipBanned MembershipStatus = "banned"
)

// Membership binds a principal to a session together with their per-session
// state. Unique on (session, user); leaving flips Status, re-joining
// reactivates the same row.
type Membership struct {
	ID        uint64           `gorm:"primaryKey"`
	SessionID uint64           `gorm:"not null;uniqueIndex:idx_memberships_session_user"`
	UserID    uint64           `gorm:"not null;uniqueIndex:idx_memberships_session_user;index"`
	Role      MemberRole       `gorm:"size:16;not null;default:member"`
	Status    MembershipStatus `gorm:"size:16;not null;default:active;index"`

	Muted      bool       `gorm:"not null;default:false"`
	MutedUntil *time.Time // nil = indefinite while Muted is set

	Pinned               bool `gorm:"not null;default:false"`
	NotificationsEnabled bool `gorm:"not null;default:true"`

	UnreadCount       uint64 `gorm:"not null;default:0"`
	LastReadMessageID uint64 `gorm:"not null;default:0"`
	LastReadAt        *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Membership) TableName() string { return "memberships" }

// MutedNow reports whether the mute applies at the given instant. Mutes with
// an expiry self-expire by comparison; no timer ever clears them.
func (m *Membership) MutedNow(now time.Time) bool {
	if !m.Muted {
		return false
	}
	if m.MutedUntil != nil && now.After(*m.MutedUntil) {
		return false
	}
	return true
}
