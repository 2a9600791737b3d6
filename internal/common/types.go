package common

type Role string

const (
	RoleMember    Role = "member"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

type PrincipalStatus string

const (
	StatusActive    PrincipalStatus = "active"
	StatusSuspended PrincipalStatus = "suspended"
	StatusDeleted   PrincipalStatus = "deleted"
)

// Principal is what the authentication collaborator resolves a bearer
// credential to. The realtime core never loads user rows itself.
type Principal struct {
	ID     uint64
	Role   Role
	Status PrincipalStatus
}

func (p Principal) Active() bool {
	return p.Status == StatusActive
}

// Privileged reports whether the principal holds a platform-level role that
// bypasses sender-only and edit-window restrictions on messages.
func (p Principal) Privileged() bool {
	return p.Role == RoleAdmin || p.Role == RoleModerator
}
