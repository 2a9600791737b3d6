package common

import "errors"

// Error taxonomy shared by every component. Call sites wrap these with
// fmt.Errorf("...: %w", Err...) so the failed constraint is named; callers
// branch with errors.Is.
var (
	ErrAuth          = errors.New("unauthenticated")
	ErrPermission    = errors.New("permission denied")
	ErrNotFound      = errors.New("not found")
	ErrAlreadyMember = errors.New("already a member")
	ErrCapacity      = errors.New("capacity exceeded")
	ErrTimeout       = errors.New("timed out")
	ErrNotConnected  = errors.New("not connected")
)
