package directory

import (
	"context"
	"errors"
)

// ErrUnknownRole indicates a role with no directory entry.
var ErrUnknownRole = errors.New("directory: unknown role")

// Member is a resolved directory user.
type Member struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// Target is the next responsible party in the escalation chain. Either
// Role or UserID is set, never both.
type Target struct {
	Role   string `json:"role,omitempty"`
	UserID string `json:"user_id,omitempty"`
	Name   string `json:"name,omitempty"`
}

// Empty reports whether the target resolves to nobody.
func (t Target) Empty() bool { return t.Role == "" && t.UserID == "" }

// Directory supplies identities and role membership. The engine treats
// the escalation chain as an opaque lookup and never hardcodes it.
type Directory interface {
	// ResolveRoleMembers returns the active members of a role.
	ResolveRoleMembers(ctx context.Context, role string) ([]Member, error)
	// GetUser returns a single member by user id.
	GetUser(ctx context.Context, userID string) (*Member, error)
	// EscalationTarget returns who the given role escalates to.
	EscalationTarget(ctx context.Context, role string) (Target, error)
}
