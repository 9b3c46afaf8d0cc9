package directory

import (
	"context"
	"sync"
)

// StaticDirectory is an in-memory directory for demos/tests.
type StaticDirectory struct {
	mu      sync.RWMutex
	members map[string][]Member
	users   map[string]Member
	chain   map[string]Target
}

// NewStaticDirectory constructs an empty directory.
func NewStaticDirectory() *StaticDirectory {
	return &StaticDirectory{
		members: make(map[string][]Member),
		users:   make(map[string]Member),
		chain:   make(map[string]Target),
	}
}

// AddRole registers a role and its members.
func (d *StaticDirectory) AddRole(role string, members ...Member) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.members[role] = append(d.members[role], members...)
	for _, m := range members {
		d.users[m.ID] = m
	}
}

// AddUser registers a standalone user.
func (d *StaticDirectory) AddUser(member Member) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[member.ID] = member
}

// SetEscalation declares who a role escalates to.
func (d *StaticDirectory) SetEscalation(role string, target Target) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.chain[role] = target
}

// ResolveRoleMembers implements Directory.
func (d *StaticDirectory) ResolveRoleMembers(_ context.Context, role string) ([]Member, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	members, ok := d.members[role]
	if !ok {
		return nil, ErrUnknownRole
	}
	return append([]Member(nil), members...), nil
}

// GetUser implements Directory.
func (d *StaticDirectory) GetUser(_ context.Context, userID string) (*Member, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	member, ok := d.users[userID]
	if !ok {
		return nil, nil
	}
	return &member, nil
}

// EscalationTarget implements Directory.
func (d *StaticDirectory) EscalationTarget(_ context.Context, role string) (Target, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	target, ok := d.chain[role]
	if !ok {
		return Target{}, nil
	}
	return target, nil
}
