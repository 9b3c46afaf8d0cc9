package auth

import "strings"

// Role gates what a caller may do. Viewers read their own inbox and
// stream, operators additionally manage rules, acknowledge escalations
// and watch every user's stream, admins additionally run exports and
// replays.
type Role string

const (
	RoleViewer   Role = "viewer"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

var roleRanks = map[Role]int{
	RoleViewer:   1,
	RoleOperator: 2,
	RoleAdmin:    3,
}

// NormalizeRole folds case and whitespace and rejects unknown roles.
func NormalizeRole(value string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := roleRanks[role]; !ok {
		return "", false
	}
	return role, true
}

// RoleAtLeast reports whether role satisfies the required role.
func RoleAtLeast(role Role, required Role) bool {
	return roleRanks[role] >= roleRanks[required]
}

// CanObserveAll reports whether the role may watch notification
// streams of users other than itself.
func (r Role) CanObserveAll() bool {
	return RoleAtLeast(r, RoleOperator)
}
