package auth

import "strings"

// Role is the access level carried in a token. Viewers read reports,
// operators may trigger detector passes, admins may recompute baselines and
// act across all partners.
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

// NormalizeRole lowercases and validates a role claim.
func NormalizeRole(value string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(value)))
	_, ok := roleRanks[role]
	return role, ok
}

// RoleAtLeast reports whether role meets or exceeds required. Unknown roles
// rank below viewer.
func RoleAtLeast(role, required Role) bool {
	return roleRanks[role] >= roleRanks[required]
}
