package domain

import "strings"

// Role represents the platform role of the actor requesting an action.
type Role string

const (
	RoleBuyer      Role = "buyer"
	RoleSeller     Role = "seller"
	RoleRider      Role = "rider"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// Roles lists every known role.
var Roles = []Role{RoleBuyer, RoleSeller, RoleRider, RoleAdmin, RoleSuperAdmin}

// ParseRole converts a raw role string into a Role.
func ParseRole(raw string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Roles {
		if r == known {
			return r, true
		}
	}
	return "", false
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the role has administrative privileges.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// Actor identifies who is requesting an action.
type Actor struct {
	ID   string
	Role Role
}
