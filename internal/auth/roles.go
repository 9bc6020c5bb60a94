package auth

// Role is an authorisation tier.
type Role string

const (
	// RoleViewer can read bridge state.
	RoleViewer Role = "viewer"

	// RoleOperator can also change the device's operating mode.
	RoleOperator Role = "operator"
)

// ValidRoles lists the roles a token may carry.
var ValidRoles = []Role{RoleViewer, RoleOperator}

// IsValidRole reports whether r is a known role.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// Permission is a named capability.
type Permission string

// Permission constants.
const (
	PermStatusRead  Permission = "status:read"
	PermModeControl Permission = "mode:control"
)

// rolePermissions maps each role to its granted permissions.
var rolePermissions = map[Role][]Permission{
	RoleViewer: {
		PermStatusRead,
	},
	RoleOperator: {
		PermStatusRead,
		PermModeControl,
	},
}

// HasPermission returns true if the given role has the specified permission.
func HasPermission(role Role, perm Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}
