package auth

// Permission represents a named capability in the system.
type Permission string

// Permission constants.
const (
	PermDeviceRead     Permission = "device:read"
	PermDeviceManage   Permission = "device:manage"
	PermStatusOverride Permission = "status:override"
	PermCommandSend    Permission = "command:send"
	PermGroupManage    Permission = "group:manage"
	PermLogRead        Permission = "log:read"
	PermHeartbeatPost  Permission = "heartbeat:post"
)

// rolePermissions maps each role to its granted permissions.
// This is the single source of truth for the authorisation model.
// Device permissions are additionally scoped to the device's own ID
// by the API middleware.
var rolePermissions = map[Role][]Permission{
	RoleDevice: {
		PermHeartbeatPost,
	},
	RoleViewer: {
		PermDeviceRead,
		PermLogRead,
	},
	RoleAdmin: {
		PermDeviceRead,
		PermDeviceManage,
		PermStatusOverride,
		PermCommandSend,
		PermGroupManage,
		PermLogRead,
		PermHeartbeatPost,
	},
}

// HasPermission reports whether the role grants the given permission.
func HasPermission(role Role, perm Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// Authorize returns ErrForbidden when the role does not grant the given
// permission.
func Authorize(role Role, perm Permission) error {
	if !HasPermission(role, perm) {
		return ErrForbidden
	}
	return nil
}
