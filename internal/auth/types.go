package auth

import (
	"errors"
)

// Role represents an authorisation tier in the system.
type Role string

const (
	// RoleDevice is a managed kiosk identity (not a user account).
	// Device tokens may post heartbeats and hold a WebSocket connection
	// for their own device, nothing else.
	RoleDevice Role = "device"

	// RoleViewer is a read-only operator: may list devices, read status,
	// logs, and fleet stats, and follow the event stream.
	RoleViewer Role = "viewer"

	// RoleAdmin has full fleet control: device and group management,
	// status overrides, and command dispatch.
	RoleAdmin Role = "admin"
)

// ValidRoles is the set of valid operator roles (excludes device —
// devices are not users).
var ValidRoles = []Role{RoleViewer, RoleAdmin}

// IsValidUserRole returns true if the role is a valid role for an
// operator account.
func IsValidUserRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// Domain-specific errors for auth operations.
var (
	ErrTokenExpired = errors.New("token has expired")
	ErrTokenInvalid = errors.New("invalid token")
	ErrForbidden    = errors.New("insufficient permissions")
)
