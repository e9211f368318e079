package device

import (
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

// maxNameLength is the maximum allowed device or group name length.
const maxNameLength = 128

// deviceIDPattern defines the valid format for externally chosen device IDs:
// alphanumeric with dots, hyphens, underscores, 1-64 characters.
// Examples: "KIOSK-001", "lobby.display.2".
var deviceIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

// ValidateDevice checks a device for structural validity before persistence.
// Returns a wrapped sentinel error describing the first failure found.
func ValidateDevice(d *Device) error {
	if d == nil {
		return ErrInvalidDevice
	}

	if !deviceIDPattern.MatchString(d.ID) {
		return fmt.Errorf("%w: %q", ErrInvalidDeviceID, d.ID)
	}

	if d.Name == "" || len(d.Name) > maxNameLength {
		return fmt.Errorf("%w: must be 1-%d characters", ErrInvalidName, maxNameLength)
	}

	if !IsValidDeviceType(d.Type) {
		return fmt.Errorf("%w: %q", ErrInvalidDeviceType, d.Type)
	}

	if d.Status != "" && !IsValidStatus(d.Status) {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, d.Status)
	}

	return nil
}

// ValidateGroup checks a device group for structural validity.
func ValidateGroup(g *Group) error {
	if g == nil {
		return fmt.Errorf("%w: group is required", ErrInvalidDevice)
	}
	if g.Name == "" || len(g.Name) > maxNameLength {
		return fmt.Errorf("%w: must be 1-%d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// GenerateID returns a new random identifier for server-assigned IDs
// (groups, log entries). Device IDs are externally chosen and never generated.
func GenerateID() string {
	return uuid.New().String()
}
