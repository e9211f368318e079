package hub

import "errors"

// Domain-specific errors for hub operations.
var (
	// ErrDeviceNotConnected is returned when a command targets a device
	// with no active WebSocket connection.
	ErrDeviceNotConnected = errors.New("hub: device not connected")
)
