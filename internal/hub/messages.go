package hub

import (
	"time"

	"github.com/kioskfleet/fleet-core/internal/device"
)

// Message type constants for the WebSocket protocol.
const (
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypePing        = "ping"
	TypePong        = "pong"
	TypeEvent       = "event"
	TypeCommand     = "command"
	TypeResponse    = "response"
	TypeError       = "error"
)

// Well-known broadcast channels.
const (
	// ChannelStatus carries device status change events.
	// Admin and viewer connections subscribe to follow the whole fleet.
	ChannelStatus = "device.status_changed"

	// ChannelDevices carries device lifecycle events (registered, deleted).
	ChannelDevices = "device.lifecycle"

	// ChannelFleet is joined by every device connection, so a single
	// broadcast (config push, fleet-wide notice) reaches all of them.
	ChannelFleet = "devices"
)

// Message represents a message sent to/from a WebSocket client.
type Message struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// SubscribePayload is the payload for subscribe/unsubscribe messages.
type SubscribePayload struct {
	Channels []string `json:"channels"`
}

// statusEventPayload is the wire form of a device status change.
// device_id_string duplicates device_id: older dashboard consumers read
// the string field, newer ones read device_id. Both carry the external
// device identifier.
type statusEventPayload struct {
	DeviceID       string        `json:"device_id"`
	DeviceIDString string        `json:"device_id_string"`
	Status         device.Status `json:"status"`
	LastSeen       time.Time     `json:"last_seen"`
}

// CommandPayload is the payload delivered to a device connection when an
// operator dispatches a command.
type CommandPayload struct {
	CommandID  string         `json:"command_id"`
	DeviceID   string         `json:"device_id"`
	Command    string         `json:"command"`
	Parameters map[string]any `json:"parameters,omitempty"`
	IssuedBy   string         `json:"issued_by,omitempty"`
}

// DeviceChannel returns the per-device event channel name.
//
// Example: device.kiosk-lobby-01
func DeviceChannel(deviceID string) string {
	return "device." + deviceID
}
