package heartbeat

import (
	"time"

	"github.com/kioskfleet/fleet-core/internal/device"
)

// Report is the payload a device posts on each heartbeat.
//
// All fields are optional. Info blocks replace the stored blob wholesale
// when present; absent blocks leave the stored value untouched.
type Report struct {
	// Timestamp is the device's own clock reading. When absent or
	// unparseable the server's receive time is used instead.
	Timestamp *time.Time `json:"timestamp,omitempty"`

	HardwareInfo device.Info `json:"hardware_info,omitempty"`
	SoftwareInfo device.Info `json:"software_info,omitempty"`
	NetworkInfo  device.Info `json:"network_info,omitempty"`

	// Logs is a batch of log entries buffered on the device since its
	// last report. Entries beyond the per-heartbeat cap are dropped.
	Logs []IncomingLog `json:"logs,omitempty"`
}

// IncomingLog is a single device-side log entry carried in a heartbeat.
type IncomingLog struct {
	Timestamp *time.Time  `json:"timestamp,omitempty"`
	Level     string      `json:"level"`
	Message   string      `json:"message"`
	Category  string      `json:"category,omitempty"`
	Metadata  device.Info `json:"metadata,omitempty"`
}

// Result describes the outcome of one processed heartbeat.
type Result struct {
	DeviceID   string        `json:"device_id"`
	Previous   device.Status `json:"previous_status"`
	Status     device.Status `json:"status"`
	Changed    bool          `json:"status_changed"`
	LogsKept   int           `json:"logs_accepted"`
	ReceivedAt time.Time     `json:"received_at"`
}
