package device

import "time"

// Device represents a managed remote unit (kiosk, tablet, display, signage)
// tracked by the fleet core. This matches the database schema in
// migrations/20260815_120000_initial_schema.up.sql.
type Device struct {
	// Identity. ID is externally chosen, unique, and immutable after
	// registration.
	ID          string `json:"device_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// Classification
	Type DeviceType `json:"device_type"`

	// Operational state, governed by the state machine.
	Status Status `json:"status"`

	// Optional group membership (weak reference: nulled when the group is
	// deleted, never cascades to the device).
	GroupID *string `json:"group_id,omitempty"`

	// Free-form telemetry blobs reported by the device. Opaque to the core:
	// validated only for being well-formed structured data.
	Location     Info `json:"location,omitempty"`
	HardwareInfo Info `json:"hardware_info,omitempty"`
	SoftwareInfo Info `json:"software_info,omitempty"`
	NetworkInfo  Info `json:"network_info,omitempty"`

	// Liveness timestamps
	LastSeen      *time.Time `json:"last_seen,omitempty"`
	LastHeartbeat *time.Time `json:"last_heartbeat,omitempty"`

	// Audit fields
	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Info holds an opaque structured document reported by a device.
//
// Examples:
//   - hardware_info: {"cpu_model": "Celeron N4120", "memory_total": 8192}
//   - network_info:  {"interfaces": [{"name": "eth0", "state": "UP"}]}
type Info map[string]any

// DeepCopy creates a complete independent copy of the Device.
// All map fields are cloned so modifications to the copy do not
// affect the original.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}

	cpy := *d

	cpy.Location = deepCopyMap(d.Location)
	cpy.HardwareInfo = deepCopyMap(d.HardwareInfo)
	cpy.SoftwareInfo = deepCopyMap(d.SoftwareInfo)
	cpy.NetworkInfo = deepCopyMap(d.NetworkInfo)

	// Pointer fields (*string, *time.Time) don't need deep copy
	// because strings and time.Time are immutable in Go

	return &cpy
}

// deepCopyMap creates a deep copy of a map[string]any.
// Nested maps and slices are recursively copied.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

// deepCopyValue recursively copies a value, handling nested maps and slices.
func deepCopyValue(v any) any {
	if v == nil {
		return nil
	}
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		// Primitives (string, bool, int, float64, etc.) are safe to copy by value
		return v
	}
}

// DeviceType represents the physical form factor of a managed unit.
type DeviceType string //nolint:revive // device.DeviceType is clearer than device.Type in calling code

// DeviceType constants.
const (
	DeviceTypeKiosk   DeviceType = "kiosk"
	DeviceTypeTablet  DeviceType = "tablet"
	DeviceTypeDisplay DeviceType = "display"
	DeviceTypeSignage DeviceType = "signage"
)

// AllDeviceTypes returns all valid device type values.
func AllDeviceTypes() []DeviceType {
	return []DeviceType{
		DeviceTypeKiosk, DeviceTypeTablet, DeviceTypeDisplay, DeviceTypeSignage,
	}
}

// IsValidDeviceType returns true if t is a recognised device type.
func IsValidDeviceType(t DeviceType) bool {
	switch t {
	case DeviceTypeKiosk, DeviceTypeTablet, DeviceTypeDisplay, DeviceTypeSignage:
		return true
	default:
		return false
	}
}

// Status represents the operational state of a device.
type Status string

// Status constants.
const (
	// StatusOffline is the initial state and the state the sweeper demotes
	// to when heartbeats stop arriving.
	StatusOffline Status = "offline"

	// StatusOnline means a heartbeat arrived within the staleness timeout.
	StatusOnline Status = "online"

	// StatusMaintenance is operator-declared; heartbeats never clear it.
	StatusMaintenance Status = "maintenance"

	// StatusError is operator-declared; heartbeats never clear it.
	StatusError Status = "error"
)

// AllStatuses returns all valid status values.
func AllStatuses() []Status {
	return []Status{StatusOffline, StatusOnline, StatusMaintenance, StatusError}
}

// IsValidStatus returns true if s is a recognised device status.
func IsValidStatus(s Status) bool {
	switch s {
	case StatusOffline, StatusOnline, StatusMaintenance, StatusError:
		return true
	default:
		return false
	}
}

// LogLevel is the severity of a device log entry.
type LogLevel string

// LogLevel constants.
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
	LogLevelFatal LogLevel = "fatal"
)

// IsValidLogLevel returns true if l is a recognised log level.
func IsValidLogLevel(l LogLevel) bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError, LogLevelFatal:
		return true
	default:
		return false
	}
}

// LogEntry is an append-only log line reported by a device alongside a
// heartbeat. Entries are owned by the device and cascade-deleted with it.
type LogEntry struct {
	ID        string    `json:"id"`
	DeviceID  string    `json:"device_id"`
	Level     LogLevel  `json:"level"`
	Message   string    `json:"message"`
	Category  string    `json:"category,omitempty"`
	Metadata  Info      `json:"metadata,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Group is a named collection of devices with an optional parent,
// forming a tree. Devices reference at most one group.
type Group struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	ParentID    *string   `json:"parent_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CachedStatus is the fast-path cache entry for a device: the last-known
// status and last-seen time. Purely derived; reconstructable from the
// durable store at any time.
type CachedStatus struct {
	Status   Status    `json:"status"`
	LastSeen time.Time `json:"last_seen"`
}

// StatusChange describes a device status transition, published to the
// broadcast hub (and optional MQTT mirror) whenever the stored status
// actually changes.
type StatusChange struct {
	DeviceID string    `json:"device_id"`
	Status   Status    `json:"status"`
	LastSeen time.Time `json:"last_seen"`
}

// Notifier receives status-change events. The broadcast hub implements this;
// best-effort sinks (MQTT mirror) can be composed alongside it.
type Notifier interface {
	DeviceStatusChanged(change StatusChange)
}
