package mqtt

import "fmt"

// Topic prefixes for the fleet MQTT namespace.
//
// All fleet topics use the flat scheme: kioskfleet/{category}/{device_id}
const (
	// TopicPrefixFleet is the base for all fleet topics.
	TopicPrefixFleet = "kioskfleet"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "kioskfleet/system"
)

// Topics provides builders for fleet MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	statusTopic := topics.DeviceStatus("kiosk-lobby-01")
//	// Returns: "kioskfleet/status/kiosk-lobby-01"
type Topics struct{}

// DeviceStatus returns the topic for a device's mirrored status.
// Published retained so new subscribers immediately see current state.
//
// Example: kioskfleet/status/kiosk-lobby-01
func (Topics) DeviceStatus(deviceID string) string {
	return fmt.Sprintf("%s/status/%s", TopicPrefixFleet, deviceID)
}

// DeviceCommand returns the topic for commands mirrored to a device.
//
// Example: kioskfleet/command/kiosk-lobby-01
func (Topics) DeviceCommand(deviceID string) string {
	return fmt.Sprintf("%s/command/%s", TopicPrefixFleet, deviceID)
}

// SystemStatus returns the server status topic.
//
// Example: kioskfleet/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllDeviceStatuses returns a pattern matching all device status topics.
//
// Pattern: kioskfleet/status/+
func (Topics) AllDeviceStatuses() string {
	return fmt.Sprintf("%s/status/+", TopicPrefixFleet)
}

// AllDeviceCommands returns a pattern matching all device command topics.
//
// Pattern: kioskfleet/command/+
func (Topics) AllDeviceCommands() string {
	return fmt.Sprintf("%s/command/+", TopicPrefixFleet)
}

// AllTopics returns a pattern matching all fleet topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: kioskfleet/#
func (Topics) AllTopics() string {
	return "kioskfleet/#"
}
