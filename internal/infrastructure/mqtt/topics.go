package mqtt

import "fmt"

// Topic prefixes for the monomed MQTT surface.
//
// Device topics use the scheme: monome/device/{serial}/{category}[/{detail}]
// where serial is the device serial (e.g. "m0000226").
const (
	// TopicPrefix is the base for all monomed topics.
	TopicPrefix = "monome"

	// TopicPrefixDevice is the base for per-device topics.
	TopicPrefixDevice = "monome/device"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "monome/system"
)

// Topics provides builders for monomed MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.DeviceState("m0000226")
//	// Returns: "monome/device/m0000226/state"
type Topics struct{}

// DeviceState returns the retained state topic for a device: its
// descriptor, handshake state and link state.
//
// Example: monome/device/m0000226/state
func (Topics) DeviceState(serial string) string {
	return fmt.Sprintf("%s/%s/state", TopicPrefixDevice, serial)
}

// DeviceInput returns the topic hardware input events are published on.
// Input names follow the OSC leaf: "key", "tilt", "delta".
//
// Example: monome/device/m0000226/input/key
func (Topics) DeviceInput(serial, input string) string {
	return fmt.Sprintf("%s/%s/input/%s", TopicPrefixDevice, serial, input)
}

// DeviceCommand returns the topic external services send device
// commands on (LED updates, ring maps).
//
// Example: monome/device/m0000226/command
func (Topics) DeviceCommand(serial string) string {
	return fmt.Sprintf("%s/%s/command", TopicPrefixDevice, serial)
}

// DeviceEvent returns the lifecycle event topic for a device.
// Event types: "added", "removed", "initialized", "connect", "disconnect".
//
// Example: monome/device/m0000226/event/added
func (Topics) DeviceEvent(serial, eventType string) string {
	return fmt.Sprintf("%s/%s/event/%s", TopicPrefixDevice, serial, eventType)
}

// SystemStatus returns the daemon status topic.
//
// Example: monome/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// SystemShutdown returns the shutdown signal topic.
//
// Example: monome/system/shutdown
func (Topics) SystemShutdown() string {
	return fmt.Sprintf("%s/shutdown", TopicPrefixSystem)
}

// AllDeviceStates returns a pattern matching every device state topic.
//
// Pattern: monome/device/+/state
func (Topics) AllDeviceStates() string {
	return fmt.Sprintf("%s/+/state", TopicPrefixDevice)
}

// AllDeviceInputs returns a pattern matching every device input topic.
//
// Pattern: monome/device/+/input/+
func (Topics) AllDeviceInputs() string {
	return fmt.Sprintf("%s/+/input/+", TopicPrefixDevice)
}

// AllDeviceCommands returns a pattern matching every device command topic.
//
// Pattern: monome/device/+/command
func (Topics) AllDeviceCommands() string {
	return fmt.Sprintf("%s/+/command", TopicPrefixDevice)
}

// AllDeviceEvents returns a pattern matching every lifecycle event topic.
//
// Pattern: monome/device/+/event/+
func (Topics) AllDeviceEvents() string {
	return fmt.Sprintf("%s/+/event/+", TopicPrefixDevice)
}

// AllTopics returns a pattern matching all monomed topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: monome/#
func (Topics) AllTopics() string {
	return "monome/#"
}
