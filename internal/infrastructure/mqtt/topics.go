package mqtt

import "fmt"

// TopicPrefix is the base for all Homelink topics.
//
// Layout:
//
//	homelink/status               retained daemon + upstream connectivity
//	homelink/device/{id}/state    retained mirrored device state
//	homelink/device/{id}/set      inbound device commands
const TopicPrefix = "homelink"

// Topics provides builders for Homelink MQTT topics.
// Using these helpers keeps topic naming consistent across the codebase.
type Topics struct{}

// Status returns the retained connectivity status topic.
//
// Example: homelink/status
func (Topics) Status() string {
	return TopicPrefix + "/status"
}

// DeviceState returns the retained state topic for one device.
//
// Example: homelink/device/1000/state
func (Topics) DeviceState(deviceID int) string {
	return fmt.Sprintf("%s/device/%d/state", TopicPrefix, deviceID)
}

// DeviceCommand returns the command topic for one device.
//
// Example: homelink/device/1000/set
func (Topics) DeviceCommand(deviceID int) string {
	return fmt.Sprintf("%s/device/%d/set", TopicPrefix, deviceID)
}

// AllDeviceCommands returns a pattern matching every device command topic.
//
// Pattern: homelink/device/+/set
func (Topics) AllDeviceCommands() string {
	return TopicPrefix + "/device/+/set"
}

// AllTopics returns a pattern matching all Homelink topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: homelink/#
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}
