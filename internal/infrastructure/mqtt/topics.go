package mqtt

import "fmt"

// Topic prefix for all manipd topics.
//
// Scheme: manipd/{category}/{device_id}[/{detail}]
const (
	// TopicPrefix is the base for all manipd topics.
	TopicPrefix = "manipd"

	// TopicPrefixSystem is the base for daemon-level topics.
	TopicPrefixSystem = "manipd/system"
)

// Topics provides builders for manipd MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.Position("patchstar-01")
//	// Returns: "manipd/state/patchstar-01/position"
type Topics struct{}

// Position returns the retained state topic for manipulator position updates.
//
// Example: manipd/state/patchstar-01/position
func (Topics) Position(deviceID string) string {
	return fmt.Sprintf("%s/state/%s/position", TopicPrefix, deviceID)
}

// MoveEvent returns the topic for move lifecycle events
// (started, succeeded, failed).
//
// Example: manipd/event/patchstar-01/move
func (Topics) MoveEvent(deviceID string) string {
	return fmt.Sprintf("%s/event/%s/move", TopicPrefix, deviceID)
}

// MoveCommand returns the topic on which move commands are accepted.
//
// Example: manipd/command/patchstar-01/move
func (Topics) MoveCommand(deviceID string) string {
	return fmt.Sprintf("%s/command/%s/move", TopicPrefix, deviceID)
}

// StopCommand returns the topic on which stop commands are accepted.
//
// Example: manipd/command/patchstar-01/stop
func (Topics) StopCommand(deviceID string) string {
	return fmt.Sprintf("%s/command/%s/stop", TopicPrefix, deviceID)
}

// Health returns the topic for periodic device health reports.
//
// Example: manipd/health/patchstar-01
func (Topics) Health(deviceID string) string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, deviceID)
}

// SystemStatus returns the daemon online/offline status topic.
// The LWT is registered against this topic so consumers can detect crashes.
//
// Example: manipd/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}
