package mqtt

import "strings"

// TopicPrefix is the root of every tapline topic.
const TopicPrefix = "tapline"

// Topics builds tapline topic names.
type Topics struct{}

// State returns the retained topic for one board section.
//
// Example: tapline/state/connection
func (Topics) State(section string) string {
	return TopicPrefix + "/state/" + section
}

// Frame returns the retained topic carrying the latest PNG.
func (Topics) Frame() string {
	return TopicPrefix + "/state/screenshot/frame"
}

// Command returns the topic for one named command.
//
// Example: tapline/command/pause
func (Topics) Command(name string) string {
	return TopicPrefix + "/command/" + name
}

// AllCommands matches every command topic.
func (Topics) AllCommands() string {
	return TopicPrefix + "/command/+"
}

// Ack returns the acknowledgement topic for a command.
func (Topics) Ack(name string) string {
	return TopicPrefix + "/ack/" + name
}

// SystemStatus returns the online/offline topic.
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

// CommandName extracts the command from a command topic. ok is false for
// other topics.
func (Topics) CommandName(topic string) (string, bool) {
	name, found := strings.CutPrefix(topic, TopicPrefix+"/command/")
	if !found || name == "" || strings.Contains(name, "/") {
		return "", false
	}
	return name, true
}
