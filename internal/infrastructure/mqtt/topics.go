package mqtt

import (
	"strings"
)

// DefaultTopicPrefix is the root of every Bluetray topic.
const DefaultTopicPrefix = "bluetray"

// Topics builds Bluetray MQTT topics under a prefix:
//
//	{prefix}/device/{address}/state    retained device state (JSON)
//	{prefix}/device/{address}/command  connect/disconnect/toggle requests
//	{prefix}/system/status             retained online/offline + LWT
type Topics struct {
	prefix string
}

// NewTopics returns a builder for prefix. An empty prefix selects
// DefaultTopicPrefix; trailing slashes are trimmed.
func NewTopics(prefix string) Topics {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the topic root.
func (t Topics) Prefix() string {
	if t.prefix == "" {
		return DefaultTopicPrefix
	}
	return t.prefix
}

// DeviceState returns the retained state topic for a device.
func (t Topics) DeviceState(address string) string {
	return t.Prefix() + "/device/" + address + "/state"
}

// DeviceCommand returns the command topic for a device.
func (t Topics) DeviceCommand(address string) string {
	return t.Prefix() + "/device/" + address + "/command"
}

// AllDeviceCommands matches every device command topic.
func (t Topics) AllDeviceCommands() string {
	return t.Prefix() + "/device/+/command"
}

// SystemStatus returns the retained online/offline topic.
func (t Topics) SystemStatus() string {
	return t.Prefix() + "/system/status"
}

// CommandAddress extracts the address from a device command topic.
// It returns false for any other topic.
func (t Topics) CommandAddress(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, t.Prefix()+"/device/")
	if !ok {
		return "", false
	}
	address, ok := strings.CutSuffix(rest, "/command")
	if !ok || address == "" || strings.Contains(address, "/") {
		return "", false
	}
	return address, true
}
