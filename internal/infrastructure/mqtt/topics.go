package mqtt

import "strings"

// topicPrefix roots every Veripoint topic.
const topicPrefix = "veripoint"

// Topics builds the MQTT topic hierarchy.
//
// Layout:
//
//	veripoint/system/status            online/offline status (retained, LWT)
//	veripoint/events/device/connected  fleet events, one topic per event name
//	veripoint/events/bulk/progress
//
// Event names use a "subject:verb" convention internally; the colon maps to
// a topic separator so brokers can filter with standard wildcards, e.g.
// veripoint/events/device/# for all device events.
type Topics struct{}

// SystemStatus returns the service status topic.
func (Topics) SystemStatus() string {
	return topicPrefix + "/system/status"
}

// Event returns the topic for a named fleet event.
func (Topics) Event(event string) string {
	return topicPrefix + "/events/" + strings.ReplaceAll(event, ":", "/")
}
