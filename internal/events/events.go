// Package events defines the event broadcast contract used by the device
// layer to announce state changes without depending on a transport.
//
// Producers (registry, health monitor, bulk executor) publish named events
// with JSON-serialisable payloads. Transports (WebSocket hub, MQTT publisher)
// implement Broadcaster and are wired in at the composition root.
package events

// Event names published by the device layer.
const (
	DeviceConnected         = "device:connected"
	DeviceDisconnected      = "device:disconnected"
	DeviceConnectionFailed  = "device:connection_failed"
	DeviceStatusChanged     = "device:status_changed"
	DeviceHealthCheckFailed = "device:health_check_failed"
	DeviceConfigUpdated     = "device:config_updated"
	DeviceRemoved           = "device:removed"

	BulkProgress  = "bulk:progress"
	BulkCompleted = "bulk:completed"
	BulkCancelled = "bulk:cancelled"
)

// Broadcaster delivers an event to interested subscribers.
//
// Implementations must be safe for concurrent use and must not block the
// caller; slow consumers are the transport's problem, not the publisher's.
type Broadcaster interface {
	// Publish sends an event with a JSON-serialisable payload.
	// Delivery is best-effort; failures are handled by the transport.
	Publish(event string, data any)
}

// Nop is a Broadcaster that discards all events.
// Useful as a default when no transport is configured, and in tests.
type Nop struct{}

// Publish discards the event.
func (Nop) Publish(string, any) {}

// Multi fans a single Publish out to several broadcasters in order.
type Multi []Broadcaster

// Publish forwards the event to every broadcaster in the slice.
func (m Multi) Publish(event string, data any) {
	for _, b := range m {
		b.Publish(event, data)
	}
}
