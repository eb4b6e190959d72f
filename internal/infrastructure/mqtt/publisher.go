package mqtt

import (
	"encoding/json"
	"time"

	"github.com/veripoint/veripoint-core/internal/events"
)

// Publisher adapts the MQTT client to the fleet event broadcaster interface.
//
// Each event is wrapped in an envelope and published to its own topic under
// veripoint/events/. Publish failures are logged and dropped; event delivery
// is best effort and must never block or fail a device operation.
type Publisher struct {
	client *Client
}

// envelope is the JSON shape of every published event.
type envelope struct {
	Event     string    `json:"event"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewPublisher wraps a connected client as an event publisher.
func NewPublisher(client *Client) *Publisher {
	return &Publisher{client: client}
}

// Publish broadcasts one fleet event to the broker.
func (p *Publisher) Publish(event string, data any) {
	payload, err := json.Marshal(envelope{
		Event:     event,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		if logger := p.client.getLogger(); logger != nil {
			logger.Error("encoding MQTT event", "event", event, "error", err)
		}
		return
	}

	topic := Topics{}.Event(event)
	if err := p.client.Publish(topic, payload, byte(p.client.cfg.QoS), false); err != nil {
		if logger := p.client.getLogger(); logger != nil {
			logger.Warn("publishing MQTT event", "event", event, "topic", topic, "error", err)
		}
	}
}

var _ events.Broadcaster = (*Publisher)(nil)
