package events

import "testing"

// recorder captures published events for assertions.
type recorder struct {
	events []string
	data   []any
}

func (r *recorder) Publish(event string, data any) {
	r.events = append(r.events, event)
	r.data = append(r.data, data)
}

func TestNop_Publish(t *testing.T) {
	// Must not panic
	Nop{}.Publish(DeviceConnected, map[string]string{"device_id": "d1"})
}

func TestMulti_FansOut(t *testing.T) {
	first := &recorder{}
	second := &recorder{}

	m := Multi{first, second}
	m.Publish(DeviceConnected, "payload")
	m.Publish(BulkProgress, 42)

	for _, r := range []*recorder{first, second} {
		if len(r.events) != 2 {
			t.Fatalf("expected 2 events, got %d", len(r.events))
		}
		if r.events[0] != DeviceConnected || r.events[1] != BulkProgress {
			t.Errorf("unexpected event order: %v", r.events)
		}
	}
}

func TestMulti_Empty(t *testing.T) {
	// Publishing on an empty Multi is a no-op
	Multi{}.Publish(DeviceRemoved, nil)
}
