package device

import (
	"context"
	"testing"
)

func TestReconnectAll_MixedOutcomes(t *testing.T) {
	healthy := newFakeTerminal(t)
	broken := newFakeTerminal(t)
	broken.failing.Store(true)

	registry, _, _ := newTestRegistry(t)
	ctx := context.Background()

	if _, err := registry.Upsert(ctx, healthy.config("good")); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if _, err := registry.Upsert(ctx, broken.config("bad")); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	coordinator := NewReconnectCoordinator(registry)
	results := coordinator.ReconnectAll(ctx)

	if len(results) != 2 {
		t.Fatalf("ReconnectAll() returned %d results, want 2", len(results))
	}

	outcomes := make(map[string]error, len(results))
	for _, res := range results {
		outcomes[res.DeviceID] = res.Err
	}

	if err, ok := outcomes["good"]; !ok || err != nil {
		t.Errorf("good device outcome = %v, want nil error", err)
	}
	if err, ok := outcomes["bad"]; !ok || err == nil {
		t.Error("bad device outcome = nil, want connection error")
	}

	// Every attempted device settles; none is left in transit.
	for _, id := range []string{"good", "bad"} {
		cfg, err := registry.GetConfig(id)
		if err != nil {
			t.Fatalf("GetConfig(%s) error = %v", id, err)
		}
		if cfg.Status != StatusConnected && cfg.Status != StatusError {
			t.Errorf("%s status = %q, want connected or error", id, cfg.Status)
		}
	}
}

func TestReconnectAll_SkipsOptedOutDevices(t *testing.T) {
	terminal := newFakeTerminal(t)
	registry, _, _ := newTestRegistry(t)
	ctx := context.Background()

	auto := terminal.config("auto")
	if _, err := registry.Upsert(ctx, auto); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	manual := terminal.config("manual")
	manual.AutoReconnect = boolPtr(false)
	if _, err := registry.Upsert(ctx, manual); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	results := NewReconnectCoordinator(registry).ReconnectAll(ctx)

	if len(results) != 1 {
		t.Fatalf("ReconnectAll() returned %d results, want 1", len(results))
	}
	if results[0].DeviceID != "auto" {
		t.Errorf("attempted device = %q, want auto", results[0].DeviceID)
	}

	cfg, err := registry.GetConfig("manual")
	if err != nil {
		t.Fatalf("GetConfig(manual) error = %v", err)
	}
	if cfg.Status != StatusDisconnected {
		t.Errorf("manual status = %q, want untouched", cfg.Status)
	}
}

func TestReconnectAll_EmptyFleet(t *testing.T) {
	registry, _, _ := newTestRegistry(t)

	if results := NewReconnectCoordinator(registry).ReconnectAll(context.Background()); results != nil {
		t.Errorf("ReconnectAll() = %v, want nil for empty fleet", results)
	}
}
