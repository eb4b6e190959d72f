package device

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/veripoint/veripoint-core/internal/events"
)

// memoryHistory is an in-memory HealthHistory for monitor tests.
type memoryHistory struct {
	mu      sync.Mutex
	entries []ProbeResult
}

func (h *memoryHistory) RecordProbe(_ context.Context, result ProbeResult) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, result)
	return nil
}

func (h *memoryHistory) GetHistory(_ context.Context, deviceID string, limit int) ([]ProbeResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []ProbeResult
	for i := len(h.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if h.entries[i].DeviceID == deviceID {
			out = append(out, h.entries[i])
		}
	}
	return out, nil
}

func (h *memoryHistory) Prune(context.Context, time.Duration) (int64, error) {
	return 0, nil
}

func (h *memoryHistory) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// memoryMetrics records metrics writer calls.
type memoryMetrics struct {
	mu        sync.Mutex
	points    []string
	snapshots int
}

func (m *memoryMetrics) WriteDeviceMetric(deviceID, measurement string, _ float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points = append(m.points, deviceID+"/"+measurement)
}

func (m *memoryMetrics) WriteFleetStats(_, _, _, _ int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots++
}

func (m *memoryMetrics) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.points)
}

func (m *memoryMetrics) snapshotCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshots
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", timeout, msg)
}

func TestHealthMonitor_HealthySweep(t *testing.T) {
	terminal := newFakeTerminal(t)
	registry, _, _ := newTestRegistry(t)
	ctx := context.Background()

	if _, err := registry.Upsert(ctx, terminal.config("d1")); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := registry.Connect(ctx, "d1"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	metrics := &memoryMetrics{}
	history := &memoryHistory{}
	monitor := NewHealthMonitor(registry, nil,
		WithInterval(10*time.Millisecond),
		WithProbeTimeout(time.Second),
		WithMetricsWriter(metrics),
		WithHealthHistory(history),
	)

	if err := monitor.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer monitor.Stop()

	waitFor(t, 2*time.Second, func() bool { return history.count() >= 2 }, "two probe history rows")
	waitFor(t, 2*time.Second, func() bool { return metrics.count() >= 1 }, "one latency metric")
	waitFor(t, 2*time.Second, func() bool { return metrics.snapshotCount() >= 1 }, "one fleet snapshot")

	health, err := registry.GetHealth("d1")
	if err != nil {
		t.Fatalf("GetHealth() error = %v", err)
	}
	if health.ErrorCount != 0 {
		t.Errorf("ErrorCount = %d, want 0 after healthy probes", health.ErrorCount)
	}
	if health.LastProbe.IsZero() {
		t.Error("LastProbe is zero, want updated")
	}

	cfg, err := registry.GetConfig("d1")
	if err != nil {
		t.Fatalf("GetConfig() error = %v", err)
	}
	if cfg.Status != StatusConnected {
		t.Errorf("Status = %q, want still connected", cfg.Status)
	}
}

func TestHealthMonitor_FailedProbeDemotesDevice(t *testing.T) {
	terminal := newFakeTerminal(t)
	registry, _, rec := newTestRegistry(t)
	ctx := context.Background()

	if _, err := registry.Upsert(ctx, terminal.config("d1")); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := registry.Connect(ctx, "d1"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	// Device answers the connect probe, then goes dark.
	terminal.failing.Store(true)

	history := &memoryHistory{}
	monitor := NewHealthMonitor(registry, rec,
		WithInterval(10*time.Millisecond),
		WithProbeTimeout(time.Second),
		WithHealthHistory(history),
	)

	if err := monitor.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer monitor.Stop()

	waitFor(t, 2*time.Second, func() bool {
		cfg, err := registry.GetConfig("d1")
		return err == nil && cfg.Status == StatusError
	}, "device demoted to error status")

	// Demoted, not reconnected: the client is gone and status stays error.
	if _, err := registry.GetDevice("d1"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("GetDevice() error = %v, want ErrNotConnected after demotion", err)
	}
	if !rec.has(events.DeviceHealthCheckFailed) {
		t.Errorf("events = %v, want %s", rec.names(), events.DeviceHealthCheckFailed)
	}

	health, err := registry.GetHealth("d1")
	if err != nil {
		t.Fatalf("GetHealth() error = %v", err)
	}
	if health.ErrorCount == 0 {
		t.Error("ErrorCount = 0, want incremented")
	}
	if health.LastError == "" {
		t.Error("LastError empty, want probe failure recorded")
	}

	failures := 0
	entries, err := history.GetHistory(ctx, "d1", 50)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	for _, e := range entries {
		if !e.Success {
			failures++
		}
	}
	if failures == 0 {
		t.Error("history has no failed probe rows, want at least one")
	}
}

func TestHealthMonitor_StartTwice(t *testing.T) {
	registry, _, _ := newTestRegistry(t)
	monitor := NewHealthMonitor(registry, nil, WithInterval(time.Hour))

	if err := monitor.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer monitor.Stop()

	if err := monitor.Start(context.Background()); !errors.Is(err, ErrMonitorRunning) {
		t.Errorf("second Start() error = %v, want ErrMonitorRunning", err)
	}
}

func TestHealthMonitor_StopIdempotent(t *testing.T) {
	registry, _, _ := newTestRegistry(t)
	monitor := NewHealthMonitor(registry, nil, WithInterval(time.Hour))

	// Stopping a monitor that never started must not panic or block.
	monitor.Stop()

	if err := monitor.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	monitor.Stop()
	monitor.Stop()

	// A stopped monitor can be started again.
	if err := monitor.Start(context.Background()); err != nil {
		t.Errorf("restart error = %v", err)
	}
	monitor.Stop()
}
