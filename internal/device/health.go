package device

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/veripoint/veripoint-core/internal/events"
)

const (
	// defaultHealthInterval is the probe sweep interval.
	defaultHealthInterval = 30 * time.Second

	// defaultProbeTimeout bounds a single health probe.
	defaultProbeTimeout = 5 * time.Second
)

// MetricsWriter receives probe latency measurements and fleet snapshots.
// Satisfied by the InfluxDB client; optional.
type MetricsWriter interface {
	WriteDeviceMetric(deviceID, measurement string, value float64)
	WriteFleetStats(total, connected, disconnected, errored int)
}

// HealthMonitor periodically probes every connected device with a
// lightweight version query.
//
// A device that fails its probe is demoted to error status and stays
// there: the monitor detects and reports, it does not reconnect. Automatic
// reconnection would mask flapping terminals from operators; recovery is an
// explicit Connect or ReconnectAll.
type HealthMonitor struct {
	registry *Registry
	events   events.Broadcaster
	logger   Logger

	interval     time.Duration
	probeTimeout time.Duration

	// Optional sinks, nil when not configured.
	metrics MetricsWriter
	history HealthHistory

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// HealthMonitorOption configures a HealthMonitor.
type HealthMonitorOption func(*HealthMonitor)

// WithInterval sets the probe sweep interval.
func WithInterval(interval time.Duration) HealthMonitorOption {
	return func(m *HealthMonitor) {
		if interval > 0 {
			m.interval = interval
		}
	}
}

// WithProbeTimeout sets the per-device probe timeout.
func WithProbeTimeout(timeout time.Duration) HealthMonitorOption {
	return func(m *HealthMonitor) {
		if timeout > 0 {
			m.probeTimeout = timeout
		}
	}
}

// WithMetricsWriter attaches a latency metrics sink.
func WithMetricsWriter(w MetricsWriter) HealthMonitorOption {
	return func(m *HealthMonitor) {
		m.metrics = w
	}
}

// WithHealthHistory attaches a probe history repository.
func WithHealthHistory(h HealthHistory) HealthMonitorOption {
	return func(m *HealthMonitor) {
		m.history = h
	}
}

// NewHealthMonitor creates a monitor over the given registry.
// A nil broadcaster disables event publication.
func NewHealthMonitor(registry *Registry, broadcaster events.Broadcaster, opts ...HealthMonitorOption) *HealthMonitor {
	if broadcaster == nil {
		broadcaster = events.Nop{}
	}
	m := &HealthMonitor{
		registry:     registry,
		events:       broadcaster,
		logger:       noopLogger{},
		interval:     defaultHealthInterval,
		probeTimeout: defaultProbeTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetLogger sets the logger for the monitor.
func (m *HealthMonitor) SetLogger(logger Logger) {
	if logger != nil {
		m.logger = logger
	}
}

// Start launches the probe loop. Returns ErrMonitorRunning if already
// started.
func (m *HealthMonitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		return ErrMonitorRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	go m.run(runCtx)

	m.logger.Info("health monitor started", "interval", m.interval.String())
	return nil
}

// Stop halts the probe loop and waits for the current sweep to finish.
// Stopping a monitor that is not running is a no-op.
func (m *HealthMonitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.cancel = nil
	m.done = nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	m.logger.Info("health monitor stopped")
}

// run is the probe loop.
func (m *HealthMonitor) run(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep(ctx)
		}
	}
}

// sweep probes every connected device concurrently and waits for all
// probes to finish, then records a fleet snapshot.
func (m *HealthMonitor) sweep(ctx context.Context) {
	ids := m.registry.ConnectedIDs()
	if len(ids) > 0 {
		g, gctx := errgroup.WithContext(ctx)
		for _, id := range ids {
			id := id
			g.Go(func() error {
				m.probe(gctx, id)
				return nil
			})
		}
		_ = g.Wait() //nolint:errcheck // Probes report via registry and events
	}

	if m.metrics != nil {
		stats := m.registry.Stats()
		m.metrics.WriteFleetStats(stats.Total, stats.Connected, stats.Disconnected, stats.Errored)
	}
}

// probe checks one device and records the outcome.
func (m *HealthMonitor) probe(ctx context.Context, id string) {
	client, err := m.registry.GetDevice(id)
	if err != nil {
		// Disconnected between sweep snapshot and probe
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()

	start := time.Now()
	_, err = client.GetVersionInfo(probeCtx)
	elapsed := time.Since(start)

	if err != nil {
		count := m.registry.markProbeFailure(ctx, id, err)
		m.logger.Warn("device health check failed",
			"device_id", id,
			"consecutive_failures", count,
			"error", err,
		)
		m.events.Publish(events.DeviceHealthCheckFailed, map[string]any{
			"device_id":   id,
			"error":       err.Error(),
			"error_count": count,
		})
		m.record(ctx, id, elapsed, err)
		return
	}

	m.registry.recordProbeSuccess(id, elapsed)
	m.logger.Debug("device health check ok", "device_id", id, "response_time_ms", elapsed.Milliseconds())

	if m.metrics != nil {
		m.metrics.WriteDeviceMetric(id, "probe_response_time_ms", float64(elapsed.Milliseconds()))
	}
	m.record(ctx, id, elapsed, nil)
}

// record appends the probe outcome to the history repository, if one is
// attached.
func (m *HealthMonitor) record(ctx context.Context, id string, elapsed time.Duration, probeErr error) {
	if m.history == nil {
		return
	}

	entry := ProbeResult{
		DeviceID:       id,
		ResponseTimeMs: elapsed.Milliseconds(),
		Success:        probeErr == nil,
	}
	if probeErr != nil {
		entry.Error = probeErr.Error()
	}

	if err := m.history.RecordProbe(ctx, entry); err != nil {
		m.logger.Error("recording probe history", "device_id", id, "error", err)
	}
}
