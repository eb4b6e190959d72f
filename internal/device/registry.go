package device

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/veripoint/veripoint-core/internal/events"
	"github.com/veripoint/veripoint-core/internal/protocol"
)

// Logger defines the logging interface used by this package.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// defaultCommandTimeout bounds device commands issued by the registry.
const defaultCommandTimeout = 10 * time.Second

// Registry is the single source of truth for device configurations and
// live connections.
//
// Configurations are cached in memory and persisted through the ConfigStore
// after every mutation. Live connections are held as protocol clients keyed
// by device ID. A per-device mutex serialises operations on the same device
// while leaving different devices fully concurrent.
//
// All public methods are thread-safe. Reads return deep copies; callers can
// never corrupt the cache.
type Registry struct {
	store   ConfigStore
	events  events.Broadcaster
	logger  Logger
	timeout time.Duration

	mu      sync.RWMutex
	configs map[string]*Config
	clients map[string]*protocol.Client
	health  map[string]*HealthRecord

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	// persistMu serialises snapshot+Save so a slow Save cannot land a
	// stale snapshot over a newer one.
	persistMu sync.Mutex
}

// NewRegistry creates a registry backed by the given store.
// A nil broadcaster disables event publication.
func NewRegistry(store ConfigStore, broadcaster events.Broadcaster) *Registry {
	if broadcaster == nil {
		broadcaster = events.Nop{}
	}
	return &Registry{
		store:   store,
		events:  broadcaster,
		logger:  noopLogger{},
		timeout: defaultCommandTimeout,
		configs: make(map[string]*Config),
		clients: make(map[string]*protocol.Client),
		health:  make(map[string]*HealthRecord),
		locks:   make(map[string]*sync.Mutex),
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// SetCommandTimeout sets the per-command timeout for device clients created
// by this registry. Call before Connect; existing clients are unaffected.
func (r *Registry) SetCommandTimeout(timeout time.Duration) {
	if timeout > 0 {
		r.timeout = timeout
	}
}

// Load populates the registry from the store. Should be called once on
// startup. Persisted live statuses are reset to disconnected: no connection
// survives a process restart.
func (r *Registry) Load(ctx context.Context) error {
	configs, err := r.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading device configs: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.configs = make(map[string]*Config, len(configs))
	for i := range configs {
		cfg := configs[i]
		if cfg.Status == StatusConnected || cfg.Status == StatusConnecting {
			cfg.Status = StatusDisconnected
		}
		r.configs[cfg.ID] = &cfg
	}

	r.logger.Info("device registry loaded", "count", len(configs))
	return nil
}

// Upsert creates or replaces the static configuration for a device.
// Runtime fields (status, last connected, capabilities) are preserved on
// update and zeroed on create. An unset auto-reconnect flag is stored as
// enabled. No connection attempt is made.
//
// Parameters:
//   - ctx: Context for persistence
//   - cfg: Full device configuration; ID and Host are required
//
// Returns:
//   - *Config: The stored configuration (deep copy)
//   - error: Validation or persistence failure
func (r *Registry) Upsert(ctx context.Context, cfg Config) (*Config, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("%w: device id is required", ErrInvalidConfig)
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("%w: host is required", ErrInvalidConfig)
	}
	if cfg.AutoReconnect == nil {
		enabled := true
		cfg.AutoReconnect = &enabled
	}

	lock := r.deviceLock(cfg.ID)
	lock.Lock()
	defer lock.Unlock()

	r.mu.Lock()
	existing, ok := r.configs[cfg.ID]
	if ok {
		cfg.Status = existing.Status
		cfg.LastConnected = existing.LastConnected
		cfg.Capabilities = existing.Capabilities
	} else {
		cfg.Status = StatusDisconnected
		cfg.LastConnected = nil
		cfg.Capabilities = nil
	}
	r.configs[cfg.ID] = &cfg
	r.mu.Unlock()

	if err := r.persist(ctx); err != nil {
		return nil, err
	}

	r.logger.Info("device config upserted", "device_id", cfg.ID, "address", cfg.Address())
	r.events.Publish(events.DeviceConfigUpdated, map[string]any{"device_id": cfg.ID})

	return cfg.DeepCopy(), nil
}

// Connect establishes a connection to a registered device.
//
// The device transitions to connecting, is probed with GetVersionInfo, and
// ends either connected (with last connected set and capabilities
// refreshed) or in error status. Both outcomes are persisted. A failed
// probe returns *ConnectionFailedError wrapping the cause.
//
// Parameters:
//   - ctx: Context for the probe round-trips
//   - id: Device ID
//
// Returns:
//   - error: nil once the device is connected
func (r *Registry) Connect(ctx context.Context, id string) error {
	lock := r.deviceLock(id)
	lock.Lock()
	defer lock.Unlock()

	return r.connectLocked(ctx, id)
}

// connectLocked performs the connection attempt. The caller must hold the
// device lock.
func (r *Registry) connectLocked(ctx context.Context, id string) error {
	r.mu.Lock()
	cfg, ok := r.configs[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	cfg.Status = StatusConnecting
	clientCfg := protocol.Config{
		Address:  cfg.Address(),
		APIKey:   cfg.APIKey,
		UseHTTPS: cfg.UseHTTPS,
		Timeout:  r.timeout,
	}
	r.mu.Unlock()

	r.publishStatus(id, StatusConnecting)

	client := protocol.NewClient(clientCfg)
	if l, ok := r.logger.(protocol.Logger); ok {
		client.SetLogger(l)
	}

	info, err := client.GetVersionInfo(ctx)
	if err != nil {
		r.mu.Lock()
		cfg.Status = StatusError
		r.recordProbeFailureLocked(id, err)
		r.mu.Unlock()

		if perr := r.persist(ctx); perr != nil {
			r.logger.Error("persisting device state after failed connect", "device_id", id, "error", perr)
		}

		r.logger.Warn("device connection failed", "device_id", id, "address", clientCfg.Address, "error", err)
		r.publishStatus(id, StatusError)
		r.events.Publish(events.DeviceConnectionFailed, map[string]any{
			"device_id": id,
			"error":     err.Error(),
		})
		return &ConnectionFailedError{DeviceID: id, Err: err}
	}

	// Capabilities are nice to have; a probe that answered version info is
	// connected regardless.
	caps, capsErr := client.GetDeviceCapabilities(ctx)
	if capsErr != nil {
		r.logger.Warn("refreshing device capabilities", "device_id", id, "error", capsErr)
	}

	now := time.Now().UTC()
	r.mu.Lock()
	r.clients[id] = client
	cfg.Status = StatusConnected
	cfg.LastConnected = &now
	if capsErr == nil {
		cfg.Capabilities = caps
	}
	rec := r.healthRecordLocked(id)
	rec.LastProbe = now
	rec.ErrorCount = 0
	rec.LastError = ""
	r.mu.Unlock()

	if err := r.persist(ctx); err != nil {
		r.logger.Error("persisting device state after connect", "device_id", id, "error", err)
	}

	r.logger.Info("device connected", "device_id", id, "address", clientCfg.Address, "firmware", info.FirmwareVersion)
	r.publishStatus(id, StatusConnected)
	r.events.Publish(events.DeviceConnected, map[string]any{
		"device_id":        id,
		"firmware_version": info.FirmwareVersion,
	})
	return nil
}

// Disconnect drops the live connection to a device.
//
// Disconnecting a device without a connection is a no-op; the bool reports
// whether a connection was actually dropped.
//
// Parameters:
//   - ctx: Context for persistence
//   - id: Device ID
//
// Returns:
//   - bool: true if a live connection was dropped
//   - error: ErrNotFound if the device is not registered
func (r *Registry) Disconnect(ctx context.Context, id string) (bool, error) {
	lock := r.deviceLock(id)
	lock.Lock()
	defer lock.Unlock()

	return r.disconnectLocked(ctx, id)
}

// disconnectLocked drops the connection. The caller must hold the device lock.
func (r *Registry) disconnectLocked(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	cfg, ok := r.configs[id]
	if !ok {
		r.mu.Unlock()
		return false, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	_, connected := r.clients[id]
	if !connected {
		r.mu.Unlock()
		return false, nil
	}

	delete(r.clients, id)
	cfg.Status = StatusDisconnected
	r.mu.Unlock()

	if err := r.persist(ctx); err != nil {
		r.logger.Error("persisting device state after disconnect", "device_id", id, "error", err)
	}

	r.logger.Info("device disconnected", "device_id", id)
	r.publishStatus(id, StatusDisconnected)
	r.events.Publish(events.DeviceDisconnected, map[string]any{"device_id": id})
	return true, nil
}

// Remove disconnects a device and deletes its configuration.
// Removing an unknown device is a no-op.
func (r *Registry) Remove(ctx context.Context, id string) error {
	lock := r.deviceLock(id)
	lock.Lock()
	defer lock.Unlock()

	r.mu.Lock()
	_, ok := r.configs[id]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	delete(r.clients, id)
	delete(r.configs, id)
	delete(r.health, id)
	r.mu.Unlock()

	if err := r.persist(ctx); err != nil {
		return err
	}

	r.logger.Info("device removed", "device_id", id)
	r.events.Publish(events.DeviceRemoved, map[string]any{"device_id": id})
	return nil
}

// UpdateConfig merges a partial update into a device's configuration.
//
// If a connection-relevant field (host, port, api key, transport) changed
// while the device is connected, the device is reconnected with the new
// parameters. A failed reconnect leaves the device in error status and is
// logged, not returned: the configuration update itself succeeded.
//
// Parameters:
//   - ctx: Context for persistence and reconnection
//   - id: Device ID
//   - update: Fields to change; nil fields are left as they are
//
// Returns:
//   - *Config: The updated configuration (deep copy)
//   - error: ErrNotFound or persistence failure
func (r *Registry) UpdateConfig(ctx context.Context, id string, update ConfigUpdate) (*Config, error) {
	lock := r.deviceLock(id)
	lock.Lock()
	defer lock.Unlock()

	r.mu.Lock()
	cfg, ok := r.configs[id]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	connectionChanged := update.apply(cfg)
	_, connected := r.clients[id]
	result := cfg.DeepCopy()
	r.mu.Unlock()

	if err := r.persist(ctx); err != nil {
		return nil, err
	}

	r.logger.Info("device config updated", "device_id", id, "connection_changed", connectionChanged)
	r.events.Publish(events.DeviceConfigUpdated, map[string]any{"device_id": id})

	if connectionChanged && connected {
		if _, err := r.disconnectLocked(ctx, id); err != nil {
			r.logger.Error("disconnecting for reconfiguration", "device_id", id, "error", err)
		}
		if err := r.connectLocked(ctx, id); err != nil {
			r.logger.Warn("reconnecting after config change", "device_id", id, "error", err)
		}
		r.mu.RLock()
		result = r.configs[id].DeepCopy()
		r.mu.RUnlock()
	}

	return result, nil
}

// GetDevice returns the live protocol client for a connected device.
//
// Returns ErrNotFound for unknown IDs and ErrNotConnected when the device
// is registered but has no live connection. Callers must treat
// ErrNotConnected as an expected state, not a fault.
func (r *Registry) GetDevice(id string) (*protocol.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.configs[id]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	client, ok := r.clients[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotConnected, id)
	}
	return client, nil
}

// GetConfig returns a device's configuration as a deep copy.
func (r *Registry) GetConfig(id string) (*Config, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg, ok := r.configs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return cfg.DeepCopy(), nil
}

// ListConfigs returns all device configurations as deep copies, in no
// particular order.
func (r *Registry) ListConfigs() []Config {
	r.mu.RLock()
	defer r.mu.RUnlock()

	configs := make([]Config, 0, len(r.configs))
	for _, cfg := range r.configs {
		configs = append(configs, *cfg.DeepCopy())
	}
	return configs
}

// ConnectedIDs returns the IDs of all devices with live connections.
func (r *Registry) ConnectedIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	return ids
}

// GetHealth returns the health record for a device. Devices that have never
// been probed return a zero record.
func (r *Registry) GetHealth(id string) (*HealthRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.configs[id]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	rec, ok := r.health[id]
	if !ok {
		return &HealthRecord{}, nil
	}
	snapshot := *rec
	return &snapshot, nil
}

// Stats summarises the fleet by connection status.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{Total: len(r.configs)}
	for _, cfg := range r.configs {
		switch cfg.Status {
		case StatusConnected:
			stats.Connected++
		case StatusError:
			stats.Errored++
		default:
			stats.Disconnected++
		}
	}
	return stats
}

// recordProbeSuccess updates a device's health record after a successful
// probe. Used by the health monitor.
func (r *Registry) recordProbeSuccess(id string, responseTime time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := r.healthRecordLocked(id)
	rec.LastProbe = time.Now().UTC()
	rec.ResponseTimeMs = responseTime.Milliseconds()
	rec.ErrorCount = 0
	rec.LastError = ""
}

// markProbeFailure records a failed probe and flips the device to error
// status. Returns the updated consecutive error count.
func (r *Registry) markProbeFailure(ctx context.Context, id string, probeErr error) int {
	r.mu.Lock()
	cfg, ok := r.configs[id]
	if !ok {
		r.mu.Unlock()
		return 0
	}
	delete(r.clients, id)
	cfg.Status = StatusError
	count := r.recordProbeFailureLocked(id, probeErr)
	r.mu.Unlock()

	if err := r.persist(ctx); err != nil {
		r.logger.Error("persisting device state after failed probe", "device_id", id, "error", err)
	}

	r.publishStatus(id, StatusError)
	return count
}

// recordProbeFailureLocked updates the health record for a failure.
// The caller must hold r.mu.
func (r *Registry) recordProbeFailureLocked(id string, probeErr error) int {
	rec := r.healthRecordLocked(id)
	rec.LastProbe = time.Now().UTC()
	rec.ErrorCount++
	rec.LastError = probeErr.Error()
	return rec.ErrorCount
}

// healthRecordLocked returns the health record for id, creating it if
// needed. The caller must hold r.mu.
func (r *Registry) healthRecordLocked(id string) *HealthRecord {
	rec, ok := r.health[id]
	if !ok {
		rec = &HealthRecord{}
		r.health[id] = rec
	}
	return rec
}

// deviceLock returns the per-device mutex for id, creating it if needed.
func (r *Registry) deviceLock(id string) *sync.Mutex {
	r.locksMu.Lock()
	defer r.locksMu.Unlock()

	lock, ok := r.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[id] = lock
	}
	return lock
}

// persist snapshots all configs and saves them through the store.
func (r *Registry) persist(ctx context.Context) error {
	r.persistMu.Lock()
	defer r.persistMu.Unlock()

	r.mu.RLock()
	configs := make([]Config, 0, len(r.configs))
	for _, cfg := range r.configs {
		configs = append(configs, *cfg.DeepCopy())
	}
	r.mu.RUnlock()

	if err := r.store.Save(ctx, configs); err != nil {
		return fmt.Errorf("saving device configs: %w", err)
	}
	return nil
}

// publishStatus emits a status change event.
func (r *Registry) publishStatus(id string, status Status) {
	r.events.Publish(events.DeviceStatusChanged, map[string]any{
		"device_id": id,
		"status":    string(status),
	})
}
