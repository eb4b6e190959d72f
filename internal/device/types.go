package device

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a device connection.
type Status string

// Valid device statuses.
const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
)

// Config is the persisted description of one biometric terminal.
//
// ID is the immutable registry key; everything else can be updated. Status
// and LastConnected are runtime facts that are persisted alongside the
// static fields so the fleet picture survives a restart.
type Config struct {
	// ID uniquely identifies the device in the registry.
	ID string `json:"device_id"`

	// Name is a human-readable label.
	Name string `json:"name"`

	// Branch and Location describe where the terminal is installed.
	Branch   string `json:"branch,omitempty"`
	Location string `json:"location,omitempty"`

	// Host and Port locate the device's control endpoint.
	Host string `json:"host"`
	Port int    `json:"port,omitempty"`

	// APIKey authenticates commands to the device.
	APIKey string `json:"api_key,omitempty"`

	// UseHTTPS selects TLS transport to the device.
	UseHTTPS bool `json:"use_https"`

	// AutoReconnect opts the device into ReconnectAll sweeps.
	// Unset means enabled; Upsert normalises it when storing.
	AutoReconnect *bool `json:"auto_reconnect,omitempty"`

	// Status is the last observed connection state.
	Status Status `json:"status"`

	// LastConnected is when the device last reached connected state.
	LastConnected *time.Time `json:"last_connected,omitempty"`

	// Capabilities is the device-reported feature map, refreshed on connect.
	Capabilities map[string]any `json:"capabilities,omitempty"`
}

// ReconnectEnabled reports whether the device takes part in ReconnectAll
// sweeps. An unset flag counts as enabled.
func (c *Config) ReconnectEnabled() bool {
	return c.AutoReconnect == nil || *c.AutoReconnect
}

// Address returns "host" or "host:port" for the protocol client.
func (c *Config) Address() string {
	if c.Port > 0 {
		return fmt.Sprintf("%s:%d", c.Host, c.Port)
	}
	return c.Host
}

// DeepCopy returns a copy sharing no mutable state with the original.
// Registry reads hand out copies so callers can never corrupt the cache.
func (c *Config) DeepCopy() *Config {
	if c == nil {
		return nil
	}

	clone := *c

	if c.AutoReconnect != nil {
		b := *c.AutoReconnect
		clone.AutoReconnect = &b
	}

	if c.LastConnected != nil {
		t := *c.LastConnected
		clone.LastConnected = &t
	}

	if c.Capabilities != nil {
		clone.Capabilities = make(map[string]any, len(c.Capabilities))
		for k, v := range c.Capabilities {
			clone.Capabilities[k] = v
		}
	}

	return &clone
}

// ConfigUpdate is a partial device update. Nil fields are left unchanged.
type ConfigUpdate struct {
	Name          *string `json:"name,omitempty"`
	Branch        *string `json:"branch,omitempty"`
	Location      *string `json:"location,omitempty"`
	Host          *string `json:"host,omitempty"`
	Port          *int    `json:"port,omitempty"`
	APIKey        *string `json:"api_key,omitempty"`
	UseHTTPS      *bool   `json:"use_https,omitempty"`
	AutoReconnect *bool   `json:"auto_reconnect,omitempty"`
}

// apply merges the update into cfg and reports whether a field that affects
// the live connection (host, port, api key, transport) changed.
func (u ConfigUpdate) apply(cfg *Config) (connectionChanged bool) {
	if u.Name != nil {
		cfg.Name = *u.Name
	}
	if u.Branch != nil {
		cfg.Branch = *u.Branch
	}
	if u.Location != nil {
		cfg.Location = *u.Location
	}
	if u.Host != nil && *u.Host != cfg.Host {
		cfg.Host = *u.Host
		connectionChanged = true
	}
	if u.Port != nil && *u.Port != cfg.Port {
		cfg.Port = *u.Port
		connectionChanged = true
	}
	if u.APIKey != nil && *u.APIKey != cfg.APIKey {
		cfg.APIKey = *u.APIKey
		connectionChanged = true
	}
	if u.UseHTTPS != nil && *u.UseHTTPS != cfg.UseHTTPS {
		cfg.UseHTTPS = *u.UseHTTPS
		connectionChanged = true
	}
	if u.AutoReconnect != nil {
		b := *u.AutoReconnect
		cfg.AutoReconnect = &b
	}
	return connectionChanged
}

// HealthRecord is the registry's view of one device's recent probe results.
type HealthRecord struct {
	// LastProbe is when the device was last probed.
	LastProbe time.Time `json:"last_probe"`

	// ResponseTimeMs is the latency of the last successful probe.
	ResponseTimeMs int64 `json:"response_time_ms"`

	// ErrorCount counts consecutive probe failures.
	ErrorCount int `json:"error_count"`

	// LastError describes the most recent probe failure, if any.
	LastError string `json:"last_error,omitempty"`
}

// ReconnectResult is the outcome of one device's reconnection attempt.
type ReconnectResult struct {
	DeviceID string `json:"device_id"`
	Err      error  `json:"-"`
}

// Stats summarises the fleet by connection status.
type Stats struct {
	Total        int `json:"total"`
	Connected    int `json:"connected"`
	Disconnected int `json:"disconnected"`
	Errored      int `json:"errored"`
}
