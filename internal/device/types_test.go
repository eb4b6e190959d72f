package device

import (
	"errors"
	"testing"
	"time"
)

func TestConfig_Address(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"host only", Config{Host: "10.0.0.5"}, "10.0.0.5"},
		{"host and port", Config{Host: "10.0.0.5", Port: 8080}, "10.0.0.5:8080"},
		{"zero port omitted", Config{Host: "terminal.local", Port: 0}, "terminal.local"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.Address(); got != tt.want {
				t.Errorf("Address() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConfig_DeepCopy(t *testing.T) {
	now := time.Now().UTC()
	original := &Config{
		ID:            "d1",
		Host:          "10.0.0.5",
		LastConnected: &now,
		Capabilities:  map[string]any{"face": true},
	}

	clone := original.DeepCopy()
	clone.Capabilities["face"] = false
	*clone.LastConnected = now.Add(time.Hour)

	if original.Capabilities["face"] != true {
		t.Error("DeepCopy shares capability map with original")
	}
	if !original.LastConnected.Equal(now) {
		t.Error("DeepCopy shares timestamp pointer with original")
	}

	var nilCfg *Config
	if nilCfg.DeepCopy() != nil {
		t.Error("DeepCopy of nil should be nil")
	}
}

func TestConfigUpdate_Apply(t *testing.T) {
	str := func(s string) *string { return &s }
	num := func(n int) *int { return &n }
	flag := func(b bool) *bool { return &b }

	tests := []struct {
		name        string
		update      ConfigUpdate
		wantChanged bool
	}{
		{"name only", ConfigUpdate{Name: str("New Name")}, false},
		{"branch and location", ConfigUpdate{Branch: str("b"), Location: str("l")}, false},
		{"auto reconnect", ConfigUpdate{AutoReconnect: flag(false)}, false},
		{"new host", ConfigUpdate{Host: str("10.0.0.9")}, true},
		{"same host", ConfigUpdate{Host: str("10.0.0.5")}, false},
		{"new port", ConfigUpdate{Port: num(9090)}, true},
		{"api key", ConfigUpdate{APIKey: str("secret")}, true},
		{"https toggle", ConfigUpdate{UseHTTPS: flag(true)}, true},
		{"same https", ConfigUpdate{UseHTTPS: flag(false)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{ID: "d1", Host: "10.0.0.5", Port: 80, AutoReconnect: flag(true)}
			if got := tt.update.apply(&cfg); got != tt.wantChanged {
				t.Errorf("apply() connectionChanged = %v, want %v", got, tt.wantChanged)
			}
		})
	}
}

func TestConnectionFailedError_Unwrap(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := &ConnectionFailedError{DeviceID: "d1", Err: cause}

	if !errors.Is(err, cause) {
		t.Error("errors.Is should reach the wrapped cause")
	}
	if err.Error() == "" {
		t.Error("Error() should describe the failure")
	}
}
