package device

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
)

// fakeTerminal is an in-process biometric terminal speaking the control
// protocol. It answers the probe commands the registry issues and can be
// switched to a failing mode to simulate an unreachable or broken device.
type fakeTerminal struct {
	t      *testing.T
	server *httptest.Server

	failing atomic.Bool

	mu     sync.Mutex
	probes int
}

func newFakeTerminal(t *testing.T) *fakeTerminal {
	t.Helper()

	f := &fakeTerminal{t: t}
	f.server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeTerminal) serve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || r.URL.Path != "/control" {
		http.NotFound(w, r)
		return
	}

	var req struct {
		MID     string          `json:"mid"`
		Cmd     string          `json:"cmd"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if f.failing.Load() {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	var payload any
	switch req.Cmd {
	case "GetVersionInfo":
		f.mu.Lock()
		f.probes++
		f.mu.Unlock()
		payload = map[string]any{"firmware_version": "1.0.0"}
	case "GetDeviceCapabilities":
		payload = map[string]any{"face": true, "fp": true}
	default:
		payload = map[string]any{}
	}

	resp := map[string]any{
		"mid":     req.MID,
		"result":  "Success",
		"payload": payload,
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		f.t.Errorf("encoding response: %v", err)
	}
}

// probeCount returns the number of GetVersionInfo commands served.
func (f *fakeTerminal) probeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.probes
}

// hostPort splits the fixture's listen address for use in a device Config.
func (f *fakeTerminal) hostPort() (string, int) {
	f.t.Helper()
	return splitTestAddr(f.t, f.server.Listener.Addr().String())
}

// splitTestAddr splits "host:port" for use in a device Config.
func splitTestAddr(t *testing.T, addr string) (string, int) {
	t.Helper()

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("splitting fixture address %q: %v", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parsing fixture port %q: %v", portStr, err)
	}
	return host, port
}

// config returns a device Config pointing at the fixture.
func (f *fakeTerminal) config(id string) Config {
	host, port := f.hostPort()
	return Config{
		ID:   id,
		Name: "Fixture " + id,
		Host: host,
		Port: port,
	}
}

// boolPtr returns a pointer to b, for optional config flags.
func boolPtr(b bool) *bool { return &b }

// memoryStore is a ConfigStore kept entirely in memory, with optional
// injected failures.
type memoryStore struct {
	mu      sync.Mutex
	configs []Config
	saves   int

	loadErr error
	saveErr error
}

func (s *memoryStore) Load(_ context.Context) ([]Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loadErr != nil {
		return nil, s.loadErr
	}
	out := make([]Config, len(s.configs))
	copy(out, s.configs)
	return out, nil
}

func (s *memoryStore) Save(_ context.Context, configs []Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.saveErr != nil {
		return s.saveErr
	}
	s.configs = make([]Config, len(configs))
	copy(s.configs, configs)
	s.saves++
	return nil
}

// recorder captures published events for assertions.
type recorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

type recordedEvent struct {
	name string
	data any
}

func (r *recorder) Publish(event string, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{name: event, data: data})
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.name
	}
	return out
}

func (r *recorder) has(event string) bool {
	for _, name := range r.names() {
		if name == event {
			return true
		}
	}
	return false
}
