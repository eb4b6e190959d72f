package protocol

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeDevice is an in-process device speaking the command protocol.
// Handlers receive the decoded command payload and return either a success
// payload or a device error.
type fakeDevice struct {
	t      *testing.T
	server *httptest.Server

	// handle resolves a command to a success payload or device error.
	handle func(cmd string, payload map[string]any) (any, *DeviceError)

	// apiKey, when set, must match the api_key query parameter.
	apiKey string

	// mangleMID makes the device echo a wrong message ID.
	mangleMID bool

	mu       sync.Mutex
	commands []string
}

func newFakeDevice(t *testing.T, handle func(cmd string, payload map[string]any) (any, *DeviceError)) *fakeDevice {
	t.Helper()

	d := &fakeDevice{t: t, handle: handle}
	d.server = httptest.NewServer(http.HandlerFunc(d.serve))
	t.Cleanup(d.server.Close)
	return d
}

func (d *fakeDevice) serve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || r.URL.Path != "/control" {
		http.NotFound(w, r)
		return
	}

	if d.apiKey != "" && r.URL.Query().Get("api_key") != d.apiKey {
		http.Error(w, "forbidden", http.StatusForbidden)
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

	d.mu.Lock()
	d.commands = append(d.commands, req.Cmd)
	d.mu.Unlock()

	var payload map[string]any
	if len(req.Payload) > 0 {
		if err := json.Unmarshal(req.Payload, &payload); err != nil {
			http.Error(w, "bad payload", http.StatusBadRequest)
			return
		}
	}

	mid := req.MID
	if d.mangleMID {
		mid = "ffffffff"
	}

	result, devErr := d.handle(req.Cmd, payload)

	resp := map[string]any{"mid": mid}
	if devErr != nil {
		resp["result"] = "Error"
		resp["payload"] = map[string]any{
			"code":      devErr.Code,
			"arguments": devErr.Arguments,
		}
	} else {
		resp["result"] = "Success"
		if result == nil {
			result = map[string]any{}
		}
		resp["payload"] = result
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		d.t.Errorf("encoding fake device response: %v", err)
	}
}

// address returns "host:port" for building a Client.
func (d *fakeDevice) address() string {
	return strings.TrimPrefix(d.server.URL, "http://")
}

// client returns a Client pointed at this device.
func (d *fakeDevice) client() *Client {
	return NewClient(Config{
		Address: d.address(),
		APIKey:  d.apiKey,
		Timeout: 5 * time.Second,
	})
}

// commandCount returns how many commands the device has received.
func (d *fakeDevice) commandCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.commands)
}

// staticHandler answers every command with the same payload.
func staticHandler(payload map[string]any) func(string, map[string]any) (any, *DeviceError) {
	return func(string, map[string]any) (any, *DeviceError) {
		return payload, nil
	}
}
