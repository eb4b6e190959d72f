package api

import (
	"net/http"
	"testing"

	"github.com/veripoint/veripoint-core/internal/device"
)

func TestDevices_CRUD(t *testing.T) {
	a := newTestAPI(t)
	token := a.token(t)
	terminal := newFakeTerminal(t)

	// Create
	resp := a.do(t, http.MethodPost, "/api/v1/devices", token, terminal.config("lobby-01"))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create returned %d, want 201", resp.StatusCode)
	}
	created := decodeBody(t, resp)
	if created["device_id"] != "lobby-01" {
		t.Fatalf("created device_id = %v", created["device_id"])
	}
	if created["status"] != string(device.StatusDisconnected) {
		t.Fatalf("new device status = %v, want disconnected", created["status"])
	}

	// Get
	resp = a.do(t, http.MethodGet, "/api/v1/devices/lobby-01", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get returned %d, want 200", resp.StatusCode)
	}
	resp.Body.Close()

	// List
	resp = a.do(t, http.MethodGet, "/api/v1/devices", token, nil)
	list := decodeBody(t, resp)
	if count, _ := list["count"].(float64); count != 1 {
		t.Fatalf("list count = %v, want 1", list["count"])
	}

	// Patch
	resp = a.do(t, http.MethodPatch, "/api/v1/devices/lobby-01", token,
		map[string]string{"branch": "hq"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch returned %d, want 200", resp.StatusCode)
	}
	patched := decodeBody(t, resp)
	if patched["branch"] != "hq" {
		t.Fatalf("patched branch = %v, want hq", patched["branch"])
	}

	// Delete
	resp = a.do(t, http.MethodDelete, "/api/v1/devices/lobby-01", token, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete returned %d, want 204", resp.StatusCode)
	}
	resp.Body.Close()

	resp = a.do(t, http.MethodGet, "/api/v1/devices/lobby-01", token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete returned %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestDevices_ListFilters(t *testing.T) {
	a := newTestAPI(t)
	token := a.token(t)
	terminal := newFakeTerminal(t)

	cfgA := terminal.config("site-a-01")
	cfgA.Branch = "alpha"
	cfgB := terminal.config("site-b-01")
	cfgB.Branch = "beta"

	for _, cfg := range []device.Config{cfgA, cfgB} {
		resp := a.do(t, http.MethodPost, "/api/v1/devices", token, cfg)
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("create %s returned %d", cfg.ID, resp.StatusCode)
		}
		resp.Body.Close()
	}

	resp := a.do(t, http.MethodGet, "/api/v1/devices?branch=alpha", token, nil)
	body := decodeBody(t, resp)
	if count, _ := body["count"].(float64); count != 1 {
		t.Fatalf("branch filter count = %v, want 1", body["count"])
	}

	resp = a.do(t, http.MethodGet, "/api/v1/devices?status=connected", token, nil)
	body = decodeBody(t, resp)
	if count, _ := body["count"].(float64); count != 0 {
		t.Fatalf("status filter count = %v, want 0", body["count"])
	}
}

func TestDevices_CreateInvalid(t *testing.T) {
	a := newTestAPI(t)
	token := a.token(t)

	// Missing host fails registry validation.
	resp := a.do(t, http.MethodPost, "/api/v1/devices", token,
		map[string]string{"device_id": "broken"})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid create returned %d, want 400", resp.StatusCode)
	}
}

func TestDevices_ConnectDisconnect(t *testing.T) {
	a := newTestAPI(t)
	token := a.token(t)
	terminal := newFakeTerminal(t)

	resp := a.do(t, http.MethodPost, "/api/v1/devices", token, terminal.config("gate-01"))
	resp.Body.Close()

	resp = a.do(t, http.MethodPost, "/api/v1/devices/gate-01/connect", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("connect returned %d, want 200", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["status"] != string(device.StatusConnected) {
		t.Fatalf("status after connect = %v, want connected", body["status"])
	}

	resp = a.do(t, http.MethodPost, "/api/v1/devices/gate-01/disconnect", token, nil)
	body = decodeBody(t, resp)
	if was, _ := body["was_connected"].(bool); !was {
		t.Fatal("disconnect reported was_connected=false for a connected device")
	}

	// Second disconnect is a no-op, not an error.
	resp = a.do(t, http.MethodPost, "/api/v1/devices/gate-01/disconnect", token, nil)
	body = decodeBody(t, resp)
	if was, _ := body["was_connected"].(bool); was {
		t.Fatal("second disconnect reported was_connected=true")
	}
}

func TestDevices_ConnectFailureMapsToBadGateway(t *testing.T) {
	a := newTestAPI(t)
	token := a.token(t)
	terminal := newFakeTerminal(t)
	terminal.failing.Store(true)

	resp := a.do(t, http.MethodPost, "/api/v1/devices", token, terminal.config("broken-01"))
	resp.Body.Close()

	resp = a.do(t, http.MethodPost, "/api/v1/devices/broken-01/connect", token, nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("failed connect returned %d, want 502", resp.StatusCode)
	}
}

func TestDevices_PassthroughRequiresConnection(t *testing.T) {
	a := newTestAPI(t)
	token := a.token(t)
	terminal := newFakeTerminal(t)

	resp := a.do(t, http.MethodPost, "/api/v1/devices", token, terminal.config("hr-01"))
	resp.Body.Close()

	// Disconnected device: passthrough answers 409.
	resp = a.do(t, http.MethodGet, "/api/v1/devices/hr-01/time", token, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("passthrough on disconnected device returned %d, want 409", resp.StatusCode)
	}
	resp.Body.Close()

	resp = a.do(t, http.MethodPost, "/api/v1/devices/hr-01/connect", token, nil)
	resp.Body.Close()

	resp = a.do(t, http.MethodGet, "/api/v1/devices/hr-01/time", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("passthrough on connected device returned %d, want 200", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["time"] != "2026-08-29T09:00:00" {
		t.Fatalf("device time = %v", body["time"])
	}
}

func TestDevices_LockUnlock(t *testing.T) {
	a := newTestAPI(t)
	token := a.token(t)
	terminal := newFakeTerminal(t)

	resp := a.do(t, http.MethodPost, "/api/v1/devices", token, terminal.config("lock-01"))
	resp.Body.Close()
	resp = a.do(t, http.MethodPost, "/api/v1/devices/lock-01/connect", token, nil)
	resp.Body.Close()

	resp = a.do(t, http.MethodPost, "/api/v1/devices/lock-01/lock", token, nil)
	body := decodeBody(t, resp)
	if locked, _ := body["locked"].(bool); !locked {
		t.Fatal("lock endpoint reported locked=false")
	}

	resp = a.do(t, http.MethodPost, "/api/v1/devices/lock-01/unlock", token, nil)
	body = decodeBody(t, resp)
	if locked, _ := body["locked"].(bool); locked {
		t.Fatal("unlock endpoint reported locked=true")
	}
}

func TestDevices_ControlRejectsUnknownAction(t *testing.T) {
	a := newTestAPI(t)
	token := a.token(t)
	terminal := newFakeTerminal(t)

	resp := a.do(t, http.MethodPost, "/api/v1/devices", token, terminal.config("ctl-01"))
	resp.Body.Close()
	resp = a.do(t, http.MethodPost, "/api/v1/devices/ctl-01/connect", token, nil)
	resp.Body.Close()

	resp = a.do(t, http.MethodPost, "/api/v1/devices/ctl-01/control", token,
		map[string]string{"action": "FormatDisk"})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown control action returned %d, want 400", resp.StatusCode)
	}
}

func TestDevices_Stats(t *testing.T) {
	a := newTestAPI(t)
	token := a.token(t)
	terminal := newFakeTerminal(t)

	resp := a.do(t, http.MethodPost, "/api/v1/devices", token, terminal.config("stats-01"))
	resp.Body.Close()
	resp = a.do(t, http.MethodPost, "/api/v1/devices/stats-01/connect", token, nil)
	resp.Body.Close()

	resp = a.do(t, http.MethodGet, "/api/v1/devices/stats", token, nil)
	body := decodeBody(t, resp)
	if total, _ := body["total"].(float64); total != 1 {
		t.Fatalf("stats total = %v, want 1", body["total"])
	}
	if connected, _ := body["connected"].(float64); connected != 1 {
		t.Fatalf("stats connected = %v, want 1", body["connected"])
	}
}

func TestDevices_HealthEndpoint(t *testing.T) {
	a := newTestAPI(t)
	token := a.token(t)
	terminal := newFakeTerminal(t)

	resp := a.do(t, http.MethodPost, "/api/v1/devices", token, terminal.config("health-01"))
	resp.Body.Close()

	resp = a.do(t, http.MethodGet, "/api/v1/devices/health-01/health", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health returned %d, want 200", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["device_id"] != "health-01" {
		t.Fatalf("health device_id = %v", body["device_id"])
	}
	if _, ok := body["health"]; !ok {
		t.Fatal("health response missing health record")
	}

	resp = a.do(t, http.MethodGet, "/api/v1/devices/ghost/health", token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("health for unknown device returned %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestDevices_ReconnectAll(t *testing.T) {
	a := newTestAPI(t)
	token := a.token(t)
	terminal := newFakeTerminal(t)

	resp := a.do(t, http.MethodPost, "/api/v1/devices", token, terminal.config("rc-01"))
	resp.Body.Close()

	resp = a.do(t, http.MethodPost, "/api/v1/devices/reconnect", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reconnect returned %d, want 200", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if attempted, _ := body["attempted"].(float64); attempted != 1 {
		t.Fatalf("reconnect attempted = %v, want 1", body["attempted"])
	}
	if succeeded, _ := body["succeeded"].(float64); succeeded != 1 {
		t.Fatalf("reconnect succeeded = %v, want 1", body["succeeded"])
	}
}

func TestSystemInfo(t *testing.T) {
	a := newTestAPI(t)
	token := a.token(t)

	resp := a.do(t, http.MethodGet, "/api/v1/system/info", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("system info returned %d, want 200", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["version"] != "test" {
		t.Fatalf("system info version = %v, want test", body["version"])
	}
	if _, ok := body["fleet"]; !ok {
		t.Fatal("system info missing fleet stats")
	}
}
