package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/veripoint/veripoint-core/internal/audit"
	"github.com/veripoint/veripoint-core/internal/device"
	"github.com/veripoint/veripoint-core/internal/infrastructure/config"
	"github.com/veripoint/veripoint-core/internal/infrastructure/database"
	"github.com/veripoint/veripoint-core/internal/infrastructure/logging"
)

const (
	testOperatorKey = "test-operator-key"
	testJWTSecret   = "test-jwt-secret"
)

// fakeTerminal is an in-process biometric terminal speaking the control
// protocol, used as the target of passthrough and connection endpoints.
type fakeTerminal struct {
	t      *testing.T
	server *httptest.Server

	failing atomic.Bool

	// delay is a per-command response delay in nanoseconds.
	delay atomic.Int64
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

	if d := time.Duration(f.delay.Load()); d > 0 {
		time.Sleep(d)
	}

	var payload any
	switch req.Cmd {
	case "GetVersionInfo":
		payload = map[string]any{"firmware_version": "2.1.0"}
	case "GetDeviceCapabilities":
		payload = map[string]any{"face": true, "fp": true}
	case "GetDeviceTime":
		payload = map[string]any{"time": "2026-08-29T09:00:00"}
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

// config returns a device Config pointing at the fixture.
func (f *fakeTerminal) config(id string) device.Config {
	f.t.Helper()

	host, portStr, err := net.SplitHostPort(f.server.Listener.Addr().String())
	if err != nil {
		f.t.Fatalf("splitting fixture address: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		f.t.Fatalf("parsing fixture port: %v", err)
	}

	return device.Config{
		ID:   id,
		Name: "Fixture " + id,
		Host: host,
		Port: port,
	}
}

// testAPI bundles a running API server with handles to its collaborators.
type testAPI struct {
	srv      *Server
	http     *httptest.Server
	registry *device.Registry
}

// newTestAPI builds a full server wired to a file-backed registry and
// serves its router over httptest.
func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	logger := logging.New(config.LoggingConfig{Level: "error", Format: "text"}, "test")

	store := device.NewFileStore(filepath.Join(t.TempDir(), "devices.json"))
	registry := device.NewRegistry(store, nil)
	if err := registry.Load(context.Background()); err != nil {
		t.Fatalf("loading registry: %v", err)
	}

	bulk := device.NewBulkExecutor(registry, nil)
	recon := device.NewReconnectCoordinator(registry)
	auditRepo := newTestAuditRepo(t)

	srv, err := New(Deps{
		Config: config.APIConfig{},
		WS: config.WebSocketConfig{
			MaxMessageSize: 4096,
			PingInterval:   30,
			PongTimeout:    60,
		},
		Security: config.SecurityConfig{
			JWT:         config.JWTConfig{Secret: testJWTSecret, AccessTokenTTL: 5},
			OperatorKey: testOperatorKey,
		},
		Logger:      logger,
		Registry:    registry,
		Reconnector: recon,
		Bulk:        bulk,
		Audit:       auditRepo,
		Version:     "test",
	})
	if err != nil {
		t.Fatalf("creating server: %v", err)
	}

	srv.hub = NewHub(srv.wsCfg, logger)
	srv.startedAt = time.Now().UTC()

	ts := httptest.NewServer(srv.buildRouter())
	t.Cleanup(ts.Close)

	return &testAPI{srv: srv, http: ts, registry: registry}
}

// newTestAuditRepo opens a throwaway SQLite database with the audit
// schema applied.
func newTestAuditRepo(t *testing.T) *audit.SQLiteRepository {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "veripoint.db"),
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening audit database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("closing audit database: %v", err)
		}
	})

	schema := `CREATE TABLE audit_log (
		id TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		device_id TEXT,
		actor TEXT,
		details TEXT,
		created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
	)`
	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		t.Fatalf("creating audit schema: %v", err)
	}

	return audit.NewSQLiteRepository(db.DB)
}

// token exchanges the operator key for a bearer token.
func (a *testAPI) token(t *testing.T) string {
	t.Helper()

	resp := a.do(t, http.MethodPost, "/api/v1/auth/token", "",
		map[string]string{"operator_key": testOperatorKey})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("token exchange returned %d", resp.StatusCode)
	}

	var body tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding token response: %v", err)
	}
	if body.AccessToken == "" {
		t.Fatal("token exchange returned empty access token")
	}
	return body.AccessToken
}

// do issues a request against the test server, optionally authenticated
// and with a JSON body.
func (a *testAPI) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encoding request body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, a.http.URL+path, reader)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.http.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

// decodeBody decodes a JSON response body into a generic map.
func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()

	defer resp.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response body: %v", err)
	}
	return body
}
