package api

import (
	"net/http"
	"testing"
)

func TestMiddleware_RequestIDHeader(t *testing.T) {
	a := newTestAPI(t)

	resp := a.do(t, http.MethodGet, "/api/v1/health", "", nil)
	defer resp.Body.Close()

	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("response missing X-Request-ID header")
	}
}

func TestMiddleware_RequestIDEchoed(t *testing.T) {
	a := newTestAPI(t)

	req, err := http.NewRequest(http.MethodGet, a.http.URL+"/api/v1/health", nil)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	req.Header.Set("X-Request-ID", "caller-supplied-id")

	resp, err := a.http.Client().Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("X-Request-ID"); got != "caller-supplied-id" {
		t.Fatalf("X-Request-ID = %q, want caller-supplied-id", got)
	}
}

func TestMiddleware_CORSPreflight(t *testing.T) {
	a := newTestAPI(t)

	req, err := http.NewRequest(http.MethodOptions, a.http.URL+"/api/v1/devices", nil)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	req.Header.Set("Origin", "http://localhost:3000")

	resp, err := a.http.Client().Do(req)
	if err != nil {
		t.Fatalf("preflight failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("preflight returned %d, want 204", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Fatalf("Allow-Origin = %q", resp.Header.Get("Access-Control-Allow-Origin"))
	}
}

func TestMiddleware_OversizedBodyRejected(t *testing.T) {
	a := newTestAPI(t)
	token := a.token(t)

	huge := map[string]string{"name": string(make([]byte, maxRequestBodySize+1))}
	resp := a.do(t, http.MethodPost, "/api/v1/devices", token, huge)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("oversized body returned %d, want 400", resp.StatusCode)
	}
}
