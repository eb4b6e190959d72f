package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/veripoint/veripoint-core/internal/audit"
	"github.com/veripoint/veripoint-core/internal/device"
)

// handleListDevices returns all registered devices, with optional filters.
//
// Query parameters:
//   - branch: filter by branch name
//   - status: filter by connection status (disconnected, connecting, connected, error)
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	configs := s.registry.ListConfigs()

	if branch := r.URL.Query().Get("branch"); branch != "" {
		configs = filterConfigs(configs, func(c device.Config) bool {
			return strings.EqualFold(c.Branch, branch)
		})
	}

	if status := r.URL.Query().Get("status"); status != "" {
		configs = filterConfigs(configs, func(c device.Config) bool {
			return string(c.Status) == status
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"devices": configs, "count": len(configs)})
}

func filterConfigs(configs []device.Config, keep func(device.Config) bool) []device.Config {
	out := configs[:0]
	for _, c := range configs {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}

// handleGetDevice returns a single device config by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	cfg, err := s.registry.GetConfig(id)
	if err != nil {
		writeDeviceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, cfg)
}

// handleCreateDevice registers a new device or replaces an existing one.
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var cfg device.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	created, err := s.registry.Upsert(r.Context(), cfg)
	if err != nil {
		writeDeviceError(w, err)
		return
	}

	s.recordAudit(r, audit.ActionDeviceCreate, created.ID, map[string]any{"name": created.Name})
	writeJSON(w, http.StatusCreated, created)
}

// handleUpdateDevice applies a partial update to a device config.
//
// If a connection-affecting field changes (host, port, API key, transport)
// and the device is currently connected, the registry reconnects it with
// the new settings.
func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var update device.ConfigUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	cfg, err := s.registry.UpdateConfig(r.Context(), id, update)
	if err != nil {
		writeDeviceError(w, err)
		return
	}

	s.recordAudit(r, audit.ActionDeviceUpdate, id, nil)
	writeJSON(w, http.StatusOK, cfg)
}

// handleDeleteDevice disconnects and removes a device from the registry.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.registry.Remove(r.Context(), id); err != nil {
		writeDeviceError(w, err)
		return
	}

	s.recordAudit(r, audit.ActionDeviceDelete, id, nil)
	w.WriteHeader(http.StatusNoContent)
}

// handleConnectDevice establishes a live connection to a device.
func (s *Server) handleConnectDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.registry.Connect(r.Context(), id); err != nil {
		writeDeviceError(w, err)
		return
	}
	s.recordAudit(r, audit.ActionDeviceConnect, id, nil)

	cfg, err := s.registry.GetConfig(id)
	if err != nil {
		writeDeviceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, cfg)
}

// handleDisconnectDevice tears down a device's live connection.
// Disconnecting an already-disconnected device is not an error.
func (s *Server) handleDisconnectDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	wasConnected, err := s.registry.Disconnect(r.Context(), id)
	if err != nil {
		writeDeviceError(w, err)
		return
	}

	s.recordAudit(r, audit.ActionDeviceDisconnect, id, map[string]any{"was_connected": wasConnected})
	writeJSON(w, http.StatusOK, map[string]any{
		"device_id":     id,
		"was_connected": wasConnected,
	})
}

// handleReconnectAll reconnects every device that opted into auto-reconnect.
// Attempts run concurrently; the response reports each device's outcome.
func (s *Server) handleReconnectAll(w http.ResponseWriter, r *http.Request) {
	if s.reconnector == nil {
		writeInternalError(w, "reconnect coordinator not configured")
		return
	}

	results := s.reconnector.ReconnectAll(r.Context())

	type reconnectOutcome struct {
		DeviceID string `json:"device_id"`
		Success  bool   `json:"success"`
		Error    string `json:"error,omitempty"`
	}

	outcomes := make([]reconnectOutcome, 0, len(results))
	succeeded := 0
	for _, res := range results {
		out := reconnectOutcome{DeviceID: res.DeviceID, Success: res.Err == nil}
		if res.Err != nil {
			out.Error = res.Err.Error()
		} else {
			succeeded++
		}
		outcomes = append(outcomes, out)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"attempted": len(results),
		"succeeded": succeeded,
		"results":   outcomes,
	})
}

// handleDeviceStats returns fleet-wide connection counts.
func (s *Server) handleDeviceStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Stats())
}

// handleDeviceHealth returns the current health record for a device plus
// recent probe history when a history store is configured.
//
// Query parameters:
//   - limit: maximum history rows to return (default 50, capped at 200)
func (s *Server) handleDeviceHealth(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	health, err := s.registry.GetHealth(id)
	if err != nil {
		writeDeviceError(w, err)
		return
	}

	resp := map[string]any{
		"device_id": id,
		"health":    health,
	}

	if s.history != nil {
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 0 {
				writeBadRequest(w, "limit must be a non-negative integer")
				return
			}
			limit = parsed
		}

		history, err := s.history.GetHistory(r.Context(), id, limit)
		if err != nil {
			s.logger.Error("failed to load probe history", "device_id", id, "error", err)
		} else {
			resp["history"] = history
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
