package api

import (
	"net/http"
	"time"
)

// handleSystemInfo returns version, uptime and fleet-wide counters.
func (s *Server) handleSystemInfo(w http.ResponseWriter, _ *http.Request) {
	stats := s.registry.Stats()

	writeJSON(w, http.StatusOK, map[string]any{
		"version":        s.version,
		"started_at":     s.startedAt.Format(time.RFC3339),
		"uptime_seconds": int(time.Since(s.startedAt).Seconds()),
		"fleet":          stats,
		"ws_clients":     s.hub.ClientCount(),
	})
}
