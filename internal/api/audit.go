package api

import (
	"net/http"
	"strconv"

	"github.com/veripoint/veripoint-core/internal/audit"
)

// recordAudit appends an entry to the audit trail. Failures are logged
// and never fail the request; a broken trail must not block the door.
func (s *Server) recordAudit(r *http.Request, action, deviceID string, details map[string]any) {
	if s.auditRepo == nil {
		return
	}

	actor, _ := r.Context().Value(ctxKeyActor).(string) //nolint:errcheck // absent actor stays empty

	entry := audit.Entry{
		Action:   action,
		DeviceID: deviceID,
		Actor:    actor,
		Details:  details,
	}
	if err := s.auditRepo.Record(r.Context(), &entry); err != nil {
		s.logger.Error("failed to record audit entry",
			"action", action,
			"device_id", deviceID,
			"error", err,
		)
	}
}

// handleListAudit returns audit trail entries, newest first.
//
// Query parameters:
//   - action: filter by action (e.g. device.control)
//   - device_id: filter by device
//   - limit: page size (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.auditRepo == nil {
		writeNotFound(w, "audit trail not configured")
		return
	}

	filter := audit.Filter{
		Action:   r.URL.Query().Get("action"),
		DeviceID: r.URL.Query().Get("device_id"),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			writeBadRequest(w, "offset must be a non-negative integer")
			return
		}
		filter.Offset = offset
	}

	result, err := s.auditRepo.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list audit entries", "error", err)
		writeInternalError(w, "failed to list audit entries")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
