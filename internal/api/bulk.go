package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/veripoint/veripoint-core/internal/audit"
	"github.com/veripoint/veripoint-core/internal/device"
)

// handleSubmitBulkOperation starts a bulk operation across multiple devices.
//
// The operation runs in the background; the response carries the operation
// ID so callers can poll GET /bulk/{id} or watch progress events over the
// WebSocket.
func (s *Server) handleSubmitBulkOperation(w http.ResponseWriter, r *http.Request) {
	var req device.BulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	// The run outlives this request; net/http cancels r.Context() as soon
	// as the 202 is written, which must not cancel the operation.
	op, err := s.bulk.Submit(context.WithoutCancel(r.Context()), req)
	if err != nil {
		switch {
		case errors.Is(err, device.ErrInvalidOperationType),
			errors.Is(err, device.ErrNoDevices):
			writeBadRequest(w, err.Error())
		default:
			writeInternalError(w, err.Error())
		}
		return
	}

	s.recordAudit(r, audit.ActionBulkSubmit, "", map[string]any{
		"operation_id": op.ID,
		"type":         string(op.Type),
		"devices":      op.Total,
	})
	writeJSON(w, http.StatusAccepted, op)
}

// handleListBulkOperations returns all tracked bulk operations.
func (s *Server) handleListBulkOperations(w http.ResponseWriter, _ *http.Request) {
	ops := s.bulk.List()
	writeJSON(w, http.StatusOK, map[string]any{"operations": ops, "count": len(ops)})
}

// handleGetBulkOperation returns one bulk operation's current state.
func (s *Server) handleGetBulkOperation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	op, err := s.bulk.Get(id)
	if err != nil {
		writeNotFound(w, "bulk operation not found")
		return
	}

	writeJSON(w, http.StatusOK, op)
}

// handleCancelBulkOperation requests cancellation of a running bulk
// operation. The device currently being processed finishes first;
// remaining devices are skipped.
func (s *Server) handleCancelBulkOperation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.bulk.Cancel(id); err != nil {
		writeNotFound(w, "bulk operation not found")
		return
	}
	s.recordAudit(r, audit.ActionBulkCancel, "", map[string]any{"operation_id": id})

	op, err := s.bulk.Get(id)
	if err != nil {
		writeNotFound(w, "bulk operation not found")
		return
	}

	writeJSON(w, http.StatusOK, op)
}
