package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/veripoint/veripoint-core/internal/audit"
	"github.com/veripoint/veripoint-core/internal/protocol"
)

// Enrollment wait defaults. Terminals prompt the person on-screen, so
// completion is bounded by how fast a human presents a finger or face.
const (
	defaultEnrollWaitTimeout = 60 * time.Second
	defaultEnrollPollEvery   = time.Second
	maxEnrollWaitSeconds     = 300
)

// deviceClient resolves the live protocol client for the device in the URL.
// Writes the error response itself when the device is unknown or offline.
func (s *Server) deviceClient(w http.ResponseWriter, r *http.Request) (*protocol.Client, string, bool) {
	id := chi.URLParam(r, "id")
	client, err := s.registry.GetDevice(id)
	if err != nil {
		writeDeviceError(w, err)
		return nil, id, false
	}
	return client, id, true
}

// handleDeviceInfo returns live facts from the device itself: firmware
// version, capabilities, capacity limits and current usage.
func (s *Server) handleDeviceInfo(w http.ResponseWriter, r *http.Request) {
	client, id, ok := s.deviceClient(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	version, err := client.GetVersionInfo(ctx)
	if err != nil {
		writeDeviceError(w, err)
		return
	}

	resp := map[string]any{
		"device_id":        id,
		"firmware_version": version.FirmwareVersion,
	}

	// Secondary facts are best-effort; older firmware rejects some of
	// these commands.
	if caps, err := client.GetDeviceCapabilities(ctx); err == nil {
		resp["capabilities"] = caps
	}
	if limits, err := client.GetCapacityLimit(ctx); err == nil {
		resp["capacity_limit"] = limits
	}
	if usage, err := client.GetCurrentUsage(ctx); err == nil {
		resp["current_usage"] = usage
	}
	if uid, err := client.GetDeviceUID(ctx); err == nil {
		resp["device_uid"] = uid
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleListUsers returns user IDs enrolled on the device.
//
// Query parameters:
//   - pos: page start position; omit for the full list drained across pages
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	client, _, ok := s.deviceClient(w, r)
	if !ok {
		return
	}

	if raw := r.URL.Query().Get("pos"); raw != "" {
		pos, err := strconv.Atoi(raw)
		if err != nil {
			writeBadRequest(w, "pos must be an integer")
			return
		}
		page, err := client.GetUserIDList(r.Context(), &pos)
		if err != nil {
			writeDeviceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
		return
	}

	ids, err := client.GetAllUserIDs(r.Context())
	if err != nil {
		writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_ids": ids, "count": len(ids)})
}

// handleGetUser returns one user's record from the device.
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	client, _, ok := s.deviceClient(w, r)
	if !ok {
		return
	}

	user, err := client.GetUserInfo(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// handleSetUser creates or replaces a user record on the device.
// The user ID in the URL wins over any ID in the body.
func (s *Server) handleSetUser(w http.ResponseWriter, r *http.Request) {
	client, _, ok := s.deviceClient(w, r)
	if !ok {
		return
	}

	var user protocol.UserInfo
	if err := json.NewDecoder(r.Body).Decode(&user); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	user.ID = chi.URLParam(r, "userID")

	if err := client.SetUserInfo(r.Context(), user); err != nil {
		writeDeviceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDeleteUser removes a user record from the device.
func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	client, _, ok := s.deviceClient(w, r)
	if !ok {
		return
	}

	userID := chi.URLParam(r, "userID")
	if err := client.DeleteUserInfo(r.Context(), userID); err != nil {
		writeDeviceError(w, err)
		return
	}
	s.recordAudit(r, audit.ActionUserDelete, chi.URLParam(r, "id"), map[string]any{"user_id": userID})
	w.WriteHeader(http.StatusNoContent)
}

// handleGetAttendance returns attendance records from the device.
//
// Query parameters:
//   - pos: page start position; omit for the full log drained across pages
func (s *Server) handleGetAttendance(w http.ResponseWriter, r *http.Request) {
	client, _, ok := s.deviceClient(w, r)
	if !ok {
		return
	}

	if raw := r.URL.Query().Get("pos"); raw != "" {
		pos, err := strconv.Atoi(raw)
		if err != nil {
			writeBadRequest(w, "pos must be an integer")
			return
		}
		page, err := client.GetAttendLog(r.Context(), &pos)
		if err != nil {
			writeDeviceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
		return
	}

	logs, err := client.GetAllAttendLogs(r.Context())
	if err != nil {
		writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs, "count": len(logs)})
}

// handleEraseAttendance erases attendance records up to end_pos.
//
// Query parameters:
//   - end_pos: erase records up to this position (required)
func (s *Server) handleEraseAttendance(w http.ResponseWriter, r *http.Request) {
	client, _, ok := s.deviceClient(w, r)
	if !ok {
		return
	}

	raw := r.URL.Query().Get("end_pos")
	if raw == "" {
		writeBadRequest(w, "end_pos query parameter is required")
		return
	}
	endPos, err := strconv.Atoi(raw)
	if err != nil {
		writeBadRequest(w, "end_pos must be an integer")
		return
	}

	if err := client.EraseAttendLog(r.Context(), endPos); err != nil {
		writeDeviceError(w, err)
		return
	}
	s.recordAudit(r, audit.ActionAttendanceErase, chi.URLParam(r, "id"), map[string]any{"end_pos": endPos})
	w.WriteHeader(http.StatusNoContent)
}

// enrollRequest is the request body for POST /enroll.
type enrollRequest struct {
	Type string `json:"type"`
}

// handleBeginEnroll starts an enrollment job on the device. The device
// prompts the person to present the credential; progress is tracked by
// job ID.
func (s *Server) handleBeginEnroll(w http.ResponseWriter, r *http.Request) {
	client, id, ok := s.deviceClient(w, r)
	if !ok {
		return
	}

	var req enrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	var jobID int
	var err error
	switch req.Type {
	case "face":
		jobID, err = client.BeginEnrollFace(r.Context())
	case "fingerprint":
		jobID, err = client.BeginEnrollFingerprint(r.Context())
	case "card":
		jobID, err = client.BeginEnrollCard(r.Context())
	case "palm":
		jobID, err = client.BeginEnrollPalm(r.Context())
	default:
		writeBadRequest(w, "type must be one of: face, fingerprint, card, palm")
		return
	}
	if err != nil {
		writeDeviceError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"device_id": id,
		"job_id":    jobID,
		"type":      req.Type,
	})
}

// handleEnrollStatus returns the current state of an enrollment job.
func (s *Server) handleEnrollStatus(w http.ResponseWriter, r *http.Request) {
	client, _, ok := s.deviceClient(w, r)
	if !ok {
		return
	}

	jobID, err := strconv.Atoi(chi.URLParam(r, "jobID"))
	if err != nil {
		writeBadRequest(w, "job ID must be an integer")
		return
	}

	status, err := client.QueryJobStatus(r.Context(), jobID)
	if err != nil {
		writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleEnrollWait blocks until the enrollment job completes, fails, or
// the timeout expires.
//
// Query parameters:
//   - timeout: seconds to wait (default 60, capped at 300)
func (s *Server) handleEnrollWait(w http.ResponseWriter, r *http.Request) {
	client, _, ok := s.deviceClient(w, r)
	if !ok {
		return
	}

	jobID, err := strconv.Atoi(chi.URLParam(r, "jobID"))
	if err != nil {
		writeBadRequest(w, "job ID must be an integer")
		return
	}

	timeout := defaultEnrollWaitTimeout
	if raw := r.URL.Query().Get("timeout"); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil || secs <= 0 || secs > maxEnrollWaitSeconds {
			writeBadRequest(w, "timeout must be between 1 and 300 seconds")
			return
		}
		timeout = time.Duration(secs) * time.Second
	}

	status, err := client.WaitForEnrollment(r.Context(), jobID, timeout, defaultEnrollPollEvery)
	if err != nil {
		writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleCancelEnroll cancels one enrollment job.
func (s *Server) handleCancelEnroll(w http.ResponseWriter, r *http.Request) {
	client, _, ok := s.deviceClient(w, r)
	if !ok {
		return
	}

	jobID, err := strconv.Atoi(chi.URLParam(r, "jobID"))
	if err != nil {
		writeBadRequest(w, "job ID must be an integer")
		return
	}

	if err := client.CancelJob(r.Context(), jobID); err != nil {
		writeDeviceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCancelAllEnrolls cancels every pending job on the device.
func (s *Server) handleCancelAllEnrolls(w http.ResponseWriter, r *http.Request) {
	client, _, ok := s.deviceClient(w, r)
	if !ok {
		return
	}

	if err := client.CancelAllJobs(r.Context()); err != nil {
		writeDeviceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetDeviceTime returns the device's wall clock.
func (s *Server) handleGetDeviceTime(w http.ResponseWriter, r *http.Request) {
	client, id, ok := s.deviceClient(w, r)
	if !ok {
		return
	}

	deviceTime, err := client.GetDeviceTime(r.Context())
	if err != nil {
		writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"device_id": id, "time": deviceTime})
}

// timeRequest is the request body for PUT /time.
type timeRequest struct {
	Time string `json:"time"`
}

// handleSetDeviceTime sets the device's wall clock. An empty time means
// "now" in the middleware's clock.
func (s *Server) handleSetDeviceTime(w http.ResponseWriter, r *http.Request) {
	client, _, ok := s.deviceClient(w, r)
	if !ok {
		return
	}

	var req timeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Time == "" {
		req.Time = time.Now().Format(protocol.DeviceTimeLayout)
	}

	if err := client.SetDeviceTime(r.Context(), req.Time); err != nil {
		writeDeviceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleLockDevice disables attendance punching on the device.
func (s *Server) handleLockDevice(w http.ResponseWriter, r *http.Request) {
	s.setLockState(w, r, true)
}

// handleUnlockDevice re-enables attendance punching on the device.
func (s *Server) handleUnlockDevice(w http.ResponseWriter, r *http.Request) {
	s.setLockState(w, r, false)
}

func (s *Server) setLockState(w http.ResponseWriter, r *http.Request, locked bool) {
	client, id, ok := s.deviceClient(w, r)
	if !ok {
		return
	}

	if err := client.LockDevice(r.Context(), locked); err != nil {
		writeDeviceError(w, err)
		return
	}
	s.recordAudit(r, audit.ActionDeviceLock, id, map[string]any{"locked": locked})
	writeJSON(w, http.StatusOK, map[string]any{"device_id": id, "locked": locked})
}

// controlRequest is the request body for POST /control.
type controlRequest struct {
	Action string `json:"action"`
}

// handleDeviceControl executes an allow-listed destructive action on the
// device (reboot, data erasure, factory reset). The protocol client
// rejects anything outside the allow-list before touching the network.
func (s *Server) handleDeviceControl(w http.ResponseWriter, r *http.Request) {
	client, id, ok := s.deviceClient(w, r)
	if !ok {
		return
	}

	var req controlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := client.DeviceControl(r.Context(), protocol.ControlAction(req.Action)); err != nil {
		writeDeviceError(w, err)
		return
	}
	s.recordAudit(r, audit.ActionDeviceControl, id, map[string]any{"control_action": req.Action})
	writeJSON(w, http.StatusOK, map[string]any{"device_id": id, "action": req.Action})
}
