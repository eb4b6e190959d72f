package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/veripoint/veripoint-core/internal/device"
	"github.com/veripoint/veripoint-core/internal/protocol"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeNotFound       = "not_found"
	ErrCodeUnauthorized   = "unauthorised"
	ErrCodeForbidden      = "forbidden"
	ErrCodeConflict       = "conflict"
	ErrCodeInternal       = "internal_error"
	ErrCodeValidation     = "validation_error"
	ErrCodeMethodNotAllow = "method_not_allowed"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeConflict writes a 409 error response.
func writeConflict(w http.ResponseWriter, message string) {
	writeError(w, http.StatusConflict, ErrCodeConflict, message)
}

// ErrCodeDeviceError is returned when the device itself reports a failure.
const ErrCodeDeviceError = "device_error"

// writeDeviceError maps registry and protocol errors onto HTTP responses.
//
// Mapping:
//   - unknown device -> 404
//   - device not connected -> 409 (the device exists but has no live handle)
//   - local validation failures -> 400
//   - device-reported errors -> 502 with the device's own error code
//   - transport and protocol failures -> 502
//   - anything else -> 500
func writeDeviceError(w http.ResponseWriter, err error) {
	var devErr *protocol.DeviceError
	var connErr *device.ConnectionFailedError

	switch {
	case errors.Is(err, device.ErrNotFound):
		writeNotFound(w, "device not found")
	case errors.Is(err, device.ErrNotConnected):
		writeConflict(w, "device not connected")
	case errors.Is(err, device.ErrInvalidConfig),
		errors.Is(err, protocol.ErrOutOfRange),
		errors.Is(err, protocol.ErrInvalidAction):
		writeBadRequest(w, err.Error())
	case errors.As(err, &devErr):
		writeError(w, http.StatusBadGateway, ErrCodeDeviceError, devErr.Error())
	case errors.As(err, &connErr),
		errors.Is(err, protocol.ErrNetwork),
		errors.Is(err, protocol.ErrProtocol):
		writeError(w, http.StatusBadGateway, ErrCodeDeviceError, err.Error())
	default:
		writeInternalError(w, err.Error())
	}
}
