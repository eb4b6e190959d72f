package protocol

import (
	"errors"
	"fmt"
)

// Domain-specific errors for device protocol operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNetwork is returned when the device cannot be reached or the
	// transport fails mid-request.
	ErrNetwork = errors.New("protocol: network error")

	// ErrProtocol is returned when the device responds with something the
	// protocol does not allow: malformed JSON, a mismatched message ID, or
	// an unknown result value.
	ErrProtocol = errors.New("protocol: protocol violation")

	// ErrEnrollmentFailed is returned when the device reports an enrollment
	// job as failed.
	ErrEnrollmentFailed = errors.New("protocol: enrollment failed")

	// ErrEnrollmentTimeout is returned when an enrollment job stays pending
	// past the polling deadline.
	ErrEnrollmentTimeout = errors.New("protocol: enrollment timed out")

	// ErrOutOfRange is returned when a parameter fails local range
	// validation before any network call is made.
	ErrOutOfRange = errors.New("protocol: parameter out of range")

	// ErrInvalidAction is returned when a control action is not on the
	// allow-list of destructive operations.
	ErrInvalidAction = errors.New("protocol: invalid control action")
)

// DeviceError is a structured error reported by the device itself in an
// Error result envelope. Code and Arguments are passed through verbatim.
type DeviceError struct {
	Code      string `json:"code"`
	Arguments []any  `json:"arguments"`
}

// Error implements the error interface.
func (e *DeviceError) Error() string {
	if len(e.Arguments) == 0 {
		return fmt.Sprintf("device error %s", e.Code)
	}
	return fmt.Sprintf("device error %s: %v", e.Code, e.Arguments)
}
