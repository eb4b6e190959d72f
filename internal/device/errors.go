package device

import (
	"errors"
	"fmt"
)

// Domain errors for the device package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, device.ErrNotFound) {
//	    // handle unknown device
//	}
var (
	// ErrNotFound is returned when a device ID is not registered.
	ErrNotFound = errors.New("device: not found")

	// ErrNotConnected is returned when an operation needs a live
	// connection and the device has none.
	ErrNotConnected = errors.New("device: not connected")

	// ErrInvalidConfig is returned when a device configuration fails
	// validation.
	ErrInvalidConfig = errors.New("device: invalid config")

	// ErrOperationNotFound is returned when a bulk operation ID is unknown.
	ErrOperationNotFound = errors.New("device: bulk operation not found")

	// ErrInvalidOperationType is returned when a bulk operation names an
	// unsupported type.
	ErrInvalidOperationType = errors.New("device: invalid bulk operation type")

	// ErrNoDevices is returned when a bulk operation is submitted with an
	// empty device list.
	ErrNoDevices = errors.New("device: no devices specified")

	// ErrMonitorRunning is returned when starting a health monitor that is
	// already running.
	ErrMonitorRunning = errors.New("device: health monitor already running")
)

// ConnectionFailedError reports a failed connection attempt to a specific
// device. The underlying cause is available via errors.Unwrap.
type ConnectionFailedError struct {
	DeviceID string
	Err      error
}

// Error implements the error interface.
func (e *ConnectionFailedError) Error() string {
	return fmt.Sprintf("device: connecting to %s: %v", e.DeviceID, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ConnectionFailedError) Unwrap() error {
	return e.Err
}
