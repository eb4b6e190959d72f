package device

import (
	"context"
	"time"
)

// ProbeResult is one health probe outcome destined for storage.
type ProbeResult struct {
	ID             int64     `json:"id"`
	DeviceID       string    `json:"device_id"`
	ResponseTimeMs int64     `json:"response_time_ms"`
	Success        bool      `json:"success"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// HealthHistory persists probe outcomes for after-the-fact diagnosis of
// flapping terminals.
type HealthHistory interface {
	// RecordProbe appends one probe outcome.
	RecordProbe(ctx context.Context, result ProbeResult) error

	// GetHistory returns recent probe outcomes for a device, newest first.
	GetHistory(ctx context.Context, deviceID string, limit int) ([]ProbeResult, error)

	// Prune deletes outcomes older than the given retention period and
	// returns the number of rows removed.
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}
