package device

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// SQLiteHealthHistory implements HealthHistory using SQLite.
//
// Probe outcomes are stored in the health_history table created by the
// initial schema migration.
type SQLiteHealthHistory struct {
	db *sql.DB
}

// NewSQLiteHealthHistory creates a new SQLite health history repository.
//
// Parameters:
//   - db: Open SQLite connection used for queries
//
// Returns:
//   - *SQLiteHealthHistory: Repository instance ready for use
func NewSQLiteHealthHistory(db *sql.DB) *SQLiteHealthHistory {
	return &SQLiteHealthHistory{db: db}
}

// RecordProbe inserts a new probe outcome for a device.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - result: Probe outcome to persist
//
// Returns:
//   - error: nil on success, otherwise the underlying database error
func (r *SQLiteHealthHistory) RecordProbe(ctx context.Context, result ProbeResult) error {
	if result.DeviceID == "" {
		return fmt.Errorf("device id is required")
	}

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO health_history (device_id, response_time_ms, success, error) VALUES (?, ?, ?, ?)",
		result.DeviceID,
		result.ResponseTimeMs,
		result.Success,
		result.Error,
	)
	if err != nil {
		return fmt.Errorf("inserting probe result: %w", err)
	}

	return nil
}

// GetHistory returns recent probe outcomes for a device, ordered newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - deviceID: Unique device identifier
//   - limit: Maximum entries to return (default 50, max 200)
//
// Returns:
//   - []ProbeResult: Probe outcomes ordered by created_at DESC
//   - error: nil on success, otherwise the underlying query error
func (r *SQLiteHealthHistory) GetHistory(ctx context.Context, deviceID string, limit int) ([]ProbeResult, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device id is required")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, device_id, response_time_ms, success, error, created_at
		 FROM health_history
		 WHERE device_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		deviceID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying probe history: %w", err)
	}
	defer rows.Close()

	results := make([]ProbeResult, 0, limit)
	for rows.Next() {
		var entry ProbeResult
		var createdAt string

		if err := rows.Scan(&entry.ID, &entry.DeviceID, &entry.ResponseTimeMs, &entry.Success, &entry.Error, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning probe history: %w", err)
		}

		timestamp, err := parseHistoryTimestamp(createdAt)
		if err != nil {
			return nil, err
		}
		entry.CreatedAt = timestamp

		results = append(results, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating probe history: %w", err)
	}

	return results, nil
}

// Prune deletes probe outcomes older than the given duration.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - olderThan: Retention period (entries older than now-olderThan are deleted)
//
// Returns:
//   - int64: Number of rows deleted
//   - error: nil on success, otherwise the underlying database error
func (r *SQLiteHealthHistory) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM health_history WHERE created_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting probe history: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}

	return rowsAffected, nil
}

// parseHistoryTimestamp parses a timestamp stored in SQLite.
func parseHistoryTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("created_at is empty")
	}

	timestamp, err := time.Parse(time.RFC3339, value)
	if err == nil {
		return timestamp, nil
	}

	fallback, fallbackErr := time.Parse("2006-01-02T15:04:05Z", value)
	if fallbackErr == nil {
		return fallback, nil
	}

	return time.Time{}, fmt.Errorf("parsing created_at: %w", err)
}
