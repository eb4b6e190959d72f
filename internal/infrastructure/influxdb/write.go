package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteDeviceMetric writes a single device measurement to InfluxDB.
//
// This is the primary method for recording per-terminal telemetry such as
// health probe latency. The write is non-blocking; data is batched and sent
// asynchronously.
//
// Parameters:
//   - deviceID: Unique identifier for the device (e.g., "lobby-01")
//   - measurement: The metric name (e.g., "probe_response_time_ms")
//   - value: The numeric value to record
//
// Example:
//
//	client.WriteDeviceMetric("lobby-01", "probe_response_time_ms", 42.0)
func (c *Client) WriteDeviceMetric(deviceID string, measurement string, value float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"device_metrics",
		map[string]string{
			"device_id":   deviceID,
			"measurement": measurement,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteFleetStats writes a snapshot of the fleet's connection states.
//
// Recorded once per health sweep, this gives dashboards a time series of
// fleet availability without polling the HTTP API.
//
// Parameters:
//   - total: Registered device count
//   - connected: Devices with live connections
//   - disconnected: Devices without connections
//   - errored: Devices in error status
func (c *Client) WriteFleetStats(total, connected, disconnected, errored int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"fleet_stats",
		nil,
		map[string]interface{}{
			"total":        total,
			"connected":    connected,
			"disconnected": disconnected,
			"errored":      errored,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., backfilled attendance
// data).
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
