// Package mqtt publishes Veripoint fleet events to an MQTT broker.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Best-effort event publishing with QoS guarantees
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// The publisher is an optional event sink: downstream consumers (attendance
// collectors, monitoring dashboards) subscribe to veripoint/events/# and
// react to fleet changes without polling the HTTP API. Veripoint never
// consumes messages from the broker; device control stays on the HTTP API.
//
//	Veripoint Core → MQTT Broker → attendance collectors, dashboards
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Event payloads carry device IDs, never biometric templates
package mqtt
