// Package api implements the HTTP REST API and WebSocket server for Veripoint.
//
// This package provides:
//   - REST endpoints for device registry CRUD, connection control and stats
//   - Bulk operation submission, progress and cancellation
//   - Device passthrough endpoints (users, attendance, enrollment, time, lock)
//   - WebSocket hub for real-time fleet event broadcasts
//   - JWT authentication with ticket-based WebSocket auth
//   - Middleware stack (request ID, logging, recovery, CORS)
//   - TLS support for production deployments
//
// # Architecture
//
// The API server sits between HR and access-control systems and the device
// registry. Registry mutations flow through REST; fleet events flow out to
// WebSocket clients via the hub, which is wired into the event broadcaster
// at startup.
//
// # Security
//
// Operators exchange the shared operator key for a short-lived JWT via
// POST /api/v1/auth/token. All other endpoints require a Bearer token.
// WebSocket connections use single-use tickets to prevent token leakage
// in URLs.
//
// # Graceful Degradation
//
// Passthrough endpoints answer 409 when the target device has no live
// connection. Callers are expected to tolerate this: terminals on factory
// floors drop off the network routinely.
package api
