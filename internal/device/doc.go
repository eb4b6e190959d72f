// Package device manages the fleet of biometric terminals.
//
// The Registry owns device configurations and live protocol clients,
// persisting every change through a ConfigStore. Around it sit the
// fleet-level coordinators:
//
//   - ReconnectCoordinator restores connections concurrently at startup
//   - HealthMonitor probes connected devices and demotes failures
//   - BulkExecutor applies one operation across many devices sequentially
//
// Coordinators never touch devices directly; all device access flows through
// the registry so status, persistence and events stay consistent.
package device
