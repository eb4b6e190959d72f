// Package protocol implements the HTTP/JSON command protocol spoken by
// biometric scanning terminals.
//
// Every interaction is a single POST to the device's /control endpoint with
// a JSON envelope:
//
//	{"mid": "a1b2c3d4", "cmd": "GetVersionInfo", "payload": {}}
//
// The device answers with the same mid, a result of "Success" or "Error",
// and a command-specific payload. The mid is generated per request and
// verified on receipt so a delayed or crossed response can never be
// mistaken for the current one.
//
// # Error taxonomy
//
//   - ErrNetwork: transport failures (connection refused, timeout, non-200)
//   - ErrProtocol: malformed JSON, mid mismatch, unknown result or job state
//   - *DeviceError: the device itself rejected the command (code + arguments)
//   - ErrOutOfRange / ErrInvalidAction: local validation, no network call made
//
// # Usage
//
//	client := protocol.NewClient(protocol.Config{Address: "10.0.0.5:80"})
//	info, err := client.GetVersionInfo(ctx)
//
// Long-running enrollment flows pair a BeginEnroll command with
// WaitForEnrollment, which polls QueryJobStatus until the job resolves.
//
// # Security
//
// Devices authenticate callers with a static API key passed as a query
// parameter. HTTPS is supported but certificate validation is disabled:
// terminals ship self-signed certificates and live on a closed management
// network, so TLS here provides transport encryption, not identity.
package protocol
