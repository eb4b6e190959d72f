package protocol

import "encoding/json"

// Result values used in response envelopes.
const (
	resultSuccess = "Success"
	resultError   = "Error"
)

// DeviceTimeLayout is the zoneless timestamp format the terminals accept
// for clock commands.
const DeviceTimeLayout = "2006-01-02T15:04:05"

// request is the wire envelope sent to a device.
type request struct {
	MID     string `json:"mid"`
	Cmd     string `json:"cmd"`
	Payload any    `json:"payload"`
}

// response is the wire envelope returned by a device. The payload is kept
// raw; typed helpers decode it per command.
type response struct {
	MID     string          `json:"mid"`
	Result  string          `json:"result"`
	Payload json.RawMessage `json:"payload"`
}

// errorPayload is the payload of an Error result envelope.
type errorPayload struct {
	Code      string `json:"code"`
	Arguments []any  `json:"arguments"`
}

// VersionInfo describes the device firmware.
type VersionInfo struct {
	FirmwareVersion string `json:"firmware_version"`
}

// UserIDPage is one page of enrolled user IDs. NextPagePos is nil on the
// final page; its absence terminates pagination.
type UserIDPage struct {
	UserIDs     []string `json:"user_id"`
	NextPagePos *int     `json:"next_page_pos,omitempty"`
}

// UserInfo holds a user record as stored on the device. Fingerprint and
// palm templates are lists of device-encoded strings; a face template is a
// single string. Privilege is "user", "manager" or "admin". The wire key
// for the user identifier is "id" on user commands.
type UserInfo struct {
	ID        string   `json:"id"`
	Name      string   `json:"name,omitempty"`
	Depart    string   `json:"depart,omitempty"`
	Privilege string   `json:"privilege,omitempty"`
	Password  string   `json:"password,omitempty"`
	Card      string   `json:"card,omitempty"`
	Fp        []string `json:"fp,omitempty"`
	Face      string   `json:"face,omitempty"`
	Palm      []string `json:"palm,omitempty"`
}

// Enrollment job states reported by QueryJobStatus.
const (
	JobStatePending   = "pending"
	JobStateSucceeded = "succeeded"
	JobStateFailed    = "failed"
)

// JobStatus is the state of an asynchronous enrollment job. Raw carries the
// full payload so callers can extract captured template data on success.
type JobStatus struct {
	State string          `json:"state"`
	Raw   json.RawMessage `json:"-"`
}

// AttendRecord is a single attendance log entry.
type AttendRecord struct {
	UserID string `json:"user_id"`
	Time   string `json:"time"`
	Mode   int    `json:"mode,omitempty"`
}

// AttendLogPage is one page of attendance records. NextPos is nil on the
// final page.
type AttendLogPage struct {
	Logs    []AttendRecord `json:"logs"`
	NextPos *int           `json:"next_pos,omitempty"`
}

// UploaderStatus reports the attendance log auto-uploader configuration.
type UploaderStatus struct {
	TargetURI string `json:"target_uri"`
	Interval  int    `json:"interval"`
}

// NetworkConfig holds the device network settings. Interface settings are
// passed through opaquely; the device validates them.
type NetworkConfig struct {
	Ethernet map[string]any `json:"ethernet,omitempty"`
	WLAN     map[string]any `json:"wlan,omitempty"`
}

// SecurityConfig holds the device security settings for SetSecurityConfig.
type SecurityConfig struct {
	// APIKey rotates the device API key when non-empty.
	APIKey string

	// EnableHTTP keeps the plain HTTP interface enabled.
	EnableHTTP bool

	// EnableHTTPS enables the TLS interface.
	EnableHTTPS bool

	// ValidateCertificate makes the device validate peer certificates.
	ValidateCertificate bool

	// PEM-encoded certificate material, all optional.
	CACert     string
	DeviceCert string
	DeviceKey  string
}

// ControlAction is a destructive device maintenance action.
type ControlAction string

// Allow-listed control actions. Anything else is rejected locally.
const (
	ActionClearAttendLog ControlAction = "ClearAttendLog"
	ActionClearAdminLog  ControlAction = "ClearAdminLog"
	ActionClearUsers     ControlAction = "ClearUsers"
	ActionClearAdmins    ControlAction = "ClearAdmins"
	ActionClearAllData   ControlAction = "ClearAllData"
)

// allowedActions is the set of control actions a caller may request.
var allowedActions = map[ControlAction]bool{
	ActionClearAttendLog: true,
	ActionClearAdminLog:  true,
	ActionClearUsers:     true,
	ActionClearAdmins:    true,
	ActionClearAllData:   true,
}
