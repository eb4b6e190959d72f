package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Parameter ranges enforced locally before any network call.
const (
	minSoundVolume = 1
	maxSoundVolume = 10

	minDeviceID = 1
	maxDeviceID = 255

	minVerifyMode = 0
	maxVerifyMode = 15

	minUploaderInterval = 5
	maxUploaderInterval = 3600
)

// yesNo converts a boolean to the "yes"/"no" strings several commands expect.
func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

// GetVersionInfo returns the device firmware information. This is also the
// liveness probe used by the registry and health monitor.
func (c *Client) GetVersionInfo(ctx context.Context) (*VersionInfo, error) {
	payload, err := c.SendCommand(ctx, "GetVersionInfo", nil)
	if err != nil {
		return nil, err
	}
	var info VersionInfo
	if err := decode(payload, &info, "GetVersionInfo"); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetDeviceCapabilities returns the device feature map (face, fingerprint,
// card, palm support and similar). Keys are device-defined.
func (c *Client) GetDeviceCapabilities(ctx context.Context) (map[string]any, error) {
	payload, err := c.SendCommand(ctx, "GetDeviceCapabilities", nil)
	if err != nil {
		return nil, err
	}
	var caps map[string]any
	if err := decode(payload, &caps, "GetDeviceCapabilities"); err != nil {
		return nil, err
	}
	return caps, nil
}

// GetCapacityLimit returns maximum record counts per category.
func (c *Client) GetCapacityLimit(ctx context.Context) (map[string]int, error) {
	payload, err := c.SendCommand(ctx, "GetCapacityLimit", nil)
	if err != nil {
		return nil, err
	}
	var limits map[string]int
	if err := decode(payload, &limits, "GetCapacityLimit"); err != nil {
		return nil, err
	}
	return limits, nil
}

// GetCurrentUsage returns current record counts per category.
func (c *Client) GetCurrentUsage(ctx context.Context) (map[string]int, error) {
	payload, err := c.SendCommand(ctx, "GetCurrentUsage", nil)
	if err != nil {
		return nil, err
	}
	var usage map[string]int
	if err := decode(payload, &usage, "GetCurrentUsage"); err != nil {
		return nil, err
	}
	return usage, nil
}

// GetDeviceUID returns the factory-assigned unique device identifier.
func (c *Client) GetDeviceUID(ctx context.Context) (string, error) {
	payload, err := c.SendCommand(ctx, "GetDeviceUid", nil)
	if err != nil {
		return "", err
	}
	var out struct {
		DeviceUID string `json:"device_uid"`
	}
	if err := decode(payload, &out, "GetDeviceUid"); err != nil {
		return "", err
	}
	return out.DeviceUID, nil
}

// GetUserIDList returns one page of enrolled user IDs. Pass nil for the
// first page; pass the previous page's NextPagePos for subsequent pages.
func (c *Client) GetUserIDList(ctx context.Context, startPos *int) (*UserIDPage, error) {
	req := map[string]any{}
	if startPos != nil {
		req["start_pos"] = *startPos
	}
	payload, err := c.SendCommand(ctx, "GetUserIdList", req)
	if err != nil {
		return nil, err
	}
	var page UserIDPage
	if err := decode(payload, &page, "GetUserIdList"); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetAllUserIDs enumerates every enrolled user ID, following the pagination
// cursor until the device stops returning one.
func (c *Client) GetAllUserIDs(ctx context.Context) ([]string, error) {
	var all []string
	var startPos *int

	for {
		page, err := c.GetUserIDList(ctx, startPos)
		if err != nil {
			return nil, err
		}
		all = append(all, page.UserIDs...)

		if page.NextPagePos == nil {
			return all, nil
		}
		startPos = page.NextPagePos
	}
}

// GetUserInfo returns the full record for one user.
func (c *Client) GetUserInfo(ctx context.Context, userID string) (*UserInfo, error) {
	payload, err := c.SendCommand(ctx, "GetUserInfo", map[string]any{"id": userID})
	if err != nil {
		return nil, err
	}
	var info UserInfo
	if err := decode(payload, &info, "GetUserInfo"); err != nil {
		return nil, err
	}
	return &info, nil
}

// SetUserInfo creates or updates a user record. Zero-valued optional fields
// are omitted from the request so the device keeps its current values.
func (c *Client) SetUserInfo(ctx context.Context, info UserInfo) error {
	if info.ID == "" {
		return fmt.Errorf("%w: user id is required", ErrOutOfRange)
	}
	_, err := c.SendCommand(ctx, "SetUserInfo", info)
	return err
}

// DeleteUserInfo removes a user record from the device.
func (c *Client) DeleteUserInfo(ctx context.Context, userID string) error {
	_, err := c.SendCommand(ctx, "DeleteUserInfo", map[string]any{"id": userID})
	return err
}

// LockDevice locks or unlocks the device for verification.
func (c *Client) LockDevice(ctx context.Context, locked bool) error {
	_, err := c.SendCommand(ctx, "LockDevice", map[string]any{"is_locked": yesNo(locked)})
	return err
}

// beginEnroll starts an enrollment job and returns its job ID.
func (c *Client) beginEnroll(ctx context.Context, cmd string) (int, error) {
	payload, err := c.SendCommand(ctx, cmd, nil)
	if err != nil {
		return 0, err
	}
	var out struct {
		JobID int `json:"job_id"`
	}
	if err := decode(payload, &out, cmd); err != nil {
		return 0, err
	}
	return out.JobID, nil
}

// BeginEnrollFace starts face enrollment on the device and returns the job
// ID to poll with QueryJobStatus.
func (c *Client) BeginEnrollFace(ctx context.Context) (int, error) {
	return c.beginEnroll(ctx, "BeginEnrollFace")
}

// BeginEnrollFingerprint starts fingerprint enrollment.
func (c *Client) BeginEnrollFingerprint(ctx context.Context) (int, error) {
	return c.beginEnroll(ctx, "BeginEnrollFp")
}

// BeginEnrollCard starts card enrollment.
func (c *Client) BeginEnrollCard(ctx context.Context) (int, error) {
	return c.beginEnroll(ctx, "BeginEnrollCard")
}

// BeginEnrollPalm starts palm enrollment.
func (c *Client) BeginEnrollPalm(ctx context.Context) (int, error) {
	return c.beginEnroll(ctx, "BeginEnrollPalm")
}

// QueryJobStatus returns the current state of an enrollment job. The full
// payload is preserved in Raw so callers can extract captured template data
// once the job succeeds.
func (c *Client) QueryJobStatus(ctx context.Context, jobID int) (*JobStatus, error) {
	payload, err := c.SendCommand(ctx, "QueryJobStatus", map[string]any{"job_id": jobID})
	if err != nil {
		return nil, err
	}
	var status JobStatus
	if err := decode(payload, &status, "QueryJobStatus"); err != nil {
		return nil, err
	}
	status.Raw = payload
	return &status, nil
}

// CancelJob cancels a specific enrollment job.
func (c *Client) CancelJob(ctx context.Context, jobID int) error {
	_, err := c.SendCommand(ctx, "CancelJob", map[string]any{"job_id": jobID})
	return err
}

// CancelAllJobs cancels every running job on the device.
func (c *Client) CancelAllJobs(ctx context.Context) error {
	_, err := c.SendCommand(ctx, "CancelAllJobs", nil)
	return err
}

// PhotoToFaceData converts a base64-encoded photo to a face template
// without a live enrollment session. The payload shape is device-defined.
func (c *Client) PhotoToFaceData(ctx context.Context, photoBase64 string) (json.RawMessage, error) {
	return c.SendCommand(ctx, "PhotoToFacedata", map[string]any{"photo": photoBase64})
}

// GetAttendLog returns one page of attendance records. Pass nil for the
// first page; pass the previous page's NextPos for subsequent pages.
func (c *Client) GetAttendLog(ctx context.Context, startPos *int) (*AttendLogPage, error) {
	req := map[string]any{}
	if startPos != nil {
		req["start_pos"] = *startPos
	}
	payload, err := c.SendCommand(ctx, "GetAttendLog", req)
	if err != nil {
		return nil, err
	}
	var page AttendLogPage
	if err := decode(payload, &page, "GetAttendLog"); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetAllAttendLogs enumerates every attendance record, following the
// pagination cursor until the device stops returning one.
func (c *Client) GetAllAttendLogs(ctx context.Context) ([]AttendRecord, error) {
	var all []AttendRecord
	var startPos *int

	for {
		page, err := c.GetAttendLog(ctx, startPos)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Logs...)

		if page.NextPos == nil {
			return all, nil
		}
		startPos = page.NextPos
	}
}

// EraseAttendLog deletes all attendance records before endPos.
func (c *Client) EraseAttendLog(ctx context.Context, endPos int) error {
	_, err := c.SendCommand(ctx, "EraseAttendLog", map[string]any{"end_pos": endPos})
	return err
}

// ConfigAttendLogUploader points the device's push uploader at targetURI
// with the given interval in seconds (5-3600).
func (c *Client) ConfigAttendLogUploader(ctx context.Context, targetURI string, interval int) error {
	if interval < minUploaderInterval || interval > maxUploaderInterval {
		return fmt.Errorf("%w: uploader interval %d not in [%d, %d]",
			ErrOutOfRange, interval, minUploaderInterval, maxUploaderInterval)
	}
	_, err := c.SendCommand(ctx, "ConfigAttendLogUploader", map[string]any{
		"target_uri": targetURI,
		"interval":   interval,
	})
	return err
}

// GetAttendLogUploaderStatus returns the current uploader configuration.
func (c *Client) GetAttendLogUploaderStatus(ctx context.Context) (*UploaderStatus, error) {
	payload, err := c.SendCommand(ctx, "GetAttendLogUploaderStatus", nil)
	if err != nil {
		return nil, err
	}
	var status UploaderStatus
	if err := decode(payload, &status, "GetAttendLogUploaderStatus"); err != nil {
		return nil, err
	}
	return &status, nil
}

// GetDeviceTime returns the device clock in ISO8601 format.
func (c *Client) GetDeviceTime(ctx context.Context) (string, error) {
	payload, err := c.SendCommand(ctx, "GetDeviceTime", nil)
	if err != nil {
		return "", err
	}
	var out struct {
		Time string `json:"time"`
	}
	if err := decode(payload, &out, "GetDeviceTime"); err != nil {
		return "", err
	}
	return out.Time, nil
}

// SetDeviceTime sets the device clock. An empty timeISO uses the current
// system time in the terminals' zoneless layout.
func (c *Client) SetDeviceTime(ctx context.Context, timeISO string) error {
	if timeISO == "" {
		timeISO = time.Now().Format(DeviceTimeLayout)
	}
	_, err := c.SendCommand(ctx, "SetDeviceTime", map[string]any{"time": timeISO})
	return err
}

// GetNetworkConfig returns the device network settings as reported.
func (c *Client) GetNetworkConfig(ctx context.Context) (json.RawMessage, error) {
	return c.SendCommand(ctx, "GetNetworkConfig", nil)
}

// SetNetworkConfig updates the device network settings. Only non-nil
// interface sections are sent.
func (c *Client) SetNetworkConfig(ctx context.Context, cfg NetworkConfig) error {
	req := map[string]any{}
	if cfg.Ethernet != nil {
		req["ethernet"] = cfg.Ethernet
	}
	if cfg.WLAN != nil {
		req["wlan"] = cfg.WLAN
	}
	_, err := c.SendCommand(ctx, "SetNetworkConfig", req)
	return err
}

// SetSecurityConfig updates the device API key and TLS settings. When a new
// API key is set, the client switches to it for subsequent commands.
func (c *Client) SetSecurityConfig(ctx context.Context, cfg SecurityConfig) error {
	req := map[string]any{
		"enable_http": yesNo(cfg.EnableHTTP),
	}
	if cfg.APIKey != "" {
		req["api_key"] = cfg.APIKey
	}

	tlsConf := map[string]any{
		"enabled":              yesNo(cfg.EnableHTTPS),
		"validate_certificate": yesNo(cfg.ValidateCertificate),
	}
	if cfg.CACert != "" {
		tlsConf["ca_cert"] = cfg.CACert
	}
	if cfg.DeviceCert != "" {
		tlsConf["device_cert"] = cfg.DeviceCert
	}
	if cfg.DeviceKey != "" {
		tlsConf["device_key"] = cfg.DeviceKey
	}
	req["tls_conf"] = tlsConf

	if _, err := c.SendCommand(ctx, "SetSecurityConfig", req); err != nil {
		return err
	}

	if cfg.APIKey != "" {
		c.cfg.APIKey = cfg.APIKey
	}
	return nil
}

// GetDeviceID returns the device's configured numeric ID.
func (c *Client) GetDeviceID(ctx context.Context) (int, error) {
	payload, err := c.SendCommand(ctx, "GetDeviceId", nil)
	if err != nil {
		return 0, err
	}
	var out struct {
		DeviceID int `json:"device_id"`
	}
	if err := decode(payload, &out, "GetDeviceId"); err != nil {
		return 0, err
	}
	return out.DeviceID, nil
}

// SetDeviceID sets the device's numeric ID (1-255).
func (c *Client) SetDeviceID(ctx context.Context, id int) error {
	if id < minDeviceID || id > maxDeviceID {
		return fmt.Errorf("%w: device id %d not in [%d, %d]", ErrOutOfRange, id, minDeviceID, maxDeviceID)
	}
	_, err := c.SendCommand(ctx, "SetDeviceId", map[string]any{"device_id": id})
	return err
}

// GetSoundVolume returns the device speaker volume.
func (c *Client) GetSoundVolume(ctx context.Context) (int, error) {
	payload, err := c.SendCommand(ctx, "GetSoundVolume", nil)
	if err != nil {
		return 0, err
	}
	var out struct {
		SoundVolume int `json:"sound_volume"`
	}
	if err := decode(payload, &out, "GetSoundVolume"); err != nil {
		return 0, err
	}
	return out.SoundVolume, nil
}

// SetSoundVolume sets the device speaker volume (1-10).
func (c *Client) SetSoundVolume(ctx context.Context, volume int) error {
	if volume < minSoundVolume || volume > maxSoundVolume {
		return fmt.Errorf("%w: sound volume %d not in [%d, %d]", ErrOutOfRange, volume, minSoundVolume, maxSoundVolume)
	}
	_, err := c.SendCommand(ctx, "SetSoundVolume", map[string]any{"sound_volume": volume})
	return err
}

// GetVerifyMode returns the verification mode bitmask.
func (c *Client) GetVerifyMode(ctx context.Context) (int, error) {
	payload, err := c.SendCommand(ctx, "GetVerifyMode", nil)
	if err != nil {
		return 0, err
	}
	var out struct {
		VerifyMode int `json:"verify_mode"`
	}
	if err := decode(payload, &out, "GetVerifyMode"); err != nil {
		return 0, err
	}
	return out.VerifyMode, nil
}

// SetVerifyMode sets the verification mode bitmask (0-15).
func (c *Client) SetVerifyMode(ctx context.Context, mode int) error {
	if mode < minVerifyMode || mode > maxVerifyMode {
		return fmt.Errorf("%w: verify mode %d not in [%d, %d]", ErrOutOfRange, mode, minVerifyMode, maxVerifyMode)
	}
	_, err := c.SendCommand(ctx, "SetVerifyMode", map[string]any{"verify_mode": mode})
	return err
}

// DeviceControl executes a destructive maintenance action. Only allow-listed
// actions are accepted; anything else fails locally with ErrInvalidAction.
func (c *Client) DeviceControl(ctx context.Context, action ControlAction) error {
	if !allowedActions[action] {
		return fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}
	_, err := c.SendCommand(ctx, "DeviceControl", map[string]any{"Action": string(action)})
	return err
}
