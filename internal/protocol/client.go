package protocol

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
)

const (
	// defaultTimeout bounds a single command round-trip when the caller
	// does not configure one.
	defaultTimeout = 10 * time.Second

	// midLength is the number of UUID characters used as a message ID.
	midLength = 8

	// controlPath is the single command endpoint exposed by devices.
	controlPath = "/control"
)

// Logger is the minimal logging interface the client needs.
// Satisfied by logging.Logger; defaults to a no-op.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// noopLogger discards all log output.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Config holds the connection parameters for one device.
type Config struct {
	// Address is "host" or "host:port".
	Address string

	// APIKey is sent as an api_key query parameter when non-empty.
	APIKey string

	// UseHTTPS selects https as the scheme. Certificate validation is
	// disabled: terminals ship with self-signed certificates and live on
	// a closed management network, so the transport provides encryption
	// but not identity.
	UseHTTPS bool

	// Timeout bounds a single command round-trip. Zero means the default.
	Timeout time.Duration
}

// Client speaks the HTTP/JSON command protocol to a single device.
//
// Every command is a POST to /control carrying a {mid, cmd, payload}
// envelope. The device echoes the mid in its response; a mismatch means the
// answer belongs to a different request and is treated as a protocol
// violation. Construction performs no network I/O.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Client struct {
	cfg     Config
	baseURL string
	http    *http.Client
	logger  Logger
}

// NewClient creates a client for the device at cfg.Address.
//
// Parameters:
//   - cfg: Connection parameters
//
// Returns:
//   - *Client: Client ready to send commands
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	scheme := "http"
	transport := &http.Transport{}
	if cfg.UseHTTPS {
		scheme = "https"
		transport.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: true, //nolint:gosec // Self-signed device certificates
		}
	}

	return &Client{
		cfg:     cfg,
		baseURL: fmt.Sprintf("%s://%s%s", scheme, cfg.Address, controlPath),
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		logger: noopLogger{},
	}
}

// SetLogger attaches a logger. Not safe to call concurrently with commands;
// set it once after construction.
func (c *Client) SetLogger(logger Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// Address returns the device address this client is bound to.
func (c *Client) Address() string {
	return c.cfg.Address
}

// SendCommand sends one command and returns the raw success payload.
//
// A fresh message ID is generated per call and verified against the
// response. Error result envelopes are returned as *DeviceError; transport
// failures wrap ErrNetwork; malformed or mismatched responses wrap
// ErrProtocol. There is no automatic retry.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - cmd: Command name, e.g. "GetVersionInfo"
//   - payload: Command arguments; nil sends an empty object
//
// Returns:
//   - json.RawMessage: Success payload, for the caller to decode
//   - error: nil on success
func (c *Client) SendCommand(ctx context.Context, cmd string, payload any) (json.RawMessage, error) {
	if payload == nil {
		payload = struct{}{}
	}

	mid := uuid.NewString()[:midLength]
	body, err := json.Marshal(request{
		MID:     mid,
		Cmd:     cmd,
		Payload: payload,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: encoding request for %s: %w", ErrProtocol, cmd, err)
	}

	reqURL := c.baseURL
	if c.cfg.APIKey != "" {
		reqURL += "?api_key=" + url.QueryEscape(c.cfg.APIKey)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: building request for %s: %w", ErrNetwork, cmd, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	c.logger.Debug("sending device command", "address", c.cfg.Address, "cmd", cmd, "mid", mid)

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %s to %s: %w", ErrNetwork, cmd, c.cfg.Address, err)
	}
	defer httpResp.Body.Close() //nolint:errcheck // Best effort cleanup

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response for %s: %w", ErrNetwork, cmd, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned HTTP %d", ErrNetwork, c.cfg.Address, httpResp.StatusCode)
	}

	var resp response
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("%w: decoding response for %s: %w", ErrProtocol, cmd, err)
	}

	if resp.MID != mid {
		c.logger.Warn("message ID mismatch", "address", c.cfg.Address, "cmd", cmd, "sent", mid, "received", resp.MID)
		return nil, fmt.Errorf("%w: message ID mismatch (sent %s, received %s)", ErrProtocol, mid, resp.MID)
	}

	switch resp.Result {
	case resultSuccess:
		return resp.Payload, nil
	case resultError:
		var ep errorPayload
		if err := json.Unmarshal(resp.Payload, &ep); err != nil {
			return nil, fmt.Errorf("%w: decoding error payload for %s: %w", ErrProtocol, cmd, err)
		}
		return nil, &DeviceError{Code: ep.Code, Arguments: ep.Arguments}
	default:
		return nil, fmt.Errorf("%w: unknown result %q for %s", ErrProtocol, resp.Result, cmd)
	}
}

// decode unmarshals a success payload into out, mapping failures to
// ErrProtocol.
func decode(payload json.RawMessage, out any, cmd string) error {
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%w: decoding %s payload: %w", ErrProtocol, cmd, err)
	}
	return nil
}
