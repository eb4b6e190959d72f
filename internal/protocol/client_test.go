package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestSendCommand_Success(t *testing.T) {
	device := newFakeDevice(t, staticHandler(map[string]any{"firmware_version": "1.0.0"}))

	payload, err := device.client().SendCommand(context.Background(), "GetVersionInfo", nil)
	if err != nil {
		t.Fatalf("SendCommand() error = %v", err)
	}

	var out map[string]string
	if err := json.Unmarshal(payload, &out); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if out["firmware_version"] != "1.0.0" {
		t.Errorf("firmware_version = %q, want %q", out["firmware_version"], "1.0.0")
	}
}

func TestSendCommand_MIDMismatch(t *testing.T) {
	device := newFakeDevice(t, staticHandler(map[string]any{}))
	device.mangleMID = true

	_, err := device.client().SendCommand(context.Background(), "GetVersionInfo", nil)
	if !errors.Is(err, ErrProtocol) {
		t.Errorf("expected ErrProtocol for mid mismatch, got %v", err)
	}
}

func TestSendCommand_DeviceError(t *testing.T) {
	device := newFakeDevice(t, func(string, map[string]any) (any, *DeviceError) {
		return nil, &DeviceError{Code: "user_not_found", Arguments: []any{"emp-42"}}
	})

	_, err := device.client().SendCommand(context.Background(), "GetUserInfo", map[string]any{"id": "emp-42"})

	var devErr *DeviceError
	if !errors.As(err, &devErr) {
		t.Fatalf("expected *DeviceError, got %v", err)
	}
	if devErr.Code != "user_not_found" {
		t.Errorf("Code = %q, want %q", devErr.Code, "user_not_found")
	}
	if len(devErr.Arguments) != 1 || devErr.Arguments[0] != "emp-42" {
		t.Errorf("Arguments = %v, want [emp-42]", devErr.Arguments)
	}
}

func TestSendCommand_NetworkError(t *testing.T) {
	device := newFakeDevice(t, staticHandler(map[string]any{}))
	client := device.client()
	device.server.Close()

	_, err := client.SendCommand(context.Background(), "GetVersionInfo", nil)
	if !errors.Is(err, ErrNetwork) {
		t.Errorf("expected ErrNetwork for closed server, got %v", err)
	}
}

func TestSendCommand_APIKey(t *testing.T) {
	device := newFakeDevice(t, staticHandler(map[string]any{}))
	device.apiKey = "secret-key"

	t.Run("correct key succeeds", func(t *testing.T) {
		_, err := device.client().SendCommand(context.Background(), "GetVersionInfo", nil)
		if err != nil {
			t.Errorf("SendCommand() with api key error = %v", err)
		}
	})

	t.Run("missing key is rejected", func(t *testing.T) {
		client := NewClient(Config{Address: device.address(), Timeout: 5 * time.Second})
		_, err := client.SendCommand(context.Background(), "GetVersionInfo", nil)
		if !errors.Is(err, ErrNetwork) {
			t.Errorf("expected ErrNetwork for 403 response, got %v", err)
		}
	})
}

func TestSendCommand_SequentialCalls(t *testing.T) {
	// The client regenerates the mid each call; repeated calls through the
	// same client must each verify against their own mid.
	device := newFakeDevice(t, staticHandler(map[string]any{}))
	client := device.client()

	for i := 0; i < 3; i++ {
		if _, err := client.SendCommand(context.Background(), "GetVersionInfo", nil); err != nil {
			t.Fatalf("call %d error = %v", i, err)
		}
	}

	if got := device.commandCount(); got != 3 {
		t.Errorf("device received %d commands, want 3", got)
	}
}

func TestNewClient_NoNetworkIO(t *testing.T) {
	// Construction against an unroutable address must not fail or block.
	client := NewClient(Config{Address: "203.0.113.1:9", UseHTTPS: true})
	if client == nil {
		t.Fatal("expected client")
	}
	if client.Address() != "203.0.113.1:9" {
		t.Errorf("Address() = %q", client.Address())
	}
}

func TestDeviceError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *DeviceError
		want string
	}{
		{
			name: "without arguments",
			err:  &DeviceError{Code: "locked"},
			want: "device error locked",
		},
		{
			name: "with arguments",
			err:  &DeviceError{Code: "bad_param", Arguments: []any{"volume"}},
			want: "device error bad_param: [volume]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}
