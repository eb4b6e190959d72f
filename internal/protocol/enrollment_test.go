package protocol

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// enrollDevice answers BeginEnrollFace with a job and QueryJobStatus with
// the scripted state sequence, repeating the last state forever.
func enrollDevice(t *testing.T, states ...string) *fakeDevice {
	t.Helper()

	var polls atomic.Int64
	return newFakeDevice(t, func(cmd string, payload map[string]any) (any, *DeviceError) {
		switch cmd {
		case "BeginEnrollFace":
			return map[string]any{"job_id": 7}, nil
		case "QueryJobStatus":
			n := int(polls.Add(1)) - 1
			if n >= len(states) {
				n = len(states) - 1
			}
			resp := map[string]any{"state": states[n]}
			if states[n] == JobStateSucceeded {
				resp["face_data"] = "b64-template"
			}
			return resp, nil
		default:
			return nil, &DeviceError{Code: "unknown_command"}
		}
	})
}

func TestWaitForEnrollment_Succeeded(t *testing.T) {
	device := enrollDevice(t, JobStatePending, JobStatePending, JobStateSucceeded)
	client := device.client()

	jobID, err := client.BeginEnrollFace(context.Background())
	if err != nil {
		t.Fatalf("BeginEnrollFace() error = %v", err)
	}
	if jobID != 7 {
		t.Fatalf("jobID = %d, want 7", jobID)
	}

	status, err := client.WaitForEnrollment(context.Background(), jobID, time.Second, 5*time.Millisecond)
	if err != nil {
		t.Fatalf("WaitForEnrollment() error = %v", err)
	}
	if status.State != JobStateSucceeded {
		t.Errorf("State = %q, want succeeded", status.State)
	}
	if len(status.Raw) == 0 {
		t.Error("expected Raw payload with template data")
	}
}

func TestWaitForEnrollment_Failed(t *testing.T) {
	device := enrollDevice(t, JobStatePending, JobStateFailed)

	_, err := device.client().WaitForEnrollment(context.Background(), 7, time.Second, 5*time.Millisecond)
	if !errors.Is(err, ErrEnrollmentFailed) {
		t.Errorf("expected ErrEnrollmentFailed, got %v", err)
	}
}

func TestWaitForEnrollment_Timeout(t *testing.T) {
	// A device that never resolves must not hang the caller.
	device := enrollDevice(t, JobStatePending)

	start := time.Now()
	_, err := device.client().WaitForEnrollment(context.Background(), 7, 50*time.Millisecond, 5*time.Millisecond)
	if !errors.Is(err, ErrEnrollmentTimeout) {
		t.Fatalf("expected ErrEnrollmentTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timeout took %s, polling did not stop promptly", elapsed)
	}
}

func TestWaitForEnrollment_UnknownState(t *testing.T) {
	// An off-script state fails fast instead of polling forever.
	device := enrollDevice(t, "exploded")

	_, err := device.client().WaitForEnrollment(context.Background(), 7, time.Second, 5*time.Millisecond)
	if !errors.Is(err, ErrProtocol) {
		t.Errorf("expected ErrProtocol for unknown state, got %v", err)
	}
}

func TestWaitForEnrollment_ContextCancelled(t *testing.T) {
	device := enrollDevice(t, JobStatePending)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := device.client().WaitForEnrollment(ctx, 7, time.Minute, 10*time.Millisecond)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
