package protocol

import (
	"context"
	"fmt"
	"time"
)

const (
	// defaultEnrollTimeout bounds a full enrollment wait.
	defaultEnrollTimeout = 60 * time.Second

	// defaultPollInterval is the delay between job status polls.
	defaultPollInterval = time.Second
)

// WaitForEnrollment polls an enrollment job until it resolves.
//
// A succeeded job returns its final status, including the captured template
// data in Raw. A failed job returns ErrEnrollmentFailed. A job still pending
// when the timeout elapses returns ErrEnrollmentTimeout. Any state outside
// the known set fails immediately with ErrProtocol rather than polling a
// device that is off-script.
//
// Parameters:
//   - ctx: Context for cancellation
//   - jobID: Job ID from a BeginEnroll command
//   - timeout: Maximum total wait; zero means 60s
//   - pollInterval: Delay between polls; zero means 1s
//
// Returns:
//   - *JobStatus: Final status with State == JobStateSucceeded
//   - error: nil on success
func (c *Client) WaitForEnrollment(ctx context.Context, jobID int, timeout, pollInterval time.Duration) (*JobStatus, error) {
	if timeout <= 0 {
		timeout = defaultEnrollTimeout
	}
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	deadline := time.Now().Add(timeout)

	for {
		status, err := c.QueryJobStatus(ctx, jobID)
		if err != nil {
			return nil, err
		}

		switch status.State {
		case JobStateSucceeded:
			return status, nil
		case JobStateFailed:
			return nil, fmt.Errorf("%w: job %d", ErrEnrollmentFailed, jobID)
		case JobStatePending:
			if time.Now().After(deadline) {
				return nil, fmt.Errorf("%w: job %d still pending after %s", ErrEnrollmentTimeout, jobID, timeout)
			}
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("waiting for enrollment job %d: %w", jobID, ctx.Err())
			case <-time.After(pollInterval):
			}
		default:
			return nil, fmt.Errorf("%w: unknown job state %q", ErrProtocol, status.State)
		}
	}
}
