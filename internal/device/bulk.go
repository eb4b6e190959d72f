package device

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/veripoint/veripoint-core/internal/events"
)

// BulkType identifies the operation applied to each device in a bulk run.
type BulkType string

const (
	BulkConnect    BulkType = "connect"
	BulkDisconnect BulkType = "disconnect"
	BulkConfigure  BulkType = "configure"
)

// BulkStatus is the lifecycle state of a bulk operation.
type BulkStatus string

const (
	BulkStatusPending   BulkStatus = "pending"
	BulkStatusRunning   BulkStatus = "running"
	BulkStatusCompleted BulkStatus = "completed"
	// BulkStatusFailed is reserved in the status vocabulary. A run that
	// finishes iterating reports completed even when every device failed;
	// per-device outcomes live in Results.
	BulkStatusFailed    BulkStatus = "failed"
	BulkStatusCancelled BulkStatus = "cancelled"
)

// BulkDeviceResult is the outcome for a single device within a bulk run.
type BulkDeviceResult struct {
	DeviceID string `json:"device_id"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

// BulkOperation is the full state of one bulk run.
type BulkOperation struct {
	ID          string             `json:"id"`
	Type        BulkType           `json:"type"`
	Status      BulkStatus         `json:"status"`
	Total       int                `json:"total"`
	Completed   int                `json:"completed"`
	Progress    float64            `json:"progress"`
	Results     []BulkDeviceResult `json:"results"`
	CreatedAt   time.Time          `json:"created_at"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
}

// deepCopy returns an independent snapshot of the operation.
func (op *BulkOperation) deepCopy() *BulkOperation {
	out := *op
	out.Results = make([]BulkDeviceResult, len(op.Results))
	copy(out.Results, op.Results)
	if op.CompletedAt != nil {
		completed := *op.CompletedAt
		out.CompletedAt = &completed
	}
	return &out
}

// BulkRequest describes a bulk operation to run.
//
// Update is required for configure operations and ignored otherwise.
type BulkRequest struct {
	Type      BulkType     `json:"type"`
	DeviceIDs []string     `json:"device_ids"`
	Update    ConfigUpdate `json:"update"`
}

// BulkExecutor runs one operation across many devices.
//
// Devices are processed strictly one at a time, in request order. Terminals
// share site uplinks with access-control hardware, so a parallel sweep of
// dozens of devices is exactly the burst the network cannot absorb. Each
// device failure is isolated; the run always visits every remaining device.
//
// Cancellation is checked between devices, never mid-device: a command that
// has reached a terminal is allowed to finish.
type BulkExecutor struct {
	registry *Registry
	events   events.Broadcaster
	logger   Logger

	mu         sync.RWMutex
	operations map[string]*BulkOperation
	cancels    map[string]context.CancelFunc
}

// NewBulkExecutor creates an executor over the given registry.
// A nil broadcaster disables event publication.
func NewBulkExecutor(registry *Registry, broadcaster events.Broadcaster) *BulkExecutor {
	if broadcaster == nil {
		broadcaster = events.Nop{}
	}
	return &BulkExecutor{
		registry:   registry,
		events:     broadcaster,
		logger:     noopLogger{},
		operations: make(map[string]*BulkOperation),
		cancels:    make(map[string]context.CancelFunc),
	}
}

// SetLogger sets the logger for the executor.
func (e *BulkExecutor) SetLogger(logger Logger) {
	if logger != nil {
		e.logger = logger
	}
}

// Submit validates and starts a bulk operation in the background.
//
// Duplicate device IDs are collapsed, keeping the first occurrence. The
// returned operation is a snapshot in pending status; poll Get for progress.
//
// Parameters:
//   - ctx: Context bounding the whole run
//   - req: Operation type, target devices and optional config update
//
// Returns:
//   - *BulkOperation: Snapshot of the accepted operation
//   - error: ErrInvalidOperationType or ErrNoDevices
func (e *BulkExecutor) Submit(ctx context.Context, req BulkRequest) (*BulkOperation, error) {
	switch req.Type {
	case BulkConnect, BulkDisconnect, BulkConfigure:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidOperationType, req.Type)
	}

	ids := dedupe(req.DeviceIDs)
	if len(ids) == 0 {
		return nil, ErrNoDevices
	}

	op := &BulkOperation{
		ID:        uuid.NewString(),
		Type:      req.Type,
		Status:    BulkStatusPending,
		Total:     len(ids),
		Results:   make([]BulkDeviceResult, 0, len(ids)),
		CreatedAt: time.Now().UTC(),
	}

	runCtx, cancel := context.WithCancel(ctx)

	e.mu.Lock()
	e.operations[op.ID] = op
	e.cancels[op.ID] = cancel
	e.mu.Unlock()

	e.logger.Info("bulk operation submitted", "operation_id", op.ID, "type", req.Type, "devices", len(ids))

	go e.run(runCtx, op.ID, req, ids)

	return op.deepCopy(), nil
}

// Cancel requests cancellation of a running operation. The current device
// finishes; remaining devices are skipped.
//
// Returns ErrOperationNotFound for unknown IDs. Cancelling an operation that
// already finished is a no-op.
func (e *BulkExecutor) Cancel(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.operations[id]; !ok {
		return fmt.Errorf("%w: %s", ErrOperationNotFound, id)
	}
	if cancel, ok := e.cancels[id]; ok {
		cancel()
	}
	return nil
}

// Get returns a snapshot of an operation's state.
func (e *BulkExecutor) Get(id string) (*BulkOperation, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	op, ok := e.operations[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOperationNotFound, id)
	}
	return op.deepCopy(), nil
}

// List returns snapshots of all known operations, in no particular order.
func (e *BulkExecutor) List() []BulkOperation {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]BulkOperation, 0, len(e.operations))
	for _, op := range e.operations {
		out = append(out, *op.deepCopy())
	}
	return out
}

// run executes the operation device by device.
func (e *BulkExecutor) run(ctx context.Context, opID string, req BulkRequest, ids []string) {
	e.setStatus(opID, BulkStatusRunning)

	for _, deviceID := range ids {
		select {
		case <-ctx.Done():
			e.finish(opID, BulkStatusCancelled)
			e.logger.Info("bulk operation cancelled", "operation_id", opID)
			e.events.Publish(events.BulkCancelled, map[string]any{"operation_id": opID})
			return
		default:
		}

		err := e.apply(ctx, req, deviceID)

		result := BulkDeviceResult{DeviceID: deviceID, Success: err == nil}
		if err != nil {
			result.Error = err.Error()
			e.logger.Warn("bulk step failed", "operation_id", opID, "device_id", deviceID, "error", err)
		}

		completed, total := e.appendResult(opID, result)
		e.events.Publish(events.BulkProgress, map[string]any{
			"operation_id": opID,
			"device_id":    deviceID,
			"success":      err == nil,
			"completed":    completed,
			"total":        total,
			"progress":     progressPercent(completed, total),
		})
	}

	e.finish(opID, BulkStatusCompleted)
	e.logger.Info("bulk operation completed", "operation_id", opID)
	e.events.Publish(events.BulkCompleted, map[string]any{"operation_id": opID})
}

// apply performs the operation against a single device.
func (e *BulkExecutor) apply(ctx context.Context, req BulkRequest, deviceID string) error {
	switch req.Type {
	case BulkConnect:
		return e.registry.Connect(ctx, deviceID)
	case BulkDisconnect:
		_, err := e.registry.Disconnect(ctx, deviceID)
		return err
	case BulkConfigure:
		_, err := e.registry.UpdateConfig(ctx, deviceID, req.Update)
		return err
	default:
		return fmt.Errorf("%w: %q", ErrInvalidOperationType, req.Type)
	}
}

// setStatus transitions an operation that has not finished yet.
func (e *BulkExecutor) setStatus(opID string, status BulkStatus) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if op, ok := e.operations[opID]; ok {
		op.Status = status
	}
}

// appendResult records a per-device outcome and returns updated progress
// counters.
func (e *BulkExecutor) appendResult(opID string, result BulkDeviceResult) (completed, total int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	op, ok := e.operations[opID]
	if !ok {
		return 0, 0
	}
	op.Results = append(op.Results, result)
	op.Completed = len(op.Results)
	op.Progress = progressPercent(op.Completed, op.Total)
	return op.Completed, op.Total
}

// finish moves an operation to a terminal status and releases its cancel
// function.
func (e *BulkExecutor) finish(opID string, status BulkStatus) {
	now := time.Now().UTC()

	e.mu.Lock()
	defer e.mu.Unlock()

	if op, ok := e.operations[opID]; ok {
		op.Status = status
		op.CompletedAt = &now
	}
	if cancel, ok := e.cancels[opID]; ok {
		cancel()
		delete(e.cancels, opID)
	}
}

// dedupe collapses duplicate IDs, keeping first occurrences in order.
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// progressPercent computes completion as a percentage.
func progressPercent(completed, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(completed) / float64(total) * 100
}

// IsTerminal reports whether the status will never change again.
func (s BulkStatus) IsTerminal() bool {
	return s == BulkStatusCompleted || s == BulkStatusFailed || s == BulkStatusCancelled
}
