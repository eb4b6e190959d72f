package device

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// ReconnectCoordinator restores connections across the fleet, typically at
// service startup or after a site-wide network outage.
type ReconnectCoordinator struct {
	registry *Registry
	logger   Logger
}

// NewReconnectCoordinator creates a coordinator over the given registry.
func NewReconnectCoordinator(registry *Registry) *ReconnectCoordinator {
	return &ReconnectCoordinator{
		registry: registry,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the coordinator.
func (c *ReconnectCoordinator) SetLogger(logger Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// ReconnectAll attempts one connection per auto-reconnect device,
// concurrently. Devices opted out of auto-reconnect are skipped.
//
// Each device gets exactly one attempt; failures are captured per device
// and never abort the sweep. When ReconnectAll returns, every attempted
// device has settled to connected or error status.
//
// Parameters:
//   - ctx: Context for all connection probes
//
// Returns:
//   - []ReconnectResult: One entry per attempted device
func (c *ReconnectCoordinator) ReconnectAll(ctx context.Context) []ReconnectResult {
	var targets []string
	for _, cfg := range c.registry.ListConfigs() {
		if cfg.ReconnectEnabled() {
			targets = append(targets, cfg.ID)
		}
	}

	if len(targets) == 0 {
		c.logger.Info("no auto-reconnect devices configured")
		return nil
	}

	c.logger.Info("reconnecting devices", "count", len(targets))

	results := make([]ReconnectResult, len(targets))
	g, gctx := errgroup.WithContext(ctx)

	for i, id := range targets {
		i, id := i, id
		g.Go(func() error {
			// Failures are collected, not returned: one dead terminal
			// must not cancel the rest of the sweep.
			results[i] = ReconnectResult{
				DeviceID: id,
				Err:      c.registry.Connect(gctx, id),
			}
			return nil
		})
	}

	_ = g.Wait() //nolint:errcheck // Goroutines always return nil

	succeeded := 0
	for _, res := range results {
		if res.Err == nil {
			succeeded++
		}
	}
	c.logger.Info("reconnect sweep complete", "attempted", len(results), "succeeded", succeeded)

	return results
}
