package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	v1 "github.com/jbweber/rcloud/api/v1"
)

// DefaultPollInterval is how often WaitForVM re-reads the VM.
const DefaultPollInterval = time.Second

// WaitForVM polls GetVM until the VM is running and has reported an
// address, ctx ends, or the VM disappears. Other request errors are retried.
// A zero interval uses DefaultPollInterval.
func (c *Client) WaitForVM(ctx context.Context, idOrName string, interval time.Duration) (*v1.VM, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last *v1.VM
	var lastErr error
	for {
		vm, err := c.GetVM(ctx, idOrName)
		switch {
		case errors.Is(err, ErrNotFound):
			return nil, err
		case err != nil:
			lastErr = err
		case vm.IsRunning() && vm.HasAddress():
			return vm, nil
		default:
			last, lastErr = vm, nil
		}

		select {
		case <-ctx.Done():
			if lastErr != nil {
				return last, fmt.Errorf("timed out waiting for VM %s: %w (last error: %v)", idOrName, ctx.Err(), lastErr)
			}
			return last, fmt.Errorf("timed out waiting for VM %s to get an address: %w", idOrName, ctx.Err())
		case <-ticker.C:
		}
	}
}
