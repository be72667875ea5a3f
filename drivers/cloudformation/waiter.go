package cloudformation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/stagehand-io/stagehand/internal/driver"
	"github.com/stagehand-io/stagehand/internal/logging"
)

// waitSettled polls the stack until it leaves *_IN_PROGRESS. The overall
// deadline comes from ctx; the engine wraps applies in per-stage timeouts.
func (d *Driver) waitSettled(ctx context.Context, stackName string) (*driver.Description, error) {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		desc, err := d.Describe(ctx, stackName)
		if err != nil {
			return nil, err
		}
		if !desc.Exists {
			return nil, fmt.Errorf("stack %s disappeared while waiting", stackName)
		}
		if !inProgress(desc.Status) {
			return desc, nil
		}
		logging.Debug("waiting for stack", "stack", stackName, "status", desc.Status)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("timed out waiting for stack %s (last status %s): %w",
				stackName, desc.Status, ctx.Err())
		case <-ticker.C:
		}
	}
}

// waitDeleted polls until the stack no longer exists.
func (d *Driver) waitDeleted(ctx context.Context, stackName string) error {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		desc, err := d.Describe(ctx, stackName)
		if err != nil {
			return err
		}
		if !desc.Exists || desc.Status == driver.StatusDeleteComplete {
			return nil
		}
		if desc.Status == driver.StatusDeleteFailed {
			reason := d.failureReason(ctx, stackName)
			return fmt.Errorf("stack %s delete failed: %s", stackName, reason)
		}
		logging.Debug("waiting for stack deletion", "stack", stackName, "status", desc.Status)

		select {
		case <-ctx.Done():
			return fmt.Errorf("timed out waiting for deletion of stack %s: %w", stackName, ctx.Err())
		case <-ticker.C:
		}
	}
}

func inProgress(status string) bool {
	return strings.HasSuffix(status, "_IN_PROGRESS")
}
