package executor

import (
	"context"

	"github.com/grantcarthew/cmdport/internal/command"
	"github.com/grantcarthew/cmdport/internal/config"
	"github.com/grantcarthew/cmdport/internal/dispatch"
)

// NetworkExecutor sends commands through a dispatcher.
type NetworkExecutor struct {
	d *dispatch.Dispatcher
}

// NewNetworkExecutor wraps d. The executor owns d from here on.
func NewNetworkExecutor(d *dispatch.Dispatcher) *NetworkExecutor {
	return &NetworkExecutor{d: d}
}

// Dispatch sends cmd to target.
func (e *NetworkExecutor) Dispatch(ctx context.Context, target config.Target, cmd command.Command) error {
	return e.d.Dispatch(ctx, target, cmd)
}

// SendArtifact exports, sends and schedules cleanup of an artifact.
func (e *NetworkExecutor) SendArtifact(ctx context.Context, target config.Target, a dispatch.Artifact) (string, error) {
	return e.d.SendArtifact(ctx, target, a)
}

// Close waits for armed artifact deletions before returning.
func (e *NetworkExecutor) Close() error {
	e.d.Close()
	return nil
}
