package executor

import (
	"context"

	"github.com/grantcarthew/cmdport/internal/command"
	"github.com/grantcarthew/cmdport/internal/config"
	"github.com/grantcarthew/cmdport/internal/dispatch"
)

// Executor executes commands against targets.
// Implementations decide whether anything leaves the process (network, dry run).
type Executor interface {
	Dispatch(ctx context.Context, target config.Target, cmd command.Command) error
	SendArtifact(ctx context.Context, target config.Target, a dispatch.Artifact) (string, error)
	Close() error
}
