package executor

import (
	"context"
	"io"

	"github.com/grantcarthew/cmdport/internal/command"
	"github.com/grantcarthew/cmdport/internal/config"
	"github.com/grantcarthew/cmdport/internal/dispatch"
)

// DryRunExecutor writes encoded payloads to a writer instead of sending them.
// Artifacts are not exported.
type DryRunExecutor struct {
	w       io.Writer
	tempDir string
}

// NewDryRunExecutor creates a dry-run executor writing to w. tempDir is used
// to show where artifacts would be written.
func NewDryRunExecutor(w io.Writer, tempDir string) *DryRunExecutor {
	return &DryRunExecutor{w: w, tempDir: tempDir}
}

// Dispatch writes the payload cmd would send to target.
func (e *DryRunExecutor) Dispatch(ctx context.Context, target config.Target, cmd command.Command) error {
	payload, err := dispatch.Encode(target, cmd)
	if err != nil {
		return err
	}
	_, err = e.w.Write(payload)
	return err
}

// SendArtifact writes the command that would reference the artifact.
func (e *DryRunExecutor) SendArtifact(ctx context.Context, target config.Target, a dispatch.Artifact) (string, error) {
	path := dispatch.JoinArtifactPath(e.tempDir, a.Name, a.Ext)
	return path, e.Dispatch(ctx, target, a.Command(path))
}

// Close is a no-op for the dry-run executor.
func (e *DryRunExecutor) Close() error {
	return nil
}
