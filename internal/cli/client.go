package cli

import (
	"context"
	"os"
	"time"

	"github.com/grantcarthew/cmdport/internal/command"
	"github.com/grantcarthew/cmdport/internal/config"
	"github.com/grantcarthew/cmdport/internal/dispatch"
	"github.com/grantcarthew/cmdport/internal/executor"
	"github.com/grantcarthew/cmdport/internal/transport"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

// ExecutorFactory creates executors and checks whether targets are listening.
type ExecutorFactory interface {
	NewExecutor() (executor.Executor, error)
	Probe(ctx context.Context, target config.Target) error
}

// defaultFactory sends over the network, or prints with --dry-run.
type defaultFactory struct{}

func (f defaultFactory) NewExecutor() (executor.Executor, error) {
	if DryRun {
		return executor.NewDryRunExecutor(os.Stdout, cfg.ArtifactDir()), nil
	}
	d := dispatch.New(dispatch.Config{
		TempDir:      cfg.ArtifactDir(),
		CleanupDelay: cfg.CleanupDelay,
		Logger:       logger,
	})
	d.Dispatched.Subscribe(logDispatch)
	return executor.NewNetworkExecutor(d), nil
}

// logDispatch records every dispatched payload at debug level.
func logDispatch(r dispatch.Result) {
	logger.Debug("command dispatched",
		zap.String("target", r.Target),
		zap.Stringer("addr", r.Addr),
		zap.String("policy", string(r.Policy)),
		zap.ByteString("payload", r.Payload),
		zap.Error(r.Err))
}

func (f defaultFactory) Probe(ctx context.Context, target config.Target) error {
	c := transport.NewClient(transport.Config{Timeout: target.Timeout, Logger: logger})
	return c.Probe(ctx, target.Address())
}

// execFactory is the package-level factory, replaceable for testing.
var execFactory ExecutorFactory = defaultFactory{}

// SetExecutorFactory sets the executor factory (for testing).
func SetExecutorFactory(f ExecutorFactory) {
	execFactory = f
}

// ResetExecutorFactory resets to the default factory.
func ResetExecutorFactory() {
	execFactory = defaultFactory{}
}

// sessionFactory hands out one shared executor, used while a REPL is running
// so in-session commands share its dispatcher and cleanup scheduler.
// --dry-run on an in-session command still gets a dry-run executor.
type sessionFactory struct {
	ExecutorFactory
	exec executor.Executor
}

func (f sessionFactory) NewExecutor() (executor.Executor, error) {
	if DryRun {
		return executor.NewDryRunExecutor(os.Stdout, cfg.ArtifactDir()), nil
	}
	return sharedExecutor{f.exec}, nil
}

// sharedExecutor ignores Close; the session owner closes the real executor.
type sharedExecutor struct {
	executor.Executor
}

func (sharedExecutor) Close() error { return nil }

// targetFlags are the per-command overrides applied on top of a resolved target.
type targetFlags struct {
	timeout time.Duration
	policy  string
	format  string
}

func (f *targetFlags) register(fs *pflag.FlagSet) {
	fs.DurationVar(&f.timeout, "timeout", 0, "Send timeout (default from target, then 3s)")
	fs.StringVar(&f.policy, "policy", "", "Failure policy: propagate or swallow (default from target)")
	fs.StringVar(&f.format, "format", "", "Line format: plain, python or mel (default from target)")
}

// resolveTarget returns the target selected by --target (or fallback when
// --target is empty) with the command's overrides applied.
func resolveTarget(fallback string, flags *targetFlags) (config.Target, error) {
	name := TargetName
	if name == "" {
		name = fallback
	}
	t, err := cfg.Resolve(name)
	if err != nil {
		return config.Target{}, err
	}
	if flags == nil {
		return t, nil
	}

	if flags.timeout > 0 {
		t.Timeout = flags.timeout
	}
	if flags.policy != "" {
		if _, err := transport.ParsePolicy(flags.policy); err != nil {
			return config.Target{}, err
		}
		t.Policy = flags.policy
	}
	if flags.format != "" {
		if _, err := command.ParseFormat(flags.format); err != nil {
			return config.Target{}, err
		}
		t.Format = flags.format
	}
	return t, nil
}

// dispatchResult is the JSON shape reported for a sent command.
func dispatchResult(t config.Target, cmd command.Command) map[string]any {
	return map[string]any{
		"target":  t.Name,
		"address": t.Address().String(),
		"policy":  t.Policy,
		"command": cmd.String(),
	}
}
