// Package dispatch ties command encoding, fire-and-forget delivery and
// deferred artifact cleanup together.
package dispatch

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/grantcarthew/cmdport/internal/cleanup"
	"github.com/grantcarthew/cmdport/internal/command"
	"github.com/grantcarthew/cmdport/internal/config"
	"github.com/grantcarthew/cmdport/internal/event"
	"github.com/grantcarthew/cmdport/internal/transport"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Actions sent by the helpers.
const (
	ActionLoadPlugin = "loadPlugin"
	ActionImport     = "import"
)

// Sender delivers an encoded payload. *transport.Client implements it.
type Sender interface {
	Send(ctx context.Context, addr transport.Address, payload []byte, opts ...transport.Option) error
}

// Result describes one dispatched command.
type Result struct {
	Target  string
	Addr    transport.Address
	Policy  transport.Policy
	Payload []byte
	Err     error
	At      time.Time
}

// Config holds dispatcher dependencies. Nil fields get defaults: a transport
// client, an OS filesystem, a scheduler over that filesystem and os.TempDir.
type Config struct {
	Sender       Sender
	Cleanup      *cleanup.Scheduler
	Fs           afero.Fs
	TempDir      string
	CleanupDelay time.Duration
	Logger       *zap.Logger
}

// Dispatcher sends commands to targets. It owns its cleanup scheduler and
// result observers for the lifetime of a session.
type Dispatcher struct {
	sender       Sender
	cleanup      *cleanup.Scheduler
	fs           afero.Fs
	tempDir      string
	cleanupDelay time.Duration
	logger       *zap.Logger

	// Dispatched receives a Result for every command sent.
	Dispatched event.Event[Result]
}

// New creates a dispatcher.
func New(cfg Config) *Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	if cfg.Sender == nil {
		cfg.Sender = transport.NewClient(transport.Config{Logger: cfg.Logger})
	}
	if cfg.Cleanup == nil {
		cfg.Cleanup = cleanup.New(cleanup.Config{Fs: cfg.Fs, Logger: cfg.Logger})
	}
	if cfg.TempDir == "" {
		cfg.TempDir = afero.GetTempDir(cfg.Fs, "")
	}
	if cfg.CleanupDelay <= 0 {
		cfg.CleanupDelay = config.DefaultCleanupDelay
	}

	d := &Dispatcher{
		sender:       cfg.Sender,
		cleanup:      cfg.Cleanup,
		fs:           cfg.Fs,
		tempDir:      cfg.TempDir,
		cleanupDelay: cfg.CleanupDelay,
		logger:       cfg.Logger,
	}
	d.Dispatched.OnPanic = func(err error) {
		d.logger.Error("dispatch observer failed", zap.Error(err))
	}
	return d
}

// Cleanup returns the scheduler used for pushed artifacts.
func (d *Dispatcher) Cleanup() *cleanup.Scheduler {
	return d.cleanup
}

// Encode renders cmd in the target's format.
func Encode(target config.Target, cmd command.Command) ([]byte, error) {
	format, err := target.CommandFormat()
	if err != nil {
		return nil, err
	}
	return command.Encode(cmd, format)
}

// Dispatch encodes cmd for target and sends it once. Delivery failures are
// returned or swallowed according to the target's policy.
func (d *Dispatcher) Dispatch(ctx context.Context, target config.Target, cmd command.Command) error {
	payload, err := Encode(target, cmd)
	if err != nil {
		return fmt.Errorf("failed to encode command: %w", err)
	}
	policy, err := target.SendPolicy()
	if err != nil {
		return err
	}

	addr := target.Address()
	err = d.sender.Send(ctx, addr, payload,
		transport.WithPolicy(policy),
		transport.WithTimeout(target.Timeout))

	d.Dispatched.Emit(Result{
		Target:  target.Name,
		Addr:    addr,
		Policy:  policy,
		Payload: payload,
		Err:     err,
		At:      time.Now(),
	})
	return err
}

// LoadPluginCommand returns `loadPlugin "<abs path>"`.
func LoadPluginCommand(path string) command.Command {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return command.New(ActionLoadPlugin, command.String(path))
}

// LoadPlugin asks the target to load the plugin at path.
func (d *Dispatcher) LoadPlugin(ctx context.Context, target config.Target, path string) error {
	return d.Dispatch(ctx, target, LoadPluginCommand(path))
}

// ArtifactPath returns where an artifact for name is written.
func (d *Dispatcher) ArtifactPath(name, ext string) string {
	return JoinArtifactPath(d.tempDir, name, ext)
}

// JoinArtifactPath returns dir/<sanitized name><ext>. A missing leading dot
// on ext is added.
func JoinArtifactPath(dir, name, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return filepath.Join(dir, SanitizeName(name)+ext)
}

// Artifact describes one file handed to a target.
type Artifact struct {
	Name     string
	Ext      string
	Exporter Exporter
	Action   string        // empty selects ActionImport
	Delay    time.Duration // zero selects the dispatcher's cleanup delay
}

// Command returns `action "<path>"` for the artifact written at path.
func (a Artifact) Command(path string) command.Command {
	action := a.Action
	if action == "" {
		action = ActionImport
	}
	return command.New(action, command.String(path))
}

// SendArtifact exports a, sends `action "<path>"` to the target, and arms
// deletion of the artifact. The deletion fires after the delay when the send
// succeeded or was swallowed, and immediately when the send failed or the
// export failed.
func (d *Dispatcher) SendArtifact(ctx context.Context, target config.Target, a Artifact) (string, error) {
	if a.Delay < 0 {
		return "", fmt.Errorf("negative cleanup delay %s", a.Delay)
	}
	delay := a.Delay
	if delay == 0 {
		delay = d.cleanupDelay
	}
	path := d.ArtifactPath(a.Name, a.Ext)

	if err := d.fs.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return path, fmt.Errorf("failed to create artifact directory: %w", err)
	}
	if err := a.Exporter.Export(ctx, d.fs, path); err != nil {
		d.scheduleDelete(path, 0)
		return path, fmt.Errorf("failed to export %q: %w", a.Name, err)
	}

	if err := d.Dispatch(ctx, target, a.Command(path)); err != nil {
		d.scheduleDelete(path, 0)
		return path, err
	}

	d.scheduleDelete(path, delay)
	return path, nil
}

func (d *Dispatcher) scheduleDelete(path string, delay time.Duration) {
	if _, err := d.cleanup.ScheduleDelete(path, delay); err != nil {
		d.logger.Warn("artifact cleanup not scheduled",
			zap.String("path", path),
			zap.Error(err))
	}
}

// Close stops accepting artifact cleanups and waits for armed ones to finish.
func (d *Dispatcher) Close() {
	d.cleanup.Close()
	d.cleanup.Wait()
}

// SanitizeName turns an object name into a safe file name. Characters other
// than letters, digits, '.', '-' and '_' become '_'.
func SanitizeName(name string) string {
	name = strings.TrimSpace(name)
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	s := strings.Trim(b.String(), ".")
	if s == "" {
		return "artifact"
	}
	return s
}
