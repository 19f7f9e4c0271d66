package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/grantcarthew/cmdport/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

// Version is set at build time.
var Version = "dev"

// Debug enables verbose debug logging.
var Debug bool

// JSONOutput enables JSON output format (default is text).
var JSONOutput bool

// NoColor disables color output.
var NoColor bool

// ConfigPath overrides the config file location.
var ConfigPath string

// TargetName selects the target by name or address.
var TargetName string

// DryRun prints payloads instead of sending them.
var DryRun bool

// Per-invocation state, set in PersistentPreRunE.
var (
	cfg    = config.Default()
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "cmdport",
	Short: "Send fire-and-forget commands to a host application's command port",
	Long: `cmdport encodes commands as single text lines and delivers them to a
listening host application over TCP, a Unix socket or a WebSocket.

Nothing is read back. Each target decides whether delivery failures are
reported (propagate) or logged and ignored (swallow).`,
	Version:            Version,
	SilenceUsage:       true,
	SilenceErrors:      true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&Debug, "debug", false, "Enable verbose debug logging")
	rootCmd.PersistentFlags().BoolVar(&JSONOutput, "json", false, "Output in JSON format (default is text)")
	rootCmd.PersistentFlags().BoolVar(&NoColor, "no-color", false, "Disable color output")
	rootCmd.PersistentFlags().StringVar(&ConfigPath, "config", "", "Config file (default $XDG_CONFIG_HOME/cmdport/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&TargetName, "target", "t", "", "Target name or address (host:port, unix://path, ws://url)")
	rootCmd.PersistentFlags().BoolVar(&DryRun, "dry-run", false, "Print payloads instead of sending them")
	rootCmd.SetVersionTemplate(`cmdport version {{.Version}}
Repository: https://github.com/grantcarthew/cmdport
Report issues: https://github.com/grantcarthew/cmdport/issues/new
`)
}

// setup loads configuration and builds the logger for one command run.
func setup(cmd *cobra.Command, args []string) error {
	l, err := newLogger(Debug)
	if err != nil {
		return err
	}
	logger = l

	c, err := config.Load(ConfigPath)
	if err != nil {
		return outputError(err.Error())
	}
	cfg = c
	logger.Debug("config loaded",
		zap.String("source", cfg.Source),
		zap.String("default_target", cfg.DefaultTarget),
		zap.Strings("targets", cfg.TargetNames()))
	return nil
}

func teardown(cmd *cobra.Command, args []string) error {
	// Sync fails on stderr for some terminals; nothing useful to report.
	_ = logger.Sync()
	return nil
}

// newLogger returns a console logger on stderr. Debug lowers the level to
// debug; otherwise only warnings and errors are shown.
func newLogger(debug bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	zc.Encoding = "console"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zc.DisableStacktrace = true
	zc.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	if debug {
		zc.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		zc.DisableStacktrace = false
	}
	l, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return l, nil
}

// Execute runs the root command. The command context is cancelled on
// SIGINT or SIGTERM.
// Supports command abbreviation via unique prefix matching.
func Execute() error {
	args := os.Args[1:]
	if len(args) > 0 {
		if expanded := tryExpandCommand(args[0]); expanded != "" {
			args[0] = expanded
			rootCmd.SetArgs(args)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// tryExpandCommand attempts to expand a command abbreviation.
// Returns the expanded command if exactly one match is found, empty string otherwise.
func tryExpandCommand(prefix string) string {
	var matches []string
	for _, cmd := range rootCmd.Commands() {
		name := cmd.Name()
		if name == prefix {
			return ""
		}
		if len(prefix) < len(name) && name[:len(prefix)] == prefix {
			matches = append(matches, name)
		}
	}

	if len(matches) == 1 {
		return matches[0]
	}
	return ""
}

// ExecuteArgs runs a command with the given arguments.
// Used by the REPL to execute commands parsed from user input.
// Returns true if the command was recognized (even if it failed), false if unknown.
func ExecuteArgs(args []string) (recognized bool, err error) {
	if len(args) == 0 {
		return false, nil
	}
	if expanded := tryExpandCommand(args[0]); expanded != "" {
		args = append([]string{expanded}, args[1:]...)
	}

	cmd, _, findErr := rootCmd.Find(args)
	if findErr != nil || cmd == rootCmd {
		return false, nil
	}

	rootCmd.SetArgs(args)
	err = rootCmd.Execute()

	// Reset AFTER execution so the next call starts from defaults.
	resetFlags := func(flags *pflag.FlagSet) {
		flags.VisitAll(func(f *pflag.Flag) {
			// Set("[]") would create a slice holding the literal "[]".
			defVal := f.DefValue
			if defVal == "[]" {
				defVal = ""
			}
			_ = f.Value.Set(defVal)
			f.Changed = false
		})
	}

	resetFlags(cmd.Flags())
	resetFlags(cmd.PersistentFlags())
	for parent := cmd.Parent(); parent != nil; parent = parent.Parent() {
		resetFlags(parent.PersistentFlags())
	}

	Debug = false
	JSONOutput = false
	NoColor = false
	ConfigPath = ""
	TargetName = ""
	DryRun = false

	return true, err
}

// printedError marks an error whose message was already written to stderr.
type printedError struct {
	msg string
}

func (e *printedError) Error() string {
	return e.msg
}

// IsPrintedError reports whether err was already shown to the user.
func IsPrintedError(err error) bool {
	var pe *printedError
	return errors.As(err, &pe)
}

// isStdoutTTY returns true if stdout is a terminal.
func isStdoutTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// outputJSON writes a JSON response to the given writer.
// Pretty prints if stdout is a TTY, compact otherwise.
func outputJSON(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	if isStdoutTTY() {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(data)
}

// outputSuccess writes a successful response to stdout.
// Uses text format by default, JSON if --json flag is set.
// For action commands (no data), outputs "OK" in text mode.
func outputSuccess(data any) error {
	if JSONOutput {
		resp := map[string]any{
			"ok": true,
		}
		if data != nil {
			resp["data"] = data
		}
		return outputJSON(os.Stdout, resp)
	}

	if data == nil {
		if shouldUseColor() {
			color.New(color.FgGreen).Fprintln(os.Stdout, "OK")
		} else {
			fmt.Fprintln(os.Stdout, "OK")
		}
		return nil
	}

	_, err := fmt.Fprintf(os.Stdout, "%v\n", data)
	return err
}

// outputError writes an error response to stderr and returns a printed error.
// Uses text format by default, JSON if --json flag is set.
func outputError(msg string) error {
	if JSONOutput {
		resp := map[string]any{
			"ok":    false,
			"error": msg,
		}
		outputJSON(os.Stderr, resp)
	} else {
		if shouldUseColor() {
			color.New(color.FgRed).Fprint(os.Stderr, "Error:")
			fmt.Fprintf(os.Stderr, " %s\n", msg)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
		}
	}
	return &printedError{msg: msg}
}

// outputNotice writes an informational message to stderr.
func outputNotice(msg string) {
	if JSONOutput {
		return
	}
	if shouldUseColor() {
		color.New(color.Faint).Fprintln(os.Stderr, msg)
		return
	}
	fmt.Fprintln(os.Stderr, msg)
}

// shouldUseColor determines if color output should be used based on flags and environment.
func shouldUseColor() bool {
	if JSONOutput {
		return false
	}
	if NoColor {
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}
