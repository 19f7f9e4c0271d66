package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/grantcarthew/cmdport/internal/command"
	"github.com/grantcarthew/cmdport/internal/dispatch"
	"github.com/grantcarthew/cmdport/internal/watch"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var watchCmd = &cobra.Command{
	Use:   "watch PATHS...",
	Short: "Reload plugins when their files change",
	Long: `Watches files or directories and, after each burst of changes, sends
loadPlugin "<changed file>" to the target. With --command the given line is
sent instead.

Hidden files, editor swap files and Python bytecode are ignored.

Examples:
  watch ./autoRig.py
  watch ./plugins --ignore "*.tmp,*.bak"
  watch ./shelf --command 'rehash;' --format mel`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWatch,
}

var (
	watchFlags    targetFlags
	watchIgnore   []string
	watchDebounce time.Duration
	watchCommand  string
)

func init() {
	watchFlags.register(watchCmd.Flags())
	watchCmd.Flags().StringSliceVar(&watchIgnore, "ignore", nil, "Glob patterns to ignore (comma-separated)")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watch.DefaultDebounce, "Quiet period before a burst of changes triggers")
	watchCmd.Flags().StringVar(&watchCommand, "command", "", "Raw line to send on change instead of loadPlugin")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	target, err := resolveTarget("", &watchFlags)
	if err != nil {
		return outputError(err.Error())
	}

	var fixed *command.Command
	if watchCommand != "" {
		c, err := command.Raw(watchCommand)
		if err != nil {
			return outputError(err.Error())
		}
		fixed = &c
	}

	exec, err := execFactory.NewExecutor()
	if err != nil {
		return outputError(err.Error())
	}
	defer exec.Close()

	ctx := cmd.Context()
	onChange := func(ev watch.FileEvent) {
		c := dispatch.LoadPluginCommand(ev.Path)
		if fixed != nil {
			c = *fixed
		}
		err := exec.Dispatch(ctx, target, c)
		if err != nil {
			logger.Warn("reload failed", zap.String("path", ev.Path), zap.Error(err))
		}
		printReload(ev, c, err)
	}

	w, err := watch.New(watch.Config{
		Paths:    args,
		Ignore:   watchIgnore,
		Debounce: watchDebounce,
		OnChange: onChange,
		Logger:   logger,
	})
	if err != nil {
		return outputError(err.Error())
	}
	if err := w.Start(); err != nil {
		return outputError(err.Error())
	}
	defer w.Stop()

	outputNotice(fmt.Sprintf("watching %d path(s), sending to %s (Ctrl-C to stop)", len(args), target.Address()))
	<-ctx.Done()
	return nil
}

// printReload reports one triggered dispatch.
func printReload(ev watch.FileEvent, c command.Command, err error) {
	if JSONOutput {
		resp := map[string]any{
			"ok":      err == nil,
			"path":    ev.Path,
			"op":      ev.Op,
			"events":  ev.Count,
			"command": c.String(),
		}
		if err != nil {
			resp["error"] = err.Error()
		}
		outputJSON(os.Stdout, resp)
		return
	}

	status := "sent"
	if err != nil {
		status = "failed: " + err.Error()
	}
	if shouldUseColor() {
		attr := color.FgGreen
		if err != nil {
			attr = color.FgRed
		}
		status = color.New(attr).Sprint(status)
	}
	fmt.Fprintf(os.Stdout, "%s %s (%d events) %s\n", ev.Time.Format("15:04:05"), ev.Path, ev.Count, status)
}
