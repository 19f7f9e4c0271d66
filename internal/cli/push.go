package cli

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/grantcarthew/cmdport/internal/config"
	"github.com/grantcarthew/cmdport/internal/dispatch"
	"github.com/spf13/cobra"
)

var pushCmd = &cobra.Command{
	Use:   "push NAME [FILE|-]",
	Short: "Write an artifact and tell the target to import it",
	Long: `Writes FILE (or stdin when FILE is "-" or omitted) to the artifact
directory as <NAME><ext>, sends <action> "<path>" to the target and deletes
the artifact after the cleanup delay.

Deletion happens in this process, so push waits for it before exiting. A
failed send deletes the artifact straight away.

Uses the "export" target unless --target is given.

Examples:
  push pCube1 ./cube.obj
  cat scene.fbx | push scene --ext fbx --action importFBX
  push pCube1 cube.obj --delay 30s`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runPush,
}

var (
	pushFlags  targetFlags
	pushExt    string
	pushAction string
	pushDelay  time.Duration
)

func init() {
	pushFlags.register(pushCmd.Flags())
	pushCmd.Flags().StringVar(&pushExt, "ext", "", "Artifact extension (default from FILE, else .obj)")
	pushCmd.Flags().StringVar(&pushAction, "action", dispatch.ActionImport, "Action sent with the artifact path")
	pushCmd.Flags().DurationVar(&pushDelay, "delay", 0, "Delete the artifact after this long (default from config, 10s)")
	rootCmd.AddCommand(pushCmd)
}

func runPush(cmd *cobra.Command, args []string) error {
	name := args[0]
	source := "-"
	if len(args) > 1 {
		source = args[1]
	}

	ext := pushExt
	if ext == "" && source != "-" {
		ext = filepath.Ext(source)
	}
	if ext == "" {
		ext = ".obj"
	}

	var exp dispatch.Exporter
	if source == "-" {
		exp = dispatch.ReaderExporter{Reader: cmd.InOrStdin()}
	} else {
		exp = dispatch.FileExporter{Source: source}
	}

	target, err := resolveTarget(config.TargetExport, &pushFlags)
	if err != nil {
		return outputError(err.Error())
	}

	if pushDelay < 0 {
		return outputError("--delay must not be negative")
	}
	delay := pushDelay
	if delay == 0 {
		delay = cfg.CleanupDelay
	}

	exec, err := execFactory.NewExecutor()
	if err != nil {
		return outputError(err.Error())
	}

	path, err := exec.SendArtifact(cmd.Context(), target, dispatch.Artifact{
		Name:     name,
		Ext:      ext,
		Exporter: exp,
		Action:   pushAction,
		Delay:    delay,
	})
	if err != nil {
		exec.Close()
		return outputError(err.Error())
	}

	if !DryRun {
		outputNotice(fmt.Sprintf("%s will be deleted in %s", path, delay))
	}
	if err := exec.Close(); err != nil {
		return outputError(err.Error())
	}
	if DryRun {
		return nil
	}

	if JSONOutput {
		return outputSuccess(map[string]any{
			"target": target.Name,
			"path":   path,
			"action": strings.TrimSpace(pushAction),
		})
	}
	return outputSuccess(path)
}
