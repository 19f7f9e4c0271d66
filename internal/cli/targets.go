package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "List configured targets",
	Long: `Lists configured targets with their address, failure policy and format.
The default target is marked with "*".

With --probe, each target is dialed once (nothing is written) to show
whether something is listening.`,
	Args: cobra.NoArgs,
	RunE: runTargets,
}

var (
	targetsProbe        bool
	targetsProbeTimeout time.Duration
)

func init() {
	targetsCmd.Flags().BoolVar(&targetsProbe, "probe", false, "Check whether each target is listening")
	targetsCmd.Flags().DurationVar(&targetsProbeTimeout, "probe-timeout", time.Second, "Timeout per probe")
	rootCmd.AddCommand(targetsCmd)
}

// targetInfo is one row of the targets listing.
type targetInfo struct {
	Name      string `json:"name"`
	Address   string `json:"address"`
	Policy    string `json:"policy"`
	Format    string `json:"format"`
	Default   bool   `json:"default"`
	Reachable *bool  `json:"reachable,omitempty"`
	Error     string `json:"error,omitempty"`
}

func runTargets(cmd *cobra.Command, args []string) error {
	var rows []targetInfo
	for _, name := range cfg.TargetNames() {
		t := cfg.Targets[name]
		// Load validated every target; these only fill in defaults.
		policy, _ := t.SendPolicy()
		format, _ := t.CommandFormat()
		row := targetInfo{
			Name:    name,
			Address: t.Address().String(),
			Policy:  string(policy),
			Format:  string(format),
			Default: name == cfg.DefaultTarget,
		}

		if targetsProbe {
			ctx, cancel := context.WithTimeout(cmd.Context(), targetsProbeTimeout)
			err := execFactory.Probe(ctx, t)
			cancel()
			ok := err == nil
			row.Reachable = &ok
			if err != nil {
				row.Error = err.Error()
			}
		}
		rows = append(rows, row)
	}

	if JSONOutput {
		return outputSuccess(map[string]any{
			"source":  cfg.Source,
			"targets": rows,
		})
	}

	for _, row := range rows {
		mark := " "
		if row.Default {
			mark = "*"
		}
		line := fmt.Sprintf("%s %-12s %-28s %-10s %-7s", mark, row.Name, row.Address, row.Policy, row.Format)
		if row.Reachable != nil {
			line += " " + reachability(*row.Reachable)
		}
		fmt.Fprintln(os.Stdout, line)
	}
	return nil
}

func reachability(ok bool) string {
	if !shouldUseColor() {
		if ok {
			return "up"
		}
		return "down"
	}
	if ok {
		return color.New(color.FgGreen).Sprint("up")
	}
	return color.New(color.FgRed).Sprint("down")
}
