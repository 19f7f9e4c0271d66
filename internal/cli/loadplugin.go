package cli

import (
	"github.com/grantcarthew/cmdport/internal/dispatch"
	"github.com/spf13/cobra"
)

var loadPluginCmd = &cobra.Command{
	Use:   "load-plugin PATH",
	Short: "Ask the target to load a plugin",
	Long: `Sends loadPlugin "<absolute path>" to the target.

The path is made absolute on this machine; it must be reachable by the host
application as well.`,
	Args: cobra.ExactArgs(1),
	RunE: runLoadPlugin,
}

var loadPluginFlags targetFlags

func init() {
	loadPluginFlags.register(loadPluginCmd.Flags())
	rootCmd.AddCommand(loadPluginCmd)
}

func runLoadPlugin(cmd *cobra.Command, args []string) error {
	return sendCommand(cmd, dispatch.LoadPluginCommand(args[0]), &loadPluginFlags)
}
