package cli

import (
	"strings"

	"github.com/grantcarthew/cmdport/internal/command"
	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send ACTION [ARGS...]",
	Short: "Send one command to a target",
	Long: `Encodes ACTION and ARGS as a single line and sends it to the target.

Arguments that parse as numbers are sent bare; everything else is quoted.
Use --strings to quote every argument. Flags go before ACTION; everything
after it is an argument, so negative numbers need no escaping.

Examples:
  send setAttr pCube1.translateX 2.5
  send move -1 0 0
  send --format python select pCube1      # select("pCube1")
  send --strings rename 001 002           # rename "001" "002"
  send -t localhost:7005 refresh`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSend,
}

var (
	sendFlags   targetFlags
	sendStrings bool
)

func init() {
	sendFlags.register(sendCmd.Flags())
	sendCmd.Flags().BoolVar(&sendStrings, "strings", false, "Send every argument as a quoted string")
	sendCmd.Flags().SetInterspersed(false)
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	c := command.New(args[0], command.ParseArgs(args[1:], sendStrings)...)
	return sendCommand(cmd, c, &sendFlags)
}

var rawCmd = &cobra.Command{
	Use:   "raw LINE...",
	Short: "Send a line verbatim",
	Long: `Sends LINE to the target exactly as given, plus a trailing newline.
Multiple arguments are joined with single spaces. Flags go before LINE.

Examples:
  raw 'polyCube -n "box";'
  raw polyCube -n box
  raw -t export print hello`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRaw,
}

var rawFlags targetFlags

func init() {
	rawFlags.register(rawCmd.Flags())
	rawCmd.Flags().SetInterspersed(false)
	rootCmd.AddCommand(rawCmd)
}

func runRaw(cmd *cobra.Command, args []string) error {
	c, err := command.Raw(strings.Join(args, " "))
	if err != nil {
		return outputError(err.Error())
	}
	return sendCommand(cmd, c, &rawFlags)
}

// sendCommand resolves the target and dispatches c once.
func sendCommand(cmd *cobra.Command, c command.Command, flags *targetFlags) error {
	target, err := resolveTarget("", flags)
	if err != nil {
		return outputError(err.Error())
	}

	exec, err := execFactory.NewExecutor()
	if err != nil {
		return outputError(err.Error())
	}
	defer exec.Close()

	if err := exec.Dispatch(cmd.Context(), target, c); err != nil {
		return outputError(err.Error())
	}
	if DryRun {
		return nil
	}
	if JSONOutput {
		return outputSuccess(dispatchResult(target, c))
	}
	return outputSuccess(nil)
}
