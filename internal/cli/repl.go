package cli

import (
	"bufio"

	"github.com/grantcarthew/cmdport/internal/config"
	"github.com/grantcarthew/cmdport/internal/repl"
	"github.com/spf13/cobra"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactive prompt sending each line to a target",
	Long: `Starts an interactive prompt. Each line is sent verbatim to the current
target. Lines starting with "/" are REPL or cmdport commands:

  /target export      switch target
  /send select pCube1 run a cmdport command in this session
  /exit

When stdin is not a terminal, lines are read and sent until EOF.`,
	Args: cobra.NoArgs,
	RunE: runREPL,
}

func init() {
	rootCmd.AddCommand(replCmd)
}

// inREPL is set while a REPL session owns the executor factory.
var inREPL bool

// stdinIsTTY selects the interactive prompt, replaceable for testing.
var stdinIsTTY = repl.IsStdinTTY

func runREPL(cmd *cobra.Command, args []string) error {
	if inREPL {
		return outputError("already in a REPL session")
	}

	target, err := resolveTarget("", nil)
	if err != nil {
		return outputError(err.Error())
	}

	exec, err := execFactory.NewExecutor()
	if err != nil {
		return outputError(err.Error())
	}
	defer exec.Close()

	// Capture the session's config; in-session commands reload their own.
	session := cfg
	resolve := func(name string) (config.Target, error) {
		return session.Resolve(name)
	}

	old := execFactory
	execFactory = sessionFactory{ExecutorFactory: old, exec: exec}
	inREPL = true
	defer func() {
		execFactory = old
		inREPL = false
	}()

	r := repl.New(target, exec.Dispatch, resolve, ExecuteArgs)
	r.SetOutput(cmd.OutOrStdout())

	ctx := cmd.Context()
	if !stdinIsTTY() {
		scanner := bufio.NewScanner(cmd.InOrStdin())
		for scanner.Scan() {
			if ctx.Err() != nil {
				return nil
			}
			r.Execute(ctx, scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			return outputError(err.Error())
		}
		return nil
	}

	outputNotice("cmdport REPL. Type /help for commands, /exit to leave.")
	return r.Run(ctx)
}
