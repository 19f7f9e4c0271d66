// Package repl provides an interactive prompt that sends each entered line to
// a target as a raw command.
package repl

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/grantcarthew/cmdport/internal/command"
	"github.com/grantcarthew/cmdport/internal/config"
	"github.com/peterh/liner"
	"golang.org/x/term"
)

// SendFunc delivers a command to a target.
type SendFunc func(ctx context.Context, target config.Target, cmd command.Command) error

// ResolveFunc looks up a target by name.
type ResolveFunc func(name string) (config.Target, error)

// CommandExecutor runs a cmdport CLI command. Returns false when the command
// is unknown.
type CommandExecutor func(args []string) (recognized bool, err error)

// REPL is one interactive session. It owns the current target for the
// session's lifetime.
type REPL struct {
	send    SendFunc
	resolve ResolveFunc
	cmdExec CommandExecutor
	target  config.Target
	out     io.Writer
	history []string
	done    bool
}

// New creates a REPL that starts on target. cmdExec may be nil, in which case
// slash commands are rejected.
func New(target config.Target, send SendFunc, resolve ResolveFunc, cmdExec CommandExecutor) *REPL {
	return &REPL{
		send:    send,
		resolve: resolve,
		cmdExec: cmdExec,
		target:  target,
		out:     os.Stdout,
	}
}

// SetOutput redirects REPL messages.
func (r *REPL) SetOutput(w io.Writer) {
	r.out = w
}

// Target returns the current target.
func (r *REPL) Target() config.Target {
	return r.target
}

// IsStdinTTY returns true if stdin is a terminal.
func IsStdinTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// Run starts the prompt loop. Blocks until exit, EOF, Ctrl-C or ctx is done.
func (r *REPL) Run(ctx context.Context) error {
	state := liner.NewLiner()
	defer state.Close()

	state.SetCtrlCAborts(true)

	for !r.done {
		if ctx.Err() != nil {
			return nil
		}

		line, err := state.Prompt(r.prompt())
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				return nil
			}
			return err
		}

		if strings.TrimSpace(line) != "" {
			state.AppendHistory(line)
		}
		r.Execute(ctx, line)
	}
	return nil
}

// prompt shows the current target name.
func (r *REPL) prompt() string {
	name := r.target.Name
	if len(name) > 30 {
		name = name[:27] + "..."
	}
	return fmt.Sprintf("cmdport [%s]> ", name)
}

// replCommands lists REPL-specific commands for abbreviation matching.
var replCommands = []string{"exit", "quit", "help", "history", "target"}

// expandAbbreviation expands a command prefix to a full command name.
// Returns the expanded command and true if exactly one match found.
func expandAbbreviation(prefix string, commands []string) (string, bool) {
	prefix = strings.ToLower(prefix)
	var matches []string
	for _, cmd := range commands {
		if strings.HasPrefix(cmd, prefix) {
			matches = append(matches, cmd)
		}
	}
	if len(matches) == 1 {
		return matches[0], true
	}
	return "", false
}

// Execute handles one input line.
func (r *REPL) Execute(ctx context.Context, line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	r.history = append(r.history, line)

	if strings.HasPrefix(line, "/") {
		r.handleSpecialCommand(strings.TrimPrefix(line, "/"))
		return
	}
	if line == "?" {
		r.printHelp()
		return
	}

	cmd, err := command.Raw(line)
	if err != nil {
		r.printError(err)
		return
	}
	if err := r.send(ctx, r.target, cmd); err != nil {
		r.printError(err)
		return
	}
	fmt.Fprintln(r.out, "OK")
}

// handleSpecialCommand handles slash commands. Unknown names fall through to
// the CLI executor.
func (r *REPL) handleSpecialCommand(line string) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		r.printHelp()
		return
	}

	name := strings.ToLower(parts[0])
	if expanded, ok := expandAbbreviation(name, replCommands); ok {
		name = expanded
	}

	switch name {
	case "exit", "quit":
		r.done = true
	case "help":
		r.printHelp()
	case "history":
		r.printHistory()
	case "target":
		r.switchTarget(parts[1:])
	default:
		r.executeCLI(parts)
	}
}

func (r *REPL) switchTarget(args []string) {
	if len(args) == 0 {
		fmt.Fprintf(r.out, "%s %s (%s)\n", r.target.Name, r.target.Address(), r.target.Policy)
		return
	}

	target, err := r.resolve(args[0])
	if err != nil {
		r.printError(err)
		return
	}
	r.target = target
	fmt.Fprintf(r.out, "target: %s %s\n", target.Name, target.Address())
}

func (r *REPL) executeCLI(args []string) {
	if r.cmdExec == nil {
		r.printError(fmt.Errorf("unknown command: /%s", args[0]))
		return
	}

	recognized, err := r.cmdExec(args)
	if !recognized {
		r.printError(fmt.Errorf("unknown command: /%s", args[0]))
		return
	}
	// Commands print their own errors; cobra may still return flag errors.
	if err != nil && strings.Contains(err.Error(), "flag") {
		r.printError(err)
	}
}

func (r *REPL) printError(err error) {
	fmt.Fprintf(r.out, "Error: %v\n", err)
}

// printHelp displays available commands.
func (r *REPL) printHelp() {
	help := `
Any other line is sent verbatim to the current target.

REPL (unique prefixes accepted: /he=help, /hi=history, /t=target, /e=exit, /q=quit):
  /help, ?           Show this help
  /history           Show entered lines
  /target [name]     Show or switch the current target
  /exit, /quit       Leave the REPL

CLI commands run in-session with a leading slash, for example:
  /send setAttr pCube1.tx 2
  /load-plugin ./autoRig.py
`
	fmt.Fprintln(r.out, help)
}

// printHistory displays entered lines.
func (r *REPL) printHistory() {
	for i, line := range r.history {
		fmt.Fprintf(r.out, "  %d  %s\n", i+1, line)
	}
}
