package cli

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/grantcarthew/cmdport/internal/listener"
	"github.com/grantcarthew/cmdport/internal/transport"
	"github.com/spf13/cobra"
)

var listenCmd = &cobra.Command{
	Use:   "listen [ADDRESS]",
	Short: "Print commands received on an address",
	Long: `Listens on ADDRESS (default: the selected target's address) and prints
every line received. Useful for checking what cmdport sends without the host
application running.

Examples:
  listen                        # plugin target, localhost:7001
  listen -t export
  listen 127.0.0.1:0            # pick a free port
  listen unix:///tmp/cmdport.sock`,
	Args: cobra.MaximumNArgs(1),
	RunE: runListen,
}

func init() {
	rootCmd.AddCommand(listenCmd)
}

func runListen(cmd *cobra.Command, args []string) error {
	srv, err := newListenServer(args, printLine)
	if err != nil {
		return outputError(err.Error())
	}
	defer srv.Close()

	outputNotice(fmt.Sprintf("listening on %s (Ctrl-C to stop)", srv.Addr()))

	if err := srv.Serve(cmd.Context()); err != nil {
		return outputError(err.Error())
	}
	return nil
}

// newListenServer listens on args[0], or on the selected target's address
// when no argument is given. Port 0 picks a free port.
func newListenServer(args []string, handler listener.Handler) (*listener.Server, error) {
	var addr transport.Address
	if len(args) == 1 {
		a, err := transport.ParseAddress(args[0])
		if err != nil {
			return nil, err
		}
		addr = a
	} else {
		target, err := resolveTarget("", nil)
		if err != nil {
			return nil, err
		}
		addr = target.Address()
	}
	return listener.NewServer(addr, handler, logger)
}

// printLine writes one received line to stdout.
func printLine(line listener.Line) {
	if JSONOutput {
		outputJSON(os.Stdout, line)
		return
	}
	ts := line.At.Format("15:04:05.000")
	if shouldUseColor() {
		fmt.Fprintf(os.Stdout, "%s %s %s\n",
			color.New(color.Faint).Sprint(ts),
			color.New(color.FgCyan).Sprint(line.Remote),
			line.Text)
		return
	}
	fmt.Fprintf(os.Stdout, "%s %s %s\n", ts, line.Remote, line.Text)
}
