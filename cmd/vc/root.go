// Command vc is the operator CLI: a thin client over the control socket
// a running vcd process exposes. Each subcommand dials the socket, sends
// one Command, and prints the Response.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/loopctl/loopctl/internal/config"
	"github.com/loopctl/loopctl/internal/control"
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "vc",
	Short: "Operate loops: create, start, pause, resume, stop, retry, intervene",
	Long: `vc drives a running vcd engine process over its control socket.

Start the engine once with 'vcd' in a repo's working directory, then use
'vc' subcommands from anywhere in that directory to operate its loops.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", filepath.Join(".vc", "config.yaml"), "path to config.yaml")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadClient loads config and returns a control.Client bound to the
// configured socket. It does not verify the daemon is actually listening;
// the first Send call surfaces that failure with a clear hint.
func loadClient() *control.Client {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return control.NewClient(cfg.SocketPath())
}

// fatalOnConnectErr prints err plus a hint that it usually means the
// engine process (vcd) is not running, then exits.
func fatalOnConnectErr(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	fmt.Fprintf(os.Stderr, "Hint: is the engine running? Start it with 'vcd' in this directory.\n")
	os.Exit(1)
}

// exitOnErr prints a plain error and exits, for local (non-socket)
// failures like a malformed config file.
func exitOnErr(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
