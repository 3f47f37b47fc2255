package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/loopctl/loopctl/internal/config"
	"github.com/loopctl/loopctl/internal/journal"
	"github.com/loopctl/loopctl/internal/types"
	"github.com/spf13/cobra"
)

var tailCmd = &cobra.Command{
	Use:   "tail <loop-id>",
	Short: "Watch a loop's log",
	Long: `Show a loop's recent log entries and, with --follow, keep polling for
new ones (Ctrl+C to stop). Reads the journal file directly with the
journal package's polling tailer, without going through the control
socket.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		loopID := args[0]
		follow, _ := cmd.Flags().GetBool("follow")
		limit, _ := cmd.Flags().GetInt("limit")

		cfg, err := config.Load(cfgFile)
		exitOnErr(err)
		jr := journal.New(filepath.Join(cfg.DataRoot, "loops"))

		entries, err := jr.ReadRecent(loopID, limit)
		exitOnErr(err)
		for _, e := range entries {
			displayLogEntry(e)
		}
		if !follow {
			return
		}

		cyan := color.New(color.FgCyan).SprintFunc()
		fmt.Printf("\n%s following live updates (Ctrl+C to stop)...\n\n", cyan("→"))

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		ctx, cancel := context.WithCancel(context.Background())
		stop := jr.Tail(ctx, loopID, displayLogEntry, func(err error) {
			fmt.Fprintf(os.Stderr, "tail: %v\n", err)
		}, cfg.PollInterval)

		<-sigCh
		stop()
		cancel()
		fmt.Println("\nstopped following")
	},
}

func init() {
	tailCmd.Flags().BoolP("follow", "f", false, "keep polling for new entries")
	tailCmd.Flags().IntP("limit", "n", 20, "number of recent entries to show initially")
	rootCmd.AddCommand(tailCmd)
}

func displayLogEntry(e types.LogEntry) {
	var glyph, label string
	clr := color.New(color.FgWhite).SprintFunc()
	switch e.Type {
	case types.LogEntryAgent:
		glyph, label, clr = "▸", "agent", color.New(color.FgWhite).SprintFunc()
	case types.LogEntryOperator:
		glyph, label, clr = "»", "operator", color.New(color.FgCyan).SprintFunc()
	case types.LogEntrySystem:
		glyph, label, clr = "·", "system", color.New(color.FgHiBlack).SprintFunc()
	case types.LogEntryError:
		glyph, label, clr = "✗", "error", color.New(color.FgRed).SprintFunc()
	default:
		glyph, label = "?", string(e.Type)
	}
	fmt.Printf("%s %s [%s] %s\n", clr(glyph), e.Timestamp.Format("15:04:05"), label, e.Content)
}
