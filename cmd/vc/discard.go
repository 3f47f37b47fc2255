package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var discardCmd = &cobra.Command{
	Use:   "discard <loop-id>",
	Short: "Discard an orphaned paused loop",
	Long: `Remove a loop that is paused from a previous session (its process
died without a clean pause, e.g. a crashed engine) without resuming it.
Only loops flagged pausedFromPreviousSession can be discarded; use 'vc
resume' to resume one instead.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		loopID := args[0]
		client := loadClient()
		if _, err := client.Discard(loopID); err != nil {
			fatalOnConnectErr(err)
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Loop discarded: %s\n", green("✓"), loopID)
	},
}

func init() {
	rootCmd.AddCommand(discardCmd)
}
