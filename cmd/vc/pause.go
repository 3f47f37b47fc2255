package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var pauseCmd = &cobra.Command{
	Use:   "pause <loop-id>",
	Short: "Pause a running loop",
	Long: `Pause a running loop, suspending its agent process in place where the
platform supports it (same-session resume with 'vc resume'), or stopping
it and flagging the loop for a cross-session resume otherwise.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		loopID := args[0]
		client := loadClient()
		res, err := client.Pause(loopID)
		if err != nil {
			fatalOnConnectErr(err)
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Loop paused: %s\n", green("✓"), loopID)
		if res.Get("pausedFromPreviousSession").Bool() {
			fmt.Printf("  Process suspend unsupported on this platform; process was stopped.\n")
			fmt.Printf("  Resume will start a fresh process seeded from the log.\n")
		}
		fmt.Printf("\nTo resume: vc resume %s\n", loopID)
	},
}

func init() {
	rootCmd.AddCommand(pauseCmd)
}
