package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop <loop-id>",
	Short: "Stop a loop's process",
	Long: `Stop a running or paused loop's process with SIGTERM, escalating to
SIGKILL after the grace period if it does not exit. The loop is marked
stopped; it is not resumable afterward (use 'vc retry' to spawn again).`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		loopID := args[0]
		client := loadClient()
		if _, err := client.Stop(loopID); err != nil {
			fatalOnConnectErr(err)
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Loop stopped: %s\n", green("✓"), loopID)
	},
}

func init() {
	rootCmd.AddCommand(stopCmd)
}
