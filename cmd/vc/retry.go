package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var retryCmd = &cobra.Command{
	Use:   "retry <loop-id>",
	Short: "Retry a loop that errored or was stopped",
	Long: `Respawn a loop that ended in error or was stopped, seeded with a
resume-style prompt (a summary of prior progress plus the remaining
acceptance criteria) rather than the original issue prompt, so the agent
does not redo work the log shows it already completed.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		loopID := args[0]
		client := loadClient()
		res, err := client.Retry(loopID)
		if err != nil {
			fatalOnConnectErr(err)
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Loop retried: %s (status: %s)\n", green("✓"), loopID, res.Get("status").String())
	},
}

func init() {
	rootCmd.AddCommand(retryCmd)
}
