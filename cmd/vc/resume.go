package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <loop-id>",
	Short: "Resume a paused loop",
	Long: `Resume a paused loop. If the original process is still live (same
session, not yet orphan-swept), it is continued with SIGCONT. Otherwise a
fresh process is spawned with a prompt summarizing prior progress and the
remaining acceptance criteria.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		loopID := args[0]
		client := loadClient()
		res, err := client.Resume(loopID)
		if err != nil {
			fatalOnConnectErr(err)
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Loop resumed: %s (status: %s)\n", green("✓"), loopID, res.Get("status").String())
	},
}

func init() {
	rootCmd.AddCommand(resumeCmd)
}
