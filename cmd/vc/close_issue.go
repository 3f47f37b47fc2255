package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var closeIssueCmd = &cobra.Command{
	Use:   "close-issue <loop-id> [comment]",
	Short: "Close a completed loop's tracked issue",
	Args:  cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		loopID := args[0]
		comment := ""
		if len(args) == 2 {
			comment = args[1]
		}
		client := loadClient()
		if _, err := client.CloseIssue(loopID, comment); err != nil {
			fatalOnConnectErr(err)
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Issue closed for loop %s\n", green("✓"), loopID)
	},
}

func init() {
	rootCmd.AddCommand(closeIssueCmd)
}
