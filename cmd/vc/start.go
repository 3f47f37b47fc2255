package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start <loop-id>",
	Short: "Start a queued loop's first spawn",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		loopID := args[0]
		client := loadClient()
		res, err := client.Start(loopID)
		if err != nil {
			fatalOnConnectErr(err)
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Loop started: %s (pid %d)\n", green("✓"), loopID, res.Get("pid").Int())
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
}
