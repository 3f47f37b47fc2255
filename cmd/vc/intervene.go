package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var interveneCmd = &cobra.Command{
	Use:   "intervene <loop-id> <message>",
	Short: "Send a message to a running loop's process stdin",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		loopID, message := args[0], args[1]
		client := loadClient()
		if _, err := client.Intervene(loopID, message); err != nil {
			fatalOnConnectErr(err)
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Sent to %s: %s\n", green("✓"), loopID, message)
	},
}

func init() {
	rootCmd.AddCommand(interveneCmd)
}
