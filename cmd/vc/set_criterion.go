package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var setCriterionCmd = &cobra.Command{
	Use:   "set-criterion <loop-id> <n> <true|false>",
	Short: "Toggle an acceptance criterion by operator decision",
	Long: `Mark acceptance criterion n (1-indexed) complete or incomplete.
Unlike an agent-driven completion, this never auto-completes the loop
even if it is the last remaining criterion.`,
	Args: cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		loopID := args[0]
		n, err := strconv.Atoi(args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: n must be an integer: %v\n", err)
			os.Exit(1)
		}
		completed, err := strconv.ParseBool(args[2])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: completed must be true or false: %v\n", err)
			os.Exit(1)
		}

		client := loadClient()
		if _, err := client.SetCriterion(loopID, n, completed); err != nil {
			fatalOnConnectErr(err)
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Criterion %d set to %v on %s\n", green("✓"), n, completed, loopID)
	},
}

func init() {
	rootCmd.AddCommand(setCriterionCmd)
}
