package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/loopctl/loopctl/internal/control"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [loop-id]",
	Short: "Show loop status",
	Long: `Show a single loop's full state, or every loop's id/status/age/
criteria progress when no loop-id is given.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := loadClient()

		if len(args) == 1 {
			printOneLoop(client, args[0])
			return
		}
		printAllLoops(client)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func printOneLoop(client *control.Client, loopID string) {
	res, err := client.Status(loopID)
	if err != nil {
		fatalOnConnectErr(err)
	}
	sc := statusColor(res.Get("status").String())

	fmt.Printf("Loop:     %s\n", res.Get("id").String())
	fmt.Printf("Agent:    %s\n", res.Get("agent").String())
	fmt.Printf("Status:   %s\n", sc(res.Get("status").String()))
	fmt.Printf("Age:      %s\n", formatAge(res.Get("startedAt").String()))
	if errMsg := res.Get("error").String(); errMsg != "" {
		fmt.Printf("Error:    %s\n", color.New(color.FgRed).Sprint(errMsg))
	}

	criteria := res.Get("issue.criteria").Array()
	done := 0
	for _, c := range criteria {
		if c.Get("completed").Bool() {
			done++
		}
	}
	fmt.Printf("Criteria: %d/%d\n", done, len(criteria))
	for i, c := range criteria {
		mark := " "
		if c.Get("completed").Bool() {
			mark = "x"
		}
		fmt.Printf("  [%s] %d. %s\n", mark, i+1, c.Get("text").String())
	}
}

func printAllLoops(client *control.Client) {
	res, err := client.Status("")
	if err != nil {
		fatalOnConnectErr(err)
	}
	loops := res.Get("loops").Array()
	if len(loops) == 0 {
		fmt.Println(color.New(color.FgHiBlack).Sprint("No loops"))
		return
	}
	fmt.Printf("%-36s  %-10s  %-10s  %s\n", "ID", "STATUS", "AGE", "CRITERIA")
	for _, l := range loops {
		criteria := l.Get("issue.criteria").Array()
		done := 0
		for _, c := range criteria {
			if c.Get("completed").Bool() {
				done++
			}
		}
		sc := statusColor(l.Get("status").String())
		fmt.Printf("%-36s  %-10s  %-10s  %d/%d\n",
			l.Get("id").String(),
			sc(l.Get("status").String()),
			formatAge(l.Get("startedAt").String()),
			done, len(criteria))
	}
}

func statusColor(status string) func(a ...interface{}) string {
	switch status {
	case "running":
		return color.New(color.FgGreen).SprintFunc()
	case "paused":
		return color.New(color.FgYellow).SprintFunc()
	case "error":
		return color.New(color.FgRed).SprintFunc()
	case "completed":
		return color.New(color.FgCyan).SprintFunc()
	default:
		return color.New(color.FgHiBlack).SprintFunc()
	}
}

func formatAge(startedAt string) string {
	if startedAt == "" {
		return "-"
	}
	t, err := time.Parse(time.RFC3339, startedAt)
	if err != nil {
		return "-"
	}
	return time.Since(t).Round(time.Second).String()
}
