package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/loopctl/loopctl/internal/types"
	"github.com/spf13/cobra"
)

var createCmd = &cobra.Command{
	Use:   "create <issue-url>",
	Short: "Register a new loop for an issue",
	Long: `Register a new loop against an issue URL, ready to start.

Acceptance criteria given with repeated --criterion flags become the
loop's checklist; the agent (and the operator, via 'vc set-criterion')
marks them off as work completes.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		url := args[0]
		agent, _ := cmd.Flags().GetString("agent")
		title, _ := cmd.Flags().GetString("title")
		body, _ := cmd.Flags().GetString("body")
		repoRoot, _ := cmd.Flags().GetString("repo-root")
		skipPermissions, _ := cmd.Flags().GetBool("skip-permissions")
		criteria, _ := cmd.Flags().GetStringArray("criterion")

		if title == "" {
			title = url
		}
		var cs []types.AcceptanceCriterion
		for _, c := range criteria {
			cs = append(cs, types.AcceptanceCriterion{Text: c})
		}
		issueJSON, err := json.Marshal(types.Issue{URL: url, Title: title, Body: body, Criteria: cs})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to encode issue: %v\n", err)
			os.Exit(1)
		}

		client := loadClient()
		res, err := client.Create(agent, repoRoot, issueJSON, skipPermissions)
		if err != nil {
			fatalOnConnectErr(err)
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Loop created: %s\n", green("✓"), res.Get("id").String())
		fmt.Printf("  Agent:    %s\n", res.Get("agent").String())
		fmt.Printf("  Status:   %s\n", res.Get("status").String())
		fmt.Printf("\nStart it with: vc start %s\n", res.Get("id").String())
	},
}

func init() {
	createCmd.Flags().StringP("agent", "a", "streaming-json", "adapter to drive this loop")
	createCmd.Flags().String("title", "", "issue title (defaults to the URL)")
	createCmd.Flags().String("body", "", "issue body/prompt text")
	createCmd.Flags().String("repo-root", ".", "working directory the agent process runs in")
	createCmd.Flags().Bool("skip-permissions", false, "pass the adapter's skip-permissions flag")
	createCmd.Flags().StringArray("criterion", nil, "an acceptance criterion (repeatable)")
	rootCmd.AddCommand(createCmd)
}
