package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"github.com/loopctl/loopctl/internal/control"
	"github.com/spf13/cobra"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactive shell over the control socket",
	Long: `Start a readline-driven shell that sends the same commands as the
one-shot subcommands (pause, resume, status, ...) against the running
engine. Each command opens its own connection to the control socket.

Type 'help' for available commands, 'exit' or Ctrl+D to leave.`,
	Run: func(cmd *cobra.Command, args []string) {
		runRepl()
	},
}

func init() {
	rootCmd.AddCommand(replCmd)
}

func runRepl() {
	client := loadClient()
	cyan := color.New(color.FgCyan).SprintFunc()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          cyan("vc> "),
		HistoryLimit:    1000,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	exitOnErr(err)
	defer rl.Close()

	fmt.Println("loopctl interactive shell. Type 'help' for commands, 'exit' to leave.")

	ctrlCCount := 0
	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				ctrlCCount++
				if ctrlCCount == 1 {
					fmt.Println(color.New(color.FgHiBlack).Sprint("^C (use 'exit' to leave)"))
				}
				continue
			}
			if err == io.EOF {
				fmt.Println("\ngoodbye")
				return
			}
			fmt.Printf("Error: %v\n", err)
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return
		}
		runReplCommand(client, line)
	}
}

func runReplCommand(client *control.Client, line string) {
	red := color.New(color.FgRed).SprintFunc()
	fields := strings.Fields(line)
	name, rest := fields[0], fields[1:]

	var res control.Result
	var err error
	switch name {
	case "help":
		printReplHelp()
		return
	case "status":
		loopID := ""
		if len(rest) > 0 {
			loopID = rest[0]
		}
		printStatusLines(client, loopID)
		return
	case "pause", "resume", "stop", "retry", "discard":
		if len(rest) != 1 {
			fmt.Printf("%s %s <loop-id>\n", red("usage:"), name)
			return
		}
		res, err = dispatchOneArg(client, name, rest[0])
	case "intervene":
		if len(rest) < 2 {
			fmt.Printf("%s intervene <loop-id> <message>\n", red("usage:"))
			return
		}
		res, err = client.Intervene(rest[0], strings.Join(rest[1:], " "))
	case "set-criterion":
		if len(rest) != 3 {
			fmt.Printf("%s set-criterion <loop-id> <n> <true|false>\n", red("usage:"))
			return
		}
		n, nerr := strconv.Atoi(rest[1])
		completed, berr := strconv.ParseBool(rest[2])
		if nerr != nil || berr != nil {
			fmt.Printf("%s n must be an integer, completed must be true/false\n", red("error:"))
			return
		}
		res, err = client.SetCriterion(rest[0], n, completed)
	default:
		fmt.Printf("unknown command %q; type 'help'\n", name)
		return
	}

	if err != nil {
		fmt.Printf("%s %v\n", red("error:"), err)
		return
	}
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Printf("%s %s: %s\n", green("✓"), name, res.Get("status").String())
}

func dispatchOneArg(client *control.Client, name, loopID string) (control.Result, error) {
	switch name {
	case "pause":
		return client.Pause(loopID)
	case "resume":
		return client.Resume(loopID)
	case "stop":
		return client.Stop(loopID)
	case "retry":
		return client.Retry(loopID)
	case "discard":
		return client.Discard(loopID)
	}
	return control.Result{}, fmt.Errorf("unreachable: %s", name)
}

func printStatusLines(client *control.Client, loopID string) {
	if loopID != "" {
		printOneLoop(client, loopID)
		return
	}
	printAllLoops(client)
}

func printReplHelp() {
	fmt.Println(`commands:
  status [loop-id]                    show one loop or all loops
  pause <loop-id>                     pause a running loop
  resume <loop-id>                    resume a paused loop
  stop <loop-id>                      stop a loop's process
  retry <loop-id>                     retry an error/stopped loop
  discard <loop-id>                   discard an orphaned paused loop
  intervene <loop-id> <message>       send a message to the agent's stdin
  set-criterion <loop-id> <n> <bool>  operator-toggle a criterion
  exit                                leave the shell`)
}
