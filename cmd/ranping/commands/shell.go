package commands

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/dantte-lp/ranping/internal/scenario"
)

// errNoMatch is returned when a scenario ID pattern matches no table entry.
var errNoMatch = errors.New("pattern matches no scenario")

// shellCommands lists the available commands for the interactive shell help output.
var shellCommands = []struct {
	name string
	desc string
}{
	{"list [--category c] [--mark m]", "List the scenario table"},
	{"run <id|pattern...> | --category c | --mark m", "Run scenarios; patterns like zmq/* expand to IDs"},
	{"complete <prefix>", "List scenario IDs starting with prefix"},
	{"adhoc --band b --scs s --bw w", "Run a ping lifecycle with explicit parameters"},
	{"monitor [--component c] [--history]", "Stream component events"},
	{"version", "Print build information"},
	{"help", "Show this help message"},
	{"exit / quit", "Leave the interactive shell"},
}

func shellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Start an interactive ranping shell",
		Long:  "Launches a REPL that accepts ranping subcommands. Patterns given to run expand to scenario IDs. Type 'help', 'exit', or 'quit'.",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			printShellBanner()
			scanner := bufio.NewScanner(os.Stdin)
			fmt.Print("ranping> ")

			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())

				switch {
				case line == "exit" || line == "quit":
					return nil
				case line == "help" || line == "?":
					printShellHelp()
				case line == "complete" || strings.HasPrefix(line, "complete "):
					for _, id := range completeScenarioIDs(strings.TrimSpace(strings.TrimPrefix(line, "complete"))) {
						fmt.Println(id)
					}
				case line != "":
					if err := execShellLine(line); err != nil {
						fmt.Fprintln(os.Stderr, "Error:", err)
					}
				}

				fmt.Print("ranping> ")
			}

			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}

			return nil
		},
	}
}

// printShellBanner prints a welcome message when the shell starts.
func printShellBanner() {
	fmt.Println("ranping interactive shell. Type 'help' for available commands, 'exit' to quit.")
	fmt.Println()
}

// printShellHelp prints a formatted list of available shell commands.
func printShellHelp() {
	fmt.Println("Available commands:")
	fmt.Println()

	for _, cmd := range shellCommands {
		fmt.Printf("  %-40s %s\n", cmd.name, cmd.desc)
	}

	fmt.Println()
}

// execShellLine runs one shell line through the root command and resets
// the subcommand flags afterwards, so selections do not leak into the next
// line.
func execShellLine(line string) error {
	args, err := expandScenarioArgs(strings.Fields(line))
	if err != nil {
		return err
	}
	defer resetFlags(rootCmd)

	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

// completeScenarioIDs returns the table IDs starting with prefix, in table
// order.
func completeScenarioIDs(prefix string) []string {
	var ids []string
	for _, s := range scenario.Table() {
		if strings.HasPrefix(s.ID, prefix) {
			ids = append(ids, s.ID)
		}
	}
	return ids
}

// expandScenarioArgs replaces glob patterns among the positional arguments
// of run with the matching scenario IDs. Other commands pass through.
func expandScenarioArgs(args []string) ([]string, error) {
	if len(args) == 0 || args[0] != "run" {
		return args, nil
	}

	out := []string{args[0]}
	for _, arg := range args[1:] {
		if strings.HasPrefix(arg, "-") || !strings.ContainsAny(arg, "*?[") {
			out = append(out, arg)
			continue
		}

		var matched int
		for _, s := range scenario.Table() {
			ok, err := path.Match(arg, s.ID)
			if err != nil {
				return nil, fmt.Errorf("pattern %q: %w", arg, err)
			}
			if ok {
				out = append(out, s.ID)
				matched++
			}
		}
		if matched == 0 {
			return nil, fmt.Errorf("%w: %q", errNoMatch, arg)
		}
	}
	return out, nil
}

// resetFlags restores the command-local flags of cmd's subcommands to their
// defaults. Global flags such as --config keep their value for the session.
func resetFlags(cmd *cobra.Command) {
	for _, sub := range cmd.Commands() {
		resetLocalFlags(sub)
	}
}

func resetLocalFlags(cmd *cobra.Command) {
	cmd.LocalNonPersistentFlags().VisitAll(func(f *pflag.Flag) {
		if !f.Changed {
			return
		}
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	})
	for _, sub := range cmd.Commands() {
		resetLocalFlags(sub)
	}
}
