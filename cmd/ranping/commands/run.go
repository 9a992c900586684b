package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dantte-lp/ranping/internal/runner"
	"github.com/dantte-lp/ranping/internal/scenario"
	"github.com/dantte-lp/ranping/internal/tracing"
)

var (
	// errNoSelection is returned when run is called without any selector.
	errNoSelection = errors.New("no scenario selected: pass scenario IDs, --category or --mark")

	// errUnknownScenario is returned for a scenario ID not in the table.
	errUnknownScenario = errors.New("unknown scenario")

	// errRunsFailed is returned when at least one run failed.
	errRunsFailed = errors.New("scenario runs failed")
)

func runCmd() *cobra.Command {
	var (
		categories []string
		marks      []string
	)

	cmd := &cobra.Command{
		Use:   "run [scenario-id...]",
		Short: "Run scenarios from the scenario table",
		Long: "Runs the selected scenarios one after another and prints the outcome of each. " +
			"Scenarios are selected by ID, by category (--category) and by mark (--mark). " +
			"The command fails when any run fails.",
		RunE: func(_ *cobra.Command, args []string) error {
			filter, err := buildFilter(args, categories, marks)
			if err != nil {
				return err
			}

			selected := scenario.Select(filter)
			if len(selected) == 0 {
				return errNoSelection
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			r, shutdown, err := newRunner(ctx)
			if err != nil {
				return err
			}
			defer shutdown()

			results := make([]*runner.Result, 0, len(selected))
			failed := 0
			for _, sc := range selected {
				if ctx.Err() != nil {
					failed += len(selected) - len(results)
					break
				}

				res, runErr := r.RunScenario(ctx, sc)
				if runErr != nil {
					fmt.Fprintln(os.Stderr, "Error:", runErr)
					failed++
					continue
				}
				results = append(results, res)
				if !res.Outcome.Passed() {
					failed++
				}

				out, fmtErr := formatResult(res, outputFormat)
				if fmtErr != nil {
					return fmt.Errorf("format outcome: %w", fmtErr)
				}
				fmt.Println(out)
			}

			if outputFormat == formatTable && len(results) > 1 {
				out, fmtErr := formatSummary(results)
				if fmtErr != nil {
					return fmt.Errorf("format summary: %w", fmtErr)
				}
				fmt.Print(out)
			}

			if failed > 0 {
				return fmt.Errorf("%w: %d of %d", errRunsFailed, failed, len(selected))
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&categories, "category", nil,
		"select scenarios of a category (android, zmq, zmq_valgrind, rf, rf_not_crash)")
	cmd.Flags().StringSliceVar(&marks, "mark", nil,
		"select scenarios carrying a mark (e.g. test, reattach)")

	return cmd
}

// buildFilter turns command arguments and flags into a scenario filter.
// IDs must exist in the table and at least one selector must be given.
func buildFilter(ids, categories, marks []string) (scenario.Filter, error) {
	if len(ids) == 0 && len(categories) == 0 && len(marks) == 0 {
		return scenario.Filter{}, errNoSelection
	}

	var f scenario.Filter
	for _, id := range ids {
		if _, ok := scenario.Lookup(id); !ok {
			return scenario.Filter{}, fmt.Errorf("%w: %q", errUnknownScenario, id)
		}
		f.IDs = append(f.IDs, id)
	}
	for _, name := range categories {
		c, err := scenario.ParseCategory(name)
		if err != nil {
			return scenario.Filter{}, err
		}
		f.Categories = append(f.Categories, c)
	}
	f.Marks = marks

	return f, nil
}

// newRunner sets up tracing and creates a runner for the loaded
// configuration. The returned function flushes pending spans.
func newRunner(ctx context.Context) (*runner.Runner, func(), error) {
	// Spans go to stderr so stdout carries only command output.
	_, shutdown, err := tracing.Setup(ctx, cfg.Tracing, "ranping", logger, tracing.WithWriter(os.Stderr))
	if err != nil {
		return nil, nil, fmt.Errorf("setup tracing: %w", err)
	}

	return runner.New(cfg, logger), func() { tracing.Shutdown(shutdown, logger) }, nil
}
