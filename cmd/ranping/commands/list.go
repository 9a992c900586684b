package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dantte-lp/ranping/internal/scenario"
)

func listCmd() *cobra.Command {
	var (
		categories []string
		marks      []string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the scenario table",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			var f scenario.Filter
			for _, name := range categories {
				c, err := scenario.ParseCategory(name)
				if err != nil {
					return err
				}
				f.Categories = append(f.Categories, c)
			}
			f.Marks = marks

			out, err := formatScenarios(scenario.Select(f), outputFormat)
			if err != nil {
				return fmt.Errorf("format scenarios: %w", err)
			}

			fmt.Print(out)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&categories, "category", nil, "only list scenarios of a category")
	cmd.Flags().StringSliceVar(&marks, "mark", nil, "only list scenarios carrying a mark")

	return cmd
}
