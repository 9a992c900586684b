package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	appversion "github.com/dantte-lp/ranping/internal/version"
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print ranping build information",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if outputFormat != formatJSON {
				fmt.Println(appversion.Full("ranping"))
				return nil
			}

			data, err := json.MarshalIndent(appversion.Get("ranping"), "", "  ")
			if err != nil {
				return fmt.Errorf("marshal version to JSON: %w", err)
			}
			fmt.Println(string(data))
			return nil
		},
	}
}
