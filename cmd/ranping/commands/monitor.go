package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"connectrpc.com/connect"
	"github.com/spf13/cobra"

	"github.com/dantte-lp/ranping/internal/wire"
)

func monitorCmd() *cobra.Command {
	var (
		agentAddr      string
		components     []string
		includeHistory bool
	)

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Stream component events from a testbed agent",
		Long: "Connects to a testbed agent and streams component events (started, attached, " +
			"ping, stopped, crashed) until interrupted (Ctrl+C).",
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if agentAddr == "" {
				agentAddr = cfg.Testbed.EPC.Addr
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			client := wire.NewEventServiceClient(http.DefaultClient, agentAddr)
			stream, err := client.Watch(ctx, connect.NewRequest(&wire.WatchRequest{
				Components:     components,
				IncludeHistory: includeHistory,
			}))
			if err != nil {
				return fmt.Errorf("watch events: %w", err)
			}
			defer stream.Close()

			for stream.Receive() {
				out, fmtErr := formatEvent(stream.Msg(), outputFormat)
				if fmtErr != nil {
					return fmt.Errorf("format event: %w", fmtErr)
				}

				fmt.Println(out)
			}

			if err := stream.Err(); err != nil {
				// Context cancellation (Ctrl+C) is expected, not an error.
				if errors.Is(err, context.Canceled) || connect.CodeOf(err) == connect.CodeCanceled {
					return nil
				}

				return fmt.Errorf("stream error: %w", err)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&agentAddr, "agent", "",
		"agent base URL (default: the EPC agent of the configured testbed)")
	cmd.Flags().StringSliceVar(&components, "component", nil,
		"only stream events of these components")
	cmd.Flags().BoolVar(&includeHistory, "history", false,
		"replay buffered past events before streaming")

	return cmd
}
