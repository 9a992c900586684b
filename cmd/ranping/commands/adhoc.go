package commands

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dantte-lp/ranping/internal/orchestrator"
	"github.com/dantte-lp/ranping/internal/scenario"
)

// errEmptyPolicy is returned when --policy is set to an empty string.
var errEmptyPolicy = errors.New("--policy must not be empty")

// adhocFlags holds the parameters of a run outside the scenario table.
type adhocFlags struct {
	band           int
	scs            int
	bandwidth      int
	ues            int
	sampleRate     int
	timingAdvance  int
	timeAlignment  string
	reattach       int
	pingCount      int
	preCommand     string
	postCommand    string
	stopTimeout    time.Duration
	alwaysDownload bool
	logSearch      bool
	policy         string
}

// params converts the flags into run parameters and a failure policy.
func (f adhocFlags) params() (scenario.Parameters, orchestrator.Policy, error) {
	ta, err := scenario.ParseTimeAlignment(f.timeAlignment)
	if err != nil {
		return scenario.Parameters{}, 0, fmt.Errorf("--time-alignment: %w", err)
	}

	if f.policy == "" {
		return scenario.Parameters{}, 0, errEmptyPolicy
	}
	policy, err := orchestrator.ParsePolicy(f.policy)
	if err != nil {
		return scenario.Parameters{}, 0, err
	}

	p := scenario.Parameters{
		Band:                     f.band,
		CommonSCS:                f.scs,
		BandwidthMHz:             f.bandwidth,
		SampleRate:               f.sampleRate,
		GlobalTimingAdvance:      f.timingAdvance,
		TimeAlignmentCalibration: ta,
		ReattachCount:            f.reattach,
		PingCount:                f.pingCount,
		PreCommand:               f.preCommand,
		PostCommand:              f.postCommand,
		StopTimeout:              f.stopTimeout,
		AlwaysDownloadArtifacts:  f.alwaysDownload,
		LogSearch:                f.logSearch,
	}
	return p, policy, nil
}

func adhocCmd() *cobra.Command {
	var f adhocFlags

	cmd := &cobra.Command{
		Use:   "adhoc",
		Short: "Run a ping lifecycle with explicit parameters",
		Long: "Runs one ping lifecycle with the radio parameters, UE count and failure policy " +
			"given on the command line instead of a scenario table entry.",
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			params, policy, err := f.params()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			r, shutdown, err := newRunner(ctx)
			if err != nil {
				return err
			}
			defer shutdown()

			res, err := r.RunAdhoc(ctx, params, f.ues, policy)
			if err != nil {
				return err
			}

			out, err := formatResult(res, outputFormat)
			if err != nil {
				return fmt.Errorf("format outcome: %w", err)
			}
			fmt.Println(out)

			if !res.Outcome.Passed() {
				return fmt.Errorf("%w: 1 of 1", errRunsFailed)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&f.band, "band", 3, "NR operating band")
	flags.IntVar(&f.scs, "scs", 15, "common subcarrier spacing in kHz")
	flags.IntVar(&f.bandwidth, "bw", 10, "channel bandwidth in MHz")
	flags.IntVar(&f.ues, "ues", 1, "number of UEs to attach")
	flags.IntVar(&f.sampleRate, "sample-rate", 0, "radio sample rate in samples/s (0 = testbed default)")
	flags.IntVar(&f.timingAdvance, "timing-advance", 0, "gNB global timing advance offset")
	flags.StringVar(&f.timeAlignment, "time-alignment", "0", "time alignment calibration: an integer or auto")
	flags.IntVar(&f.reattach, "reattach", 0, "number of extra stop/attach/ping cycles")
	flags.IntVar(&f.pingCount, "ping-count", scenario.DefaultPingCount, "echo requests per UE and cycle")
	flags.StringVar(&f.preCommand, "pre-command", "", "command wrapping the gNB process")
	flags.StringVar(&f.postCommand, "post-command", "", "command run after the gNB process")
	flags.DurationVar(&f.stopTimeout, "stop-timeout", 0, "bound on the final teardown (0 = no bound)")
	flags.BoolVar(&f.alwaysDownload, "always-download", false, "keep artifacts even on success")
	flags.BoolVar(&f.logSearch, "log-search", true, "search component logs for errors on stop")
	flags.StringVar(&f.policy, "policy", orchestrator.PolicyStrict.String(), "failure policy: strict, crash_only")

	return cmd
}
