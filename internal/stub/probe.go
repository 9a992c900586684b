package stub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"connectrpc.com/connect"
	"golang.org/x/sync/errgroup"

	"github.com/dantte-lp/ranping/internal/testbed"
	"github.com/dantte-lp/ranping/internal/wire"
)

// Aggregation decides how per-UE probe results combine into one result.
type Aggregation string

const (
	// AggregateAll requires every UE to pass.
	AggregateAll Aggregation = "all"

	// AggregateAny requires at least one UE to pass.
	AggregateAny Aggregation = "any"
)

// ErrInvalidProbePolicy indicates an unknown aggregation or a loss
// threshold outside [0, 100].
var ErrInvalidProbePolicy = errors.New("invalid probe policy")

// ProbePolicy is the pass criterion of a reachability probe.
type ProbePolicy struct {
	// Aggregation combines the per-UE results.
	Aggregation Aggregation

	// MaxLossPercent is the highest packet loss a UE may show and still
	// pass.
	MaxLossPercent float64
}

// DefaultProbePolicy requires every UE to answer every echo request.
func DefaultProbePolicy() ProbePolicy {
	return ProbePolicy{Aggregation: AggregateAll, MaxLossPercent: 0}
}

// ParseAggregation maps "all" or "any" to an Aggregation.
func ParseAggregation(s string) (Aggregation, error) {
	switch a := Aggregation(strings.ToLower(strings.TrimSpace(s))); a {
	case AggregateAll, AggregateAny:
		return a, nil
	default:
		return "", fmt.Errorf("aggregation %q: %w", s, ErrInvalidProbePolicy)
	}
}

// Validate checks the probe policy.
func (p ProbePolicy) Validate() error {
	if _, err := ParseAggregation(string(p.Aggregation)); err != nil {
		return err
	}
	if p.MaxLossPercent < 0 || p.MaxLossPercent > 100 {
		return fmt.Errorf("max loss %v%%: %w", p.MaxLossPercent, ErrInvalidProbePolicy)
	}
	return nil
}

// passes reports whether the per-UE results satisfy the policy.
func (p ProbePolicy) passes(passed, total int) bool {
	if total == 0 {
		return false
	}
	if p.Aggregation == AggregateAny {
		return passed > 0
	}
	return passed == total
}

// ueProbe is the probe result of one UE.
type ueProbe struct {
	ue   string
	resp *wire.PingResponse
	err  error
}

// Probe pings every attached UE from the EPC concurrently and applies the
// probe policy. Crashes and rejected requests always fail the probe. Remote
// call failures do too unless the "any" policy is already satisfied;
// insufficient replies are a reachability failure.
func (t *Testbed) Probe(ctx context.Context, info testbed.AttachInfo, epc testbed.Handle, count int) error {
	ues := info.UEs()
	if len(ues) == 0 {
		return testbed.NewError(testbed.KindReachability, "probe", epc.Name, ErrNothingToProbe)
	}

	client := t.epc(epc)
	results := make([]ueProbe, len(ues))

	var g errgroup.Group
	for i, name := range ues {
		g.Go(func() error {
			resp, err := client.Ping(ctx, connect.NewRequest(&wire.PingRequest{
				EPC:     epc.Name,
				UE:      name,
				Address: info[name].IPv4.String(),
				Count:   count,
			}))
			results[i] = ueProbe{ue: name, err: err}
			if err == nil {
				results[i].resp = resp.Msg
			}
			return nil
		})
	}
	_ = g.Wait() // Goroutines store results instead of returning errors.

	return t.evaluate(epc, results)
}

// evaluate applies the probe policy to the per-UE results.
func (t *Testbed) evaluate(epc testbed.Handle, results []ueProbe) error {
	var (
		rpcErrs []error
		severe  []error
		failed  []string
		passed  int
	)

	for _, r := range results {
		if r.err != nil {
			err := classify("probe", epc, fmt.Errorf("ping %s: %w", r.ue, r.err))
			rpcErrs = append(rpcErrs, err)
			if testbed.KindOf(err) != testbed.KindRemoteCall {
				severe = append(severe, err)
			}
			t.reporter.ObserveProbe(false, 0, 0)
			continue
		}

		loss := r.resp.LossPercent()
		ok := loss <= t.probe.MaxLossPercent
		t.reporter.ObserveProbe(ok, r.resp.Transmitted, r.resp.Received)
		t.logger.Info("ue probed",
			slog.String("ue", r.ue),
			slog.Int("transmitted", r.resp.Transmitted),
			slog.Int("received", r.resp.Received),
			slog.Float64("loss_percent", loss),
		)
		if ok {
			passed++
		} else {
			failed = append(failed, fmt.Sprintf("%s %.0f%% loss", r.ue, loss))
		}
	}

	// Only plain remote call failures may be outvoted by passing UEs.
	if len(severe) > 0 {
		return errors.Join(severe...)
	}
	if t.probe.Aggregation == AggregateAny && passed > 0 {
		return nil
	}
	if len(rpcErrs) > 0 {
		return errors.Join(rpcErrs...)
	}
	if !t.probe.passes(passed, len(results)) {
		return testbed.NewError(testbed.KindReachability, "probe", epc.Name,
			fmt.Errorf("%w (%s, max %.0f%%): %s", ErrProbeFailed, t.probe.Aggregation,
				t.probe.MaxLossPercent, strings.Join(failed, ", ")))
	}
	return nil
}
