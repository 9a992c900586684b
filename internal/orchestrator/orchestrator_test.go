package orchestrator_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/dantte-lp/ranping/internal/orchestrator"
	"github.com/dantte-lp/ranping/internal/scenario"
	"github.com/dantte-lp/ranping/internal/testbed"
)

func testDevices(ues int) testbed.DeviceSet {
	d := testbed.DeviceSet{
		GNB: testbed.Handle{Role: testbed.RoleGNB, Name: "gnb", Addr: "http://agent:50061"},
		EPC: testbed.Handle{Role: testbed.RoleEPC, Name: "epc", Addr: "http://agent:50061"},
	}
	for i := range ues {
		d.UEs = append(d.UEs, testbed.Handle{
			Role: testbed.RoleUE,
			Name: fmt.Sprintf("ue%d", i+1),
			Addr: "http://agent:50061",
		})
	}
	return d
}

func testParams(reattach int) scenario.Parameters {
	return scenario.Parameters{
		Band:                     3,
		CommonSCS:                15,
		BandwidthMHz:             10,
		TimeAlignmentCalibration: scenario.TimeAlignmentValue(0),
		ReattachCount:            reattach,
		PingCount:                scenario.DefaultPingCount,
	}
}

func newOrchestrator(t *testing.T, f *fakeTestbed, opts ...orchestrator.Option) *orchestrator.Orchestrator {
	t.Helper()

	o, err := orchestrator.New(orchestrator.Collaborators{
		Configurer: f,
		Network:    f,
		Attach:     f,
		Probe:      f,
	}, slog.New(slog.DiscardHandler), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o
}

// cycleCalls returns the expected collaborator calls of a run that
// completes every cycle.
func cycleCalls(reattach int) []string {
	calls := []string{opConfigure, opArtifacts, opStart, opAttach, opProbe}
	for range reattach {
		calls = append(calls, opStopUEs, opAttach, opProbe)
	}
	return append(calls, opStopAll)
}

// -------------------------------------------------------------------------
// Success Paths
// -------------------------------------------------------------------------

func TestRunSuccessCallSequence(t *testing.T) {
	t.Parallel()

	for _, reattach := range []int{0, 1, 2, 5} {
		t.Run(fmt.Sprintf("reattach=%d", reattach), func(t *testing.T) {
			t.Parallel()

			f := newFakeTestbed()
			out := newOrchestrator(t, f).Run(context.Background(), testParams(reattach), testDevices(4), orchestrator.PolicyStrict)

			if diff := cmp.Diff(cycleCalls(reattach), f.Calls()); diff != "" {
				t.Errorf("calls mismatch (-want +got):\n%s", diff)
			}
			if out.Verdict != orchestrator.VerdictSuccess {
				t.Errorf("Verdict = %v, want %v (err %v)", out.Verdict, orchestrator.VerdictSuccess, out.Err)
			}
			if out.Status != orchestrator.StatusPassed {
				t.Errorf("Status = %v, want %v", out.Status, orchestrator.StatusPassed)
			}
			if out.Cycles != reattach+1 {
				t.Errorf("Cycles = %d, want %d", out.Cycles, reattach+1)
			}
			if out.Phase != orchestrator.PhaseTornDown {
				t.Errorf("Phase = %v, want %v", out.Phase, orchestrator.PhaseTornDown)
			}
			if got := f.Count(opAttach); got != reattach+1 {
				t.Errorf("attach calls = %d, want %d", got, reattach+1)
			}
			if got := f.Count(opStopUEs); got != reattach {
				t.Errorf("stop_ues calls = %d, want %d", got, reattach)
			}
		})
	}
}

func TestProbeUsesAttachInfoOfSameCycle(t *testing.T) {
	t.Parallel()

	f := newFakeTestbed()
	newOrchestrator(t, f).Run(context.Background(), testParams(3), testDevices(4), orchestrator.PolicyStrict)

	if len(f.probeInfos) != len(f.attachInfos) {
		t.Fatalf("probes = %d, attaches = %d, want equal", len(f.probeInfos), len(f.attachInfos))
	}
	for i := range f.probeInfos {
		if !maps.Equal(f.attachInfos[i], f.probeInfos[i]) {
			t.Errorf("cycle %d probe info = %v, want attach info %v", i, f.probeInfos[i], f.attachInfos[i])
		}
		if i > 0 && maps.Equal(f.probeInfos[i], f.probeInfos[i-1]) {
			t.Errorf("cycle %d reused attach info of cycle %d", i, i-1)
		}
		if f.probeCounts[i] != scenario.DefaultPingCount {
			t.Errorf("cycle %d probe count = %d, want %d", i, f.probeCounts[i], scenario.DefaultPingCount)
		}
	}
}

func TestStrictRunWithoutFaults(t *testing.T) {
	t.Parallel()

	p := testParams(2)
	p.PingCount = 10

	f := newFakeTestbed()
	out := newOrchestrator(t, f).Run(context.Background(), p, testDevices(2), orchestrator.PolicyStrict)

	if out.Verdict != orchestrator.VerdictSuccess {
		t.Fatalf("Verdict = %v, want %v (err %v)", out.Verdict, orchestrator.VerdictSuccess, out.Err)
	}
	counts := map[string]int{opAttach: 3, opProbe: 3, opStopUEs: 2, opStopAll: 1}
	for op, want := range counts {
		if got := f.Count(op); got != want {
			t.Errorf("%s calls = %d, want %d", op, got, want)
		}
	}
	for i, n := range f.probeCounts {
		if n != 10 {
			t.Errorf("cycle %d probe count = %d, want 10", i, n)
		}
	}
}

func TestParametersForwardedUnchanged(t *testing.T) {
	t.Parallel()

	p := testParams(0)
	p.SampleRate = 0
	p.TimeAlignmentCalibration = scenario.AutoTimeAlignment()
	p.PreCommand = "valgrind --error-exitcode=22"
	p.PostCommand = "sync"
	p.AlwaysDownloadArtifacts = true
	p.LogSearch = true

	f := newFakeTestbed()
	newOrchestrator(t, f).Run(context.Background(), p, testDevices(1), orchestrator.PolicyStrict)

	if diff := cmp.Diff([]scenario.Parameters{p}, f.configured, cmp.AllowUnexported(scenario.TimeAlignment{})); diff != "" {
		t.Errorf("configured params mismatch (-want +got):\n%s", diff)
	}
	wantPolicy := []testbed.ArtifactPolicy{{AlwaysDownload: true, LogSearch: true}}
	if diff := cmp.Diff(wantPolicy, f.artifacts); diff != "" {
		t.Errorf("artifact policy mismatch (-want +got):\n%s", diff)
	}
	if f.pre != p.PreCommand || f.post != p.PostCommand {
		t.Errorf("StartNetwork commands = %q, %q, want %q, %q", f.pre, f.post, p.PreCommand, p.PostCommand)
	}
}

// -------------------------------------------------------------------------
// Failure Policies
// -------------------------------------------------------------------------

func TestFailurePolicies(t *testing.T) {
	t.Parallel()

	attachErr := testbed.NewError(testbed.KindAttach, "attach", "ue2", errors.New("not attached"))
	pingErr := testbed.NewError(testbed.KindReachability, "probe", "ue1", errors.New("10/10 lost"))
	rpcErr := testbed.NewError(testbed.KindRemoteCall, "attach", "ue1", errors.New("connection refused"))
	crashErr := testbed.Crash("stop", "gnb", 22, nil)
	plainErr := errors.New("unexpected")

	tests := []struct {
		name        string
		policy      orchestrator.Policy
		reattach    int
		failOp      string
		err         error
		wantVerdict orchestrator.Verdict
		wantResult  string
		wantCalls   []string
	}{
		{
			name:        "strict attach failure on first cycle",
			policy:      orchestrator.PolicyStrict,
			failOp:      opAttach,
			err:         attachErr,
			wantVerdict: orchestrator.VerdictFatalFailure,
			wantResult:  "failed",
			wantCalls:   []string{opConfigure, opArtifacts, opStart, opAttach, opStopAll},
		},
		{
			name:        "strict reattach failure on second cycle",
			policy:      orchestrator.PolicyStrict,
			reattach:    2,
			failOp:      opAttach + "#2",
			err:         attachErr,
			wantVerdict: orchestrator.VerdictFatalFailure,
			wantResult:  "failed",
			wantCalls: []string{
				opConfigure, opArtifacts, opStart, opAttach, opProbe,
				opStopUEs, opAttach, opStopAll,
			},
		},
		{
			name:        "strict probe failure",
			policy:      orchestrator.PolicyStrict,
			failOp:      opProbe,
			err:         pingErr,
			wantVerdict: orchestrator.VerdictFatalFailure,
			wantResult:  "failed",
			wantCalls:   []string{opConfigure, opArtifacts, opStart, opAttach, opProbe, opStopAll},
		},
		{
			name:        "strict network start failure still tears down",
			policy:      orchestrator.PolicyStrict,
			failOp:      opStart,
			err:         rpcErr,
			wantVerdict: orchestrator.VerdictFatalFailure,
			wantResult:  "failed",
			wantCalls:   []string{opConfigure, opArtifacts, opStart, opStopAll},
		},
		{
			name:        "crash-only tolerates attach failure",
			policy:      orchestrator.PolicyCrashOnly,
			failOp:      opAttach,
			err:         attachErr,
			wantVerdict: orchestrator.VerdictToleratedFailure,
			wantResult:  "passed (tolerated failure)",
			wantCalls:   []string{opConfigure, opArtifacts, opStart, opAttach, opStopAll},
		},
		{
			name:        "crash-only tolerates reattach failure on second cycle",
			policy:      orchestrator.PolicyCrashOnly,
			reattach:    2,
			failOp:      opAttach + "#2",
			err:         attachErr,
			wantVerdict: orchestrator.VerdictToleratedFailure,
			wantResult:  "passed (tolerated failure)",
			wantCalls: []string{
				opConfigure, opArtifacts, opStart, opAttach, opProbe,
				opStopUEs, opAttach, opStopAll,
			},
		},
		{
			name:        "crash-only tolerates probe failure",
			policy:      orchestrator.PolicyCrashOnly,
			failOp:      opProbe,
			err:         pingErr,
			wantVerdict: orchestrator.VerdictToleratedFailure,
			wantResult:  "passed (tolerated failure)",
			wantCalls:   []string{opConfigure, opArtifacts, opStart, opAttach, opProbe, opStopAll},
		},
		{
			name:        "crash-only tolerates remote call failure",
			policy:      orchestrator.PolicyCrashOnly,
			failOp:      opStart,
			err:         rpcErr,
			wantVerdict: orchestrator.VerdictToleratedFailure,
			wantResult:  "passed (tolerated failure)",
			wantCalls:   []string{opConfigure, opArtifacts, opStart, opStopAll},
		},
		{
			name:        "crash-only fails on crash during attach",
			policy:      orchestrator.PolicyCrashOnly,
			failOp:      opAttach,
			err:         testbed.Crash("attach", "ue1", 139, nil),
			wantVerdict: orchestrator.VerdictFatalFailure,
			wantResult:  "failed",
			wantCalls:   []string{opConfigure, opArtifacts, opStart, opAttach, opStopAll},
		},
		{
			name:        "crash-only fails on crash at teardown",
			policy:      orchestrator.PolicyCrashOnly,
			failOp:      opStopAll,
			err:         crashErr,
			wantVerdict: orchestrator.VerdictFatalFailure,
			wantResult:  "failed",
			wantCalls:   cycleCalls(0),
		},
		{
			name:        "crash-only fails on unclassified error",
			policy:      orchestrator.PolicyCrashOnly,
			failOp:      opProbe,
			err:         plainErr,
			wantVerdict: orchestrator.VerdictFatalFailure,
			wantResult:  "failed",
			wantCalls:   []string{opConfigure, opArtifacts, opStart, opAttach, opProbe, opStopAll},
		},
		{
			name:        "teardown crash overrides strict success",
			policy:      orchestrator.PolicyStrict,
			reattach:    1,
			failOp:      opStopAll,
			err:         crashErr,
			wantVerdict: orchestrator.VerdictFatalFailure,
			wantResult:  "failed",
			wantCalls:   cycleCalls(1),
		},
		{
			name:        "teardown remote failure does not change success",
			policy:      orchestrator.PolicyStrict,
			failOp:      opStopAll,
			err:         rpcErr,
			wantVerdict: orchestrator.VerdictSuccess,
			wantResult:  "passed",
			wantCalls:   cycleCalls(0),
		},
		{
			name:        "stop UEs failure is best effort",
			policy:      orchestrator.PolicyStrict,
			reattach:    1,
			failOp:      opStopUEs,
			err:         rpcErr,
			wantVerdict: orchestrator.VerdictSuccess,
			wantResult:  "passed",
			wantCalls:   cycleCalls(1),
		},
		{
			name:        "stop UEs crash is fatal",
			policy:      orchestrator.PolicyCrashOnly,
			reattach:    2,
			failOp:      opStopUEs,
			err:         testbed.Crash("stop", "ue3", 134, nil),
			wantVerdict: orchestrator.VerdictFatalFailure,
			wantResult:  "failed",
			wantCalls: []string{
				opConfigure, opArtifacts, opStart, opAttach, opProbe, opStopUEs, opStopAll,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFakeTestbed().failOn(tt.failOp, tt.err)
			out := newOrchestrator(t, f).Run(context.Background(), testParams(tt.reattach), testDevices(4), tt.policy)

			if out.Verdict != tt.wantVerdict {
				t.Errorf("Verdict = %v, want %v (err %v)", out.Verdict, tt.wantVerdict, out.Err)
			}
			if got := out.Result(); got != tt.wantResult {
				t.Errorf("Result() = %q, want %q", got, tt.wantResult)
			}
			if diff := cmp.Diff(tt.wantCalls, f.Calls()); diff != "" {
				t.Errorf("calls mismatch (-want +got):\n%s", diff)
			}
			if got := f.Count(opStopAll); got != 1 {
				t.Errorf("stop_all calls = %d, want exactly 1", got)
			}

			switch tt.wantVerdict {
			case orchestrator.VerdictFatalFailure:
				if !errors.Is(out.Err, tt.err) {
					t.Errorf("Err = %v, want it to wrap %v", out.Err, tt.err)
				}
			case orchestrator.VerdictToleratedFailure:
				if out.Err != nil {
					t.Errorf("Err = %v, want nil for tolerated failure", out.Err)
				}
				if !errors.Is(out.Tolerated, tt.err) {
					t.Errorf("Tolerated = %v, want %v", out.Tolerated, tt.err)
				}
			case orchestrator.VerdictSuccess:
				if out.Err != nil {
					t.Errorf("Err = %v, want nil", out.Err)
				}
			}
		})
	}
}

func TestConfigurationErrorSkipsNetwork(t *testing.T) {
	t.Parallel()

	for _, policy := range []orchestrator.Policy{orchestrator.PolicyStrict, orchestrator.PolicyCrashOnly} {
		t.Run(policy.String(), func(t *testing.T) {
			t.Parallel()

			cfgErr := testbed.NewError(testbed.KindConfiguration, "configure", "gnb", errors.New("bad band"))
			f := newFakeTestbed().failOn(opConfigure, cfgErr)
			out := newOrchestrator(t, f).Run(context.Background(), testParams(2), testDevices(4), policy)

			if diff := cmp.Diff([]string{opConfigure}, f.Calls()); diff != "" {
				t.Errorf("calls mismatch (-want +got):\n%s", diff)
			}
			if out.Verdict != orchestrator.VerdictFatalFailure {
				t.Errorf("Verdict = %v, want %v", out.Verdict, orchestrator.VerdictFatalFailure)
			}
			if !errors.Is(out.Err, testbed.ErrConfiguration) {
				t.Errorf("Err = %v, want %v", out.Err, testbed.ErrConfiguration)
			}
			if out.Phase != orchestrator.PhaseAborted {
				t.Errorf("Phase = %v, want %v", out.Phase, orchestrator.PhaseAborted)
			}
		})
	}
}

func TestConfigureRemoteFailureIsConfigurationError(t *testing.T) {
	t.Parallel()

	rpcErr := testbed.NewError(testbed.KindRemoteCall, "configure", "gnb", errors.New("unavailable"))
	f := newFakeTestbed().failOn(opArtifacts, rpcErr)
	out := newOrchestrator(t, f).Run(context.Background(), testParams(0), testDevices(4), orchestrator.PolicyCrashOnly)

	if out.Verdict != orchestrator.VerdictFatalFailure {
		t.Errorf("Verdict = %v, want %v", out.Verdict, orchestrator.VerdictFatalFailure)
	}
	if !errors.Is(out.Err, testbed.ErrConfiguration) {
		t.Errorf("Err = %v, want %v", out.Err, testbed.ErrConfiguration)
	}
	if f.Count(opStart) != 0 || f.Count(opStopAll) != 0 {
		t.Errorf("network calls after configuration failure: %v", f.Calls())
	}
}

func TestInvalidInputsNeverReachCollaborators(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		params  scenario.Parameters
		devices testbed.DeviceSet
	}{
		{
			name: "unsupported band",
			params: func() scenario.Parameters {
				p := testParams(0)
				p.Band = 999
				return p
			}(),
			devices: testDevices(4),
		},
		{
			name: "negative reattach",
			params: func() scenario.Parameters {
				p := testParams(0)
				p.ReattachCount = -1
				return p
			}(),
			devices: testDevices(4),
		},
		{
			name:    "no UEs",
			params:  testParams(0),
			devices: testDevices(0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFakeTestbed()
			out := newOrchestrator(t, f).Run(context.Background(), tt.params, tt.devices, orchestrator.PolicyCrashOnly)

			if calls := f.Calls(); len(calls) != 0 {
				t.Errorf("collaborator calls = %v, want none", calls)
			}
			if !errors.Is(out.Err, testbed.ErrConfiguration) {
				t.Errorf("Err = %v, want %v", out.Err, testbed.ErrConfiguration)
			}
			if diff := cmp.Diff([]string{orchestrator.StepValidate}, out.StepNames()); diff != "" {
				t.Errorf("steps mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// -------------------------------------------------------------------------
// Teardown and Cancellation
// -------------------------------------------------------------------------

func TestTeardownTimeout(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		timeout time.Duration
		wantDL  bool
	}{
		{name: "zero leaves bound to collaborator", timeout: 0, wantDL: false},
		{name: "positive bounds teardown", timeout: 30 * time.Second, wantDL: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := testParams(0)
			p.StopTimeout = tt.timeout

			f := newFakeTestbed()
			newOrchestrator(t, f).Run(context.Background(), p, testDevices(4), orchestrator.PolicyStrict)

			if f.stopTimeout != tt.timeout {
				t.Errorf("StopAll timeout = %v, want %v", f.stopTimeout, tt.timeout)
			}
			if f.stopHadDL != tt.wantDL {
				t.Errorf("StopAll ctx deadline set = %v, want %v", f.stopHadDL, tt.wantDL)
			}
		})
	}
}

func TestCancellationFailsRunButTearsDown(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := newFakeTestbed()
	f.hooks[opAttach] = cancel
	f.errs[opAttach] = testbed.NewError(testbed.KindRemoteCall, "attach", "ue1", context.Canceled)

	out := newOrchestrator(t, f).Run(ctx, testParams(2), testDevices(4), orchestrator.PolicyCrashOnly)

	if out.Verdict != orchestrator.VerdictFatalFailure {
		t.Errorf("Verdict = %v, want %v", out.Verdict, orchestrator.VerdictFatalFailure)
	}
	if !errors.Is(out.Err, context.Canceled) {
		t.Errorf("Err = %v, want %v", out.Err, context.Canceled)
	}
	if f.Count(opStopAll) != 1 {
		t.Fatalf("stop_all calls = %d, want 1", f.Count(opStopAll))
	}
	if f.stopCtxErr != nil {
		t.Errorf("teardown ctx error = %v, want nil", f.stopCtxErr)
	}
}

func TestCanceledBeforeStart(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := newFakeTestbed()
	out := newOrchestrator(t, f).Run(ctx, testParams(0), testDevices(4), orchestrator.PolicyStrict)

	if calls := f.Calls(); len(calls) != 0 {
		t.Errorf("collaborator calls = %v, want none", calls)
	}
	if out.Status != orchestrator.StatusFailed {
		t.Errorf("Status = %v, want %v", out.Status, orchestrator.StatusFailed)
	}
}

// -------------------------------------------------------------------------
// Outcome Reporting
// -------------------------------------------------------------------------

func TestOutcomeRecordsStepsAndWarnings(t *testing.T) {
	t.Parallel()

	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	rpcErr := testbed.NewError(testbed.KindRemoteCall, "stop", "ue1", errors.New("deadline"))
	f := newFakeTestbed().failOn(opStopUEs, rpcErr)
	m := &fakeMetrics{}

	o := newOrchestrator(t, f,
		orchestrator.WithClock(now),
		orchestrator.WithRunIDs(func() string { return "run-1" }),
		orchestrator.WithMetrics(m),
	)
	sc, ok := scenario.Lookup("android/band:3-scs:15-bandwidth:10-reattach:2")
	if !ok {
		t.Fatal("scenario not found")
	}
	out := o.RunScenario(context.Background(), sc, testDevices(1))

	if out.RunID != "run-1" {
		t.Errorf("RunID = %q, want %q", out.RunID, "run-1")
	}
	if out.ScenarioID != sc.ID || out.Category != scenario.CategoryAndroid {
		t.Errorf("scenario = %q/%q, want %q/%q", out.ScenarioID, out.Category, sc.ID, scenario.CategoryAndroid)
	}
	if out.Policy != orchestrator.PolicyStrict {
		t.Errorf("Policy = %v, want %v", out.Policy, orchestrator.PolicyStrict)
	}
	if len(out.Warnings) != 2 {
		t.Errorf("Warnings = %v, want 2 stop-UE warnings", out.Warnings)
	}
	for _, w := range out.Warnings {
		if !strings.Contains(w, "stop UEs") {
			t.Errorf("warning %q does not mention stop UEs", w)
		}
	}

	wantSteps := []string{
		orchestrator.StepValidate, orchestrator.StepConfigure, orchestrator.StepConfigureArtifacts,
		orchestrator.StepStartNetwork, orchestrator.StepAttach, orchestrator.StepProbe,
		orchestrator.StepStopUEs, orchestrator.StepAttach, orchestrator.StepProbe,
		orchestrator.StepStopUEs, orchestrator.StepAttach, orchestrator.StepProbe,
		orchestrator.StepStopAll,
	}
	if diff := cmp.Diff(wantSteps, out.StepNames()); diff != "" {
		t.Errorf("steps mismatch (-want +got):\n%s", diff)
	}
	for _, s := range out.Steps {
		if s.Duration != time.Second {
			t.Errorf("step %s duration = %v, want %v", s.Name, s.Duration, time.Second)
		}
	}
	if !out.WantArtifacts() {
		t.Error("WantArtifacts() = false, want true for always-download scenario")
	}

	if diff := cmp.Diff([]string{"android/success"}, m.runs); diff != "" {
		t.Errorf("runs metric mismatch (-want +got):\n%s", diff)
	}
	if m.cycles != 3 {
		t.Errorf("cycles metric = %d, want 3", m.cycles)
	}
	if len(m.steps) != len(wantSteps) {
		t.Errorf("step metrics = %d, want %d", len(m.steps), len(wantSteps))
	}
}

func TestToleratedFailureMetrics(t *testing.T) {
	t.Parallel()

	m := &fakeMetrics{}
	f := newFakeTestbed().failOn(opProbe, testbed.NewError(testbed.KindReachability, "probe", "ue1", nil))
	sc, _ := scenario.Lookup("rf_not_crash/band:3-scs:15-bandwidth:10")
	out := newOrchestrator(t, f, orchestrator.WithMetrics(m)).RunScenario(context.Background(), sc, testDevices(4))

	if !out.Passed() {
		t.Fatalf("Passed() = false, want true (err %v)", out.Err)
	}
	if diff := cmp.Diff([]string{"reachability"}, m.tolerated); diff != "" {
		t.Errorf("tolerated metric mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"rf_not_crash/tolerated_failure"}, m.runs); diff != "" {
		t.Errorf("runs metric mismatch (-want +got):\n%s", diff)
	}
}

func TestWantArtifacts(t *testing.T) {
	t.Parallel()

	f := newFakeTestbed()
	out := newOrchestrator(t, f).Run(context.Background(), testParams(0), testDevices(4), orchestrator.PolicyStrict)
	if out.WantArtifacts() {
		t.Error("WantArtifacts() = true for full success without always-download")
	}

	f = newFakeTestbed().failOn(opAttach, testbed.NewError(testbed.KindAttach, "attach", "ue1", nil))
	out = newOrchestrator(t, f).Run(context.Background(), testParams(0), testDevices(4), orchestrator.PolicyCrashOnly)
	if !out.WantArtifacts() {
		t.Error("WantArtifacts() = false for tolerated failure")
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	t.Parallel()

	f := newFakeTestbed()
	_, err := orchestrator.New(orchestrator.Collaborators{Configurer: f, Network: f, Attach: f}, slog.New(slog.DiscardHandler))
	if !errors.Is(err, orchestrator.ErrMissingCollaborator) {
		t.Errorf("New() error = %v, want %v", err, orchestrator.ErrMissingCollaborator)
	}
}
