package runner_test

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/dantte-lp/ranping/internal/artifacts"
	"github.com/dantte-lp/ranping/internal/config"
	"github.com/dantte-lp/ranping/internal/orchestrator"
	"github.com/dantte-lp/ranping/internal/runner"
	"github.com/dantte-lp/ranping/internal/scenario"
	"github.com/dantte-lp/ranping/internal/server"
	"github.com/dantte-lp/ranping/internal/sim"
	"github.com/dantte-lp/ranping/internal/testbed"
)

const smokeID = "zmq/band:3-scs:15-bandwidth:10"

// newAgent serves a simulated testbed hosting "gnb", "epc" and four UEs
// and returns a configuration pointing every device at it.
func newAgent(t *testing.T, faults sim.Faults) *config.Config {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	tb, err := sim.New(sim.Config{
		GNB:    "gnb",
		EPC:    "epc",
		UEs:    []string{"ue1", "ue2", "ue3", "ue4"},
		Faults: faults,
	}, logger)
	if err != nil {
		t.Fatalf("sim.New: %v", err)
	}

	mux := http.NewServeMux()
	server.New(tb, logger).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	t.Cleanup(tb.Close)

	cfg := config.DefaultConfig()
	cfg.Testbed.GNB.Addr = srv.URL
	cfg.Testbed.EPC.Addr = srv.URL
	for i := range cfg.Testbed.UEs {
		cfg.Testbed.UEs[i].Addr = srv.URL
	}
	cfg.Run.ArtifactsDir = t.TempDir()
	cfg.Run.AttachTimeout = 5 * time.Second
	cfg.Run.HealthCheck = false
	return cfg
}

func smoke(t *testing.T) scenario.Scenario {
	t.Helper()

	sc, ok := scenario.Lookup(smokeID)
	if !ok {
		t.Fatalf("Lookup(%q) = false", smokeID)
	}
	return sc
}

func TestRunScenarioPasses(t *testing.T) {
	t.Parallel()

	cfg := newAgent(t, sim.Faults{})
	r := runner.New(cfg, slog.New(slog.DiscardHandler))

	res, err := r.RunScenario(context.Background(), smoke(t))
	if err != nil {
		t.Fatalf("RunScenario: %v", err)
	}

	o := res.Outcome
	if o.Verdict != orchestrator.VerdictSuccess {
		t.Fatalf("Verdict = %v, want %v (err: %v)", o.Verdict, orchestrator.VerdictSuccess, o.Err)
	}
	if o.Cycles != 1 {
		t.Errorf("Cycles = %d, want 1", o.Cycles)
	}
	if res.ArtifactsDir != "" {
		t.Errorf("ArtifactsDir = %q, want none for a clean success", res.ArtifactsDir)
	}

	families, err := r.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) == 0 {
		t.Error("registry has no metric families after a run")
	}
}

func TestRunScenarioCrashWritesArtifacts(t *testing.T) {
	t.Parallel()

	cfg := newAgent(t, sim.Faults{CrashComponent: "gnb"})
	r := runner.New(cfg, slog.New(slog.DiscardHandler),
		runner.WithOrchestratorOptions(orchestrator.WithRunIDs(func() string { return "run-1" })),
	)

	res, err := r.RunScenario(context.Background(), smoke(t))
	if err != nil {
		t.Fatalf("RunScenario: %v", err)
	}

	o := res.Outcome
	if o.Passed() {
		t.Fatalf("Passed = true, want a failed run on a gNB crash")
	}
	if !testbed.IsCrash(o.Err) {
		t.Errorf("Err = %v, want a process crash", o.Err)
	}
	wantDir := filepath.Join(cfg.Run.ArtifactsDir, "zmq_band-3-scs-15-bandwidth-10", "run-1")
	if res.ArtifactsDir != wantDir {
		t.Fatalf("ArtifactsDir = %q, want %q", res.ArtifactsDir, wantDir)
	}

	report, err := artifacts.ReadReport(res.ArtifactsDir)
	if err != nil {
		t.Fatalf("ReadReport: %v", err)
	}
	if report.Result != "failed" {
		t.Errorf("report Result = %q, want %q", report.Result, "failed")
	}
	if report.ExitCode == nil || *report.ExitCode != sim.DefaultCrashExitCode {
		t.Errorf("report ExitCode = %v, want %d", report.ExitCode, sim.DefaultCrashExitCode)
	}
}

func TestRunAdhocCrashOnlyToleratesPingLoss(t *testing.T) {
	t.Parallel()

	cfg := newAgent(t, sim.Faults{FailPingCycle: 1})
	r := runner.New(cfg, slog.New(slog.DiscardHandler))

	params := smoke(t).Params
	res, err := r.RunAdhoc(context.Background(), params, 2, orchestrator.PolicyCrashOnly)
	if err != nil {
		t.Fatalf("RunAdhoc: %v", err)
	}

	o := res.Outcome
	if o.Verdict != orchestrator.VerdictToleratedFailure {
		t.Fatalf("Verdict = %v, want %v", o.Verdict, orchestrator.VerdictToleratedFailure)
	}
	if got := testbed.KindOf(o.Tolerated); got != testbed.KindReachability {
		t.Errorf("tolerated kind = %v, want %v", got, testbed.KindReachability)
	}
	if res.ArtifactsDir == "" {
		t.Error("ArtifactsDir is empty, want artifacts for a tolerated failure")
	}
}

func TestRunAdhocStrictFailsOnPingLoss(t *testing.T) {
	t.Parallel()

	cfg := newAgent(t, sim.Faults{FailPingCycle: 1})
	r := runner.New(cfg, slog.New(slog.DiscardHandler))

	res, err := r.RunAdhoc(context.Background(), smoke(t).Params, 1, orchestrator.PolicyStrict)
	if err != nil {
		t.Fatalf("RunAdhoc: %v", err)
	}
	if res.Outcome.Passed() {
		t.Fatal("Passed = true, want a failed strict run")
	}
	if got := testbed.KindOf(res.Outcome.Err); got != testbed.KindReachability {
		t.Errorf("error kind = %v, want %v", got, testbed.KindReachability)
	}
}

func TestRunScenarioNotEnoughUEs(t *testing.T) {
	t.Parallel()

	cfg := newAgent(t, sim.Faults{})
	cfg.Testbed.UEs = cfg.Testbed.UEs[:1]
	r := runner.New(cfg, slog.New(slog.DiscardHandler))

	_, err := r.RunScenario(context.Background(), smoke(t))
	if !errors.Is(err, config.ErrNotEnoughUEs) {
		t.Errorf("RunScenario error = %v, want %v", err, config.ErrNotEnoughUEs)
	}
}

func TestRunScenarioPreflight(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Testbed.GNB.Addr = "http://127.0.0.1:1"
	cfg.Testbed.EPC.Addr = "http://127.0.0.1:1"
	for i := range cfg.Testbed.UEs {
		cfg.Testbed.UEs[i].Addr = "http://127.0.0.1:1"
	}
	cfg.Run.ArtifactsDir = t.TempDir()
	cfg.Run.HealthTimeout = 500 * time.Millisecond
	r := runner.New(cfg, slog.New(slog.DiscardHandler))

	_, err := r.RunScenario(context.Background(), smoke(t))
	if !errors.Is(err, runner.ErrPreflight) {
		t.Errorf("RunScenario error = %v, want %v", err, runner.ErrPreflight)
	}
}
