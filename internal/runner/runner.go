// Package runner composes the agent stub, the orchestrator and the artifact
// writer into one run of a scenario against a configured testbed.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"connectrpc.com/connect"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dantte-lp/ranping/internal/artifacts"
	"github.com/dantte-lp/ranping/internal/config"
	ranpingmetrics "github.com/dantte-lp/ranping/internal/metrics"
	"github.com/dantte-lp/ranping/internal/orchestrator"
	"github.com/dantte-lp/ranping/internal/scenario"
	"github.com/dantte-lp/ranping/internal/stub"
	"github.com/dantte-lp/ranping/internal/testbed"
)

// ErrPreflight indicates the testbed agents failed the health check before
// a run was started.
var ErrPreflight = errors.New("testbed preflight failed")

// Result is a finished run with the findings and the artifact directory.
type Result struct {
	Outcome  *orchestrator.Outcome
	Findings []stub.Finding

	// ArtifactsDir is empty when the run produced no artifacts.
	ArtifactsDir string
}

// Option configures optional Runner parameters.
type Option func(*Runner)

// WithHTTPClient sets the HTTP client used to reach the agents.
func WithHTTPClient(c connect.HTTPClient) Option {
	return func(r *Runner) {
		if c != nil {
			r.httpClient = c
		}
	}
}

// WithOrchestratorOptions appends options for every orchestrator the
// runner creates.
func WithOrchestratorOptions(opts ...orchestrator.Option) Option {
	return func(r *Runner) {
		r.orchOpts = append(r.orchOpts, opts...)
	}
}

// Runner executes runs against the testbed described by a configuration.
// Every run gets its own stub, so runs may execute concurrently.
type Runner struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpClient connect.HTTPClient
	registry   *prometheus.Registry
	collector  *ranpingmetrics.Collector
	writer     *artifacts.Writer
	orchOpts   []orchestrator.Option
}

// New creates a Runner. The configuration must already be validated.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *Runner {
	r := &Runner{
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "runner")),
		registry: prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.collector = ranpingmetrics.NewCollector(r.registry)
	r.writer = artifacts.NewWriter(cfg.Run.ArtifactsDir, r.registry, logger)
	return r
}

// Registry returns the registry run metrics are recorded in.
func (r *Runner) Registry() *prometheus.Registry {
	return r.registry
}

// RunScenario executes one scenario table entry. An error is returned only
// when the run could not be started; run failures are in the Outcome.
func (r *Runner) RunScenario(ctx context.Context, sc scenario.Scenario) (*Result, error) {
	devices, err := r.prepare(ctx, sc.Category.UECount())
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", sc.ID, err)
	}

	return r.execute(func(orch *orchestrator.Orchestrator) *orchestrator.Outcome {
		return orch.RunScenario(ctx, sc, devices)
	})
}

// RunAdhoc executes a run with explicit parameters and policy.
func (r *Runner) RunAdhoc(ctx context.Context, params scenario.Parameters, ueCount int, policy orchestrator.Policy) (*Result, error) {
	devices, err := r.prepare(ctx, ueCount)
	if err != nil {
		return nil, fmt.Errorf("adhoc run: %w", err)
	}

	return r.execute(func(orch *orchestrator.Orchestrator) *orchestrator.Outcome {
		return orch.Run(ctx, params, devices, policy)
	})
}

func (r *Runner) prepare(ctx context.Context, ueCount int) (testbed.DeviceSet, error) {
	devices, err := r.cfg.Devices(ueCount)
	if err != nil {
		return testbed.DeviceSet{}, err
	}

	if r.cfg.Run.HealthCheck {
		if err := stub.CheckHealth(ctx, devices, r.cfg.Run.HealthTimeout); err != nil {
			return testbed.DeviceSet{}, fmt.Errorf("%w: %w", ErrPreflight, err)
		}
	}
	return devices, nil
}

func (r *Runner) execute(run func(*orchestrator.Orchestrator) *orchestrator.Outcome) (*Result, error) {
	var stubOpts []stub.Option
	if r.httpClient != nil {
		stubOpts = append(stubOpts, stub.WithHTTPClient(r.httpClient))
	}
	stubOpts = append(stubOpts,
		stub.WithAttachTimeout(r.cfg.Run.AttachTimeout),
		stub.WithProbePolicy(r.cfg.ProbePolicy()),
		stub.WithProbeReporter(r.collector),
	)
	tb := stub.New(r.logger, stubOpts...)

	opts := append([]orchestrator.Option{orchestrator.WithMetrics(r.collector)}, r.orchOpts...)

	orch, err := orchestrator.New(orchestrator.Collaborators{
		Configurer: tb,
		Network:    tb,
		Attach:     tb,
		Probe:      tb,
	}, r.logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("create orchestrator: %w", err)
	}

	outcome := run(orch)
	res := &Result{Outcome: outcome, Findings: tb.Findings()}

	dir, err := r.writer.Write(outcome, res.Findings)
	if err != nil {
		// A lost report does not change the verdict.
		r.logger.Error("write artifacts",
			slog.String("run_id", outcome.RunID),
			slog.String("error", err.Error()),
		)
	}
	res.ArtifactsDir = dir
	return res, nil
}
