package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dantte-lp/ranping/internal/scenario"
	"github.com/dantte-lp/ranping/internal/testbed"
)

// tracerName is the instrumentation scope of orchestrator spans.
const tracerName = "github.com/dantte-lp/ranping/internal/orchestrator"

// adhocCategory labels runs started without a scenario table entry.
const adhocCategory = "adhoc"

// ErrMissingCollaborator indicates a nil collaborator passed to New.
var ErrMissingCollaborator = errors.New("collaborator is required")

// -------------------------------------------------------------------------
// Metrics
// -------------------------------------------------------------------------

// MetricsReporter receives run and step measurements.
type MetricsReporter interface {
	ObserveStep(step string, failed bool, d time.Duration)
	IncCycles(category string)
	RecordRun(category, verdict string)
	RecordToleratedFailure(kind string)
}

type noopMetrics struct{}

func (noopMetrics) ObserveStep(string, bool, time.Duration) {}
func (noopMetrics) IncCycles(string)                        {}
func (noopMetrics) RecordRun(string, string)                {}
func (noopMetrics) RecordToleratedFailure(string)           {}

// -------------------------------------------------------------------------
// Orchestrator
// -------------------------------------------------------------------------

// Collaborators are the remote component operations a run drives.
type Collaborators struct {
	Configurer testbed.Configurer
	Network    testbed.NetworkController
	Attach     testbed.AttachController
	Probe      testbed.ReachabilityProbe
}

// Option configures optional Orchestrator parameters.
type Option func(*Orchestrator)

// WithMetrics sets the metrics reporter. A nil reporter is ignored.
func WithMetrics(mr MetricsReporter) Option {
	return func(o *Orchestrator) {
		if mr != nil {
			o.metrics = mr
		}
	}
}

// WithTracer sets the tracer used for run and step spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithClock replaces time.Now for timestamps and step durations.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithRunIDs replaces the run identifier generator.
func WithRunIDs(next func() string) Option {
	return func(o *Orchestrator) {
		if next != nil {
			o.newRunID = next
		}
	}
}

// Orchestrator drives runs through configure, network start, attach and
// probe cycles and teardown. Runs share no mutable state, so one
// Orchestrator may execute several runs concurrently.
type Orchestrator struct {
	collab   Collaborators
	logger   *slog.Logger
	metrics  MetricsReporter
	tracer   trace.Tracer
	now      func() time.Time
	newRunID func() string
}

// New creates an Orchestrator over the given collaborators.
func New(collab Collaborators, logger *slog.Logger, opts ...Option) (*Orchestrator, error) {
	switch {
	case collab.Configurer == nil:
		return nil, fmt.Errorf("configurer: %w", ErrMissingCollaborator)
	case collab.Network == nil:
		return nil, fmt.Errorf("network controller: %w", ErrMissingCollaborator)
	case collab.Attach == nil:
		return nil, fmt.Errorf("attach controller: %w", ErrMissingCollaborator)
	case collab.Probe == nil:
		return nil, fmt.Errorf("reachability probe: %w", ErrMissingCollaborator)
	}

	o := &Orchestrator{
		collab:   collab,
		logger:   logger.With(slog.String("component", "orchestrator")),
		metrics:  noopMetrics{},
		tracer:   otel.Tracer(tracerName),
		now:      time.Now,
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// RunScenario executes a scenario table entry with the policy of its
// category.
func (o *Orchestrator) RunScenario(ctx context.Context, sc scenario.Scenario, devices testbed.DeviceSet) *Outcome {
	return o.run(ctx, sc.ID, sc.Category, sc.Params, devices, PolicyFor(sc.Category))
}

// Run executes one ping lifecycle with explicit parameters and policy.
// The returned Outcome is always finalized.
func (o *Orchestrator) Run(ctx context.Context, params scenario.Parameters, devices testbed.DeviceSet, policy Policy) *Outcome {
	return o.run(ctx, "", "", params, devices, policy)
}

func (o *Orchestrator) run(ctx context.Context, scenarioID string, category scenario.Category,
	params scenario.Parameters, devices testbed.DeviceSet, policy Policy,
) *Outcome {
	out := newOutcome(o.newRunID(), scenarioID, category, policy, params, o.now())

	label := string(category)
	if label == "" {
		label = adhocCategory
	}

	r := &runner{
		o:        o,
		out:      out,
		category: label,
		logger: o.logger.With(
			slog.String("run_id", out.RunID),
			slog.String("scenario", scenarioID),
			slog.String("policy", policy.String()),
		),
	}

	ctx, span := o.tracer.Start(ctx, "ranping.run", trace.WithAttributes(
		attribute.String("run.id", out.RunID),
		attribute.String("scenario.id", scenarioID),
		attribute.String("scenario.category", label),
		attribute.String("policy", policy.String()),
		attribute.Int("params.band", params.Band),
		attribute.Int("params.bandwidth_mhz", params.BandwidthMHz),
		attribute.Int("params.reattach_count", params.ReattachCount),
	))
	defer span.End()

	r.logger.Info("run started",
		slog.Int("band", params.Band),
		slog.Int("scs", params.CommonSCS),
		slog.Int("bandwidth", params.BandwidthMHz),
		slog.Int("reattach_count", params.ReattachCount),
		slog.Int("ues", len(devices.UEs)),
	)

	if err := r.setUp(ctx, params, devices); err != nil {
		_ = r.apply(EventAborted) // Idle+Aborted is always legal.
		r.finish(span, VerdictFatalFailure, err)
		return out
	}

	runErr := r.exercise(ctx, params, devices)
	teardownErr := r.tearDown(ctx, devices, params.StopTimeout)

	verdict, cause := r.decide(ctx, policy, runErr, teardownErr)
	r.finish(span, verdict, cause)
	return out
}

// -------------------------------------------------------------------------
// Runner
// -------------------------------------------------------------------------

// runner holds the state of one run.
type runner struct {
	o        *Orchestrator
	out      *Outcome
	category string
	logger   *slog.Logger
	phase    Phase
}

// apply advances the lifecycle phase.
func (r *runner) apply(event Event) error {
	next, err := ApplyEvent(r.phase, event)
	if err != nil {
		return err
	}
	r.logger.Debug("lifecycle transition",
		slog.String("from", r.phase.String()),
		slog.String("to", next.String()),
		slog.String("event", event.String()),
	)
	r.phase = next
	r.out.Phase = next
	return nil
}

// step runs one collaborator call, recording it in the outcome, the metrics
// and a span.
func (r *runner) step(ctx context.Context, name string, cycle int, fn func(context.Context) error) error {
	ctx, span := r.o.tracer.Start(ctx, "ranping.step."+name, trace.WithAttributes(
		attribute.String("step", name),
		attribute.Int("cycle", cycle),
	))
	defer span.End()

	start := r.o.now()
	err := fn(ctx)
	d := r.o.now().Sub(start)

	rec := StepRecord{Name: name, Cycle: cycle, StartedAt: start, Duration: d}
	if err != nil {
		rec.Err = err.Error()
		rec.Kind = testbed.KindOf(err).String()
		span.RecordError(err)
		span.SetStatus(codes.Error, rec.Kind)
		r.logger.Warn("step failed",
			slog.String("step", name),
			slog.Int("cycle", cycle),
			slog.Duration("duration", d),
			slog.String("kind", rec.Kind),
			slog.String("error", err.Error()),
		)
	} else {
		r.logger.Info("step completed",
			slog.String("step", name),
			slog.Int("cycle", cycle),
			slog.Duration("duration", d),
		)
	}

	r.out.Steps = append(r.out.Steps, rec)
	r.o.metrics.ObserveStep(name, err != nil, d)
	return err
}

// setUp validates the inputs and configures the testbed. Every error it
// returns is a configuration error or a cancellation; no component has been
// started yet.
func (r *runner) setUp(ctx context.Context, params scenario.Parameters, devices testbed.DeviceSet) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run canceled before start: %w", err)
	}

	err := r.step(ctx, StepValidate, 0, func(context.Context) error {
		if err := params.Validate(); err != nil {
			return testbed.NewError(testbed.KindConfiguration, StepValidate, "", err)
		}
		if err := devices.Validate(); err != nil {
			return testbed.NewError(testbed.KindConfiguration, StepValidate, "", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	err = r.step(ctx, StepConfigure, 0, func(ctx context.Context) error {
		return r.o.collab.Configurer.Configure(ctx, params)
	})
	if err != nil {
		return asConfiguration(StepConfigure, err)
	}

	err = r.step(ctx, StepConfigureArtifacts, 0, func(ctx context.Context) error {
		return r.o.collab.Configurer.ConfigureArtifacts(ctx, r.out.Artifacts)
	})
	if err != nil {
		return asConfiguration(StepConfigureArtifacts, err)
	}

	return r.apply(EventConfigured)
}

// asConfiguration classifies a configure failure. Cancellations stay
// unclassified; every other failure becomes a configuration error so that
// no policy tolerates it.
func asConfiguration(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if testbed.KindOf(err) == testbed.KindConfiguration {
		return err
	}
	return testbed.NewError(testbed.KindConfiguration, op, "", err)
}

// exercise starts the network and runs 1 + ReattachCount attach/probe
// cycles. It returns the first error; the remaining sequence is skipped.
func (r *runner) exercise(ctx context.Context, params scenario.Parameters, devices testbed.DeviceSet) error {
	err := r.step(ctx, StepStartNetwork, 0, func(ctx context.Context) error {
		return r.o.collab.Network.StartNetwork(ctx, devices, params.PreCommand, params.PostCommand)
	})
	if err != nil {
		return err
	}
	if err := r.apply(EventNetworkStarted); err != nil {
		return err
	}

	for cycle := 0; cycle <= params.ReattachCount; cycle++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("cycle %d: %w", cycle, err)
		}
		if cycle > 0 {
			if err := r.stopUEs(ctx, cycle, devices.UEs); err != nil {
				return err
			}
		}
		if err := r.attachAndProbe(ctx, cycle, params.PingCount, devices); err != nil {
			return err
		}
		r.out.Cycles++
		r.o.metrics.IncCycles(r.category)
	}
	return nil
}

// stopUEs stops the UEs between cycles. Failures are best effort and
// recorded as warnings, except a process crash which ends the run.
func (r *runner) stopUEs(ctx context.Context, cycle int, ues []testbed.Handle) error {
	err := r.step(ctx, StepStopUEs, cycle, func(ctx context.Context) error {
		return r.o.collab.Network.StopUEs(ctx, ues)
	})
	if err != nil {
		if testbed.IsCrash(err) {
			return err
		}
		r.warn(fmt.Sprintf("cycle %d: stop UEs: %v", cycle, err))
	}
	return r.apply(EventUEsStopped)
}

// attachAndProbe attaches every UE and probes them with the attach result of
// this cycle only.
func (r *runner) attachAndProbe(ctx context.Context, cycle, pingCount int, devices testbed.DeviceSet) error {
	var info testbed.AttachInfo
	err := r.step(ctx, StepAttach, cycle, func(ctx context.Context) error {
		var err error
		info, err = r.o.collab.Attach.AttachAndStart(ctx, devices)
		return err
	})
	if err != nil {
		return err
	}
	if err := r.apply(EventAttached); err != nil {
		return err
	}

	err = r.step(ctx, StepProbe, cycle, func(ctx context.Context) error {
		return r.o.collab.Probe.Probe(ctx, info, devices.EPC, pingCount)
	})
	if err != nil {
		return err
	}
	return r.apply(EventProbed)
}

// tearDown stops the whole topology exactly once. It runs on a context
// detached from the parent's cancellation, bounded by timeout when set.
func (r *runner) tearDown(ctx context.Context, devices testbed.DeviceSet, timeout time.Duration) error {
	tctx := context.WithoutCancel(ctx)
	if timeout > 0 {
		var cancel context.CancelFunc
		tctx, cancel = context.WithTimeout(tctx, timeout)
		defer cancel()
	}

	err := r.step(tctx, StepStopAll, r.out.Cycles, func(ctx context.Context) error {
		return r.o.collab.Network.StopAll(ctx, devices, timeout)
	})
	if terr := r.apply(EventTornDown); terr != nil {
		err = errors.Join(err, terr)
	}
	if err != nil {
		r.out.TeardownErr = err
		if !testbed.IsCrash(err) {
			r.warn(fmt.Sprintf("teardown: %v", err))
		}
	}
	return err
}

// decide maps the run and teardown errors to the verdict. A teardown error
// changes the result only when it reports a process crash, and a canceled
// run never passes.
func (r *runner) decide(ctx context.Context, policy Policy, runErr, teardownErr error) (Verdict, error) {
	verdict := policy.Judge(runErr)
	cause := runErr

	if verdict == VerdictToleratedFailure {
		r.out.Tolerated = runErr
	}

	if teardownErr != nil && testbed.IsCrash(teardownErr) {
		if verdict == VerdictFatalFailure {
			cause = errors.Join(runErr, teardownErr)
		} else {
			cause = teardownErr
		}
		verdict = VerdictFatalFailure
	}

	if verdict != VerdictFatalFailure && ctx.Err() != nil {
		verdict = VerdictFatalFailure
		cause = fmt.Errorf("run canceled: %w", context.Cause(ctx))
	}

	return verdict, cause
}

func (r *runner) warn(msg string) {
	r.out.Warnings = append(r.out.Warnings, msg)
	r.logger.Warn("best-effort step failed", slog.String("detail", msg))
}

// finish finalizes the outcome and reports it.
func (r *runner) finish(span trace.Span, verdict Verdict, cause error) {
	if !r.out.finalize(verdict, cause, r.o.now()) {
		r.logger.Error("outcome already finalized", slog.String("verdict", verdict.String()))
		return
	}

	span.SetAttributes(
		attribute.String("run.verdict", verdict.String()),
		attribute.Int("run.cycles", r.out.Cycles),
	)
	if verdict == VerdictFatalFailure && cause != nil {
		span.SetStatus(codes.Error, cause.Error())
	}
	r.o.metrics.RecordRun(r.category, verdict.String())
	if verdict == VerdictToleratedFailure {
		kind := testbed.KindOf(r.out.Tolerated).String()
		r.o.metrics.RecordToleratedFailure(kind)
		r.logger.Info("failure tolerated by policy",
			slog.String("kind", kind),
			slog.String("error", r.out.Tolerated.Error()),
		)
	}

	attrs := []any{
		slog.String("result", r.out.Result()),
		slog.String("phase", r.out.Phase.String()),
		slog.Int("cycles", r.out.Cycles),
		slog.Duration("duration", r.out.Duration()),
	}
	if cause != nil && verdict == VerdictFatalFailure {
		attrs = append(attrs, slog.String("error", cause.Error()))
		r.logger.Error("run failed", attrs...)
		return
	}
	r.logger.Info("run finished", attrs...)
}
