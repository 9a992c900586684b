package orchestrator

import (
	"time"

	"github.com/dantte-lp/ranping/internal/scenario"
	"github.com/dantte-lp/ranping/internal/testbed"
)

// Status is the externally visible state of a run.
type Status string

// Run statuses.
const (
	StatusInProgress Status = "in_progress"
	StatusPassed     Status = "passed"
	StatusFailed     Status = "failed"
)

// Step names recorded in StepRecord.Name and used as metric and span labels.
const (
	StepValidate           = "validate"
	StepConfigure          = "configure"
	StepConfigureArtifacts = "configure_artifacts"
	StepStartNetwork       = "start_network"
	StepAttach             = "attach"
	StepProbe              = "probe"
	StepStopUEs            = "stop_ues"
	StepStopAll            = "stop_all"
)

// StepRecord is one executed collaborator step.
type StepRecord struct {
	// Name is one of the Step* constants.
	Name string `json:"name" yaml:"name"`

	// Cycle is the attach cycle the step belongs to. Zero for the steps
	// outside the attach loop and for the first cycle.
	Cycle int `json:"cycle" yaml:"cycle"`

	// StartedAt is when the step was invoked.
	StartedAt time.Time `json:"started_at" yaml:"started_at"`

	// Duration is the wall time of the step.
	Duration time.Duration `json:"duration" yaml:"duration"`

	// Err is the error text. Empty on success.
	Err string `json:"error,omitempty" yaml:"error,omitempty"`

	// Kind is the error kind. Empty on success.
	Kind string `json:"kind,omitempty" yaml:"kind,omitempty"`
}

// Failed reports whether the step returned an error.
func (s StepRecord) Failed() bool { return s.Err != "" }

// Outcome is the result of one run. It is created in progress when the run
// starts and finalized exactly once.
type Outcome struct {
	RunID      string
	ScenarioID string
	Category   scenario.Category
	Policy     Policy
	Params     scenario.Parameters
	Artifacts  testbed.ArtifactPolicy

	Status  Status
	Verdict Verdict

	// Err is the error that failed the run. Nil unless the verdict is fatal.
	Err error

	// Tolerated is the first failure the crash-only policy tolerated.
	Tolerated error

	// TeardownErr is the final StopAll error. It changes the verdict only
	// when it reports a process crash.
	TeardownErr error

	// Warnings are best-effort failures that did not change the verdict.
	Warnings []string

	// Cycles is the number of attach/probe cycles that completed.
	Cycles int

	// Phase is the last lifecycle phase reached.
	Phase Phase

	Steps []StepRecord

	StartedAt  time.Time
	FinishedAt time.Time

	finalized bool
}

func newOutcome(runID, scenarioID string, category scenario.Category, policy Policy,
	params scenario.Parameters, at time.Time,
) *Outcome {
	return &Outcome{
		RunID:      runID,
		ScenarioID: scenarioID,
		Category:   category,
		Policy:     policy,
		Params:     params,
		Artifacts: testbed.ArtifactPolicy{
			AlwaysDownload: params.AlwaysDownloadArtifacts,
			LogSearch:      params.LogSearch,
		},
		Status:    StatusInProgress,
		StartedAt: at,
	}
}

// finalize records the verdict. Returns false when the outcome was already
// finalized; the first verdict stands.
func (o *Outcome) finalize(v Verdict, cause error, at time.Time) bool {
	if o.finalized {
		return false
	}
	o.finalized = true

	o.Verdict = v
	o.FinishedAt = at
	if v.Passed() {
		o.Status = StatusPassed
	} else {
		o.Status = StatusFailed
		o.Err = cause
	}
	return true
}

// Passed reports whether the run passed, with or without a tolerated failure.
func (o *Outcome) Passed() bool {
	return o.Status == StatusPassed
}

// Result returns the report form of the outcome: "passed",
// "passed (tolerated failure)", "failed" or "in_progress".
func (o *Outcome) Result() string {
	switch {
	case o.Status == StatusInProgress:
		return string(StatusInProgress)
	case o.Verdict == VerdictToleratedFailure:
		return "passed (tolerated failure)"
	default:
		return string(o.Status)
	}
}

// Duration returns the run wall time. Zero while in progress.
func (o *Outcome) Duration() time.Duration {
	if o.FinishedAt.IsZero() {
		return 0
	}
	return o.FinishedAt.Sub(o.StartedAt)
}

// WantArtifacts reports whether run artifacts should be kept: always when
// the artifact policy asks for it, otherwise only when the run did not fully
// succeed.
func (o *Outcome) WantArtifacts() bool {
	return o.Artifacts.AlwaysDownload || o.Verdict != VerdictSuccess
}

// StepNames returns the executed step names in order.
func (o *Outcome) StepNames() []string {
	names := make([]string, len(o.Steps))
	for i, s := range o.Steps {
		names[i] = s.Name
	}
	return names
}
