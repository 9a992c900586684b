// Package artifacts writes per-run reports: the run outcome as YAML and a
// Prometheus textfile snapshot of the runner metrics.
package artifacts

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"github.com/dantte-lp/ranping/internal/orchestrator"
	"github.com/dantte-lp/ranping/internal/scenario"
	"github.com/dantte-lp/ranping/internal/stub"
	"github.com/dantte-lp/ranping/internal/testbed"
)

// File names inside a run directory.
const (
	OutcomeFile = "outcome.yaml"
	MetricsFile = "metrics.prom"
)

// ErrInProgress indicates a report request for a run that has not finished.
var ErrInProgress = errors.New("run still in progress")

// Report is the serialized form of an orchestrator.Outcome.
type Report struct {
	RunID    string `json:"run_id" yaml:"run_id"`
	Scenario string `json:"scenario,omitempty" yaml:"scenario,omitempty"`
	Category string `json:"category" yaml:"category"`
	Policy   string `json:"policy" yaml:"policy"`

	// Result is "passed", "passed (tolerated failure)" or "failed".
	Result  string `json:"result" yaml:"result"`
	Verdict string `json:"verdict" yaml:"verdict"`

	Error     string `json:"error,omitempty" yaml:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
	ExitCode  *int   `json:"exit_code,omitempty" yaml:"exit_code,omitempty"`
	Tolerated string `json:"tolerated,omitempty" yaml:"tolerated,omitempty"`
	Teardown  string `json:"teardown,omitempty" yaml:"teardown,omitempty"`

	Params scenario.Parameters `json:"params" yaml:"params"`
	Cycles int                 `json:"cycles" yaml:"cycles"`
	Phase  string              `json:"phase" yaml:"phase"`

	StartedAt  time.Time     `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time     `json:"finished_at" yaml:"finished_at"`
	Duration   time.Duration `json:"duration" yaml:"duration"`

	Steps    []orchestrator.StepRecord `json:"steps" yaml:"steps"`
	Warnings []string                  `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Findings []stub.Finding            `json:"findings,omitempty" yaml:"findings,omitempty"`
}

// NewReport builds the report of a finished run. Findings are the log
// errors collected when components stopped.
func NewReport(o *orchestrator.Outcome, findings []stub.Finding) Report {
	r := Report{
		RunID:      o.RunID,
		Scenario:   o.ScenarioID,
		Category:   string(o.Category),
		Policy:     o.Policy.String(),
		Result:     o.Result(),
		Verdict:    o.Verdict.String(),
		Params:     o.Params,
		Cycles:     o.Cycles,
		Phase:      o.Phase.String(),
		StartedAt:  o.StartedAt,
		FinishedAt: o.FinishedAt,
		Duration:   o.Duration(),
		Steps:      o.Steps,
		Warnings:   o.Warnings,
		Findings:   findings,
	}
	if o.Err != nil {
		r.Error = o.Err.Error()
		r.ErrorKind = testbed.KindOf(o.Err).String()
		if code, ok := testbed.ExitCodeOf(o.Err); ok {
			r.ExitCode = &code
		}
	}
	if o.Tolerated != nil {
		r.Tolerated = o.Tolerated.Error()
	}
	if o.TeardownErr != nil {
		r.Teardown = o.TeardownErr.Error()
	}
	return r
}

// Writer stores run artifacts under a root directory, one directory per
// run: <root>/<scenario>/<run id>/.
type Writer struct {
	root     string
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// NewWriter creates a Writer. A nil gatherer skips the metrics snapshot.
func NewWriter(root string, gatherer prometheus.Gatherer, logger *slog.Logger) *Writer {
	return &Writer{
		root:     root,
		gatherer: gatherer,
		logger:   logger.With(slog.String("component", "artifacts")),
	}
}

// Write stores the artifacts of a finished run when the outcome wants them
// and returns the run directory. It returns "" without writing for a fully
// successful run that does not ask to keep artifacts.
func (w *Writer) Write(o *orchestrator.Outcome, findings []stub.Finding) (string, error) {
	if o.Status == orchestrator.StatusInProgress {
		return "", fmt.Errorf("run %s: %w", o.RunID, ErrInProgress)
	}
	if !o.WantArtifacts() {
		w.logger.Debug("artifacts skipped", slog.String("run_id", o.RunID))
		return "", nil
	}

	dir := filepath.Join(w.root, dirName(o), o.RunID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create artifacts dir: %w", err)
	}

	data, err := yaml.Marshal(NewReport(o, findings))
	if err != nil {
		return "", fmt.Errorf("marshal outcome: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, OutcomeFile), data, 0o600); err != nil {
		return "", fmt.Errorf("write outcome: %w", err)
	}

	if w.gatherer != nil {
		if err := prometheus.WriteToTextfile(filepath.Join(dir, MetricsFile), w.gatherer); err != nil {
			return "", fmt.Errorf("write metrics snapshot: %w", err)
		}
	}

	w.logger.Info("artifacts written",
		slog.String("run_id", o.RunID),
		slog.String("dir", dir),
		slog.String("result", o.Result()),
	)
	return dir, nil
}

// ReadReport loads an outcome report written by Writer.
func ReadReport(dir string) (Report, error) {
	data, err := os.ReadFile(filepath.Join(dir, OutcomeFile))
	if err != nil {
		return Report{}, fmt.Errorf("read outcome: %w", err)
	}
	var r Report
	if err := yaml.Unmarshal(data, &r); err != nil {
		return Report{}, fmt.Errorf("parse outcome: %w", err)
	}
	return r, nil
}

// dirName turns a scenario ID into a single path element.
func dirName(o *orchestrator.Outcome) string {
	if o.ScenarioID == "" {
		return "adhoc"
	}
	return strings.NewReplacer("/", "_", ":", "-").Replace(o.ScenarioID)
}
