// Package commands implements the ranping CLI commands.
package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dantte-lp/ranping/internal/artifacts"
	"github.com/dantte-lp/ranping/internal/orchestrator"
	"github.com/dantte-lp/ranping/internal/runner"
	"github.com/dantte-lp/ranping/internal/scenario"
	"github.com/dantte-lp/ranping/internal/wire"
)

const (
	formatJSON  = "json"
	formatTable = "table"
	valueNA     = "N/A"
)

// errUnsupportedFormat is returned when the requested output format is not supported.
var errUnsupportedFormat = errors.New("unsupported output format")

// formatResult renders the outcome of one run in the requested format.
func formatResult(res *runner.Result, format string) (string, error) {
	switch format {
	case formatJSON:
		return formatResultJSON(res)
	case formatTable:
		return formatResultDetail(res)
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

// formatScenarios renders scenario table entries in the requested format.
func formatScenarios(scenarios []scenario.Scenario, format string) (string, error) {
	switch format {
	case formatJSON:
		return formatScenariosJSON(scenarios)
	case formatTable:
		return formatScenariosTable(scenarios)
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

// formatEvent renders a component event in the requested format.
func formatEvent(event *wire.Event, format string) (string, error) {
	switch format {
	case formatJSON:
		return formatEventJSON(event)
	case formatTable:
		return formatEventTable(event), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

// --- Table formatters ---

func formatResultDetail(res *runner.Result) (string, error) {
	r := artifacts.NewReport(res.Outcome, res.Findings)

	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	name := r.Scenario
	if name == "" {
		name = "adhoc"
	}
	fmt.Fprintf(w, "Scenario:\t%s\n", name)
	fmt.Fprintf(w, "Run ID:\t%s\n", r.RunID)
	fmt.Fprintf(w, "Policy:\t%s\n", r.Policy)
	fmt.Fprintf(w, "Result:\t%s\n", r.Result)
	fmt.Fprintf(w, "Phase:\t%s\n", r.Phase)
	fmt.Fprintf(w, "Cycles:\t%d\n", r.Cycles)
	fmt.Fprintf(w, "Duration:\t%s\n", r.Duration.Round(time.Millisecond))

	if r.Error != "" {
		fmt.Fprintf(w, "Error:\t%s\n", r.Error)
		fmt.Fprintf(w, "Error Kind:\t%s\n", r.ErrorKind)
	}
	if r.ExitCode != nil {
		fmt.Fprintf(w, "Exit Code:\t%d\n", *r.ExitCode)
	}
	if r.Tolerated != "" {
		fmt.Fprintf(w, "Tolerated:\t%s\n", r.Tolerated)
	}
	if r.Teardown != "" {
		fmt.Fprintf(w, "Teardown:\t%s\n", r.Teardown)
	}
	for _, warning := range r.Warnings {
		fmt.Fprintf(w, "Warning:\t%s\n", warning)
	}
	for _, f := range r.Findings {
		fmt.Fprintf(w, "Finding:\t%s: %s\n", f.Component, f.Line)
	}

	artifactsDir := res.ArtifactsDir
	if artifactsDir == "" {
		artifactsDir = valueNA
	}
	fmt.Fprintf(w, "Artifacts:\t%s\n", artifactsDir)

	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("flush tabwriter: %w", err)
	}

	return buf.String(), nil
}

// formatSummary renders one line per run after a multi-scenario run.
func formatSummary(results []*runner.Result) (string, error) {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SCENARIO\tRESULT\tCYCLES\tDURATION")

	for _, res := range results {
		o := res.Outcome
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
			o.ScenarioID,
			o.Result(),
			o.Cycles,
			o.Duration().Round(time.Millisecond),
		)
	}

	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("flush tabwriter: %w", err)
	}

	return buf.String(), nil
}

func formatScenariosTable(scenarios []scenario.Scenario) (string, error) {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCATEGORY\tPOLICY\tUES\tRADIO\tREATTACH\tMARKS")

	for _, s := range scenarios {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%d\t%s\n",
			s.ID,
			s.Category,
			orchestrator.PolicyFor(s.Category).String(),
			s.Category.UECount(),
			s.Category.Radio(),
			s.Params.ReattachCount,
			strings.Join(s.Marks, ","),
		)
	}

	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("flush tabwriter: %w", err)
	}

	return buf.String(), nil
}

func formatEventTable(event *wire.Event) string {
	ts := valueNA
	if !event.Time.IsZero() {
		ts = event.Time.Format(time.RFC3339)
	}

	line := fmt.Sprintf("[%s] %s  component=%s  role=%s",
		ts,
		event.Kind,
		event.Component,
		event.Role,
	)
	if event.Detail != "" {
		line += "  detail=" + event.Detail
	}
	if event.ExitCode != 0 {
		line += fmt.Sprintf("  exit_code=%d", event.ExitCode)
	}

	return line
}

// --- JSON formatters ---

func formatResultJSON(res *runner.Result) (string, error) {
	data, err := json.MarshalIndent(resultView{
		Report:       artifacts.NewReport(res.Outcome, res.Findings),
		ArtifactsDir: res.ArtifactsDir,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal outcome to JSON: %w", err)
	}

	return string(data), nil
}

func formatScenariosJSON(scenarios []scenario.Scenario) (string, error) {
	views := make([]scenarioView, 0, len(scenarios))
	for _, s := range scenarios {
		views = append(views, scenarioView{
			ID:       s.ID,
			Category: string(s.Category),
			Policy:   orchestrator.PolicyFor(s.Category).String(),
			UEs:      s.Category.UECount(),
			Radio:    s.Category.Radio().String(),
			Marks:    s.Marks,
			Params:   s.Params,
		})
	}

	data, err := json.MarshalIndent(views, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal scenarios to JSON: %w", err)
	}

	return string(data) + "\n", nil
}

func formatEventJSON(event *wire.Event) (string, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal event to JSON: %w", err)
	}

	return string(data), nil
}

// --- View types for clean JSON output ---

type resultView struct {
	artifacts.Report

	ArtifactsDir string `json:"artifacts_dir,omitempty"`
}

type scenarioView struct {
	ID       string              `json:"id"`
	Category string              `json:"category"`
	Policy   string              `json:"policy"`
	UEs      int                 `json:"ues"`
	Radio    string              `json:"radio"`
	Marks    []string            `json:"marks"`
	Params   scenario.Parameters `json:"params"`
}
