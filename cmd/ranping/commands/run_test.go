package commands

import (
	"errors"
	"testing"

	"github.com/dantte-lp/ranping/internal/orchestrator"
	"github.com/dantte-lp/ranping/internal/scenario"
)

func TestBuildFilter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		ids        []string
		categories []string
		marks      []string
		wantCount  int
		wantErr    error
	}{
		{name: "nothing selected", wantErr: errNoSelection},
		{name: "unknown id", ids: []string{"zmq/band:99"}, wantErr: errUnknownScenario},
		{name: "unknown category", categories: []string{"lte"}, wantErr: scenario.ErrUnknownCategory},
		{name: "smoke mark", marks: []string{scenario.MarkSmoke}, wantCount: 1},
		{name: "zmq category", categories: []string{"ZMQ"}, wantCount: 7},
		{name: "reattach mark", marks: []string{scenario.MarkReattach}, wantCount: 2},
		{
			name:      "single id",
			ids:       []string{"rf/band:41-scs:30-bandwidth:10"},
			wantCount: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f, err := buildFilter(tt.ids, tt.categories, tt.marks)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("buildFilter error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("buildFilter: %v", err)
			}
			if got := len(scenario.Select(f)); got != tt.wantCount {
				t.Errorf("selected %d scenarios, want %d", got, tt.wantCount)
			}
		})
	}
}

func TestAdhocFlagsParams(t *testing.T) {
	t.Parallel()

	f := adhocFlags{
		band:          78,
		scs:           30,
		bandwidth:     20,
		timeAlignment: "auto",
		reattach:      2,
		pingCount:     5,
		policy:        "crash-only",
	}

	p, policy, err := f.params()
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	if policy != orchestrator.PolicyCrashOnly {
		t.Errorf("policy = %v, want %v", policy, orchestrator.PolicyCrashOnly)
	}
	if !p.TimeAlignmentCalibration.IsAuto() {
		t.Error("TimeAlignmentCalibration is not auto")
	}
	if p.Band != 78 || p.ReattachCount != 2 || p.PingCount != 5 {
		t.Errorf("params = %+v", p)
	}
}

func TestAdhocFlagsErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		flags   adhocFlags
		wantErr error
	}{
		{name: "empty policy", flags: adhocFlags{timeAlignment: "0"}, wantErr: errEmptyPolicy},
		{
			name:    "unknown policy",
			flags:   adhocFlags{timeAlignment: "0", policy: "lenient"},
			wantErr: orchestrator.ErrUnknownPolicy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if _, _, err := tt.flags.params(); !errors.Is(err, tt.wantErr) {
				t.Errorf("params error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if _, _, err := (adhocFlags{timeAlignment: "soon", policy: "strict"}).params(); err == nil {
		t.Error("params with invalid time alignment: error = nil")
	}
}
