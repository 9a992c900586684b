package orchestrator

import (
	"errors"
	"testing"
	"time"

	"github.com/dantte-lp/ranping/internal/scenario"
)

func TestOutcomeFinalizedOnce(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	o := newOutcome("run", "zmq/x", scenario.CategoryZMQ, PolicyStrict, scenario.Parameters{}, start)

	if o.Status != StatusInProgress || o.Result() != "in_progress" {
		t.Fatalf("new outcome status = %v, result %q, want in_progress", o.Status, o.Result())
	}
	if o.Duration() != 0 {
		t.Errorf("Duration() = %v while in progress, want 0", o.Duration())
	}

	cause := errors.New("boom")
	if !o.finalize(VerdictFatalFailure, cause, start.Add(time.Minute)) {
		t.Fatal("first finalize returned false")
	}
	if o.finalize(VerdictSuccess, nil, start.Add(2*time.Minute)) {
		t.Error("second finalize returned true")
	}

	if o.Status != StatusFailed || o.Verdict != VerdictFatalFailure {
		t.Errorf("Status/Verdict = %v/%v, want failed/fatal_failure", o.Status, o.Verdict)
	}
	if !errors.Is(o.Err, cause) {
		t.Errorf("Err = %v, want %v", o.Err, cause)
	}
	if o.Duration() != time.Minute {
		t.Errorf("Duration() = %v, want %v", o.Duration(), time.Minute)
	}
}
