package orchestrator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dantte-lp/ranping/internal/scenario"
	"github.com/dantte-lp/ranping/internal/testbed"
)

// Policy is the failure tolerance policy of a run.
type Policy uint8

const (
	// PolicyStrict fails the run on any error.
	PolicyStrict Policy = iota

	// PolicyCrashOnly fails the run only on process crashes, configuration
	// errors and unclassified errors. Attach, reachability and remote call
	// failures are tolerated.
	PolicyCrashOnly
)

// String returns the policy name.
func (p Policy) String() string {
	switch p {
	case PolicyStrict:
		return "strict"
	case PolicyCrashOnly:
		return "crash_only"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Policy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// ErrUnknownPolicy indicates an unrecognized policy name.
var ErrUnknownPolicy = errors.New("unknown failure policy")

// ParsePolicy maps "strict" or "crash_only" to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strict", "":
		return PolicyStrict, nil
	case "crash_only", "crash-only":
		return PolicyCrashOnly, nil
	default:
		return PolicyStrict, fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
	}
}

// PolicyFor returns the policy of a scenario category.
func PolicyFor(c scenario.Category) Policy {
	if c.CrashOnly() {
		return PolicyCrashOnly
	}
	return PolicyStrict
}

// Verdict is the result tag of a run.
type Verdict uint8

const (
	// VerdictSuccess means every step succeeded.
	VerdictSuccess Verdict = iota

	// VerdictToleratedFailure means a step failed with an error the
	// crash-only policy tolerates. The run passes.
	VerdictToleratedFailure

	// VerdictFatalFailure means the run fails.
	VerdictFatalFailure
)

// String returns the verdict name.
func (v Verdict) String() string {
	switch v {
	case VerdictSuccess:
		return "success"
	case VerdictToleratedFailure:
		return "tolerated_failure"
	case VerdictFatalFailure:
		return "fatal_failure"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (v Verdict) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// Passed reports whether the verdict passes the run.
func (v Verdict) Passed() bool { return v != VerdictFatalFailure }

// Judge classifies err under the policy. A nil error is a success.
func (p Policy) Judge(err error) Verdict {
	if err == nil {
		return VerdictSuccess
	}

	switch testbed.KindOf(err) {
	case testbed.KindAttach, testbed.KindReachability, testbed.KindRemoteCall:
		if p == PolicyCrashOnly {
			return VerdictToleratedFailure
		}
		return VerdictFatalFailure
	default:
		// Crashes, configuration errors and unclassified errors.
		return VerdictFatalFailure
	}
}
