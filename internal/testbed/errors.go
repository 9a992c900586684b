package testbed

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a collaborator failure. The failure tolerance policy
// decides from the kind alone whether a failure fails the run.
type Kind uint8

const (
	// KindUnknown is an error that carries no classification.
	KindUnknown Kind = iota

	// KindConfiguration is an invalid or unsupported parameter combination.
	KindConfiguration

	// KindAttach is a UE that did not attach.
	KindAttach

	// KindReachability is a UE whose probes did not reach the core.
	KindReachability

	// KindRemoteCall is a transport-level failure talking to a component.
	KindRemoteCall

	// KindProcessCrash is a component that terminated abnormally.
	KindProcessCrash
)

// String returns the human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindUnknown:
		return "unknown"
	case KindConfiguration:
		return "configuration"
	case KindAttach:
		return "attach"
	case KindReachability:
		return "reachability"
	case KindRemoteCall:
		return "remote_call"
	case KindProcessCrash:
		return "process_crash"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// severity orders kinds when several failures are joined. A crash always
// dominates.
func (k Kind) severity() int {
	switch k {
	case KindProcessCrash:
		return 5
	case KindConfiguration:
		return 4
	case KindRemoteCall:
		return 3
	case KindAttach:
		return 2
	case KindReachability:
		return 1
	default:
		return 0
	}
}

// Sentinel errors matched through errors.Is against any *Error of the kind.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrAttach        = errors.New("attach failure")
	ErrReachability  = errors.New("reachability failure")
	ErrRemoteCall    = errors.New("remote call failure")
	ErrProcessCrash  = errors.New("process crash")
)

func (k Kind) sentinel() error {
	switch k {
	case KindConfiguration:
		return ErrConfiguration
	case KindAttach:
		return ErrAttach
	case KindReachability:
		return ErrReachability
	case KindRemoteCall:
		return ErrRemoteCall
	case KindProcessCrash:
		return ErrProcessCrash
	default:
		return nil
	}
}

// Error is a classified collaborator failure.
type Error struct {
	// Kind is the failure class.
	Kind Kind

	// Op is the collaborator operation that failed (e.g., "attach").
	Op string

	// Component names the failing component, if known.
	Component string

	// ExitCode is the exit code of a crashed process. Zero otherwise.
	ExitCode int

	// Err is the underlying cause.
	Err error
}

// NewError returns a classified error.
func NewError(kind Kind, op, component string, err error) *Error {
	return &Error{Kind: kind, Op: op, Component: component, Err: err}
}

// Crash returns a KindProcessCrash error for a component that exited with
// exitCode.
func Crash(op, component string, exitCode int, err error) *Error {
	return &Error{Kind: KindProcessCrash, Op: op, Component: component, ExitCode: exitCode, Err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Component != "" {
		b.WriteString(" ")
		b.WriteString(e.Component)
	}
	b.WriteString(": ")
	if s := e.Kind.sentinel(); s != nil {
		b.WriteString(s.Error())
	} else {
		b.WriteString("error")
	}
	if e.Kind == KindProcessCrash && e.ExitCode != 0 {
		fmt.Fprintf(&b, " (exit code %d)", e.ExitCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel of the error kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// KindOf returns the most severe kind found anywhere in the error tree of
// err. Joined errors are all inspected. Returns KindUnknown for nil or
// unclassified errors.
func KindOf(err error) Kind {
	best := KindUnknown
	walk(err, func(e error) {
		te, ok := e.(*Error) //nolint:errorlint // walk visits every node.
		if ok && te.Kind.severity() > best.severity() {
			best = te.Kind
		}
	})
	return best
}

// IsCrash reports whether err contains a process crash.
func IsCrash(err error) bool {
	return errors.Is(err, ErrProcessCrash)
}

// ExitCodeOf returns the exit code of the first crash in err, if any.
func ExitCodeOf(err error) (int, bool) {
	code, found := 0, false
	walk(err, func(e error) {
		if found {
			return
		}
		if te, ok := e.(*Error); ok && te.Kind == KindProcessCrash { //nolint:errorlint // walk visits every node.
			code, found = te.ExitCode, true
		}
	})
	return code, found
}

// walk visits err and every error it wraps, depth first.
func walk(err error, fn func(error)) {
	if err == nil {
		return
	}
	fn(err)
	switch u := err.(type) { //nolint:errorlint // unwrapping by hand.
	case interface{ Unwrap() error }:
		walk(u.Unwrap(), fn)
	case interface{ Unwrap() []error }:
		for _, e := range u.Unwrap() {
			walk(e, fn)
		}
	}
}
