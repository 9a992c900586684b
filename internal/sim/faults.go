package sim

import (
	"errors"
	"fmt"
)

// DefaultCrashExitCode is the exit code reported for an injected crash when
// none is configured (SIGSEGV).
const DefaultCrashExitCode = 139

// Faults selects the failures the simulated testbed injects. Cycles count
// UE starts, beginning at 1. Zero disables a fault.
type Faults struct {
	// FailAttachCycle makes UEs stay detached in the given cycle.
	FailAttachCycle int

	// FailAttachUE limits FailAttachCycle to one UE. Empty means all UEs.
	FailAttachUE string

	// FailPingCycle drops every echo request in the given cycle.
	FailPingCycle int

	// CrashComponent names the component that terminates abnormally when
	// it is stopped.
	CrashComponent string

	// CrashCycle is the UE cycle from which the component crashes. A UE
	// counts its own starts; the gNB and EPC count the furthest UE cycle
	// reached.
	CrashCycle int

	// CrashInRun makes the component die during the first call that needs
	// it in CrashCycle instead of at stop. UEs and the gNB die on attach,
	// the EPC on ping.
	CrashInRun bool

	// CrashExitCode is the reported exit code. Zero means
	// DefaultCrashExitCode.
	CrashExitCode int
}

// ErrInvalidFaults indicates negative fault cycles.
var ErrInvalidFaults = errors.New("fault cycles must be >= 0")

// Validate checks the fault configuration.
func (f Faults) Validate() error {
	if f.FailAttachCycle < 0 || f.FailPingCycle < 0 || f.CrashCycle < 0 {
		return fmt.Errorf("attach %d ping %d crash %d: %w",
			f.FailAttachCycle, f.FailPingCycle, f.CrashCycle, ErrInvalidFaults)
	}
	return nil
}

// exitCode returns the configured crash exit code.
func (f Faults) exitCode() int {
	if f.CrashExitCode == 0 {
		return DefaultCrashExitCode
	}
	return f.CrashExitCode
}

func (f Faults) attachFails(ue string, cycle int) bool {
	return f.FailAttachCycle != 0 && f.FailAttachCycle == cycle &&
		(f.FailAttachUE == "" || f.FailAttachUE == ue)
}

func (f Faults) pingFails(cycle int) bool {
	return f.FailPingCycle != 0 && f.FailPingCycle == cycle
}

// crashes reports whether the named component crashes in the given cycle.
func (f Faults) crashes(name string, cycle int) bool {
	if f.CrashComponent == "" || f.CrashComponent != name {
		return false
	}
	return cycle >= f.CrashCycle
}

// ErrCrashed matches every CrashError.
var ErrCrashed = errors.New("component crashed")

// CrashError reports a component that terminated abnormally while a call
// depended on it.
type CrashError struct {
	Component string
	ExitCode  int
}

func (e *CrashError) Error() string {
	return fmt.Sprintf("%s terminated abnormally with exit code %d", e.Component, e.ExitCode)
}

// Is reports whether target is ErrCrashed.
func (e *CrashError) Is(target error) bool {
	return target == ErrCrashed
}
