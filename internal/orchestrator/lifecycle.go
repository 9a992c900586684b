package orchestrator

import (
	"errors"
	"fmt"
)

// -------------------------------------------------------------------------
// Lifecycle Phases and Events
// -------------------------------------------------------------------------

// Phase is the lifecycle phase of a run.
type Phase uint8

const (
	// PhaseIdle is the phase before any collaborator was called.
	PhaseIdle Phase = iota

	// PhaseConfigured means parameters and artifact policy were applied.
	PhaseConfigured

	// PhaseNetworkUp means the EPC and gNB are running.
	PhaseNetworkUp

	// PhaseAttached means every UE attached in the current cycle.
	PhaseAttached

	// PhaseReachable means every UE passed the reachability probe in the
	// current cycle.
	PhaseReachable

	// PhaseUEsStopped means the UEs were stopped between cycles.
	PhaseUEsStopped

	// PhaseTornDown means the full topology was stopped. Terminal.
	PhaseTornDown

	// PhaseAborted means the run ended before any component was started.
	// Terminal.
	PhaseAborted
)

// String returns the human-readable phase name.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "Idle"
	case PhaseConfigured:
		return "Configured"
	case PhaseNetworkUp:
		return "NetworkUp"
	case PhaseAttached:
		return "Attached"
	case PhaseReachable:
		return "Reachable"
	case PhaseUEsStopped:
		return "UEsStopped"
	case PhaseTornDown:
		return "TornDown"
	case PhaseAborted:
		return "Aborted"
	default:
		return "Unknown"
	}
}

// Event is a completed lifecycle step.
type Event uint8

const (
	// EventConfigured fires after Configure and ConfigureArtifacts.
	EventConfigured Event = iota + 1

	// EventNetworkStarted fires after StartNetwork succeeds.
	EventNetworkStarted

	// EventAttached fires after AttachAndStart succeeds.
	EventAttached

	// EventProbed fires after Probe succeeds.
	EventProbed

	// EventUEsStopped fires after StopUEs between cycles.
	EventUEsStopped

	// EventTornDown fires after StopAll, whatever its result.
	EventTornDown

	// EventAborted fires when the run ends before the network was started.
	EventAborted
)

// String returns the human-readable event name.
func (e Event) String() string {
	switch e {
	case EventConfigured:
		return "Configured"
	case EventNetworkStarted:
		return "NetworkStarted"
	case EventAttached:
		return "Attached"
	case EventProbed:
		return "Probed"
	case EventUEsStopped:
		return "UEsStopped"
	case EventTornDown:
		return "TornDown"
	case EventAborted:
		return "Aborted"
	default:
		return "Unknown"
	}
}

// -------------------------------------------------------------------------
// Transition Table
// -------------------------------------------------------------------------

// ErrIllegalTransition indicates a step executed out of lifecycle order.
// It is an internal error and always fails the run.
var ErrIllegalTransition = errors.New("illegal lifecycle transition")

type phaseEvent struct {
	phase Phase
	event Event
}

// lifecycleTable is the complete set of legal transitions. A probe is only
// legal right after an attach of the same cycle, so attach results can
// never cross a reattach boundary. Teardown is legal from every phase
// reached after configuration, including a failed network start.
//
//nolint:gochecknoglobals // transition table is a package-level constant.
var lifecycleTable = map[phaseEvent]Phase{
	{PhaseIdle, EventConfigured}: PhaseConfigured,
	{PhaseIdle, EventAborted}:    PhaseAborted,

	{PhaseConfigured, EventNetworkStarted}: PhaseNetworkUp,
	{PhaseNetworkUp, EventAttached}:        PhaseAttached,
	{PhaseAttached, EventProbed}:           PhaseReachable,
	{PhaseReachable, EventUEsStopped}:      PhaseUEsStopped,
	{PhaseUEsStopped, EventAttached}:       PhaseAttached,

	{PhaseConfigured, EventTornDown}: PhaseTornDown,
	{PhaseNetworkUp, EventTornDown}:  PhaseTornDown,
	{PhaseAttached, EventTornDown}:   PhaseTornDown,
	{PhaseReachable, EventTornDown}:  PhaseTornDown,
	{PhaseUEsStopped, EventTornDown}: PhaseTornDown,
}

// ApplyEvent returns the phase reached by applying event in phase. It is a
// pure function with no side effects.
func ApplyEvent(phase Phase, event Event) (Phase, error) {
	next, ok := lifecycleTable[phaseEvent{phase: phase, event: event}]
	if !ok {
		return phase, fmt.Errorf("%s + %s: %w", phase, event, ErrIllegalTransition)
	}
	return next, nil
}
