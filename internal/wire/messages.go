// Package wire defines the RPC surface between the ranping runner and the
// agents hosting testbed components: service and procedure names, request
// and response messages, the JSON codec, and ConnectRPC client and handler
// constructors for each service.
package wire

import (
	"strconv"
	"time"
)

// ExitCodeHeader carries the exit code of a component process that
// terminated abnormally. It is set on CodeAborted errors.
const ExitCodeHeader = "Ranping-Exit-Code"

// FormatExitCode renders an exit code for ExitCodeHeader.
func FormatExitCode(code int) string { return strconv.Itoa(code) }

// ParseExitCode parses an ExitCodeHeader value.
func ParseExitCode(s string) (int, bool) {
	code, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return code, true
}

// -------------------------------------------------------------------------
// Component Lifecycle
// -------------------------------------------------------------------------

// RadioConfig is the radio and scenario configuration of a component.
type RadioConfig struct {
	Band                int `json:"band"`
	CommonSCS           int `json:"common_scs"`
	BandwidthMHz        int `json:"bandwidth_mhz"`
	SampleRate          int `json:"sample_rate,omitempty"`
	GlobalTimingAdvance int `json:"global_timing_advance"`

	// TimeAlignmentCalibration is a decimal value or "auto".
	TimeAlignmentCalibration string `json:"time_alignment_calibration"`
}

// StartRequest starts one component.
type StartRequest struct {
	Component string      `json:"component"`
	Radio     RadioConfig `json:"radio"`

	// PreCommand and PostCommand wrap the gNB process. Ignored by other
	// components.
	PreCommand  string `json:"pre_command,omitempty"`
	PostCommand string `json:"post_command,omitempty"`
}

// StartResponse reports a started component.
type StartResponse struct {
	Component string    `json:"component"`
	StartedAt time.Time `json:"started_at"`
}

// StopRequest stops one component.
type StopRequest struct {
	Component string `json:"component"`

	// TimeoutMS bounds the graceful stop. Zero means the agent default.
	TimeoutMS int64 `json:"timeout_ms,omitempty"`

	// SearchLogs asks the agent to scan the component log for errors.
	SearchLogs bool `json:"search_logs,omitempty"`
}

// StopResponse reports how the component process ended.
type StopResponse struct {
	Component string `json:"component"`
	ExitCode  int    `json:"exit_code"`

	// Crashed is true when the process terminated abnormally.
	Crashed bool `json:"crashed"`

	// LogFindings are error lines found in the component log.
	LogFindings []string `json:"log_findings,omitempty"`
}

// -------------------------------------------------------------------------
// Attach and Reachability
// -------------------------------------------------------------------------

// AttachRequest waits until a started UE is attached.
type AttachRequest struct {
	Component string `json:"component"`
	TimeoutMS int64  `json:"timeout_ms,omitempty"`
}

// AttachResponse is the attach state of a UE.
type AttachResponse struct {
	Component string `json:"component"`
	Attached  bool   `json:"attached"`
	IPv4      string `json:"ipv4,omitempty"`
	IMSI      string `json:"imsi,omitempty"`
}

// PingRequest asks the EPC to send Count echo requests to a UE address.
type PingRequest struct {
	EPC     string `json:"epc"`
	UE      string `json:"ue"`
	Address string `json:"address"`
	Count   int    `json:"count"`
}

// PingResponse is the result of a ping.
type PingResponse struct {
	Transmitted int     `json:"transmitted"`
	Received    int     `json:"received"`
	AvgRTTMS    float64 `json:"avg_rtt_ms,omitempty"`
}

// LossPercent returns the packet loss in percent. A ping that transmitted
// nothing counts as full loss.
func (p *PingResponse) LossPercent() float64 {
	if p.Transmitted <= 0 {
		return 100
	}
	lost := p.Transmitted - p.Received
	if lost < 0 {
		lost = 0
	}
	return float64(lost) * 100 / float64(p.Transmitted)
}

// -------------------------------------------------------------------------
// Events
// -------------------------------------------------------------------------

// EventKind is the kind of a component event.
type EventKind string

// Component event kinds.
const (
	EventStarted  EventKind = "started"
	EventAttached EventKind = "attached"
	EventPing     EventKind = "ping"
	EventStopped  EventKind = "stopped"
	EventCrashed  EventKind = "crashed"
)

// WatchRequest subscribes to component events. An empty component list
// subscribes to all components.
type WatchRequest struct {
	Components []string `json:"components,omitempty"`

	// IncludeHistory replays the buffered past events first.
	IncludeHistory bool `json:"include_history,omitempty"`
}

// Event is one component event.
type Event struct {
	Time      time.Time `json:"time"`
	Component string    `json:"component"`
	Role      string    `json:"role"`
	Kind      EventKind `json:"kind"`
	Detail    string    `json:"detail,omitempty"`
	ExitCode  int       `json:"exit_code,omitempty"`
}
