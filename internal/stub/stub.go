// Package stub implements the testbed collaborator interfaces over
// ConnectRPC. Each component handle addresses an agent; the adapter maps
// transport failures, rejected parameters and abnormal process exits to
// the testbed error taxonomy.
package stub

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"connectrpc.com/connect"

	"github.com/dantte-lp/ranping/internal/scenario"
	"github.com/dantte-lp/ranping/internal/testbed"
	"github.com/dantte-lp/ranping/internal/wire"
)

// DefaultAttachTimeout bounds WaitUntilAttached per UE.
const DefaultAttachTimeout = 60 * time.Second

// Sentinel errors wrapped by classified testbed errors.
var (
	// ErrNotConfigured indicates a component start before Configure.
	ErrNotConfigured = errors.New("testbed not configured")

	// ErrNoAddress indicates an attached UE without a valid IPv4 address.
	ErrNoAddress = errors.New("attached ue has no ipv4 address")

	// ErrNothingToProbe indicates a probe without attached UEs.
	ErrNothingToProbe = errors.New("no attached ue to probe")

	// ErrProbeFailed indicates probe results below the probe policy.
	ErrProbeFailed = errors.New("reachability below probe policy")
)

// Compile-time interface checks.
var (
	_ testbed.Configurer        = (*Testbed)(nil)
	_ testbed.NetworkController = (*Testbed)(nil)
	_ testbed.AttachController  = (*Testbed)(nil)
	_ testbed.ReachabilityProbe = (*Testbed)(nil)
)

// ProbeReporter receives per-UE probe results.
type ProbeReporter interface {
	ObserveProbe(passed bool, transmitted, received int)
}

type noopReporter struct{}

func (noopReporter) ObserveProbe(bool, int, int) {}

// Finding is a log error reported by an agent when a component stopped.
type Finding struct {
	Component string `json:"component" yaml:"component"`
	Line      string `json:"line" yaml:"line"`
}

// Option configures optional Testbed parameters.
type Option func(*Testbed)

// WithHTTPClient sets the HTTP client used for every agent.
func WithHTTPClient(c connect.HTTPClient) Option {
	return func(t *Testbed) {
		if c != nil {
			t.httpClient = c
		}
	}
}

// WithClientOptions appends ConnectRPC client options (interceptors,
// protocol selection).
func WithClientOptions(opts ...connect.ClientOption) Option {
	return func(t *Testbed) {
		t.clientOpts = append(t.clientOpts, opts...)
	}
}

// WithAttachTimeout bounds the attach wait per UE. Zero keeps the default.
func WithAttachTimeout(d time.Duration) Option {
	return func(t *Testbed) {
		if d > 0 {
			t.attachTimeout = d
		}
	}
}

// WithProbePolicy sets how per-UE probe results are aggregated.
func WithProbePolicy(p ProbePolicy) Option {
	return func(t *Testbed) {
		t.probe = p
	}
}

// WithProbeReporter sets the per-UE probe result reporter.
func WithProbeReporter(r ProbeReporter) Option {
	return func(t *Testbed) {
		if r != nil {
			t.reporter = r
		}
	}
}

// Testbed drives remote components through their agents. Safe for
// concurrent use; runs that share a Testbed share its configuration, so
// concurrent runs need one Testbed each.
type Testbed struct {
	logger        *slog.Logger
	httpClient    connect.HTTPClient
	clientOpts    []connect.ClientOption
	attachTimeout time.Duration
	probe         ProbePolicy
	reporter      ProbeReporter

	mu        sync.Mutex
	params    *scenario.Parameters
	artifacts testbed.ArtifactPolicy
	findings  []Finding

	gnbClients map[string]wire.GNBServiceClient
	ueClients  map[string]wire.UEServiceClient
	epcClients map[string]wire.EPCServiceClient
}

// New creates a Testbed adapter.
func New(logger *slog.Logger, opts ...Option) *Testbed {
	t := &Testbed{
		logger:        logger.With(slog.String("component", "stub")),
		httpClient:    http.DefaultClient,
		attachTimeout: DefaultAttachTimeout,
		probe:         DefaultProbePolicy(),
		reporter:      noopReporter{},
		gnbClients:    make(map[string]wire.GNBServiceClient),
		ueClients:     make(map[string]wire.UEServiceClient),
		epcClients:    make(map[string]wire.EPCServiceClient),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Findings returns the log findings collected from stopped components.
func (t *Testbed) Findings() []Finding {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Finding(nil), t.findings...)
}

func (t *Testbed) gnb(h testbed.Handle) wire.GNBServiceClient {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.gnbClients[h.Addr]
	if !ok {
		c = wire.NewGNBServiceClient(t.httpClient, h.Addr, t.clientOpts...)
		t.gnbClients[h.Addr] = c
	}
	return c
}

func (t *Testbed) ue(h testbed.Handle) wire.UEServiceClient {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.ueClients[h.Addr]
	if !ok {
		c = wire.NewUEServiceClient(t.httpClient, h.Addr, t.clientOpts...)
		t.ueClients[h.Addr] = c
	}
	return c
}

func (t *Testbed) epc(h testbed.Handle) wire.EPCServiceClient {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.epcClients[h.Addr]
	if !ok {
		c = wire.NewEPCServiceClient(t.httpClient, h.Addr, t.clientOpts...)
		t.epcClients[h.Addr] = c
	}
	return c
}

// -------------------------------------------------------------------------
// Error Mapping
// -------------------------------------------------------------------------

// classify maps an RPC error to the testbed taxonomy: rejected arguments
// are configuration errors, aborted calls carrying an exit code are
// process crashes, everything else is a remote call failure.
func classify(op string, h testbed.Handle, err error) error {
	var cerr *connect.Error
	if errors.As(err, &cerr) {
		switch cerr.Code() { //nolint:exhaustive // remaining codes are remote call failures.
		case connect.CodeInvalidArgument:
			return testbed.NewError(testbed.KindConfiguration, op, h.Name, err)
		case connect.CodeAborted:
			if code, ok := wire.ParseExitCode(cerr.Meta().Get(wire.ExitCodeHeader)); ok {
				return testbed.Crash(op, h.Name, code, err)
			}
		}
	}
	return testbed.NewError(testbed.KindRemoteCall, op, h.Name, err)
}

// stopResult maps a stop response to a crash error and records log
// findings.
func (t *Testbed) stopResult(h testbed.Handle, resp *wire.StopResponse) error {
	if len(resp.LogFindings) > 0 {
		t.mu.Lock()
		for _, line := range resp.LogFindings {
			t.findings = append(t.findings, Finding{Component: h.Name, Line: line})
		}
		t.mu.Unlock()
	}
	if resp.Crashed || resp.ExitCode != 0 {
		return testbed.Crash("stop", h.Name, resp.ExitCode, nil)
	}
	return nil
}

// radioConfig converts scenario parameters to the wire radio configuration.
func radioConfig(p scenario.Parameters) wire.RadioConfig {
	return wire.RadioConfig{
		Band:                     p.Band,
		CommonSCS:                p.CommonSCS,
		BandwidthMHz:             p.BandwidthMHz,
		SampleRate:               p.SampleRate,
		GlobalTimingAdvance:      p.GlobalTimingAdvance,
		TimeAlignmentCalibration: p.TimeAlignmentCalibration.String(),
	}
}

func (t *Testbed) radio() (wire.RadioConfig, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.params == nil {
		return wire.RadioConfig{}, testbed.NewError(testbed.KindConfiguration, "start", "", ErrNotConfigured)
	}
	return radioConfig(*t.params), nil
}

func (t *Testbed) searchLogs() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.artifacts.LogSearch
}

func fmtHandle(h testbed.Handle) string {
	return fmt.Sprintf("%s@%s", h.Name, h.Addr)
}
