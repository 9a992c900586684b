// Package sim implements simulated testbed components: a gNB, an EPC and a
// set of UEs over a simulated radio link. Components keep process state
// (running, attached, crashed) in memory and publish lifecycle events.
// Failures are injected through Faults, which can be replaced at runtime.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"sync"
	"time"

	"github.com/dantte-lp/ranping/internal/scenario"
	"github.com/dantte-lp/ranping/internal/testbed"
	"github.com/dantte-lp/ranping/internal/wire"
)

// Sentinel errors returned by Testbed operations.
var (
	// ErrUnknownComponent indicates a component name not hosted here.
	ErrUnknownComponent = errors.New("unknown component")

	// ErrWrongRole indicates an operation on a component of another role.
	ErrWrongRole = errors.New("component has a different role")

	// ErrAlreadyRunning indicates a start of a running component.
	ErrAlreadyRunning = errors.New("component already running")

	// ErrNotRunning indicates an operation that needs a running component.
	ErrNotRunning = errors.New("component not running")

	// ErrNetworkDown indicates a UE start while the EPC or gNB is down.
	ErrNetworkDown = errors.New("epc and gnb must be running")

	// ErrInvalidRadio indicates an unsupported radio configuration.
	ErrInvalidRadio = errors.New("invalid radio configuration")

	// ErrNotAttached indicates a ping to a UE that is not attached.
	ErrNotAttached = errors.New("ue not attached")

	// ErrAddressMismatch indicates a ping address not assigned to the UE.
	ErrAddressMismatch = errors.New("address not assigned to ue")
)

// ueSubnet is the base of the addresses assigned to attached UEs.
//
//nolint:gochecknoglobals // constant address.
var ueSubnet = netip.MustParseAddr("10.45.0.0")

// MetricsReporter receives component lifecycle measurements.
type MetricsReporter interface {
	ComponentStarted(role string)
	ComponentCrashed(role string)
	AttachCompleted(attached bool)
}

type noopMetrics struct{}

func (noopMetrics) ComponentStarted(string) {}
func (noopMetrics) ComponentCrashed(string) {}
func (noopMetrics) AttachCompleted(bool)    {}

// Config describes the hosted components.
type Config struct {
	GNB string
	EPC string
	UEs []string

	// AttachDelay is how long a UE takes to attach.
	AttachDelay time.Duration

	Faults Faults
}

// Option configures optional Testbed parameters.
type Option func(*Testbed)

// WithMetrics sets the metrics reporter.
func WithMetrics(mr MetricsReporter) Option {
	return func(t *Testbed) {
		if mr != nil {
			t.metrics = mr
		}
	}
}

// WithClock replaces time.Now for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(t *Testbed) {
		if now != nil {
			t.now = now
		}
	}
}

// component is the process state of one simulated component.
type component struct {
	name  string
	role  testbed.Role
	index int

	running  bool
	attached bool
	starts   int
	exitCode int // nonzero after a crash during a run, until restarted
	addr     netip.Addr
	radio    wire.RadioConfig
	pre      string
}

// StopResult reports how a stopped component ended.
type StopResult struct {
	ExitCode int
	Crashed  bool
	Findings []string
}

// AttachResult is the attach state of a UE.
type AttachResult struct {
	Attached bool
	Addr     netip.Addr
	IMSI     string
}

// PingResult is the outcome of a simulated ping.
type PingResult struct {
	Transmitted int
	Received    int
	AvgRTT      time.Duration
}

// Testbed hosts simulated components. Safe for concurrent use.
type Testbed struct {
	mu          sync.Mutex
	components  map[string]*component
	faults      Faults
	attachDelay time.Duration

	events  *eventHub
	metrics MetricsReporter
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a Testbed hosting the components in cfg.
func New(cfg Config, logger *slog.Logger, opts ...Option) (*Testbed, error) {
	if err := cfg.Faults.Validate(); err != nil {
		return nil, err
	}

	logger = logger.With(slog.String("component", "sim"))
	t := &Testbed{
		components:  make(map[string]*component, len(cfg.UEs)+2),
		faults:      cfg.Faults,
		attachDelay: cfg.AttachDelay,
		events:      newEventHub(logger),
		metrics:     noopMetrics{},
		logger:      logger,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}

	add := func(name string, role testbed.Role, index int) error {
		if name == "" {
			return fmt.Errorf("%s: %w", role, ErrUnknownComponent)
		}
		if _, dup := t.components[name]; dup {
			return fmt.Errorf("%q: %w", name, testbed.ErrDuplicateName)
		}
		t.components[name] = &component{name: name, role: role, index: index}
		return nil
	}
	if err := add(cfg.EPC, testbed.RoleEPC, 0); err != nil {
		return nil, err
	}
	if err := add(cfg.GNB, testbed.RoleGNB, 0); err != nil {
		return nil, err
	}
	for i, ue := range cfg.UEs {
		if err := add(ue, testbed.RoleUE, i); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// SetFaults replaces the injected faults. Running components keep their
// state.
func (t *Testbed) SetFaults(f Faults) error {
	if err := f.Validate(); err != nil {
		return err
	}
	t.mu.Lock()
	t.faults = f
	t.mu.Unlock()
	t.logger.Info("faults updated",
		slog.Int("fail_attach_cycle", f.FailAttachCycle),
		slog.Int("fail_ping_cycle", f.FailPingCycle),
		slog.String("crash_component", f.CrashComponent),
		slog.Int("crash_cycle", f.CrashCycle),
		slog.Bool("crash_in_run", f.CrashInRun),
	)
	return nil
}

// lookup returns the named component of the given role. Caller holds t.mu.
func (t *Testbed) lookup(name string, role testbed.Role) (*component, error) {
	c, ok := t.components[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrUnknownComponent)
	}
	if c.role != role {
		return nil, fmt.Errorf("%q is %s, not %s: %w", name, c.role, role, ErrWrongRole)
	}
	return c, nil
}

func (t *Testbed) publish(c *component, kind wire.EventKind, detail string, exitCode int) {
	t.events.publish(wire.Event{
		Time:      t.now(),
		Component: c.name,
		Role:      string(c.role),
		Kind:      kind,
		Detail:    detail,
		ExitCode:  exitCode,
	})
}

// -------------------------------------------------------------------------
// Lifecycle
// -------------------------------------------------------------------------

// Start starts a component with the given radio configuration. UEs can
// only start while the EPC and gNB are running.
func (t *Testbed) Start(role testbed.Role, name string, radio wire.RadioConfig, preCommand string) error {
	if err := ValidateRadio(radio); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	c, err := t.lookup(name, role)
	if err != nil {
		return err
	}
	if c.running {
		return fmt.Errorf("%q: %w", name, ErrAlreadyRunning)
	}
	if role == testbed.RoleUE && !t.networkUpLocked() {
		return fmt.Errorf("start %q: %w", name, ErrNetworkDown)
	}

	c.running = true
	c.attached = false
	c.exitCode = 0
	c.starts++
	c.radio = radio
	c.pre = preCommand

	t.metrics.ComponentStarted(string(role))
	t.logger.Info("component started",
		slog.String("name", name),
		slog.String("role", string(role)),
		slog.Int("start", c.starts),
		slog.Int("band", radio.Band),
	)
	t.publish(c, wire.EventStarted, fmt.Sprintf("band %d scs %d bw %d", radio.Band, radio.CommonSCS, radio.BandwidthMHz), 0)
	return nil
}

func (t *Testbed) networkUpLocked() bool {
	var epc, gnb bool
	for _, c := range t.components {
		switch c.role {
		case testbed.RoleEPC:
			epc = c.running
		case testbed.RoleGNB:
			gnb = c.running
		case testbed.RoleUE:
		}
	}
	return epc && gnb
}

// Stop stops a component. Stopping a component that is not running is a
// no-op with a clean result. An injected crash is reported once, with its
// exit code and a log finding when searchLogs is set.
func (t *Testbed) Stop(role testbed.Role, name string, searchLogs bool) (StopResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, err := t.lookup(name, role)
	if err != nil {
		return StopResult{}, err
	}
	if !c.running {
		return StopResult{}, nil
	}

	c.running = false
	c.attached = false
	c.addr = netip.Addr{}

	cycle := c.starts
	if role != testbed.RoleUE {
		cycle = t.ueCycleLocked()
	}
	if t.faults.CrashInRun || !t.faults.crashes(name, cycle) {
		t.publish(c, wire.EventStopped, "", 0)
		return StopResult{}, nil
	}

	res := StopResult{ExitCode: t.faults.exitCode(), Crashed: true}
	if searchLogs {
		res.Findings = []string{fmt.Sprintf("%s: terminated abnormally with exit code %d", name, res.ExitCode)}
	}
	t.reportCrashLocked(c, res.ExitCode)
	return res, nil
}

func (t *Testbed) reportCrashLocked(c *component, exitCode int) {
	t.metrics.ComponentCrashed(string(c.role))
	t.logger.Warn("component crashed",
		slog.String("name", c.name),
		slog.String("role", string(c.role)),
		slog.Int("exit_code", exitCode),
	)
	t.publish(c, wire.EventCrashed, fmt.Sprintf("exit code %d", exitCode), exitCode)
}

// ueCycleLocked returns the furthest UE cycle reached.
func (t *Testbed) ueCycleLocked() int {
	var cycle int
	for _, c := range t.components {
		if c.role == testbed.RoleUE {
			cycle = max(cycle, c.starts)
		}
	}
	return cycle
}

func (t *Testbed) roleLocked(role testbed.Role) *component {
	for _, c := range t.components {
		if c.role == role {
			return c
		}
	}
	return nil
}

// crashDuringLocked fails a call that depends on cs in the given cycle. A
// component that already died in this run reports its crash again; a
// running one with a pending in-run crash dies now.
func (t *Testbed) crashDuringLocked(cycle int, cs ...*component) error {
	for _, c := range cs {
		if c == nil {
			continue
		}
		if c.exitCode != 0 {
			return &CrashError{Component: c.name, ExitCode: c.exitCode}
		}
		if !c.running || !t.faults.CrashInRun || !t.faults.crashes(c.name, cycle) {
			continue
		}

		c.running = false
		c.attached = false
		c.addr = netip.Addr{}
		c.exitCode = t.faults.exitCode()
		t.reportCrashLocked(c, c.exitCode)
		return &CrashError{Component: c.name, ExitCode: c.exitCode}
	}
	return nil
}

// WaitUntilAttached waits for a started UE to attach. A UE with an injected
// attach failure returns a result with Attached false.
func (t *Testbed) WaitUntilAttached(ctx context.Context, name string) (AttachResult, error) {
	t.mu.Lock()
	delay := t.attachDelay
	t.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return AttachResult{}, ctx.Err()
		case <-timer.C:
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	c, err := t.lookup(name, testbed.RoleUE)
	if err != nil {
		return AttachResult{}, err
	}
	if err := t.crashDuringLocked(c.starts, c, t.roleLocked(testbed.RoleGNB)); err != nil {
		return AttachResult{}, fmt.Errorf("attach %q: %w", name, err)
	}
	if !c.running {
		return AttachResult{}, fmt.Errorf("attach %q: %w", name, ErrNotRunning)
	}

	if t.faults.attachFails(name, c.starts) {
		t.metrics.AttachCompleted(false)
		t.logger.Info("ue attach failed", slog.String("name", name), slog.Int("cycle", c.starts))
		return AttachResult{Attached: false, IMSI: imsi(c.index)}, nil
	}

	c.attached = true
	c.addr = ueAddr(c.index)
	t.metrics.AttachCompleted(true)
	t.publish(c, wire.EventAttached, c.addr.String(), 0)
	return AttachResult{Attached: true, Addr: c.addr, IMSI: imsi(c.index)}, nil
}

// Ping sends count echo requests from the EPC to a UE address.
func (t *Testbed) Ping(epc, ue string, addr netip.Addr, count int) (PingResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, err := t.lookup(epc, testbed.RoleEPC)
	if err != nil {
		return PingResult{}, err
	}
	u, err := t.lookup(ue, testbed.RoleUE)
	if err != nil {
		return PingResult{}, err
	}
	if err := t.crashDuringLocked(u.starts, e, u); err != nil {
		return PingResult{}, fmt.Errorf("ping %q: %w", ue, err)
	}
	if !e.running {
		return PingResult{}, fmt.Errorf("ping from %q: %w", epc, ErrNotRunning)
	}
	if !u.attached {
		return PingResult{}, fmt.Errorf("ping %q: %w", ue, ErrNotAttached)
	}
	if u.addr != addr {
		return PingResult{}, fmt.Errorf("ping %q at %s: %w", ue, addr, ErrAddressMismatch)
	}

	res := PingResult{Transmitted: count, Received: count, AvgRTT: 20 * time.Millisecond}
	if t.faults.pingFails(u.starts) {
		res.Received = 0
		res.AvgRTT = 0
	}
	t.publish(u, wire.EventPing, fmt.Sprintf("%d/%d received", res.Received, res.Transmitted), 0)
	return res, nil
}

// Subscribe returns a channel of component events. An empty component list
// subscribes to everything. The cancel function must be called to release
// the subscription.
func (t *Testbed) Subscribe(components []string, includeHistory bool) (<-chan wire.Event, func()) {
	return t.events.subscribe(components, includeHistory)
}

// Close stops event delivery. Subscriber channels are closed.
func (t *Testbed) Close() {
	t.events.close()
	t.logger.Info("simulated testbed closed")
}

// ValidateRadio checks a radio configuration against the supported
// band/SCS/bandwidth combinations.
func ValidateRadio(radio wire.RadioConfig) error {
	ta, err := scenario.ParseTimeAlignment(radio.TimeAlignmentCalibration)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRadio, err)
	}
	p := scenario.Parameters{
		Band:                     radio.Band,
		CommonSCS:                radio.CommonSCS,
		BandwidthMHz:             radio.BandwidthMHz,
		SampleRate:               radio.SampleRate,
		GlobalTimingAdvance:      radio.GlobalTimingAdvance,
		TimeAlignmentCalibration: ta,
		PingCount:                1,
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRadio, err)
	}
	return nil
}

func ueAddr(index int) netip.Addr {
	b := ueSubnet.As4()
	b[3] = byte(index + 2)
	return netip.AddrFrom4(b)
}

func imsi(index int) string {
	return fmt.Sprintf("0010100000000%02d", index+1)
}
