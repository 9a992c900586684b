package orchestrator_test

import (
	"context"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/dantte-lp/ranping/internal/scenario"
	"github.com/dantte-lp/ranping/internal/testbed"
)

// Operation names recorded by fakeTestbed.
const (
	opConfigure = "configure"
	opArtifacts = "configure_artifacts"
	opStart     = "start_network"
	opAttach    = "attach"
	opProbe     = "probe"
	opStopUEs   = "stop_ues"
	opStopAll   = "stop_all"
)

// fakeTestbed implements every collaborator interface and records calls.
// Errors are injected per operation ("attach") or per occurrence
// ("attach#2", 1-based).
type fakeTestbed struct {
	mu     sync.Mutex
	calls  []string
	counts map[string]int
	errs   map[string]error

	// hooks run inside the named operation before it returns.
	hooks map[string]func()

	configured  []scenario.Parameters
	artifacts   []testbed.ArtifactPolicy
	pre, post   string
	attachInfos []testbed.AttachInfo
	probeInfos  []testbed.AttachInfo
	probeCounts []int
	stopTimeout time.Duration
	stopHadDL   bool
	stopCtxErr  error
}

func newFakeTestbed() *fakeTestbed {
	return &fakeTestbed{
		counts: make(map[string]int),
		errs:   make(map[string]error),
		hooks:  make(map[string]func()),
	}
}

func (f *fakeTestbed) failOn(op string, err error) *fakeTestbed {
	f.errs[op] = err
	return f
}

func (f *fakeTestbed) record(op string) error {
	f.mu.Lock()
	f.counts[op]++
	n := f.counts[op]
	f.calls = append(f.calls, op)
	hook := f.hooks[op]
	err, ok := f.errs[fmt.Sprintf("%s#%d", op, n)]
	if !ok {
		err = f.errs[op]
	}
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	return err
}

func (f *fakeTestbed) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeTestbed) Count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[op]
}

func (f *fakeTestbed) Configure(_ context.Context, params scenario.Parameters) error {
	f.mu.Lock()
	f.configured = append(f.configured, params)
	f.mu.Unlock()
	return f.record(opConfigure)
}

func (f *fakeTestbed) ConfigureArtifacts(_ context.Context, policy testbed.ArtifactPolicy) error {
	f.mu.Lock()
	f.artifacts = append(f.artifacts, policy)
	f.mu.Unlock()
	return f.record(opArtifacts)
}

func (f *fakeTestbed) StartNetwork(_ context.Context, _ testbed.DeviceSet, pre, post string) error {
	f.mu.Lock()
	f.pre, f.post = pre, post
	f.mu.Unlock()
	return f.record(opStart)
}

func (f *fakeTestbed) StopUEs(_ context.Context, _ []testbed.Handle) error {
	return f.record(opStopUEs)
}

func (f *fakeTestbed) StopAll(ctx context.Context, _ testbed.DeviceSet, timeout time.Duration) error {
	_, hasDL := ctx.Deadline()
	f.mu.Lock()
	f.stopTimeout = timeout
	f.stopHadDL = hasDL
	f.stopCtxErr = ctx.Err()
	f.mu.Unlock()
	return f.record(opStopAll)
}

// AttachAndStart returns an attach result unique to the call, so a probe
// can be matched to the attach of its cycle.
func (f *fakeTestbed) AttachAndStart(_ context.Context, devices testbed.DeviceSet) (testbed.AttachInfo, error) {
	if err := f.record(opAttach); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.counts[opAttach]
	info := make(testbed.AttachInfo, len(devices.UEs))
	for i, ue := range devices.UEs {
		info[ue.Name] = testbed.UEAttach{
			IPv4: netip.AddrFrom4([4]byte{10, 45, byte(n), byte(i + 2)}),
			IMSI: fmt.Sprintf("00101000000000%d", i+1),
		}
	}
	f.attachInfos = append(f.attachInfos, info)
	return info, nil
}

func (f *fakeTestbed) Probe(_ context.Context, info testbed.AttachInfo, _ testbed.Handle, count int) error {
	f.mu.Lock()
	f.probeInfos = append(f.probeInfos, info)
	f.probeCounts = append(f.probeCounts, count)
	f.mu.Unlock()
	return f.record(opProbe)
}

// fakeMetrics records reporter calls.
type fakeMetrics struct {
	mu        sync.Mutex
	steps     []string
	runs      []string
	tolerated []string
	cycles    int
}

func (m *fakeMetrics) ObserveStep(step string, failed bool, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if failed {
		step += ":failed"
	}
	m.steps = append(m.steps, step)
}

func (m *fakeMetrics) IncCycles(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cycles++
}

func (m *fakeMetrics) RecordRun(category, verdict string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, category+"/"+verdict)
}

func (m *fakeMetrics) RecordToleratedFailure(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tolerated = append(m.tolerated, kind)
}
