package ranpingmetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "ranping"

	subsystemRun   = "run"
	subsystemAgent = "agent"
)

// Label names.
const (
	labelCategory = "category"
	labelVerdict  = "verdict"
	labelStep     = "step"
	labelResult   = "result"
	labelKind     = "kind"
	labelRole     = "role"
)

// Label values for the result label.
const (
	resultOK     = "ok"
	resultFailed = "failed"
)

// -------------------------------------------------------------------------
// Collector: Runner Metrics
// -------------------------------------------------------------------------

// Collector holds the Prometheus metrics of the scenario runner.
//
// Step counters and the latency histogram are labeled by step name, so a
// slow or flaky attach shows up separately from a slow teardown.
type Collector struct {
	// Runs counts finished runs by category and verdict.
	Runs *prometheus.CounterVec

	// Steps counts executed lifecycle steps by name and result.
	Steps *prometheus.CounterVec

	// StepDuration observes the wall time of each step.
	StepDuration *prometheus.HistogramVec

	// Cycles counts completed attach/probe cycles by category.
	Cycles *prometheus.CounterVec

	// Probes counts per-UE reachability probes by result.
	Probes *prometheus.CounterVec

	// EchoRequests counts echo requests sent and replies received.
	EchoRequests *prometheus.CounterVec

	// ToleratedFailures counts failures the crash-only policy tolerated,
	// by error kind.
	ToleratedFailures *prometheus.CounterVec
}

// NewCollector creates a Collector with all runner metrics registered
// against reg. If reg is nil, prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.Runs,
		c.Steps,
		c.StepDuration,
		c.Cycles,
		c.Probes,
		c.EchoRequests,
		c.ToleratedFailures,
	)

	return c
}

// newMetrics creates all runner metric vectors without registering them.
func newMetrics() *Collector {
	return &Collector{
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemRun,
			Name:      "runs_total",
			Help:      "Total finished scenario runs.",
		}, []string{labelCategory, labelVerdict}),

		Steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemRun,
			Name:      "steps_total",
			Help:      "Total executed lifecycle steps.",
		}, []string{labelStep, labelResult}),

		StepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemRun,
			Name:      "step_duration_seconds",
			Help:      "Wall time of lifecycle steps.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{labelStep}),

		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemRun,
			Name:      "attach_cycles_total",
			Help:      "Total completed attach and probe cycles.",
		}, []string{labelCategory}),

		Probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemRun,
			Name:      "probes_total",
			Help:      "Total per-UE reachability probes.",
		}, []string{labelResult}),

		EchoRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemRun,
			Name:      "echo_packets_total",
			Help:      "Total echo requests sent and replies received.",
		}, []string{"direction"}),

		ToleratedFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemRun,
			Name:      "tolerated_failures_total",
			Help:      "Total failures tolerated by the crash-only policy.",
		}, []string{labelKind}),
	}
}

// ObserveStep records one executed step.
func (c *Collector) ObserveStep(step string, failed bool, d time.Duration) {
	result := resultOK
	if failed {
		result = resultFailed
	}
	c.Steps.WithLabelValues(step, result).Inc()
	c.StepDuration.WithLabelValues(step).Observe(d.Seconds())
}

// IncCycles records a completed attach/probe cycle.
func (c *Collector) IncCycles(category string) {
	c.Cycles.WithLabelValues(category).Inc()
}

// RecordRun records a finished run.
func (c *Collector) RecordRun(category, verdict string) {
	c.Runs.WithLabelValues(category, verdict).Inc()
}

// RecordToleratedFailure records a failure the policy tolerated.
func (c *Collector) RecordToleratedFailure(kind string) {
	c.ToleratedFailures.WithLabelValues(kind).Inc()
}

// ObserveProbe records the probe of one UE.
func (c *Collector) ObserveProbe(passed bool, transmitted, received int) {
	result := resultOK
	if !passed {
		result = resultFailed
	}
	c.Probes.WithLabelValues(result).Inc()
	c.EchoRequests.WithLabelValues("sent").Add(float64(max(transmitted, 0)))
	c.EchoRequests.WithLabelValues("received").Add(float64(max(received, 0)))
}

// -------------------------------------------------------------------------
// AgentCollector: Simulated Component Metrics
// -------------------------------------------------------------------------

// AgentCollector holds the Prometheus metrics of the testbed agent.
type AgentCollector struct {
	// Starts counts component starts by role.
	Starts *prometheus.CounterVec

	// Crashes counts abnormal component terminations by role.
	Crashes *prometheus.CounterVec

	// Attaches counts UE attach attempts by result.
	Attaches *prometheus.CounterVec
}

// NewAgentCollector creates an AgentCollector registered against reg. If
// reg is nil, prometheus.DefaultRegisterer is used.
func NewAgentCollector(reg prometheus.Registerer) *AgentCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &AgentCollector{
		Starts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemAgent,
			Name:      "component_starts_total",
			Help:      "Total component starts.",
		}, []string{labelRole}),

		Crashes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemAgent,
			Name:      "component_crashes_total",
			Help:      "Total abnormal component terminations.",
		}, []string{labelRole}),

		Attaches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemAgent,
			Name:      "ue_attaches_total",
			Help:      "Total UE attach attempts.",
		}, []string{labelResult}),
	}

	reg.MustRegister(c.Starts, c.Crashes, c.Attaches)
	return c
}

// ComponentStarted records a component start.
func (c *AgentCollector) ComponentStarted(role string) {
	c.Starts.WithLabelValues(role).Inc()
}

// ComponentCrashed records an abnormal termination.
func (c *AgentCollector) ComponentCrashed(role string) {
	c.Crashes.WithLabelValues(role).Inc()
}

// AttachCompleted records a UE attach attempt.
func (c *AgentCollector) AttachCompleted(attached bool) {
	result := resultOK
	if !attached {
		result = resultFailed
	}
	c.Attaches.WithLabelValues(result).Inc()
}
