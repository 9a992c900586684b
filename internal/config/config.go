// Package config manages ranping configuration using koanf/v2.
//
// One file configures both binaries: the runner reads the testbed and run
// sections, the agent reads the agent section. Both share metrics, log and
// tracing. Supports YAML files and RANPING_ environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/dantte-lp/ranping/internal/sim"
	"github.com/dantte-lp/ranping/internal/stub"
	"github.com/dantte-lp/ranping/internal/testbed"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete ranping configuration.
type Config struct {
	Testbed TestbedConfig `koanf:"testbed"`
	Run     RunConfig     `koanf:"run"`
	Agent   AgentConfig   `koanf:"agent"`
	Metrics MetricsConfig `koanf:"metrics"`
	Log     LogConfig     `koanf:"log"`
	Tracing TracingConfig `koanf:"tracing"`
}

// DeviceConfig names one testbed component and the agent that hosts it.
type DeviceConfig struct {
	// Name is the component name known to the agent (e.g., "ue1").
	Name string `koanf:"name"`

	// Addr is the agent base URL (e.g., "http://10.0.0.5:50061").
	Addr string `koanf:"addr"`
}

// TestbedConfig lists the devices a run may use.
type TestbedConfig struct {
	GNB DeviceConfig   `koanf:"gnb"`
	EPC DeviceConfig   `koanf:"epc"`
	UEs []DeviceConfig `koanf:"ues"`
}

// RunConfig holds the runner settings.
type RunConfig struct {
	// ArtifactsDir is the root directory of per-run artifacts.
	ArtifactsDir string `koanf:"artifacts_dir"`

	// AttachTimeout bounds the attach wait per UE.
	AttachTimeout time.Duration `koanf:"attach_timeout"`

	// ProbeAggregation combines per-UE probe results: "all" or "any".
	ProbeAggregation string `koanf:"probe_aggregation"`

	// MaxLossPercent is the highest packet loss a UE may show and pass.
	MaxLossPercent float64 `koanf:"max_loss_percent"`

	// HealthCheck preflights every agent before a run.
	HealthCheck bool `koanf:"health_check"`

	// HealthTimeout bounds the preflight per agent.
	HealthTimeout time.Duration `koanf:"health_timeout"`
}

// AgentConfig holds the agent daemon settings.
type AgentConfig struct {
	// Addr is the ConnectRPC listen address (e.g., ":50061").
	Addr string `koanf:"addr"`

	// GNB, EPC and UEs name the simulated components the agent hosts.
	GNB string   `koanf:"gnb"`
	EPC string   `koanf:"epc"`
	UEs []string `koanf:"ues"`

	// AttachDelay is the simulated attach latency.
	AttachDelay time.Duration `koanf:"attach_delay"`

	// Faults selects the injected failures. Reloaded on SIGHUP.
	Faults FaultConfig `koanf:"faults"`
}

// FaultConfig is the file form of the simulated testbed faults. Cycles
// count UE starts from 1; zero disables a fault.
type FaultConfig struct {
	FailAttachCycle int    `koanf:"fail_attach_cycle"`
	FailAttachUE    string `koanf:"fail_attach_ue"`
	FailPingCycle   int    `koanf:"fail_ping_cycle"`
	CrashComponent  string `koanf:"crash_component"`
	CrashCycle      int    `koanf:"crash_cycle"`
	CrashInRun      bool   `koanf:"crash_in_run"`
	CrashExitCode   int    `koanf:"crash_exit_code"`
}

// Sim converts the fault configuration for the simulated testbed.
func (f FaultConfig) Sim() sim.Faults {
	return sim.Faults{
		FailAttachCycle: f.FailAttachCycle,
		FailAttachUE:    f.FailAttachUE,
		FailPingCycle:   f.FailPingCycle,
		CrashComponent:  f.CrashComponent,
		CrashCycle:      f.CrashCycle,
		CrashInRun:      f.CrashInRun,
		CrashExitCode:   f.CrashExitCode,
	}
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9100").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// TracingConfig holds the OpenTelemetry exporter configuration.
type TracingConfig struct {
	// Exporter is "none", "stdout" or "otlp".
	Exporter string `koanf:"exporter"`

	// Endpoint is the OTLP gRPC collector address (e.g., "localhost:4317").
	Endpoint string `koanf:"endpoint"`

	// Insecure disables TLS towards the collector.
	Insecure bool `koanf:"insecure"`

	// SampleRatio is the fraction of runs traced, in [0, 1].
	SampleRatio float64 `koanf:"sample_ratio"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// defaultAgentURL is the agent address of the default single-host testbed.
const defaultAgentURL = "http://127.0.0.1:50061"

// DefaultConfig returns a Config for a single local agent hosting a gNB,
// an EPC and four UEs, enough for every simulated-radio scenario.
func DefaultConfig() *Config {
	ues := []string{"ue1", "ue2", "ue3", "ue4"}
	devices := make([]DeviceConfig, 0, len(ues))
	for _, ue := range ues {
		devices = append(devices, DeviceConfig{Name: ue, Addr: defaultAgentURL})
	}

	return &Config{
		Testbed: TestbedConfig{
			GNB: DeviceConfig{Name: "gnb", Addr: defaultAgentURL},
			EPC: DeviceConfig{Name: "epc", Addr: defaultAgentURL},
			UEs: devices,
		},
		Run: RunConfig{
			ArtifactsDir:     "artifacts",
			AttachTimeout:    stub.DefaultAttachTimeout,
			ProbeAggregation: string(stub.AggregateAll),
			MaxLossPercent:   0,
			HealthCheck:      true,
			HealthTimeout:    5 * time.Second,
		},
		Agent: AgentConfig{
			Addr:        ":50061",
			GNB:         "gnb",
			EPC:         "epc",
			UEs:         ues,
			AttachDelay: 200 * time.Millisecond,
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Exporter:    ExporterNone,
			Endpoint:    "localhost:4317",
			Insecure:    true,
			SampleRatio: 1,
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for ranping configuration.
// Variables are named RANPING_<section>_<key>, e.g., RANPING_LOG_LEVEL.
const envPrefix = "RANPING_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (RANPING_ prefix), and merges on top of
// DefaultConfig(). Missing fields inherit defaults. An empty path skips
// the file.
//
// Environment variable mapping:
//
//	RANPING_LOG_LEVEL                 -> log.level
//	RANPING_RUN_ATTACH_TIMEOUT        -> run.attach_timeout
//	RANPING_AGENT_ADDR                -> agent.addr
//	RANPING_AGENT_FAULTS_CRASH_CYCLE  -> agent.faults.crash_cycle
//	RANPING_TRACING_EXPORTER          -> tracing.exporter
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k, DefaultConfig()); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// nestedSections are the env key prefixes that address a nested section
// rather than a key containing underscores.
//
//nolint:gochecknoglobals // static mapping table.
var nestedSections = []string{"agent_faults_", "testbed_gnb_", "testbed_epc_"}

// envKeyMapper transforms RANPING_RUN_ATTACH_TIMEOUT -> run.attach_timeout.
// The first segment is the section; the rest is the key, keeping its
// underscores, except for the nested sections.
func envKeyMapper(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	for _, nested := range nestedSections {
		if rest, ok := strings.CutPrefix(s, nested); ok {
			return strings.ReplaceAll(strings.TrimSuffix(nested, "_"), "_", ".") + "." + rest
		}
	}
	section, key, ok := strings.Cut(s, "_")
	if !ok {
		return s
	}
	return section + "." + key
}

// loadDefaults sets the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	ues := make([]any, 0, len(defaults.Testbed.UEs))
	for _, ue := range defaults.Testbed.UEs {
		ues = append(ues, map[string]any{"name": ue.Name, "addr": ue.Addr})
	}

	defaultMap := map[string]any{
		"testbed.gnb.name":      defaults.Testbed.GNB.Name,
		"testbed.gnb.addr":      defaults.Testbed.GNB.Addr,
		"testbed.epc.name":      defaults.Testbed.EPC.Name,
		"testbed.epc.addr":      defaults.Testbed.EPC.Addr,
		"testbed.ues":           ues,
		"run.artifacts_dir":     defaults.Run.ArtifactsDir,
		"run.attach_timeout":    defaults.Run.AttachTimeout.String(),
		"run.probe_aggregation": defaults.Run.ProbeAggregation,
		"run.max_loss_percent":  defaults.Run.MaxLossPercent,
		"run.health_check":      defaults.Run.HealthCheck,
		"run.health_timeout":    defaults.Run.HealthTimeout.String(),
		"agent.addr":            defaults.Agent.Addr,
		"agent.gnb":             defaults.Agent.GNB,
		"agent.epc":             defaults.Agent.EPC,
		"agent.ues":             defaults.Agent.UEs,
		"agent.attach_delay":    defaults.Agent.AttachDelay.String(),
		"metrics.addr":          defaults.Metrics.Addr,
		"metrics.path":          defaults.Metrics.Path,
		"log.level":             defaults.Log.Level,
		"log.format":            defaults.Log.Format,
		"tracing.exporter":      defaults.Tracing.Exporter,
		"tracing.endpoint":      defaults.Tracing.Endpoint,
		"tracing.insecure":      defaults.Tracing.Insecure,
		"tracing.sample_ratio":  defaults.Tracing.SampleRatio,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Tracing exporters.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// Validation errors.
var (
	// ErrEmptyAgentAddr indicates the agent listen address is empty.
	ErrEmptyAgentAddr = errors.New("agent.addr must not be empty")

	// ErrInvalidDeviceAddr indicates a device agent URL is not http(s).
	ErrInvalidDeviceAddr = errors.New("device addr must be an http or https url")

	// ErrInvalidAttachTimeout indicates a negative attach timeout.
	ErrInvalidAttachTimeout = errors.New("run.attach_timeout must be >= 0")

	// ErrInvalidHealthTimeout indicates a negative health check timeout.
	ErrInvalidHealthTimeout = errors.New("run.health_timeout must be >= 0")

	// ErrInvalidAttachDelay indicates a negative simulated attach delay.
	ErrInvalidAttachDelay = errors.New("agent.attach_delay must be >= 0")

	// ErrInvalidMetricsPath indicates a metrics path without a leading slash.
	ErrInvalidMetricsPath = errors.New("metrics.path must start with /")

	// ErrInvalidLogFormat indicates an unknown log format.
	ErrInvalidLogFormat = errors.New("log.format must be json or text")

	// ErrInvalidExporter indicates an unknown tracing exporter.
	ErrInvalidExporter = errors.New("tracing.exporter must be none, stdout or otlp")

	// ErrInvalidSampleRatio indicates a sample ratio outside [0, 1].
	ErrInvalidSampleRatio = errors.New("tracing.sample_ratio must be within [0, 1]")

	// ErrNotEnoughUEs indicates the testbed lists fewer UEs than a run needs.
	ErrNotEnoughUEs = errors.New("not enough ues configured")
)

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if err := validateTestbed(cfg.Testbed); err != nil {
		return err
	}

	if cfg.Run.AttachTimeout < 0 {
		return ErrInvalidAttachTimeout
	}

	if cfg.Run.HealthTimeout < 0 {
		return ErrInvalidHealthTimeout
	}

	if err := cfg.ProbePolicy().Validate(); err != nil {
		return fmt.Errorf("run: %w", err)
	}

	if cfg.Agent.Addr == "" {
		return ErrEmptyAgentAddr
	}

	if cfg.Agent.AttachDelay < 0 {
		return ErrInvalidAttachDelay
	}

	if err := cfg.Agent.Faults.Sim().Validate(); err != nil {
		return fmt.Errorf("agent.faults: %w", err)
	}

	if cfg.Metrics.Path != "" && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return ErrInvalidMetricsPath
	}

	if f := strings.ToLower(cfg.Log.Format); f != "json" && f != "text" {
		return fmt.Errorf("%q: %w", cfg.Log.Format, ErrInvalidLogFormat)
	}

	switch cfg.Tracing.Exporter {
	case ExporterNone, ExporterStdout, ExporterOTLP:
	default:
		return fmt.Errorf("%q: %w", cfg.Tracing.Exporter, ErrInvalidExporter)
	}

	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		return ErrInvalidSampleRatio
	}

	return nil
}

// validateTestbed checks the agent URL of every configured device.
func validateTestbed(tc TestbedConfig) error {
	check := func(field string, d DeviceConfig) error {
		if d.Addr == "" {
			return nil
		}
		u, err := url.Parse(d.Addr)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%s %q: %w", field, d.Addr, ErrInvalidDeviceAddr)
		}
		return nil
	}

	if err := check("testbed.gnb", tc.GNB); err != nil {
		return err
	}
	if err := check("testbed.epc", tc.EPC); err != nil {
		return err
	}
	for i, ue := range tc.UEs {
		if err := check(fmt.Sprintf("testbed.ues[%d]", i), ue); err != nil {
			return err
		}
	}
	return nil
}

// -------------------------------------------------------------------------
// Derived Values
// -------------------------------------------------------------------------

// ProbePolicy returns the probe policy of the run section.
func (cfg *Config) ProbePolicy() stub.ProbePolicy {
	return stub.ProbePolicy{
		Aggregation:    stub.Aggregation(strings.ToLower(cfg.Run.ProbeAggregation)),
		MaxLossPercent: cfg.Run.MaxLossPercent,
	}
}

// Devices builds the device set of a run that drives ueCount UEs, taking
// the first ueCount configured UEs.
func (cfg *Config) Devices(ueCount int) (testbed.DeviceSet, error) {
	if ueCount < 1 || ueCount > len(cfg.Testbed.UEs) {
		return testbed.DeviceSet{}, fmt.Errorf("need %d, have %d: %w",
			ueCount, len(cfg.Testbed.UEs), ErrNotEnoughUEs)
	}

	d := testbed.DeviceSet{
		GNB: testbed.Handle{Role: testbed.RoleGNB, Name: cfg.Testbed.GNB.Name, Addr: cfg.Testbed.GNB.Addr},
		EPC: testbed.Handle{Role: testbed.RoleEPC, Name: cfg.Testbed.EPC.Name, Addr: cfg.Testbed.EPC.Addr},
	}
	for _, ue := range cfg.Testbed.UEs[:ueCount] {
		d.UEs = append(d.UEs, testbed.Handle{Role: testbed.RoleUE, Name: ue.Name, Addr: ue.Addr})
	}

	if err := d.Validate(); err != nil {
		return testbed.DeviceSet{}, fmt.Errorf("testbed: %w", err)
	}
	return d, nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
