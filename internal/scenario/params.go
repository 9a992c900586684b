// Package scenario holds the ping scenario parameters and the static table of
// parametrized scenarios (band, subcarrier spacing, bandwidth, reattach count)
// grouped by execution category.
package scenario

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultPingCount is the number of echo requests sent per UE and cycle.
const DefaultPingCount = 10

// -------------------------------------------------------------------------
// Time Alignment Calibration
// -------------------------------------------------------------------------

// autoTimeAlignment is the text form of the network-side calibration sentinel.
const autoTimeAlignment = "auto"

// errInvalidTimeAlignment is returned when a calibration value is neither an
// integer nor "auto".
var errInvalidTimeAlignment = errors.New("time alignment calibration must be an integer or \"auto\"")

// TimeAlignment is the time-alignment calibration of the radio: either a
// numeric calibration value or the "auto" sentinel that delegates the
// calibration to the network side. The zero value is the numeric value 0.
type TimeAlignment struct {
	auto  bool
	value int
}

// AutoTimeAlignment returns the "auto" calibration sentinel.
func AutoTimeAlignment() TimeAlignment {
	return TimeAlignment{auto: true}
}

// TimeAlignmentValue returns a fixed numeric calibration.
func TimeAlignmentValue(v int) TimeAlignment {
	return TimeAlignment{value: v}
}

// IsAuto reports whether calibration is delegated to the network side.
func (ta TimeAlignment) IsAuto() bool { return ta.auto }

// Value returns the numeric calibration. It is 0 for the auto sentinel.
func (ta TimeAlignment) Value() int { return ta.value }

// String returns "auto" or the decimal calibration value.
func (ta TimeAlignment) String() string {
	if ta.auto {
		return autoTimeAlignment
	}
	return strconv.Itoa(ta.value)
}

// ParseTimeAlignment parses "auto" (case-insensitive) or a decimal integer.
func ParseTimeAlignment(s string) (TimeAlignment, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, autoTimeAlignment) {
		return AutoTimeAlignment(), nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return TimeAlignment{}, fmt.Errorf("parse %q: %w", s, errInvalidTimeAlignment)
	}
	return TimeAlignmentValue(v), nil
}

// MarshalText implements encoding.TextMarshaler.
func (ta TimeAlignment) MarshalText() ([]byte, error) {
	return []byte(ta.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (ta *TimeAlignment) UnmarshalText(text []byte) error {
	parsed, err := ParseTimeAlignment(string(text))
	if err != nil {
		return err
	}
	*ta = parsed
	return nil
}

// -------------------------------------------------------------------------
// Parameters
// -------------------------------------------------------------------------

// Parameters describes one ping scenario run. It is a value type: the
// orchestrator keeps its own copy, so the parameters cannot change once a
// run has started.
type Parameters struct {
	// Band is the NR operating band (e.g., 3, 41, 78).
	Band int `json:"band" yaml:"band"`

	// CommonSCS is the common subcarrier spacing in kHz.
	CommonSCS int `json:"common_scs" yaml:"common_scs"`

	// BandwidthMHz is the channel bandwidth in MHz.
	BandwidthMHz int `json:"bandwidth" yaml:"bandwidth"`

	// SampleRate is the radio sample rate in samples per second.
	// Zero means the testbed default.
	SampleRate int `json:"sample_rate,omitempty" yaml:"sample_rate,omitempty"`

	// GlobalTimingAdvance is the gNB global timing advance offset.
	GlobalTimingAdvance int `json:"global_timing_advance" yaml:"global_timing_advance"`

	// TimeAlignmentCalibration is a fixed calibration or the auto sentinel.
	TimeAlignmentCalibration TimeAlignment `json:"time_alignment_calibration" yaml:"time_alignment_calibration"`

	// ReattachCount is the number of extra UE stop/attach/ping cycles.
	ReattachCount int `json:"reattach_count" yaml:"reattach_count"`

	// PingCount is the number of echo requests per UE and cycle.
	PingCount int `json:"ping_count" yaml:"ping_count"`

	// PreCommand and PostCommand wrap the gNB process (e.g., valgrind).
	PreCommand  string `json:"pre_command,omitempty" yaml:"pre_command,omitempty"`
	PostCommand string `json:"post_command,omitempty" yaml:"post_command,omitempty"`

	// StopTimeout bounds the final teardown. Zero leaves the bound to the
	// collaborators.
	StopTimeout time.Duration `json:"stop_timeout" yaml:"stop_timeout"`

	// AlwaysDownloadArtifacts keeps run artifacts even on full success.
	AlwaysDownloadArtifacts bool `json:"always_download_artifacts" yaml:"always_download_artifacts"`

	// LogSearch enables searching component logs for errors on stop.
	LogSearch bool `json:"log_search" yaml:"log_search"`
}

// HasSampleRate reports whether an explicit sample rate was requested.
func (p Parameters) HasSampleRate() bool { return p.SampleRate != 0 }

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrUnsupportedBand indicates the band is not known to the testbed.
	ErrUnsupportedBand = errors.New("unsupported band")

	// ErrUnsupportedSCS indicates the subcarrier spacing is invalid for the band.
	ErrUnsupportedSCS = errors.New("unsupported subcarrier spacing for band")

	// ErrUnsupportedBandwidth indicates the bandwidth is invalid for the band/SCS.
	ErrUnsupportedBandwidth = errors.New("unsupported bandwidth for band and subcarrier spacing")

	// ErrInvalidSampleRate indicates a negative sample rate.
	ErrInvalidSampleRate = errors.New("sample rate must be >= 0")

	// ErrInvalidReattachCount indicates a negative reattach count.
	ErrInvalidReattachCount = errors.New("reattach count must be >= 0")

	// ErrInvalidPingCount indicates a ping count below one.
	ErrInvalidPingCount = errors.New("ping count must be > 0")

	// ErrInvalidStopTimeout indicates a negative stop timeout.
	ErrInvalidStopTimeout = errors.New("stop timeout must be >= 0")
)

// bandInfo lists the subcarrier spacings and the maximum channel bandwidth
// the testbed supports for a band.
type bandInfo struct {
	scs   []int
	maxBW int
}

// supportedBands is the testbed band support matrix.
//
//nolint:gochecknoglobals // static lookup table.
var supportedBands = map[int]bandInfo{
	1:  {scs: []int{15, 30}, maxBW: 50},
	3:  {scs: []int{15, 30}, maxBW: 50},
	7:  {scs: []int{15, 30}, maxBW: 50},
	20: {scs: []int{15, 30}, maxBW: 20},
	41: {scs: []int{15, 30}, maxBW: 100},
	77: {scs: []int{30}, maxBW: 100},
	78: {scs: []int{30}, maxBW: 100},
	79: {scs: []int{30}, maxBW: 100},
}

// supportedBandwidths lists the NR channel bandwidths in MHz.
//
//nolint:gochecknoglobals // static lookup table.
var supportedBandwidths = map[int]bool{
	5: true, 10: true, 15: true, 20: true, 25: true, 30: true, 40: true,
	50: true, 60: true, 70: true, 80: true, 90: true, 100: true,
}

// maxBandwidthSCS15 is the largest bandwidth usable with 15 kHz spacing.
const maxBandwidthSCS15 = 50

// Validate checks the parameters for an unsupported band/SCS/bandwidth
// combination and out-of-range values. Returns the first error found.
func (p Parameters) Validate() error {
	info, ok := supportedBands[p.Band]
	if !ok {
		return fmt.Errorf("band %d: %w", p.Band, ErrUnsupportedBand)
	}

	scsOK := false
	for _, scs := range info.scs {
		if scs == p.CommonSCS {
			scsOK = true
			break
		}
	}
	if !scsOK {
		return fmt.Errorf("band %d scs %d kHz: %w", p.Band, p.CommonSCS, ErrUnsupportedSCS)
	}

	if !supportedBandwidths[p.BandwidthMHz] || p.BandwidthMHz > info.maxBW ||
		(p.CommonSCS == 15 && p.BandwidthMHz > maxBandwidthSCS15) {
		return fmt.Errorf("band %d scs %d kHz bandwidth %d MHz: %w",
			p.Band, p.CommonSCS, p.BandwidthMHz, ErrUnsupportedBandwidth)
	}

	if p.SampleRate < 0 {
		return fmt.Errorf("sample rate %d: %w", p.SampleRate, ErrInvalidSampleRate)
	}

	if p.ReattachCount < 0 {
		return fmt.Errorf("reattach count %d: %w", p.ReattachCount, ErrInvalidReattachCount)
	}

	if p.PingCount < 1 {
		return fmt.Errorf("ping count %d: %w", p.PingCount, ErrInvalidPingCount)
	}

	if p.StopTimeout < 0 {
		return fmt.Errorf("stop timeout %v: %w", p.StopTimeout, ErrInvalidStopTimeout)
	}

	return nil
}
