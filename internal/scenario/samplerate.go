package scenario

import (
	"errors"
	"fmt"
)

// ErrNoSampleRate indicates there is no known minimum sample rate for a bandwidth.
var ErrNoSampleRate = errors.New("no minimum sample rate for bandwidth")

// minimumSampleRates maps a channel bandwidth in MHz to the lowest sample rate
// (samples/s) whose FFT size covers the occupied subcarriers at 15 and 30 kHz.
//
//nolint:gochecknoglobals // static lookup table.
var minimumSampleRates = map[int]int{
	5:   5_760_000,
	10:  11_520_000,
	15:  15_360_000,
	20:  23_040_000,
	25:  30_720_000,
	30:  30_720_000,
	40:  46_080_000,
	50:  61_440_000,
	60:  92_160_000,
	70:  92_160_000,
	80:  92_160_000,
	90:  122_880_000,
	100: 122_880_000,
}

// MinimumSampleRate returns the minimum radio sample rate for a channel
// bandwidth. Hardware scenarios use it instead of the testbed default.
func MinimumSampleRate(bandwidthMHz int) (int, error) {
	rate, ok := minimumSampleRates[bandwidthMHz]
	if !ok {
		return 0, fmt.Errorf("bandwidth %d MHz: %w", bandwidthMHz, ErrNoSampleRate)
	}
	return rate, nil
}

// mustMinimumSampleRate is MinimumSampleRate for the static table, where the
// bandwidth is known to be supported.
func mustMinimumSampleRate(bandwidthMHz int) int {
	rate, err := MinimumSampleRate(bandwidthMHz)
	if err != nil {
		panic(err)
	}
	return rate
}
