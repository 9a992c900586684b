package scenario

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// -------------------------------------------------------------------------
// Categories
// -------------------------------------------------------------------------

// Category is the execution category of a scenario. It selects the failure
// tolerance policy, the radio kind and the number of UEs the run needs.
type Category string

// Execution categories.
const (
	// CategoryAndroid runs a single commercial handset over real RF.
	CategoryAndroid Category = "android"

	// CategoryZMQ runs four software UEs over the ZMQ simulated radio.
	CategoryZMQ Category = "zmq"

	// CategoryZMQValgrind is CategoryZMQ with the gNB under valgrind;
	// only process crashes fail the run.
	CategoryZMQValgrind Category = "zmq_valgrind"

	// CategoryRF runs four UEs over real RF hardware.
	CategoryRF Category = "rf"

	// CategoryRFDoesNotCrash is CategoryRF where attach/ping failures are
	// expected and only process crashes fail the run.
	CategoryRFDoesNotCrash Category = "rf_not_crash"
)

// Radio is the kind of radio link a category runs over.
type Radio uint8

const (
	// RadioSimulated is a software radio link (ZMQ).
	RadioSimulated Radio = iota + 1

	// RadioHardware is a real RF front end.
	RadioHardware
)

// String returns the human-readable radio kind.
func (r Radio) String() string {
	switch r {
	case RadioSimulated:
		return "simulated"
	case RadioHardware:
		return "hardware"
	default:
		return "unknown"
	}
}

// categoryInfo holds the resource requirements and policy tag of a category.
type categoryInfo struct {
	ues       int
	radio     Radio
	crashOnly bool
}

//nolint:gochecknoglobals // static category table.
var categories = map[Category]categoryInfo{
	CategoryAndroid:        {ues: 1, radio: RadioHardware},
	CategoryZMQ:            {ues: 4, radio: RadioSimulated},
	CategoryZMQValgrind:    {ues: 4, radio: RadioSimulated, crashOnly: true},
	CategoryRF:             {ues: 4, radio: RadioHardware},
	CategoryRFDoesNotCrash: {ues: 4, radio: RadioHardware, crashOnly: true},
}

// ErrUnknownCategory indicates a category name that is not in the table.
var ErrUnknownCategory = errors.New("unknown scenario category")

// Categories returns all categories in table order.
func Categories() []Category {
	return []Category{
		CategoryAndroid,
		CategoryZMQ,
		CategoryZMQValgrind,
		CategoryRF,
		CategoryRFDoesNotCrash,
	}
}

// ParseCategory maps a category name to a Category.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := categories[c]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
	}
	return c, nil
}

// UECount returns the number of UEs a run of this category drives.
func (c Category) UECount() int { return categories[c].ues }

// Radio returns the radio kind of the category.
func (c Category) Radio() Radio { return categories[c].radio }

// CrashOnly reports whether only process crashes fail runs of this category.
func (c Category) CrashOnly() bool { return categories[c].crashOnly }

// -------------------------------------------------------------------------
// Scenario Table
// -------------------------------------------------------------------------

// Scenario is one parametrized entry of the scenario table.
type Scenario struct {
	// ID is the unique scenario identifier,
	// e.g. "zmq/band:3-scs:15-bandwidth:10".
	ID string

	// Category is the execution category.
	Category Category

	// Marks are selection tags (the category name, "test", "reattach").
	Marks []string

	// Params are the run parameters.
	Params Parameters
}

// HasMark reports whether the scenario carries the given mark.
func (s Scenario) HasMark(mark string) bool {
	return slices.Contains(s.Marks, mark)
}

// MarkSmoke tags the scenario used for quick checks.
const MarkSmoke = "test"

// MarkReattach tags scenarios with reattach cycles.
const MarkReattach = "reattach"

// valgrindCommand wraps the gNB in valgrind; error exit code 22 marks a
// memory error as an abnormal termination.
const valgrindCommand = "valgrind --leak-check=full --track-origins=yes --exit-on-first-error=yes --error-exitcode=22"

// combo is a band / subcarrier spacing / bandwidth triple.
type combo struct {
	band, scs, bw int
}

// Table returns the static scenario table in a stable order. Each call
// returns a fresh slice.
func Table() []Scenario {
	var table []Scenario

	// Android handsets, with and without reattach cycles.
	for _, reattach := range []int{0, 2} {
		for _, c := range []combo{{3, 15, 10}, {78, 30, 20}} {
			p := base(c, DefaultPingCount)
			p.SampleRate = mustMinimumSampleRate(c.bw)
			p.GlobalTimingAdvance = -1
			p.TimeAlignmentCalibration = AutoTimeAlignment()
			p.AlwaysDownloadArtifacts = true
			p.ReattachCount = reattach

			marks := []string{string(CategoryAndroid)}
			if reattach > 0 {
				marks = append(marks, MarkReattach)
			}
			table = append(table, newScenario(CategoryAndroid, p, marks, true))
		}
	}

	// ZMQ software UEs.
	for _, c := range []combo{
		{3, 15, 5}, {3, 15, 10}, {3, 15, 20}, {3, 15, 50},
		{41, 30, 10}, {41, 30, 20}, {41, 30, 50},
	} {
		p := base(c, DefaultPingCount)
		p.TimeAlignmentCalibration = TimeAlignmentValue(0)
		p.LogSearch = true

		marks := []string{string(CategoryZMQ)}
		if c == (combo{3, 15, 10}) {
			marks = append(marks, MarkSmoke)
		}
		table = append(table, newScenario(CategoryZMQ, p, marks, false))
	}

	// ZMQ under valgrind.
	{
		p := base(combo{3, 15, 10}, DefaultPingCount)
		p.TimeAlignmentCalibration = TimeAlignmentValue(0)
		p.AlwaysDownloadArtifacts = true
		p.PreCommand = valgrindCommand
		table = append(table, newScenario(CategoryZMQValgrind, p, []string{string(CategoryZMQValgrind)}, false))
	}

	// Real RF, strict and crash-only.
	for _, cat := range []Category{CategoryRF, CategoryRFDoesNotCrash} {
		combos := []combo{{3, 15, 10}, {41, 30, 10}}
		if cat == CategoryRFDoesNotCrash {
			combos = combos[:1]
		}
		for _, c := range combos {
			p := base(c, DefaultPingCount)
			p.GlobalTimingAdvance = -1
			p.TimeAlignmentCalibration = AutoTimeAlignment()
			p.AlwaysDownloadArtifacts = true
			table = append(table, newScenario(cat, p, []string{string(cat)}, false))
		}
	}

	return table
}

// base returns the parameters shared by every scenario of a combo.
func base(c combo, pingCount int) Parameters {
	return Parameters{
		Band:         c.band,
		CommonSCS:    c.scs,
		BandwidthMHz: c.bw,
		PingCount:    pingCount,
	}
}

func newScenario(cat Category, p Parameters, marks []string, withReattach bool) Scenario {
	id := fmt.Sprintf("%s/band:%d-scs:%d-bandwidth:%d", cat, p.Band, p.CommonSCS, p.BandwidthMHz)
	if withReattach {
		id += fmt.Sprintf("-reattach:%d", p.ReattachCount)
	}
	return Scenario{
		ID:       id,
		Category: cat,
		Marks:    marks,
		Params:   p,
	}
}

// -------------------------------------------------------------------------
// Selection
// -------------------------------------------------------------------------

// Filter selects scenarios from the table. Empty fields match everything;
// non-empty fields must all match.
type Filter struct {
	Categories []Category
	Marks      []string
	IDs        []string
}

// Select returns the table entries matching f, in table order.
func Select(f Filter) []Scenario {
	var out []Scenario
	for _, s := range Table() {
		if len(f.Categories) > 0 && !slices.Contains(f.Categories, s.Category) {
			continue
		}
		if len(f.IDs) > 0 && !slices.Contains(f.IDs, s.ID) {
			continue
		}
		if len(f.Marks) > 0 && !slices.ContainsFunc(f.Marks, s.HasMark) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Lookup returns the scenario with the given ID.
func Lookup(id string) (Scenario, bool) {
	for _, s := range Table() {
		if s.ID == id {
			return s, true
		}
	}
	return Scenario{}, false
}
