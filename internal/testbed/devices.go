// Package testbed defines the component handles, attach results and the
// collaborator interfaces the lifecycle orchestrator drives, together with
// the error taxonomy shared by every collaborator implementation.
package testbed

import (
	"errors"
	"fmt"
	"net/netip"
	"slices"
)

// Role identifies what a remote component is in the topology.
type Role string

// Component roles.
const (
	RoleUE  Role = "ue"
	RoleGNB Role = "gnb"
	RoleEPC Role = "epc"
)

// Handle is an opaque reference to a remote component. Handles are created
// by the fixture layer and never mutated by the orchestrator.
type Handle struct {
	// Role is the component role.
	Role Role `json:"role" yaml:"role"`

	// Name is the unique component name within the device set (e.g., "ue1").
	Name string `json:"name" yaml:"name"`

	// Addr is the base URL of the agent hosting the component.
	Addr string `json:"addr" yaml:"addr"`
}

// String returns "role/name".
func (h Handle) String() string {
	return string(h.Role) + "/" + h.Name
}

// DeviceSet is the topology of one run: an ordered list of UEs, one gNB and
// one EPC.
type DeviceSet struct {
	UEs []Handle `json:"ues" yaml:"ues"`
	GNB Handle   `json:"gnb" yaml:"gnb"`
	EPC Handle   `json:"epc" yaml:"epc"`
}

// Device set validation errors.
var (
	// ErrNoUEs indicates a device set without UEs.
	ErrNoUEs = errors.New("device set has no UEs")

	// ErrMissingHandle indicates a handle without a name or address.
	ErrMissingHandle = errors.New("handle name and address are required")

	// ErrDuplicateName indicates two components with the same name.
	ErrDuplicateName = errors.New("duplicate component name")

	// ErrWrongRole indicates a handle in a slot for another role.
	ErrWrongRole = errors.New("handle role does not match its slot")
)

// Validate checks that every slot holds a named, addressed handle of the
// right role and that component names are unique.
func (d DeviceSet) Validate() error {
	if len(d.UEs) == 0 {
		return ErrNoUEs
	}

	seen := make(map[string]bool, len(d.UEs)+2)
	check := func(h Handle, role Role) error {
		if h.Name == "" || h.Addr == "" {
			return fmt.Errorf("%s %q: %w", role, h.Name, ErrMissingHandle)
		}
		if h.Role != role {
			return fmt.Errorf("%s in %s slot: %w", h, role, ErrWrongRole)
		}
		if seen[h.Name] {
			return fmt.Errorf("%q: %w", h.Name, ErrDuplicateName)
		}
		seen[h.Name] = true
		return nil
	}

	for _, ue := range d.UEs {
		if err := check(ue, RoleUE); err != nil {
			return err
		}
	}
	if err := check(d.GNB, RoleGNB); err != nil {
		return err
	}
	return check(d.EPC, RoleEPC)
}

// All returns every handle in start order: EPC, gNB, then the UEs.
func (d DeviceSet) All() []Handle {
	all := make([]Handle, 0, len(d.UEs)+2)
	all = append(all, d.EPC, d.GNB)
	return append(all, d.UEs...)
}

// UEAttach is the attach result of one UE.
type UEAttach struct {
	// IPv4 is the address assigned by the core network.
	IPv4 netip.Addr `json:"ipv4" yaml:"ipv4"`

	// IMSI is the subscriber identity the UE attached with.
	IMSI string `json:"imsi,omitempty" yaml:"imsi,omitempty"`
}

// AttachInfo maps a UE name to its attach result. It is valid only for the
// cycle that produced it.
type AttachInfo map[string]UEAttach

// UEs returns the attached UE names in sorted order.
func (a AttachInfo) UEs() []string {
	names := make([]string, 0, len(a))
	for name := range a {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ArtifactPolicy controls artifact capture for a run.
type ArtifactPolicy struct {
	// AlwaysDownload keeps artifacts even when the run fully succeeds.
	AlwaysDownload bool `json:"always_download" yaml:"always_download"`

	// LogSearch searches component logs for errors when components stop.
	LogSearch bool `json:"log_search" yaml:"log_search"`
}
