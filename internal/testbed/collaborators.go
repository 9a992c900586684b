package testbed

import (
	"context"
	"time"

	"github.com/dantte-lp/ranping/internal/scenario"
)

// Configurer applies scenario parameters and the artifact policy to every
// component of the testbed.
type Configurer interface {
	// Configure applies the radio and scenario parameters. Invalid or
	// unsupported parameters fail with a KindConfiguration error.
	Configure(ctx context.Context, params scenario.Parameters) error

	// ConfigureArtifacts records what to capture for this run.
	ConfigureArtifacts(ctx context.Context, policy ArtifactPolicy) error
}

// NetworkController starts and stops the topology.
type NetworkController interface {
	// StartNetwork brings up the EPC and gNB, wrapping the gNB process with
	// the optional pre and post commands. UEs are prepared, not started.
	StartNetwork(ctx context.Context, devices DeviceSet, preCommand, postCommand string) error

	// StopUEs stops only the given UEs. The network stays up.
	StopUEs(ctx context.Context, ues []Handle) error

	// StopAll stops every component. A timeout of zero leaves the bound to
	// the implementation. A component that terminated abnormally yields a
	// KindProcessCrash error.
	StopAll(ctx context.Context, devices DeviceSet, timeout time.Duration) error
}

// AttachController starts UEs and waits until they are attached.
type AttachController interface {
	// AttachAndStart starts every UE and returns the attach result per UE.
	AttachAndStart(ctx context.Context, devices DeviceSet) (AttachInfo, error)
}

// ReachabilityProbe checks the data path of attached UEs.
type ReachabilityProbe interface {
	// Probe sends count echo requests per attached UE through the EPC and
	// fails with a KindReachability error when the result is insufficient.
	Probe(ctx context.Context, info AttachInfo, epc Handle, count int) error
}
