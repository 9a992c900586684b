package stub

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/dantte-lp/ranping/internal/testbed"
	"github.com/dantte-lp/ranping/internal/wire"
)

// ErrUnhealthy indicates an agent that does not serve a required service.
var ErrUnhealthy = errors.New("agent service not serving")

// serviceFor returns the RPC service a role is driven through.
func serviceFor(role testbed.Role) string {
	switch role {
	case testbed.RoleGNB:
		return wire.GNBServiceName
	case testbed.RoleEPC:
		return wire.EPCServiceName
	default:
		return wire.UEServiceName
	}
}

// CheckHealth asks every agent of the device set, over the standard gRPC
// health protocol, whether the services its components need are serving.
// Each agent check is bounded by timeout.
func CheckHealth(ctx context.Context, devices testbed.DeviceSet, timeout time.Duration) error {
	want := make(map[string][]string)
	var order []string
	for _, h := range devices.All() {
		if _, seen := want[h.Addr]; !seen {
			order = append(order, h.Addr)
		}
		if svc := serviceFor(h.Role); !slices.Contains(want[h.Addr], svc) {
			want[h.Addr] = append(want[h.Addr], svc)
		}
	}

	var errs []error
	for _, addr := range order {
		if err := checkAgent(ctx, addr, want[addr], timeout); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func checkAgent(ctx context.Context, addr string, services []string, timeout time.Duration) error {
	u, err := url.Parse(addr)
	if err != nil || u.Host == "" {
		return fmt.Errorf("agent %q: invalid address", addr)
	}

	conn, err := grpc.NewClient(u.Host, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("agent %s: %w", u.Host, err)
	}
	defer conn.Close()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	client := healthpb.NewHealthClient(conn)
	for _, svc := range services {
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: svc})
		if err != nil {
			return fmt.Errorf("agent %s %s: %w", u.Host, svc, err)
		}
		if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
			return fmt.Errorf("agent %s %s is %s: %w", u.Host, svc, resp.GetStatus(), ErrUnhealthy)
		}
	}
	return nil
}
