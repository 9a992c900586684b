package stub

import (
	"context"
	"errors"
	"log/slog"
	"net/netip"
	"sync"
	"time"

	"connectrpc.com/connect"
	"golang.org/x/sync/errgroup"

	"github.com/dantte-lp/ranping/internal/scenario"
	"github.com/dantte-lp/ranping/internal/testbed"
	"github.com/dantte-lp/ranping/internal/wire"
)

// -------------------------------------------------------------------------
// Configurer
// -------------------------------------------------------------------------

// Configure validates and stores the parameters used by the following
// component starts.
func (t *Testbed) Configure(_ context.Context, params scenario.Parameters) error {
	if err := params.Validate(); err != nil {
		return testbed.NewError(testbed.KindConfiguration, "configure", "", err)
	}

	t.mu.Lock()
	t.params = &params
	t.findings = nil
	t.mu.Unlock()

	t.logger.Debug("parameters configured",
		slog.Int("band", params.Band),
		slog.Int("scs", params.CommonSCS),
		slog.Int("bandwidth", params.BandwidthMHz),
		slog.String("time_alignment", params.TimeAlignmentCalibration.String()),
	)
	return nil
}

// ConfigureArtifacts stores the artifact policy. Log search is requested
// from the agents when components stop.
func (t *Testbed) ConfigureArtifacts(_ context.Context, policy testbed.ArtifactPolicy) error {
	t.mu.Lock()
	t.artifacts = policy
	t.mu.Unlock()
	return nil
}

// -------------------------------------------------------------------------
// NetworkController
// -------------------------------------------------------------------------

// StartNetwork starts the EPC and then the gNB. UEs are started by
// AttachAndStart.
func (t *Testbed) StartNetwork(ctx context.Context, devices testbed.DeviceSet, preCommand, postCommand string) error {
	radio, err := t.radio()
	if err != nil {
		return err
	}

	_, err = t.epc(devices.EPC).Start(ctx, connect.NewRequest(&wire.StartRequest{
		Component: devices.EPC.Name,
		Radio:     radio,
	}))
	if err != nil {
		return classify("start", devices.EPC, err)
	}
	t.logger.Info("epc started", slog.String("epc", fmtHandle(devices.EPC)))

	_, err = t.gnb(devices.GNB).Start(ctx, connect.NewRequest(&wire.StartRequest{
		Component:   devices.GNB.Name,
		Radio:       radio,
		PreCommand:  preCommand,
		PostCommand: postCommand,
	}))
	if err != nil {
		return classify("start", devices.GNB, err)
	}
	t.logger.Info("gnb started", slog.String("gnb", fmtHandle(devices.GNB)))
	return nil
}

// StopUEs stops the given UEs concurrently. Every failure is reported.
func (t *Testbed) StopUEs(ctx context.Context, ues []testbed.Handle) error {
	return t.stopUEs(ctx, ues, 0)
}

func (t *Testbed) stopUEs(ctx context.Context, ues []testbed.Handle, timeout time.Duration) error {
	searchLogs := t.searchLogs()

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, h := range ues {
		g.Go(func() error {
			resp, err := t.ue(h).Stop(ctx, connect.NewRequest(&wire.StopRequest{
				Component:  h.Name,
				TimeoutMS:  timeout.Milliseconds(),
				SearchLogs: searchLogs,
			}))
			if err != nil {
				err = classify("stop", h, err)
			} else {
				err = t.stopResult(h, resp.Msg)
			}
			if err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait() // Goroutines collect errors instead of returning them.
	return errors.Join(errs...)
}

// StopAll stops the UEs, then the gNB, then the EPC. Every component is
// stopped even when an earlier stop fails; all failures are joined.
func (t *Testbed) StopAll(ctx context.Context, devices testbed.DeviceSet, timeout time.Duration) error {
	var errs []error
	if err := t.stopUEs(ctx, devices.UEs, timeout); err != nil {
		errs = append(errs, err)
	}

	searchLogs := t.searchLogs()
	req := func(h testbed.Handle) *connect.Request[wire.StopRequest] {
		return connect.NewRequest(&wire.StopRequest{
			Component:  h.Name,
			TimeoutMS:  timeout.Milliseconds(),
			SearchLogs: searchLogs,
		})
	}

	if resp, err := t.gnb(devices.GNB).Stop(ctx, req(devices.GNB)); err != nil {
		errs = append(errs, classify("stop", devices.GNB, err))
	} else if err := t.stopResult(devices.GNB, resp.Msg); err != nil {
		errs = append(errs, err)
	}

	if resp, err := t.epc(devices.EPC).Stop(ctx, req(devices.EPC)); err != nil {
		errs = append(errs, classify("stop", devices.EPC, err))
	} else if err := t.stopResult(devices.EPC, resp.Msg); err != nil {
		errs = append(errs, err)
	}

	err := errors.Join(errs...)
	if err != nil {
		t.logger.Warn("teardown completed with errors", slog.String("error", err.Error()))
	}
	return err
}

// -------------------------------------------------------------------------
// AttachController
// -------------------------------------------------------------------------

// AttachAndStart starts every UE and waits for it to attach, concurrently.
// Every UE is waited for; all failures are joined.
func (t *Testbed) AttachAndStart(ctx context.Context, devices testbed.DeviceSet) (testbed.AttachInfo, error) {
	radio, err := t.radio()
	if err != nil {
		return nil, err
	}

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
		info = make(testbed.AttachInfo, len(devices.UEs))
	)
	for _, h := range devices.UEs {
		g.Go(func() error {
			att, err := t.attachOne(ctx, h, radio)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return nil
			}
			info[h.Name] = att
			return nil
		})
	}
	_ = g.Wait() // Goroutines collect errors instead of returning them.

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return info, nil
}

func (t *Testbed) attachOne(ctx context.Context, h testbed.Handle, radio wire.RadioConfig) (testbed.UEAttach, error) {
	client := t.ue(h)

	_, err := client.Start(ctx, connect.NewRequest(&wire.StartRequest{
		Component: h.Name,
		Radio:     radio,
	}))
	if err != nil {
		return testbed.UEAttach{}, classify("start", h, err)
	}

	actx, cancel := context.WithTimeout(ctx, t.attachTimeout)
	defer cancel()

	resp, err := client.WaitUntilAttached(actx, connect.NewRequest(&wire.AttachRequest{
		Component: h.Name,
		TimeoutMS: t.attachTimeout.Milliseconds(),
	}))
	if err != nil {
		if errors.Is(actx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return testbed.UEAttach{}, testbed.NewError(testbed.KindAttach, "attach", h.Name, err)
		}
		return testbed.UEAttach{}, classify("attach", h, err)
	}
	if !resp.Msg.Attached {
		return testbed.UEAttach{}, testbed.NewError(testbed.KindAttach, "attach", h.Name, nil)
	}

	addr, err := netip.ParseAddr(resp.Msg.IPv4)
	if err != nil || !addr.Is4() {
		return testbed.UEAttach{}, testbed.NewError(testbed.KindAttach, "attach", h.Name, errors.Join(ErrNoAddress, err))
	}

	t.logger.Info("ue attached",
		slog.String("ue", h.Name),
		slog.String("ipv4", addr.String()),
		slog.String("imsi", resp.Msg.IMSI),
	)
	return testbed.UEAttach{IPv4: addr, IMSI: resp.Msg.IMSI}, nil
}
