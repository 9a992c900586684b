// Package server implements the ConnectRPC services of the ranping agent.
//
// Each service is a thin adapter between the wire messages and a simulated
// testbed: requests are decoded, dispatched to the sim package and its
// errors are mapped to ConnectRPC codes.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"connectrpc.com/connect"

	"github.com/dantte-lp/ranping/internal/sim"
	"github.com/dantte-lp/ranping/internal/testbed"
	"github.com/dantte-lp/ranping/internal/wire"
)

// Request validation errors.
var (
	errMissingComponent = errors.New("component name is required")
	errInvalidAddress   = errors.New("invalid ue address")
	errInvalidCount     = errors.New("ping count must be > 0")
)

// Server hosts the gNB, UE, EPC and event services for one simulated
// testbed.
type Server struct {
	tb     *sim.Testbed
	logger *slog.Logger
	now    func() time.Time
}

// Option configures optional Server parameters.
type Option func(*Server)

// WithClock overrides the clock used for response timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a Server backed by tb.
func New(tb *sim.Testbed, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		tb:     tb,
		logger: logger.With(slog.String("component", "server")),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register mounts every service on mux and returns the mounted paths.
// Handler options (interceptors) apply to every service.
func (s *Server) Register(mux *http.ServeMux, opts ...connect.HandlerOption) []string {
	var paths []string
	mount := func(path string, h http.Handler) {
		mux.Handle(path, h)
		paths = append(paths, path)
	}

	mount(wire.NewGNBServiceHandler(&gnbService{s}, opts...))
	mount(wire.NewUEServiceHandler(&ueService{s}, opts...))
	mount(wire.NewEPCServiceHandler(&epcService{s}, opts...))
	mount(wire.NewEventServiceHandler(&eventService{s}, opts...))
	return paths
}

// verify interface compliance at compile time.
var (
	_ wire.GNBServiceHandler   = (*gnbService)(nil)
	_ wire.UEServiceHandler    = (*ueService)(nil)
	_ wire.EPCServiceHandler   = (*epcService)(nil)
	_ wire.EventServiceHandler = (*eventService)(nil)
)

// -------------------------------------------------------------------------
// Shared Component Operations
// -------------------------------------------------------------------------

func (s *Server) start(ctx context.Context, role testbed.Role, req *wire.StartRequest) (*connect.Response[wire.StartResponse], error) {
	if req.Component == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errMissingComponent)
	}
	if err := s.tb.Start(role, req.Component, req.Radio, req.PreCommand); err != nil {
		return nil, mapError(err)
	}
	s.logger.DebugContext(ctx, "component start served",
		slog.String("name", req.Component),
		slog.String("role", string(role)),
		slog.String("pre_command", req.PreCommand),
	)
	return connect.NewResponse(&wire.StartResponse{
		Component: req.Component,
		StartedAt: s.now(),
	}), nil
}

// stop reports an abnormal termination in the response rather than as an
// error, so the caller always learns the exit code and log findings.
func (s *Server) stop(ctx context.Context, role testbed.Role, req *wire.StopRequest) (*connect.Response[wire.StopResponse], error) {
	if req.Component == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errMissingComponent)
	}
	res, err := s.tb.Stop(role, req.Component, req.SearchLogs)
	if err != nil {
		return nil, mapError(err)
	}
	if res.Crashed {
		s.logger.WarnContext(ctx, "component stopped abnormally",
			slog.String("name", req.Component),
			slog.Int("exit_code", res.ExitCode),
		)
	}
	return connect.NewResponse(&wire.StopResponse{
		Component:   req.Component,
		ExitCode:    res.ExitCode,
		Crashed:     res.Crashed,
		LogFindings: res.Findings,
	}), nil
}

// mapError converts sim errors to ConnectRPC errors. A crash becomes
// Aborted with the exit code in wire.ExitCodeHeader.
func mapError(err error) error {
	var ce *sim.CrashError
	if errors.As(err, &ce) {
		cerr := connect.NewError(connect.CodeAborted, err)
		cerr.Meta().Set(wire.ExitCodeHeader, wire.FormatExitCode(ce.ExitCode))
		return cerr
	}

	switch {
	case errors.Is(err, sim.ErrInvalidRadio):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, sim.ErrUnknownComponent), errors.Is(err, sim.ErrWrongRole):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, sim.ErrAlreadyRunning):
		return connect.NewError(connect.CodeAlreadyExists, err)
	case errors.Is(err, sim.ErrNotRunning), errors.Is(err, sim.ErrNetworkDown),
		errors.Is(err, sim.ErrNotAttached), errors.Is(err, sim.ErrAddressMismatch):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}

// -------------------------------------------------------------------------
// GNBService
// -------------------------------------------------------------------------

type gnbService struct{ *Server }

// Start starts the gNB, wrapped by the requested pre/post commands.
func (g *gnbService) Start(ctx context.Context, req *connect.Request[wire.StartRequest]) (*connect.Response[wire.StartResponse], error) {
	return g.start(ctx, testbed.RoleGNB, req.Msg)
}

// Stop stops the gNB.
func (g *gnbService) Stop(ctx context.Context, req *connect.Request[wire.StopRequest]) (*connect.Response[wire.StopResponse], error) {
	return g.stop(ctx, testbed.RoleGNB, req.Msg)
}

// -------------------------------------------------------------------------
// UEService
// -------------------------------------------------------------------------

type ueService struct{ *Server }

// Start starts a UE. The EPC and gNB must be running.
func (u *ueService) Start(ctx context.Context, req *connect.Request[wire.StartRequest]) (*connect.Response[wire.StartResponse], error) {
	return u.start(ctx, testbed.RoleUE, req.Msg)
}

// WaitUntilAttached blocks until the UE attached or the request deadline
// expires. A TimeoutMS in the request tightens the deadline.
func (u *ueService) WaitUntilAttached(ctx context.Context, req *connect.Request[wire.AttachRequest]) (*connect.Response[wire.AttachResponse], error) {
	if req.Msg.Component == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errMissingComponent)
	}
	if req.Msg.TimeoutMS > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.Msg.TimeoutMS)*time.Millisecond)
		defer cancel()
	}

	res, err := u.tb.WaitUntilAttached(ctx, req.Msg.Component)
	if err != nil {
		return nil, mapError(err)
	}

	resp := &wire.AttachResponse{
		Component: req.Msg.Component,
		Attached:  res.Attached,
		IMSI:      res.IMSI,
	}
	if res.Addr.IsValid() {
		resp.IPv4 = res.Addr.String()
	}
	return connect.NewResponse(resp), nil
}

// Stop stops a UE.
func (u *ueService) Stop(ctx context.Context, req *connect.Request[wire.StopRequest]) (*connect.Response[wire.StopResponse], error) {
	return u.stop(ctx, testbed.RoleUE, req.Msg)
}

// -------------------------------------------------------------------------
// EPCService
// -------------------------------------------------------------------------

type epcService struct{ *Server }

// Start starts the core network.
func (e *epcService) Start(ctx context.Context, req *connect.Request[wire.StartRequest]) (*connect.Response[wire.StartResponse], error) {
	return e.start(ctx, testbed.RoleEPC, req.Msg)
}

// Stop stops the core network.
func (e *epcService) Stop(ctx context.Context, req *connect.Request[wire.StopRequest]) (*connect.Response[wire.StopResponse], error) {
	return e.stop(ctx, testbed.RoleEPC, req.Msg)
}

// Ping sends echo requests from the EPC to a UE address.
func (e *epcService) Ping(_ context.Context, req *connect.Request[wire.PingRequest]) (*connect.Response[wire.PingResponse], error) {
	addr, err := netip.ParseAddr(req.Msg.Address)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("%w: %w", errInvalidAddress, err))
	}
	if req.Msg.Count < 1 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errInvalidCount)
	}

	res, err := e.tb.Ping(req.Msg.EPC, req.Msg.UE, addr, req.Msg.Count)
	if err != nil {
		return nil, mapError(err)
	}
	return connect.NewResponse(&wire.PingResponse{
		Transmitted: res.Transmitted,
		Received:    res.Received,
		AvgRTTMS:    float64(res.AvgRTT) / float64(time.Millisecond),
	}), nil
}

// -------------------------------------------------------------------------
// EventService
// -------------------------------------------------------------------------

type eventService struct{ *Server }

// Watch streams component events until the client disconnects or the
// testbed closes.
func (e *eventService) Watch(ctx context.Context, req *connect.Request[wire.WatchRequest], stream *connect.ServerStream[wire.Event]) error {
	events, cancel := e.tb.Subscribe(req.Msg.Components, req.Msg.IncludeHistory)
	defer cancel()

	e.logger.InfoContext(ctx, "event watch started",
		slog.Any("components", req.Msg.Components),
		slog.Bool("include_history", req.Msg.IncludeHistory),
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := stream.Send(&ev); err != nil {
				return fmt.Errorf("send event: %w", err)
			}
		}
	}
}
