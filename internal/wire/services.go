package wire

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
)

// Fully-qualified service names.
const (
	GNBServiceName   = "ranping.testbed.v1.GNBService"
	UEServiceName    = "ranping.testbed.v1.UEService"
	EPCServiceName   = "ranping.testbed.v1.EPCService"
	EventServiceName = "ranping.testbed.v1.EventService"
)

// Procedure paths, in the form "/<service>/<method>".
const (
	GNBServiceStartProcedure = "/" + GNBServiceName + "/Start"
	GNBServiceStopProcedure  = "/" + GNBServiceName + "/Stop"

	UEServiceStartProcedure             = "/" + UEServiceName + "/Start"
	UEServiceWaitUntilAttachedProcedure = "/" + UEServiceName + "/WaitUntilAttached"
	UEServiceStopProcedure              = "/" + UEServiceName + "/Stop"

	EPCServiceStartProcedure = "/" + EPCServiceName + "/Start"
	EPCServiceStopProcedure  = "/" + EPCServiceName + "/Stop"
	EPCServicePingProcedure  = "/" + EPCServiceName + "/Ping"

	EventServiceWatchProcedure = "/" + EventServiceName + "/Watch"
)

// ServiceNames lists every service, for health checking and reflection.
func ServiceNames() []string {
	return []string{GNBServiceName, UEServiceName, EPCServiceName, EventServiceName}
}

// mux routes procedure paths of one service to their handlers.
func mux(routes map[string]http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		h.ServeHTTP(w, r)
	})
}

func handlerOpts(opts []connect.HandlerOption) []connect.HandlerOption {
	return append([]connect.HandlerOption{codecOption()}, opts...)
}

func clientOpts(opts []connect.ClientOption) []connect.ClientOption {
	return append([]connect.ClientOption{codecOption()}, opts...)
}

// -------------------------------------------------------------------------
// GNBService
// -------------------------------------------------------------------------

// GNBServiceHandler is implemented by agents hosting a gNB.
type GNBServiceHandler interface {
	Start(context.Context, *connect.Request[StartRequest]) (*connect.Response[StartResponse], error)
	Stop(context.Context, *connect.Request[StopRequest]) (*connect.Response[StopResponse], error)
}

// NewGNBServiceHandler returns the mount path and handler of the service.
func NewGNBServiceHandler(svc GNBServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = handlerOpts(opts)
	return "/" + GNBServiceName + "/", mux(map[string]http.Handler{
		GNBServiceStartProcedure: connect.NewUnaryHandler(GNBServiceStartProcedure, svc.Start, opts...),
		GNBServiceStopProcedure:  connect.NewUnaryHandler(GNBServiceStopProcedure, svc.Stop, opts...),
	})
}

// GNBServiceClient is a client for GNBService.
type GNBServiceClient interface {
	Start(context.Context, *connect.Request[StartRequest]) (*connect.Response[StartResponse], error)
	Stop(context.Context, *connect.Request[StopRequest]) (*connect.Response[StopResponse], error)
}

type gnbServiceClient struct {
	start *connect.Client[StartRequest, StartResponse]
	stop  *connect.Client[StopRequest, StopResponse]
}

// NewGNBServiceClient returns a GNBService client for the agent at baseURL.
func NewGNBServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) GNBServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = clientOpts(opts)
	return &gnbServiceClient{
		start: connect.NewClient[StartRequest, StartResponse](httpClient, baseURL+GNBServiceStartProcedure, opts...),
		stop:  connect.NewClient[StopRequest, StopResponse](httpClient, baseURL+GNBServiceStopProcedure, opts...),
	}
}

func (c *gnbServiceClient) Start(ctx context.Context, req *connect.Request[StartRequest]) (*connect.Response[StartResponse], error) {
	return c.start.CallUnary(ctx, req)
}

func (c *gnbServiceClient) Stop(ctx context.Context, req *connect.Request[StopRequest]) (*connect.Response[StopResponse], error) {
	return c.stop.CallUnary(ctx, req)
}

// -------------------------------------------------------------------------
// UEService
// -------------------------------------------------------------------------

// UEServiceHandler is implemented by agents hosting UEs.
type UEServiceHandler interface {
	Start(context.Context, *connect.Request[StartRequest]) (*connect.Response[StartResponse], error)
	WaitUntilAttached(context.Context, *connect.Request[AttachRequest]) (*connect.Response[AttachResponse], error)
	Stop(context.Context, *connect.Request[StopRequest]) (*connect.Response[StopResponse], error)
}

// NewUEServiceHandler returns the mount path and handler of the service.
func NewUEServiceHandler(svc UEServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = handlerOpts(opts)
	return "/" + UEServiceName + "/", mux(map[string]http.Handler{
		UEServiceStartProcedure: connect.NewUnaryHandler(UEServiceStartProcedure, svc.Start, opts...),
		UEServiceWaitUntilAttachedProcedure: connect.NewUnaryHandler(
			UEServiceWaitUntilAttachedProcedure, svc.WaitUntilAttached, opts...),
		UEServiceStopProcedure: connect.NewUnaryHandler(UEServiceStopProcedure, svc.Stop, opts...),
	})
}

// UEServiceClient is a client for UEService.
type UEServiceClient interface {
	Start(context.Context, *connect.Request[StartRequest]) (*connect.Response[StartResponse], error)
	WaitUntilAttached(context.Context, *connect.Request[AttachRequest]) (*connect.Response[AttachResponse], error)
	Stop(context.Context, *connect.Request[StopRequest]) (*connect.Response[StopResponse], error)
}

type ueServiceClient struct {
	start  *connect.Client[StartRequest, StartResponse]
	attach *connect.Client[AttachRequest, AttachResponse]
	stop   *connect.Client[StopRequest, StopResponse]
}

// NewUEServiceClient returns a UEService client for the agent at baseURL.
func NewUEServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) UEServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = clientOpts(opts)
	return &ueServiceClient{
		start:  connect.NewClient[StartRequest, StartResponse](httpClient, baseURL+UEServiceStartProcedure, opts...),
		attach: connect.NewClient[AttachRequest, AttachResponse](httpClient, baseURL+UEServiceWaitUntilAttachedProcedure, opts...),
		stop:   connect.NewClient[StopRequest, StopResponse](httpClient, baseURL+UEServiceStopProcedure, opts...),
	}
}

func (c *ueServiceClient) Start(ctx context.Context, req *connect.Request[StartRequest]) (*connect.Response[StartResponse], error) {
	return c.start.CallUnary(ctx, req)
}

func (c *ueServiceClient) WaitUntilAttached(ctx context.Context, req *connect.Request[AttachRequest]) (*connect.Response[AttachResponse], error) {
	return c.attach.CallUnary(ctx, req)
}

func (c *ueServiceClient) Stop(ctx context.Context, req *connect.Request[StopRequest]) (*connect.Response[StopResponse], error) {
	return c.stop.CallUnary(ctx, req)
}

// -------------------------------------------------------------------------
// EPCService
// -------------------------------------------------------------------------

// EPCServiceHandler is implemented by agents hosting the core network.
type EPCServiceHandler interface {
	Start(context.Context, *connect.Request[StartRequest]) (*connect.Response[StartResponse], error)
	Stop(context.Context, *connect.Request[StopRequest]) (*connect.Response[StopResponse], error)
	Ping(context.Context, *connect.Request[PingRequest]) (*connect.Response[PingResponse], error)
}

// NewEPCServiceHandler returns the mount path and handler of the service.
func NewEPCServiceHandler(svc EPCServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = handlerOpts(opts)
	return "/" + EPCServiceName + "/", mux(map[string]http.Handler{
		EPCServiceStartProcedure: connect.NewUnaryHandler(EPCServiceStartProcedure, svc.Start, opts...),
		EPCServiceStopProcedure:  connect.NewUnaryHandler(EPCServiceStopProcedure, svc.Stop, opts...),
		EPCServicePingProcedure:  connect.NewUnaryHandler(EPCServicePingProcedure, svc.Ping, opts...),
	})
}

// EPCServiceClient is a client for EPCService.
type EPCServiceClient interface {
	Start(context.Context, *connect.Request[StartRequest]) (*connect.Response[StartResponse], error)
	Stop(context.Context, *connect.Request[StopRequest]) (*connect.Response[StopResponse], error)
	Ping(context.Context, *connect.Request[PingRequest]) (*connect.Response[PingResponse], error)
}

type epcServiceClient struct {
	start *connect.Client[StartRequest, StartResponse]
	stop  *connect.Client[StopRequest, StopResponse]
	ping  *connect.Client[PingRequest, PingResponse]
}

// NewEPCServiceClient returns an EPCService client for the agent at baseURL.
func NewEPCServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) EPCServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = clientOpts(opts)
	return &epcServiceClient{
		start: connect.NewClient[StartRequest, StartResponse](httpClient, baseURL+EPCServiceStartProcedure, opts...),
		stop:  connect.NewClient[StopRequest, StopResponse](httpClient, baseURL+EPCServiceStopProcedure, opts...),
		ping:  connect.NewClient[PingRequest, PingResponse](httpClient, baseURL+EPCServicePingProcedure, opts...),
	}
}

func (c *epcServiceClient) Start(ctx context.Context, req *connect.Request[StartRequest]) (*connect.Response[StartResponse], error) {
	return c.start.CallUnary(ctx, req)
}

func (c *epcServiceClient) Stop(ctx context.Context, req *connect.Request[StopRequest]) (*connect.Response[StopResponse], error) {
	return c.stop.CallUnary(ctx, req)
}

func (c *epcServiceClient) Ping(ctx context.Context, req *connect.Request[PingRequest]) (*connect.Response[PingResponse], error) {
	return c.ping.CallUnary(ctx, req)
}

// -------------------------------------------------------------------------
// EventService
// -------------------------------------------------------------------------

// EventServiceHandler is implemented by agents that publish component events.
type EventServiceHandler interface {
	Watch(context.Context, *connect.Request[WatchRequest], *connect.ServerStream[Event]) error
}

// NewEventServiceHandler returns the mount path and handler of the service.
func NewEventServiceHandler(svc EventServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = handlerOpts(opts)
	return "/" + EventServiceName + "/", mux(map[string]http.Handler{
		EventServiceWatchProcedure: connect.NewServerStreamHandler(EventServiceWatchProcedure, svc.Watch, opts...),
	})
}

// EventServiceClient is a client for EventService.
type EventServiceClient interface {
	Watch(context.Context, *connect.Request[WatchRequest]) (*connect.ServerStreamForClient[Event], error)
}

type eventServiceClient struct {
	watch *connect.Client[WatchRequest, Event]
}

// NewEventServiceClient returns an EventService client for the agent at baseURL.
func NewEventServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) EventServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	return &eventServiceClient{
		watch: connect.NewClient[WatchRequest, Event](httpClient, baseURL+EventServiceWatchProcedure, clientOpts(opts)...),
	}
}

func (c *eventServiceClient) Watch(ctx context.Context, req *connect.Request[WatchRequest]) (*connect.ServerStreamForClient[Event], error) {
	return c.watch.CallServerStream(ctx, req)
}
