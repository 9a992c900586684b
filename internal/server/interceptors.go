package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"connectrpc.com/connect"

	"github.com/dantte-lp/ranping/internal/wire"
)

// ErrPanicRecovered indicates an RPC handler panicked and was recovered.
var ErrPanicRecovered = errors.New("panic recovered in rpc handler")

// stackSize bounds the stack trace captured on panic.
const stackSize = 4096

// componentOf returns the testbed component a request addresses, if any.
func componentOf(msg any) string {
	switch m := msg.(type) {
	case *wire.StartRequest:
		return m.Component
	case *wire.StopRequest:
		return m.Component
	case *wire.AttachRequest:
		return m.Component
	case *wire.PingRequest:
		return m.UE
	default:
		return ""
	}
}

// -------------------------------------------------------------------------
// Logging
// -------------------------------------------------------------------------

// loggingInterceptor logs every RPC with the procedure, the addressed
// component, the duration and the error (if any). Successful calls log at
// Info, failed calls at Warn.
type loggingInterceptor struct {
	logger *slog.Logger
}

// LoggingInterceptor returns an interceptor that logs unary calls and
// server streams.
func LoggingInterceptor(logger *slog.Logger) connect.Interceptor {
	return &loggingInterceptor{logger: logger}
}

// LoggingInterceptorOption wraps LoggingInterceptor as a handler option.
func LoggingInterceptorOption(logger *slog.Logger) connect.HandlerOption {
	return connect.WithInterceptors(LoggingInterceptor(logger))
}

func (l *loggingInterceptor) log(ctx context.Context, procedure, component string, start time.Time, err error) {
	attrs := []slog.Attr{
		slog.String("procedure", procedure),
		slog.Duration("duration", time.Since(start)),
	}
	if component != "" {
		attrs = append(attrs, slog.String("target", component))
	}
	if err != nil {
		attrs = append(attrs,
			slog.String("code", connect.CodeOf(err).String()),
			slog.String("error", err.Error()),
		)
		l.logger.LogAttrs(ctx, slog.LevelWarn, "rpc completed with error", attrs...)
		return
	}
	l.logger.LogAttrs(ctx, slog.LevelInfo, "rpc completed", attrs...)
}

func (l *loggingInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		l.log(ctx, req.Spec().Procedure, componentOf(req.Any()), start, err)
		return resp, err
	}
}

func (l *loggingInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (l *loggingInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		start := time.Now()
		err := next(ctx, conn)
		l.log(ctx, conn.Spec().Procedure, "", start, err)
		return err
	}
}

// -------------------------------------------------------------------------
// Recovery
// -------------------------------------------------------------------------

// recoveryInterceptor recovers from panics in RPC handlers. On panic it
// logs the panic value and stack trace at Error level and returns
// CodeInternal to the client.
type recoveryInterceptor struct {
	logger *slog.Logger
}

// RecoveryInterceptor returns an interceptor that recovers from handler
// panics in unary calls and server streams.
func RecoveryInterceptor(logger *slog.Logger) connect.Interceptor {
	return &recoveryInterceptor{logger: logger}
}

// RecoveryInterceptorOption wraps RecoveryInterceptor as a handler option.
func RecoveryInterceptorOption(logger *slog.Logger) connect.HandlerOption {
	return connect.WithInterceptors(RecoveryInterceptor(logger))
}

func (r *recoveryInterceptor) recovered(ctx context.Context, procedure string, v any) error {
	buf := make([]byte, stackSize)
	n := runtime.Stack(buf, false)

	r.logger.ErrorContext(ctx, "panic recovered in rpc handler",
		slog.String("procedure", procedure),
		slog.Any("panic", v),
		slog.String("stack", string(buf[:n])),
	)
	return connect.NewError(connect.CodeInternal, fmt.Errorf("%s: %w", procedure, ErrPanicRecovered))
}

func (r *recoveryInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (resp connect.AnyResponse, retErr error) {
		defer func() {
			if v := recover(); v != nil {
				retErr = r.recovered(ctx, req.Spec().Procedure, v)
			}
		}()
		return next(ctx, req)
	}
}

func (r *recoveryInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (r *recoveryInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) (retErr error) {
		defer func() {
			if v := recover(); v != nil {
				retErr = r.recovered(ctx, conn.Spec().Procedure, v)
			}
		}()
		return next(ctx, conn)
	}
}
