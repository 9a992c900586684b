// ranping-agent hosts simulated gNB, EPC and UE components behind the
// ranping agent services.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/grpchealth"
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	"github.com/dantte-lp/ranping/internal/config"
	ranpingmetrics "github.com/dantte-lp/ranping/internal/metrics"
	"github.com/dantte-lp/ranping/internal/server"
	"github.com/dantte-lp/ranping/internal/sim"
	appversion "github.com/dantte-lp/ranping/internal/version"
	"github.com/dantte-lp/ranping/internal/wire"
)

// shutdownTimeout is the maximum time to wait for HTTP servers to drain
// active connections during graceful shutdown.
const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to configuration file (YAML)")
	showVersion := flag.Bool("version", false, "print build information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(appversion.Full("ranping-agent"))
		return 0
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		// Logger is not set up yet; use a temporary stderr logger.
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()),
		)
		return 1
	}

	// Dynamic level so SIGHUP can change it.
	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLoggerWithLevel(cfg.Log, logLevel)

	logger.Info("ranping-agent starting",
		slog.String("version", appversion.Version),
		slog.String("addr", cfg.Agent.Addr),
		slog.String("metrics_addr", cfg.Metrics.Addr),
		slog.String("gnb", cfg.Agent.GNB),
		slog.String("epc", cfg.Agent.EPC),
		slog.Any("ues", cfg.Agent.UEs),
	)

	reg := prometheus.NewRegistry()
	collector := ranpingmetrics.NewAgentCollector(reg)

	tb, err := sim.New(sim.Config{
		GNB:         cfg.Agent.GNB,
		EPC:         cfg.Agent.EPC,
		UEs:         cfg.Agent.UEs,
		AttachDelay: cfg.Agent.AttachDelay,
		Faults:      cfg.Agent.Faults.Sim(),
	}, logger, sim.WithMetrics(collector))
	if err != nil {
		logger.Error("failed to create testbed", slog.String("error", err.Error()))
		return 1
	}
	defer tb.Close()

	if err := runServers(cfg, tb, reg, logger, *configPath, logLevel); err != nil {
		logger.Error("ranping-agent exited with error",
			slog.String("error", err.Error()),
		)
		return 1
	}

	logger.Info("ranping-agent stopped")
	return 0
}

// runServers runs the agent and metrics HTTP servers under an errgroup with
// a signal-aware context for graceful shutdown.
func runServers(
	cfg *config.Config,
	tb *sim.Testbed,
	reg *prometheus.Registry,
	logger *slog.Logger,
	configPath string,
	logLevel *slog.LevelVar,
) error {
	agentSrv := newAgentServer(cfg.Agent.Addr, tb, logger)
	metricsSrv := newMetricsServer(cfg.Metrics, reg)

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	lc := net.ListenConfig{}
	g.Go(func() error {
		logger.Info("agent server listening", slog.String("addr", cfg.Agent.Addr))
		return listenAndServe(gCtx, &lc, agentSrv, cfg.Agent.Addr)
	})
	g.Go(func() error {
		logger.Info("metrics server listening",
			slog.String("addr", cfg.Metrics.Addr),
			slog.String("path", cfg.Metrics.Path),
		)
		return listenAndServe(gCtx, &lc, metricsSrv, cfg.Metrics.Addr)
	})

	g.Go(func() error {
		return runWatchdog(gCtx, logger)
	})

	sigHUP := make(chan os.Signal, 1)
	signal.Notify(sigHUP, syscall.SIGHUP)
	g.Go(func() error {
		defer signal.Stop(sigHUP)
		handleSIGHUP(gCtx, sigHUP, configPath, logLevel, tb, logger)
		return nil
	})

	notifyReady(logger)

	g.Go(func() error {
		<-gCtx.Done()
		return gracefulShutdown(gCtx, tb, logger, agentSrv, metricsSrv)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("run servers: %w", err)
	}
	return nil
}

// -------------------------------------------------------------------------
// Systemd Integration: sd_notify + watchdog
// -------------------------------------------------------------------------

// notifyReady sends READY=1 to systemd once the servers are started.
func notifyReady(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		logger.Warn("failed to notify systemd readiness",
			slog.String("error", err.Error()),
		)
		return
	}
	if sent {
		logger.Info("notified systemd: READY")
	}
}

// notifyStopping sends STOPPING=1 to systemd.
func notifyStopping(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err != nil {
		logger.Warn("failed to notify systemd stopping",
			slog.String("error", err.Error()),
		)
		return
	}
	if sent {
		logger.Info("notified systemd: STOPPING")
	}
}

// runWatchdog sends keepalives at half the systemd watchdog interval. It
// returns immediately when no watchdog is configured.
func runWatchdog(ctx context.Context, logger *slog.Logger) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		logger.Warn("failed to check systemd watchdog",
			slog.String("error", err.Error()),
		)
		return nil
	}
	if interval == 0 {
		logger.Debug("systemd watchdog not configured, skipping keepalive")
		return nil
	}

	tick := interval / 2
	logger.Info("systemd watchdog enabled",
		slog.Duration("watchdog_sec", interval),
		slog.Duration("keepalive_interval", tick),
	)

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, wdErr := daemon.SdNotify(false, daemon.SdNotifyWatchdog); wdErr != nil {
				logger.Warn("failed to send watchdog keepalive",
					slog.String("error", wdErr.Error()),
				)
			}
		}
	}
}

// -------------------------------------------------------------------------
// SIGHUP Reload: log level + injected faults
// -------------------------------------------------------------------------

// handleSIGHUP reloads the configuration on every SIGHUP until ctx is done.
func handleSIGHUP(
	ctx context.Context,
	sigHUP <-chan os.Signal,
	configPath string,
	logLevel *slog.LevelVar,
	tb *sim.Testbed,
	logger *slog.Logger,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigHUP:
			logger.Info("received SIGHUP, reloading configuration")
			reloadConfig(configPath, logLevel, tb, logger)
		}
	}
}

// reloadConfig applies the log level and the fault set of a fresh
// configuration. The hosted components cannot change without a restart.
// On error the previous settings stay in effect.
func reloadConfig(configPath string, logLevel *slog.LevelVar, tb *sim.Testbed, logger *slog.Logger) {
	newCfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("failed to reload configuration, keeping current settings",
			slog.String("error", err.Error()),
		)
		return
	}

	oldLevel := logLevel.Level()
	newLevel := config.ParseLogLevel(newCfg.Log.Level)
	logLevel.Set(newLevel)

	if err := tb.SetFaults(newCfg.Agent.Faults.Sim()); err != nil {
		logger.Error("failed to apply faults, keeping current faults",
			slog.String("error", err.Error()),
		)
	}

	logger.Info("configuration reloaded",
		slog.String("old_log_level", oldLevel.String()),
		slog.String("new_log_level", newLevel.String()),
	)
}

// -------------------------------------------------------------------------
// Graceful Shutdown
// -------------------------------------------------------------------------

// gracefulShutdown closes the testbed, which ends open event streams, and
// then shuts the HTTP servers down. The parent context is already
// cancelled when this is called.
func gracefulShutdown(ctx context.Context, tb *sim.Testbed, logger *slog.Logger, servers ...*http.Server) error {
	logger.Info("initiating graceful shutdown")
	notifyStopping(logger)

	tb.Close()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var shutdownErr error
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown server: %w", err))
		}
	}
	return shutdownErr
}

// -------------------------------------------------------------------------
// Server Setup
// -------------------------------------------------------------------------

// listenAndServe listens via the ListenConfig and serves until the server
// is shut down.
func listenAndServe(ctx context.Context, lc *net.ListenConfig, srv *http.Server, addr string) error {
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}

// newMetricsServer creates an HTTP server for the Prometheus metrics endpoint.
func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// newAgentServer creates the h2c HTTP server for the component services
// and grpc.health.v1. Plaintext HTTP/2 is needed by gRPC health clients.
func newAgentServer(addr string, tb *sim.Testbed, logger *slog.Logger) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h2c.NewHandler(newAgentMux(tb, logger), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// newAgentMux mounts the component services and the health checker.
func newAgentMux(tb *sim.Testbed, logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	server.New(tb, logger).Register(mux,
		server.LoggingInterceptorOption(logger),
		server.RecoveryInterceptorOption(logger),
	)

	// Reports SERVING for the overall server and every component service.
	checker := grpchealth.NewStaticChecker(
		append([]string{grpchealth.HealthV1ServiceName}, wire.ServiceNames()...)...,
	)
	mux.Handle(grpchealth.NewHandler(checker))

	return mux
}

// newLoggerWithLevel creates a structured logger using a shared LevelVar
// for dynamic log level changes via SIGHUP reload.
func newLoggerWithLevel(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
