// bfdd daemon -- BFD protocol implementation (RFC 5880/5881).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"runtime/trace"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dantte-lp/bfdd/internal/adminapi"
	"github.com/dantte-lp/bfdd/internal/bfd"
	"github.com/dantte-lp/bfdd/internal/config"
	"github.com/dantte-lp/bfdd/internal/eventsink"
	"github.com/dantte-lp/bfdd/internal/instancecfg"
	bfdmetrics "github.com/dantte-lp/bfdd/internal/metrics"
	"github.com/dantte-lp/bfdd/internal/netio"
	appversion "github.com/dantte-lp/bfdd/internal/version"
)

// shutdownTimeout is the maximum time to wait for HTTP servers to drain
// active connections during graceful shutdown.
const shutdownTimeout = 10 * time.Second

// drainTimeout is the time to wait after setting sessions to AdminDown
// before proceeding with shutdown. This ensures the final AdminDown
// packets are transmitted to peers (RFC 5880 Section 6.8.16).
const drainTimeout = 2 * time.Second

// flightRecorderMinAge is the minimum window age for the flight recorder.
// Captures the last 500ms of execution traces for debugging BFD failures.
const flightRecorderMinAge = 500 * time.Millisecond

// flightRecorderMaxBytes is the upper bound on flight recorder window size.
const flightRecorderMaxBytes = 2 * 1024 * 1024 // 2 MiB

func main() {
	os.Exit(run())
}

func run() int {
	var configPath string

	root := &cobra.Command{
		Use:   "bfdd",
		Short: "RFC 5880/5881 BFD daemon",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runDaemon(configPath)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.Flags().StringVar(&configPath, "config", "", "path to daemon configuration file (YAML)")

	if err := root.Execute(); err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("bfdd exited with error",
			slog.String("error", err.Error()))
		return 1
	}

	return 0
}

func runDaemon(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLoggerWithLevel(cfg.Log, logLevel)

	logger.Info("bfdd starting",
		slog.String("version", appversion.Version),
		slog.String("admin_addr", cfg.Admin.Addr),
		slog.String("metrics_addr", cfg.Metrics.Addr),
		slog.String("instances", cfg.Instances),
	)

	fr := startFlightRecorder(logger)

	instances, err := loadInstances(cfg.Instances, logger)
	if err != nil {
		return fmt.Errorf("load instance configs: %w", err)
	}

	reg := prometheus.NewRegistry()
	collector := bfdmetrics.NewCollector(reg)

	sink, sinkCloser, err := newEventSink(cfg.EventSink, logger)
	if err != nil {
		return fmt.Errorf("open event sink: %w", err)
	}
	defer sinkCloser()

	store := bfd.NewStore(logger)
	for _, instCfg := range instances {
		if _, err := store.Add(instCfg); err != nil {
			logger.Error("failed to add instance, skipping",
				slog.String("name", instCfg.Name), slog.String("error", err.Error()))
		}
	}

	portAlloc := netio.NewSourcePortAllocator()
	if err := attachSenders(store, portAlloc, logger); err != nil {
		return fmt.Errorf("attach senders: %w", err)
	}

	dispatcher := bfd.NewDispatcher(store, sink, collector, logger)
	dispatcher.Start()

	listeners, err := createListeners(store, logger)
	if err != nil {
		return fmt.Errorf("create BFD listeners: %w", err)
	}
	defer closeListeners(listeners, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	// The dispatcher (and anything feeding it) gets its own lifetime,
	// separate from gCtx: gracefulShutdown needs Run still processing
	// commands while it drains sessions to AdminDown, and only cancels
	// runnerCtx once that drain is complete.
	runnerCtx, cancelRunner := context.WithCancel(context.Background())
	defer cancelRunner()

	g.Go(func() error {
		return dispatcher.Run(runnerCtx)
	})

	for _, ln := range listeners {
		ln := ln
		g.Go(func() error {
			return ln.Serve(runnerCtx, dispatcher)
		})
	}

	if pipe, ok := sink.(*eventsink.Pipe); ok {
		done := make(chan struct{})
		go func() {
			<-runnerCtx.Done()
			close(done)
		}()
		g.Go(func() error {
			return pipe.Run(done)
		})
	}

	adminSrv := adminapi.NewServer(cfg.Admin.Addr, dispatcher, reloadFunc(configPath, logLevel, store, dispatcher, portAlloc, logger), logger)
	metricsSrv := newMetricsServer(cfg.Metrics, reg)
	startHTTPServers(gCtx, g, cfg, adminSrv, metricsSrv, logger)
	startDaemonGoroutines(gCtx, g, configPath, logLevel, store, dispatcher, portAlloc, logger)

	notifyReady(logger)

	g.Go(func() error {
		<-gCtx.Done()
		err := gracefulShutdown(gCtx, dispatcher, logger, fr, adminSrv, metricsSrv)
		cancelRunner()
		return err
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run servers: %w", err)
	}

	logger.Info("bfdd stopped")
	return nil
}

// -------------------------------------------------------------------------
// Instance configuration loading
// -------------------------------------------------------------------------

func loadInstances(path string, logger *slog.Logger) ([]bfd.Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	instances, err := instancecfg.Parse(f, logger)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return instances, nil
}

// -------------------------------------------------------------------------
// Event sink
// -------------------------------------------------------------------------

// newEventSink builds the byte-oriented event pipe described by
// cfg.EventSink, or nil (discard) when no path is configured. closer must
// always be called, even when the sink is disabled.
func newEventSink(cfg config.EventSinkConfig, logger *slog.Logger) (bfd.EventSink, func(), error) {
	if cfg.Path == "" {
		return nil, func() {}, nil
	}

	f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open event sink %s: %w", cfg.Path, err)
	}

	pipe := eventsink.NewPipe(f, cfg.BufferSize, logger)

	return pipe, func() {
		if err := f.Close(); err != nil {
			logger.Warn("failed to close event sink file", slog.String("error", err.Error()))
		}
	}, nil
}

// -------------------------------------------------------------------------
// Senders -- one UDP socket per session's source address
// -------------------------------------------------------------------------

// bindAddrFor resolves the address a session's output socket binds to: its
// configured SourceAddr, or the wildcard address of the neighbor's family
// when SourceAddr was left unset.
func bindAddrFor(cfg bfd.Config) netip.Addr {
	if cfg.SourceAddr.IsValid() {
		return cfg.SourceAddr
	}
	if cfg.NeighborAddr.Is4() {
		return netip.IPv4Unspecified()
	}
	return netip.IPv6Unspecified()
}

// attachSenders allocates a source port and opens a UDP socket for every
// session currently in store, installing it via Session.SetSender.
// Sessions that already failed validation (Disabled) get a sender as well,
// the same as every other session in the store.
func attachSenders(store *bfd.Store, portAlloc *netio.SourcePortAllocator, logger *slog.Logger) error {
	for _, sess := range store.All() {
		cfg := sess.Config()

		srcPort, err := portAlloc.Allocate()
		if err != nil {
			return fmt.Errorf("allocate source port for %q: %w", cfg.Name, err)
		}

		sender, err := netio.NewUDPSender(bindAddrFor(cfg), srcPort, logger)
		if err != nil {
			portAlloc.Release(srcPort)
			return fmt.Errorf("create sender for %q: %w", cfg.Name, err)
		}

		sess.SetSender(sender)
	}

	return nil
}

// -------------------------------------------------------------------------
// BFD listeners -- one per unique bind address
// -------------------------------------------------------------------------

// createListeners opens one shared single-hop listener per unique session
// bind address. BFD demultiplexes received packets by discriminator and
// source address at the dispatcher layer, so a single listener per address
// serves every session bound there.
func createListeners(store *bfd.Store, logger *slog.Logger) ([]*netio.Listener, error) {
	seen := make(map[netip.Addr]struct{})
	var listeners []*netio.Listener

	for _, sess := range store.All() {
		addr := bindAddrFor(sess.Config())
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}

		ln, err := netio.NewListener(netio.ListenerConfig{Addr: addr})
		if err != nil {
			closeListeners(listeners, logger)
			return nil, fmt.Errorf("create listener on %s: %w", addr, err)
		}

		logger.Info("BFD listener started", slog.String("addr", addr.String()))
		listeners = append(listeners, ln)
	}

	return listeners, nil
}

func closeListeners(listeners []*netio.Listener, logger *slog.Logger) {
	for _, ln := range listeners {
		if err := ln.Close(); err != nil {
			logger.Warn("failed to close BFD listener", slog.String("error", err.Error()))
		}
	}
}

// -------------------------------------------------------------------------
// HTTP servers
// -------------------------------------------------------------------------

func startHTTPServers(
	ctx context.Context,
	g *errgroup.Group,
	cfg *config.Config,
	adminSrv *http.Server,
	metricsSrv *http.Server,
	logger *slog.Logger,
) {
	lc := net.ListenConfig{}

	g.Go(func() error {
		logger.Info("admin server listening", slog.String("addr", cfg.Admin.Addr))
		return listenAndServe(ctx, &lc, adminSrv, cfg.Admin.Addr)
	})

	g.Go(func() error {
		logger.Info("metrics server listening",
			slog.String("addr", cfg.Metrics.Addr),
			slog.String("path", cfg.Metrics.Path),
		)
		return listenAndServe(ctx, &lc, metricsSrv, cfg.Metrics.Addr)
	})
}

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

func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// -------------------------------------------------------------------------
// Systemd integration -- sd_notify + watchdog
// -------------------------------------------------------------------------

func notifyReady(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		logger.Warn("failed to notify systemd readiness", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: READY")
	}
}

func notifyStopping(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err != nil {
		logger.Warn("failed to notify systemd stopping", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: STOPPING")
	}
}

func runWatchdog(ctx context.Context, logger *slog.Logger) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		logger.Warn("failed to check systemd watchdog", slog.String("error", err.Error()))
		return nil
	}
	if interval == 0 {
		logger.Debug("systemd watchdog not configured, skipping keepalive")
		return nil
	}

	tickInterval := interval / 2
	logger.Info("systemd watchdog enabled",
		slog.Duration("watchdog_sec", interval),
		slog.Duration("keepalive_interval", tickInterval),
	)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
				logger.Warn("failed to send watchdog keepalive", slog.String("error", err.Error()))
			}
		}
	}
}

func startDaemonGoroutines(
	ctx context.Context,
	g *errgroup.Group,
	configPath string,
	logLevel *slog.LevelVar,
	store *bfd.Store,
	dispatcher *bfd.Dispatcher,
	portAlloc *netio.SourcePortAllocator,
	logger *slog.Logger,
) {
	g.Go(func() error {
		return runWatchdog(ctx, logger)
	})

	sigHUP := make(chan os.Signal, 1)
	signal.Notify(sigHUP, syscall.SIGHUP)
	g.Go(func() error {
		defer signal.Stop(sigHUP)
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-sigHUP:
				logger.Info("received SIGHUP, reloading configuration")
				if err := reload(configPath, logLevel, store, dispatcher, portAlloc, logger); err != nil {
					logger.Error("reload failed, keeping current configuration",
						slog.String("error", err.Error()))
				}
			}
		}
	})
}

// -------------------------------------------------------------------------
// Reload -- SIGHUP and the admin /reload endpoint share this path
// -------------------------------------------------------------------------

// reloadFunc adapts reload into an adminapi.ReloadFunc.
func reloadFunc(
	configPath string,
	logLevel *slog.LevelVar,
	store *bfd.Store,
	dispatcher *bfd.Dispatcher,
	portAlloc *netio.SourcePortAllocator,
	logger *slog.Logger,
) adminapi.ReloadFunc {
	return func() error {
		return reload(configPath, logLevel, store, dispatcher, portAlloc, logger)
	}
}

// reload re-reads the daemon config (for the log level) and the instance
// config file, then applies the Stop/Reload/Resume cycle documented on
// Dispatcher.Reload. Existing sessions keep their protocol state; sessions
// dropped from the instance file are removed; new ones start Down, or
// AdminDown when their config is disabled. Stop closes every sender, so every
// session -- not just the new ones -- needs a fresh one before Resume.
func reload(
	configPath string,
	logLevel *slog.LevelVar,
	store *bfd.Store,
	dispatcher *bfd.Dispatcher,
	portAlloc *netio.SourcePortAllocator,
	logger *slog.Logger,
) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("reload daemon config: %w", err)
	}
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))

	instances, err := loadInstances(cfg.Instances, logger)
	if err != nil {
		return fmt.Errorf("reload instance config: %w", err)
	}

	dispatcher.Do(func() {
		dispatcher.Stop()
		dispatcher.Reload(instances)
	})

	attachErr := attachSenders(store, portAlloc, logger)

	dispatcher.Do(func() {
		dispatcher.Resume()
	})

	if attachErr != nil {
		return fmt.Errorf("reattach senders: %w", attachErr)
	}

	logger.Info("configuration reloaded", slog.Int("instance_count", len(instances)))
	return nil
}

// -------------------------------------------------------------------------
// Graceful shutdown
// -------------------------------------------------------------------------

func gracefulShutdown(
	ctx context.Context,
	dispatcher *bfd.Dispatcher,
	logger *slog.Logger,
	fr *trace.FlightRecorder,
	servers ...*http.Server,
) error {
	logger.Info("initiating graceful shutdown")
	notifyStopping(logger)

	snapshots := dispatcher.Sessions()
	dispatcher.Do(func() {
		for _, sess := range snapshots {
			dispatcher.SetAdminDown(sess.Name)
		}
	})

	time.Sleep(drainTimeout)

	if fr != nil {
		fr.Stop()
		logger.Debug("flight recorder stopped")
	}

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
// Flight recorder -- Go 1.26 runtime/trace
// -------------------------------------------------------------------------

func startFlightRecorder(logger *slog.Logger) *trace.FlightRecorder {
	fr := trace.NewFlightRecorder(trace.FlightRecorderConfig{
		MinAge:   flightRecorderMinAge,
		MaxBytes: flightRecorderMaxBytes,
	})

	if err := fr.Start(); err != nil {
		logger.Warn("failed to start flight recorder", slog.String("error", err.Error()))
		return nil
	}

	logger.Info("flight recorder started",
		slog.Duration("min_age", flightRecorderMinAge),
		slog.Uint64("max_bytes", flightRecorderMaxBytes),
	)

	return fr
}

// -------------------------------------------------------------------------
// Config loading + logger setup
// -------------------------------------------------------------------------

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
		return cfg, nil
	}
	return config.DefaultConfig(), nil
}

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
