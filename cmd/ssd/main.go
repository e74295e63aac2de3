// Command ssd runs one storage server: the sentence-granular write engine,
// the undo/checkpoint history, the ACL request queue, and the session that
// registers with and serves the name server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/marmos91/dfs/internal/logger"
	"github.com/marmos91/dfs/internal/metrics"
	"github.com/marmos91/dfs/internal/ssserver"
	"github.com/marmos91/dfs/internal/telemetry"
	"github.com/marmos91/dfs/pkg/config"
)

var (
	version    = "dev"
	configPath string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ssd [ss_ip] [ss_port] [ns_ip] [ns_port]",
		Short: "Run a distributed filesystem storage server",
		Long: `ssd holds a slice of the filesystem's files on local disk, applies
writes at sentence/word granularity under per-sentence locking, keeps an
undo log and named checkpoints, and registers with a name server so
clients can be redirected to it.

Positional args override listen_ip/listen_port/ns_host/ns_port from the
config file.`,
		Args: cobra.MaximumNArgs(4),
		RunE: runSSD,
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to config file (default: $XDG_CONFIG_HOME/dfs/config.yaml)")
	return cmd
}

func runSSD(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if len(args) >= 1 {
		cfg.StorageServer.ListenIP = args[0]
	}
	if len(args) >= 2 {
		port, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid ss_port %q: %w", args[1], err)
		}
		cfg.StorageServer.ListenPort = port
	}
	if len(args) >= 3 {
		cfg.StorageServer.NSHost = args[2]
	}
	if len(args) >= 4 {
		port, err := strconv.Atoi(args[3])
		if err != nil {
			return fmt.Errorf("invalid ns_port %q: %w", args[3], err)
		}
		cfg.StorageServer.NSPort = port
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "ssd",
		ServiceVersion: version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("ssd: telemetry shutdown error", logger.Err(err))
		}
	}()

	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "ssd",
		ServiceVersion: version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("ssd: profiling shutdown error", logger.Err(err))
		}
	}()

	reg := prometheus.NewRegistry()
	ssMetrics := metrics.NewSSMetrics(reg)

	listenAddr := fmt.Sprintf("%s:%d", cfg.StorageServer.ListenIP, cfg.StorageServer.ListenPort)
	nsAddr := fmt.Sprintf("%s:%d", cfg.StorageServer.NSHost, cfg.StorageServer.NSPort)

	srv, err := ssserver.New(listenAddr, nsAddr, cfg.StorageServer.ListenIP, uint32(cfg.StorageServer.ListenPort), cfg.StorageServer.BaseDir, ssMetrics)
	if err != nil {
		return fmt.Errorf("failed to initialize storage server: %w", err)
	}

	if cfg.StorageServer.Metrics.Enabled {
		metricsSrv := startMetricsServer(cfg.StorageServer.Metrics.Port, reg)
		defer metricsSrv.Close()
	}

	serverDone := make(chan error, 1)
	go func() { serverDone <- srv.ListenAndServe() }()

	logger.Info("ssd: listening", logger.ClientAddr(listenAddr), logger.Component("ss"))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("ssd: shutdown signal received")
		srv.StopWithTimeout(cfg.ShutdownTimeout)
		<-serverDone
	case err := <-serverDone:
		if err != nil {
			logger.Error("ssd: server error", logger.Err(err))
			return err
		}
	}
	return nil
}

func startMetricsServer(port int, reg *prometheus.Registry) *http.Server {
	r := chi.NewRouter()
	r.Handle("/metrics", metrics.Handler(reg))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	s := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("ssd: metrics server error", logger.Err(err))
		}
	}()
	return s
}
