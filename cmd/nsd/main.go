// Command nsd runs the name server: the trie-indexed filename registry,
// the LRU filename->storage-server cache, and the client-facing and
// storage-server-facing dispatchers.
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
	"github.com/marmos91/dfs/internal/nsserver"
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
		Use:   "nsd [ip] [port]",
		Short: "Run the distributed filesystem's name server",
		Long: `nsd runs the name server: the trie-indexed filename->storage-server
registry, the LRU lookup cache, and the ACL store, reachable by storage
servers (for registration) and clients (for every directory operation)
over the binary NS protocol.

Positional ip/port override listen_ip/listen_port from the config file.`,
		Args: cobra.MaximumNArgs(2),
		RunE: runNSD,
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to config file (default: $XDG_CONFIG_HOME/dfs/config.yaml)")
	return cmd
}

func runNSD(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if len(args) >= 1 {
		cfg.NameServer.ListenIP = args[0]
	}
	if len(args) >= 2 {
		port, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid port %q: %w", args[1], err)
		}
		cfg.NameServer.ListenPort = port
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
		ServiceName:    "nsd",
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
			logger.Error("nsd: telemetry shutdown error", logger.Err(err))
		}
	}()

	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "nsd",
		ServiceVersion: version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("nsd: profiling shutdown error", logger.Err(err))
		}
	}()

	reg := prometheus.NewRegistry()
	nsMetrics := metrics.NewNSMetrics(reg)

	listenAddr := fmt.Sprintf("%s:%d", cfg.NameServer.ListenIP, cfg.NameServer.ListenPort)
	srv := nsserver.New(listenAddr, cfg.NameServer.CacheCapacity, cfg.NameServer.SSRegistryCapacity, nsMetrics)

	if cfg.NameServer.Metrics.Enabled {
		metricsSrv := startMetricsServer(cfg.NameServer.Metrics.Port, reg)
		defer metricsSrv.Close()
	}

	serverDone := make(chan error, 1)
	go func() { serverDone <- srv.ListenAndServe() }()

	logger.Info("nsd: listening", logger.ClientAddr(listenAddr))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("nsd: shutdown signal received")
		srv.StopWithTimeout(cfg.ShutdownTimeout)
		<-serverDone
	case err := <-serverDone:
		if err != nil {
			logger.Error("nsd: server error", logger.Err(err))
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
			logger.Error("nsd: metrics server error", logger.Err(err))
		}
	}()
	return s
}
