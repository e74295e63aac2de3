package config

import (
	"strings"
	"time"

	"github.com/marmos91/dfs/internal/nscache"
	"github.com/marmos91/dfs/internal/nsregistry"
)

// DefaultShutdownTimeout is how long nsd/ssd wait for in-flight connections
// to drain before giving up on a graceful shutdown.
const DefaultShutdownTimeout = 30 * time.Second

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Default strategy: zero values (0, "", false) are replaced with sensible
// defaults; explicit values from file/env are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyNameServerDefaults(&cfg.NameServer)
	applyStorageServerDefaults(&cfg.StorageServer)
	applyClientDefaults(&cfg.Client)
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)
	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
	if cfg.Profiling.Endpoint == "" {
		cfg.Profiling.Endpoint = "http://localhost:4040"
	}
	if len(cfg.Profiling.ProfileTypes) == 0 {
		cfg.Profiling.ProfileTypes = []string{"cpu", "alloc_objects", "alloc_space", "inuse_objects", "inuse_space", "goroutines"}
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = 9090
	}
}

func applyNameServerDefaults(cfg *NameServerConfig) {
	if cfg.ListenIP == "" {
		cfg.ListenIP = "0.0.0.0"
	}
	if cfg.ListenPort == 0 {
		cfg.ListenPort = 9000
	}
	if cfg.CacheCapacity == 0 {
		cfg.CacheCapacity = nscache.DefaultCapacity
	}
	if cfg.SSRegistryCapacity == 0 {
		cfg.SSRegistryCapacity = nsregistry.DefaultCapacity
	}
	applyMetricsDefaults(&cfg.Metrics)
}

func applyStorageServerDefaults(cfg *StorageServerConfig) {
	if cfg.ListenIP == "" {
		cfg.ListenIP = "0.0.0.0"
	}
	if cfg.ListenPort == 0 {
		cfg.ListenPort = 9100
	}
	if cfg.NSHost == "" {
		cfg.NSHost = "127.0.0.1"
	}
	if cfg.NSPort == 0 {
		cfg.NSPort = 9000
	}
	if cfg.BaseDir == "" {
		cfg.BaseDir = "/var/lib/dfs/storage"
	}
	applyMetricsDefaults(&cfg.Metrics)
}

func applyClientDefaults(cfg *ClientConfig) {
	if cfg.NSHost == "" {
		cfg.NSHost = "127.0.0.1"
	}
	if cfg.NSPort == 0 {
		cfg.NSPort = 9000
	}
}

// GetDefaultConfig returns a fully-populated Config with every field at its
// default value, used when no config file is found.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
