// Package config loads the Name Server, Storage Server, and Client
// configuration from built-in defaults, a YAML/TOML file, and environment
// variables, in that order of increasing precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the full configuration surface shared by all three binaries.
// Each binary only reads the section(s) relevant to it, but all three
// accept the same file/env layering so one config file can describe a
// whole deployment.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (DFS_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
//
// Environment variables are read only when a configuration file is found,
// and then only for keys that file sets; with no file, Load returns the
// defaults unchanged.
type Config struct {
	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing and profiling.
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// NameServer configures the NS binary.
	NameServer NameServerConfig `mapstructure:"name_server" yaml:"name_server"`

	// StorageServer configures one SS binary.
	StorageServer StorageServerConfig `mapstructure:"storage_server" yaml:"storage_server"`

	// Client configures the client binary.
	Client ClientConfig `mapstructure:"client" yaml:"client"`

	// ShutdownTimeout bounds how long nsd/ssd wait for in-flight
	// connections to drain during a graceful shutdown before the process
	// exits anyway.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive).
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format: text or json.
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written: stdout, stderr, or a file path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled. Default: false.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port).
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use an insecure (non-TLS) connection.
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0).
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration.
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	Enabled      bool     `mapstructure:"enabled" yaml:"enabled"`
	Endpoint     string   `mapstructure:"endpoint" yaml:"endpoint"`
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// MetricsConfig configures the Prometheus metrics HTTP endpoint carried by
// the nsd and ssd binaries, independent of the domain protocols they speak.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// NameServerConfig configures the `nsd` binary: where it listens, and the
// sizes of its in-memory index structures.
type NameServerConfig struct {
	// ListenIP is the interface the NS binds to for both client and storage
	// server connections.
	ListenIP string `mapstructure:"listen_ip" yaml:"listen_ip"`

	// ListenPort is the TCP port clients and storage servers dial.
	ListenPort int `mapstructure:"listen_port" validate:"required,min=1025,max=65535" yaml:"listen_port"`

	// CacheCapacity bounds the LRU filename->ss_index cache (nscache.DefaultCapacity if 0).
	CacheCapacity int `mapstructure:"cache_capacity" yaml:"cache_capacity"`

	// SSRegistryCapacity bounds the number of storage servers the NS can
	// register at once (nsregistry.DefaultCapacity if 0).
	SSRegistryCapacity int `mapstructure:"ss_registry_capacity" yaml:"ss_registry_capacity"`

	// Metrics exposes NS-side Prometheus counters/gauges.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// StorageServerConfig configures one `ssd` binary.
type StorageServerConfig struct {
	// ListenIP/ListenPort is this storage server's own textual-protocol
	// listener, the address it advertises to the NS for client redirects.
	ListenIP   string `mapstructure:"listen_ip" yaml:"listen_ip"`
	ListenPort int    `mapstructure:"listen_port" validate:"required,min=1025,max=65535" yaml:"listen_port"`

	// NSHost/NSPort is the name server this storage server registers with.
	NSHost string `mapstructure:"ns_host" validate:"required" yaml:"ns_host"`
	NSPort int    `mapstructure:"ns_port" validate:"required,min=1025,max=65535" yaml:"ns_port"`

	// BaseDir is the root of this storage server's on-disk layout (see
	// internal/ssfs.Layout): files/, metadata/, versions/, undo/,
	// checkpoints/, checkpoint_meta/, access_requests/.
	BaseDir string `mapstructure:"base_dir" validate:"required" yaml:"base_dir"`

	// Metrics exposes SS-side Prometheus counters/gauges.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// ClientConfig configures the `dfsclient` binary's default NS target.
type ClientConfig struct {
	NSHost   string `mapstructure:"ns_host" validate:"required" yaml:"ns_host"`
	NSPort   int    `mapstructure:"ns_port" validate:"required,min=1025,max=65535" yaml:"ns_port"`
	Username string `mapstructure:"username" yaml:"username,omitempty"`
}

// Load loads configuration from file, environment, and defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !found {
		cfg := GetDefaultConfig()
		return cfg, nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// MustLoad loads configuration, returning a user-friendly error when no
// config file exists at the requested (or default) location.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Create one first, or pass --config /path/to/config.yaml", GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes cfg to path in YAML format.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("DFS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	configDir := getConfigDir()
	v.AddConfigPath(configDir)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// durationDecodeHook lets config files use human-readable durations like
// "30s" for time.Duration fields such as ShutdownTimeout.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "dfs")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "dfs")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists reports whether a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
