package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGetDefaultConfigIsValid(t *testing.T) {
	cfg := GetDefaultConfig()
	require.NoError(t, Validate(cfg))
	require.Equal(t, "INFO", cfg.Logging.Level)
	require.Equal(t, 9000, cfg.NameServer.ListenPort)
	require.Equal(t, 9100, cfg.StorageServer.ListenPort)
	require.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
}

func TestLoadFallsBackToDefaultsWhenNoFileFound(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, GetDefaultConfig(), cfg)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
name_server:
  listen_ip: "10.0.0.1"
  listen_port: 9500
storage_server:
  listen_port: 9600
  ns_host: "10.0.0.1"
  ns_port: 9500
  base_dir: "/data/ss1"
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "10.0.0.1", cfg.NameServer.ListenIP)
	require.Equal(t, 9500, cfg.NameServer.ListenPort)
	require.Equal(t, 9600, cfg.StorageServer.ListenPort)
	require.Equal(t, "/data/ss1", cfg.StorageServer.BaseDir)
	// Unspecified sections still get defaults.
	require.Equal(t, "INFO", cfg.Logging.Level)
}

func TestValidateRejectsBadPort(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.NameServer.ListenPort = 80
	require.Error(t, Validate(cfg))
}

func TestSaveConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	cfg := GetDefaultConfig()
	cfg.StorageServer.BaseDir = "/data/ss1"

	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.StorageServer.BaseDir, loaded.StorageServer.BaseDir)
}
