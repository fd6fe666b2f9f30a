package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := GetDefaultConfig()
	require.NoError(t, Validate(cfg))
	assert.True(t, cfg.Transport.CloseIdleConnections)
	assert.Equal(t, 30*time.Second, cfg.Transport.ConnectionTimeout)
}

func TestValidateRejectsInvalidLogLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "VERBOSE"

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oneof")
}

func TestValidateRejectsNonPositiveConnectionTimeout(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Transport.ConnectionTimeout = 0

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ConnectionTimeout")
}

func TestLoadFallsBackToDefaultsWhenNoFileFound(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.True(t, cfg.Transport.CloseIdleConnections)
}

func TestLoadMergesYAMLOverDefaultsPreservingUnsetFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := []byte("logging:\n  level: DEBUG\ntransport:\n  close_idle_connections: false\n")
	require.NoError(t, os.WriteFile(path, yaml, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.False(t, cfg.Transport.CloseIdleConnections)
	// Fields the file never mentioned keep their defaults.
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, int32(64), cfg.Transport.MaxChunksBeingTransferred)
}

func TestSaveConfigThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := GetDefaultConfig()
	cfg.Logging.Level = "DEBUG"
	cfg.Server.AppID = "custom-app"

	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "DEBUG", loaded.Logging.Level)
	assert.Equal(t, "custom-app", loaded.Server.AppID)
	assert.Equal(t, cfg.Transport, loaded.Transport)
}

func TestToTransportConfig(t *testing.T) {
	cfg := GetDefaultConfig()
	tc := cfg.Transport.ToTransportConfig()
	assert.Equal(t, cfg.Transport.ConnectionTimeout, tc.ConnectionTimeout)
	assert.Equal(t, cfg.Transport.MaxFrameSize, tc.MaxFrameSize)
}
