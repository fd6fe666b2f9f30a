package config

import (
	"time"

	"github.com/marmos91/chanrpc/internal/frame"
)

// GetDefaultConfig returns a Config populated entirely with defaults,
// matching transport.DefaultConfig's values for the transport knobs.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills in any zero-valued field left unset by the file/env
// layers, mirroring the teacher's per-section applyXDefaults helpers.
//
// Zero-valued strings and numbers are replaced with defaults; explicit
// values are preserved. CloseIdleConnections is always set to true here;
// Load runs ApplyDefaults before merging the file/env layers, so an
// explicit close_idle_connections: false in the file still wins.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyTransportDefaults(&cfg.Transport)
	applyMetricsDefaults(&cfg.Metrics)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7070"
	}
	if cfg.AppID == "" {
		cfg.AppID = "chanrpcd"
	}
}

func applyTransportDefaults(cfg *TransportConfig) {
	if cfg.ConnectionTimeout == 0 {
		cfg.ConnectionTimeout = 30 * time.Second
	}
	if cfg.MaxChunksBeingTransferred == 0 {
		cfg.MaxChunksBeingTransferred = 64
	}
	if cfg.MaxFrameSize == 0 {
		cfg.MaxFrameSize = frame.DefaultMaxFrameSize
	}
	// CloseIdleConnections defaults to true. Unlike the zero-value fields
	// above, ApplyDefaults only ever runs once, before Load merges the
	// file/env layers on top (see Load's comment), so setting it
	// unconditionally here is safe: it never clobbers an explicit value.
	cfg.CloseIdleConnections = true
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = 9090
	}
}
