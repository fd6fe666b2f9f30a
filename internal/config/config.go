// Package config loads chanrpc's layered configuration: CLI flags, then
// CHANRPC_* environment variables, then a YAML file, then struct defaults —
// grounded on the teacher's pkg/config.Config precedence and decode-hook
// machinery.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/marmos91/chanrpc/internal/transport"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the concrete, loadable form of SPEC_FULL.md §6's Configuration
// knobs plus the ambient logging and metrics settings.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Transport TransportConfig `mapstructure:"transport" yaml:"transport"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls internal/logger's global sink.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// ServerConfig controls where cmd/chanrpcd listens and the app identity it
// presents to its own stream manager's CheckAuthorization.
type ServerConfig struct {
	ListenAddress string `mapstructure:"listen_address" validate:"required" yaml:"listen_address"`
	AppID         string `mapstructure:"app_id" yaml:"app_id"`
}

// TransportConfig is the loadable mirror of transport.Config.
type TransportConfig struct {
	ConnectionTimeout         time.Duration `mapstructure:"connection_timeout" validate:"required,gt=0" yaml:"connection_timeout"`
	MaxChunksBeingTransferred int32         `mapstructure:"max_chunks_being_transferred" validate:"gte=0" yaml:"max_chunks_being_transferred"`
	CloseIdleConnections      bool          `mapstructure:"close_idle_connections" yaml:"close_idle_connections"`
	MaxFrameSize              int64         `mapstructure:"max_frame_size" validate:"required,gt=0" yaml:"max_frame_size"`
}

// ToTransportConfig converts the loaded configuration into the transport
// package's runtime Config.
func (c TransportConfig) ToTransportConfig() transport.Config {
	return transport.Config{
		ConnectionTimeout:         c.ConnectionTimeout,
		MaxChunksBeingTransferred: c.MaxChunksBeingTransferred,
		CloseIdleConnections:      c.CloseIdleConnections,
		MaxFrameSize:              c.MaxFrameSize,
	}
}

// MetricsConfig configures the Prometheus metrics HTTP server cmd/chanrpcd
// exposes.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// Load reads configuration from configPath (or the default search path if
// empty), layering CHANRPC_* environment variables and struct defaults
// underneath, then validates the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	_, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	// AutomaticEnv only answers for keys viper already knows, so bind every
	// key explicitly: a CHANRPC_* variable then applies even to keys the
	// file omits, and when there is no file at all.
	for _, key := range []string{"logging.level", "logging.format", "logging.output",
		"server.listen_address", "server.app_id", "transport.connection_timeout",
		"transport.max_chunks_being_transferred", "transport.close_idle_connections",
		"transport.max_frame_size", "metrics.enabled", "metrics.port"} {
		_ = v.BindEnv(key)
	}

	// Pre-populate with defaults, then let viper's Unmarshal merge the
	// file/env layers on top: mapstructure only overwrites keys present in
	// the source map, so a field the file omits keeps its default — this
	// is what lets CloseIdleConnections default to true while still
	// letting an explicit "false" in the file win.
	cfg := GetDefaultConfig()
	if err := v.Unmarshal(cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("CHANRPC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}

	v.AddConfigPath(getConfigDir())
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

// durationDecodeHook lets YAML/env values like "30s" bind into
// time.Duration fields, same as the teacher's own hook.
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
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "chanrpc")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "chanrpc")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// SaveConfig writes cfg to path as YAML, creating parent directories as
// needed. It marshals with yaml.Marshal directly rather than going through
// viper, so the struct's own yaml tags (not mapstructure's) control the
// field names on disk.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// 0600: config files may hold sensitive values (app_id, listen
	// addresses tied to internal hosts), so keep them owner-readable only.
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
