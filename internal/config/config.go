// Package config manages the bfdd daemon's ambient configuration using
// koanf/v2.
//
// This is deliberately NOT where per-instance BFD parameters come from —
// those are read from a separate bfd_instance keyword-block file (see
// package instancecfg). This file only covers daemon-level concerns: where
// to log, where to serve metrics, where to listen for admin commands, and
// how large the event-sink buffer is. See SPEC_FULL.md section 10 for why
// the two surfaces are kept apart.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete bfdd daemon configuration.
type Config struct {
	Admin     AdminConfig     `koanf:"admin"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	Log       LogConfig       `koanf:"log"`
	EventSink EventSinkConfig `koanf:"event_sink"`

	// Instances is the path to the bfd_instance keyword-block file.
	// Parsed separately by package instancecfg, not by koanf.
	Instances string `koanf:"instances"`
}

// AdminConfig holds the admin HTTP endpoint configuration: session listing
// and reload-trigger, replacing what used to be a gRPC control plane.
type AdminConfig struct {
	// Addr is the HTTP listen address (e.g., ":8080").
	Addr string `koanf:"addr"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9100").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// EventSinkConfig holds the tuning parameters for the byte-oriented
// state-change event pipe.
type EventSinkConfig struct {
	// BufferSize bounds the internal channel between the dispatcher's
	// Emit and the pipe-writing goroutine. A full buffer means the
	// newly emitted event is dropped rather than blocking the
	// dispatcher.
	BufferSize int `koanf:"buffer_size"`

	// Path is the filesystem path (ordinary file or named pipe) the
	// event records are written to. Empty disables the event pipe
	// entirely; state transitions are then only visible via logs and
	// the admin endpoint.
	Path string `koanf:"path"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Admin: AdminConfig{
			Addr: ":8080",
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		EventSink: EventSinkConfig{
			BufferSize: 256,
			Path:       "",
		},
		Instances: "/etc/bfdd/instances.conf",
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for bfdd daemon configuration.
// Variables are named BFDD_<section>_<key>, e.g., BFDD_ADMIN_ADDR.
const envPrefix = "BFDD_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (BFDD_ prefix), and merges on top of DefaultConfig().
// Missing fields inherit defaults.
//
// Environment variable mapping:
//
//	BFDD_ADMIN_ADDR          -> admin.addr
//	BFDD_METRICS_ADDR        -> metrics.addr
//	BFDD_METRICS_PATH        -> metrics.path
//	BFDD_LOG_LEVEL           -> log.level
//	BFDD_LOG_FORMAT          -> log.format
//	BFDD_EVENT_SINK_BUFFER_SIZE -> event_sink.buffer_size
//	BFDD_INSTANCES           -> instances
//
// Uses koanf/v2 with file + env providers and YAML parser.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms BFDD_ADMIN_ADDR -> admin.addr and
// BFDD_EVENT_SINK_BUFFER_SIZE -> event_sink.buffer_size.
// Strips the BFDD_ prefix, lowercases, and replaces the _ that ends the
// section name with "."; underscores inside the event_sink section name
// and inside key names are kept.
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	if rest, ok := strings.CutPrefix(s, "event_sink_"); ok {
		return "event_sink." + rest
	}
	return strings.Replace(s, "_", ".", 1)
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"admin.addr":             defaults.Admin.Addr,
		"metrics.addr":           defaults.Metrics.Addr,
		"metrics.path":           defaults.Metrics.Path,
		"log.level":              defaults.Log.Level,
		"log.format":             defaults.Log.Format,
		"event_sink.buffer_size": defaults.EventSink.BufferSize,
		"event_sink.path":        defaults.EventSink.Path,
		"instances":              defaults.Instances,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrEmptyAdminAddr indicates the admin HTTP listen address is empty.
	ErrEmptyAdminAddr = errors.New("admin.addr must not be empty")

	// ErrEmptyInstances indicates no instance config path was given.
	ErrEmptyInstances = errors.New("instances path must not be empty")

	// ErrInvalidEventSinkBuffer indicates the event-sink buffer size is
	// not positive.
	ErrInvalidEventSinkBuffer = errors.New("event_sink.buffer_size must be > 0")
)

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.Admin.Addr == "" {
		return ErrEmptyAdminAddr
	}

	if cfg.Instances == "" {
		return ErrEmptyInstances
	}

	if cfg.EventSink.BufferSize <= 0 {
		return ErrInvalidEventSinkBuffer
	}

	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
