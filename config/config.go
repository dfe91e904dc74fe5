// Package config holds the tunables of the interop dispatcher and loads them
// from TOML or YAML files with INTEROPMESH_* environment overrides.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/interopmesh/core"
	"github.com/hupe1980/interopmesh/logging"
)

// Environment variables consulted by ApplyEnv.
const (
	EnvHandleKey   = "INTEROPMESH_HANDLE_KEY"
	EnvCallTimeout = "INTEROPMESH_CALL_TIMEOUT"
	EnvLogLevel    = "INTEROPMESH_LOG_LEVEL"
	EnvLogFormat   = "INTEROPMESH_LOG_FORMAT"
	EnvLogBackend  = "INTEROPMESH_LOG_BACKEND"
)

// Log backends selectable with LogBackend.
const (
	BackendSlog    = "slog"
	BackendZerolog = "zerolog"
)

// Config defines the operational parameters of a dispatcher.
type Config struct {
	// HandleKey is the reserved key of the handle-wrapper payload shape.
	HandleKey string

	// CallTimeout bounds how long InvokeAs waits for an outbound call's
	// completion report. Zero disables the default timeout; the caller's
	// context still applies.
	CallTimeout time.Duration

	// LogLevel and LogFormat configure the default logger built by
	// NewLogger (format is "json" or "text").
	LogLevel  logging.LogLevel
	LogFormat string

	// LogBackend selects the logger implementation: "slog" or "zerolog".
	LogBackend string

	// LogOutput receives log records; nil means stdout. Not file-configurable.
	LogOutput io.Writer
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		HandleKey:   core.DefaultHandleKey,
		CallTimeout: time.Minute,
		LogLevel:    logging.LogLevelInfo,
		LogFormat:   "json",
		LogBackend:  BackendSlog,
	}
}

// Validate checks the configuration for values the dispatcher cannot use.
func (c Config) Validate() error {
	if strings.TrimSpace(c.HandleKey) == "" {
		return fmt.Errorf("handle_key must not be empty")
	}
	if strings.ContainsAny(c.HandleKey, ".*?|#@\\") {
		return fmt.Errorf("handle_key %q contains reserved path characters", c.HandleKey)
	}
	if c.CallTimeout < 0 {
		return fmt.Errorf("call_timeout must not be negative")
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("log_format must be json or text, got %q", c.LogFormat)
	}
	if c.LogBackend != BackendSlog && c.LogBackend != BackendZerolog {
		return fmt.Errorf("log_backend must be slog or zerolog, got %q", c.LogBackend)
	}
	return nil
}

// NewLogger builds the logger described by the configuration.
func (c Config) NewLogger() logging.Logger {
	out := c.LogOutput
	if out == nil {
		out = os.Stdout
	}
	if c.LogBackend == BackendZerolog {
		return logging.NewZerologLogger(out, c.LogLevel, c.LogFormat)
	}
	return logging.NewSlogLogger(out, c.LogLevel, c.LogFormat, false)
}

// fileConfig mirrors the on-disk shape. Pointer fields distinguish absent
// keys from zero values.
type fileConfig struct {
	HandleKey   *string `toml:"handle_key" yaml:"handle_key"`
	CallTimeout *string `toml:"call_timeout" yaml:"call_timeout"`
	LogLevel    *string `toml:"log_level" yaml:"log_level"`
	LogFormat   *string `toml:"log_format" yaml:"log_format"`
	LogBackend  *string `toml:"log_backend" yaml:"log_backend"`
}

// Load reads a configuration file. The format is chosen by extension: .toml,
// or .yaml/.yml. Keys absent from the file keep their defaults; environment
// overrides are applied last.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}

	var raw fileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		meta, err := toml.Decode(string(data), &raw)
		if err != nil {
			return Config{}, fmt.Errorf("load config: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return Config{}, fmt.Errorf("load config: unknown key %q", undecoded[0].String())
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&raw); err != nil {
			return Config{}, fmt.Errorf("load config: %w", err)
		}
	default:
		return Config{}, fmt.Errorf("load config: unsupported file extension %q", filepath.Ext(path))
	}

	cfg := Default()
	if err := raw.apply(&cfg); err != nil {
		return Config{}, err
	}
	if err := ApplyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func (raw fileConfig) apply(cfg *Config) error {
	if raw.HandleKey != nil {
		cfg.HandleKey = strings.TrimSpace(*raw.HandleKey)
	}
	if raw.CallTimeout != nil {
		d, err := time.ParseDuration(strings.TrimSpace(*raw.CallTimeout))
		if err != nil {
			return fmt.Errorf("parse call_timeout: %w", err)
		}
		cfg.CallTimeout = d
	}
	if raw.LogLevel != nil {
		lvl, err := logging.ParseLevel(*raw.LogLevel)
		if err != nil {
			return fmt.Errorf("parse log_level: %w", err)
		}
		cfg.LogLevel = lvl
	}
	if raw.LogFormat != nil {
		cfg.LogFormat = strings.ToLower(strings.TrimSpace(*raw.LogFormat))
	}
	if raw.LogBackend != nil {
		cfg.LogBackend = strings.ToLower(strings.TrimSpace(*raw.LogBackend))
	}
	return nil
}

// ApplyEnv overrides cfg from INTEROPMESH_* environment variables.
func ApplyEnv(cfg *Config) error {
	if v, ok := os.LookupEnv(EnvHandleKey); ok {
		cfg.HandleKey = strings.TrimSpace(v)
	}
	if v, ok := os.LookupEnv(EnvCallTimeout); ok {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvCallTimeout, err)
		}
		cfg.CallTimeout = d
	}
	if v, ok := os.LookupEnv(EnvLogLevel); ok {
		lvl, err := logging.ParseLevel(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvLogLevel, err)
		}
		cfg.LogLevel = lvl
	}
	if v, ok := os.LookupEnv(EnvLogFormat); ok {
		cfg.LogFormat = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := os.LookupEnv(EnvLogBackend); ok {
		cfg.LogBackend = strings.ToLower(strings.TrimSpace(v))
	}
	return nil
}
