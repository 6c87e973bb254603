// Copyright 2026 The Seed Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment identifies the deployment type.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Config is the seed server configuration.
type Config struct {
	// Environment selects which override section applies.
	Environment Environment `yaml:"environment"`

	// Listen is the WebSocket listener address, host:port.
	Listen string `yaml:"listen"`

	// TLS configures the listener's certificate material. Both paths
	// empty means plain TCP.
	TLS TLSConfig `yaml:"tls"`

	// Database configures the SQLite message store.
	Database DatabaseConfig `yaml:"database"`

	// Seal configures at-rest payload sealing. An empty key file
	// disables sealing; payloads are then stored compressed but in
	// the clear.
	Seal SealConfig `yaml:"seal"`

	// Auth configures credential token verification.
	Auth AuthConfig `yaml:"auth"`

	// Ops configures the operational inspection socket. An empty
	// socket path disables it.
	Ops OpsConfig `yaml:"ops"`

	// Log configures slog output.
	Log LogConfig `yaml:"log"`

	// Session carries the session-core tunables.
	Session SessionConfig `yaml:"session"`

	// Per-environment override sections, applied after the base
	// values when Environment matches.
	Development *Overrides `yaml:"development,omitempty"`
	Staging     *Overrides `yaml:"staging,omitempty"`
	Production  *Overrides `yaml:"production,omitempty"`
}

// TLSConfig names the PEM files for the listener.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// Enabled reports whether TLS material is configured.
func (t TLSConfig) Enabled() bool {
	return t.CertFile != "" || t.KeyFile != ""
}

// DatabaseConfig locates the SQLite store.
type DatabaseConfig struct {
	// Path is the database file. The parent directory must exist.
	Path string `yaml:"path"`

	// PoolSize is the connection pool size; zero picks a default
	// from the CPU count.
	PoolSize int `yaml:"pool_size"`
}

// SealConfig names the payload sealing key.
type SealConfig struct {
	// KeyFile holds the 32-byte sealing key, hex encoded. "-" reads
	// the key from stdin at startup.
	KeyFile string `yaml:"key_file"`
}

// AuthConfig configures token verification.
type AuthConfig struct {
	// PublicKeyFile is the Ed25519 public key that signed client
	// tokens.
	PublicKeyFile string `yaml:"public_key_file"`

	// Audience is this deployment's name; tokens minted for another
	// audience are rejected.
	Audience string `yaml:"audience"`
}

// OpsConfig configures the unix ops socket.
type OpsConfig struct {
	SocketPath string `yaml:"socket_path"`
}

// LogConfig configures slog.
type LogConfig struct {
	// Level is debug, info, warn, or error.
	Level string `yaml:"level"`

	// Format is text or json.
	Format string `yaml:"format"`
}

// SessionConfig carries the session-core tunables as written in YAML.
// Durations are strings in time.ParseDuration syntax; zero values mean
// "use the core's default".
type SessionConfig struct {
	AuthWindow         string `yaml:"auth_window"`
	IdleWindow         string `yaml:"idle_window"`
	DrainGrace         string `yaml:"drain_grace"`
	HeartbeatInterval  string `yaml:"heartbeat_interval"`
	QueueCapacity      int    `yaml:"queue_capacity"`
	QueuePushTimeout   string `yaml:"queue_push_timeout"`
	OverflowPolicy     string `yaml:"overflow_policy"`
	MaxFrameBytes      int    `yaml:"max_frame_bytes"`
	PersistAttempts    int    `yaml:"persist_attempts"`
	PersistBackoffBase string `yaml:"persist_backoff_base"`
	PersistBackoffMax  string `yaml:"persist_backoff_max"`
	PersistCallTimeout string `yaml:"persist_call_timeout"`
	ReplayBatch        int    `yaml:"replay_batch"`
}

// Overrides holds the fields an environment section may replace.
type Overrides struct {
	Listen   string          `yaml:"listen,omitempty"`
	TLS      *TLSConfig      `yaml:"tls,omitempty"`
	Database *DatabaseConfig `yaml:"database,omitempty"`
	Ops      *OpsConfig      `yaml:"ops,omitempty"`
	Log      *LogConfig      `yaml:"log,omitempty"`
}

// Default returns the base configuration. The config file overlays
// these values; they exist so every field has a sane zero state, not
// as a substitute for the file.
func Default() *Config {
	return &Config{
		Environment: Development,
		Listen:      "127.0.0.1:8473",
		Database: DatabaseConfig{
			Path: "${SEED_ROOT:-/var/lib/seed}/seed.db",
		},
		Auth: AuthConfig{
			Audience: "seed",
		},
		Ops: OpsConfig{
			SocketPath: "/run/seed/ops.sock",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the file named by SEED_CONFIG. Fails if the variable is
// unset: configuration is always explicit.
func Load() (*Config, error) {
	path := os.Getenv("SEED_CONFIG")
	if path == "" {
		return nil, fmt.Errorf("SEED_CONFIG environment variable not set; " +
			"point it at your seed.yaml, or pass --config")
	}
	return LoadFile(path)
}

// LoadFile reads and resolves one configuration file: base values,
// then the matching environment section, then ${VAR} expansion on
// paths.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *Overrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}
	if overrides == nil {
		return
	}

	if overrides.Listen != "" {
		c.Listen = overrides.Listen
	}
	if overrides.TLS != nil {
		c.TLS = *overrides.TLS
	}
	if overrides.Database != nil {
		if overrides.Database.Path != "" {
			c.Database.Path = overrides.Database.Path
		}
		if overrides.Database.PoolSize != 0 {
			c.Database.PoolSize = overrides.Database.PoolSize
		}
	}
	if overrides.Ops != nil {
		c.Ops = *overrides.Ops
	}
	if overrides.Log != nil {
		if overrides.Log.Level != "" {
			c.Log.Level = overrides.Log.Level
		}
		if overrides.Log.Format != "" {
			c.Log.Format = overrides.Log.Format
		}
	}
}

func (c *Config) expandVariables() {
	c.Database.Path = expandVars(c.Database.Path)
	c.Seal.KeyFile = expandVars(c.Seal.KeyFile)
	c.Auth.PublicKeyFile = expandVars(c.Auth.PublicKeyFile)
	c.Ops.SocketPath = expandVars(c.Ops.SocketPath)
	c.TLS.CertFile = expandVars(c.TLS.CertFile)
	c.TLS.KeyFile = expandVars(c.TLS.KeyFile)
}

// varPattern matches ${VAR} and ${VAR:-default}.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		if len(parts) >= 3 {
			return parts[2]
		}
		return ""
	})
}

// Validate checks the resolved configuration.
func (c *Config) Validate() error {
	var errs []error

	switch c.Environment {
	case Development, Staging, Production:
	default:
		errs = append(errs, fmt.Errorf("invalid environment: %q", c.Environment))
	}

	if c.Listen == "" {
		errs = append(errs, fmt.Errorf("listen is required"))
	}
	if c.Database.Path == "" {
		errs = append(errs, fmt.Errorf("database.path is required"))
	}
	if c.Auth.PublicKeyFile == "" {
		errs = append(errs, fmt.Errorf("auth.public_key_file is required"))
	}
	if c.Auth.Audience == "" {
		errs = append(errs, fmt.Errorf("auth.audience is required"))
	}
	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		errs = append(errs, fmt.Errorf("tls.cert_file and tls.key_file must be set together"))
	}

	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be debug, info, warn, or error"))
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json"))
	}

	for name, value := range map[string]string{
		"session.auth_window":          c.Session.AuthWindow,
		"session.idle_window":          c.Session.IdleWindow,
		"session.drain_grace":          c.Session.DrainGrace,
		"session.heartbeat_interval":   c.Session.HeartbeatInterval,
		"session.queue_push_timeout":   c.Session.QueuePushTimeout,
		"session.persist_backoff_base": c.Session.PersistBackoffBase,
		"session.persist_backoff_max":  c.Session.PersistBackoffMax,
		"session.persist_call_timeout": c.Session.PersistCallTimeout,
	} {
		if _, err := ParseDuration(value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ParseDuration parses a YAML duration field. Empty means unset and
// parses to zero.
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}
