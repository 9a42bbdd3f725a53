// Package config loads pez settings from defaults, an optional YAML file and
// PEZ_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultMaxCount       = 100
	DefaultRetryAfter     = 3600 * time.Second
	DefaultConnectTimeout = 30 * time.Second
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Environment variable names.
const (
	EnvDBDriver       = "PEZ_DB_DRIVER"
	EnvDBHost         = "PEZ_DB_HOST"
	EnvDBPort         = "PEZ_DB_PORT"
	EnvDBName         = "PEZ_DB_NAME"
	EnvDBUsername     = "PEZ_DB_USERNAME"
	EnvDBPassword     = "PEZ_DB_PASSWORD"
	EnvDBPath         = "PEZ_DB_PATH"
	EnvMaxCount       = "PEZ_MAX_COUNT"
	EnvRetryAfter     = "PEZ_RETRY_AFTER"
	EnvConnectTimeout = "PEZ_CONNECT_TIMEOUT"
)

// DB holds counter store connection settings.
type DB struct {
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// Path is the SQLite database file; empty means ~/.pez/pez.db.
	Path string `yaml:"path,omitempty"`
}

// Config is the resolved pez configuration.
type Config struct {
	DB             DB            `yaml:"db"`
	MaxCount       int           `yaml:"max_count"`
	RetryAfter     time.Duration `yaml:"-"`
	ConnectTimeout time.Duration `yaml:"-"`
}

// fileConfig mirrors the YAML layout. Durations are written as seconds or Go
// duration strings, so they are decoded as text.
type fileConfig struct {
	DB             DB     `yaml:"db"`
	MaxCount       string `yaml:"max_count"`
	RetryAfter     string `yaml:"retry_after"`
	ConnectTimeout string `yaml:"connect_timeout"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DB: DB{
			Driver:   DriverPostgres,
			Host:     "localhost",
			Port:     5432,
			Name:     "pez",
			Username: "pezuser",
			Password: "secretpassword",
		},
		MaxCount:       DefaultMaxCount,
		RetryAfter:     DefaultRetryAfter,
		ConnectTimeout: DefaultConnectTimeout,
	}
}

// LookupFunc resolves an environment variable.
type LookupFunc func(key string) (string, bool)

// Load resolves configuration from the YAML file at path (skipped when empty)
// and the process environment.
func Load(path string) (Config, error) {
	return LoadFrom(path, os.LookupEnv)
}

// LoadFrom is Load with an explicit environment lookup.
func LoadFrom(path string, lookup LookupFunc) (Config, error) {
	cfg := Default()

	if clean := strings.TrimSpace(path); clean != "" {
		data, err := os.ReadFile(clean)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %q: %w", clean, err)
		}
		if err := cfg.applyYAML(data); err != nil {
			return Config{}, fmt.Errorf("config: %q: %w", clean, err)
		}
	}

	if lookup == nil {
		lookup = func(string) (string, bool) { return "", false }
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromMap resolves configuration from a key/value map, as used in tests and
// by callers that already captured an environment.
func FromMap(env map[string]string) (Config, error) {
	return LoadFrom("", func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	})
}

func (c *Config) applyYAML(data []byte) error {
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}

	if fc.DB.Driver != "" {
		c.DB.Driver = fc.DB.Driver
	}
	if fc.DB.Host != "" {
		c.DB.Host = fc.DB.Host
	}
	if fc.DB.Port != 0 {
		c.DB.Port = fc.DB.Port
	}
	if fc.DB.Name != "" {
		c.DB.Name = fc.DB.Name
	}
	if fc.DB.Username != "" {
		c.DB.Username = fc.DB.Username
	}
	if fc.DB.Password != "" {
		c.DB.Password = fc.DB.Password
	}
	if fc.DB.Path != "" {
		c.DB.Path = fc.DB.Path
	}
	if fc.MaxCount != "" {
		n, err := parseMaxCount(fc.MaxCount)
		if err != nil {
			return fmt.Errorf("max_count: %w", err)
		}
		c.MaxCount = n
	}
	if fc.RetryAfter != "" {
		d, err := parseSeconds(fc.RetryAfter)
		if err != nil {
			return fmt.Errorf("retry_after: %w", err)
		}
		c.RetryAfter = d
	}
	if fc.ConnectTimeout != "" {
		d, err := parseSeconds(fc.ConnectTimeout)
		if err != nil {
			return fmt.Errorf("connect_timeout: %w", err)
		}
		c.ConnectTimeout = d
	}
	return nil
}

func (c *Config) applyEnv(lookup LookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str(EnvDBDriver, &c.DB.Driver)
	str(EnvDBHost, &c.DB.Host)
	str(EnvDBName, &c.DB.Name)
	str(EnvDBUsername, &c.DB.Username)
	str(EnvDBPath, &c.DB.Path)
	if v, ok := lookup(EnvDBPassword); ok && v != "" {
		c.DB.Password = v
	}

	if v, ok := lookup(EnvDBPort); ok && strings.TrimSpace(v) != "" {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvDBPort, err)
		}
		c.DB.Port = port
	}
	if v, ok := lookup(EnvMaxCount); ok {
		n, err := parseMaxCount(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvMaxCount, err)
		}
		c.MaxCount = n
	}
	if v, ok := lookup(EnvRetryAfter); ok && strings.TrimSpace(v) != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvRetryAfter, err)
		}
		c.RetryAfter = d
	}
	if v, ok := lookup(EnvConnectTimeout); ok && strings.TrimSpace(v) != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvConnectTimeout, err)
		}
		c.ConnectTimeout = d
	}
	return nil
}

// parseMaxCount parses a base-10 integer. Values <= 0 select the default;
// anything non-numeric is an error.
func parseMaxCount(raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return DefaultMaxCount, nil
	}
	return n, nil
}

// parseSeconds accepts a bare number of seconds or a Go duration string.
func parseSeconds(raw string) (time.Duration, error) {
	clean := strings.TrimSpace(raw)
	if n, err := strconv.Atoi(clean); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(clean)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}
	return d, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	switch c.DB.Driver {
	case DriverPostgres:
		if c.DB.Host == "" || c.DB.Name == "" {
			return errors.New("config: postgres requires a host and a database name")
		}
		if c.DB.Port <= 0 || c.DB.Port > 65535 {
			return fmt.Errorf("config: invalid database port %d", c.DB.Port)
		}
	case DriverSQLite, DriverMemory:
	default:
		return fmt.Errorf("config: unknown database driver %q", c.DB.Driver)
	}
	if c.MaxCount <= 0 {
		return fmt.Errorf("config: max_count must be positive, got %d", c.MaxCount)
	}
	if c.RetryAfter < time.Second {
		return fmt.Errorf("config: retry_after must be at least one second, got %s", c.RetryAfter)
	}
	return nil
}

// Redacted returns a copy safe to log.
func (c Config) Redacted() Config {
	out := c
	if out.DB.Password != "" {
		out.DB.Password = "***"
	}
	return out
}
