// Package config provides configuration loading for the cost engine server.
//
// Sources are layered, later ones winning:
//
//	defaults -> YAML file -> .env file -> process environment -> command-line flags
//
// Flags are bound by cmd/server; everything else is resolved by Load.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables read by Load.
const (
	EnvPort        = "COST_ENGINE_PORT"
	EnvStorage     = "COST_ENGINE_STORAGE"
	EnvDB          = "COST_ENGINE_DB"
	EnvLogLevel    = "COST_ENGINE_LOG_LEVEL"
	EnvPolicyFile  = "COST_ENGINE_POLICY_FILE"
	EnvCORSOrigins = "COST_ENGINE_CORS_ORIGINS"
	EnvScenario    = "COST_ENGINE_SCENARIO"
)

// Storage drivers.
const (
	StorageSQLite = "sqlite"
	StorageMemory = "memory"
)

// Config represents the complete server configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
	Pricing PricingConfig `yaml:"pricing"`
	Seed    SeedConfig    `yaml:"seed"`
}

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	Port int `yaml:"port"`
	// CORSOrigins lists allowed browser origins ("*" allows any)
	CORSOrigins []string `yaml:"cors_origins"`
}

// StorageConfig selects the repository backend
type StorageConfig struct {
	// Driver is "sqlite" or "memory"
	Driver string `yaml:"driver"`
	// Path is the SQLite database file (":memory:" for a throwaway database)
	Path string `yaml:"path"`
}

// LogConfig configures structured logging
type LogConfig struct {
	// Level is one of debug, info, warn, error
	Level string `yaml:"level"`
}

// PricingConfig points at the alert/tax policy document
type PricingConfig struct {
	// PolicyFile is a JSON policy (empty = built-in defaults)
	PolicyFile string `yaml:"policy_file"`
}

// SeedConfig loads a demo scenario on startup
type SeedConfig struct {
	// Scenario is a scenario id from the api package (empty = none)
	Scenario string `yaml:"scenario"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8080,
			CORSOrigins: []string{"*"},
		},
		Storage: StorageConfig{
			Driver: StorageSQLite,
			Path:   "./data/cost-engine.db",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	switch c.Storage.Driver {
	case StorageSQLite:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the sqlite driver")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("storage.driver must be %q or %q", StorageSQLite, StorageMemory)
	}
	if _, err := ParseLogLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file on top of the defaults
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return config, nil
}

// Options tells Load where to look.
type Options struct {
	// File is an optional YAML file. A missing file is an error.
	File string
	// EnvFile is a dotenv file. A missing file is ignored.
	EnvFile string
	// Lookup reads the process environment. Defaults to os.LookupEnv.
	Lookup func(key string) (string, bool)
}

// Load resolves defaults, the YAML file and the environment, then
// validates. Process environment wins over the .env file.
func Load(opts Options) (*Config, error) {
	cfg := DefaultConfig()
	if opts.File != "" {
		fromFile, err := LoadFromFile(opts.File)
		if err != nil {
			return nil, err
		}
		cfg = fromFile
	}

	dotenv := map[string]string{}
	if opts.EnvFile != "" {
		values, err := godotenv.Read(opts.EnvFile)
		switch {
		case err == nil:
			dotenv = values
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read env file: %w", err)
		}
	}

	lookup := opts.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	layered := func(key string) (string, bool) {
		if v, ok := lookup(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}

	if err := cfg.ApplyEnv(layered); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables.
func (c *Config) ApplyEnv(lookup func(key string) (string, bool)) error {
	if v, ok := lookup(EnvPort); ok {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %q is not a port number", EnvPort, v)
		}
		c.Server.Port = port
	}
	if v, ok := lookup(EnvStorage); ok {
		c.Storage.Driver = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvDB); ok {
		c.Storage.Path = v
	}
	if v, ok := lookup(EnvLogLevel); ok {
		c.Log.Level = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvPolicyFile); ok {
		c.Pricing.PolicyFile = v
	}
	if v, ok := lookup(EnvCORSOrigins); ok {
		c.Server.CORSOrigins = splitList(v)
	}
	if v, ok := lookup(EnvScenario); ok {
		c.Seed.Scenario = strings.TrimSpace(v)
	}
	return nil
}

// ParseLogLevel maps a level name to its slog.Level.
func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log.level %q is not one of debug, info, warn, error", level)
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
