// Package config loads server configuration from YAML and the environment.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Conflict detection strategies for merges.
const (
	ConflictVersion   = "version"
	ConflictTimestamp = "timestamp"
	ConflictNone      = "none"
)

// Config holds the server configuration.
type Config struct {
	GRPCPort   int    `yaml:"grpc_port"`
	HTTPPort   int    `yaml:"http_port"`
	SQLitePath string `yaml:"sqlite_path"`

	Log     LogConfig     `yaml:"log"`
	Version VersionConfig `yaml:"versioning"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// VersionConfig tunes the mutation and merge services.
type VersionConfig struct {
	// MaxRetries bounds re-reads after a lost version race.
	MaxRetries int `yaml:"max_retries"`
	// ConflictDetection selects the merge warning heuristic.
	ConflictDetection string `yaml:"conflict_detection"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		GRPCPort:   50051,
		HTTPPort:   8080,
		SQLitePath: "projectcontrols.db",
		Log: LogConfig{
			Level: "info",
		},
		Version: VersionConfig{
			MaxRetries:        3,
			ConflictDetection: ConflictVersion,
		},
	}
}

// Load reads the YAML file at path (if non-empty) over the defaults and
// then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	ints := []struct {
		key string
		dst *int
	}{
		{"EVM_GRPC_PORT", &cfg.GRPCPort},
		{"EVM_HTTP_PORT", &cfg.HTTPPort},
		{"EVM_MAX_RETRIES", &cfg.Version.MaxRetries},
	}
	for _, e := range ints {
		v, ok := lookup(e.key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", e.key, err)
		}
		*e.dst = n
	}

	if v, ok := lookup("EVM_SQLITE_PATH"); ok && v != "" {
		cfg.SQLitePath = v
	}
	if v, ok := lookup("EVM_LOG_LEVEL"); ok && v != "" {
		cfg.Log.Level = v
	}
	if v, ok := lookup("EVM_CONFLICT_DETECTION"); ok && v != "" {
		cfg.Version.ConflictDetection = v
	}
	return nil
}

// Validate checks the configuration for values the server cannot run with.
func (c Config) Validate() error {
	if c.SQLitePath == "" {
		return fmt.Errorf("sqlite_path is required")
	}
	if c.GRPCPort < 0 || c.GRPCPort > 65535 {
		return fmt.Errorf("grpc_port out of range: %d", c.GRPCPort)
	}
	if c.HTTPPort < 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("http_port out of range: %d", c.HTTPPort)
	}
	if c.Version.MaxRetries < 0 {
		return fmt.Errorf("versioning.max_retries must not be negative")
	}
	switch c.Version.ConflictDetection {
	case ConflictVersion, ConflictTimestamp, ConflictNone:
	default:
		return fmt.Errorf("unknown versioning.conflict_detection %q", c.Version.ConflictDetection)
	}
	return nil
}
