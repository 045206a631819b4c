// Package config loads registry configuration from the environment, with
// an optional TOML file for deployments that prefer files over env vars.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Database  DatabaseConfig  `toml:"database"`
	Auth      AuthConfig      `toml:"auth"`
	Storage   StorageConfig   `toml:"storage"`
	Publish   PublishConfig   `toml:"publish"`
	Logging   LogConfig       `toml:"logging"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8800" toml:"port"`
	Host string `envconfig:"HOST" default:"0.0.0.0" toml:"host"`
}

// DatabaseConfig holds the registry database location.
type DatabaseConfig struct {
	Path string `envconfig:"DB_PATH" default:"data/registry.db" toml:"path"`
}

// AuthConfig holds token issuance configuration.
type AuthConfig struct {
	TokenSecret   string `envconfig:"TOKEN_SECRET" toml:"token_secret"`
	TokenTTLHours int    `envconfig:"TOKEN_TTL_HOURS" default:"24" toml:"token_ttl_hours"`
	Issuer        string `envconfig:"TOKEN_ISSUER" default:"jvcli-registry" toml:"issuer"`
}

// StorageConfig selects and tunes the artifact blob backend.
type StorageConfig struct {
	Backend        string `envconfig:"STORAGE_BACKEND" default:"local" toml:"backend"` // "local" or "remote"
	Root           string `envconfig:"STORAGE_ROOT" default:"data/artifacts" toml:"root"`
	RemoteURL      string `envconfig:"STORAGE_REMOTE_URL" toml:"remote_url"`
	RemoteToken    string `envconfig:"STORAGE_REMOTE_TOKEN" toml:"remote_token"`
	TimeoutSeconds int    `envconfig:"STORAGE_TIMEOUT_SECONDS" default:"10" toml:"timeout_seconds"`
	SweepOnStart   bool   `envconfig:"STORAGE_SWEEP_ON_START" default:"false" toml:"sweep_on_start"`
}

// PublishConfig tunes the publish pipeline.
type PublishConfig struct {
	MaxArtifactBytes int64    `envconfig:"PUBLISH_MAX_ARTIFACT_BYTES" default:"33554432" toml:"max_artifact_bytes"`
	RetryAttempts    uint64   `envconfig:"PUBLISH_RETRY_ATTEMPTS" default:"3" toml:"retry_attempts"`
	DeniedPatterns   []string `envconfig:"PUBLISH_DENIED_PATTERNS" default:"**/.git/**,**/__pycache__/**,**/.env" toml:"denied_patterns"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info" toml:"level"`
	Development bool   `envconfig:"LOG_DEV" default:"false" toml:"development"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100" toml:"requests_per_second"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200" toml:"burst"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true" toml:"enabled"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("JVCLI", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from the environment or returns the
// defaults.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// LoadFile loads configuration from a TOML file layered over the defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server:    ServerConfig{Port: "8800", Host: "0.0.0.0"},
		Database:  DatabaseConfig{Path: "data/registry.db"},
		Auth:      AuthConfig{TokenTTLHours: 24, Issuer: "jvcli-registry"},
		Storage:   StorageConfig{Backend: "local", Root: "data/artifacts", TimeoutSeconds: 10},
		Publish:   PublishConfig{MaxArtifactBytes: 32 << 20, RetryAttempts: 3, DeniedPatterns: []string{"**/.git/**", "**/__pycache__/**", "**/.env"}},
		Logging:   LogConfig{Level: "info"},
		RateLimit: RateLimitConfig{RequestsPerSecond: 100, Burst: 200, Enabled: true},
	}
}

// Validate checks cross-field requirements that envconfig cannot express.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Auth.TokenSecret) == "" {
		return fmt.Errorf("auth token secret is required (JVCLI_TOKEN_SECRET)")
	}
	if c.Storage.Backend != "local" && c.Storage.Backend != "remote" {
		return fmt.Errorf("storage backend %q must be local or remote", c.Storage.Backend)
	}
	if c.Storage.Backend == "remote" && strings.TrimSpace(c.Storage.RemoteURL) == "" {
		return fmt.Errorf("remote storage backend requires a URL (JVCLI_STORAGE_REMOTE_URL)")
	}
	return nil
}
