// Package config provides YAML-based configuration loading for Waypost.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level Waypost configuration, loaded from config.yaml.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Events    EventsConfig    `yaml:"events"`
	Transport TransportConfig `yaml:"transport"`
	Auth      AuthConfig      `yaml:"auth"`
	Digest    DigestConfig    `yaml:"digest"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
	// HeartbeatSec is the SSE keep-alive interval in seconds.
	HeartbeatSec int `yaml:"heartbeat_sec"`
}

// DatabaseConfig holds relational store settings. Driver is "sqlite" or
// "mysql". For sqlite only Path is used; for mysql the remaining fields
// build the DSN.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Path     string `yaml:"path"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// EventsConfig holds event bus settings. An empty URL means an embedded
// broker is started in-process by the serve command.
type EventsConfig struct {
	NATSURL string `yaml:"nats_url"`
}

// TransportConfig selects the chat transport and its credentials.
type TransportConfig struct {
	// Kind is "discord", "slack" or "mock".
	Kind string `yaml:"kind"`
	// AuthDir is the per-tenant credential store root. Each tenant gets a
	// subdirectory created on first use.
	AuthDir string `yaml:"auth_dir"`
}

// AuthConfig holds dashboard API authentication settings.
type AuthConfig struct {
	// JWTSecret signs and verifies bearer tokens (HS256).
	JWTSecret string `yaml:"jwt_secret"`
	// TokenTTLHours bounds tokens minted by `waypost token`.
	TokenTTLHours int `yaml:"token_ttl_hours"`
}

// DigestConfig controls the daily delivery digest job.
type DigestConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.HeartbeatSec == 0 {
		c.Server.HeartbeatSec = 15
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Path == "" {
		c.Database.Path = "waypost.db"
	}
	if c.Database.Host == "" {
		c.Database.Host = "127.0.0.1"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 3306
	}
	if c.Database.Database == "" {
		c.Database.Database = "waypost"
	}
	if c.Transport.Kind == "" {
		c.Transport.Kind = "mock"
	}
	if c.Transport.AuthDir == "" {
		c.Transport.AuthDir = ".waypost_auth"
	}
	if c.Auth.TokenTTLHours == 0 {
		c.Auth.TokenTTLHours = 24 * 30
	}
	if c.Digest.Cron == "" {
		c.Digest.Cron = "0 8 * * *"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not supported (sqlite, mysql)", c.Database.Driver))
	}
	switch c.Transport.Kind {
	case "discord", "slack", "mock":
	default:
		errs = append(errs, fmt.Sprintf("transport.kind %q is not supported (discord, slack, mock)", c.Transport.Kind))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, "auth.jwt_secret is required")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
