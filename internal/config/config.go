// Package config loads and validates application configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Secrets  SecretsConfig  `yaml:"secrets"`
	Security SecurityConfig `yaml:"security"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	TLS      TLSConfig      `yaml:"tls"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxRequestBody  int64         `yaml:"max_request_body_bytes"`
}

// DatabaseConfig describes how to reach Postgres. A non-empty DSN is used
// as-is (local development); otherwise the DSN is assembled from the
// database name, the Cloud SQL unix socket directory, the instance
// connection name, and credentials fetched from Secret Manager.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	Name                   string `yaml:"name"`
	SocketDir              string `yaml:"socket_dir"`
	InstanceConnectionName string `yaml:"instance_connection_name"`
	Migrate                bool   `yaml:"migrate"`
}

// SecretsConfig names the Secret Manager entries holding DB credentials.
type SecretsConfig struct {
	Project    string `yaml:"project"`
	UserSecret string `yaml:"user_secret"`
	PassSecret string `yaml:"pass_secret"`
	Version    string `yaml:"version"`
}

type SecurityConfig struct {
	AllowedKeys    []string `yaml:"allowed_keys"`
	RateLimitRPS   float64  `yaml:"rate_limit_rps"`
	RateLimitBurst int      `yaml:"rate_limit_burst"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// TLSConfig controls HTTPS/TLS termination.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 -- path comes from CLI flag or hardcoded default
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns sensible defaults for all configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxRequestBody:  8 << 20, // 8MB, raw source snapshots can be large
		},
		Database: DatabaseConfig{
			SocketDir: "/cloudsql",
			Migrate:   true,
		},
		Secrets: SecretsConfig{
			UserSecret: "FORGE_LOGGING_DB_USER",
			PassSecret: "FORGE_LOGGING_DB_PASS",
			Version:    "latest",
		},
		Security: SecurityConfig{
			RateLimitRPS:   100,
			RateLimitBurst: 200,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		TLS: TLSConfig{
			Enabled: false,
		},
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Server.MaxRequestBody < 1 {
		return fmt.Errorf("server.max_request_body_bytes must be >= 1")
	}
	if c.Database.DSN == "" {
		if c.Database.Name == "" {
			return fmt.Errorf("database.name is required when database.dsn is not set")
		}
		if c.Database.InstanceConnectionName == "" {
			return fmt.Errorf("database.instance_connection_name is required when database.dsn is not set")
		}
		if c.Secrets.Project == "" {
			return fmt.Errorf("secrets.project is required when database.dsn is not set")
		}
	}
	if c.TLS.Enabled {
		if c.TLS.CertFile == "" || c.TLS.KeyFile == "" {
			return fmt.Errorf("tls.cert_file and tls.key_file are required when TLS is enabled")
		}
	}
	if strings.Contains(c.Database.DSN, "sslmode=disable") {
		log.Warn().Msg("database DSN has sslmode=disable, connections to Postgres are unencrypted")
	}
	return nil
}

// Address returns the listen address string.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
