// Copyright (c) 2026 CourseHub
//
// This file is part of the CourseHub portal.
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0).
// See https://www.gnu.org/licenses/agpl-3.0.html

package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/coursehub/portal/pkg/passkey"
	"github.com/coursehub/portal/pkg/ratelimit"
	"gopkg.in/yaml.v3"
)

// Config represents the complete portal server configuration
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Logging   LoggingConfig    `yaml:"logging"`
	TLS       TLSConfig        `yaml:"tls"`
	Passkey   passkey.Config   `yaml:"passkey"`
	Token     TokenConfig      `yaml:"token"`
	Storage   StorageConfig    `yaml:"storage"`
	RateLimit ratelimit.Config `yaml:"ratelimit"`
	Metrics   MetricsConfig    `yaml:"metrics"`
	Health    HealthConfig     `yaml:"health"`
}

// ServerConfig contains server-level settings
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TokenConfig controls session token issuance after a successful login
type TokenConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Issuer   string        `yaml:"issuer"`
	Audience string        `yaml:"audience"`
	TTL      time.Duration `yaml:"ttl"`

	// KeyFile holds a PEM-encoded ECDSA P-256 private key. When empty and
	// tokens are enabled, the server generates an ephemeral signing key at
	// startup.
	KeyFile string `yaml:"key_file"`
}

// StorageConfig selects the credential store backend
type StorageConfig struct {
	Backend string `yaml:"backend"` // memory, sqlite
	Path    string `yaml:"path"`    // sqlite database file
}

// MetricsConfig controls the Prometheus metrics endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// HealthConfig controls the health check endpoints
type HealthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns a configuration suitable for local development.
func Default() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8443,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Token: TokenConfig{
			Enabled:  true,
			Issuer:   "coursehub-portal",
			Audience: "coursehub",
			TTL:      30 * time.Minute,
		},
		Storage: StorageConfig{
			Backend: "memory",
		},
		RateLimit: ratelimit.Config{
			Enabled:           true,
			RequestsPerMinute: 120,
			Burst:             20,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Health: HealthConfig{
			Enabled: true,
			Path:    "/health",
		},
	}
	cfg.Passkey.SetDefaults()
	return cfg
}

// Load reads configuration from a YAML file and applies environment variable
// overrides. An empty path skips the file and loads defaults plus overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	// Passkey defaults are applied after the file and environment are
	// merged so that origins derive from the configured RP ID rather than
	// the built-in one.
	cfg.Passkey = passkey.Config{}

	if path != "" {
		// #nosec G304 - Config file path is provided by admin/user
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	if err := env.Parse(&cfg.Passkey); err != nil {
		return nil, fmt.Errorf("failed to parse passkey environment overrides: %w", err)
	}
	cfg.Passkey.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(cfg *Config) {
	if host := os.Getenv("PORTAL_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if portStr := os.Getenv("PORTAL_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			log.Printf("Warning: invalid PORTAL_PORT value %q, using default %d: %v",
				portStr, cfg.Server.Port, err)
		} else if port < 1 || port > 65535 {
			log.Printf("Warning: invalid PORTAL_PORT value %q (out of range 1-65535), using default %d",
				portStr, cfg.Server.Port)
		} else {
			cfg.Server.Port = port
		}
	}

	if level := os.Getenv("PORTAL_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if format := os.Getenv("PORTAL_LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}

	if backend := os.Getenv("PORTAL_STORAGE_BACKEND"); backend != "" {
		cfg.Storage.Backend = backend
	}
	if path := os.Getenv("PORTAL_STORAGE_PATH"); path != "" {
		cfg.Storage.Path = path
	}

	if keyFile := os.Getenv("PORTAL_TOKEN_KEY_FILE"); keyFile != "" {
		cfg.Token.KeyFile = keyFile
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validFormats := map[string]bool{
		"json": true, "text": true,
	}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Logging.Format)
	}

	if c.TLS.Enabled {
		if c.TLS.CertFile == "" {
			return fmt.Errorf("TLS cert_file is required when TLS is enabled")
		}
		if c.TLS.KeyFile == "" {
			return fmt.Errorf("TLS key_file is required when TLS is enabled")
		}
	}

	switch c.Storage.Backend {
	case "memory":
	case "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("invalid storage backend: %s (must be memory or sqlite)", c.Storage.Backend)
	}

	if c.Token.Enabled {
		if c.Token.Issuer == "" {
			return fmt.Errorf("token issuer is required when tokens are enabled")
		}
		if c.Token.TTL <= 0 {
			return fmt.Errorf("token ttl must be positive")
		}
	}

	if err := c.Passkey.Validate(); err != nil {
		return fmt.Errorf("invalid passkey configuration: %w", err)
	}

	return nil
}
