// Package config loads the parleyd TOML configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// ServerConfig is the parleyd process configuration. Timeouts are
// expressed in milliseconds in the file.
type ServerConfig struct {
	Name        string   `toml:"name"`
	ChatAddr    string   `toml:"chat_addr"`
	AdminAddr   string   `toml:"admin_addr"`
	CorsOrigins []string `toml:"cors_origins"`

	DBPath string `toml:"db_path"` // empty selects the in-memory store

	AdminToken string `toml:"admin_token"` // empty leaves the admin surface open

	HandshakeTimeoutMS int64 `toml:"handshake_timeout_ms"`
	SweepIntervalMS    int64 `toml:"sweep_interval_ms"`
	WriteTimeoutMS     int64 `toml:"write_timeout_ms"`
	StoreTimeoutMS     int64 `toml:"store_timeout_ms"`
}

// HandshakeTimeout converts the configured value, 0 when unset.
func (c ServerConfig) HandshakeTimeout() time.Duration {
	return time.Duration(c.HandshakeTimeoutMS) * time.Millisecond
}

func (c ServerConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMS) * time.Millisecond
}

func (c ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutMS) * time.Millisecond
}

func (c ServerConfig) StoreTimeout() time.Duration {
	return time.Duration(c.StoreTimeoutMS) * time.Millisecond
}

// LoadServerConfig reads and validates a config file, filling defaults.
func LoadServerConfig(path string) (ServerConfig, error) {
	var cfg ServerConfig
	if err := loadToml(path, &cfg); err != nil {
		return ServerConfig{}, err
	}
	if cfg.Name == "" {
		cfg.Name = "parleyd"
	}
	if cfg.ChatAddr == "" {
		cfg.ChatAddr = ":9400"
	}
	if cfg.AdminAddr == "" {
		cfg.AdminAddr = ":9401"
	}
	if err := ValidateServerConfig(cfg); err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateServerConfig(cfg ServerConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("server config missing name")
	}
	if strings.TrimSpace(cfg.ChatAddr) == "" {
		return fmt.Errorf("server config missing chat_addr")
	}
	if strings.TrimSpace(cfg.AdminAddr) == "" {
		return fmt.Errorf("server config missing admin_addr")
	}
	if cfg.HandshakeTimeoutMS < 0 || cfg.SweepIntervalMS < 0 ||
		cfg.WriteTimeoutMS < 0 || cfg.StoreTimeoutMS < 0 {
		return fmt.Errorf("server config timeouts must not be negative")
	}
	return nil
}
