// Package config loads server configuration from defaults, an optional
// YAML file, and environment overrides, in that order.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "30s" parse.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"5s\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config holds all server settings.
type Config struct {
	Addr              string   `yaml:"addr"`
	RedisAddr         string   `yaml:"redis_addr"`
	LogLevel          string   `yaml:"log_level"`
	ShutdownTimeout   Duration `yaml:"shutdown_timeout"`
	MaxSessions       int      `yaml:"max_sessions"`
	MessageRateMax    int      `yaml:"message_rate_max"`
	MessageRateWindow Duration `yaml:"message_rate_window"`
}

// Default returns the configuration used when nothing else is set.
func Default() Config {
	return Config{
		Addr:              ":8080",
		RedisAddr:         "localhost:6379",
		LogLevel:          "info",
		ShutdownTimeout:   Duration(5 * time.Second),
		MaxSessions:       0,
		MessageRateMax:    10,
		MessageRateWindow: Duration(10 * time.Second),
	}
}

// Load builds the effective configuration. path may be empty to skip
// the file layer. Environment variables win over the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		c.Addr = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.RedisAddr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}
