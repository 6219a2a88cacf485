// Package config provides environment-variable-first configuration loading
// with optional YAML file fallback for the dispatch engine.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// defaultMaxBodySize is 50 MB in bytes; batches carry attachments inline.
const defaultMaxBodySize = 52428800

// Config holds the complete application configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Delivery DeliveryConfig `yaml:"delivery"`
	SES      SESConfig      `yaml:"ses"`
	TLS      TLSConfig      `yaml:"tls"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// HTTPConfig holds the JSON API listener configuration.
type HTTPConfig struct {
	Listen      string `yaml:"listen"`
	MaxBodySize int64  `yaml:"max_body_size"`
}

// DeliveryConfig selects the delivery transport: "smtp" (default, uses the
// per-request SMTP settings), "ses", or "stdout".
type DeliveryConfig struct {
	Provider string `yaml:"provider"`
}

// SESConfig holds AWS SES transport configuration.
type SESConfig struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Sender          string `yaml:"sender"`
}

// TLSConfig enables HTTPS for the API and holds certificate file paths.
// With Enabled set and no files given, a self-signed certificate is
// generated at startup.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load loads configuration from environment variables with sensible defaults.
// Environment variables always take precedence.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnvVars()
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file as the base layer,
// then overrides with environment variables. Returns an error if the
// specified file path does not exist.
func LoadFromFile(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Environment variables always override YAML values
	cfg.applyEnvVars()

	return cfg, nil
}

// SESConfigured returns true if the region and sender required by the SES
// transport are set.
func (c *Config) SESConfigured() bool {
	return c.SES.Region != "" && c.SES.Sender != ""
}

// applyDefaults sets sensible default values for all configuration fields.
func (c *Config) applyDefaults() {
	c.HTTP.Listen = ":8000"
	c.HTTP.MaxBodySize = defaultMaxBodySize
	c.Delivery.Provider = "smtp"
	c.Logging.Level = "info"
}

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty environment variables override existing values.
func (c *Config) applyEnvVars() {
	if v := os.Getenv("HTTP_LISTEN"); v != "" {
		c.HTTP.Listen = v
	}
	if v := os.Getenv("HTTP_MAX_BODY_SIZE"); v != "" {
		if size, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.HTTP.MaxBodySize = size
		}
	}

	if v := os.Getenv("DELIVERY_PROVIDER"); v != "" {
		c.Delivery.Provider = strings.ToLower(v)
	}

	if v := os.Getenv("SES_REGION"); v != "" {
		c.SES.Region = v
	}
	if v := os.Getenv("SES_ACCESS_KEY_ID"); v != "" {
		c.SES.AccessKeyID = v
	}
	if v := os.Getenv("SES_SECRET_ACCESS_KEY"); v != "" {
		c.SES.SecretAccessKey = v
	}
	if v := os.Getenv("SES_SENDER"); v != "" {
		c.SES.Sender = v
	}

	if v := os.Getenv("TLS_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			c.TLS.Enabled = enabled
		}
	}
	if v := os.Getenv("TLS_CERT_FILE"); v != "" {
		c.TLS.CertFile = v
	}
	if v := os.Getenv("TLS_KEY_FILE"); v != "" {
		c.TLS.KeyFile = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
}
