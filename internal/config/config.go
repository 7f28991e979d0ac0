// Package config loads runtime settings from an optional YAML file and the
// environment. Environment variables win over the file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ServerAddr  string          `yaml:"server_addr"`
	LogMode     string          `yaml:"log_mode"`
	CORSOrigins []string        `yaml:"cors_origins"`
	Database    DatabaseConfig  `yaml:"database"`
	Gateway     GatewayConfig   `yaml:"gateway"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
}

type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	AutoMigrate     bool          `yaml:"auto_migrate"`
}

type GatewayConfig struct {
	// Mode is "sandbox" (in-process) or "http".
	Mode    string        `yaml:"mode"`
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

type TelemetryConfig struct {
	Enabled     bool    `yaml:"enabled"`
	ServiceName string  `yaml:"service_name"`
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

func Default() Config {
	return Config{
		ServerAddr: ":8080",
		LogMode:    "development",
		Database: DatabaseConfig{
			MaxOpenConns:    20,
			MaxIdleConns:    10,
			ConnMaxLifetime: time.Hour,
			AutoMigrate:     true,
		},
		Gateway: GatewayConfig{
			Mode:    "sandbox",
			Timeout: 10 * time.Second,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "librarydesk",
			SampleRatio: 0.1,
		},
	}
}

// Load reads the file named by LIBRARY_CONFIG, if set, then applies
// environment overrides and validates the result.
func Load() (Config, error) {
	cfg := Default()
	if path := strings.TrimSpace(os.Getenv("LIBRARY_CONFIG")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is required")
	}
	switch c.Gateway.Mode {
	case "sandbox":
	case "http":
		if c.Gateway.URL == "" {
			return fmt.Errorf("gateway mode http requires GATEWAY_URL")
		}
	default:
		return fmt.Errorf("unknown gateway mode %q", c.Gateway.Mode)
	}
	return nil
}

func applyEnv(c *Config) error {
	setString(&c.ServerAddr, "SERVER_ADDR")
	setString(&c.LogMode, "LOG_MODE")
	setString(&c.Database.URL, "DATABASE_URL")
	setString(&c.Gateway.Mode, "GATEWAY_MODE")
	setString(&c.Gateway.URL, "GATEWAY_URL")
	setString(&c.Gateway.APIKey, "GATEWAY_API_KEY")
	setString(&c.Telemetry.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")

	if v := env("CORS_ORIGINS"); v != "" {
		c.CORSOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.CORSOrigins = append(c.CORSOrigins, o)
			}
		}
	}

	for _, d := range []struct {
		key string
		dst *time.Duration
	}{
		{"GATEWAY_TIMEOUT", &c.Gateway.Timeout},
		{"DB_CONN_MAX_LIFETIME", &c.Database.ConnMaxLifetime},
	} {
		if v := env(d.key); v != "" {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", d.key, err)
			}
			*d.dst = parsed
		}
	}

	for _, i := range []struct {
		key string
		dst *int
	}{
		{"DB_MAX_OPEN_CONNS", &c.Database.MaxOpenConns},
		{"DB_MAX_IDLE_CONNS", &c.Database.MaxIdleConns},
	} {
		if v := env(i.key); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", i.key, err)
			}
			*i.dst = parsed
		}
	}

	for _, b := range []struct {
		key string
		dst *bool
	}{
		{"DB_AUTO_MIGRATE", &c.Database.AutoMigrate},
		{"OTEL_ENABLED", &c.Telemetry.Enabled},
		{"OTEL_EXPORTER_OTLP_INSECURE", &c.Telemetry.Insecure},
	} {
		if v := env(b.key); v != "" {
			parsed, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s: %w", b.key, err)
			}
			*b.dst = parsed
		}
	}

	if v := env("OTEL_SAMPLER_RATIO"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("OTEL_SAMPLER_RATIO: %w", err)
		}
		c.Telemetry.SampleRatio = f
	}
	return nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func setString(dst *string, key string) {
	if v := env(key); v != "" {
		*dst = v
	}
}
