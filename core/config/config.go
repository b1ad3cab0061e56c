// Package config loads execution-core configuration from environment
// variables (with an optional .env file) and an optional YAML override file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the execution core's process-wide configuration. None of these
// values are visible to user functions; they govern the host.
type Config struct {
	Server  ServerConfig
	Limits  LimitsConfig
	KV      KVConfig
	Logging LoggingConfig
	Metrics MetricsConfig
}

type ServerConfig struct {
	Host            string        `env:"SERVER_HOST" yaml:"host"`
	Port            int           `env:"SERVER_PORT" yaml:"port"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" yaml:"shutdown_timeout"`
}

// LimitsConfig holds the default per-invocation resource limits.
// Individual functions may override these via their descriptor.
type LimitsConfig struct {
	DefaultTimeout    time.Duration `env:"DEFAULT_TIMEOUT" yaml:"default_timeout"`
	DefaultHeapCapMB  int           `env:"DEFAULT_HEAP_CAP_MB" yaml:"default_heap_cap_mb"`
	RingBufferBytes   int           `env:"RING_BUFFER_BYTES" yaml:"ring_buffer_bytes"`
	RetentionDefault  string        `env:"DEFAULT_RETENTION" yaml:"default_retention"`
	RequestsPerSecond float64       `env:"RATE_LIMIT_RPS" yaml:"requests_per_second"`
	Burst             int           `env:"RATE_LIMIT_BURST" yaml:"burst"`
}

// KVConfig selects and configures the KV store's backing driver.
type KVConfig struct {
	Driver   string `env:"KV_DRIVER" yaml:"driver"` // memory | redis | jsonfile
	RedisURL string `env:"KV_REDIS_URL" yaml:"redis_url"`
	JSONFile string `env:"KV_JSON_FILE" yaml:"json_file"`
}

type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL" yaml:"level"`
	Format string `env:"LOG_FORMAT" yaml:"format"`
}

type MetricsConfig struct {
	Enabled bool `env:"METRICS_ENABLED" yaml:"enabled"`
}

// New returns a Config populated with defaults, before any env/yaml overlay.
func New() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: 10 * time.Second,
		},
		Limits: LimitsConfig{
			DefaultTimeout:   30 * time.Second,
			DefaultHeapCapMB: 256,
			RingBufferBytes:  1 << 20,
			RetentionDefault: "none",
		},
		KV: KVConfig{
			Driver: "memory",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
	}
}

// Load builds a Config from defaults, an optional .env file, an optional
// CONFIG_FILE YAML overlay, then environment variables (highest precedence).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := New()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := envdecode.Decode(cfg); err != nil && err != envdecode.ErrNoTargetFieldsAreSet {
		return nil, fmt.Errorf("config: decode env: %w", err)
	}

	return cfg, nil
}
