// Package config loads and validates application configuration from YAML files
// and environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Schema sources.
const (
	SourceBackend = "backend"
	SourceOpenAPI = "openapi"
)

// Relation option cache drivers.
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Config is the root application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Backend       BackendConfig       `yaml:"backend"`
	Schema        SchemaConfig        `yaml:"schema"`
	Relations     RelationsConfig     `yaml:"relations"`
	Session       SessionConfig       `yaml:"session"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig describes HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	HandlerTimeout  time.Duration `yaml:"handler_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	Timezone        string        `yaml:"timezone"`
	CORS            CORSConfig    `yaml:"cors"`
}

// CORSConfig describes Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
	MaxAge         int      `yaml:"max_age"`
}

// BackendConfig describes the admin backend every call is made against.
type BackendConfig struct {
	BaseURL        string               `yaml:"base_url"`
	Timeout        time.Duration        `yaml:"timeout"`
	Token          string               `yaml:"token"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	Retry          RetryConfig          `yaml:"retry"`
}

// CircuitBreakerConfig describes the backend circuit breaker.
type CircuitBreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	SuccessThreshold int           `yaml:"success_threshold"`
	Timeout          time.Duration `yaml:"timeout"`
}

// RetryConfig describes retries of idempotent backend calls.
type RetryConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	BackoffInitial    time.Duration `yaml:"backoff_initial"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
	BackoffMax        time.Duration `yaml:"backoff_max"`
}

// SchemaConfig describes where endpoint metadata comes from.
type SchemaConfig struct {
	Source      string `yaml:"source"`
	CatalogPath string `yaml:"catalog_path"`
	OpenAPIFile string `yaml:"openapi_file"`
	DefaultApp  string `yaml:"default_app"`
}

// RelationsConfig describes relation option resolution.
type RelationsConfig struct {
	LookupPath  string      `yaml:"lookup_path"`
	Concurrency int         `yaml:"concurrency"`
	Cache       CacheConfig `yaml:"cache"`
	Redis       RedisConfig `yaml:"redis"`
}

// CacheConfig describes the relation option cache.
type CacheConfig struct {
	Driver     string        `yaml:"driver"`
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
}

// RedisConfig describes the Redis connection of the option cache.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SessionConfig describes edit session timing.
type SessionConfig struct {
	Debounce      time.Duration `yaml:"debounce"`
	AutoSave      bool          `yaml:"auto_save"`
	AutoSaveDelay time.Duration `yaml:"auto_save_delay"`
	IdleTimeout   time.Duration `yaml:"idle_timeout"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// ObservabilityConfig describes logging, tracing, and metrics settings.
type ObservabilityConfig struct {
	LogLevel string        `yaml:"log_level"`
	Tracing  TracingConfig `yaml:"tracing"`
	Metrics  MetricsConfig `yaml:"metrics"`
}

// TracingConfig describes distributed tracing settings.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// MetricsConfig describes Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			HandlerTimeout:  25 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxBodyBytes:    32 << 20,
			Timezone:        "Local",
			CORS: CORSConfig{
				AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Authorization", "Content-Type", "X-Correlation-Id"},
				MaxAge:         86400,
			},
		},
		Backend: BackendConfig{
			Timeout: 10 * time.Second,
			CircuitBreaker: CircuitBreakerConfig{
				FailureThreshold: 5,
				SuccessThreshold: 2,
				Timeout:          30 * time.Second,
			},
			Retry: RetryConfig{
				MaxAttempts:       2,
				BackoffInitial:    100 * time.Millisecond,
				BackoffMultiplier: 2,
				BackoffMax:        2 * time.Second,
			},
		},
		Schema: SchemaConfig{
			Source:      SourceBackend,
			CatalogPath: "api/applications/categorized-urls/",
			DefaultApp:  "api",
		},
		Relations: RelationsConfig{
			LookupPath:  "lookups/",
			Concurrency: 4,
			Cache: CacheConfig{
				Driver:     CacheMemory,
				TTL:        5 * time.Minute,
				MaxEntries: 1000,
			},
		},
		Session: SessionConfig{
			Debounce:      300 * time.Millisecond,
			AutoSaveDelay: 2 * time.Second,
			IdleTimeout:   30 * time.Minute,
			SweepInterval: time.Minute,
		},
		Observability: ObservabilityConfig{
			LogLevel: "info",
			Tracing: TracingConfig{
				Exporter:     "otlp",
				SamplingRate: 0.1,
			},
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}

// Load reads a YAML config file, applies environment variable overrides,
// and validates the result. An empty path skips the file and yields the
// defaults plus overrides. A .env file next to the working directory is
// loaded first when present; variables already set in the environment win.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: reading .env: %w", err)
	}

	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}

	return cfg, nil
}

// Location resolves the configured timezone used to render datetimes for
// editing.
func (c *Config) Location() (*time.Location, error) {
	if c.Server.Timezone == "" || c.Server.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Server.Timezone)
}

// Validate checks that all required fields are present and valid.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, fmt.Sprintf("server.timezone %q is not a known location", c.Server.Timezone))
	}
	if c.Backend.BaseURL == "" {
		errs = append(errs, "backend.base_url is required")
	}

	switch c.Schema.Source {
	case SourceBackend:
	case SourceOpenAPI:
		if c.Schema.OpenAPIFile == "" {
			errs = append(errs, "schema.openapi_file is required when schema.source is openapi")
		}
	default:
		errs = append(errs, fmt.Sprintf("schema.source must be %q or %q", SourceBackend, SourceOpenAPI))
	}

	switch c.Relations.Cache.Driver {
	case CacheNone, CacheMemory:
	case CacheRedis:
		if c.Relations.Redis.Addr == "" {
			errs = append(errs, "relations.redis.addr is required when relations.cache.driver is redis")
		}
	default:
		errs = append(errs, fmt.Sprintf("relations.cache.driver %q is not supported", c.Relations.Cache.Driver))
	}
	if c.Relations.Concurrency < 1 {
		errs = append(errs, "relations.concurrency must be at least 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// applyEnvOverrides reads SCHEMADMIN_* environment variables and overrides
// config values. Only the most commonly overridden fields are supported.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("SCHEMADMIN_SERVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SCHEMADMIN_SERVER_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("SCHEMADMIN_BACKEND_BASE_URL"); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv("SCHEMADMIN_BACKEND_TOKEN"); v != "" {
		cfg.Backend.Token = v
	}
	if v := os.Getenv("SCHEMADMIN_SCHEMA_SOURCE"); v != "" {
		cfg.Schema.Source = v
	}
	if v := os.Getenv("SCHEMADMIN_SCHEMA_OPENAPI_FILE"); v != "" {
		cfg.Schema.OpenAPIFile = v
	}
	if v := os.Getenv("SCHEMADMIN_RELATIONS_CACHE_DRIVER"); v != "" {
		cfg.Relations.Cache.Driver = v
	}
	if v := os.Getenv("SCHEMADMIN_RELATIONS_REDIS_ADDR"); v != "" {
		cfg.Relations.Redis.Addr = v
	}
	if v := os.Getenv("SCHEMADMIN_SESSION_AUTO_SAVE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("SCHEMADMIN_SESSION_AUTO_SAVE: %w", err)
		}
		cfg.Session.AutoSave = b
	}
	if v := os.Getenv("SCHEMADMIN_OBSERVABILITY_LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
	return nil
}
