package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Registry RegistryConfig `yaml:"registry"`
	Stores   StoresConfig   `yaml:"stores"`
	Cache    CacheConfig    `yaml:"cache"`
	Trial    TrialConfig    `yaml:"trial"`
	Otel     OtelConfig     `yaml:"otel"`
}

// ServerConfig represents the HTTP API configuration.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RegistryConfig represents the shared registry database configuration.
type RegistryConfig struct {
	DSN string `yaml:"dsn"`
}

// StoresConfig represents per-tenant store configuration. PathTemplate
// must contain a single %s placeholder for the store name.
type StoresConfig struct {
	PathTemplate string `yaml:"path_template"`
	MaxConns     int    `yaml:"max_conns"`
}

// CacheConfig represents the tenant connection cache configuration.
type CacheConfig struct {
	Capacity       int           `yaml:"capacity"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	CloseTimeout   time.Duration `yaml:"close_timeout"`
}

// TrialConfig represents trial period configuration.
type TrialConfig struct {
	Days int `yaml:"days"`
}

// Length returns the trial window as a duration.
func (t TrialConfig) Length() time.Duration {
	return time.Duration(t.Days) * 24 * time.Hour
}

// OtelConfig represents OpenTelemetry configuration.
type OtelConfig struct {
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	Environment    string `yaml:"environment"`
	Exporter       string `yaml:"exporter"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Registry: RegistryConfig{
			DSN: "data/registry.db",
		},
		Stores: StoresConfig{
			PathTemplate: "data/tenants/%s.db",
			MaxConns:     4,
		},
		Cache: CacheConfig{
			Capacity:       50,
			ConnectTimeout: 5 * time.Second,
			CloseTimeout:   10 * time.Second,
		},
		Trial: TrialConfig{
			Days: 14,
		},
		Otel: OtelConfig{
			ServiceName:    "phishing-backend",
			ServiceVersion: "0.1.0",
			Environment:    "development",
			Exporter:       "stdout",
		},
	}
}

// Load reads configuration from a YAML file, falling back to defaults for
// unset fields, then applies environment overrides. A missing file is not
// an error; defaults plus environment apply.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	switch {
	case os.IsNotExist(err):
		// Fall through to env overrides.
	case err != nil:
		return nil, fmt.Errorf("read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if dsn := os.Getenv("REGISTRY_DSN"); dsn != "" {
		c.Registry.DSN = dsn
	}
	if tpl := os.Getenv("STORE_PATH_TEMPLATE"); tpl != "" {
		c.Stores.PathTemplate = tpl
	}
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	if name := os.Getenv("OTEL_SERVICE_NAME"); name != "" {
		c.Otel.ServiceName = name
	}
	if env := os.Getenv("OTEL_ENVIRONMENT"); env != "" {
		c.Otel.Environment = env
	}
	if exporter := os.Getenv("OTEL_EXPORTER"); exporter != "" {
		c.Otel.Exporter = exporter
	}
}

func (c *Config) validate() error {
	if c.Registry.DSN == "" {
		return fmt.Errorf("registry.dsn must not be empty")
	}
	if c.Stores.PathTemplate == "" {
		return fmt.Errorf("stores.path_template must not be empty")
	}
	if c.Cache.Capacity <= 0 {
		return fmt.Errorf("cache.capacity must be positive, got %d", c.Cache.Capacity)
	}
	if c.Trial.Days <= 0 {
		return fmt.Errorf("trial.days must be positive, got %d", c.Trial.Days)
	}
	return nil
}
