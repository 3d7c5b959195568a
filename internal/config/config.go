package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/joshdurbin/shortlink/internal/shortener"
)

// Database drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds the application configuration
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Database  DatabaseConfig   `yaml:"database"`
	Cache     CacheConfig      `yaml:"cache"`
	Clicks    ClicksConfig     `yaml:"clicks"`
	Broadcast BroadcastConfig  `yaml:"broadcast"`
	Logging   LoggingConfig    `yaml:"logging"`
	Shortener shortener.Config `yaml:"shortener"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port            string        `yaml:"port"`
	ServerURL       string        `yaml:"server_url"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver       string        `yaml:"driver"`
	Path         string        `yaml:"path"` // sqlite
	DSN          string        `yaml:"dsn"`  // postgres
	StoreTimeout time.Duration `yaml:"store_timeout"`
}

// CacheConfig holds cache-related configuration
type CacheConfig struct {
	Capacity int           `yaml:"capacity"`
	Shards   int           `yaml:"shards"`
	TTL      time.Duration `yaml:"ttl"` // 0 disables expiry
}

// ClicksConfig holds click recording configuration
type ClicksConfig struct {
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// BroadcastConfig holds cross-instance invalidation configuration
type BroadcastConfig struct {
	RedisAddr string `yaml:"redis_addr"` // empty disables broadcasting
	Channel   string `yaml:"channel"`
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Verbose bool `yaml:"verbose"`
	JSON    bool `yaml:"json"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			ServerURL:       "http://localhost:8080",
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:       DriverSQLite,
			Path:         "urls.db",
			StoreTimeout: 2 * time.Second,
		},
		Cache: CacheConfig{
			Capacity: 1024,
			Shards:   1,
		},
		Clicks: ClicksConfig{
			FlushInterval: time.Second,
		},
		Broadcast: BroadcastConfig{
			Channel: "shortlink:invalidations",
		},
		Shortener: shortener.DefaultConfig(),
	}
}

// Load reads the YAML file at path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return cfg, nil
}

// Validate validates the configuration values
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port cannot be empty")
	}

	if c.Server.ServerURL == "" {
		return fmt.Errorf("server URL cannot be empty")
	}

	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive, got: %v", c.Server.ShutdownTimeout)
	}

	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database path cannot be empty")
		}
	case DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database DSN cannot be empty for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}

	if c.Database.StoreTimeout <= 0 {
		return fmt.Errorf("store timeout must be positive, got: %v", c.Database.StoreTimeout)
	}

	if c.Cache.Capacity <= 0 {
		return fmt.Errorf("cache capacity must be positive, got: %d", c.Cache.Capacity)
	}

	if c.Cache.Shards <= 0 || c.Cache.Shards > c.Cache.Capacity {
		return fmt.Errorf("cache shards must be between 1 and capacity, got: %d", c.Cache.Shards)
	}

	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache TTL cannot be negative, got: %v", c.Cache.TTL)
	}

	if c.Clicks.FlushInterval <= 0 {
		return fmt.Errorf("click flush interval must be positive, got: %v", c.Clicks.FlushInterval)
	}

	if c.Shortener.ShortKeyLength < 1 || c.Shortener.SecretKeyLength < 1 {
		return fmt.Errorf("key lengths must be positive, got: short=%d secret=%d",
			c.Shortener.ShortKeyLength, c.Shortener.SecretKeyLength)
	}

	if c.Shortener.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be positive, got: %d", c.Shortener.MaxAttempts)
	}

	return nil
}
