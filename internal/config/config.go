package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Logging    LoggingConfig    `yaml:"logging"`
	Storage    StorageConfig    `yaml:"storage"`
	Redis      RedisConfig      `yaml:"redis"`
	Remote     RemoteConfig     `yaml:"remote"`
	Sync       SyncConfig       `yaml:"sync"`
	Backup     BackupConfig     `yaml:"backup"`
	API        APIConfig        `yaml:"api"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	FilePath   string `yaml:"file_path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

const (
	StorageSQLite = "sqlite"
	StorageRedis  = "redis"

	RemoteREST     = "rest"
	RemotePostgres = "postgres"
)

// StorageConfig selects the local durable store for the queue and cache.
type StorageConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

type RedisConfig struct {
	Address   string `yaml:"address"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	PoolSize  int    `yaml:"pool_size"`
	KeyPrefix string `yaml:"key_prefix"`
}

// RemoteConfig describes the remote relational store.
type RemoteConfig struct {
	Driver       string          `yaml:"driver"`
	BaseURL      string          `yaml:"base_url"`
	APIKey       string          `yaml:"api_key"`
	Timeout      time.Duration   `yaml:"timeout"`
	ProbeTimeout time.Duration   `yaml:"probe_timeout"`
	RateLimit    RateLimitConfig `yaml:"rate_limit"`
	PostgresDSN  string          `yaml:"postgres_dsn"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type SyncConfig struct {
	Interval           time.Duration `yaml:"interval"`
	ApplyTimeout       time.Duration `yaml:"apply_timeout"`
	Backoff            BackoffConfig `yaml:"backoff"`
	DeadLetterRejected bool          `yaml:"dead_letter_rejected"`
}

// BackoffConfig enables capped exponential backoff between timer-driven
// drain attempts. Disabled, the sync interval is the only backoff.
type BackoffConfig struct {
	Enabled bool          `yaml:"enabled"`
	Initial time.Duration `yaml:"initial"`
	Max     time.Duration `yaml:"max"`
	Factor  float64       `yaml:"factor"`
}

type BackupConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Interval    time.Duration `yaml:"interval"`
	Retention   int           `yaml:"retention"`
	StoragePath string        `yaml:"storage_path"`
}

type APIConfig struct {
	Enabled   bool            `yaml:"enabled"`
	Port      int             `yaml:"port"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case StorageSQLite:
		if c.Storage.Path == "" {
			return errors.New("storage path is required for sqlite")
		}
	case StorageRedis:
		if c.Redis.Address == "" {
			return errors.New("redis address is required for redis storage")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	switch c.Remote.Driver {
	case RemoteREST:
		if c.Remote.BaseURL == "" {
			return errors.New("remote base_url is required")
		}
	case RemotePostgres:
		if c.Remote.PostgresDSN == "" {
			return errors.New("remote postgres_dsn is required")
		}
	default:
		return fmt.Errorf("unknown remote driver %q", c.Remote.Driver)
	}

	if c.Sync.Interval <= 0 {
		return errors.New("sync interval must be positive")
	}
	if c.Sync.ApplyTimeout <= 0 || c.Remote.ProbeTimeout <= 0 {
		return errors.New("apply and probe timeouts must be positive")
	}
	if c.Sync.Backoff.Enabled && c.Sync.Backoff.Max < c.Sync.Backoff.Initial {
		return errors.New("sync backoff max must not be below initial")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "ridesync"
	}
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	if c.Storage.Driver == "" {
		c.Storage.Driver = StorageSQLite
	}
	if c.Storage.Driver == StorageSQLite && c.Storage.Path == "" {
		c.Storage.Path = "data/ridesync.db"
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = "ridesync:"
	}

	c.Remote.Driver = strings.ToLower(strings.TrimSpace(c.Remote.Driver))
	if c.Remote.Driver == "" {
		c.Remote.Driver = RemoteREST
	}
	c.Remote.BaseURL = strings.TrimRight(c.Remote.BaseURL, "/")
	if c.Remote.Timeout == 0 {
		c.Remote.Timeout = 10 * time.Second
	}
	if c.Remote.ProbeTimeout == 0 {
		c.Remote.ProbeTimeout = 3 * time.Second
	}

	if c.Sync.Interval == 0 {
		c.Sync.Interval = 30 * time.Second
	}
	if c.Sync.ApplyTimeout == 0 {
		c.Sync.ApplyTimeout = c.Remote.Timeout
	}
	if c.Sync.Backoff.Enabled {
		if c.Sync.Backoff.Initial == 0 {
			c.Sync.Backoff.Initial = c.Sync.Interval
		}
		if c.Sync.Backoff.Max == 0 {
			c.Sync.Backoff.Max = 10 * time.Minute
		}
		if c.Sync.Backoff.Factor == 0 {
			c.Sync.Backoff.Factor = 2
		}
	}

	if c.Backup.Interval == 0 {
		c.Backup.Interval = 24 * time.Hour
	}
	if c.Backup.Retention == 0 {
		c.Backup.Retention = 7
	}
	if c.Backup.StoragePath == "" {
		c.Backup.StoragePath = "data/backups"
	}

	if c.API.Port == 0 {
		c.API.Port = 8080
	}
}
