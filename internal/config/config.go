package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
	StorageRedis    = "redis"
)

type Config struct {
	Port             int           `mapstructure:"port"`
	Env              string        `mapstructure:"env"`
	LogLevel         string        `mapstructure:"log_level"`
	RejoinGrace      time.Duration `mapstructure:"rejoin_grace"`
	StorageType      string        `mapstructure:"storage_type"`
	DatabaseURL      string        `mapstructure:"database_url"`
	RedisURL         string        `mapstructure:"redis_url"`
	SnapshotInterval time.Duration `mapstructure:"snapshot_interval"`
	SnapshotTTL      time.Duration `mapstructure:"snapshot_ttl"`
	RateLimit        int           `mapstructure:"rate_limit"`
	RateWindow       time.Duration `mapstructure:"rate_window"`
	AllowedOrigins   []string      `mapstructure:"allowed_origins"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) Production() bool {
	return c.Env == "production"
}

var defaults = map[string]any{
	"port":              8080,
	"env":               "development",
	"log_level":         "info",
	"rejoin_grace":      "120s",
	"storage_type":      StorageMemory,
	"database_url":      "",
	"redis_url":         "",
	"snapshot_interval": "30s",
	"snapshot_ttl":      "24h",
	"rate_limit":        10,
	"rate_window":       "1s",
	"allowed_origins":   "*",
}

// flagKeys maps command line flags onto config keys.
var flagKeys = map[string]string{
	"port":         "port",
	"log-level":    "log_level",
	"storage":      "storage_type",
	"rejoin-grace": "rejoin_grace",
	"database-url": "database_url",
	"redis-url":    "redis_url",
}

// RegisterFlags adds the overridable settings to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.Int("port", 8080, "HTTP listen port (env: PORT)")
	fs.String("log-level", "info", "Log level (env: LOG_LEVEL)")
	fs.String("storage", StorageMemory, "Snapshot storage: memory, postgres or redis (env: STORAGE_TYPE)")
	fs.Duration("rejoin-grace", 120*time.Second, "Seat hold time after a disconnect (env: REJOIN_GRACE)")
	fs.String("database-url", "", "Postgres connection string (env: DATABASE_URL)")
	fs.String("redis-url", "", "Redis connection URL (env: REDIS_URL)")
}

// LoadDotEnv loads path into the environment if it exists. Variables that
// are already set win.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load resolves the configuration from defaults, the environment and any
// flags in fs that were explicitly set. fs may be nil.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.AutomaticEnv()

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.StorageType = strings.ToLower(strings.TrimSpace(cfg.StorageType))
	cfg.AllowedOrigins = splitOrigins(cfg.AllowedOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	if c.RejoinGrace <= 0 {
		return fmt.Errorf("REJOIN_GRACE must be positive, got %s", c.RejoinGrace)
	}
	if c.SnapshotInterval <= 0 {
		return fmt.Errorf("SNAPSHOT_INTERVAL must be positive, got %s", c.SnapshotInterval)
	}
	if c.RateLimit <= 0 || c.RateWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT and RATE_WINDOW must be positive")
	}
	switch c.StorageType {
	case StorageMemory:
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for postgres storage")
		}
	case StorageRedis:
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required for redis storage")
		}
	default:
		return fmt.Errorf("unknown STORAGE_TYPE %q", c.StorageType)
	}
	return nil
}

// splitOrigins accepts either a decoded slice or a single comma separated
// entry and returns trimmed, non-empty patterns.
func splitOrigins(in []string) []string {
	var out []string
	for _, entry := range in {
		for _, o := range strings.Split(entry, ",") {
			if o = strings.TrimSpace(o); o != "" {
				out = append(out, o)
			}
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
