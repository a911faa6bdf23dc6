package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/clinic/clinic/internal/platform/storage"
)

// Gate modes for mutating commands.
const (
	GateModeReject = "reject"
	GateModeQueue  = "queue"
)

type Config struct {
	Port             string        `mapstructure:"PORT"`
	Env              string        `mapstructure:"ENV"`
	StoreDriver      string        `mapstructure:"STORE_DRIVER"`
	StateDir         string        `mapstructure:"STATE_DIR"`
	StateKey         string        `mapstructure:"STATE_KEY"`
	ThemeKey         string        `mapstructure:"THEME_KEY"`
	DatabaseURL      string        `mapstructure:"DATABASE_URL"`
	DBMaxConns       int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns       int32         `mapstructure:"DB_MIN_CONNS"`
	MigrationsDir    string        `mapstructure:"MIGRATIONS_DIR"`
	RedisURL         string        `mapstructure:"REDIS_URL"`
	SQLitePath       string        `mapstructure:"SQLITE_PATH"`
	Timezone         string        `mapstructure:"TIMEZONE"`
	OperationLatency time.Duration `mapstructure:"OPERATION_LATENCY"`
	OperationTimeout time.Duration `mapstructure:"OPERATION_TIMEOUT"`
	GateMode         string        `mapstructure:"GATE_MODE"`
	RequestTimeout   time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	BodyLimit        string        `mapstructure:"BODY_LIMIT"`
	CORSOrigins      []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS     float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst   int           `mapstructure:"RATE_LIMIT_BURST"`
}

var keys = []string{
	"PORT", "ENV", "STORE_DRIVER", "STATE_DIR", "STATE_KEY", "THEME_KEY",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "MIGRATIONS_DIR",
	"REDIS_URL", "SQLITE_PATH", "TIMEZONE",
	"OPERATION_LATENCY", "OPERATION_TIMEOUT", "GATE_MODE",
	"REQUEST_TIMEOUT", "BODY_LIMIT", "CORS_ORIGINS",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("STORE_DRIVER", storage.DriverFile)
	v.SetDefault("STATE_DIR", "./data")
	v.SetDefault("STATE_KEY", "clinic_simple_v2")
	v.SetDefault("THEME_KEY", "clinic_theme_v1")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 1)
	v.SetDefault("MIGRATIONS_DIR", "./migrations")
	v.SetDefault("SQLITE_PATH", filepath.Join("data", "clinic.db"))
	v.SetDefault("TIMEZONE", "UTC")
	v.SetDefault("OPERATION_LATENCY", "0s")
	v.SetDefault("OPERATION_TIMEOUT", "5s")
	v.SetDefault("GATE_MODE", GateModeReject)
	v.SetDefault("REQUEST_TIMEOUT", "15s")
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("CORS_ORIGINS", "http://localhost:5173")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	for i, o := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(o)
	}
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	cfg.GateMode = strings.ToLower(strings.TrimSpace(cfg.GateMode))

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Location returns the time zone used to decide which calendar day is today.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// StorageOptions maps the config onto the storage backend options.
func (c *Config) StorageOptions() storage.Options {
	return storage.Options{
		Driver:      c.StoreDriver,
		Dir:         c.StateDir,
		DatabaseURL: c.DatabaseURL,
		MaxConns:    c.DBMaxConns,
		MinConns:    c.DBMinConns,
		RedisURL:    c.RedisURL,
		SQLitePath:  c.SQLitePath,
	}
}

// Validate checks the configuration before anything is opened. Each storage
// driver needs its own connection setting.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case storage.DriverMemory:
	case storage.DriverFile:
		if c.StateDir == "" {
			return fmt.Errorf("STATE_DIR is required when STORE_DRIVER is %q", c.StoreDriver)
		}
	case storage.DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER is %q", c.StoreDriver)
		}
	case storage.DriverRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when STORE_DRIVER is %q", c.StoreDriver)
		}
	case storage.DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when STORE_DRIVER is %q", c.StoreDriver)
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be one of memory, file, postgres, redis, sqlite, got %q", c.StoreDriver)
	}

	if c.StateKey == "" || c.ThemeKey == "" {
		return fmt.Errorf("STATE_KEY and THEME_KEY must not be empty")
	}
	if c.StateKey == c.ThemeKey {
		return fmt.Errorf("STATE_KEY and THEME_KEY must differ, both are %q", c.StateKey)
	}

	if _, err := c.Location(); err != nil {
		return err
	}

	if c.GateMode != GateModeReject && c.GateMode != GateModeQueue {
		return fmt.Errorf("GATE_MODE must be %q or %q, got %q", GateModeReject, GateModeQueue, c.GateMode)
	}
	if c.OperationLatency < 0 {
		return fmt.Errorf("OPERATION_LATENCY must not be negative")
	}
	if c.OperationTimeout <= 0 {
		return fmt.Errorf("OPERATION_TIMEOUT must be positive")
	}
	if c.OperationLatency >= c.OperationTimeout {
		return fmt.Errorf("OPERATION_LATENCY (%s) must be shorter than OPERATION_TIMEOUT (%s)", c.OperationLatency, c.OperationTimeout)
	}

	if c.RequestTimeout > 0 && c.OperationTimeout >= c.RequestTimeout {
		return fmt.Errorf("OPERATION_TIMEOUT (%s) must be shorter than REQUEST_TIMEOUT (%s)", c.OperationTimeout, c.RequestTimeout)
	}

	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}

	return nil
}
