package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config defines the service configuration.
type Config struct {
	HTTPAddr  string          `yaml:"http_addr"`
	Timezone  string          `yaml:"timezone"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Log       LogConfig       `yaml:"log"`
}

// DatabaseConfig selects the record store.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	URL             string        `yaml:"url"`
	SQLitePath      string        `yaml:"sqlite_path"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// RedisConfig is optional; an empty address disables the sweep lock.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ReconcileConfig defines the past-due sweep schedule.
type ReconcileConfig struct {
	DailyAt   string        `yaml:"daily_at"`
	Workers   int           `yaml:"workers"`
	OnStartup bool          `yaml:"on_startup"`
	LockTTL   time.Duration `yaml:"lock_ttl"`
}

// LogConfig defines logger output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads .env (if present), the environment and an optional yaml file.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		HTTPAddr: getenvDefault("HTTP_ADDR", ":8080"),
		Timezone: getenvDefault("TIMEZONE", "UTC"),
		Database: DatabaseConfig{
			Driver:          getenvDefault("DB_DRIVER", DriverPostgres),
			URL:             getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
			SQLitePath:      getenvDefault("SQLITE_PATH", "scentroute.db"),
			MaxOpenConns:    getenvIntDefault("DB_MAX_OPEN_CONNS", 10),
			ConnMaxLifetime: getenvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getenvIntDefault("REDIS_DB", 0),
		},
		Reconcile: ReconcileConfig{
			DailyAt:   getenvDefault("RECONCILE_DAILY_AT", "22:00"),
			Workers:   getenvIntDefault("RECONCILE_WORKERS", 8),
			OnStartup: getenvBoolDefault("RECONCILE_ON_STARTUP", true),
			LockTTL:   getenvDuration("RECONCILE_LOCK_TTL", 30*time.Minute),
		},
		Log: LogConfig{
			Level:  getenvDefault("LOG_LEVEL", "info"),
			Format: getenvDefault("LOG_FORMAT", "json"),
		},
	}

	if path := os.Getenv("SCENTROUTE_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	return cfg, cfg.Validate()
}

// Validate checks the fields the service cannot start without.
func (c Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.URL == "" {
			return errors.New("config: DATABASE_URL or PG_DSN is required for postgres")
		}
	case DriverSQLite:
		if c.Database.SQLitePath == "" {
			return errors.New("config: SQLITE_PATH is required for sqlite")
		}
	default:
		return errors.New("config: unsupported DB_DRIVER " + c.Database.Driver)
	}
	if _, err := time.Parse("15:04", c.Reconcile.DailyAt); err != nil {
		return errors.New("config: RECONCILE_DAILY_AT must be HH:MM")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return errors.New("config: unknown TIMEZONE " + c.Timezone)
	}
	return nil
}

// Location returns the service location, UTC when unset or invalid.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBoolDefault(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
