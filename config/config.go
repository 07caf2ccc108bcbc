// Package config loads runtime configuration from the environment, an
// optional .env file and an optional config.yaml.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/Skryldev/blogstore/db"
	"github.com/Skryldev/blogstore/schema"
)

// Config holds application configuration values.
type Config struct {
	// DatabaseURL is a golang-migrate style URL ("pgx5://...",
	// "sqlite3:///path", "mysql://..."). It is used for migrations and, via
	// schema.DriverDSN, for the connection pool.
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// DBDriver overrides the database/sql driver derived from DatabaseURL,
	// e.g. "postgres" to use lib/pq instead of pgx.
	DBDriver string `mapstructure:"DB_DRIVER"`

	MaxOpenConns       int           `mapstructure:"DB_MAX_OPEN_CONNS"`
	MaxIdleConns       int           `mapstructure:"DB_MAX_IDLE_CONNS"`
	ConnMaxLifetime    time.Duration `mapstructure:"DB_CONN_MAX_LIFETIME"`
	DefaultTimeout     time.Duration `mapstructure:"DB_DEFAULT_TIMEOUT"`
	SlowQueryThreshold time.Duration `mapstructure:"DB_SLOW_QUERY_THRESHOLD"`

	LogLevel       string `mapstructure:"LOG_LEVEL"`
	MigrationsAuto bool   `mapstructure:"MIGRATIONS_AUTO"`
}

var defaults = map[string]any{
	"DATABASE_URL":            "sqlite3://blog.db",
	"DB_DRIVER":               "",
	"DB_MAX_OPEN_CONNS":       25,
	"DB_MAX_IDLE_CONNS":       10,
	"DB_CONN_MAX_LIFETIME":    5 * time.Minute,
	"DB_DEFAULT_TIMEOUT":      10 * time.Second,
	"DB_SLOW_QUERY_THRESHOLD": 200 * time.Millisecond,
	"LOG_LEVEL":               "info",
	"MIGRATIONS_AUTO":         true,
}

// Load reads configuration. Sources, highest priority first: process
// environment, .env in the working directory, config.yaml found in one of
// searchPaths (default "."), built-in defaults.
func Load(searchPaths ...string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(searchPaths) == 0 {
		searchPaths = []string{"."}
	}
	for _, p := range searchPaths {
		v.AddConfigPath(p)
	}
	v.AutomaticEnv()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// Validate checks that the values can be used to open a database.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return errors.New("DATABASE_URL is required")
	}
	if _, _, err := schema.DriverDSN(c.DatabaseURL); err != nil {
		return fmt.Errorf("DATABASE_URL: %w", err)
	}
	if c.MaxOpenConns < 0 || c.MaxIdleConns < 0 {
		return errors.New("pool sizes must not be negative")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel parses LOG_LEVEL ("debug", "info", "warn", "error").
func (c *Config) SlogLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return l, nil
}

// DB builds the db.Config for the configured database.
func (c *Config) DB(hooks ...db.Hook) (db.Config, error) {
	driver, dsn, err := schema.DriverDSN(c.DatabaseURL)
	if err != nil {
		return db.Config{}, err
	}
	if c.DBDriver != "" {
		driver = c.DBDriver
	}
	return db.Config{
		DSN:             dsn,
		DriverName:      driver,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
		DefaultTimeout:  c.DefaultTimeout,
		Hooks:           hooks,
	}, nil
}
