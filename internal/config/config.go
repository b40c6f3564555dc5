package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/livinlefevreloca/listingsync/internal/api"
	"github.com/livinlefevreloca/listingsync/internal/db"
	"github.com/livinlefevreloca/listingsync/internal/etl"
	"github.com/livinlefevreloca/listingsync/internal/logging"
	"github.com/livinlefevreloca/listingsync/internal/notify"
	"github.com/livinlefevreloca/listingsync/internal/reso"
	"github.com/livinlefevreloca/listingsync/internal/scheduler"
	"github.com/livinlefevreloca/listingsync/internal/status"
)

// Config represents the application configuration
type Config struct {
	Database  db.Config        `toml:"database"`
	Reso      reso.Config      `toml:"reso"`
	ETL       etl.Config       `toml:"etl"`
	Scheduler scheduler.Config `toml:"scheduler"`
	Status    status.Config    `toml:"status"`
	Notify    notify.Config    `toml:"notify"`
	HTTP      api.Config       `toml:"http"`
	Logging   logging.Config   `toml:"logging"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Database: db.Config{
			Driver:          db.DriverSQLite,
			DSN:             "listingsync.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
		},
		Reso:      reso.DefaultConfig(),
		ETL:       etl.DefaultConfig(),
		Scheduler: scheduler.DefaultConfig(),
		Status:    status.DefaultConfig(),
		Notify:    notify.DefaultConfig(),
		HTTP:      api.DefaultConfig(),
		Logging:   logging.DefaultConfig(),
	}
}

// LoadFromFile loads configuration from a TOML file over the defaults
func LoadFromFile(path string) (*Config, error) {
	config := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", path)
	}

	if _, err := toml.DecodeFile(path, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// LoadEnvFile loads variables from a .env file into the process environment.
// Variables already set are kept. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// LoadConfig loads configuration with the following precedence:
// 1. Default values
// 2. Config file (if specified)
// 3. Environment variables
// 4. Command-line flags (handled by caller)
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	if configPath != "" {
		fileConfig, err := LoadFromFile(configPath)
		if err != nil {
			return nil, err
		}
		config = fileConfig
	}

	if err := config.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	return config, nil
}

// ApplyEnv overrides settings from the deployment's environment variables
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("DATABASE_URL"); ok && v != "" {
		c.Database.DSN = v
		if strings.HasPrefix(v, "postgres://") || strings.HasPrefix(v, "postgresql://") {
			c.Database.Driver = db.DriverPostgres
		}
	}
	if v, ok := lookup("DATABASE_DRIVER"); ok && v != "" {
		c.Database.Driver = v
	}

	setString(lookup, "MLS_API_URL", &c.Reso.BaseURL)
	setString(lookup, "MLS_API_KEY", &c.Reso.APIKey)
	setString(lookup, "MLS_API_SECRET", &c.Reso.APISecret)
	setString(lookup, "MLS_TOKEN_URL", &c.Reso.TokenURL)
	setString(lookup, "ETL_JOB_SCHEDULE", &c.Scheduler.Schedule)
	setString(lookup, "LOG_LEVEL", &c.Logging.Level)
	setString(lookup, "REDIS_URL", &c.Notify.RedisURL)

	if err := setInt(lookup, "BATCH_SIZE", &c.ETL.BatchSize); err != nil {
		return err
	}
	if err := setInt(lookup, "PORT", &c.HTTP.Port); err != nil {
		return err
	}

	return nil
}

func setString(lookup func(string) (string, bool), key string, dst *string) {
	if v, ok := lookup(key); ok && v != "" {
		*dst = v
	}
}

func setInt(lookup func(string) (string, bool), key string, dst *int) error {
	v, ok := lookup(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	*dst = n
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Database validation
	if c.Database.Driver == "" {
		return fmt.Errorf("database driver must be specified")
	}
	if c.Database.Driver != db.DriverSQLite && c.Database.Driver != db.DriverPostgres {
		return fmt.Errorf("unsupported database driver: %s (must be sqlite3 or postgres)", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database DSN must be specified")
	}

	// Upstream API validation
	if c.Reso.BaseURL == "" {
		return fmt.Errorf("reso base_url must be specified (or MLS_API_URL)")
	}
	if c.Reso.Timeout <= 0 {
		return fmt.Errorf("reso timeout must be positive")
	}

	// Pipeline validation
	if c.ETL.BatchSize <= 0 {
		return fmt.Errorf("etl batch_size must be positive, got %d", c.ETL.BatchSize)
	}

	if err := c.Scheduler.Validate(); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}

	if err := c.Status.Validate(); err != nil {
		return fmt.Errorf("status: %w", err)
	}

	// Notify validation
	if c.Notify.BufferSize <= 0 {
		return fmt.Errorf("notify buffer_size must be positive")
	}
	if c.Notify.SendTimeout <= 0 {
		return fmt.Errorf("notify send_timeout must be positive")
	}
	if c.Notify.RedisURL != "" && c.Notify.Channel == "" {
		return fmt.Errorf("notify channel must be specified when redis_url is set")
	}

	if err := c.HTTP.Validate(); err != nil {
		return err
	}

	if err := c.Logging.Validate(); err != nil {
		return err
	}

	return nil
}
