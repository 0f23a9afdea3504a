// Package config loads runtime settings from the environment and builds the logger.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Store drivers accepted in STORE_DRIVER.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverWorkbook = "workbook"
)

type Config struct {
	App struct {
		Name     string `envconfig:"APP_NAME" default:"Recycling Ledger"`
		Port     int    `envconfig:"PORT" default:"8080"`
		SeedDemo bool   `envconfig:"SEED_DEMO" default:"false"`
	}

	Store struct {
		Driver       string `envconfig:"STORE_DRIVER" default:"sqlite"`
		DBPath       string `envconfig:"DB_PATH" default:"recycling.db"`
		WorkbookPath string `envconfig:"WORKBOOK_PATH" default:"recycling.xlsx"`
	}

	Backup struct {
		Dir      string        `envconfig:"BACKUP_DIR"`
		Interval time.Duration `envconfig:"BACKUP_INTERVAL" default:"1h"`
		Keep     int           `envconfig:"BACKUP_KEEP" default:"24"`
	}

	Log struct {
		Level  string `envconfig:"LOG_LEVEL" default:"info"`
		Format string `envconfig:"LOG_FORMAT" default:"json"`
	}

	Server struct {
		Timeout     time.Duration `envconfig:"SERVER_TIMEOUT" default:"15s"`
		CORSOrigins []string      `envconfig:"CORS_ORIGINS" default:"http://localhost:5173,http://localhost:8080"`
	}
}

// Load reads an optional .env file, then the process environment. Variables
// already set in the environment win over the file.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read env file: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	switch c.Store.Driver {
	case DriverMemory, DriverSQLite, DriverWorkbook:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver)
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.App.Port)
	}
	if c.Backup.Dir != "" && (c.Backup.Interval <= 0 || c.Backup.Keep <= 0) {
		return fmt.Errorf("BACKUP_INTERVAL and BACKUP_KEEP must be positive")
	}
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}
