package config

import (
	"fmt"
	"time"

	"github.com/kilianp07/chargewatch/infra/store/postgres"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DatabaseConfig selects the store backend.
type DatabaseConfig struct {
	Driver   string          `json:"driver"`
	Postgres postgres.Config `json:"postgres"`
	SQLite   SQLiteConfig    `json:"sqlite"`
}

type SQLiteConfig struct {
	Path string `json:"path"`
}

func (c *DatabaseConfig) SetDefaults() {
	if c.Driver == "" {
		c.Driver = DriverPostgres
	}
	if c.SQLite.Path == "" {
		c.SQLite.Path = "chargewatch.db"
	}
}

func (c DatabaseConfig) Validate() error {
	switch c.Driver {
	case DriverPostgres:
		if c.Postgres.URL == "" {
			return fmt.Errorf("postgres.url is required")
		}
	case DriverSQLite:
	default:
		return fmt.Errorf("unknown driver %s", c.Driver)
	}
	return nil
}

// ProbeConfig bounds one reachability check.
type ProbeConfig struct {
	TimeoutSeconds int `json:"timeout_seconds"`
}

func (c *ProbeConfig) SetDefaults() {
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 5
	}
}

func (c ProbeConfig) Validate() error {
	if c.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout_seconds must not be negative")
	}
	return nil
}

func (c ProbeConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
