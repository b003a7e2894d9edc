package telemetry

import (
	"fmt"
	"strings"
	"time"
)

// Config defines how the REST telemetry API of a charger is reached.
type Config struct {
	Scheme         string `json:"scheme"`
	BasePath       string `json:"base_path"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// SetDefaults applies the reference values.
func (c *Config) SetDefaults() {
	if c.Scheme == "" {
		c.Scheme = "http"
	}
	if c.BasePath == "" {
		c.BasePath = "/api/v1.0/"
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 10
	}
}

// Validate checks the configured values.
func (c Config) Validate() error {
	if c.Scheme != "http" && c.Scheme != "https" {
		return fmt.Errorf("unsupported telemetry scheme %s", c.Scheme)
	}
	if !strings.HasPrefix(c.BasePath, "/") {
		return fmt.Errorf("base_path must start with /")
	}
	if c.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout_seconds must not be negative")
	}
	return nil
}

// Timeout returns the per request timeout.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
