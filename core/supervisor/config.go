package supervisor

import (
	"fmt"
	"time"

	"github.com/kilianp07/chargewatch/core/mqtt"
)

// Config defines the per-charger supervisor settings.
type Config struct {
	StateTopic            string `json:"state_topic"`
	QueueSize             int    `json:"queue_size"`
	ConnectTimeoutSeconds int    `json:"connect_timeout_seconds"`
}

// SetDefaults applies the reference values.
func (c *Config) SetDefaults() {
	if c.StateTopic == "" {
		c.StateTopic = mqtt.DefaultStateTopic
	}
	if c.QueueSize == 0 {
		c.QueueSize = 256
	}
	if c.ConnectTimeoutSeconds == 0 {
		c.ConnectTimeoutSeconds = 10
	}
}

// Validate checks the configured values.
func (c Config) Validate() error {
	if c.QueueSize < 0 {
		return fmt.Errorf("queue_size must not be negative")
	}
	if c.ConnectTimeoutSeconds < 0 {
		return fmt.Errorf("connect_timeout_seconds must not be negative")
	}
	return nil
}

// ConnectTimeout returns the broker connect timeout.
func (c Config) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutSeconds) * time.Second
}
