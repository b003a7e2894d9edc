package session

import (
	"fmt"
	"time"
)

// DefaultRFIDWindowSeconds is the largest gap between an RFID tap and the
// session start for the tap to be attributed to the session.
const DefaultRFIDWindowSeconds = 60

// Config defines session tracking parameters.
type Config struct {
	RFIDWindowSeconds int      `json:"rfid_window_seconds"`
	PresenceCodes     []string `json:"presence_codes"`
	// LateRFIDBackfill attaches a tap seen during the session when the
	// session was opened without one.
	LateRFIDBackfill bool `json:"late_rfid_backfill"`
}

// SetDefaults applies the reference values.
func (c *Config) SetDefaults() {
	if c.RFIDWindowSeconds == 0 {
		c.RFIDWindowSeconds = DefaultRFIDWindowSeconds
	}
}

// Validate checks the configured values.
func (c Config) Validate() error {
	if c.RFIDWindowSeconds < 0 {
		return fmt.Errorf("rfid_window_seconds must not be negative")
	}
	return nil
}

// RFIDWindow returns the correlation window as a duration.
func (c Config) RFIDWindow() time.Duration {
	return time.Duration(c.RFIDWindowSeconds) * time.Second
}
