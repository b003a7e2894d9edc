package model

import "time"

// EnergyReading is the cumulative real energy meter value of a controller.
type EnergyReading struct {
	Timestamp time.Time
	Value     float64
}

// RFIDReading is the last RFID tag presented at a controller. Timestamp is
// zero when the controller never saw a tap.
type RFIDReading struct {
	Tag       string
	Timestamp time.Time
}

// HasTimestamp reports whether the reading carries a tap time.
func (r RFIDReading) HasTimestamp() bool { return !r.Timestamp.IsZero() }
