package model

import "time"

// ChargingSession is one vehicle-present interval on a controller. The end
// fields are nil while the session is open.
type ChargingSession struct {
	ID           int64          `json:"id"`
	ControllerID string         `json:"controller_id"`
	StartTime    time.Time      `json:"start_timestamp"`
	StartReading float64        `json:"start_real_power"`
	RFIDTag      *string        `json:"rfid_tag,omitempty"`
	RFIDTime     *time.Time     `json:"rfid_timestamp,omitempty"`
	EndTime      *time.Time     `json:"end_timestamp,omitempty"`
	EndReading   *float64       `json:"end_real_power,omitempty"`
	Consumption  *float64       `json:"consumption,omitempty"`
	Duration     *time.Duration `json:"duration,omitempty"`
}

// Open reports whether the session has not been closed yet.
func (s ChargingSession) Open() bool { return s.EndTime == nil }

// SessionStart carries the values recorded when a session is opened.
type SessionStart struct {
	ControllerID string
	StartTime    time.Time
	StartReading float64
	RFIDTag      *string
	RFIDTime     *time.Time
}

// SessionEnd carries the values recorded when a session is closed.
type SessionEnd struct {
	EndTime     time.Time
	EndReading  float64
	Consumption float64
	Duration    time.Duration
	// RFIDTag and RFIDTime, when set, fill in a session opened without RFID.
	RFIDTag  *string
	RFIDTime *time.Time
}
