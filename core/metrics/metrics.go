package metrics

import "time"

// SessionRecord describes a charging session lifecycle transition.
type SessionRecord struct {
	Kind         string
	ChargerID    int64
	ControllerID string
	SessionID    int64
	Consumption  float64
	Duration     time.Duration
	HasRFID      bool
	Time         time.Time
}

// MetricsSink records charging session transitions for observability purposes.
type MetricsSink interface {
	RecordSession(rec SessionRecord) error
}

// MessageRecord captures how one vehicle state message was handled.
type MessageRecord struct {
	ChargerID    int64
	ControllerID string
	Outcome      string
	Latency      time.Duration
	Time         time.Time
}

// MessageRecorder records message handling outcomes.
type MessageRecorder interface {
	RecordMessage(rec MessageRecord) error
}

// StatusRecord is a connection status observation for a charger.
type StatusRecord struct {
	ChargerID   int64
	MQTTOK      bool
	TelemetryOK bool
	Time        time.Time
}

// StatusRecorder records charger reachability.
type StatusRecorder interface {
	RecordConnectionStatus(rec StatusRecord) error
}

// EnergyRecord is a cumulative energy meter reading.
type EnergyRecord struct {
	ChargerID    int64
	ControllerID string
	Value        float64
	Time         time.Time
}

// EnergyRecorder records energy meter readings.
type EnergyRecorder interface {
	RecordEnergy(rec EnergyRecord) error
}

// StateRecord is a LastKnownState change.
type StateRecord struct {
	ControllerID string
	State        string
	Time         time.Time
}

// StateRecorder records vehicle presence changes.
type StateRecorder interface {
	RecordVehicleState(rec StateRecord) error
}

// SupervisorRecorder records the number of live connection supervisors.
type SupervisorRecorder interface {
	RecordActiveSupervisors(n int) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordSession(SessionRecord) error         { return nil }
func (NopSink) RecordMessage(MessageRecord) error         { return nil }
func (NopSink) RecordConnectionStatus(StatusRecord) error { return nil }
func (NopSink) RecordEnergy(EnergyRecord) error           { return nil }
func (NopSink) RecordVehicleState(StateRecord) error      { return nil }
func (NopSink) RecordActiveSupervisors(int) error         { return nil }
