package events

import (
	"time"

	"github.com/kilianp07/chargewatch/core/model"
)

// MessageEvent reports how one inbound message was handled.
type MessageEvent struct {
	ChargerID    int64
	ControllerID string
	Outcome      string
	Latency      time.Duration
	Err          error
}

// StatusEvent reports an observed connection status.
type StatusEvent struct {
	Status model.ConnectionStatus
}

// EnergyEvent reports an energy reading fetched for a controller.
type EnergyEvent struct {
	ChargerID    int64
	ControllerID string
	Reading      model.EnergyReading
}

// SupervisorEvent reports the number of live supervisors after a reconciliation.
type SupervisorEvent struct {
	Active int
	Time   time.Time
}
