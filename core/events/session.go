package events

import (
	"time"

	"github.com/kilianp07/chargewatch/core/model"
)

// SessionKind distinguishes session lifecycle events.
type SessionKind string

const (
	SessionOpened SessionKind = "opened"
	SessionClosed SessionKind = "closed"
)

// SessionEvent is published after a session row was written.
type SessionEvent struct {
	Kind      SessionKind
	ChargerID int64
	Session   model.ChargingSession
	Time      time.Time
}

// StateEvent is published after a LastKnownState write.
type StateEvent struct {
	ControllerID string
	From         model.VehicleState
	To           model.VehicleState
	Time         time.Time
}
