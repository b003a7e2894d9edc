package session

import "errors"

// Outcome names what handling a message did.
type Outcome string

const (
	OutcomeOpened            Outcome = "session_opened"
	OutcomeClosed            Outcome = "session_closed"
	OutcomeDuplicate         Outcome = "duplicate_connect"
	OutcomeDisconnected      Outcome = "disconnected"
	OutcomeNoOpenSession     Outcome = "no_open_session"
	OutcomeRepaired          Outcome = "state_repaired"
	OutcomeUnknownController Outcome = "unknown_controller"
	OutcomeTelemetryFailed   Outcome = "telemetry_failed"
	OutcomeStoreFailed       Outcome = "store_failed"
)

var (
	// ErrUnknownController is returned when a connect targets a controller
	// without a metadata row.
	ErrUnknownController = errors.New("charging controller not found")
	// ErrNoOpenSession is returned when a disconnect follows a connected state
	// but no open session exists.
	ErrNoOpenSession = errors.New("no open charging session")
)
