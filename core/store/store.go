// Package store defines the persistence contracts used by the session tracker,
// the connection supervisors and the reconciler.
//
// Every write is a single-row atomic operation. Serialisation per controller
// is provided by the supervisors, not by the store.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/kilianp07/chargewatch/core/model"
)

var (
	// ErrNotFound is returned when a referenced row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrInvalidState is returned when a LastKnownState write carries an unknown state.
	ErrInvalidState = errors.New("invalid vehicle state")
	// ErrConstraint is returned when a write violates a foreign key or unique constraint.
	ErrConstraint = errors.New("constraint violation")
)

// InventoryStore lists the chargers that should be supervised.
type InventoryStore interface {
	ListChargers(ctx context.Context) ([]model.Charger, error)
}

// StatusStore persists charger connection status.
type StatusStore interface {
	UpsertConnectionStatus(ctx context.Context, st model.ConnectionStatus) error
}

// StateStore persists the last confirmed vehicle state per controller.
type StateStore interface {
	// GetLastState returns ok=false when no state was ever recorded.
	GetLastState(ctx context.Context, controllerID string) (state model.VehicleState, ok bool, err error)
	SetLastState(ctx context.Context, controllerID string, state model.VehicleState) error
}

// SessionStore persists charging sessions.
type SessionStore interface {
	OpenSession(ctx context.Context, start model.SessionStart) (int64, error)
	// FindOpenSession returns nil without error when the controller has no open session.
	FindOpenSession(ctx context.Context, controllerID string) (*model.ChargingSession, error)
	CloseSession(ctx context.Context, sessionID int64, end model.SessionEnd) error
}

// ControllerStore persists controller metadata.
type ControllerStore interface {
	UpsertController(ctx context.Context, c model.Controller) error
	ControllerExists(ctx context.Context, id string) (bool, error)
}

// Store groups every contract behind a single shared handle.
type Store interface {
	InventoryStore
	StatusStore
	StateStore
	SessionStore
	ControllerStore
	Ping(ctx context.Context) error
	Close() error
}

// ValidateState returns ErrInvalidState for anything but connected or disconnected.
func ValidateState(s model.VehicleState) error {
	if !s.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidState, string(s))
	}
	return nil
}
