// Package telemetry defines the per-charger REST gateway contract.
package telemetry

import (
	"context"
	"errors"

	"github.com/kilianp07/chargewatch/core/model"
)

var (
	// ErrUnavailable is returned when the gateway cannot be reached or answers
	// with a non-success status.
	ErrUnavailable = errors.New("telemetry gateway unavailable")
	// ErrMalformed is returned when a response lacks expected fields.
	ErrMalformed = errors.New("malformed telemetry response")
)

// Gateway exposes controller metadata and meter readings of one charger.
type Gateway interface {
	ControllerInfo(ctx context.Context, deviceID string) (model.ControllerInfo, error)
	ChargingPoints(ctx context.Context) ([]model.ChargingPoint, error)
	Energy(ctx context.Context, deviceID string) (model.EnergyReading, error)
	RFID(ctx context.Context, deviceID string) (model.RFIDReading, error)
}
