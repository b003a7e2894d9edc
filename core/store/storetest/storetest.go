// Package storetest holds behaviour checks shared by every store backend.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/chargewatch/core/model"
	"github.com/kilianp07/chargewatch/core/store"
)

// Fixture exposes a fresh, empty backend plus the inventory writes the core
// never performs itself.
type Fixture struct {
	Store         store.Store
	AddCharger    func(t *testing.T, c model.Charger)
	RemoveCharger func(t *testing.T, id int64)
	Sessions      func(t *testing.T, controllerID string) []model.ChargingSession
}

// Run executes the shared checks. newFixture must return an isolated backend
// on every call.
func Run(t *testing.T, newFixture func(t *testing.T) Fixture) {
	t.Run("Inventory", func(t *testing.T) { testInventory(t, newFixture(t)) })
	t.Run("ConnectionStatus", func(t *testing.T) { testConnectionStatus(t, newFixture(t)) })
	t.Run("LastState", func(t *testing.T) { testLastState(t, newFixture(t)) })
	t.Run("Controller", func(t *testing.T) { testController(t, newFixture(t)) })
	t.Run("SessionLifecycle", func(t *testing.T) { testSessionLifecycle(t, newFixture(t)) })
	t.Run("SingleOpenSession", func(t *testing.T) { testSingleOpenSession(t, newFixture(t)) })
}

var (
	chargerA = model.Charger{ID: 1, Name: "north", Address: "10.0.0.1", MQTTPort: 1883, TelemetryPort: 5555, MQTTUser: "u", MQTTPassword: "p"}
	chargerB = model.Charger{ID: 2, Name: "south", Address: "10.0.0.2", MQTTPort: 1884, TelemetryPort: 5556}
	t0       = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
)

func controller(id string, chargerID int64) model.Controller {
	cp := int64(7)
	return model.Controller{
		ID:                id,
		ChargerID:         chargerID,
		ChargingPointID:   &cp,
		ChargingPointName: "CP 7",
		ParentDeviceID:    "P-1",
		Position:          1,
		DeviceName:        "left",
		FirmwareVersion:   "1.0",
		HardwareVersion:   "A",
	}
}

func testInventory(t *testing.T, f Fixture) {
	ctx := context.Background()
	f.AddCharger(t, chargerB)
	f.AddCharger(t, chargerA)

	got, err := f.Store.ListChargers(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, chargerA, got[0])
	assert.Equal(t, chargerB, got[1])

	f.RemoveCharger(t, chargerB.ID)
	got, err = f.Store.ListChargers(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, chargerA.ID, got[0].ID)
	require.NoError(t, f.Store.Ping(ctx))
}

func testConnectionStatus(t *testing.T, f Fixture) {
	ctx := context.Background()
	f.AddCharger(t, chargerA)

	require.NoError(t, f.Store.UpsertConnectionStatus(ctx, model.ConnectionStatus{ChargerID: chargerA.ID, MQTTOK: true, TelemetryOK: false, UpdatedAt: t0}))
	require.NoError(t, f.Store.UpsertConnectionStatus(ctx, model.ConnectionStatus{ChargerID: chargerA.ID, MQTTOK: false, TelemetryOK: true, UpdatedAt: t0.Add(time.Second)}))

	err := f.Store.UpsertConnectionStatus(ctx, model.ConnectionStatus{ChargerID: 99, MQTTOK: true})
	assert.ErrorIs(t, err, store.ErrConstraint)
}

func testLastState(t *testing.T, f Fixture) {
	ctx := context.Background()

	_, known, err := f.Store.GetLastState(ctx, "CC1")
	require.NoError(t, err)
	assert.False(t, known)

	require.NoError(t, f.Store.SetLastState(ctx, "CC1", model.StateConnected))
	st, known, err := f.Store.GetLastState(ctx, "CC1")
	require.NoError(t, err)
	assert.True(t, known)
	assert.Equal(t, model.StateConnected, st)

	require.NoError(t, f.Store.SetLastState(ctx, "CC1", model.StateDisconnected))
	st, _, err = f.Store.GetLastState(ctx, "CC1")
	require.NoError(t, err)
	assert.Equal(t, model.StateDisconnected, st)

	err = f.Store.SetLastState(ctx, "CC1", model.VehicleState("charging"))
	assert.ErrorIs(t, err, store.ErrInvalidState)
	st, _, err = f.Store.GetLastState(ctx, "CC1")
	require.NoError(t, err)
	assert.Equal(t, model.StateDisconnected, st)
}

func testController(t *testing.T, f Fixture) {
	ctx := context.Background()
	f.AddCharger(t, chargerA)

	ok, err := f.Store.ControllerExists(ctx, "CC1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, f.Store.UpsertController(ctx, controller("CC1", chargerA.ID)))
	c := controller("CC1", chargerA.ID)
	c.ChargingPointID = nil
	c.ChargingPointName = ""
	c.FirmwareVersion = "2.0"
	require.NoError(t, f.Store.UpsertController(ctx, c))

	ok, err = f.Store.ControllerExists(ctx, "CC1")
	require.NoError(t, err)
	assert.True(t, ok)

	err = f.Store.UpsertController(ctx, controller("CC2", 99))
	assert.ErrorIs(t, err, store.ErrConstraint)
}

func testSessionLifecycle(t *testing.T, f Fixture) {
	ctx := context.Background()
	f.AddCharger(t, chargerA)
	require.NoError(t, f.Store.UpsertController(ctx, controller("CC1", chargerA.ID)))

	open, err := f.Store.FindOpenSession(ctx, "CC1")
	require.NoError(t, err)
	assert.Nil(t, open)

	tag, tagTime := "04A1", t0.Add(10*time.Second)
	id, err := f.Store.OpenSession(ctx, model.SessionStart{ControllerID: "CC1", StartTime: t0, StartReading: 100, RFIDTag: &tag, RFIDTime: &tagTime})
	require.NoError(t, err)

	open, err = f.Store.FindOpenSession(ctx, "CC1")
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, id, open.ID)
	assert.True(t, t0.Equal(open.StartTime))
	assert.Equal(t, 100.0, open.StartReading)
	require.NotNil(t, open.RFIDTag)
	assert.Equal(t, "04A1", *open.RFIDTag)

	t1 := t0.Add(90 * time.Minute)
	require.NoError(t, f.Store.CloseSession(ctx, id, model.SessionEnd{EndTime: t1, EndReading: 115, Consumption: 15, Duration: t1.Sub(t0)}))

	open, err = f.Store.FindOpenSession(ctx, "CC1")
	require.NoError(t, err)
	assert.Nil(t, open)

	err = f.Store.CloseSession(ctx, id, model.SessionEnd{EndTime: t1, EndReading: 120})
	assert.ErrorIs(t, err, store.ErrNotFound)

	sessions := f.Sessions(t, "CC1")
	require.Len(t, sessions, 1)
	s := sessions[0]
	require.NotNil(t, s.EndTime)
	assert.True(t, t1.Equal(*s.EndTime))
	assert.Equal(t, 115.0, *s.EndReading)
	assert.InDelta(t, 15.0, *s.Consumption, 1e-9)
	assert.Equal(t, 90*time.Minute, *s.Duration)
	assert.Equal(t, "04A1", *s.RFIDTag)

	_, err = f.Store.OpenSession(ctx, model.SessionStart{ControllerID: "CC9", StartTime: t0})
	assert.ErrorIs(t, err, store.ErrConstraint)
}

func testSingleOpenSession(t *testing.T, f Fixture) {
	ctx := context.Background()
	f.AddCharger(t, chargerA)
	require.NoError(t, f.Store.UpsertController(ctx, controller("CC1", chargerA.ID)))

	id, err := f.Store.OpenSession(ctx, model.SessionStart{ControllerID: "CC1", StartTime: t0, StartReading: 1})
	require.NoError(t, err)
	_, err = f.Store.OpenSession(ctx, model.SessionStart{ControllerID: "CC1", StartTime: t0.Add(time.Minute), StartReading: 2})
	assert.ErrorIs(t, err, store.ErrConstraint)

	late, lateTime := "CAFE", t0.Add(5*time.Minute)
	require.NoError(t, f.Store.CloseSession(ctx, id, model.SessionEnd{EndTime: t0.Add(time.Hour), EndReading: 3, Consumption: 2, Duration: time.Hour, RFIDTag: &late, RFIDTime: &lateTime}))
	_, err = f.Store.OpenSession(ctx, model.SessionStart{ControllerID: "CC1", StartTime: t0.Add(2 * time.Hour), StartReading: 3})
	require.NoError(t, err)

	sessions := f.Sessions(t, "CC1")
	require.Len(t, sessions, 2)
	require.NotNil(t, sessions[0].RFIDTag)
	assert.Equal(t, "CAFE", *sessions[0].RFIDTag)
	assert.True(t, sessions[1].Open())
}
