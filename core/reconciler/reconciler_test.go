package reconciler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/chargewatch/core/events"
	"github.com/kilianp07/chargewatch/core/model"
	"github.com/kilianp07/chargewatch/core/store"
	"github.com/kilianp07/chargewatch/core/supervisor"
	"github.com/kilianp07/chargewatch/infra/logger"
	"github.com/kilianp07/chargewatch/internal/eventbus"
)

type fakeSupervisor struct {
	charger  model.Charger
	startErr error

	mu      sync.Mutex
	started bool
	stopped int
}

func (f *fakeSupervisor) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = true
	return f.startErr
}

func (f *fakeSupervisor) Stop() {
	f.mu.Lock()
	f.stopped++
	f.mu.Unlock()
}

func (f *fakeSupervisor) Charger() model.Charger { return f.charger }

func (f *fakeSupervisor) Info() supervisor.Info { return supervisor.Info{ChargerID: f.charger.ID} }

type factoryRecorder struct {
	mu      sync.Mutex
	built   []*fakeSupervisor
	failFor map[int64]error
}

func (fr *factoryRecorder) build(c model.Charger) Supervisor {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	s := &fakeSupervisor{charger: c, startErr: fr.failFor[c.ID]}
	fr.built = append(fr.built, s)
	return s
}

func (fr *factoryRecorder) byID(id int64) []*fakeSupervisor {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	var res []*fakeSupervisor
	for _, s := range fr.built {
		if s.charger.ID == id {
			res = append(res, s)
		}
	}
	return res
}

type failingInventory struct{ err error }

func (f failingInventory) ListChargers(context.Context) ([]model.Charger, error) { return nil, f.err }

var (
	chargerA = model.Charger{ID: 1, Address: "10.0.0.1", MQTTPort: 1883, TelemetryPort: 80}
	chargerB = model.Charger{ID: 2, Address: "10.0.0.2", MQTTPort: 1883, TelemetryPort: 80}
)

func TestTickConverges(t *testing.T) {
	inv := store.NewMemoryStore()
	inv.PutCharger(chargerA)
	inv.PutCharger(chargerB)
	fr := &factoryRecorder{}
	r := New(inv, fr.build, Config{}, nil, logger.NopLogger{})

	require.NoError(t, r.Tick(context.Background()))
	assert.Equal(t, []int64{1, 2}, r.Active())

	inv.RemoveCharger(chargerB.ID)
	require.NoError(t, r.Tick(context.Background()))
	assert.Equal(t, []int64{1}, r.Active())
	assert.Equal(t, 1, fr.byID(2)[0].stopped)

	require.NoError(t, r.Tick(context.Background()))
	assert.Len(t, fr.byID(1), 1, "supervisor must not be rebuilt while charger unchanged")
}

func TestTickRetriesFailedStart(t *testing.T) {
	inv := store.NewMemoryStore()
	inv.PutCharger(chargerA)
	inv.PutCharger(chargerB)
	fr := &factoryRecorder{failFor: map[int64]error{2: errors.New("broker unreachable")}}
	r := New(inv, fr.build, Config{}, nil, logger.NopLogger{})

	require.NoError(t, r.Tick(context.Background()))
	assert.Equal(t, []int64{1}, r.Active())
	assert.Equal(t, 1, fr.byID(2)[0].stopped)

	fr.mu.Lock()
	fr.failFor = nil
	fr.mu.Unlock()
	require.NoError(t, r.Tick(context.Background()))
	assert.Equal(t, []int64{1, 2}, r.Active())
	assert.Len(t, fr.byID(2), 2)
}

func TestTickRestartsOnEndpointChange(t *testing.T) {
	inv := store.NewMemoryStore()
	inv.PutCharger(chargerA)
	fr := &factoryRecorder{}
	r := New(inv, fr.build, Config{}, nil, logger.NopLogger{})
	require.NoError(t, r.Tick(context.Background()))

	moved := chargerA
	moved.Address = "10.0.0.9"
	inv.PutCharger(moved)
	require.NoError(t, r.Tick(context.Background()))

	built := fr.byID(1)
	require.Len(t, built, 2)
	assert.Equal(t, 1, built[0].stopped)
	assert.Equal(t, "10.0.0.9", built[1].charger.Address)
	assert.Equal(t, []int64{1}, r.Active())
}

func TestTickKeepsSetWhenInventoryFails(t *testing.T) {
	inv := store.NewMemoryStore()
	inv.PutCharger(chargerA)
	fr := &factoryRecorder{}
	r := New(inv, fr.build, Config{}, nil, logger.NopLogger{})
	require.NoError(t, r.Tick(context.Background()))

	r.inventory = failingInventory{err: errors.New("db down")}
	assert.Error(t, r.Tick(context.Background()))
	assert.Equal(t, []int64{1}, r.Active())
	assert.Zero(t, fr.byID(1)[0].stopped)
}

func TestRunFailsWhenFirstTickFails(t *testing.T) {
	r := New(failingInventory{err: errors.New("db down")}, (&factoryRecorder{}).build, Config{}, nil, logger.NopLogger{})
	assert.Error(t, r.Run(context.Background()))
}

func TestRunAndShutdown(t *testing.T) {
	inv := store.NewMemoryStore()
	inv.PutCharger(chargerA)
	fr := &factoryRecorder{}
	bus := eventbus.New()
	sub := bus.Subscribe()
	defer bus.Close()
	r := New(inv, fr.build, Config{IntervalSeconds: 1}, bus, logger.NopLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	select {
	case ev := <-sub:
		se, ok := ev.(events.SupervisorEvent)
		require.True(t, ok)
		assert.Equal(t, 1, se.Active)
	case <-time.After(time.Second):
		t.Fatal("no supervisor event")
	}
	cancel()
	require.NoError(t, <-done)

	r.Shutdown()
	assert.Empty(t, r.Active())
	assert.Equal(t, 1, fr.byID(1)[0].stopped)
}

func TestSnapshotOrdered(t *testing.T) {
	inv := store.NewMemoryStore()
	inv.PutCharger(chargerB)
	inv.PutCharger(chargerA)
	r := New(inv, (&factoryRecorder{}).build, Config{}, nil, logger.NopLogger{})
	require.NoError(t, r.Tick(context.Background()))

	snap := r.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, int64(1), snap[0].ChargerID)
	assert.Equal(t, int64(2), snap[1].ChargerID)
}
