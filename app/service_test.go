package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/chargewatch/config"
	"github.com/kilianp07/chargewatch/core/model"
	"github.com/kilianp07/chargewatch/core/store"
	"github.com/kilianp07/chargewatch/infra/store/sqlite"
	"github.com/kilianp07/chargewatch/internal/testutil"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Database.Driver = config.DriverSQLite
	cfg.Database.SQLite.Path = filepath.Join(t.TempDir(), "chargewatch.db")
	cfg.Reconciler.IntervalSeconds = 1
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())
	return cfg
}

type brokenInventory struct {
	*store.MemoryStore
}

func (brokenInventory) ListChargers(context.Context) ([]model.Charger, error) {
	return nil, errors.New("inventory offline")
}

func TestOpenStore(t *testing.T) {
	cfg := testConfig(t)
	st, err := OpenStore(context.Background(), cfg.Database)
	require.NoError(t, err)
	assert.IsType(t, &sqlite.Store{}, st)
	require.NoError(t, st.Close())

	_, err = OpenStore(context.Background(), config.DatabaseConfig{Driver: "mysql"})
	assert.Error(t, err)
}

func TestRunFailsWhenInventoryUnavailable(t *testing.T) {
	cfg := testConfig(t)
	svc, err := New(context.Background(), cfg,
		WithStore(brokenInventory{store.NewMemoryStore()}),
		WithRegistry(prometheus.NewRegistry()))
	require.NoError(t, err)
	defer svc.Close()

	err = svc.Run(context.Background())
	assert.ErrorContains(t, err, "inventory offline")
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.HTTP.Addr = "127.0.0.1:0"
	svc, err := New(context.Background(), cfg, WithStore(store.NewMemoryStore()), WithRegistry(prometheus.NewRegistry()))
	require.NoError(t, err)
	defer svc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("service did not stop")
	}
}

// chargerAPI serves the telemetry endpoints of one controller.
type chargerAPI struct {
	energy atomic.Int64
}

func (c *chargerAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1.0/charging-controllers/CC1/info", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"parent_device_uid":"P1","position":1,"device_name":"left","firmware_version":"5.2","hardware_version":"2"}`)
	})
	mux.HandleFunc("/api/v1.0/charging-points", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"charging_points":{"1":{"id":11,"charging_point_name":"Bay 1","charging_controller_device_uid":"CC1"}}}`)
	})
	mux.HandleFunc("/api/v1.0/charging-controllers/CC1/data", func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().UTC().Format(time.RFC3339Nano)
		switch r.URL.Query().Get("param_list") {
		case "energy":
			fmt.Fprintf(w, `{"energy":{"timestamp":%q,"energy_real_power":{"value":%d}}}`, now, c.energy.Load())
		case "rfid":
			fmt.Fprintf(w, `{"rfid":{"tag":"X","timestamp":%q}}`, now)
		default:
			http.NotFound(w, r)
		}
	})
	return mux
}

func TestServiceEndToEnd(t *testing.T) {
	testutil.RequireDocker(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker, stopBroker, err := testutil.StartMosquitto(ctx)
	require.NoError(t, err)
	defer stopBroker()

	api := &chargerAPI{}
	api.energy.Store(100)
	srv := httptest.NewServer(api.handler())
	defer srv.Close()
	_, port, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	telemetryPort, err := strconv.Atoi(port)
	require.NoError(t, err)

	cfg := testConfig(t)
	st, err := sqlite.Open(cfg.Database.SQLite.Path)
	require.NoError(t, err)
	require.NoError(t, st.AddCharger(ctx, model.Charger{
		ID: 1, Name: "depot", Address: broker.Host, MQTTPort: broker.Port, TelemetryPort: telemetryPort,
	}))

	svc, err := New(ctx, cfg, WithStore(st), WithRegistry(prometheus.NewRegistry()))
	require.NoError(t, err)
	defer svc.Close()

	runCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- svc.Run(runCtx) }()

	require.Eventually(t, func() bool { return svc.Reconciler.Len() == 1 }, 30*time.Second, 100*time.Millisecond)

	pub := paho.NewClient(paho.NewClientOptions().AddBroker(broker.URL).SetClientID("vehicle-sim"))
	tok := pub.Connect()
	require.True(t, tok.WaitTimeout(10*time.Second))
	require.NoError(t, tok.Error())
	defer pub.Disconnect(100)
	publish := func(payload string) {
		tok := pub.Publish("charging_controllers/CC1/data/iec_61851_state", 1, false, payload)
		require.True(t, tok.WaitTimeout(5*time.Second))
		require.NoError(t, tok.Error())
	}

	publish("B1")
	require.Eventually(t, func() bool {
		open, err := st.FindOpenSession(ctx, "CC1")
		return err == nil && open != nil
	}, 10*time.Second, 50*time.Millisecond)

	api.energy.Store(115)
	publish("A1")
	require.Eventually(t, func() bool {
		sessions, err := st.Sessions(ctx, "CC1")
		return err == nil && len(sessions) == 1 && !sessions[0].Open()
	}, 10*time.Second, 50*time.Millisecond)

	sessions, err := st.Sessions(ctx, "CC1")
	require.NoError(t, err)
	require.NotNil(t, sessions[0].Consumption)
	assert.Equal(t, 15.0, *sessions[0].Consumption)
	require.NotNil(t, sessions[0].RFIDTag)
	assert.Equal(t, "X", *sessions[0].RFIDTag)

	state, ok, err := st.GetLastState(ctx, "CC1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, model.StateDisconnected, state)

	require.Eventually(t, func() bool {
		info := svc.Reconciler.Snapshot()
		return len(info) == 1 && info[0].Handled == 2
	}, 5*time.Second, 50*time.Millisecond)

	stop()
	require.NoError(t, <-done)
}
