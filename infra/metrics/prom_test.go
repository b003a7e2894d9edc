package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremetrics "github.com/kilianp07/chargewatch/core/metrics"
)

func TestPromSink_RecordSession(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	require.NoError(t, sink.RecordSession(coremetrics.SessionRecord{Kind: "opened", HasRFID: true}))
	require.NoError(t, sink.RecordSession(coremetrics.SessionRecord{Kind: "closed", HasRFID: true, Consumption: 15, Duration: time.Hour}))

	expected := `
# HELP charging_sessions_total Charging sessions opened and closed
# TYPE charging_sessions_total counter
charging_sessions_total{kind="closed",rfid="true"} 1
charging_sessions_total{kind="opened",rfid="true"} 1
`
	assert.NoError(t, testutil.CollectAndCompare(sink.sessions, strings.NewReader(expected)))
	assert.Equal(t, 1, testutil.CollectAndCount(sink.consumption))
	assert.Equal(t, 1, testutil.CollectAndCount(sink.duration))
}

func TestPromSink_Gauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	require.NoError(t, sink.RecordConnectionStatus(coremetrics.StatusRecord{ChargerID: 4, MQTTOK: true, TelemetryOK: false}))
	require.NoError(t, sink.RecordEnergy(coremetrics.EnergyRecord{ControllerID: "CC4", Value: 115}))
	require.NoError(t, sink.RecordVehicleState(coremetrics.StateRecord{ControllerID: "CC4", State: "connected"}))
	require.NoError(t, sink.RecordActiveSupervisors(3))
	require.NoError(t, sink.RecordMessage(coremetrics.MessageRecord{Outcome: "duplicate", Latency: time.Millisecond}))

	assert.Equal(t, 1.0, testutil.ToFloat64(sink.reachable.WithLabelValues("4", "mqtt")))
	assert.Equal(t, 0.0, testutil.ToFloat64(sink.reachable.WithLabelValues("4", "telemetry")))
	assert.Equal(t, 115.0, testutil.ToFloat64(sink.energy.WithLabelValues("CC4")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.connected.WithLabelValues("CC4")))
	assert.Equal(t, 3.0, testutil.ToFloat64(sink.supervisors))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.messages.WithLabelValues("duplicate")))
}

func TestPromSink_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)
	second, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	require.NoError(t, first.RecordActiveSupervisors(5))
	assert.Equal(t, 5.0, testutil.ToFloat64(second.supervisors))
}
