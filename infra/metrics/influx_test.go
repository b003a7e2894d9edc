package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremetrics "github.com/kilianp07/chargewatch/core/metrics"
)

type lineRecorder struct {
	mu     sync.Mutex
	bodies []string
}

func (l *lineRecorder) server(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		l.mu.Lock()
		l.bodies = append(l.bodies, strings.TrimSpace(string(data)))
		l.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func (l *lineRecorder) lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.bodies...)
}

func line(p *write.Point) string {
	return strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond))
}

func TestInfluxSink_RecordSession(t *testing.T) {
	rec := &lineRecorder{}
	srv := rec.server(t)
	sink := NewInfluxSink(InfluxConfig{URL: srv.URL, Token: "token", Org: "org", Bucket: "bucket"})
	now := time.Now()

	err := sink.RecordSession(coremetrics.SessionRecord{
		Kind:         "closed",
		ChargerID:    1,
		ControllerID: "CC1",
		SessionID:    7,
		Consumption:  15,
		Duration:     90 * time.Minute,
		HasRFID:      true,
		Time:         now,
	})
	require.NoError(t, err)

	p := write.NewPointWithMeasurement("charging_session").
		AddTag("controller_id", "CC1").
		AddTag("charger_id", "1").
		AddTag("kind", "closed").
		AddTag("component", "session_tracker").
		AddField("session_id", int64(7)).
		AddField("rfid", true).
		AddField("consumption", 15.0).
		AddField("duration_s", 5400.0).
		SetTime(now)
	assert.Equal(t, []string{line(p)}, rec.lines())
}

func TestInfluxSink_RecordMessageAndState(t *testing.T) {
	rec := &lineRecorder{}
	srv := rec.server(t)
	sink := NewInfluxSink(InfluxConfig{URL: srv.URL + "/api/v2/write", Token: "token", Org: "org", Bucket: "bucket"})
	now := time.Now()

	require.NoError(t, sink.RecordMessage(coremetrics.MessageRecord{
		ChargerID: 2, ControllerID: "CC2", Outcome: "session_opened", Latency: 250 * time.Millisecond, Time: now,
	}))
	require.NoError(t, sink.RecordVehicleState(coremetrics.StateRecord{ControllerID: "CC2", State: "connected", Time: now}))

	msg := write.NewPointWithMeasurement("vehicle_state_message").
		AddTag("controller_id", "CC2").
		AddTag("charger_id", "2").
		AddTag("outcome", "session_opened").
		AddTag("component", "supervisor").
		AddField("latency_ms", 250.0).
		SetTime(now)
	state := write.NewPointWithMeasurement("vehicle_state").
		AddTag("controller_id", "CC2").
		AddField("state", "connected").
		SetTime(now)
	assert.Equal(t, []string{line(msg), line(state)}, rec.lines())
}

func TestInfluxSink_RecordStatusAndEnergy(t *testing.T) {
	rec := &lineRecorder{}
	srv := rec.server(t)
	sink := NewInfluxSink(InfluxConfig{URL: srv.URL, Token: "token", Org: "org", Bucket: "bucket"})
	now := time.Now()

	require.NoError(t, sink.RecordConnectionStatus(coremetrics.StatusRecord{ChargerID: 3, MQTTOK: true, Time: now}))
	require.NoError(t, sink.RecordEnergy(coremetrics.EnergyRecord{ChargerID: 3, ControllerID: "CC3", Value: 100.1234, Time: now}))

	status := write.NewPointWithMeasurement("charger_status").
		AddTag("charger_id", "3").
		AddField("mqtt_ok", true).
		AddField("telemetry_ok", false).
		SetTime(now)
	energy := write.NewPointWithMeasurement("energy_reading").
		AddTag("controller_id", "CC3").
		AddTag("charger_id", "3").
		AddField("value", 100.123).
		SetTime(now)
	assert.Equal(t, []string{line(status), line(energy)}, rec.lines())
}

func TestInfluxSink_WriteErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	sink := NewInfluxSink(InfluxConfig{URL: srv.URL, Token: "bad", Org: "org", Bucket: "bucket"})
	assert.Error(t, sink.RecordActiveSupervisors(2))
}

func TestNewInfluxSinkWithFallback(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			called = true
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}))
	defer srv.Close()

	sink := NewInfluxSinkWithFallback(InfluxConfig{
		URL:    srv.URL + "/api/v2/write",
		Token:  "tok",
		Org:    "org",
		Bucket: "bucket",
	})
	_, isInflux := sink.(*InfluxSink)
	assert.False(t, isInflux, "expected NopSink on failing health check")
	assert.True(t, called, "health endpoint not called")
}
