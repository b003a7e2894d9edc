package telemetry

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/chargewatch/core/model"
	coretelemetry "github.com/kilianp07/chargewatch/core/telemetry"
)

func newGateway(t *testing.T, routes map[string]string) (*HTTPGateway, *Instruments) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path
		if q := r.URL.RawQuery; q != "" {
			key += "?" + q
		}
		body, ok := routes[key]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	host, port, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)

	inst, err := NewInstruments(prometheus.NewRegistry())
	require.NoError(t, err)
	return NewHTTPGateway(Config{}, model.Charger{ID: 1, Address: host, TelemetryPort: p}, inst), inst
}

func TestControllerInfo(t *testing.T) {
	gw, _ := newGateway(t, map[string]string{
		"/api/v1.0/charging-controllers/CC1/info": `{"parent_device_uid":"P1","position":2,"device_name":"left","firmware_version":"5.1","hardware_version":"B"}`,
	})
	info, err := gw.ControllerInfo(context.Background(), "CC1")
	require.NoError(t, err)
	assert.Equal(t, model.ControllerInfo{ParentDeviceID: "P1", Position: 2, DeviceName: "left", FirmwareVersion: "5.1", HardwareVersion: "B"}, info)
}

func TestControllerInfoMissingFields(t *testing.T) {
	gw, _ := newGateway(t, map[string]string{
		"/api/v1.0/charging-controllers/CC1/info": `{"device_name":"left"}`,
	})
	_, err := gw.ControllerInfo(context.Background(), "CC1")
	assert.ErrorIs(t, err, coretelemetry.ErrMalformed)
}

func TestChargingPoints(t *testing.T) {
	gw, _ := newGateway(t, map[string]string{
		"/api/v1.0/charging-points": `{"charging_points":{"1":{"id":11,"charging_point_name":"CP A","charging_controller_device_uid":"CC1"},"2":{"id":12,"charging_point_name":"CP B","charging_controller_device_uid":"CC2"}}}`,
	})
	points, err := gw.ChargingPoints(context.Background())
	require.NoError(t, err)
	require.Len(t, points, 2)
	p, ok := model.FindChargingPoint(points, "CC2")
	require.True(t, ok)
	assert.Equal(t, int64(12), p.ID)
	assert.Equal(t, "CP B", p.Name)
}

func TestEnergy(t *testing.T) {
	gw, inst := newGateway(t, map[string]string{
		"/api/v1.0/charging-controllers/CC1/data?param_list=energy": `{"energy":{"timestamp":"2024-05-01T08:00:00","energy_real_power":{"value":1234.5}}}`,
	})
	e, err := gw.Energy(context.Background(), "CC1")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC), e.Timestamp)
	assert.Equal(t, 1234.5, e.Value)
	assert.Equal(t, 1.0, testutil.ToFloat64(inst.requests.WithLabelValues("energy", "ok")))
}

func TestEnergyMissingValue(t *testing.T) {
	gw, inst := newGateway(t, map[string]string{
		"/api/v1.0/charging-controllers/CC1/data?param_list=energy": `{"energy":{"timestamp":"2024-05-01T08:00:00"}}`,
	})
	_, err := gw.Energy(context.Background(), "CC1")
	assert.ErrorIs(t, err, coretelemetry.ErrMalformed)
	assert.Equal(t, 1.0, testutil.ToFloat64(inst.requests.WithLabelValues("energy", "ok")))
}

func TestRFIDMissingFields(t *testing.T) {
	gw, _ := newGateway(t, map[string]string{
		"/api/v1.0/charging-controllers/CC1/data?param_list=rfid": `{"rfid":{}}`,
		"/api/v1.0/charging-controllers/CC2/data?param_list=rfid": `{"rfid":{"tag":"X"}}`,
		"/api/v1.0/charging-controllers/CC3/data?param_list=rfid": `{"rfid":{"timestamp":"2024-05-01T08:00:10"}}`,
		"/api/v1.0/charging-controllers/CC4/data?param_list=rfid": `{}`,
	})
	for _, id := range []string{"CC1", "CC2", "CC3", "CC4"} {
		_, err := gw.RFID(context.Background(), id)
		assert.ErrorIs(t, err, coretelemetry.ErrMalformed, id)
	}
}

func TestOversizedBodyRejected(t *testing.T) {
	big := `{"energy":{"timestamp":"2024-05-01T08:00:00","pad":"` + strings.Repeat("x", maxBodySize) + `","energy_real_power":{"value":1}}}`
	gw, _ := newGateway(t, map[string]string{
		"/api/v1.0/charging-controllers/CC1/data?param_list=energy": big,
	})
	_, err := gw.Energy(context.Background(), "CC1")
	require.ErrorIs(t, err, coretelemetry.ErrMalformed)
	assert.Contains(t, err.Error(), "exceeds")
}

func TestRFID(t *testing.T) {
	gw, _ := newGateway(t, map[string]string{
		"/api/v1.0/charging-controllers/CC1/data?param_list=rfid": `{"rfid":{"tag":"04A1","timestamp":"2024-05-01T08:00:10.250Z"}}`,
		"/api/v1.0/charging-controllers/CC2/data?param_list=rfid": `{"rfid":{"tag":"","timestamp":""}}`,
	})
	r, err := gw.RFID(context.Background(), "CC1")
	require.NoError(t, err)
	assert.Equal(t, "04A1", r.Tag)
	assert.Equal(t, time.Date(2024, 5, 1, 8, 0, 10, 250_000_000, time.UTC), r.Timestamp)

	r, err = gw.RFID(context.Background(), "CC2")
	require.NoError(t, err)
	assert.False(t, r.HasTimestamp())
}

func TestUnavailable(t *testing.T) {
	gw, inst := newGateway(t, map[string]string{})
	_, err := gw.Energy(context.Background(), "CC1")
	assert.ErrorIs(t, err, coretelemetry.ErrUnavailable)
	assert.Equal(t, 1.0, testutil.ToFloat64(inst.requests.WithLabelValues("energy", "error")))

	closed := NewHTTPGateway(Config{TimeoutSeconds: 1}, model.Charger{Address: "127.0.0.1", TelemetryPort: 1}, nil)
	_, err = closed.RFID(context.Background(), "CC1")
	assert.ErrorIs(t, err, coretelemetry.ErrUnavailable)
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	for _, v := range []string{
		"2024-05-01T08:00:00",
		"2024-05-01T08:00:00Z",
		"2024-05-01T10:00:00+02:00",
		"2024-05-01 08:00:00",
		"2024-05-01T08:00:00.000000",
	} {
		ts, err := ParseTimestamp(v)
		require.NoError(t, err, v)
		assert.True(t, want.Equal(ts), v)
		assert.Equal(t, time.UTC, ts.Location(), v)
	}
	_, err := ParseTimestamp("")
	assert.Error(t, err)
	_, err = ParseTimestamp("yesterday")
	assert.Error(t, err)
}

func TestNewInstrumentsReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := NewInstruments(reg)
	require.NoError(t, err)
	b, err := NewInstruments(reg)
	require.NoError(t, err)
	assert.Same(t, a.requests, b.requests)
}
