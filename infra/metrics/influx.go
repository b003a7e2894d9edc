package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/chargewatch/core/metrics"
	"github.com/kilianp07/chargewatch/infra/logger"
)

// InfluxConfig selects the InfluxDB bucket records are written to.
type InfluxConfig struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
	// Timeout bounds each write and the start-up health check. Zero means 5s.
	Timeout time.Duration `json:"timeout"`
}

func (c InfluxConfig) timeout() time.Duration {
	if c.Timeout <= 0 {
		return 5 * time.Second
	}
	return c.Timeout
}

// InfluxSink writes charging records to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	timeout  time.Duration
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(cfg InfluxConfig) *InfluxSink {
	base := strings.TrimSuffix(cfg.URL, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: cfg.timeout()}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		timeout:  cfg.timeout(),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(cfg InfluxConfig) coremetrics.MetricsSink {
	sink := NewInfluxSink(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout())
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// Close releases the client resources.
func (s *InfluxSink) Close() error {
	s.client.Close()
	return nil
}

// RecordSession writes one charging_session point per lifecycle transition.
func (s *InfluxSink) RecordSession(rec coremetrics.SessionRecord) error {
	p := write.NewPointWithMeasurement("charging_session").
		AddTag("controller_id", rec.ControllerID).
		AddTag("charger_id", strconv.FormatInt(rec.ChargerID, 10)).
		AddTag("kind", rec.Kind).
		AddTag("component", "session_tracker").
		AddField("session_id", rec.SessionID).
		AddField("rfid", rec.HasRFID).
		AddField("consumption", round3(rec.Consumption)).
		AddField("duration_s", round3(rec.Duration.Seconds())).
		SetTime(rec.Time)
	return s.write(p)
}

// RecordMessage writes the handling outcome of a vehicle state message.
func (s *InfluxSink) RecordMessage(rec coremetrics.MessageRecord) error {
	p := write.NewPointWithMeasurement("vehicle_state_message").
		AddTag("controller_id", rec.ControllerID).
		AddTag("charger_id", strconv.FormatInt(rec.ChargerID, 10)).
		AddTag("outcome", rec.Outcome).
		AddTag("component", "supervisor").
		AddField("latency_ms", round3(rec.Latency.Seconds()*1000)).
		SetTime(rec.Time)
	return s.write(p)
}

func (s *InfluxSink) RecordConnectionStatus(rec coremetrics.StatusRecord) error {
	p := write.NewPointWithMeasurement("charger_status").
		AddTag("charger_id", strconv.FormatInt(rec.ChargerID, 10)).
		AddField("mqtt_ok", rec.MQTTOK).
		AddField("telemetry_ok", rec.TelemetryOK).
		SetTime(rec.Time)
	return s.write(p)
}

func (s *InfluxSink) RecordEnergy(rec coremetrics.EnergyRecord) error {
	p := write.NewPointWithMeasurement("energy_reading").
		AddTag("controller_id", rec.ControllerID).
		AddTag("charger_id", strconv.FormatInt(rec.ChargerID, 10)).
		AddField("value", round3(rec.Value)).
		SetTime(rec.Time)
	return s.write(p)
}

func (s *InfluxSink) RecordVehicleState(rec coremetrics.StateRecord) error {
	p := write.NewPointWithMeasurement("vehicle_state").
		AddTag("controller_id", rec.ControllerID).
		AddField("state", rec.State).
		SetTime(rec.Time)
	return s.write(p)
}

func (s *InfluxSink) RecordActiveSupervisors(n int) error {
	p := write.NewPointWithMeasurement("supervisors").
		AddTag("component", "reconciler").
		AddField("active", n).
		SetTime(time.Now())
	return s.write(p)
}

func (s *InfluxSink) write(p *write.Point) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p)
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
