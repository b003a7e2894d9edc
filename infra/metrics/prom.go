package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/chargewatch/core/events"
	coremetrics "github.com/kilianp07/chargewatch/core/metrics"
	"github.com/kilianp07/chargewatch/core/model"
)

// PromSink records charging activity in Prometheus metrics.
type PromSink struct {
	sessions    *prometheus.CounterVec
	consumption prometheus.Histogram
	duration    prometheus.Histogram
	messages    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	reachable   *prometheus.GaugeVec
	energy      *prometheus.GaugeVec
	connected   *prometheus.GaugeVec
	supervisors prometheus.Gauge
}

// NewPromSink registers the metrics on the default Prometheus registerer.
// Exposition is served by the HTTP API.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "charging_sessions_total",
			Help: "Charging sessions opened and closed",
		}, []string{"kind", "rfid"}),
		consumption: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "charging_session_consumption",
			Help:    "Energy consumed by closed sessions, in meter units",
			Buckets: []float64{1, 5, 10, 20, 40, 60, 80, 100},
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "charging_session_duration_seconds",
			Help:    "Duration of closed sessions",
			Buckets: prometheus.ExponentialBuckets(300, 2, 9),
		}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vehicle_state_messages_total",
			Help: "Vehicle state messages by handling outcome",
		}, []string{"outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vehicle_state_message_latency_seconds",
			Help:    "Time spent handling one vehicle state message",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		reachable: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "charger_reachable",
			Help: "Last observed reachability of a charger channel (1 reachable, 0 not)",
		}, []string{"charger_id", "channel"}),
		energy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "controller_energy_reading",
			Help: "Last cumulative energy meter reading per controller",
		}, []string{"controller_id"}),
		connected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "controller_vehicle_connected",
			Help: "Last known vehicle presence per controller (1 connected, 0 disconnected)",
		}, []string{"controller_id"}),
		supervisors: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "active_supervisors",
			Help: "Number of live charger connection supervisors",
		}),
	}

	var err error
	if s.sessions, err = registerCollector(reg, s.sessions); err != nil {
		return nil, err
	}
	if s.consumption, err = registerCollector(reg, s.consumption); err != nil {
		return nil, err
	}
	if s.duration, err = registerCollector(reg, s.duration); err != nil {
		return nil, err
	}
	if s.messages, err = registerCollector(reg, s.messages); err != nil {
		return nil, err
	}
	if s.latency, err = registerCollector(reg, s.latency); err != nil {
		return nil, err
	}
	if s.reachable, err = registerCollector(reg, s.reachable); err != nil {
		return nil, err
	}
	if s.energy, err = registerCollector(reg, s.energy); err != nil {
		return nil, err
	}
	if s.connected, err = registerCollector(reg, s.connected); err != nil {
		return nil, err
	}
	if s.supervisors, err = registerCollector(reg, s.supervisors); err != nil {
		return nil, err
	}
	return s, nil
}

func registerCollector[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordSession counts the transition and, for closed sessions, observes
// consumption and duration.
func (s *PromSink) RecordSession(rec coremetrics.SessionRecord) error {
	s.sessions.WithLabelValues(rec.Kind, strconv.FormatBool(rec.HasRFID)).Inc()
	if rec.Kind == string(events.SessionClosed) {
		s.consumption.Observe(rec.Consumption)
		s.duration.Observe(rec.Duration.Seconds())
	}
	return nil
}

func (s *PromSink) RecordMessage(rec coremetrics.MessageRecord) error {
	s.messages.WithLabelValues(rec.Outcome).Inc()
	s.latency.WithLabelValues(rec.Outcome).Observe(rec.Latency.Seconds())
	return nil
}

func (s *PromSink) RecordConnectionStatus(rec coremetrics.StatusRecord) error {
	id := strconv.FormatInt(rec.ChargerID, 10)
	s.reachable.WithLabelValues(id, "mqtt").Set(boolGauge(rec.MQTTOK))
	s.reachable.WithLabelValues(id, "telemetry").Set(boolGauge(rec.TelemetryOK))
	return nil
}

func (s *PromSink) RecordEnergy(rec coremetrics.EnergyRecord) error {
	s.energy.WithLabelValues(rec.ControllerID).Set(rec.Value)
	return nil
}

func (s *PromSink) RecordVehicleState(rec coremetrics.StateRecord) error {
	s.connected.WithLabelValues(rec.ControllerID).Set(boolGauge(rec.State == string(model.StateConnected)))
	return nil
}

// RecordActiveSupervisors sets the supervisor gauge.
func (s *PromSink) RecordActiveSupervisors(n int) error {
	s.supervisors.Set(float64(n))
	return nil
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
