package telemetry

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Instruments counts telemetry API calls.
type Instruments struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewInstruments registers the telemetry collectors on reg, reusing the ones
// already registered.
func NewInstruments(reg prometheus.Registerer) (*Instruments, error) {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "telemetry_requests_total",
		Help: "Number of telemetry API requests by endpoint and result",
	}, []string{"endpoint", "result"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "telemetry_request_latency_seconds",
		Help:    "Latency of telemetry API requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	var err error
	if requests, err = register(reg, requests); err != nil {
		return nil, err
	}
	if latency, err = register(reg, latency); err != nil {
		return nil, err
	}
	return &Instruments{requests: requests, latency: latency}, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
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

func (i *Instruments) observe(endpoint, result string, seconds float64) {
	if i == nil {
		return
	}
	i.requests.WithLabelValues(endpoint, result).Inc()
	i.latency.WithLabelValues(endpoint).Observe(seconds)
}
