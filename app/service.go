// Package app wires the store, the session tracker, the per-charger
// supervisors and the ambient services into one runnable process.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/chargewatch/config"
	coremetrics "github.com/kilianp07/chargewatch/core/metrics"
	"github.com/kilianp07/chargewatch/core/model"
	coremon "github.com/kilianp07/chargewatch/core/monitoring"
	"github.com/kilianp07/chargewatch/core/reconciler"
	"github.com/kilianp07/chargewatch/core/session"
	"github.com/kilianp07/chargewatch/core/store"
	"github.com/kilianp07/chargewatch/core/supervisor"
	"github.com/kilianp07/chargewatch/infra/httpapi"
	"github.com/kilianp07/chargewatch/infra/logger"
	"github.com/kilianp07/chargewatch/infra/metrics"
	"github.com/kilianp07/chargewatch/infra/monitoring"
	"github.com/kilianp07/chargewatch/infra/mqtt"
	"github.com/kilianp07/chargewatch/infra/probe"
	"github.com/kilianp07/chargewatch/infra/store/postgres"
	"github.com/kilianp07/chargewatch/infra/store/sqlite"
	"github.com/kilianp07/chargewatch/infra/telemetry"
	"github.com/kilianp07/chargewatch/internal/eventbus"
)

// Service owns every long lived component of the monitor.
type Service struct {
	Store      store.Store
	Tracker    *session.Tracker
	Reconciler *reconciler.Reconciler
	HTTP       *httpapi.Server

	cfg     *config.Config
	bus     *eventbus.Bus
	sink    coremetrics.MetricsSink
	monitor coremon.Monitor
	log     logger.Logger
}

// eventBuffer sizes the metrics collector queue.
const eventBuffer = 256

// Option customizes the Service built by New.
type Option func(*options)

type options struct {
	store    store.Store
	registry prometheus.Registerer
	gatherer prometheus.Gatherer
}

// WithStore uses st instead of opening the configured database.
func WithStore(st store.Store) Option { return func(o *options) { o.store = st } }

// WithRegistry registers telemetry collectors and serves /metrics from reg.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) { o.registry, o.gatherer = reg, reg }
}

// OpenStore connects the configured backend.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig) (store.Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		return sqlite.Open(cfg.SQLite.Path)
	case config.DriverPostgres:
		return postgres.Connect(ctx, cfg.Postgres)
	default:
		return nil, fmt.Errorf("unknown database driver %s", cfg.Driver)
	}
}

// New creates a Service from the configuration.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Service, error) {
	o := options{registry: prometheus.DefaultRegisterer, gatherer: prometheus.DefaultGatherer}
	for _, opt := range opts {
		opt(&o)
	}
	logg := logger.New("service")

	st := o.store
	if st == nil {
		var err error
		if st, err = OpenStore(ctx, cfg.Database); err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
	}

	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("sentry: %w", err)
	}
	inst, err := telemetry.NewInstruments(o.registry)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("telemetry instruments: %w", err)
	}

	bus := eventbus.New(eventbus.WithBuffer(eventBuffer))
	tracker := session.NewTracker(st, cfg.Session, bus, mon, logger.New("session"))
	deps := supervisor.Deps{
		Dial:       mqtt.NewDialer(cfg.MQTT),
		NewGateway: telemetry.NewFactory(cfg.Telemetry, inst),
		Prober:     probe.NewTCPProber(cfg.Probe.Timeout()),
		Status:     st,
		Handler:    tracker,
		Bus:        bus,
		Monitor:    mon,
		Logger:     logger.New("supervisor"),
	}
	factory := func(c model.Charger) reconciler.Supervisor {
		return supervisor.New(c, cfg.Supervisor, deps)
	}
	rec := reconciler.New(st, factory, cfg.Reconciler, bus, logger.New("reconciler"))

	return &Service{
		Store:      st,
		Tracker:    tracker,
		Reconciler: rec,
		HTTP:       httpapi.NewServer(st, rec, o.gatherer),
		cfg:        cfg,
		bus:        bus,
		sink:       sink,
		monitor:    mon,
		log:        logg,
	}, nil
}

// Run starts the metrics collector and the ops server, then reconciles the
// inventory until ctx is canceled. Supervisors are stopped before returning.
func (s *Service) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	collected := metrics.StartEventCollector(ctx, s.bus, s.sink)
	httpErr := make(chan error, 1)
	if s.cfg.HTTP.Addr != "" {
		go func() { httpErr <- s.HTTP.Run(ctx, s.cfg.HTTP.Addr) }()
	}

	s.log.Infof("reconciling inventory every %ds", s.cfg.Reconciler.IntervalSeconds)
	err := s.Reconciler.Run(ctx)
	s.Reconciler.Shutdown()
	cancel()
	<-collected
	if s.cfg.HTTP.Addr != "" {
		if herr := <-httpErr; herr != nil {
			err = errors.Join(err, fmt.Errorf("http: %w", herr))
		}
	}
	return err
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	s.Reconciler.Shutdown()
	s.bus.Close()
	if n := s.bus.Dropped(); n > 0 {
		s.log.Warnf("%d metrics events dropped by a full collector queue", n)
	}
	s.monitor.Flush(2 * time.Second)
	var errs []error
	if c, ok := s.sink.(interface{ Close() error }); ok {
		errs = append(errs, c.Close())
	}
	errs = append(errs, s.Store.Close())
	return errors.Join(errs...)
}
