// Package httpapi exposes the operational HTTP endpoints: liveness, metrics
// exposition and the live supervisor set.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kilianp07/chargewatch/core/supervisor"
	"github.com/kilianp07/chargewatch/infra/logger"
)

// Config holds the listen address. An empty address disables the server.
type Config struct {
	Addr string `json:"addr"`
}

// Pinger reports store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SupervisorLister returns a snapshot of the live supervisors.
type SupervisorLister interface {
	Snapshot() []supervisor.Info
}

type Server struct {
	Store       Pinger
	Supervisors SupervisorLister
	Gatherer    prometheus.Gatherer
	log         logger.Logger
}

// NewServer builds a server. A nil gatherer serves the default registry.
func NewServer(store Pinger, sups SupervisorLister, g prometheus.Gatherer) *Server {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return &Server{Store: store, Supervisors: sups, Gatherer: g, log: logger.New("httpapi")}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))
	r.Get("/supervisors", s.ListSupervisors)
	r.Get("/supervisors/{chargerId}", s.GetSupervisor)
	return r
}

// Run serves the routes on addr until ctx is canceled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Routes(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Errorf("http server shutdown: %v", err)
		}
		cancel()
	}()
	s.log.Infof("ops http listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	if s.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.Store.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ListSupervisors(w http.ResponseWriter, r *http.Request) {
	out := []supervisor.Info{}
	if s.Supervisors != nil {
		out = append(out, s.Supervisors.Snapshot()...)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) GetSupervisor(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "chargerId"), 10, 64)
	if err != nil {
		http.Error(w, "bad charger id", http.StatusBadRequest)
		return
	}
	if s.Supervisors != nil {
		for _, info := range s.Supervisors.Snapshot() {
			if info.ChargerID == id {
				writeJSON(w, http.StatusOK, info)
				return
			}
		}
	}
	http.NotFound(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
