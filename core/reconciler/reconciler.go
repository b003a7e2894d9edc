package reconciler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kilianp07/chargewatch/core/events"
	"github.com/kilianp07/chargewatch/core/logger"
	"github.com/kilianp07/chargewatch/core/model"
	"github.com/kilianp07/chargewatch/core/store"
	"github.com/kilianp07/chargewatch/core/supervisor"
	"github.com/kilianp07/chargewatch/internal/eventbus"
)

// DefaultIntervalSeconds is the reference reconciliation period.
const DefaultIntervalSeconds = 10

// Config defines the reconciliation loop settings.
type Config struct {
	IntervalSeconds int `json:"interval_seconds"`
}

// SetDefaults applies the reference values.
func (c *Config) SetDefaults() {
	if c.IntervalSeconds == 0 {
		c.IntervalSeconds = DefaultIntervalSeconds
	}
}

// Validate checks the configured values.
func (c Config) Validate() error {
	if c.IntervalSeconds < 0 {
		return fmt.Errorf("interval_seconds must not be negative")
	}
	return nil
}

// Supervisor is the lifecycle handle the reconciler manages.
type Supervisor interface {
	Start(ctx context.Context) error
	Stop()
	Charger() model.Charger
	Info() supervisor.Info
}

// Factory builds an unstarted supervisor for a charger.
type Factory func(c model.Charger) Supervisor

// Reconciler keeps one running supervisor per charger of the inventory.
type Reconciler struct {
	inventory store.InventoryStore
	factory   Factory
	interval  time.Duration
	bus       eventbus.EventBus
	log       logger.Logger

	tickMu sync.Mutex
	mu     sync.Mutex
	active map[int64]Supervisor
}

// New creates a Reconciler. bus may be nil.
func New(inv store.InventoryStore, factory Factory, cfg Config, bus eventbus.EventBus, log logger.Logger) *Reconciler {
	cfg.SetDefaults()
	return &Reconciler{
		inventory: inv,
		factory:   factory,
		interval:  time.Duration(cfg.IntervalSeconds) * time.Second,
		bus:       bus,
		log:       log,
		active:    make(map[int64]Supervisor),
	}
}

// Tick reads the inventory once and converges the supervisor set to it.
// When the inventory cannot be read the current set is kept and the error
// returned.
func (r *Reconciler) Tick(ctx context.Context) error {
	chargers, err := r.inventory.ListChargers(ctx)
	if err != nil {
		return fmt.Errorf("list chargers: %w", err)
	}
	wanted := make(map[int64]model.Charger, len(chargers))
	for _, c := range chargers {
		wanted[c.ID] = c
	}

	r.tickMu.Lock()
	defer r.tickMu.Unlock()

	r.mu.Lock()
	var stale []Supervisor
	for id, sup := range r.active {
		c, ok := wanted[id]
		switch {
		case !ok:
			r.log.Infof("charger %d removed from inventory", id)
		case !c.SameEndpoints(sup.Charger()):
			r.log.Infof("charger %d endpoints changed, restarting supervisor", id)
		default:
			continue
		}
		stale = append(stale, sup)
		delete(r.active, id)
	}
	var missing []model.Charger
	for id, c := range wanted {
		if _, ok := r.active[id]; !ok {
			missing = append(missing, c)
		}
	}
	r.mu.Unlock()

	stopAll(stale)

	var wg sync.WaitGroup
	for _, c := range missing {
		wg.Add(1)
		go func(c model.Charger) {
			defer wg.Done()
			sup := r.factory(c)
			if err := sup.Start(ctx); err != nil {
				r.log.Errorf("unable to start supervisor for charger %d, retrying next tick: %v", c.ID, err)
				sup.Stop()
				return
			}
			r.mu.Lock()
			r.active[c.ID] = sup
			r.mu.Unlock()
		}(c)
	}
	wg.Wait()

	active := r.Len()
	r.log.Debugf("reconciled %d chargers, %d supervisors active", len(wanted), active)
	if r.bus != nil {
		r.bus.Publish(events.SupervisorEvent{Active: active, Time: time.Now()})
	}
	return nil
}

// Run ticks immediately and then on every interval until ctx is done. A
// failure of the first tick is returned since nothing can be supervised
// without the inventory. Supervisors are left running; call Shutdown.
func (r *Reconciler) Run(ctx context.Context) error {
	if err := r.Tick(ctx); err != nil {
		return err
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := r.Tick(ctx); err != nil {
				r.log.Errorf("reconciliation failed, keeping %d supervisors: %v", r.Len(), err)
			}
		}
	}
}

// Shutdown stops every active supervisor.
func (r *Reconciler) Shutdown() {
	r.tickMu.Lock()
	defer r.tickMu.Unlock()
	r.mu.Lock()
	sups := make([]Supervisor, 0, len(r.active))
	for id, s := range r.active {
		sups = append(sups, s)
		delete(r.active, id)
	}
	r.mu.Unlock()
	stopAll(sups)
	r.log.Infof("stopped %d supervisors", len(sups))
}

// Active returns the supervised charger ids in ascending order.
func (r *Reconciler) Active() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]int64, 0, len(r.active))
	for id := range r.active {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Snapshot describes every active supervisor ordered by charger id.
func (r *Reconciler) Snapshot() []supervisor.Info {
	r.mu.Lock()
	sups := make([]Supervisor, 0, len(r.active))
	for _, s := range r.active {
		sups = append(sups, s)
	}
	r.mu.Unlock()
	infos := make([]supervisor.Info, 0, len(sups))
	for _, s := range sups {
		infos = append(infos, s.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ChargerID < infos[j].ChargerID })
	return infos
}

// Len returns the number of active supervisors.
func (r *Reconciler) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

func stopAll(sups []Supervisor) {
	var wg sync.WaitGroup
	for _, s := range sups {
		wg.Add(1)
		go func(s Supervisor) {
			defer wg.Done()
			s.Stop()
		}(s)
	}
	wg.Wait()
}
