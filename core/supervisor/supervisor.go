package supervisor

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/kilianp07/chargewatch/core/events"
	"github.com/kilianp07/chargewatch/core/logger"
	"github.com/kilianp07/chargewatch/core/model"
	"github.com/kilianp07/chargewatch/core/monitoring"
	"github.com/kilianp07/chargewatch/core/mqtt"
	"github.com/kilianp07/chargewatch/core/session"
	"github.com/kilianp07/chargewatch/core/store"
	"github.com/kilianp07/chargewatch/core/telemetry"
	"github.com/kilianp07/chargewatch/internal/eventbus"
)

// OutcomeMalformedTopic is reported for messages whose topic carries no
// controller identifier.
const OutcomeMalformedTopic = "malformed_topic"

// Prober checks whether a TCP endpoint accepts connections.
type Prober interface {
	Probe(ctx context.Context, addr string) bool
}

// Handler applies one vehicle state message.
type Handler interface {
	Handle(ctx context.Context, req session.Request) (session.Outcome, error)
}

// GatewayFactory returns the telemetry gateway of a charger.
type GatewayFactory func(c model.Charger) telemetry.Gateway

// Deps groups the collaborators shared by every supervisor.
type Deps struct {
	Dial       mqtt.Dialer
	NewGateway GatewayFactory
	Prober     Prober
	Status     store.StatusStore
	Handler    Handler
	Bus        eventbus.EventBus
	Monitor    monitoring.Monitor
	Logger     logger.Logger
}

// Info is a point in time view of a supervisor.
type Info struct {
	ChargerID int64     `json:"charger_id"`
	Name      string    `json:"name,omitempty"`
	Broker    string    `json:"broker"`
	Connected bool      `json:"connected"`
	Since     time.Time `json:"since"`
	Handled   uint64    `json:"handled"`
}

// Supervisor owns the broker subscription of one charger and feeds its
// messages, in arrival order, to the Handler.
type Supervisor struct {
	charger model.Charger
	cfg     Config
	deps    Deps
	gateway telemetry.Gateway
	log     logger.Logger

	intake chan mqtt.Message
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	sub     mqtt.Subscriber
	since   time.Time
	handled uint64
	stop    sync.Once
}

// New constructs a Supervisor for the charger. Nothing is connected until Start.
func New(c model.Charger, cfg Config, deps Deps) *Supervisor {
	cfg.SetDefaults()
	if deps.Monitor == nil {
		deps.Monitor = monitoring.NopMonitor{}
	}
	if deps.Logger == nil {
		deps.Logger = nopLogger{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		charger: c,
		cfg:     cfg,
		deps:    deps,
		gateway: deps.NewGateway(c),
		log:     deps.Logger.With("charger_id", c.ID),
		intake:  make(chan mqtt.Message, cfg.QueueSize),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Charger returns the charger this supervisor was built for.
func (s *Supervisor) Charger() model.Charger { return s.charger }

// Start connects to the charger broker, starts the worker and subscribes to
// the vehicle state topic. On error the caller should still call Stop.
func (s *Supervisor) Start(ctx context.Context) error {
	cctx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout())
	defer cancel()

	sub, err := s.deps.Dial(cctx, s.charger)
	if err != nil {
		return fmt.Errorf("connect charger %d at %s: %w", s.charger.ID, s.charger.BrokerAddr(), err)
	}
	s.mu.Lock()
	s.sub = sub
	s.since = time.Now()
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run()

	if err := sub.Subscribe(cctx, s.cfg.StateTopic, s.enqueue); err != nil {
		return fmt.Errorf("subscribe charger %d to %s: %w", s.charger.ID, s.cfg.StateTopic, err)
	}
	s.log.Infof("supervising charger %d at %s on %s", s.charger.ID, s.charger.BrokerAddr(), s.cfg.StateTopic)
	return nil
}

// Stop unsubscribes, lets the in-flight message finish and disconnects.
// Queued messages not yet handled are dropped. It is safe to call more than once and
// after a failed Start.
func (s *Supervisor) Stop() {
	s.stop.Do(func() {
		s.mu.Lock()
		sub := s.sub
		s.mu.Unlock()

		if sub != nil {
			if err := sub.Unsubscribe(s.cfg.StateTopic); err != nil {
				s.log.Warnf("unsubscribe charger %d: %v", s.charger.ID, err)
			}
		}
		close(s.done)
		s.wg.Wait()
		s.cancel()
		if sub != nil {
			sub.Disconnect()
		}
		s.log.Infof("stopped supervising charger %d", s.charger.ID)
	})
}

// Info returns a snapshot of the supervisor.
func (s *Supervisor) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := Info{
		ChargerID: s.charger.ID,
		Name:      s.charger.Name,
		Broker:    s.charger.BrokerAddr(),
		Since:     s.since,
		Handled:   s.handled,
	}
	if s.sub != nil {
		info.Connected = s.sub.IsConnected()
	}
	return info
}

// enqueue runs on the transport delivery goroutine. It blocks while the
// queue is full so that no message is lost or reordered.
func (s *Supervisor) enqueue(msg mqtt.Message) {
	select {
	case s.intake <- msg:
	case <-s.done:
	}
}

func (s *Supervisor) run() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.intake:
			select {
			case <-s.done:
				return
			default:
			}
			s.handle(msg)
		}
	}
}

func (s *Supervisor) handle(msg mqtt.Message) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic handling %s: %v", msg.Topic, r)
			s.log.Errorf("%v\n%s", err, debug.Stack())
			s.deps.Monitor.CaptureException(err, monitoring.Tags("supervisor", s.charger.ID, ""))
		}
		s.mu.Lock()
		s.handled++
		s.mu.Unlock()
	}()

	controllerID, err := mqtt.ControllerIDFromTopic(s.cfg.StateTopic, msg.Topic)
	if err != nil {
		s.log.Warnf("charger %d: dropping message: %v", s.charger.ID, err)
		s.publish(events.MessageEvent{ChargerID: s.charger.ID, Outcome: OutcomeMalformedTopic, Latency: time.Since(start), Err: err})
		return
	}
	s.log.Debugw("vehicle state", map[string]any{"controller_id": controllerID, "payload": string(msg.Payload)})

	s.recordStatus(s.ctx)

	outcome, err := s.deps.Handler.Handle(s.ctx, session.Request{
		ChargerID:    s.charger.ID,
		ControllerID: controllerID,
		Payload:      msg.Payload,
		Gateway:      s.gateway,
	})
	s.publish(events.MessageEvent{
		ChargerID:    s.charger.ID,
		ControllerID: controllerID,
		Outcome:      string(outcome),
		Latency:      time.Since(start),
		Err:          err,
	})
}

// recordStatus probes the broker and telemetry endpoints one after the other
// and stores the result.
func (s *Supervisor) recordStatus(ctx context.Context) {
	st := model.ConnectionStatus{
		ChargerID:   s.charger.ID,
		MQTTOK:      s.deps.Prober.Probe(ctx, s.charger.BrokerAddr()),
		TelemetryOK: s.deps.Prober.Probe(ctx, s.charger.TelemetryAddr()),
		UpdatedAt:   time.Now().UTC(),
	}
	if !st.MQTTOK || !st.TelemetryOK {
		s.log.Warnf("charger %d reachability: mqtt=%t telemetry=%t", s.charger.ID, st.MQTTOK, st.TelemetryOK)
	}
	if err := s.deps.Status.UpsertConnectionStatus(ctx, st); err != nil {
		s.log.Errorf("unable to upsert connection status of charger %d: %v", s.charger.ID, err)
		s.deps.Monitor.CaptureException(err, monitoring.Tags("status", s.charger.ID, ""))
	}
	s.publish(events.StatusEvent{Status: st})
}

func (s *Supervisor) publish(ev eventbus.Event) {
	if s.deps.Bus != nil {
		s.deps.Bus.Publish(ev)
	}
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any)            {}
func (nopLogger) Debugw(string, map[string]any)    {}
func (nopLogger) Infof(string, ...any)             {}
func (nopLogger) Warnf(string, ...any)             {}
func (nopLogger) Errorf(string, ...any)            {}
func (n nopLogger) With(string, any) logger.Logger { return n }
