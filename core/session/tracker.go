package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/chargewatch/core/events"
	"github.com/kilianp07/chargewatch/core/logger"
	"github.com/kilianp07/chargewatch/core/model"
	"github.com/kilianp07/chargewatch/core/monitoring"
	"github.com/kilianp07/chargewatch/core/store"
	"github.com/kilianp07/chargewatch/core/telemetry"
	"github.com/kilianp07/chargewatch/internal/eventbus"
)

// Store is the subset of persistence the tracker writes to.
type Store interface {
	store.StateStore
	store.SessionStore
	store.ControllerStore
}

// Request is one vehicle state message addressed to a controller.
type Request struct {
	ChargerID    int64
	ControllerID string
	Payload      []byte
	Gateway      telemetry.Gateway
}

// Tracker applies vehicle state messages to LastKnownState and charging
// sessions. Callers must not handle two messages for the same controller
// concurrently.
type Tracker struct {
	store    Store
	presence model.PresenceTable
	window   time.Duration
	backfill bool
	bus      eventbus.EventBus
	monitor  monitoring.Monitor
	log      logger.Logger
	now      func() time.Time
}

// NewTracker creates a Tracker. bus and mon may be nil.
func NewTracker(st Store, cfg Config, bus eventbus.EventBus, mon monitoring.Monitor, log logger.Logger) *Tracker {
	cfg.SetDefaults()
	if mon == nil {
		mon = monitoring.NopMonitor{}
	}
	return &Tracker{
		store:    st,
		presence: model.NewPresenceTable(cfg.PresenceCodes),
		window:   cfg.RFIDWindow(),
		backfill: cfg.LateRFIDBackfill,
		bus:      bus,
		monitor:  mon,
		log:      log,
		now:      time.Now,
	}
}

// Handle processes one message. Failures are logged here; the returned error
// only mirrors them for the caller's bookkeeping.
func (t *Tracker) Handle(ctx context.Context, req Request) (Outcome, error) {
	t.syncMetadata(ctx, req)

	energy, err := req.Gateway.Energy(ctx, req.ControllerID)
	if err != nil {
		t.log.Errorf("energy reading failed for controller %s: %v", req.ControllerID, err)
		return OutcomeTelemetryFailed, fmt.Errorf("energy: %w", err)
	}
	rfid, err := req.Gateway.RFID(ctx, req.ControllerID)
	if err != nil {
		t.log.Errorf("rfid reading failed for controller %s: %v", req.ControllerID, err)
		return OutcomeTelemetryFailed, fmt.Errorf("rfid: %w", err)
	}
	t.publish(events.EnergyEvent{ChargerID: req.ChargerID, ControllerID: req.ControllerID, Reading: energy})

	switch t.presence.Classify(req.Payload) {
	case model.StateConnected:
		t.log.Infof("EV connected to controller %s", req.ControllerID)
		return t.connect(ctx, req, energy, rfid)
	default:
		t.log.Infof("EV disconnected from controller %s", req.ControllerID)
		return t.disconnect(ctx, req, energy, rfid)
	}
}

// syncMetadata refreshes the controller row. Any failure only skips the upsert.
func (t *Tracker) syncMetadata(ctx context.Context, req Request) {
	info, err := req.Gateway.ControllerInfo(ctx, req.ControllerID)
	if err != nil {
		t.log.Warnf("controller info unavailable for %s, skipping metadata: %v", req.ControllerID, err)
		return
	}
	points, err := req.Gateway.ChargingPoints(ctx)
	if err != nil {
		t.log.Warnf("charging points unavailable for charger %d, skipping metadata: %v", req.ChargerID, err)
		return
	}
	c := model.Controller{
		ID:              req.ControllerID,
		ChargerID:       req.ChargerID,
		ParentDeviceID:  info.ParentDeviceID,
		Position:        info.Position,
		DeviceName:      info.DeviceName,
		FirmwareVersion: info.FirmwareVersion,
		HardwareVersion: info.HardwareVersion,
	}
	if p, ok := model.FindChargingPoint(points, req.ControllerID); ok {
		id := p.ID
		c.ChargingPointID = &id
		c.ChargingPointName = p.Name
	}
	if err := t.store.UpsertController(ctx, c); err != nil {
		t.log.Errorf("unable to upsert controller %s, charger %d might be deleted: %v", req.ControllerID, req.ChargerID, err)
		t.monitor.CaptureException(err, monitoring.Tags("controller", req.ChargerID, req.ControllerID))
	}
}

func (t *Tracker) connect(ctx context.Context, req Request, energy model.EnergyReading, rfid model.RFIDReading) (Outcome, error) {
	prev, known, err := t.store.GetLastState(ctx, req.ControllerID)
	if err != nil {
		return t.storeFailure(req, "read last state", err)
	}
	if known && prev == model.StateConnected {
		t.log.Debugf("controller %s already connected, ignoring duplicate", req.ControllerID)
		return OutcomeDuplicate, nil
	}

	tag, tagTime := t.correlateRFID(energy.Timestamp, rfid)

	exists, err := t.store.ControllerExists(ctx, req.ControllerID)
	if err != nil {
		return t.storeFailure(req, "lookup controller", err)
	}
	if !exists {
		t.log.Errorf("charging controller %s not found, not opening a session", req.ControllerID)
		return OutcomeUnknownController, fmt.Errorf("%w: %s", ErrUnknownController, req.ControllerID)
	}

	open, err := t.store.FindOpenSession(ctx, req.ControllerID)
	if err != nil {
		return t.storeFailure(req, "find open session", err)
	}
	if open != nil {
		t.log.Warnf("controller %s already has open session %d, restoring connected state", req.ControllerID, open.ID)
		return OutcomeRepaired, t.setState(ctx, req, prev, known, model.StateConnected)
	}

	start := model.SessionStart{
		ControllerID: req.ControllerID,
		StartTime:    energy.Timestamp,
		StartReading: energy.Value,
		RFIDTag:      tag,
		RFIDTime:     tagTime,
	}
	id, err := t.store.OpenSession(ctx, start)
	if err != nil {
		return t.storeFailure(req, "open session", err)
	}
	t.log.Infof("opened session %d on controller %s at %.3f", id, req.ControllerID, energy.Value)
	t.publish(events.SessionEvent{
		Kind:      events.SessionOpened,
		ChargerID: req.ChargerID,
		Session: model.ChargingSession{
			ID:           id,
			ControllerID: req.ControllerID,
			StartTime:    start.StartTime,
			StartReading: start.StartReading,
			RFIDTag:      tag,
			RFIDTime:     tagTime,
		},
		Time: t.now(),
	})
	return OutcomeOpened, t.setState(ctx, req, prev, known, model.StateConnected)
}

func (t *Tracker) disconnect(ctx context.Context, req Request, energy model.EnergyReading, rfid model.RFIDReading) (Outcome, error) {
	prev, known, err := t.store.GetLastState(ctx, req.ControllerID)
	if err != nil {
		return t.storeFailure(req, "read last state", err)
	}

	outcome := OutcomeDisconnected
	var result error
	if known && prev == model.StateConnected {
		open, err := t.store.FindOpenSession(ctx, req.ControllerID)
		if err != nil {
			return t.storeFailure(req, "find open session", err)
		}
		if open == nil {
			t.log.Errorf("no open charging session found for controller %s", req.ControllerID)
			outcome = OutcomeNoOpenSession
			result = fmt.Errorf("%w: %s", ErrNoOpenSession, req.ControllerID)
		} else {
			end := model.SessionEnd{
				EndTime:     energy.Timestamp,
				EndReading:  energy.Value,
				Consumption: energy.Value - open.StartReading,
				Duration:    energy.Timestamp.Sub(open.StartTime),
			}
			if t.backfill && open.RFIDTag == nil && rfid.Tag != "" && within(rfid.Timestamp, open.StartTime, energy.Timestamp) {
				tag, ts := rfid.Tag, rfid.Timestamp
				end.RFIDTag, end.RFIDTime = &tag, &ts
			}
			if err := t.store.CloseSession(ctx, open.ID, end); err != nil {
				return t.storeFailure(req, "close session", err)
			}
			t.log.Infof("closed session %d on controller %s: consumption %.3f over %s", open.ID, req.ControllerID, end.Consumption, end.Duration)
			closed := *open
			closed.EndTime = &end.EndTime
			closed.EndReading = &end.EndReading
			closed.Consumption = &end.Consumption
			closed.Duration = &end.Duration
			if end.RFIDTag != nil {
				closed.RFIDTag, closed.RFIDTime = end.RFIDTag, end.RFIDTime
			}
			t.publish(events.SessionEvent{Kind: events.SessionClosed, ChargerID: req.ChargerID, Session: closed, Time: t.now()})
			outcome = OutcomeClosed
		}
	}

	if err := t.setState(ctx, req, prev, known, model.StateDisconnected); err != nil {
		result = errors.Join(result, err)
	}
	return outcome, result
}

// correlateRFID keeps the tap only when it happened within the window of the
// session start.
func (t *Tracker) correlateRFID(start time.Time, rfid model.RFIDReading) (*string, *time.Time) {
	if !rfid.HasTimestamp() || rfid.Tag == "" {
		return nil, nil
	}
	diff := rfid.Timestamp.Sub(start)
	if diff < 0 {
		diff = -diff
	}
	if diff >= t.window {
		return nil, nil
	}
	tag, ts := rfid.Tag, rfid.Timestamp
	return &tag, &ts
}

// setState records next as the last known state. A failure is logged and
// reported but does not undo the session change that preceded it.
func (t *Tracker) setState(ctx context.Context, req Request, prev model.VehicleState, known bool, next model.VehicleState) error {
	if err := t.store.SetLastState(ctx, req.ControllerID, next); err != nil {
		t.log.Errorf("unable to set last known state of controller %s to %s: %v", req.ControllerID, next, err)
		t.monitor.CaptureException(err, monitoring.Tags("state", req.ChargerID, req.ControllerID))
		return fmt.Errorf("set last state: %w", err)
	}
	if !known || prev != next {
		t.log.Infof("last known state of controller %s set to %s", req.ControllerID, next)
		t.publish(events.StateEvent{ControllerID: req.ControllerID, From: prev, To: next, Time: t.now()})
	}
	return nil
}

func (t *Tracker) storeFailure(req Request, op string, err error) (Outcome, error) {
	t.log.Errorf("%s failed for controller %s: %v", op, req.ControllerID, err)
	t.monitor.CaptureException(err, monitoring.Tags("session", req.ChargerID, req.ControllerID))
	return OutcomeStoreFailed, fmt.Errorf("%s: %w", op, err)
}

func (t *Tracker) publish(ev eventbus.Event) {
	if t.bus != nil {
		t.bus.Publish(ev)
	}
}

func within(ts, start, end time.Time) bool {
	if ts.IsZero() {
		return false
	}
	return !ts.Before(start) && !ts.After(end)
}
