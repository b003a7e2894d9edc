package metrics

import (
	"context"
	"time"

	"github.com/kilianp07/chargewatch/core/events"
	coremetrics "github.com/kilianp07/chargewatch/core/metrics"
	"github.com/kilianp07/chargewatch/infra/logger"
	"github.com/kilianp07/chargewatch/internal/eventbus"
)

// StartEventCollector subscribes to the event bus and records metrics for events.
// It stops when the context is canceled or the bus is closed. The returned
// channel is closed once the collector has stopped.
func StartEventCollector(ctx context.Context, bus eventbus.EventBus, sink coremetrics.MetricsSink) <-chan struct{} {
	done := make(chan struct{})
	if bus == nil || sink == nil {
		close(done)
		return done
	}
	log := logger.New("metrics-collector")
	sub := bus.Subscribe()
	go func() {
		defer close(done)
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				if err := record(sink, ev); err != nil {
					log.Warnf("record %T: %v", ev, err)
				}
			}
		}
	}()
	return done
}

func record(sink coremetrics.MetricsSink, ev eventbus.Event) error {
	switch e := ev.(type) {
	case events.SessionEvent:
		rec := coremetrics.SessionRecord{
			Kind:         string(e.Kind),
			ChargerID:    e.ChargerID,
			ControllerID: e.Session.ControllerID,
			SessionID:    e.Session.ID,
			HasRFID:      e.Session.RFIDTag != nil,
			Time:         e.Time,
		}
		if e.Session.Consumption != nil {
			rec.Consumption = *e.Session.Consumption
		}
		if e.Session.Duration != nil {
			rec.Duration = *e.Session.Duration
		}
		return sink.RecordSession(rec)
	case events.MessageEvent:
		if r, ok := sink.(coremetrics.MessageRecorder); ok {
			return r.RecordMessage(coremetrics.MessageRecord{
				ChargerID:    e.ChargerID,
				ControllerID: e.ControllerID,
				Outcome:      e.Outcome,
				Latency:      e.Latency,
				Time:         time.Now(),
			})
		}
	case events.StatusEvent:
		if r, ok := sink.(coremetrics.StatusRecorder); ok {
			return r.RecordConnectionStatus(coremetrics.StatusRecord{
				ChargerID:   e.Status.ChargerID,
				MQTTOK:      e.Status.MQTTOK,
				TelemetryOK: e.Status.TelemetryOK,
				Time:        e.Status.UpdatedAt,
			})
		}
	case events.EnergyEvent:
		if r, ok := sink.(coremetrics.EnergyRecorder); ok {
			return r.RecordEnergy(coremetrics.EnergyRecord{
				ChargerID:    e.ChargerID,
				ControllerID: e.ControllerID,
				Value:        e.Reading.Value,
				Time:         e.Reading.Timestamp,
			})
		}
	case events.StateEvent:
		if r, ok := sink.(coremetrics.StateRecorder); ok {
			return r.RecordVehicleState(coremetrics.StateRecord{
				ControllerID: e.ControllerID,
				State:        string(e.To),
				Time:         e.Time,
			})
		}
	case events.SupervisorEvent:
		if r, ok := sink.(coremetrics.SupervisorRecorder); ok {
			return r.RecordActiveSupervisors(e.Active)
		}
	}
	return nil
}
