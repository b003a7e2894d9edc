package metrics

// MultiSink fans records out to multiple sinks. Optional recorder methods are
// forwarded only to sinks implementing them.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordSession forwards the record to all sinks, returning the first error encountered.
func (m *MultiSink) RecordSession(rec SessionRecord) error {
	for _, s := range m.Sinks {
		if err := s.RecordSession(rec); err != nil {
			return err
		}
	}
	return nil
}

// RecordMessage forwards message outcomes.
func (m *MultiSink) RecordMessage(rec MessageRecord) error {
	for _, s := range m.Sinks {
		if r, ok := s.(MessageRecorder); ok {
			if err := r.RecordMessage(rec); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordConnectionStatus forwards status observations.
func (m *MultiSink) RecordConnectionStatus(rec StatusRecord) error {
	for _, s := range m.Sinks {
		if r, ok := s.(StatusRecorder); ok {
			if err := r.RecordConnectionStatus(rec); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordEnergy forwards meter readings.
func (m *MultiSink) RecordEnergy(rec EnergyRecord) error {
	for _, s := range m.Sinks {
		if r, ok := s.(EnergyRecorder); ok {
			if err := r.RecordEnergy(rec); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordVehicleState forwards presence changes.
func (m *MultiSink) RecordVehicleState(rec StateRecord) error {
	for _, s := range m.Sinks {
		if r, ok := s.(StateRecorder); ok {
			if err := r.RecordVehicleState(rec); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordActiveSupervisors forwards the supervisor gauge.
func (m *MultiSink) RecordActiveSupervisors(n int) error {
	for _, s := range m.Sinks {
		if r, ok := s.(SupervisorRecorder); ok {
			if err := r.RecordActiveSupervisors(n); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close closes every sink that holds resources.
func (m *MultiSink) Close() error {
	return closeAll(m.Sinks)
}
