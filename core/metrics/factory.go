package metrics

import (
	"errors"
	"fmt"
	"io"

	"github.com/kilianp07/chargewatch/core/factory"
)

var sinkRegistry = factory.NewRegistry[MetricsSink]()

// RegisterMetricsSink adds a metrics sink factory identified by name.
func RegisterMetricsSink(name string, f factory.Factory[MetricsSink]) error {
	return sinkRegistry.Register(name, f)
}

// SinkTypes lists the registered sink names.
func SinkTypes() []string {
	return sinkRegistry.Names()
}

// NewMetricsSink builds the sinks listed in the metrics section. An empty list
// yields a NopSink, a single entry is returned as is, and several entries are
// combined into a MultiSink with the nop entries left out. Sinks already built
// are closed when a later entry fails.
func NewMetricsSink(cfgs []factory.ModuleConfig) (MetricsSink, error) {
	sinks := make([]MetricsSink, 0, len(cfgs))
	for i, c := range cfgs {
		s, err := sinkRegistry.Create(c)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("sinks[%d]: %w", i, err), closeAll(sinks))
		}
		if _, nop := s.(NopSink); nop && len(cfgs) > 1 {
			continue
		}
		sinks = append(sinks, s)
	}
	switch len(sinks) {
	case 0:
		return NopSink{}, nil
	case 1:
		return sinks[0], nil
	default:
		return NewMultiSink(sinks...), nil
	}
}

func closeAll(sinks []MetricsSink) error {
	var errs []error
	for _, s := range sinks {
		if c, ok := s.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
