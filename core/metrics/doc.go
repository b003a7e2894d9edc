// Package metrics defines the recorder interfaces used to observe charging
// activity. Sinks like PromSink and InfluxSink record session transitions,
// message outcomes and charger reachability and can be combined with
// NewMultiSink. The factory helpers return a MultiSink automatically when
// multiple sinks are configured.
package metrics
