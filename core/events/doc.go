// Package events defines the charging related events emitted on the event bus.
//
// Available event types:
//   - MessageEvent: outcome of handling one vehicle state message
//   - StateEvent: a LastKnownState write
//   - SessionEvent: a charging session opened or closed
//   - StatusEvent: a charger connection status observation
//   - EnergyEvent: an energy meter reading fetched from a controller
//   - SupervisorEvent: the number of live connection supervisors changed
package events
