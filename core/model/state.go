package model

import (
	"fmt"
	"strings"
)

// VehicleState is the confirmed vehicle presence on a controller.
type VehicleState string

const (
	StateConnected    VehicleState = "connected"
	StateDisconnected VehicleState = "disconnected"
)

// Valid reports whether s is one of the persisted states.
func (s VehicleState) Valid() bool {
	return s == StateConnected || s == StateDisconnected
}

func (s VehicleState) String() string { return string(s) }

// ParseVehicleState converts a stored value back into a VehicleState.
func ParseVehicleState(v string) (VehicleState, error) {
	s := VehicleState(v)
	if !s.Valid() {
		return "", fmt.Errorf("invalid vehicle state %q", v)
	}
	return s, nil
}

// DefaultPresenceCodes are the IEC 61851 states in which a vehicle is plugged in.
var DefaultPresenceCodes = []string{"B1", "B2", "C1", "C2", "D1", "D2"}

// PresenceTable maps IEC 61851 state payloads to a VehicleState.
type PresenceTable struct {
	codes map[string]struct{}
}

// NewPresenceTable builds a table from the given presence codes. An empty
// list falls back to DefaultPresenceCodes.
func NewPresenceTable(codes []string) PresenceTable {
	if len(codes) == 0 {
		codes = DefaultPresenceCodes
	}
	t := PresenceTable{codes: make(map[string]struct{}, len(codes))}
	for _, c := range codes {
		t.codes[strings.ToUpper(strings.TrimSpace(c))] = struct{}{}
	}
	return t
}

// Classify maps a raw payload to connected for presence codes and to
// disconnected for anything else.
func (t PresenceTable) Classify(payload []byte) VehicleState {
	code := strings.ToUpper(strings.TrimSpace(string(payload)))
	if _, ok := t.codes[code]; ok {
		return StateConnected
	}
	return StateDisconnected
}
