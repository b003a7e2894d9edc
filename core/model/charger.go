package model

import (
	"net"
	"strconv"
	"time"
)

// Charger is a site gateway exposing an MQTT broker and a REST telemetry API.
type Charger struct {
	ID            int64  `json:"id"`
	Name          string `json:"name,omitempty"`
	Address       string `json:"address"`
	MQTTPort      int    `json:"mqtt_port"`
	TelemetryPort int    `json:"telemetry_port"`
	MQTTUser      string `json:"mqtt_user,omitempty"`
	MQTTPassword  string `json:"-"`
}

// BrokerAddr returns the host:port of the charger's MQTT broker.
func (c Charger) BrokerAddr() string {
	return net.JoinHostPort(c.Address, strconv.Itoa(c.MQTTPort))
}

// TelemetryAddr returns the host:port of the charger's telemetry API.
func (c Charger) TelemetryAddr() string {
	return net.JoinHostPort(c.Address, strconv.Itoa(c.TelemetryPort))
}

// SameEndpoints reports whether both chargers would be reached the same way.
func (c Charger) SameEndpoints(o Charger) bool {
	return c.Address == o.Address &&
		c.MQTTPort == o.MQTTPort &&
		c.TelemetryPort == o.TelemetryPort &&
		c.MQTTUser == o.MQTTUser &&
		c.MQTTPassword == o.MQTTPassword
}

// ConnectionStatus records the liveness of a charger's endpoints.
type ConnectionStatus struct {
	ChargerID   int64     `json:"charger_id"`
	MQTTOK      bool      `json:"mqtt_ok"`
	TelemetryOK bool      `json:"telemetry_ok"`
	UpdatedAt   time.Time `json:"updated_at"`
}
