package mqtt

import (
	"context"
	"time"

	"github.com/kilianp07/chargewatch/core/model"
)

// Message is one publication received from a charger's broker.
type Message struct {
	Topic    string
	Payload  []byte
	Received time.Time
}

// Handler receives messages. It must not block for long: the transport calls
// it from its own delivery goroutine.
type Handler func(Message)

// Subscriber is a connection to one charger's broker.
type Subscriber interface {
	// Subscribe registers the handler for the topic filter and keeps the
	// subscription alive across reconnects.
	Subscribe(ctx context.Context, topic string, h Handler) error
	Unsubscribe(topic string) error
	IsConnected() bool
	Disconnect()
}

// Dialer opens a broker connection for the given charger.
type Dialer func(ctx context.Context, c model.Charger) (Subscriber, error)
