package mqtt

import "errors"

var (
	// ErrNotConnected is returned when the broker could not be reached.
	ErrNotConnected = errors.New("mqtt broker not connected")
	// ErrSubscribe is returned when the broker rejected a subscription.
	ErrSubscribe = errors.New("mqtt subscribe failed")
	// ErrUnknownTopic is returned when no controller id can be read from a topic.
	ErrUnknownTopic = errors.New("no controller id in topic")
)
