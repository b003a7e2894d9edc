package mqtt

import (
	"fmt"
	"strings"
)

// DefaultStateTopic is the IEC 61851 vehicle state topic of every controller.
const DefaultStateTopic = "charging_controllers/+/data/iec_61851_state"

// ControllerIDFromTopic returns the segment between the first and second
// slash of a topic matching the filter's fixed prefix.
func ControllerIDFromTopic(filter, topic string) (string, error) {
	prefix, _, _ := strings.Cut(filter, "/")
	parts := strings.Split(topic, "/")
	if len(parts) < 3 || parts[0] != prefix || parts[1] == "" {
		return "", fmt.Errorf("%w: %q", ErrUnknownTopic, topic)
	}
	return parts[1], nil
}
