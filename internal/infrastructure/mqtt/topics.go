package mqtt

import (
	"fmt"
	"strings"
)

// DefaultBaseTopic is the topic prefix used when no base topic is configured.
const DefaultBaseTopic = "hearth"

// Topics provides builders for Hearth MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
// All topics hang off a single configurable base (default "hearth"):
//
//	topics := mqtt.Topics{Base: cfg.BaseTopic}
//	stateTopic := topics.EntityState("light.living_room")
//	// Returns: "hearth/state/light.living_room"
type Topics struct {
	// Base overrides the topic prefix. Empty means DefaultBaseTopic.
	Base string
}

func (t Topics) base() string {
	if t.Base == "" {
		return DefaultBaseTopic
	}
	return t.Base
}

// EntityState returns the retained state topic for a single entity.
//
// Example: hearth/state/light.living_room
func (t Topics) EntityState(entityID string) string {
	return fmt.Sprintf("%s/state/%s", t.base(), entityID)
}

// Event returns the topic for a published hub event.
//
// Example: hearth/event/state_changed
func (t Topics) Event(eventType string) string {
	return fmt.Sprintf("%s/event/%s", t.base(), eventType)
}

// ServiceCall returns the topic for invoking a service over MQTT.
//
// Example: hearth/service/light/turn_on
func (t Topics) ServiceCall(domain, service string) string {
	return fmt.Sprintf("%s/service/%s/%s", t.base(), domain, service)
}

// Status returns the hub availability topic, also used for the LWT.
//
// Example: hearth/status
func (t Topics) Status() string {
	return fmt.Sprintf("%s/status", t.base())
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllEntityStates returns a pattern matching all entity state topics.
//
// Pattern: hearth/state/+
func (t Topics) AllEntityStates() string {
	return fmt.Sprintf("%s/state/+", t.base())
}

// AllEvents returns a pattern matching all published events.
//
// Pattern: hearth/event/+
func (t Topics) AllEvents() string {
	return fmt.Sprintf("%s/event/+", t.base())
}

// AllServiceCalls returns a pattern matching all service invocation topics.
//
// Pattern: hearth/service/+/+
func (t Topics) AllServiceCalls() string {
	return fmt.Sprintf("%s/service/+/+", t.base())
}

// All returns a pattern matching every topic under the base.
// Use with caution - this receives ALL traffic.
//
// Pattern: hearth/#
func (t Topics) All() string {
	return fmt.Sprintf("%s/#", t.base())
}

// SplitServiceCall extracts the domain and service from a concrete
// service invocation topic. Returns ok=false if the topic does not
// match the <base>/service/<domain>/<service> shape.
func (t Topics) SplitServiceCall(topic string) (domain, service string, ok bool) {
	prefix := t.base() + "/service/"
	rest, found := strings.CutPrefix(topic, prefix)
	if !found {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
