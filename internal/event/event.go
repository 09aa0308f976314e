package event

import "time"

// Well-known event types fired by the core. Collaborators listen for these
// by exact string; the payload shapes are documented on the firing site.
const (
	// TypeStateChanged carries {"entity_id", "old_state", "new_state"}.
	// old_state is nil when the entity just appeared, new_state is nil
	// when it was removed.
	TypeStateChanged = "state_changed"

	// TypeCallService is the audit event fired before every service
	// execution, with {"domain", "service", "service_data"}.
	TypeCallService = "call_service"

	// TypeServiceRegistered / TypeServiceRemoved carry {"domain", "service"}.
	TypeServiceRegistered = "service_registered"
	TypeServiceRemoved    = "service_removed"

	// TypeComponentLoaded carries {"component"} once a collaborator
	// finishes wiring itself to the core.
	TypeComponentLoaded = "component_loaded"

	// Lifecycle events, in firing order across a hub's life.
	TypeHubStart      = "hub_start"
	TypeHubStarted    = "hub_started"
	TypeHubStop       = "hub_stop"
	TypeHubFinalWrite = "hub_final_write"
	TypeHubClose      = "hub_close"

	// TypeCoreConfigUpdated is fired when the persisted core configuration
	// (location, units, time zone) changes.
	TypeCoreConfigUpdated = "core_config_updated"

	// TypeTimeChanged is the hub heartbeat, fired every timer tick with
	// {"now"}. TypeTimerOutOfSync is fired alongside it with {"seconds"}
	// when a tick was observed more than one full period late.
	TypeTimeChanged    = "time_changed"
	TypeTimerOutOfSync = "timer_out_of_sync"
)

// MatchAll subscribes a listener to every event type except TypeHubClose,
// which is delivered only to explicit subscribers so cleanup code cannot
// be intercepted by generic logging or forwarding listeners.
const MatchAll = "*"

// Origin describes where an event originated.
type Origin string

const (
	// OriginLocal marks events produced inside this process.
	OriginLocal Origin = "local"

	// OriginRemote marks events injected by an external surface
	// (MQTT bridge, HTTP API) on behalf of a remote caller.
	OriginRemote Origin = "remote"
)

// Event is an immutable record of something that happened. Events are
// constructed by Bus.Fire, handed to listeners, and never retained by the
// bus afterwards. Listeners must treat Data as read-only.
type Event struct {
	Type      string
	Data      map[string]any
	Origin    Origin
	TimeFired time.Time
	Context   Context
}

// Map returns a serialisable representation of the event, used by the
// HTTP and MQTT surfaces.
func (e *Event) Map() map[string]any {
	return map[string]any{
		"event_type": e.Type,
		"data":       e.Data,
		"origin":     string(e.Origin),
		"time_fired": e.TimeFired.UTC().Format(time.RFC3339Nano),
		"context":    e.Context,
	}
}
