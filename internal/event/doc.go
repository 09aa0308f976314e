// Package event is the hub's publish/subscribe backbone.
//
// Everything observable in the hub happens as an Event on the Bus:
// state changes, service calls, lifecycle transitions, the heartbeat.
// Listeners subscribe to one event type or to MatchAll ("*"), which
// receives everything except hub_close so late listeners cannot stall
// the final shutdown stage.
//
// Each event carries a Context (event ID chain plus optional user ID)
// so any effect can be traced back to the action that caused it.
// Firing is fire-and-forget: the Fire call enqueues listener jobs on
// the shared dispatcher and returns without waiting for them.
package event
