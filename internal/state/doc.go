// Package state tracks the current state of every entity in the hub.
//
// An entity is addressed as "domain.object_id" (light.kitchen,
// sensor.porch_temp). The Machine holds exactly one State per entity
// and fires state_changed on every write and removal, with the old and
// new snapshots in the event data. Writing the same state again only
// refreshes last_updated; last_changed moves only when the state value
// itself changes.
package state
