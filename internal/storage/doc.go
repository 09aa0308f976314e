// Package storage is the hub's versioned key/document store.
//
// Components persist small JSON documents (core config, entity
// registries, helper state) under string keys. Every write bumps the
// document's version so consumers can detect format changes. Writes go
// through SQLite; SaveDelayed debounces bursts of updates into a single
// write, and Flush forces everything out during the final-write
// shutdown stage.
package storage
