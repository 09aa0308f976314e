// Package service is the registry of remote-controllable actions.
//
// A service is a handler registered under a domain and name
// (light.turn_on) with an execution kind and an optional data schema.
// Call fires call_service on the bus and hands the data to the
// handler through the shared dispatcher; a blocking call waits for
// the handler's answer up to a configured timeout, a plain call
// returns as soon as the work is queued.
package service
