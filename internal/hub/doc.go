// Package hub is the lifecycle controller of Hearth Core.
//
// The Hub owns the three coordination primitives (the event bus, the
// entity state machine and the service registry) and the machinery that
// executes their work:
//
//   - a single dispatcher goroutine consuming an unbounded job queue
//     (inline-safe callbacks run on the dispatcher itself; task and
//     blocking jobs run on their own goroutines)
//   - a pending-task tracker so "wait until the hub is idle" has
//     something concrete to wait on
//   - the run-state machine
//     not_running → starting → running → stopping → final_write → stopped,
//     strictly forward, with staged shutdown draining under independent,
//     non-fatal deadlines
//   - the heartbeat timer firing time_changed every tick and
//     timer_out_of_sync when the process was starved
//
// # Usage
//
//	h := hub.New(hub.Options{Logger: log})
//	h.Services.Register("light", "turn_on", job.KindTask, handler, nil)
//	h.States.Set("light.kitchen", "on", nil)
//	code, err := h.Run(ctx) // blocks until Stop or ctx cancellation
//
// All deadlines are policy, configured through Options.Timeouts; the
// three-stage stop → final-write → close structure is fixed.
package hub
