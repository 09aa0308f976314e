// Package job classifies units of work for the hub's dispatcher.
//
// Every listener and service handler declares a Kind at registration:
// callbacks run inline on the dispatcher goroutine, tasks and blocking
// work get their own goroutine. The kind is a caller's promise about
// blocking behavior; the dispatcher never inspects the function.
package job
