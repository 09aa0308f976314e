package job

import (
	"context"
	"errors"
)

// Kind classifies how a unit of work may be executed by the dispatcher.
//
// The kind is declared once at construction and never re-inspected on the
// dispatch hot path. Callers pick the kind explicitly: there is no runtime
// introspection of the target function.
type Kind int

const (
	// KindBlocking marks work that may block (I/O, long computation).
	// Blocking jobs always run on their own goroutine, off the dispatch
	// path. This is the default: anything not explicitly declared safe
	// is presumed blocking.
	KindBlocking Kind = iota

	// KindTask marks cooperative work that yields promptly. Tasks run on
	// their own goroutine and are tracked for shutdown draining.
	KindTask

	// KindCallback marks work that is safe to invoke inline on the
	// dispatcher. Callbacks must never block or perform blocking I/O.
	KindCallback
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindCallback:
		return "callback"
	case KindTask:
		return "task"
	case KindBlocking:
		return "blocking"
	}
	return "unknown"
}

// Errors returned by New.
var (
	// ErrNilTarget is returned when a Job is constructed without a target.
	// A Job wraps a callable, not a result; there is nothing to schedule
	// for a nil function.
	ErrNilTarget = errors.New("job: nil target")

	// ErrInvalidKind is returned for a Kind outside the declared enum.
	ErrInvalidKind = errors.New("job: invalid kind")
)

// Job wraps a single unit of work together with its execution class.
//
// Jobs are immutable after construction and safe to share across
// goroutines. The zero Job is invalid; use New.
type Job struct {
	name string
	kind Kind
	run  func(context.Context) error
}

// New constructs a Job from a target function.
//
// The name is used only for logging and diagnostics. The kind must be one
// of the declared Kind constants; the target must be non-nil.
func New(name string, kind Kind, target func(context.Context) error) (Job, error) {
	if target == nil {
		return Job{}, ErrNilTarget
	}
	if kind != KindCallback && kind != KindTask && kind != KindBlocking {
		return Job{}, ErrInvalidKind
	}
	return Job{name: name, kind: kind, run: target}, nil
}

// Name returns the diagnostic name given at construction.
func (j Job) Name() string { return j.name }

// Kind returns the execution class given at construction.
func (j Job) Kind() Kind { return j.kind }

// Run invokes the wrapped target. It does not recover panics; the
// scheduler owns panic handling at its execution boundary.
func (j Job) Run(ctx context.Context) error {
	return j.run(ctx)
}

// Valid reports whether the Job wraps a target.
func (j Job) Valid() bool { return j.run != nil }
