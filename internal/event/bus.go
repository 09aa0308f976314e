package event

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hearthhq/hearth-core/internal/job"
)

// Errors returned by Listen / ListenOnce.
var (
	// ErrNilHandler is returned when registering a nil handler.
	ErrNilHandler = errors.New("event: nil handler")

	// ErrEmptyType is returned when registering for an empty event type.
	ErrEmptyType = errors.New("event: empty event type")
)

// Logger is the logging interface used by the Bus.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Scheduler executes listener jobs. The bus never invokes a listener on
// the firing goroutine itself; every matched listener is handed off here,
// so a listener can never re-enter Fire synchronously in a way that
// starves other listeners.
type Scheduler interface {
	Submit(j job.Job)
}

// Handler is the callback signature for event listeners.
//
// The event must be treated as read-only. Returned errors are logged at
// the scheduling boundary; they never propagate to the firing caller.
type Handler func(ctx context.Context, ev *Event) error

// registration is one listener subscription. Registering the same handler
// twice creates two independent registrations.
type registration struct {
	eventType string
	kind      job.Kind
	fn        Handler
	once      bool
	fired     atomic.Bool
}

// Bus is the registry of event listeners keyed by event type, with
// fire-and-forget dispatch.
//
// Within one Fire call, listeners are scheduled in registration order for
// the exact-type set, then the wildcard set. The scheduler's concurrency
// model governs actual execution order; the bus guarantees scheduling
// order only.
//
// All methods are safe for concurrent use.
type Bus struct {
	mu        sync.Mutex
	listeners map[string][]*registration
	sched     Scheduler
	logger    Logger
}

// NewBus creates a Bus that dispatches through sched.
func NewBus(sched Scheduler) *Bus {
	return &Bus{
		listeners: make(map[string][]*registration),
		sched:     sched,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the bus.
func (b *Bus) SetLogger(logger Logger) {
	b.logger = logger
}

// Listen registers a handler for an event type and returns an idempotent
// unsubscribe function. Use MatchAll to receive every event type except
// TypeHubClose.
func (b *Bus) Listen(eventType string, kind job.Kind, fn Handler) (func(), error) {
	return b.listen(eventType, kind, fn, false)
}

// ListenOnce registers a self-removing handler that is invoked at most
// once, even when multiple Fire calls for the same type are in flight
// concurrently. The one-shot guard is checked at dispatch time, not at
// removal time, because removal and an already-queued dispatch can race.
func (b *Bus) ListenOnce(eventType string, kind job.Kind, fn Handler) (func(), error) {
	return b.listen(eventType, kind, fn, true)
}

func (b *Bus) listen(eventType string, kind job.Kind, fn Handler, once bool) (func(), error) {
	if fn == nil {
		return nil, ErrNilHandler
	}
	if eventType == "" {
		return nil, ErrEmptyType
	}

	reg := &registration{eventType: eventType, kind: kind, fn: fn, once: once}

	b.mu.Lock()
	b.listeners[eventType] = append(b.listeners[eventType], reg)
	b.mu.Unlock()

	return func() { b.remove(reg) }, nil
}

// remove drops a registration. Removing a listener that is already gone
// is logged and ignored: unsubscribe functions are advisory and may be
// called after the owning component has torn down.
func (b *Bus) remove(reg *registration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	regs := b.listeners[reg.eventType]
	for i, r := range regs {
		if r == reg {
			b.listeners[reg.eventType] = append(regs[:i:i], regs[i+1:]...)
			if len(b.listeners[reg.eventType]) == 0 {
				delete(b.listeners, reg.eventType)
			}
			return
		}
	}
	b.logger.Debug("listener already removed", "event_type", reg.eventType)
}

// fireConfig holds per-fire overrides.
type fireConfig struct {
	origin    Origin
	ctx       Context
	hasCtx    bool
	timeFired time.Time
}

// FireOption customises a single Fire call.
type FireOption func(*fireConfig)

// WithOrigin marks the event as coming from the given origin.
func WithOrigin(o Origin) FireOption {
	return func(c *fireConfig) { c.origin = o }
}

// WithContext attaches an existing causality context instead of creating
// a fresh one.
func WithContext(ctx Context) FireOption {
	return func(c *fireConfig) { c.ctx = ctx; c.hasCtx = true }
}

// WithTimeFired overrides the event timestamp.
func WithTimeFired(t time.Time) FireOption {
	return func(c *fireConfig) { c.timeFired = t }
}

// Fire builds an immutable Event and schedules every matched listener.
//
// The listener set is listeners[eventType] plus listeners[MatchAll],
// except for TypeHubClose which bypasses wildcard listeners. Fire returns
// once all resulting work is scheduled; it never waits for execution.
func (b *Bus) Fire(eventType string, data map[string]any, opts ...FireOption) {
	cfg := fireConfig{origin: OriginLocal}
	for _, opt := range opts {
		opt(&cfg)
	}
	if !cfg.hasCtx {
		cfg.ctx = NewContext()
	}
	if cfg.timeFired.IsZero() {
		cfg.timeFired = time.Now().UTC()
	}

	b.mu.Lock()
	matched := make([]*registration, 0, len(b.listeners[eventType]))
	matched = append(matched, b.listeners[eventType]...)
	if eventType != TypeHubClose {
		matched = append(matched, b.listeners[MatchAll]...)
	}
	b.mu.Unlock()

	ev := &Event{
		Type:      eventType,
		Data:      data,
		Origin:    cfg.origin,
		TimeFired: cfg.timeFired,
		Context:   cfg.ctx,
	}

	for _, reg := range matched {
		b.dispatch(reg, ev)
	}
}

// dispatch wraps one registration into a job and hands it to the scheduler.
func (b *Bus) dispatch(reg *registration, ev *Event) {
	run := func(ctx context.Context) error {
		if reg.once {
			if !reg.fired.CompareAndSwap(false, true) {
				return nil
			}
			b.remove(reg)
		}
		return reg.fn(ctx, ev)
	}

	j, err := job.New("event:"+ev.Type, reg.kind, run)
	if err != nil {
		// Unreachable for a registered listener; kept as a guard.
		b.logger.Warn("dropping listener dispatch", "event_type", ev.Type, "error", err)
		return
	}
	b.sched.Submit(j)
}

// Listeners returns the number of registrations per event type.
func (b *Bus) Listeners() map[string]int {
	b.mu.Lock()
	defer b.mu.Unlock()

	counts := make(map[string]int, len(b.listeners))
	for eventType, regs := range b.listeners {
		counts[eventType] = len(regs)
	}
	return counts
}
