package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hearthhq/hearth-core/internal/event"
	"github.com/hearthhq/hearth-core/internal/job"
)

// Default policy values; see Config.
const (
	defaultCallTimeout = 10 * time.Second
	defaultCancelGrace = 5 * time.Second
)

// Firer is the slice of the event bus the registry needs.
type Firer interface {
	Fire(eventType string, data map[string]any, opts ...event.FireOption)
}

// TaskHandle observes one scheduled job: completion, result, and a
// cancellation request.
type TaskHandle interface {
	// Done is closed when the job has finished (or was cancelled).
	Done() <-chan struct{}
	// Err returns the job's error once Done is closed.
	Err() error
	// Cancel requests cancellation of the job's context.
	Cancel()
}

// Scheduler executes service jobs. Submit is fire-and-forget;
// SubmitHandle returns an observable handle for blocking calls.
type Scheduler interface {
	Submit(j job.Job)
	SubmitHandle(j job.Job) TaskHandle
}

// Logger is the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config holds registry policy.
type Config struct {
	// DefaultCallTimeout bounds how long a blocking Call waits for the
	// handler before giving up on a synchronous answer. The handler
	// itself is never killed by this deadline. Default: 10s.
	DefaultCallTimeout time.Duration

	// CancelGrace is how long a cancelled blocking Call waits for the
	// handler to unwind after requesting cancellation. Default: 5s.
	CancelGrace time.Duration

	// StrictValidation rejects calls whose data fails the registered
	// schema. When false (the default), validation failures are logged
	// and the call proceeds with the raw data.
	StrictValidation bool
}

// Registry maps (domain, service) to executable services and owns the
// call path: audit event, schema validation, scheduled execution with
// optional blocking wait.
//
// All methods are safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	services map[string]map[string]*Service

	bus    Firer
	sched  Scheduler
	cfg    Config
	logger Logger
}

// NewRegistry creates an empty Registry. Zero Config fields take the
// package defaults.
func NewRegistry(bus Firer, sched Scheduler, cfg Config) *Registry {
	if cfg.DefaultCallTimeout <= 0 {
		cfg.DefaultCallTimeout = defaultCallTimeout
	}
	if cfg.CancelGrace <= 0 {
		cfg.CancelGrace = defaultCancelGrace
	}
	return &Registry{
		services: make(map[string]map[string]*Service),
		bus:      bus,
		sched:    sched,
		cfg:      cfg,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Register stores a service handler under (domain, service), both
// lower-cased, and fires service_registered. Re-registering replaces the
// previous handler.
func (r *Registry) Register(domain, svc string, kind job.Kind, fn HandlerFunc, schema Schema) error {
	if fn == nil {
		return ErrNilHandler
	}
	domain = strings.ToLower(strings.TrimSpace(domain))
	svc = strings.ToLower(strings.TrimSpace(svc))
	if domain == "" || svc == "" {
		return fmt.Errorf("%w: domain and service are required", ErrInvalidCall)
	}

	r.mu.Lock()
	if r.services[domain] == nil {
		r.services[domain] = make(map[string]*Service)
	}
	r.services[domain][svc] = &Service{Domain: domain, Name: svc, kind: kind, fn: fn, schema: schema}
	r.mu.Unlock()

	r.bus.Fire(event.TypeServiceRegistered, map[string]any{
		"domain":  domain,
		"service": svc,
	})
	return nil
}

// Remove drops a registered service and fires service_removed. Removing
// an unknown service is logged and ignored: like listener unsubscribe,
// removal is advisory.
func (r *Registry) Remove(domain, svc string) {
	domain = strings.ToLower(domain)
	svc = strings.ToLower(svc)

	r.mu.Lock()
	_, ok := r.services[domain][svc]
	if ok {
		delete(r.services[domain], svc)
		if len(r.services[domain]) == 0 {
			delete(r.services, domain)
		}
	}
	r.mu.Unlock()

	if !ok {
		r.logger.Warn("removing unknown service", "domain", domain, "service", svc)
		return
	}

	r.bus.Fire(event.TypeServiceRemoved, map[string]any{
		"domain":  domain,
		"service": svc,
	})
}

// Has reports whether (domain, service) is registered.
func (r *Registry) Has(domain, svc string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.services[strings.ToLower(domain)][strings.ToLower(svc)]
	return ok
}

// Services returns the registered service names per domain, sorted.
func (r *Registry) Services() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string][]string, len(r.services))
	for domain, svcs := range r.services {
		names := make([]string, 0, len(svcs))
		for name := range svcs {
			names = append(names, name)
		}
		slices.Sort(names)
		out[domain] = names
	}
	return out
}

// callConfig holds per-Call overrides.
type callConfig struct {
	blocking bool
	timeout  time.Duration
	ctx      event.Context
	hasCtx   bool
	origin   event.Origin
}

// CallOption customises a single Call.
type CallOption func(*callConfig)

// Blocking makes Call wait for the handler, up to the call timeout.
func Blocking() CallOption {
	return func(c *callConfig) { c.blocking = true }
}

// WithTimeout overrides the default blocking-call timeout.
func WithTimeout(d time.Duration) CallOption {
	return func(c *callConfig) { c.timeout = d }
}

// WithContext attributes the call to an existing causality context.
func WithContext(ctx event.Context) CallOption {
	return func(c *callConfig) { c.ctx = ctx; c.hasCtx = true }
}

// WithOrigin marks the call_service event as coming from the given
// origin. External surfaces (HTTP, MQTT) pass event.OriginRemote.
func WithOrigin(o event.Origin) CallOption {
	return func(c *callConfig) { c.origin = o }
}

// Call invokes a registered service.
//
// The call_service audit event fires after the existence check and before
// execution, so attempted calls appear in the audit trail even when the
// handler later fails; calls to never-registered services do not.
//
// Fire-and-forget (the default): the handler is scheduled in the
// background, failures are logged, and Call returns (false, nil)
// immediately.
//
// Blocking: Call waits up to the timeout. Completion returns true (with
// the handler's error, if any). A deadline returns (false, nil) and the
// handler keeps running in the background; "did not complete in time" is
// distinct from "failed". Cancellation of ctx requests cancellation of
// the handler, waits a bounded grace period for it to unwind, then
// propagates ctx.Err().
func (r *Registry) Call(ctx context.Context, domain, svc string, data map[string]any, opts ...CallOption) (bool, error) {
	cfg := callConfig{timeout: r.cfg.DefaultCallTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}

	domain = strings.ToLower(strings.TrimSpace(domain))
	svc = strings.ToLower(strings.TrimSpace(svc))

	r.mu.RLock()
	s := r.services[domain][svc]
	r.mu.RUnlock()
	if s == nil {
		return false, fmt.Errorf("%w: %s.%s", ErrNotFound, domain, svc)
	}

	if data == nil {
		data = map[string]any{}
	}
	if s.schema != nil {
		validated, err := s.schema.Validate(data)
		switch {
		case err != nil && r.cfg.StrictValidation:
			return false, fmt.Errorf("%w: %s.%s: %w", ErrInvalidCall, domain, svc, err)
		case err != nil:
			// Lenient mode: a bad schema must not crash the call path,
			// but the failure stays visible in the log.
			r.logger.Warn("service data failed validation, proceeding with raw data",
				"domain", domain, "service", svc, "error", err)
		default:
			data = validated
		}
	}

	if !cfg.hasCtx {
		cfg.ctx = event.NewContext()
	}

	fireOpts := []event.FireOption{event.WithContext(cfg.ctx)}
	if cfg.origin != "" {
		fireOpts = append(fireOpts, event.WithOrigin(cfg.origin))
	}
	r.bus.Fire(event.TypeCallService, map[string]any{
		"domain":       domain,
		"service":      svc,
		"service_data": data,
	}, fireOpts...)

	call := Call{Domain: domain, Service: svc, Data: data, Context: cfg.ctx}
	name := "service:" + domain + "." + svc

	if !cfg.blocking {
		j, err := job.New(name, s.kind, func(jobCtx context.Context) error {
			if runErr := s.fn(jobCtx, call); runErr != nil {
				r.logBackgroundFailure(domain, svc, runErr)
			}
			return nil
		})
		if err != nil {
			return false, err
		}
		r.sched.Submit(j)
		return false, nil
	}

	j, err := job.New(name, s.kind, func(jobCtx context.Context) error {
		return s.fn(jobCtx, call)
	})
	if err != nil {
		return false, err
	}

	handle := r.sched.SubmitHandle(j)
	timer := time.NewTimer(cfg.timeout)
	defer timer.Stop()

	select {
	case <-handle.Done():
		if runErr := handle.Err(); runErr != nil {
			return false, runErr
		}
		return true, nil

	case <-timer.C:
		// The handler is not killed: the deadline only governs whether
		// this caller gets a synchronous answer.
		r.logger.Debug("blocking service call timed out, handler continues",
			"domain", domain, "service", svc, "timeout", cfg.timeout)
		return false, nil

	case <-ctx.Done():
		handle.Cancel()
		grace := time.NewTimer(r.cfg.CancelGrace)
		defer grace.Stop()
		select {
		case <-handle.Done():
		case <-grace.C:
			r.logger.Warn("service handler did not unwind within cancel grace",
				"domain", domain, "service", svc, "grace", r.cfg.CancelGrace)
		}
		return false, ctx.Err()
	}
}

// logBackgroundFailure logs a fire-and-forget handler failure.
// Authorization failures and cancellations are quieter: they are
// expected outcomes, not unexpected exceptions.
func (r *Registry) logBackgroundFailure(domain, svc string, err error) {
	if errors.Is(err, ErrUnauthorized) || errors.Is(err, context.Canceled) {
		r.logger.Debug("background service call ended early",
			"domain", domain, "service", svc, "error", err)
		return
	}
	r.logger.Error("background service call failed",
		"domain", domain, "service", svc, "error", err)
}
