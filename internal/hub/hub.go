package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hearthhq/hearth-core/internal/event"
	"github.com/hearthhq/hearth-core/internal/service"
	"github.com/hearthhq/hearth-core/internal/state"
)

var (
	// ErrAlreadyRunning is returned by Run and Start when the hub has
	// left the not_running state.
	ErrAlreadyRunning = errors.New("hub: already running")

	// ErrShuttingDown is reported by jobs submitted after shutdown
	// completed.
	ErrShuttingDown = errors.New("hub: shutting down")
)

// RunState is the hub's coarse lifecycle phase. Transitions only move
// forward; a stopped hub is not restartable.
type RunState string

const (
	StateNotRunning RunState = "not_running"
	StateStarting   RunState = "starting"
	StateRunning    RunState = "running"
	StateStopping   RunState = "stopping"
	StateFinalWrite RunState = "final_write"
	StateStopped    RunState = "stopped"
)

// Logger is the minimal logging interface used by the hub.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Timeouts collects every lifecycle deadline. All are policy: a zero
// value means the default, and an expired deadline logs and moves on
// rather than aborting work.
type Timeouts struct {
	// Startup bounds the drain of tasks scheduled by hub_start
	// listeners before the hub declares itself running.
	Startup time.Duration

	// StageStop, StageFinalWrite and StageClose bound the three
	// shutdown drain stages independently.
	StageStop       time.Duration
	StageFinalWrite time.Duration
	StageClose      time.Duration

	// TickInterval is the heartbeat period for time_changed events.
	TickInterval time.Duration
}

func (t *Timeouts) applyDefaults() {
	if t.Startup <= 0 {
		t.Startup = 15 * time.Second
	}
	if t.StageStop <= 0 {
		t.StageStop = 120 * time.Second
	}
	if t.StageFinalWrite <= 0 {
		t.StageFinalWrite = 60 * time.Second
	}
	if t.StageClose <= 0 {
		t.StageClose = 30 * time.Second
	}
	if t.TickInterval <= 0 {
		t.TickInterval = time.Second
	}
}

// Options configures a Hub. The zero value is usable.
type Options struct {
	Timeouts Timeouts
	Service  service.Config
	Logger   Logger
}

// Hub wires the bus, state machine and service registry to a shared
// dispatcher and drives the staged lifecycle around them.
type Hub struct {
	Bus      *event.Bus
	States   *state.Machine
	Services *service.Registry

	logger   Logger
	timeouts Timeouts

	mu       sync.Mutex
	runState RunState
	exit     int
	config   CoreConfig
	store    Store

	queue    *jobQueue
	tracker  *tracker
	tracking atomic.Bool

	baseCtx    context.Context
	baseCancel context.CancelFunc

	stopDone     chan struct{}
	dispatchDone chan struct{}
}

// New builds a Hub and starts its dispatcher. The hub is idle until Run
// or Start is called, but jobs submitted before that already execute.
func New(opts Options) *Hub {
	opts.Timeouts.applyDefaults()
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}

	baseCtx, baseCancel := context.WithCancel(context.Background())
	h := &Hub{
		logger:       opts.Logger,
		timeouts:     opts.Timeouts,
		runState:     StateNotRunning,
		config:       defaultCoreConfig(),
		queue:        newJobQueue(),
		tracker:      newTracker(),
		baseCtx:      baseCtx,
		baseCancel:   baseCancel,
		stopDone:     make(chan struct{}),
		dispatchDone: make(chan struct{}),
	}
	h.tracking.Store(true)

	h.Bus = event.NewBus(h)
	h.States = state.NewMachine(h.Bus)
	h.Services = service.NewRegistry(h.Bus, h, opts.Service)

	go h.dispatch()
	return h
}

// SetLogger replaces the hub's logger and pushes it down to the bus,
// state machine and registry.
func (h *Hub) SetLogger(l Logger) {
	if l == nil {
		return
	}
	h.logger = l
	h.Bus.SetLogger(l)
	h.States.SetLogger(l)
	h.Services.SetLogger(l)
}

// State reports the current lifecycle phase.
func (h *Hub) State() RunState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.runState
}

// IsRunning reports whether the hub is between start completion and the
// beginning of shutdown.
func (h *Hub) IsRunning() bool {
	return h.State() == StateRunning
}

// PendingTasks reports how many tracked tasks are in flight.
func (h *Hub) PendingTasks() int {
	return h.tracker.count()
}

// Run starts the hub and blocks until Stop is called or ctx is
// cancelled, returning the exit code handed to Stop.
func (h *Hub) Run(ctx context.Context) (int, error) {
	if err := h.Start(ctx); err != nil {
		return 1, err
	}

	select {
	case <-ctx.Done():
		h.Stop(0, false)
	case <-h.stopDone:
	}
	<-h.stopDone

	h.mu.Lock()
	code := h.exit
	h.mu.Unlock()
	return code, nil
}

// Start drives the hub from not_running to running: it fires the start
// events, drains work scheduled by start listeners under a non-fatal
// deadline, then declares the hub running. It returns once the hub is
// running (or startup was interrupted by an early Stop).
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.runState != StateNotRunning {
		st := h.runState
		h.mu.Unlock()
		return fmt.Errorf("%w (state %s)", ErrAlreadyRunning, st)
	}
	h.runState = StateStarting
	h.mu.Unlock()

	h.logger.Info("hub starting")
	h.Bus.Fire(event.TypeCoreConfigUpdated, h.coreConfigPayload())
	h.Bus.Fire(event.TypeHubStart, nil)

	// Start listeners get one bounded window to finish their setup
	// tasks. Tracking is off while we wait so a task that schedules
	// more tasks cannot extend the window indefinitely.
	h.tracking.Store(false)
	drainCtx, cancel := context.WithTimeout(ctx, h.timeouts.Startup)
	if err := h.tracker.wait(drainCtx); err != nil {
		h.logger.Warn("startup tasks still pending, continuing anyway",
			"pending", h.tracker.count(), "timeout", h.timeouts.Startup.String())
	}
	cancel()
	h.tracking.Store(true)

	h.mu.Lock()
	if h.runState != StateStarting {
		st := h.runState
		h.mu.Unlock()
		h.logger.Warn("hub was stopped during startup, never reached running",
			"state", string(st))
		return nil
	}
	h.runState = StateRunning
	h.mu.Unlock()

	h.Bus.Fire(event.TypeCoreConfigUpdated, h.coreConfigPayload())
	h.Bus.Fire(event.TypeHubStarted, nil)
	h.startTimer()
	h.logger.Info("hub running")
	return nil
}

// Stop drives the staged shutdown: hub_stop, hub_final_write and
// hub_close each fire and drain under their own deadline, after which
// remaining tasks are abandoned and the hub is stopped. Calling Stop on
// a hub that never started, or is already stopping, is a no-op unless
// force is set. exitCode is surfaced through Run.
func (h *Hub) Stop(exitCode int, force bool) {
	h.mu.Lock()
	switch h.runState {
	case StateNotRunning:
		if !force {
			h.mu.Unlock()
			return
		}
	case StateStopping, StateFinalWrite, StateStopped:
		// A second stop, forced or not, must never rerun the sequence.
		st := h.runState
		h.mu.Unlock()
		h.logger.Warn("stop requested while already stopping", "state", string(st))
		return
	case StateStarting:
		if !force {
			h.logger.Warn("stop requested before startup finished")
		}
	}
	h.runState = StateStopping
	h.exit = exitCode
	h.mu.Unlock()

	h.logger.Info("hub stopping", "exit_code", exitCode)
	h.tracking.Store(true)

	h.Bus.Fire(event.TypeHubStop, nil)
	h.drainStage("stop", h.timeouts.StageStop)

	h.setRunState(StateFinalWrite)
	h.Bus.Fire(event.TypeHubFinalWrite, nil)
	h.drainStage("final_write", h.timeouts.StageFinalWrite)

	h.Bus.Fire(event.TypeHubClose, nil)
	h.drainStage("close", h.timeouts.StageClose)

	h.tracker.clear()
	h.setRunState(StateStopped)
	h.queue.close()
	h.logger.Info("hub stopped", "exit_code", exitCode)
	close(h.stopDone)
}

func (h *Hub) setRunState(st RunState) {
	h.mu.Lock()
	h.runState = st
	h.mu.Unlock()
}

// drainStage waits for pending tasks with a stage-local deadline. A
// timeout logs the laggards and proceeds; the tasks themselves are not
// cancelled.
func (h *Hub) drainStage(stage string, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := h.tracker.wait(ctx); err != nil {
		h.logger.Warn("shutdown stage timed out, proceeding",
			"stage", stage, "pending", h.tracker.count(), "timeout", timeout.String())
	}
}
