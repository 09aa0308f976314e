package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hearthhq/hearth-core/internal/job"
	"github.com/hearthhq/hearth-core/internal/service"
)

// slowCallbackThreshold flags callbacks that block the dispatcher. A
// callback doing I/O starves every other listener, so anything slower
// than this is an integration bug worth surfacing.
const slowCallbackThreshold = 100 * time.Millisecond

// task is the unit the dispatcher works on. It carries the job, a
// per-task context, and completion state, and doubles as the handle
// returned to blocking callers.
type task struct {
	job      job.Job
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	err      error
	tracked  bool
	observed bool
}

func (t *task) Done() <-chan struct{} { return t.done }

// Err is valid once Done is closed.
func (t *task) Err() error { return t.err }

// Cancel signals the task's context. The task decides whether to honour
// it; completion is still reported through Done.
func (t *task) Cancel() { t.cancel() }

// jobQueue is an unbounded FIFO. Pushing never blocks; pop blocks until
// an item arrives or the queue is closed and empty.
type jobQueue struct {
	mu     sync.Mutex
	items  []*task
	wake   chan struct{}
	closed bool
}

func newJobQueue() *jobQueue {
	return &jobQueue{wake: make(chan struct{}, 1)}
}

// push appends t and reports whether the queue accepted it.
func (q *jobQueue) push(t *task) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, t)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// pop returns the next task, blocking as needed. ok is false once the
// queue is closed and drained.
func (q *jobQueue) pop() (t *task, ok bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			t = q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			q.mu.Unlock()
			return t, true
		}
		if q.closed {
			q.mu.Unlock()
			return nil, false
		}
		q.mu.Unlock()
		<-q.wake
	}
}

func (q *jobQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Submit schedules a job on the hub. Satisfies event.Scheduler.
func (h *Hub) Submit(j job.Job) {
	h.submit(j, false)
}

// SubmitHandle schedules a job and returns a handle the caller can wait
// on or cancel. Satisfies service.Scheduler.
func (h *Hub) SubmitHandle(j job.Job) service.TaskHandle {
	return h.submit(j, true)
}

// AddJob wraps job construction and submission for callers holding a
// bare function.
func (h *Hub) AddJob(name string, kind job.Kind, fn func(context.Context) error) error {
	j, err := job.New(name, kind, fn)
	if err != nil {
		return err
	}
	h.Submit(j)
	return nil
}

func (h *Hub) submit(j job.Job, observed bool) *task {
	ctx, cancel := context.WithCancel(h.baseCtx)
	t := &task{
		job:      j,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		observed: observed,
	}
	if h.tracking.Load() {
		t.tracked = true
		h.tracker.add(t)
	}
	if !h.queue.push(t) {
		t.err = ErrShuttingDown
		h.finish(t)
		h.logger.Warn("job submitted after shutdown", "job", j.Name())
	}
	return t
}

// dispatch is the hub's single dispatcher goroutine. Callbacks run
// inline so every listener registered as a callback observes events in
// scheduling order; task and blocking jobs get their own goroutine.
func (h *Hub) dispatch() {
	defer close(h.dispatchDone)
	for {
		t, ok := h.queue.pop()
		if !ok {
			return
		}
		if t.job.Kind() == job.KindCallback {
			h.runTask(t, true)
			continue
		}
		go h.runTask(t, false)
	}
}

func (h *Hub) runTask(t *task, inline bool) {
	defer func() {
		if r := recover(); r != nil {
			t.err = fmt.Errorf("hub: job %q panicked: %v", t.job.Name(), r)
			h.logger.Error("job panicked", "job", t.job.Name(), "panic", fmt.Sprint(r))
		}
		h.finish(t)
	}()

	started := time.Now()
	t.err = t.job.Run(t.ctx)
	if inline {
		if elapsed := time.Since(started); elapsed > slowCallbackThreshold {
			h.logger.Warn("callback blocked the dispatcher",
				"job", t.job.Name(), "elapsed", elapsed.String())
		}
	}
	if t.err != nil && !t.observed {
		if errors.Is(t.err, context.Canceled) {
			h.logger.Debug("job cancelled", "job", t.job.Name())
		} else {
			h.logger.Error("job failed", "job", t.job.Name(), "error", t.err.Error())
		}
	}
}

func (h *Hub) finish(t *task) {
	t.cancel()
	if t.tracked {
		h.tracker.remove(t)
	}
	close(t.done)
}
