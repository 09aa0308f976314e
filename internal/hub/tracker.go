package hub

import (
	"context"
	"sync"
)

// tracker holds the set of in-flight tracked tasks and exposes a
// wait-until-empty primitive. The drained channel is closed while the
// pending set is empty and replaced when it becomes non-empty again, so
// waiters observe "was empty at some instant" rather than a count.
type tracker struct {
	mu      sync.Mutex
	pending map[*task]struct{}
	drained chan struct{}
}

func newTracker() *tracker {
	drained := make(chan struct{})
	close(drained)
	return &tracker{
		pending: make(map[*task]struct{}),
		drained: drained,
	}
}

func (tr *tracker) add(t *task) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if len(tr.pending) == 0 {
		tr.drained = make(chan struct{})
	}
	tr.pending[t] = struct{}{}
}

func (tr *tracker) remove(t *task) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if _, ok := tr.pending[t]; !ok {
		return
	}
	delete(tr.pending, t)
	if len(tr.pending) == 0 {
		close(tr.drained)
	}
}

// wait blocks until the pending set is empty or ctx expires. A deadline
// never aborts the underlying tasks; they stay pending.
func (tr *tracker) wait(ctx context.Context) error {
	tr.mu.Lock()
	ch := tr.drained
	tr.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// clear abandons every pending task: they keep running but the tracker
// forgets them, so waiters are released immediately.
func (tr *tracker) clear() {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if len(tr.pending) == 0 {
		return
	}
	tr.pending = make(map[*task]struct{})
	close(tr.drained)
}

func (tr *tracker) count() int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return len(tr.pending)
}
