package event

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hearthhq/hearth-core/internal/job"
)

// inlineScheduler runs every job synchronously. Good enough for bus tests,
// which only assert scheduling order and listener selection.
type inlineScheduler struct{}

func (inlineScheduler) Submit(j job.Job) {
	_ = j.Run(context.Background())
}

func newTestBus() *Bus {
	return NewBus(inlineScheduler{})
}

func TestBus_Listen(t *testing.T) {
	t.Run("rejects nil handler", func(t *testing.T) {
		b := newTestBus()
		if _, err := b.Listen("test", job.KindCallback, nil); err != ErrNilHandler {
			t.Errorf("Listen() error = %v, want ErrNilHandler", err)
		}
	})

	t.Run("rejects empty type", func(t *testing.T) {
		b := newTestBus()
		fn := func(context.Context, *Event) error { return nil }
		if _, err := b.Listen("", job.KindCallback, fn); err != ErrEmptyType {
			t.Errorf("Listen() error = %v, want ErrEmptyType", err)
		}
	})

	t.Run("same handler twice creates two registrations", func(t *testing.T) {
		b := newTestBus()
		calls := 0
		fn := func(context.Context, *Event) error { calls++; return nil }

		unsub1, _ := b.Listen("test", job.KindCallback, fn)
		unsub2, _ := b.Listen("test", job.KindCallback, fn)

		b.Fire("test", nil)
		if calls != 2 {
			t.Fatalf("calls = %d, want 2", calls)
		}

		unsub1()
		b.Fire("test", nil)
		if calls != 3 {
			t.Fatalf("calls after one unsubscribe = %d, want 3", calls)
		}

		unsub2()
		b.Fire("test", nil)
		if calls != 3 {
			t.Fatalf("calls after both unsubscribed = %d, want 3", calls)
		}
	})

	t.Run("unsubscribe is idempotent", func(t *testing.T) {
		b := newTestBus()
		fn := func(context.Context, *Event) error { return nil }
		unsub, _ := b.Listen("test", job.KindCallback, fn)
		unsub()
		unsub() // must not panic
	})
}

func TestBus_Fire(t *testing.T) {
	t.Run("builds immutable event with defaults", func(t *testing.T) {
		b := newTestBus()
		var got *Event
		b.Listen("test", job.KindCallback, func(_ context.Context, ev *Event) error {
			got = ev
			return nil
		})

		before := time.Now().UTC()
		b.Fire("test", map[string]any{"k": "v"})

		if got == nil {
			t.Fatal("listener not invoked")
		}
		if got.Type != "test" || got.Origin != OriginLocal {
			t.Errorf("event = %+v", got)
		}
		if got.Context.ID == "" {
			t.Error("context ID not generated")
		}
		if got.TimeFired.Before(before) {
			t.Error("time_fired not set to now")
		}
		if got.Data["k"] != "v" {
			t.Errorf("data = %v", got.Data)
		}
	})

	t.Run("honours fire options", func(t *testing.T) {
		b := newTestBus()
		var got *Event
		b.Listen("test", job.KindCallback, func(_ context.Context, ev *Event) error {
			got = ev
			return nil
		})

		ctx := UserContext("user-1")
		fired := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		b.Fire("test", nil, WithOrigin(OriginRemote), WithContext(ctx), WithTimeFired(fired))

		if got.Origin != OriginRemote {
			t.Errorf("origin = %v, want remote", got.Origin)
		}
		if got.Context != ctx {
			t.Errorf("context = %+v, want %+v", got.Context, ctx)
		}
		if !got.TimeFired.Equal(fired) {
			t.Errorf("time_fired = %v, want %v", got.TimeFired, fired)
		}
	})

	t.Run("schedules in registration order, wildcard after exact", func(t *testing.T) {
		b := newTestBus()
		var order []string
		mk := func(name string) Handler {
			return func(context.Context, *Event) error {
				order = append(order, name)
				return nil
			}
		}
		b.Listen(MatchAll, job.KindCallback, mk("wild"))
		b.Listen("test", job.KindCallback, mk("first"))
		b.Listen("test", job.KindCallback, mk("second"))

		b.Fire("test", nil)

		want := []string{"first", "second", "wild"}
		if len(order) != len(want) {
			t.Fatalf("order = %v, want %v", order, want)
		}
		for i := range want {
			if order[i] != want[i] {
				t.Fatalf("order = %v, want %v", order, want)
			}
		}
	})

	t.Run("hub_close bypasses wildcard listeners", func(t *testing.T) {
		b := newTestBus()
		var wildcard, explicit []string
		b.Listen(MatchAll, job.KindCallback, func(_ context.Context, ev *Event) error {
			wildcard = append(wildcard, ev.Type)
			return nil
		})
		b.Listen(TypeHubClose, job.KindCallback, func(_ context.Context, ev *Event) error {
			explicit = append(explicit, ev.Type)
			return nil
		})

		b.Fire(TypeStateChanged, nil)
		b.Fire(TypeCallService, nil)
		b.Fire(TypeHubClose, nil)

		if len(wildcard) != 2 {
			t.Errorf("wildcard received %v, want only state_changed and call_service", wildcard)
		}
		if len(explicit) != 1 || explicit[0] != TypeHubClose {
			t.Errorf("explicit close listener received %v", explicit)
		}
	})
}

func TestBus_ListenOnce(t *testing.T) {
	t.Run("fires exactly once under concurrent fires", func(t *testing.T) {
		// A scheduler that queues jobs so multiple fires can be in flight
		// before any listener runs, mimicking the dispatch race the
		// one-shot guard exists for.
		var pending []job.Job
		var mu sync.Mutex
		queued := schedulerFunc(func(j job.Job) {
			mu.Lock()
			pending = append(pending, j)
			mu.Unlock()
		})

		b := NewBus(queued)
		calls := 0
		b.ListenOnce("test", job.KindCallback, func(context.Context, *Event) error {
			calls++
			return nil
		})

		// Three fires in flight before dispatch runs.
		b.Fire("test", nil)
		b.Fire("test", nil)
		b.Fire("test", nil)

		var wg sync.WaitGroup
		for _, j := range pending {
			wg.Add(1)
			go func(j job.Job) {
				defer wg.Done()
				_ = j.Run(context.Background())
			}(j)
		}
		wg.Wait()

		if calls != 1 {
			t.Errorf("calls = %d, want exactly 1", calls)
		}
		if n := b.Listeners()["test"]; n != 0 {
			t.Errorf("listener count after once = %d, want 0", n)
		}
	})
}

type schedulerFunc func(j job.Job)

func (f schedulerFunc) Submit(j job.Job) { f(j) }

func TestBus_Listeners(t *testing.T) {
	b := newTestBus()
	fn := func(context.Context, *Event) error { return nil }
	b.Listen("a", job.KindCallback, fn)
	b.Listen("a", job.KindCallback, fn)
	b.Listen("b", job.KindTask, fn)

	counts := b.Listeners()
	if counts["a"] != 2 || counts["b"] != 1 {
		t.Errorf("Listeners() = %v", counts)
	}
}
