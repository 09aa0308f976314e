package state

import (
	"errors"
	"sync"
	"testing"

	"github.com/hearthhq/hearth-core/internal/event"
)

// recordingBus captures fired events synchronously for assertions.
type recordingBus struct {
	mu     sync.Mutex
	events []firedEvent
}

type firedEvent struct {
	eventType string
	data      map[string]any
}

func (b *recordingBus) Fire(eventType string, data map[string]any, _ ...event.FireOption) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, firedEvent{eventType, data})
}

func (b *recordingBus) count(eventType string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.events {
		if e.eventType == eventType {
			n++
		}
	}
	return n
}

func (b *recordingBus) last() *firedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.events) == 0 {
		return nil
	}
	return &b.events[len(b.events)-1]
}

func TestMachine_Set(t *testing.T) {
	t.Run("normalizes entity id to lowercase", func(t *testing.T) {
		bus := &recordingBus{}
		m := NewMachine(bus)

		s, err := m.Set("Light.Kitchen", "on", nil)
		if err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		if s.EntityID != "light.kitchen" {
			t.Errorf("EntityID = %q, want light.kitchen", s.EntityID)
		}
		if m.Get("LIGHT.KITCHEN") == nil {
			t.Error("Get with mixed case did not find the entity")
		}
	})

	t.Run("rejects invalid entity id", func(t *testing.T) {
		bus := &recordingBus{}
		m := NewMachine(bus)
		if _, err := m.Set("light", "on", nil); !errors.Is(err, ErrInvalidEntityID) {
			t.Errorf("Set() error = %v, want ErrInvalidEntityID", err)
		}
		if _, err := m.Set("light.__bad__", "on", nil); !errors.Is(err, ErrInvalidEntityID) {
			t.Errorf("Set() error = %v, want ErrInvalidEntityID", err)
		}
		if bus.count(event.TypeStateChanged) != 0 {
			t.Error("invalid set fired a state_changed event")
		}
	})

	t.Run("identical set is a no-op", func(t *testing.T) {
		bus := &recordingBus{}
		m := NewMachine(bus)

		m.Set("light.kitchen", "on", map[string]any{"brightness": 100})
		m.Set("light.kitchen", "on", map[string]any{"brightness": 100})

		if got := bus.count(event.TypeStateChanged); got != 1 {
			t.Errorf("state_changed fired %d times, want exactly 1", got)
		}
	})

	t.Run("forced update always fires", func(t *testing.T) {
		bus := &recordingBus{}
		m := NewMachine(bus)

		m.Set("light.kitchen", "on", map[string]any{}, ForceUpdate())
		m.Set("light.kitchen", "on", map[string]any{}, ForceUpdate())

		if got := bus.count(event.TypeStateChanged); got != 2 {
			t.Errorf("state_changed fired %d times, want 2", got)
		}
	})

	t.Run("last_changed inherited when only attributes change", func(t *testing.T) {
		bus := &recordingBus{}
		m := NewMachine(bus)

		first, _ := m.Set("light.kitchen", "on", map[string]any{"brightness": 50})
		second, _ := m.Set("light.kitchen", "on", map[string]any{"brightness": 80})

		if !second.LastChanged.Equal(first.LastChanged) {
			t.Error("last_changed advanced without a state value change")
		}
		if second.LastUpdated.Before(first.LastUpdated) {
			t.Error("last_updated went backwards")
		}

		third, _ := m.Set("light.kitchen", "off", nil)
		if third.LastChanged.Equal(first.LastChanged) {
			t.Error("last_changed not advanced on state value change")
		}
	})

	t.Run("payload carries old and new snapshots", func(t *testing.T) {
		bus := &recordingBus{}
		m := NewMachine(bus)

		m.Set("light.kitchen", "on", nil)
		ev := bus.last()
		if ev.data["old_state"] != nil {
			t.Error("old_state should be nil when the entity just appeared")
		}
		if ev.data["new_state"].(*State).State != "on" {
			t.Error("new_state missing from payload")
		}

		m.Set("light.kitchen", "off", nil)
		ev = bus.last()
		if ev.data["old_state"].(*State).State != "on" {
			t.Error("old_state missing from payload")
		}
	})
}

func TestMachine_Reserve(t *testing.T) {
	bus := &recordingBus{}
	m := NewMachine(bus)

	if err := m.Reserve("light.x"); err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}
	if m.Available("light.x") {
		t.Error("Available() = true after reservation")
	}
	if err := m.Reserve("light.x"); !errors.Is(err, ErrEntityTaken) {
		t.Errorf("second Reserve() error = %v, want ErrEntityTaken", err)
	}
	if got := bus.count(event.TypeStateChanged); got != 0 {
		t.Error("reservation fired an event")
	}

	// Setting the state supersedes the reservation; the id stays claimed.
	if _, err := m.Set("light.x", "on", nil); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if m.Available("light.x") {
		t.Error("Available() = true after state set")
	}
	if err := m.Reserve("light.x"); !errors.Is(err, ErrEntityTaken) {
		t.Errorf("Reserve() after set error = %v, want ErrEntityTaken", err)
	}
}

func TestMachine_Remove(t *testing.T) {
	bus := &recordingBus{}
	m := NewMachine(bus)

	t.Run("removes state and fires disappearance", func(t *testing.T) {
		m.Set("light.kitchen", "on", nil)
		before := bus.count(event.TypeStateChanged)

		if !m.Remove("light.kitchen") {
			t.Error("Remove() = false, want true")
		}
		if m.Get("light.kitchen") != nil {
			t.Error("entity still present after Remove")
		}

		if bus.count(event.TypeStateChanged) != before+1 {
			t.Fatal("Remove did not fire state_changed")
		}
		if bus.last().data["new_state"] != nil {
			t.Error("new_state should be nil on removal")
		}
		if !m.Available("light.kitchen") {
			t.Error("entity id not available after removal")
		}
	})

	t.Run("removes bare reservation without event", func(t *testing.T) {
		m.Reserve("light.pending")
		before := bus.count(event.TypeStateChanged)

		if !m.Remove("light.pending") {
			t.Error("Remove() = false for a reserved id")
		}
		if bus.count(event.TypeStateChanged) != before {
			t.Error("removing a reservation fired an event")
		}
	})

	t.Run("returns false for unknown id", func(t *testing.T) {
		if m.Remove("light.ghost") {
			t.Error("Remove() = true for an unknown id")
		}
	})
}

func TestMachine_Queries(t *testing.T) {
	bus := &recordingBus{}
	m := NewMachine(bus)
	m.Set("light.kitchen", "on", nil)
	m.Set("light.hall", "off", nil)
	m.Set("sensor.temp", "21.5", nil)

	t.Run("All sorted", func(t *testing.T) {
		all := m.All()
		if len(all) != 3 {
			t.Fatalf("All() returned %d states, want 3", len(all))
		}
		if all[0].EntityID != "light.hall" || all[2].EntityID != "sensor.temp" {
			t.Errorf("All() not sorted: %v", m.EntityIDs())
		}
	})

	t.Run("domain filter is case-insensitive", func(t *testing.T) {
		ids := m.EntityIDs("LIGHT")
		if len(ids) != 2 {
			t.Errorf("EntityIDs(LIGHT) = %v, want two light entities", ids)
		}
	})

	t.Run("multiple domains", func(t *testing.T) {
		ids := m.EntityIDs("light", "sensor")
		if len(ids) != 3 {
			t.Errorf("EntityIDs(light, sensor) = %v, want 3", ids)
		}
	})

	t.Run("IsState", func(t *testing.T) {
		if !m.IsState("sensor.temp", "21.5") {
			t.Error("IsState() = false for matching state")
		}
		if m.IsState("sensor.temp", "30") || m.IsState("sensor.ghost", "x") {
			t.Error("IsState() = true for non-matching or absent entity")
		}
	})

	if m.Len() != 3 {
		t.Errorf("Len() = %d, want 3", m.Len())
	}
}

func TestMachine_ConcurrentSet(t *testing.T) {
	bus := &recordingBus{}
	m := NewMachine(bus)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if n%2 == 0 {
				m.Set("light.kitchen", "on", nil)
			} else {
				m.Set("light.kitchen", "off", nil)
			}
		}(i)
	}
	wg.Wait()

	s := m.Get("light.kitchen")
	if s == nil || (s.State != "on" && s.State != "off") {
		t.Fatalf("final state = %+v", s)
	}
}
