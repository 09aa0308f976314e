package history

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hearthhq/hearth-core/internal/event"
	"github.com/hearthhq/hearth-core/internal/job"
	"github.com/hearthhq/hearth-core/internal/state"
)

type inlineScheduler struct{}

func (inlineScheduler) Submit(j job.Job) { _ = j.Run(context.Background()) }

type capturedPoint struct {
	measurement string
	tags        map[string]string
	fields      map[string]interface{}
	timestamp   time.Time
}

type mockWriter struct {
	mu     sync.Mutex
	points []capturedPoint
}

func (w *mockWriter) WritePointWithTime(m string, tags map[string]string, fields map[string]interface{}, ts time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.points = append(w.points, capturedPoint{m, tags, fields, ts})
}

func (w *mockWriter) captured() []capturedPoint {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]capturedPoint, len(w.points))
	copy(out, w.points)
	return out
}

func mustState(t *testing.T, entityID, st string, attrs map[string]any, ts time.Time) *state.State {
	t.Helper()
	s, err := state.New(entityID, st, attrs, ts, ts, event.NewContext())
	if err != nil {
		t.Fatalf("state.New: %v", err)
	}
	return s
}

func TestRecorderWritesStateChanges(t *testing.T) {
	bus := event.NewBus(inlineScheduler{})
	writer := &mockWriter{}
	rec := NewRecorder(writer, nil)
	if err := rec.Start(bus); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	ts := time.Date(2026, 8, 10, 9, 30, 0, 0, time.UTC)
	newState := mustState(t, "sensor.hallway_temp", "21.5",
		map[string]any{"battery": 87, "friendly_name": "Hallway"}, ts)

	bus.Fire(event.TypeStateChanged, map[string]any{
		"entity_id": "sensor.hallway_temp",
		"old_state": nil,
		"new_state": newState,
	})

	points := writer.captured()
	if len(points) != 1 {
		t.Fatalf("wrote %d points, want 1", len(points))
	}
	p := points[0]
	if p.measurement != "entity_state" {
		t.Errorf("measurement = %q", p.measurement)
	}
	if p.tags["entity_id"] != "sensor.hallway_temp" || p.tags["domain"] != "sensor" {
		t.Errorf("tags = %v", p.tags)
	}
	if p.fields["state"] != "21.5" {
		t.Errorf("state field = %v", p.fields["state"])
	}
	if p.fields["value"] != 21.5 {
		t.Errorf("value field = %v, want parsed float", p.fields["value"])
	}
	if p.fields["attr_battery"] != 87.0 {
		t.Errorf("battery field = %v, want 87", p.fields["attr_battery"])
	}
	if _, ok := p.fields["attr_friendly_name"]; ok {
		t.Error("non-numeric attribute written as field")
	}
	if !p.timestamp.Equal(ts) {
		t.Errorf("timestamp = %v, want %v", p.timestamp, ts)
	}
}

func TestRecorderSkipsRemovals(t *testing.T) {
	bus := event.NewBus(inlineScheduler{})
	writer := &mockWriter{}
	rec := NewRecorder(writer, nil)
	if err := rec.Start(bus); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	bus.Fire(event.TypeStateChanged, map[string]any{
		"entity_id": "light.kitchen",
		"old_state": mustState(t, "light.kitchen", "on", nil, time.Now()),
		"new_state": nil,
	})

	if n := len(writer.captured()); n != 0 {
		t.Fatalf("wrote %d points for a removal, want 0", n)
	}
}

func TestRecorderStop(t *testing.T) {
	bus := event.NewBus(inlineScheduler{})
	writer := &mockWriter{}
	rec := NewRecorder(writer, nil)
	if err := rec.Start(bus); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	rec.Stop()

	bus.Fire(event.TypeStateChanged, map[string]any{
		"new_state": mustState(t, "light.kitchen", "on", nil, time.Now()),
	})
	if n := len(writer.captured()); n != 0 {
		t.Fatalf("wrote %d points after Stop, want 0", n)
	}
}

func TestNumericAttributes(t *testing.T) {
	got := numericAttributes(map[string]any{
		"f64":  1.5,
		"int":  3,
		"i64":  int64(4),
		"on":   true,
		"off":  false,
		"name": "kitchen",
		"list": []any{1, 2},
	})
	want := map[string]float64{"f64": 1.5, "int": 3, "i64": 4, "on": 1, "off": 0}
	if len(got) != len(want) {
		t.Fatalf("numericAttributes = %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %v, want %v", k, got[k], v)
		}
	}
}
