// Package history records entity state changes to the time-series
// database. Every state_changed event becomes one point tagged by
// entity and domain, so dashboards can chart an entity's history
// without touching the hub's in-memory state.
package history

import (
	"context"
	"strconv"
	"time"

	"github.com/hearthhq/hearth-core/internal/event"
	"github.com/hearthhq/hearth-core/internal/job"
	"github.com/hearthhq/hearth-core/internal/state"
)

// measurement is the time-series measurement name for state history.
const measurement = "entity_state"

// PointWriter is the TSDB surface the recorder writes through.
// Satisfied by influxdb.Client.
type PointWriter interface {
	WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time)
}

// Listener is the bus surface the recorder subscribes through.
type Listener interface {
	Listen(eventType string, kind job.Kind, fn event.Handler) (func(), error)
}

// Logger is the logging interface used by the Recorder.
type Logger interface {
	Debug(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}

// Recorder streams state changes into the TSDB. Writes are handed to
// the point writer as-is; the underlying client batches them.
type Recorder struct {
	writer PointWriter
	logger Logger
	unsub  func()
}

// NewRecorder creates a Recorder writing through w.
func NewRecorder(w PointWriter, logger Logger) *Recorder {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Recorder{writer: w, logger: logger}
}

// Start subscribes to state_changed. The point writer is non-blocking,
// so the handler registers as a callback.
func (r *Recorder) Start(bus Listener) error {
	unsub, err := bus.Listen(event.TypeStateChanged, job.KindCallback, r.handle)
	if err != nil {
		return err
	}
	r.unsub = unsub
	return nil
}

// Stop detaches the subscription.
func (r *Recorder) Stop() {
	if r.unsub != nil {
		r.unsub()
		r.unsub = nil
	}
}

func (r *Recorder) handle(_ context.Context, ev *event.Event) error {
	newState, ok := ev.Data["new_state"].(*state.State)
	if !ok || newState == nil {
		// Entity removal; history keeps the last recorded value.
		r.logger.Debug("skipping history point without new state",
			"entity_id", ev.Data["entity_id"])
		return nil
	}

	tags := map[string]string{
		"entity_id": newState.EntityID,
		"domain":    newState.Domain(),
	}
	fields := map[string]interface{}{
		"state": newState.State,
	}
	// Numeric states additionally land as a float field so range
	// queries and aggregations work without casts.
	if f, err := strconv.ParseFloat(newState.State, 64); err == nil {
		fields["value"] = f
	}
	for key, val := range numericAttributes(newState.Attributes) {
		fields["attr_"+key] = val
	}

	r.writer.WritePointWithTime(measurement, tags, fields, newState.LastUpdated)
	return nil
}

// numericAttributes extracts the attribute values worth charting.
func numericAttributes(attrs map[string]any) map[string]float64 {
	out := make(map[string]float64)
	for key, val := range attrs {
		switch v := val.(type) {
		case float64:
			out[key] = v
		case float32:
			out[key] = float64(v)
		case int:
			out[key] = float64(v)
		case int64:
			out[key] = float64(v)
		case bool:
			if v {
				out[key] = 1
			} else {
				out[key] = 0
			}
		}
	}
	return out
}
