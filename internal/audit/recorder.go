package audit

import (
	"context"
	"time"

	"github.com/hearthhq/hearth-core/internal/event"
	"github.com/hearthhq/hearth-core/internal/job"
)

// recordTimeout bounds one audit insert.
const recordTimeout = 5 * time.Second

// Logger is the logging interface used by the Recorder.
type Logger interface {
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Error(string, ...any) {}

// Listener is the bus surface the recorder subscribes through.
// Satisfied by event.Bus.
type Listener interface {
	Listen(eventType string, kind job.Kind, fn event.Handler) (func(), error)
}

// Recorder turns service lifecycle events into audit entries. It
// subscribes as task jobs so database writes never run on the
// dispatcher goroutine.
type Recorder struct {
	repo   Repository
	logger Logger
	unsubs []func()
}

// NewRecorder creates a Recorder writing through repo.
func NewRecorder(repo Repository, logger Logger) *Recorder {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Recorder{repo: repo, logger: logger}
}

// Start subscribes to the audited event types. Call Stop to detach.
func (r *Recorder) Start(bus Listener) error {
	for _, eventType := range []string{
		event.TypeCallService,
		event.TypeServiceRegistered,
		event.TypeServiceRemoved,
	} {
		unsub, err := bus.Listen(eventType, job.KindTask, r.handle)
		if err != nil {
			r.Stop()
			return err
		}
		r.unsubs = append(r.unsubs, unsub)
	}
	return nil
}

// Stop detaches every subscription.
func (r *Recorder) Stop() {
	for _, unsub := range r.unsubs {
		unsub()
	}
	r.unsubs = nil
}

func (r *Recorder) handle(_ context.Context, ev *event.Event) error {
	entry := &Entry{
		EventType: ev.Type,
		UserID:    ev.Context.UserID,
		ContextID: ev.Context.ID,
		Origin:    string(ev.Origin),
		CreatedAt: ev.TimeFired,
	}
	if domain, ok := ev.Data["domain"].(string); ok {
		entry.Domain = domain
	}
	if svc, ok := ev.Data["service"].(string); ok {
		entry.Service = svc
	}
	if data, ok := ev.Data["service_data"].(map[string]any); ok && len(data) > 0 {
		entry.Details = data
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := r.repo.Record(ctx, entry); err != nil {
		r.logger.Error("audit record failed", "event_type", ev.Type, "error", err.Error())
		return err
	}
	return nil
}
