package audit

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hearthhq/hearth-core/internal/event"
	"github.com/hearthhq/hearth-core/internal/job"

	_ "github.com/mattn/go-sqlite3"
)

func openTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()

	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	_, err = db.Exec(`
		CREATE TABLE audit_events (
			id TEXT PRIMARY KEY,
			event_type TEXT NOT NULL,
			domain TEXT NOT NULL,
			service TEXT,
			user_id TEXT,
			context_id TEXT,
			origin TEXT NOT NULL,
			details TEXT,
			created_at TEXT NOT NULL
		)
	`)
	if err != nil {
		t.Fatalf("creating table: %v", err)
	}
	return NewSQLiteRepository(db)
}

func TestRecordAndList(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	entries := []*Entry{
		{EventType: "call_service", Domain: "light", Service: "turn_on", UserID: "alice", Origin: "local", CreatedAt: base},
		{EventType: "call_service", Domain: "switch", Service: "toggle", Origin: "remote", CreatedAt: base.Add(time.Minute)},
		{EventType: "service_registered", Domain: "light", Service: "turn_off", Origin: "local", CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, e := range entries {
		if err := repo.Record(ctx, e); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
		if e.ID == "" {
			t.Fatal("Record() did not assign an ID")
		}
	}

	t.Run("unfiltered, most recent first", func(t *testing.T) {
		res, err := repo.List(ctx, Filter{})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if res.Total != 3 || len(res.Entries) != 3 {
			t.Fatalf("List() total = %d, len = %d, want 3/3", res.Total, len(res.Entries))
		}
		if res.Entries[0].EventType != "service_registered" {
			t.Errorf("first entry = %s, want most recent", res.Entries[0].EventType)
		}
	})

	t.Run("filter by event type and domain", func(t *testing.T) {
		res, err := repo.List(ctx, Filter{EventType: "call_service", Domain: "light"})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if res.Total != 1 {
			t.Fatalf("List() total = %d, want 1", res.Total)
		}
		if res.Entries[0].UserID != "alice" {
			t.Errorf("user = %q, want alice", res.Entries[0].UserID)
		}
	})

	t.Run("filter by user", func(t *testing.T) {
		res, err := repo.List(ctx, Filter{UserID: "alice"})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if res.Total != 1 {
			t.Fatalf("List() total = %d, want 1", res.Total)
		}
	})

	t.Run("pagination clamps limit", func(t *testing.T) {
		res, err := repo.List(ctx, Filter{Limit: 1000})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if res.Limit != 200 {
			t.Errorf("limit = %d, want clamped 200", res.Limit)
		}
	})

	t.Run("details round-trip", func(t *testing.T) {
		e := &Entry{
			EventType: "call_service", Domain: "light", Service: "turn_on",
			Origin: "local", Details: map[string]any{"brightness": 128.0},
		}
		if err := repo.Record(ctx, e); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
		res, err := repo.List(ctx, Filter{Limit: 1})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if got := res.Entries[0].Details["brightness"]; got != 128.0 {
			t.Errorf("details brightness = %v, want 128", got)
		}
	})
}

// inlineScheduler runs jobs synchronously, good enough for bus wiring
// in tests.
type inlineScheduler struct{}

func (inlineScheduler) Submit(j job.Job) { _ = j.Run(context.Background()) }

// memRepo collects entries without a database.
type memRepo struct {
	mu      sync.Mutex
	entries []*Entry
}

func (m *memRepo) Record(_ context.Context, e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *memRepo) List(context.Context, Filter) (*ListResult, error) {
	return &ListResult{}, nil
}

func TestRecorder(t *testing.T) {
	bus := event.NewBus(inlineScheduler{})
	repo := &memRepo{}
	rec := NewRecorder(repo, nil)
	if err := rec.Start(bus); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	bus.Fire(event.TypeCallService, map[string]any{
		"domain":       "light",
		"service":      "turn_on",
		"service_data": map[string]any{"brightness": 200},
	}, event.WithContext(event.UserContext("bob")), event.WithOrigin(event.OriginRemote))

	bus.Fire(event.TypeServiceRegistered, map[string]any{
		"domain": "climate", "service": "set_temperature",
	})

	// Unrelated events are ignored.
	bus.Fire(event.TypeStateChanged, map[string]any{"entity_id": "light.kitchen"})

	repo.mu.Lock()
	got := len(repo.entries)
	repo.mu.Unlock()
	if got != 2 {
		t.Fatalf("recorded %d entries, want 2", got)
	}

	first := repo.entries[0]
	if first.EventType != event.TypeCallService || first.Domain != "light" || first.Service != "turn_on" {
		t.Errorf("entry = %+v", first)
	}
	if first.UserID != "bob" || first.Origin != string(event.OriginRemote) {
		t.Errorf("entry attribution = %+v", first)
	}
	if first.Details["brightness"] != 200 {
		t.Errorf("details = %v", first.Details)
	}
	if first.ContextID == "" || first.CreatedAt.IsZero() {
		t.Errorf("entry missing context or timestamp: %+v", first)
	}

	rec.Stop()
	bus.Fire(event.TypeCallService, map[string]any{"domain": "light", "service": "turn_off"})
	repo.mu.Lock()
	after := len(repo.entries)
	repo.mu.Unlock()
	if after != 2 {
		t.Fatalf("recorder still recording after Stop: %d entries", after)
	}
}
