package hub

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hearthhq/hearth-core/internal/event"
	"github.com/hearthhq/hearth-core/internal/job"
)

// memStore is an in-memory Store for config tests.
type memStore struct {
	mu    sync.Mutex
	docs  map[string]CoreConfig
	saved []string
}

func newMemStore() *memStore {
	return &memStore{docs: make(map[string]CoreConfig)}
}

func (s *memStore) Load(_ context.Context, key string, v any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.docs[key]
	if !ok {
		return false, nil
	}
	*(v.(*CoreConfig)) = cfg
	return true, nil
}

func (s *memStore) SaveDelayed(key string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[key] = v.(CoreConfig)
	s.saved = append(s.saved, key)
}

func TestCoreConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*CoreConfig)
		wantErr bool
	}{
		{"defaults are valid", func(*CoreConfig) {}, false},
		{"imperial units", func(c *CoreConfig) { c.Units = UnitsImperial }, false},
		{"unknown units", func(c *CoreConfig) { c.Units = "parsecs" }, true},
		{"latitude out of range", func(c *CoreConfig) { c.Latitude = 91 }, true},
		{"longitude out of range", func(c *CoreConfig) { c.Longitude = -181 }, true},
		{"bad time zone", func(c *CoreConfig) { c.TimeZone = "Mars/Olympus" }, true},
		{"real time zone", func(c *CoreConfig) { c.TimeZone = "Europe/London" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultCoreConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCoreConfigAllowedPaths(t *testing.T) {
	cfg := defaultCoreConfig()
	cfg.AllowedExternalDirs = []string{"/var/lib/hearth/media"}

	tests := []struct {
		path string
		want bool
	}{
		{"/var/lib/hearth/media", true},
		{"/var/lib/hearth/media/cam1.jpg", true},
		{"/var/lib/hearth/media/../secrets", false},
		{"/var/lib/hearth", false},
		{"/etc/passwd", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := cfg.IsAllowedPath(tt.path); got != tt.want {
			t.Errorf("IsAllowedPath(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestCoreConfigAllowedURLs(t *testing.T) {
	cfg := defaultCoreConfig()
	cfg.AllowedExternalURLs = []string{"https://cdn.example.com/"}

	if !cfg.IsAllowedExternalURL("https://cdn.example.com/icons/a.png") {
		t.Error("prefix match rejected")
	}
	if cfg.IsAllowedExternalURL("https://cdn.example.com.evil.net/a") {
		t.Error("lookalike host accepted")
	}
}

func TestLoadCoreConfig(t *testing.T) {
	t.Run("missing document keeps defaults", func(t *testing.T) {
		h := New(Options{Timeouts: shortTimeouts()})
		defer h.Stop(0, true)

		if err := h.LoadCoreConfig(context.Background(), newMemStore()); err != nil {
			t.Fatalf("load: %v", err)
		}
		if got := h.CoreConfig(); got.Name != "Hearth" || got.Units != UnitsMetric {
			t.Fatalf("unexpected defaults: %+v", got)
		}
	})

	t.Run("stored document wins", func(t *testing.T) {
		h := New(Options{Timeouts: shortTimeouts()})
		defer h.Stop(0, true)

		store := newMemStore()
		store.docs[coreConfigKey] = CoreConfig{Name: "Cottage", Units: UnitsImperial, TimeZone: "UTC"}

		if err := h.LoadCoreConfig(context.Background(), store); err != nil {
			t.Fatalf("load: %v", err)
		}
		if got := h.CoreConfig(); got.Name != "Cottage" || got.Units != UnitsImperial {
			t.Fatalf("stored config not applied: %+v", got)
		}
	})

	t.Run("invalid stored document is rejected", func(t *testing.T) {
		h := New(Options{Timeouts: shortTimeouts()})
		defer h.Stop(0, true)

		store := newMemStore()
		store.docs[coreConfigKey] = CoreConfig{Name: "Broken", Units: "cubits"}

		if err := h.LoadCoreConfig(context.Background(), store); err == nil {
			t.Fatal("expected validation error")
		}
	})
}

func TestUpdateCoreConfig(t *testing.T) {
	h := New(Options{Timeouts: shortTimeouts()})
	defer h.Stop(0, true)

	store := newMemStore()
	if err := h.LoadCoreConfig(context.Background(), store); err != nil {
		t.Fatalf("load: %v", err)
	}

	updated := make(chan *event.Event, 1)
	if _, err := h.Bus.Listen(event.TypeCoreConfigUpdated, job.KindCallback,
		func(_ context.Context, ev *event.Event) error {
			updated <- ev
			return nil
		}); err != nil {
		t.Fatalf("listen: %v", err)
	}

	ectx := event.UserContext("user-1")
	cfg := h.CoreConfig()
	cfg.Name = "Lakehouse"
	cfg.Latitude = 59.3
	if err := h.UpdateCoreConfig(cfg, ectx); err != nil {
		t.Fatalf("update: %v", err)
	}

	select {
	case ev := <-updated:
		if ev.Data["name"] != "Lakehouse" {
			t.Fatalf("event payload = %v", ev.Data)
		}
		if ev.Context.UserID != "user-1" {
			t.Fatalf("event context user = %q, want user-1", ev.Context.UserID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no core_config_updated event")
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.saved) != 1 || store.saved[0] != coreConfigKey {
		t.Fatalf("saves = %v, want one save of %s", store.saved, coreConfigKey)
	}
	if store.docs[coreConfigKey].Name != "Lakehouse" {
		t.Fatalf("persisted config = %+v", store.docs[coreConfigKey])
	}

	t.Run("invalid update rejected without side effects", func(t *testing.T) {
		bad := h.CoreConfig()
		bad.Units = "leagues"
		if err := h.UpdateCoreConfig(bad, event.NewContext()); err == nil {
			t.Fatal("expected validation error")
		}
		if got := h.CoreConfig().Units; got != UnitsMetric {
			t.Fatalf("units mutated to %q", got)
		}
	})
}
