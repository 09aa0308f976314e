package hub

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/hearthhq/hearth-core/internal/event"
)

// coreConfigKey is the storage key for the hub's persisted configuration.
const coreConfigKey = "core.config"

// Unit systems accepted by CoreConfig.
const (
	UnitsMetric   = "metric"
	UnitsImperial = "imperial"
)

// Store persists versioned documents for the hub. Implemented by
// storage.Store; kept as an interface here so the hub has no storage
// dependency.
type Store interface {
	Load(ctx context.Context, key string, v any) (bool, error)
	SaveDelayed(key string, v any)
}

// CoreConfig is the installation-level configuration: identity,
// location, units and filesystem trust boundaries. It is persisted
// through the Store and broadcast via core_config_updated on change.
type CoreConfig struct {
	Name      string  `json:"name" yaml:"name"`
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
	Elevation int     `json:"elevation" yaml:"elevation"`
	Units     string  `json:"units" yaml:"units"`
	TimeZone  string  `json:"time_zone" yaml:"time_zone"`

	// AllowedExternalDirs and AllowedExternalURLs gate what integrations
	// may read from outside the config directory.
	AllowedExternalDirs []string `json:"allowed_external_dirs" yaml:"allowed_external_dirs"`
	AllowedExternalURLs []string `json:"allowed_external_urls" yaml:"allowed_external_urls"`
}

func defaultCoreConfig() CoreConfig {
	return CoreConfig{
		Name:     "Hearth",
		Units:    UnitsMetric,
		TimeZone: "UTC",
	}
}

// Validate checks the fields that break consumers when wrong.
func (c CoreConfig) Validate() error {
	if c.Units != UnitsMetric && c.Units != UnitsImperial {
		return fmt.Errorf("hub: invalid unit system %q", c.Units)
	}
	if c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("hub: latitude %v out of range", c.Latitude)
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("hub: longitude %v out of range", c.Longitude)
	}
	if c.TimeZone != "" {
		if _, err := time.LoadLocation(c.TimeZone); err != nil {
			return fmt.Errorf("hub: invalid time zone %q: %w", c.TimeZone, err)
		}
	}
	return nil
}

// IsAllowedPath reports whether path sits under one of the allowed
// external directories. Paths are cleaned before comparison; no
// symlink resolution is attempted.
func (c CoreConfig) IsAllowedPath(path string) bool {
	if path == "" {
		return false
	}
	clean := filepath.Clean(path)
	for _, dir := range c.AllowedExternalDirs {
		dir = filepath.Clean(dir)
		if clean == dir || strings.HasPrefix(clean, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// IsAllowedExternalURL reports whether url matches one of the allowed
// external URL prefixes.
func (c CoreConfig) IsAllowedExternalURL(url string) bool {
	if url == "" {
		return false
	}
	for _, allowed := range c.AllowedExternalURLs {
		allowed = strings.TrimRight(allowed, "/")
		if url == allowed || strings.HasPrefix(url, allowed+"/") {
			return true
		}
	}
	return false
}

// CoreConfig returns a snapshot of the current configuration.
func (h *Hub) CoreConfig() CoreConfig {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.config
}

// LoadCoreConfig attaches a store and loads the persisted configuration,
// keeping defaults when nothing was stored yet. Call before Start.
func (h *Hub) LoadCoreConfig(ctx context.Context, store Store) error {
	cfg := defaultCoreConfig()
	found, err := store.Load(ctx, coreConfigKey, &cfg)
	if err != nil {
		return fmt.Errorf("hub: load core config: %w", err)
	}
	if found {
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	h.mu.Lock()
	h.store = store
	h.config = cfg
	h.mu.Unlock()

	if found {
		h.logger.Info("core config loaded", "name", cfg.Name, "units", cfg.Units)
	}
	return nil
}

// UpdateCoreConfig validates and applies a new configuration, schedules
// a debounced save when a store is attached, and fires
// core_config_updated carrying the new values.
func (h *Hub) UpdateCoreConfig(cfg CoreConfig, ectx event.Context) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	h.mu.Lock()
	h.config = cfg
	store := h.store
	h.mu.Unlock()

	if store != nil {
		store.SaveDelayed(coreConfigKey, cfg)
	}
	h.Bus.Fire(event.TypeCoreConfigUpdated, h.coreConfigPayload(), event.WithContext(ectx))
	return nil
}

func (h *Hub) coreConfigPayload() map[string]any {
	cfg := h.CoreConfig()
	return map[string]any{
		"name":      cfg.Name,
		"latitude":  cfg.Latitude,
		"longitude": cfg.Longitude,
		"elevation": cfg.Elevation,
		"units":     cfg.Units,
		"time_zone": cfg.TimeZone,
	}
}
