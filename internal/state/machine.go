package state

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hearthhq/hearth-core/internal/event"
)

// ErrEntityTaken is returned by Reserve when the entity id is already
// reserved or already holds a state.
var ErrEntityTaken = errors.New("state: entity id already taken")

// Firer is the slice of the event bus the machine needs: fire-and-forget
// scheduling of change notifications.
type Firer interface {
	Fire(eventType string, data map[string]any, opts ...event.FireOption)
}

// Logger is the logging interface used by the Machine.
type Logger interface {
	Debug(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}

// Machine is the authoritative mapping of entity id to current State.
//
// An entity id is in exactly one of three conditions: absent, reserved,
// or present with a State. The state map and the reservation set are
// mutated only under the machine's mutex, so concurrent Set calls for the
// same entity never interleave (linearized state changes). Change events
// are fired while the mutex is held; the bus only schedules work, so the
// firing goroutine never runs listener code here.
type Machine struct {
	mu       sync.Mutex
	states   map[string]*State
	reserved map[string]struct{}
	bus      Firer
	logger   Logger
}

// NewMachine creates an empty Machine that emits change events on bus.
func NewMachine(bus Firer) *Machine {
	return &Machine{
		states:   make(map[string]*State),
		reserved: make(map[string]struct{}),
		bus:      bus,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the machine.
func (m *Machine) SetLogger(logger Logger) {
	m.logger = logger
}

// Get returns the current snapshot for the entity, or nil if absent.
func (m *Machine) Get(entityID string) *State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[strings.ToLower(entityID)]
}

// IsState reports whether the entity exists and its state string matches.
func (m *Machine) IsState(entityID, st string) bool {
	s := m.Get(entityID)
	return s != nil && s.State == st
}

// All returns the current snapshots, optionally filtered by domain
// (case-insensitive), sorted by entity id.
func (m *Machine) All(domains ...string) []*State {
	filter := domainFilter(domains)

	m.mu.Lock()
	states := make([]*State, 0, len(m.states))
	for _, s := range m.states {
		if filter == nil {
			states = append(states, s)
			continue
		}
		if _, ok := filter[s.Domain()]; ok {
			states = append(states, s)
		}
	}
	m.mu.Unlock()

	slices.SortFunc(states, func(a, b *State) int {
		return strings.Compare(a.EntityID, b.EntityID)
	})
	return states
}

// EntityIDs returns the known entity ids, optionally filtered by domain
// (case-insensitive), sorted.
func (m *Machine) EntityIDs(domains ...string) []string {
	states := m.All(domains...)
	ids := make([]string, len(states))
	for i, s := range states {
		ids[i] = s.EntityID
	}
	return ids
}

func domainFilter(domains []string) map[string]struct{} {
	if len(domains) == 0 {
		return nil
	}
	filter := make(map[string]struct{}, len(domains))
	for _, d := range domains {
		filter[strings.ToLower(d)] = struct{}{}
	}
	return filter
}

// Reserve claims an entity id before its first state is set, closing the
// race where two callers both believe an id is free. Reservation is a
// private negotiation: no event fires. The claim fails if the id is
// already reserved or already present.
func (m *Machine) Reserve(entityID string) error {
	id := strings.ToLower(entityID)
	if !ValidEntityID(id) {
		return fmt.Errorf("%w: %q", ErrInvalidEntityID, entityID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.states[id]; ok {
		return fmt.Errorf("%w: %q has a state", ErrEntityTaken, id)
	}
	if _, ok := m.reserved[id]; ok {
		return fmt.Errorf("%w: %q is reserved", ErrEntityTaken, id)
	}
	m.reserved[id] = struct{}{}
	return nil
}

// Available reports whether the entity id is neither present nor reserved.
func (m *Machine) Available(entityID string) bool {
	id := strings.ToLower(entityID)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.states[id]; ok {
		return false
	}
	_, ok := m.reserved[id]
	return !ok
}

// setConfig holds per-Set overrides.
type setConfig struct {
	force  bool
	ctx    event.Context
	hasCtx bool
}

// SetOption customises a single Set or Remove call.
type SetOption func(*setConfig)

// ForceUpdate makes Set treat an unchanged state string as changed, so a
// state_changed event fires and last_changed advances regardless.
func ForceUpdate() SetOption {
	return func(c *setConfig) { c.force = true }
}

// WithContext attributes the change to an existing causality context.
func WithContext(ctx event.Context) SetOption {
	return func(c *setConfig) { c.ctx = ctx; c.hasCtx = true }
}

// Set records a new snapshot for the entity and fires state_changed.
//
// The entity id is normalized to lowercase. When both the state string
// and the attributes are unchanged (and the update is not forced), Set is
// a no-op and no event fires; this suppresses redundant churn from noisy
// sensors. LastChanged is inherited from the prior snapshot when only
// attributes changed.
//
// The state_changed payload is {"entity_id", "old_state", "new_state"};
// old_state is nil when the entity just appeared.
func (m *Machine) Set(entityID, newState string, attributes map[string]any, opts ...SetOption) (*State, error) {
	cfg := setConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	id := strings.ToLower(entityID)
	if attributes == nil {
		attributes = map[string]any{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	old := m.states[id]
	sameState := old != nil && old.State == newState && !cfg.force
	sameAttr := old != nil && reflect.DeepEqual(old.Attributes, attributes)
	if sameState && sameAttr {
		return old, nil
	}

	if !cfg.hasCtx {
		cfg.ctx = event.NewContext()
	}

	now := time.Now().UTC()
	lastChanged := now
	if sameState {
		lastChanged = old.LastChanged
	}

	next, err := New(id, newState, attributes, lastChanged, now, cfg.ctx)
	if err != nil {
		return nil, err
	}

	m.states[id] = next
	delete(m.reserved, id) // reservation superseded by the first state

	var oldAny any
	if old != nil {
		oldAny = old
	}
	m.bus.Fire(event.TypeStateChanged, map[string]any{
		"entity_id": id,
		"old_state": oldAny,
		"new_state": next,
	}, event.WithContext(cfg.ctx))

	return next, nil
}

// Remove deletes the entity's state and any reservation. When a state
// existed, state_changed fires with a nil new_state to signal that the
// entity disappeared. Remove reports whether anything was removed.
func (m *Machine) Remove(entityID string, opts ...SetOption) bool {
	cfg := setConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	id := strings.ToLower(entityID)

	m.mu.Lock()
	defer m.mu.Unlock()

	old, hadState := m.states[id]
	_, hadReservation := m.reserved[id]
	delete(m.states, id)
	delete(m.reserved, id)

	if !hadState {
		if hadReservation {
			m.logger.Debug("reservation released", "entity_id", id)
		}
		return hadReservation
	}

	if !cfg.hasCtx {
		cfg.ctx = event.NewContext()
	}
	m.bus.Fire(event.TypeStateChanged, map[string]any{
		"entity_id": id,
		"old_state": old,
		"new_state": nil,
	}, event.WithContext(cfg.ctx))

	return true
}

// Len returns the number of entities holding a state.
func (m *Machine) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.states)
}
