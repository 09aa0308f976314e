package state

import (
	"errors"
	"fmt"
	"maps"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/hearthhq/hearth-core/internal/event"
)

// MaxStateLength is the maximum length of the state string. Longer values
// fail construction rather than being truncated; every snapshot in the
// machine is always valid.
const MaxStateLength = 255

// Validation errors for State construction.
var (
	// ErrInvalidEntityID is returned for an entity id that does not match
	// "<domain>.<object_id>" in lowercase slug form.
	ErrInvalidEntityID = errors.New("state: invalid entity id")

	// ErrInvalidState is returned for a state string over MaxStateLength.
	ErrInvalidState = errors.New("state: invalid state value")
)

var entityIDPattern = regexp.MustCompile(`^[a-z0-9_]+\.[a-z0-9_]+$`)

// ValidEntityID reports whether id is a well-formed entity id: two
// lowercase slug segments joined by a dot, with no leading, trailing or
// doubled underscores in either segment.
func ValidEntityID(id string) bool {
	if !entityIDPattern.MatchString(id) {
		return false
	}
	domain, objectID, _ := strings.Cut(id, ".")
	return validSegment(domain) && validSegment(objectID)
}

func validSegment(s string) bool {
	if strings.HasPrefix(s, "_") || strings.HasSuffix(s, "_") {
		return false
	}
	return !strings.Contains(s, "__")
}

// State is an immutable snapshot of one entity's status.
//
// States are constructed by Machine.Set, shared freely across goroutines,
// and never mutated afterwards. Attributes must be treated as read-only.
type State struct {
	EntityID    string         `json:"entity_id"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes"`
	LastChanged time.Time      `json:"last_changed"`
	LastUpdated time.Time      `json:"last_updated"`
	Context     event.Context  `json:"context"`
}

// New constructs a validated State.
//
// Zero timestamps default to now. LastChanged must not be after
// LastUpdated: LastChanged only ever inherits an older value when the
// state string did not change.
func New(entityID, st string, attributes map[string]any, lastChanged, lastUpdated time.Time, ctx event.Context) (*State, error) {
	if !ValidEntityID(entityID) {
		return nil, fmt.Errorf("%w: %q (format: <domain>.<object_id>, lowercase slugs)", ErrInvalidEntityID, entityID)
	}
	if len(st) > MaxStateLength {
		return nil, fmt.Errorf("%w: %d characters exceeds maximum of %d", ErrInvalidState, len(st), MaxStateLength)
	}

	now := time.Now().UTC()
	if lastUpdated.IsZero() {
		lastUpdated = now
	}
	if lastChanged.IsZero() {
		lastChanged = lastUpdated
	}
	if lastChanged.After(lastUpdated) {
		return nil, fmt.Errorf("%w: last_changed after last_updated", ErrInvalidState)
	}
	if ctx.ID == "" {
		ctx = event.NewContext()
	}
	if attributes == nil {
		attributes = map[string]any{}
	}

	return &State{
		EntityID:    entityID,
		State:       st,
		Attributes:  maps.Clone(attributes),
		LastChanged: lastChanged,
		LastUpdated: lastUpdated,
		Context:     ctx,
	}, nil
}

// Domain returns the first segment of the entity id.
func (s *State) Domain() string {
	domain, _, _ := strings.Cut(s.EntityID, ".")
	return domain
}

// ObjectID returns the second segment of the entity id.
func (s *State) ObjectID() string {
	_, objectID, _ := strings.Cut(s.EntityID, ".")
	return objectID
}

// Equal reports whether two snapshots are equivalent: same entity id,
// state string, attributes and causality context.
func (s *State) Equal(other *State) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.EntityID == other.EntityID &&
		s.State == other.State &&
		s.Context.ID == other.Context.ID &&
		reflect.DeepEqual(s.Attributes, other.Attributes)
}

// AsMap returns a serialisable representation of the snapshot.
func (s *State) AsMap() map[string]any {
	return map[string]any{
		"entity_id":    s.EntityID,
		"state":        s.State,
		"attributes":   s.Attributes,
		"last_changed": s.LastChanged.UTC().Format(time.RFC3339Nano),
		"last_updated": s.LastUpdated.UTC().Format(time.RFC3339Nano),
		"context": map[string]any{
			"id":        s.Context.ID,
			"user_id":   s.Context.UserID,
			"parent_id": s.Context.ParentID,
		},
	}
}

// FromMap reconstructs a State from the AsMap representation.
func FromMap(m map[string]any) (*State, error) {
	entityID, _ := m["entity_id"].(string)
	st, _ := m["state"].(string)
	attrs, _ := m["attributes"].(map[string]any)

	lastChanged, err := parseMapTime(m, "last_changed")
	if err != nil {
		return nil, err
	}
	lastUpdated, err := parseMapTime(m, "last_updated")
	if err != nil {
		return nil, err
	}

	var ctx event.Context
	if cm, ok := m["context"].(map[string]any); ok {
		ctx.ID, _ = cm["id"].(string)
		ctx.UserID, _ = cm["user_id"].(string)
		ctx.ParentID, _ = cm["parent_id"].(string)
	}

	return New(entityID, st, attrs, lastChanged, lastUpdated, ctx)
}

func parseMapTime(m map[string]any, key string) (time.Time, error) {
	switch v := m[key].(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return v, nil
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: bad %s timestamp %q", ErrInvalidState, key, v)
		}
		return t, nil
	default:
		return time.Time{}, fmt.Errorf("%w: bad %s timestamp", ErrInvalidState, key)
	}
}
