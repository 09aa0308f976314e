package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hearthhq/hearth-core/internal/event"
	"github.com/hearthhq/hearth-core/internal/job"
)

// Domain errors for the service package.
var (
	// ErrNotFound is returned when a (domain, service) pair is not
	// registered. Lookup failure is surfaced to the caller of Call.
	ErrNotFound = errors.New("service: not found")

	// ErrInvalidCall is returned for empty domain or service names, and
	// for schema failures when strict validation is enabled.
	ErrInvalidCall = errors.New("service: invalid call")

	// ErrNilHandler is returned when registering a nil handler.
	ErrNilHandler = errors.New("service: nil handler")

	// ErrUnauthorized marks a handler failure as an authorization
	// problem. Background execution logs these quietly: they are
	// expected, attributed failures, not core bugs.
	ErrUnauthorized = errors.New("service: unauthorized")
)

// HandlerFunc is the signature of a service implementation.
type HandlerFunc func(ctx context.Context, call Call) error

// Schema validates and optionally coerces service call data before the
// handler sees it. Collaborators supply implementations; the core only
// requires this contract.
type Schema interface {
	Validate(data map[string]any) (map[string]any, error)
}

// Service is one registered remote-controllable action: a classified job
// plus an optional data schema.
type Service struct {
	Domain string
	Name   string
	kind   job.Kind
	fn     HandlerFunc
	schema Schema
}

// Call is one invocation of a service: the address, the payload and the
// causality context. Domain and service are always lowercase.
type Call struct {
	Domain  string
	Service string
	Data    map[string]any
	Context event.Context
}

// NewCall builds a validated Call. Domain and service are lower-cased and
// must be non-empty; nil data becomes an empty map.
func NewCall(domain, svc string, data map[string]any, ctx event.Context) (Call, error) {
	domain = strings.ToLower(strings.TrimSpace(domain))
	svc = strings.ToLower(strings.TrimSpace(svc))
	if domain == "" || svc == "" {
		return Call{}, fmt.Errorf("%w: domain and service are required", ErrInvalidCall)
	}
	if data == nil {
		data = map[string]any{}
	}
	if ctx.ID == "" {
		ctx = event.NewContext()
	}
	return Call{Domain: domain, Service: svc, Data: data, Context: ctx}, nil
}
