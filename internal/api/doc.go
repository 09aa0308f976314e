// Package api implements the HTTP REST API and WebSocket server for the
// Hearth hub.
//
// This package provides:
//   - REST endpoints for entity state, service calls, events, and core config
//   - WebSocket endpoint streaming hub events in real time
//   - JWT bearer authentication mapped to event contexts for attribution
//   - Middleware stack (request ID, logging, recovery, CORS, body limits)
//   - TLS support for production deployments
//
// # Architecture
//
// The API server sits between user interfaces (dashboards, mobile apps) and
// the hub runtime. Writes go through the state machine and service registry
// so every change flows through the event bus; reads are served from the
// in-memory state machine and the audit repository.
//
// # Security
//
// All routes except /api/v1/health require a valid JWT access token. REST
// requests carry it as an Authorization bearer header; WebSocket connections
// pass it as an access_token query parameter since browsers cannot set
// headers on upgrade requests.
package api
