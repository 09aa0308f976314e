package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hearthhq/hearth-core/internal/audit"
	"github.com/hearthhq/hearth-core/internal/event"
	"github.com/hearthhq/hearth-core/internal/hub"
	"github.com/hearthhq/hearth-core/internal/infrastructure/config"
	"github.com/hearthhq/hearth-core/internal/infrastructure/logging"
	"github.com/hearthhq/hearth-core/internal/job"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Hub      *hub.Hub
	Audit    audit.Repository // optional: audit endpoints return 404 when nil
	Version  string
}

// Server is the HTTP API server for the Hearth hub.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg     config.APIConfig
	wsCfg   config.WebSocketConfig
	secCfg  config.SecurityConfig
	logger  *logging.Logger
	hub     *hub.Hub
	audit   audit.Repository
	version string

	server *http.Server
	wsHub  *Hub
	cancel context.CancelFunc // cancels background goroutines on Close()
	unsub  func()             // detaches the event bus broadcast listener
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Hub == nil {
		return nil, fmt.Errorf("hub is required")
	}

	return &Server{
		cfg:     deps.Config,
		wsCfg:   deps.WS,
		secCfg:  deps.Security,
		logger:  deps.Logger,
		hub:     deps.Hub,
		audit:   deps.Audit,
		version: deps.Version,
	}, nil
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub, attaches a bus listener that streams every
// event to subscribed WebSocket clients, and launches the HTTP listener in
// a background goroutine. The server is stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	// Internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.wsHub = NewHub(s.wsCfg, s.logger)
	go s.wsHub.Run(srvCtx)

	// Stream bus events to WebSocket clients. The wildcard never matches
	// the final close event, so clients only see the public event stream.
	unsub, err := s.hub.Bus.Listen(event.MatchAll, job.KindCallback, func(_ context.Context, ev *event.Event) error {
		s.wsHub.Broadcast(ev.Type, ev.Map())
		return nil
	})
	if err != nil {
		return fmt.Errorf("attaching event stream: %w", err)
	}
	s.unsub = unsub

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.hub.Bus.Fire(event.TypeComponentLoaded, map[string]any{"component": "api"})
	return nil
}

// Close gracefully shuts down the API server.
//
// It detaches the event stream, waits up to 10 seconds for in-flight
// requests to complete, then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.unsub != nil {
		s.unsub()
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
