package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/gray-logic-node/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-node/internal/node"
	"github.com/nerrad567/gray-logic-node/internal/settings"
)

const (
	// gracefulShutdownTimeout is the maximum time to wait for in-flight
	// requests during shutdown.
	gracefulShutdownTimeout = 5 * time.Second

	readTimeout  = 5 * time.Second
	writeTimeout = 10 * time.Second
	idleTimeout  = 60 * time.Second
)

// SessionView is the read-only session state shown on /healthz.
// *node.Session satisfies it.
type SessionView interface {
	Connected() bool
	Updating() bool
	Halted() bool
}

// HealthChecker is implemented by infrastructure clients.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies of the diagnostics server.
type Deps struct {
	Config   config.DiagnosticsConfig
	Logger   *logging.Logger
	Identity node.Identity
	Session  SessionView
	System   node.SystemInfo

	// Store is optional; /settings and /updates answer 503 without it.
	Store settings.Store

	// Checks are run by /healthz, keyed by component name.
	Checks map[string]HealthChecker
}

// Server is the diagnostics HTTP server.
type Server struct {
	cfg      config.DiagnosticsConfig
	logger   *logging.Logger
	identity node.Identity
	session  SessionView
	system   node.SystemInfo
	store    settings.Store
	checks   map[string]HealthChecker

	server   *http.Server
	listener net.Listener
}

// New creates a diagnostics server. It is not listening until Start.
//
// Returns:
//   - *Server: configured server
//   - error: if a required dependency is missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Session == nil {
		return nil, fmt.Errorf("session view is required")
	}
	if deps.System == nil {
		return nil, fmt.Errorf("system info is required")
	}

	return &Server{
		cfg:      deps.Config,
		logger:   deps.Logger,
		identity: deps.Identity,
		session:  deps.Session,
		system:   deps.System,
		store:    deps.Store,
		checks:   deps.Checks,
	}, nil
}

// Handler returns the router without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start binds the configured address and serves in the background.
// Binding happens before Start returns so a port conflict is reported
// to the caller.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	go func() {
		s.logger.Info("diagnostics server listening", "address", ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("diagnostics server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts the server down.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("diagnostics server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down diagnostics server: %w", err)
	}
	return nil
}
