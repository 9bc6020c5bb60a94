package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/venus-bridge/internal/audit"
	"github.com/nerrad567/venus-bridge/internal/infrastructure/config"
	"github.com/nerrad567/venus-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/venus-bridge/internal/poller"
	"github.com/nerrad567/venus-bridge/internal/transition"
	"github.com/nerrad567/venus-bridge/internal/venus"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Controller is the poll loop as seen by the API.
type Controller interface {
	Status() poller.Status
	Submit(req poller.ModeRequest) (poller.ModeRequest, error)
}

// DeviceInfo exposes the device link's address and counters.
type DeviceInfo interface {
	Addr() string
	Stats() venus.Stats
}

// HistoryLister lists recorded transitions, newest first.
type HistoryLister interface {
	List(ctx context.Context, limit int) ([]transition.Summary, error)
}

// AuditTrail records and lists mode request audit entries.
type AuditTrail interface {
	Create(ctx context.Context, e *audit.Entry) error
	List(ctx context.Context, f audit.Filter) (*audit.ListResult, error)
}

// HealthChecker is implemented by components with a liveness probe.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// DBStatser reports connection pool statistics.
type DBStatser interface {
	Stats() sql.DBStats
}

// BrokerInfo lists the MQTT topics the bridge currently listens on.
type BrokerInfo interface {
	Subscriptions() []string
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger

	// Controller is required.
	Controller Controller

	// Optional collaborators.
	Device   DeviceInfo
	History  HistoryLister
	Audit    AuditTrail
	Database DBStatser
	Broker   BrokerInfo
	Checks   map[string]HealthChecker

	ExternalHub *Hub // If set, the server uses this hub instead of creating its own
	Version     string
}

// Server is the HTTP API server of the bridge.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	secCfg      config.SecurityConfig
	logger      *logging.Logger
	controller  Controller
	device      DeviceInfo
	history     HistoryLister
	audit       AuditTrail
	database    DBStatser
	broker      BrokerInfo
	checks      map[string]HealthChecker
	version     string
	startTime   time.Time
	tickets     *ticketStore
	registry    *prometheus.Registry
	server      *http.Server
	addr        string
	hub         *Hub
	externalHub bool
	cancel      context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Dependencies (logger and controller required)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Controller == nil {
		return nil, fmt.Errorf("controller is required")
	}

	s := &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		secCfg:     deps.Security,
		logger:     deps.Logger,
		controller: deps.Controller,
		device:     deps.Device,
		history:    deps.History,
		audit:      deps.Audit,
		database:   deps.Database,
		broker:     deps.Broker,
		checks:     deps.Checks,
		version:    deps.Version,
		startTime:  time.Now(),
		tickets:    newTicketStore(),
	}

	if deps.ExternalHub != nil {
		s.hub = deps.ExternalHub
		s.externalHub = true
	} else {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	s.registry = newRegistry(s)

	return s, nil
}

// Hub returns the server's WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the fully wired router. Start uses it for the listener.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start binds the listener and serves HTTP in a background goroutine.
//
// Parameters:
//   - ctx: Parent context for the hub and ticket cleanup goroutines
//
// Returns:
//   - error: If the address cannot be bound
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}
	go s.cleanTicketsLoop(srvCtx)

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.addr = ln.Addr().String()

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	s.logger.Info("API server starting", "address", s.addr, "auth", s.authEnabled())
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listener address, empty before Start.
func (s *Server) Addr() string {
	return s.addr
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
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

// HealthCheck verifies the API server is running.
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

// authEnabled reports whether bearer tokens are required.
func (s *Server) authEnabled() bool {
	return s.secCfg.JWT.Secret != ""
}
