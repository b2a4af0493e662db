package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	modbus "github.com/nerrad567/modbus-mapper/internal/bridges/modbus"
	"github.com/nerrad567/modbus-mapper/internal/device"
	"github.com/nerrad567/modbus-mapper/internal/infrastructure/config"
	"github.com/nerrad567/modbus-mapper/internal/infrastructure/database"
	"github.com/nerrad567/modbus-mapper/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// BridgeMetricsProvider exposes the bridge counters shown by /api/v1/metrics.
type BridgeMetricsProvider interface {
	GetMetrics() modbus.BridgeMetrics
}

// MQTTStatus reports the state of the MQTT session.
type MQTTStatus interface {
	IsConnected() bool
	SubscriptionCount() int
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config config.APIConfig
	WS     config.WebSocketConfig
	Logger *logging.Logger

	// Store and Cache are read for the device views.
	Store *modbus.ProfileStore
	Cache *modbus.ActualValueCache

	Status  *device.StatusRegistry
	History device.PropertyHistoryRepository // nil when the database is disabled

	Bridge   BridgeMetricsProvider
	MQTT     MQTTStatus
	DB       *database.DB
	Gatherer prometheus.Gatherer // serves /metrics when set

	ExternalHub *Hub // If set, the server uses this hub instead of creating its own
	Version     string
}

// Server is the read-only status API of the mapper.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	logger      *logging.Logger
	store       *modbus.ProfileStore
	cache       *modbus.ActualValueCache
	status      *device.StatusRegistry
	history     device.PropertyHistoryRepository
	bridge      BridgeMetricsProvider
	mqtt        MQTTStatus
	db          *database.DB
	gatherer    prometheus.Gatherer
	version     string
	startTime   time.Time
	server      *http.Server
	hub         *Hub
	externalHub bool               // true if hub was injected externally
	cancel      context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Logger, Store and Cache are required; everything else is optional
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("profile store is required")
	}
	if deps.Cache == nil {
		return nil, fmt.Errorf("value cache is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		store:     deps.Store,
		cache:     deps.Cache,
		status:    deps.Status,
		history:   deps.History,
		bridge:    deps.Bridge,
		mqtt:      deps.MQTT,
		db:        deps.DB,
		gatherer:  deps.Gatherer,
		version:   deps.Version,
		startTime: time.Now(),
	}
	if s.status == nil {
		s.status = device.NewStatusRegistry()
	}

	// The bridge needs the hub as its broadcaster before the server starts,
	// so main usually creates it and passes it in.
	if deps.ExternalHub != nil {
		s.hub = deps.ExternalHub
		s.externalHub = true
	}

	return s, nil
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub if it owns one, and
// launches the HTTP listener in a background goroutine. The server can be
// stopped with Close().
//
// Parameters:
//   - ctx: Parent context for the hub; the listener lives until Close()
//
// Returns:
//   - error: Always nil; listener errors are logged
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
		go s.hub.Run(srvCtx)
	}

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
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
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

// Hub returns the WebSocket hub, or nil before Start when none was injected.
func (s *Server) Hub() *Hub {
	return s.hub
}

// HealthCheck verifies the API server has been started.
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
