package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/wrenfield/monome-core/internal/infrastructure/config"
	"github.com/wrenfield/monome-core/internal/infrastructure/logging"
	"github.com/wrenfield/monome-core/internal/infrastructure/mqtt"
	"github.com/wrenfield/monome-core/internal/monitor"
	"github.com/wrenfield/monome-core/internal/monome"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight
// requests to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// SessionInfo is the read-only session surface the API serves.
// Satisfied by *monome.Session.
type SessionInfo interface {
	State() monome.State
	Prefix() string
	Port() int
	Stats() monome.SessionStats
}

// DeviceSource provides the live device roster and session lookup.
// The runtime adapts *serialosc.Client to this interface.
type DeviceSource interface {
	Devices() []*monome.Device
	Session(key monome.Key) (SessionInfo, bool)
}

// MQTTSubscriber is the broker surface used to relay bus topics to
// WebSocket clients. Satisfied by *mqtt.Client.
type MQTTSubscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// HealthChecker reports the health of one component.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	WS      config.WebSocketConfig
	Logger  *logging.Logger
	Devices DeviceSource

	// Monitor is optional; when set, event and traffic queries are served.
	Monitor *monitor.Recorder

	// MQTT is optional; when set, device topics are relayed to the
	// WebSocket hub.
	MQTT MQTTSubscriber

	// Checkers lists components surfaced by the health endpoint,
	// keyed by component name.
	Checkers map[string]HealthChecker

	Version string
}

// Server is the HTTP API server for monomed.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg      config.APIConfig
	wsCfg    config.WebSocketConfig
	logger   *logging.Logger
	devices  DeviceSource
	monitor  *monitor.Recorder
	mqtt     MQTTSubscriber
	checkers map[string]HealthChecker
	version  string

	server  *http.Server
	hub     *Hub
	started time.Time
	cancel  context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Devices == nil {
		return nil, fmt.Errorf("device source is required")
	}
	// MQTT and Monitor are optional; without them the WebSocket relay
	// and history queries are disabled but the REST surface still works.

	return &Server{
		cfg:      deps.Config,
		wsCfg:    deps.WS,
		logger:   deps.Logger,
		devices:  deps.Devices,
		monitor:  deps.Monitor,
		mqtt:     deps.MQTT,
		checkers: deps.Checkers,
		version:  deps.Version,
	}, nil
}

// Hub returns the WebSocket hub. Nil until Start() is called.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub, subscribes to MQTT
// device topics for real-time WebSocket broadcast, and launches the
// HTTP listener in a background goroutine. The server is stopped with
// Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.hub = NewHub(s.wsCfg, s.logger)
	go s.hub.Run(srvCtx)

	if err := s.subscribeBusTopics(); err != nil {
		s.logger.Warn("failed to subscribe to bus topics for WebSocket", "error", err)
	}

	s.started = time.Now()
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
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
// It waits up to 10 seconds for in-flight requests to complete, then
// forcefully closes remaining connections.
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
