package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/skyeyinkun/homelink-core/internal/audit"
	"github.com/skyeyinkun/homelink-core/internal/device"
	"github.com/skyeyinkun/homelink-core/internal/hass"
	"github.com/skyeyinkun/homelink-core/internal/infrastructure/influxdb"
	"github.com/skyeyinkun/homelink-core/internal/infrastructure/config"
	"github.com/skyeyinkun/homelink-core/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// DeviceAnnouncer retracts externally published state for a device
// whose binding was removed. *mqtt.Announcer satisfies it.
type DeviceAnnouncer interface {
	RetractDevice(deviceID int) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	WS         config.WSConfig
	Logger     *logging.Logger
	Supervisor *hass.Supervisor
	Stream     *hass.Stream
	Registry   *hass.RegistrySet
	Refresher  *hass.Refresher
	Rest       *hass.RestClient
	Catalog    *device.Catalog
	History    *influxdb.Client
	Audit      audit.Repository
	Announcer  DeviceAnnouncer
	Version    string
}

// Server is the HTTP API server for Homelink Core.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WSConfig
	logger     *logging.Logger
	supervisor *hass.Supervisor
	stream     *hass.Stream
	registry   *hass.RegistrySet
	refresher  *hass.Refresher
	rest       *hass.RestClient
	catalog    *device.Catalog
	history    *influxdb.Client
	audit      audit.Repository
	announcer  DeviceAnnouncer
	version    string
	server     *http.Server
	hub        *Hub
	cancel     context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Supervisor == nil {
		return nil, fmt.Errorf("connection supervisor is required")
	}
	if deps.Catalog == nil {
		return nil, fmt.Errorf("device catalog is required")
	}
	// Stream, registry, refresher and rest client are optional; the
	// matching endpoints degrade to empty or unavailable responses.

	return &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		logger:     deps.Logger,
		supervisor: deps.Supervisor,
		stream:     deps.Stream,
		registry:   deps.Registry,
		refresher:  deps.Refresher,
		rest:       deps.Rest,
		catalog:    deps.Catalog,
		history:    deps.History,
		audit:      deps.Audit,
		announcer:  deps.Announcer,
		version:    deps.Version,
	}, nil
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub, wires the entity
// stream and supervisor into the hub for real-time broadcast, and
// launches the HTTP listener in a background goroutine. The server is
// stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	// Internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.hub = NewHub(s.wsCfg, s.logger)
	go s.hub.Run(srvCtx)

	if s.stream != nil {
		s.stream.OnStateChange(func(st hass.EntityState) {
			s.hub.Broadcast(ChannelEntityState, st)
		})
	}
	s.supervisor.Subscribe(func(status hass.Status) {
		s.hub.Broadcast(ChannelConnection, statusResponse(status))
	})

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
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
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
