// Package api provides the HTTP REST API and WebSocket server for
// Fieldtrace Core.
//
// It exposes device and session management, telemetry ingestion,
// geofence CRUD, the statistics graph queries, and a live feed of
// accepted telemetry and geofence alerts over WebSocket.
//
// The server follows the same lifecycle pattern as the other
// infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fieldtrace/fieldtrace-core/internal/auth"
	"github.com/fieldtrace/fieldtrace-core/internal/device"
	"github.com/fieldtrace/fieldtrace-core/internal/geofence"
	"github.com/fieldtrace/fieldtrace-core/internal/infrastructure/config"
	"github.com/fieldtrace/fieldtrace-core/internal/infrastructure/logging"
	"github.com/fieldtrace/fieldtrace-core/internal/ingest"
	"github.com/fieldtrace/fieldtrace-core/internal/phase"
	"github.com/fieldtrace/fieldtrace-core/internal/session"
	"github.com/fieldtrace/fieldtrace-core/internal/stats"
	"github.com/fieldtrace/fieldtrace-core/internal/telemetry"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight
// requests to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	WS        config.WebSocketConfig
	Logger    *logging.Logger
	Devices   *device.Registry
	Phases    phase.Repository
	Sessions  *session.Service
	Geofences *geofence.Service
	Telemetry *telemetry.SQLiteStore
	Stats     *stats.Engine
	Pipeline  *ingest.Pipeline

	// Capability is the external operator permission gate. Nil means
	// every operator mutation is allowed (development mode).
	Capability auth.CapabilityFunc

	Version string
}

// Server is the HTTP API server for Fieldtrace Core.
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	logger    *logging.Logger
	devices   *device.Registry
	phases    phase.Repository
	sessions  *session.Service
	geofences *geofence.Service
	telemetry *telemetry.SQLiteStore
	stats     *stats.Engine
	pipeline  *ingest.Pipeline
	hasCap    auth.CapabilityFunc
	version   string

	server *http.Server
	hub    *Hub
	cancel context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Sessions == nil {
		return nil, fmt.Errorf("session service is required")
	}
	if deps.Pipeline == nil {
		return nil, fmt.Errorf("ingestion pipeline is required")
	}

	hasCap := deps.Capability
	if hasCap == nil {
		hasCap = auth.AllowAll
	}

	return &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		devices:   deps.Devices,
		phases:    deps.Phases,
		sessions:  deps.Sessions,
		geofences: deps.Geofences,
		telemetry: deps.Telemetry,
		stats:     deps.Stats,
		pipeline:  deps.Pipeline,
		hasCap:    hasCap,
		version:   deps.Version,
	}, nil
}

// Hub returns the WebSocket hub. Only valid after Start().
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub, registers the live feed with the
// ingestion pipeline, and launches the HTTP listener in a background
// goroutine. The server is stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.hub = NewHub(s.wsCfg, s.logger)
	go s.hub.Run(srvCtx)

	// Accepted telemetry and geofence alerts flow to subscribed
	// WebSocket clients.
	s.pipeline.AddNotifier(&hubNotifier{hub: s.hub})

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
