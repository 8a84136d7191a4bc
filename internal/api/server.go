// Package api provides the HTTP REST API for the VoltHome sync backend.
//
// It exposes authentication, project CRUD, batch sync, delta queries,
// profile, and billing endpoints to mobile clients.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
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

	"github.com/volthome/volt-core/internal/audit"
	"github.com/volthome/volt-core/internal/auth"
	"github.com/volthome/volt-core/internal/billing"
	"github.com/volthome/volt-core/internal/infrastructure/config"
	"github.com/volthome/volt-core/internal/infrastructure/influxdb"
	"github.com/volthome/volt-core/internal/infrastructure/logging"
	"github.com/volthome/volt-core/internal/infrastructure/mqtt"
	"github.com/volthome/volt-core/internal/profile"
	"github.com/volthome/volt-core/internal/project"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Engine   *project.Engine
	Auth     *auth.Service
	Profiles profile.Repository
	Billing  *billing.Service
	Audit    *audit.Recorder
	AuditLog audit.Repository // optional: read side of the audit trail
	MQTT     *mqtt.Client     // optional: change announcements
	Metrics  *influxdb.Client // optional: sync metrics
	Version  string
}

// Server is the HTTP API server for the VoltHome backend.
//
// It manages the HTTP listener, routes, and middleware. The server is
// created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	secCfg    config.SecurityConfig
	logger    *logging.Logger
	engine    *project.Engine
	auth      *auth.Service
	profiles  profile.Repository
	billing   *billing.Service
	audit     *audit.Recorder
	auditRepo audit.Repository
	mqtt      *mqtt.Client
	metrics   *influxdb.Client
	limiter   *rateLimiter
	version   string
	server    *http.Server
	cancel    context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called. MQTT and Metrics
// are optional; everything else is required.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("sync engine is required")
	}
	if deps.Auth == nil {
		return nil, fmt.Errorf("auth service is required")
	}
	if deps.Profiles == nil {
		return nil, fmt.Errorf("profile repository is required")
	}
	if deps.Billing == nil {
		return nil, fmt.Errorf("billing service is required")
	}

	return &Server{
		cfg:       deps.Config,
		secCfg:    deps.Security,
		logger:    deps.Logger,
		engine:    deps.Engine,
		auth:      deps.Auth,
		profiles:  deps.Profiles,
		billing:   deps.Billing,
		audit:     deps.Audit,
		auditRepo: deps.AuditLog,
		mqtt:      deps.MQTT,
		metrics:   deps.Metrics,
		limiter:   newRateLimiter(deps.Security.RateLimit),
		version:   deps.Version,
	}, nil
}

// Start begins listening for HTTP connections.
//
// It builds the router and launches the HTTP listener in a background
// goroutine. The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	// Internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	// Periodically drop idle rate-limit buckets to bound memory.
	go s.limiter.cleanupLoop(srvCtx)

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
