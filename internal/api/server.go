// Package api exposes the HTTP surface: authentication, device
// provisioning, sensor readings (user and device-key ingest), alerts,
// notifications and settings. Handlers translate the core taxonomy to
// status codes and never carry domain logic of their own.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"homesense.dev/backend/internal/alerts"
	"homesense.dev/backend/internal/auth"
	"homesense.dev/backend/internal/notify"
	"homesense.dev/backend/internal/ownership"
	"homesense.dev/backend/internal/provision"
	"homesense.dev/backend/pkg/metrics"
	"homesense.dev/backend/pkg/mq"
)

// ServerConfig holds the configuration for the API server.
type ServerConfig struct {
	Logger    *slog.Logger
	DB        *gorm.DB
	Queue     mq.ClientInterface // optional transport handoff
	Metrics   *metrics.APIMetrics
	JWTSecret string
	HTTPPort  int
}

// Server is the HTTP API server.
type Server struct {
	logger      *slog.Logger
	db          *gorm.DB
	config      *ServerConfig
	httpServer  *http.Server
	authSvc     *auth.Service
	owner       *ownership.Resolver
	alerts      *alerts.Manager
	notify      *notify.Policy
	provisioner *provision.Provisioner
	metrics     *metrics.APIMetrics
}

// NewServer creates a new API Server instance.
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.DB == nil {
		return nil, errors.New("database cannot be nil")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("jwt secret cannot be empty")
	}

	authSvc, err := auth.NewService(cfg.Logger, cfg.DB, cfg.JWTSecret)
	if err != nil {
		return nil, err
	}

	owner, err := ownership.NewResolver(cfg.DB)
	if err != nil {
		return nil, err
	}

	alertMgr, err := alerts.NewManager(cfg.Logger, cfg.DB)
	if err != nil {
		return nil, err
	}

	policy, err := notify.NewPolicy(cfg.Logger, cfg.DB, cfg.Queue)
	if err != nil {
		return nil, err
	}

	provisioner, err := provision.NewProvisioner(cfg.Logger, cfg.DB)
	if err != nil {
		return nil, err
	}

	return &Server{
		logger:      cfg.Logger,
		db:          cfg.DB,
		config:      cfg,
		authSvc:     authSvc,
		owner:       owner,
		alerts:      alertMgr,
		notify:      policy,
		provisioner: provisioner,
		metrics:     cfg.Metrics,
	}, nil
}

// Router builds the gin engine with all routes registered. Exposed
// separately from Run so tests can drive it with httptest.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestIDMiddleware())
	r.Use(s.metricsMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api")

	// Public routes.
	api.POST("/auth/register", s.handleRegister)
	api.POST("/auth/login", s.handleLogin)

	// Device-key ingest: authenticated by the device access key, not a
	// user token.
	api.POST("/ingest", s.handleIngest)

	// User-authenticated routes.
	authed := api.Group("")
	authed.Use(s.authMiddleware())
	{
		authed.GET("/auth/profile", s.handleProfile)

		authed.POST("/devices", s.handleCreateDevice)
		authed.GET("/devices", s.handleListDevices)
		authed.GET("/devices/:id", s.handleGetDevice)
		authed.PUT("/devices/:id", s.handleUpdateDevice)
		authed.DELETE("/devices/:id", s.handleDeleteDevice)
		authed.PUT("/devices/:id/regenerate-key", s.handleRegenerateKey)
		authed.GET("/devices/:id/sensors", s.handleDeviceSensors)
		authed.GET("/devices/:id/sensors/structured", s.handleDeviceSensorsStructured)
		authed.GET("/devices/:id/sensors/readings", s.handleDeviceSensorsWithReadings)

		authed.GET("/sensors/:id", s.handleGetSensor)
		authed.PUT("/sensors/:id", s.handleUpdateSensor)

		authed.POST("/readings", s.handleCreateReading)
		authed.GET("/readings", s.handleListReadings)
		authed.GET("/readings/sensor/:sensorId", s.handleSensorReadings)
		authed.DELETE("/readings/:id", s.handleDeleteReading)

		authed.POST("/alerts", s.handleCreateAlert)
		authed.GET("/alerts", s.handleListAlerts)
		authed.GET("/alerts/:id", s.handleGetAlert)
		authed.PUT("/alerts/:id", s.handleUpdateAlert)
		authed.PATCH("/alerts/:id/resolve", s.handleResolveAlert)
		authed.DELETE("/alerts/:id", s.handleDeleteAlert)

		authed.POST("/notifications", s.handleCreateNotification)
		authed.GET("/notifications", s.handleListNotifications)
		authed.GET("/notifications/:id", s.handleGetNotification)
		authed.PUT("/notifications/:id", s.handleUpdateNotification)
		authed.PATCH("/notifications/:id/read", s.handleMarkNotificationRead)
		authed.DELETE("/notifications/:id", s.handleDeleteNotification)

		authed.POST("/settings", s.handleCreateSettings)
		authed.GET("/settings", s.handleListSettings)
		authed.GET("/settings/:id", s.handleGetSettings)
		authed.PUT("/settings/:id", s.handleUpdateSettings)
		authed.DELETE("/settings/:id", s.handleDeleteSettings)
	}

	return r
}

// Run starts the API server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting api server")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.HTTPPort),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("starting HTTP server", "address", s.httpServer.Addr)

	httpErr := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- fmt.Errorf("HTTP server error: %w", err)
		}
		close(httpErr)
	}()

	s.logger.Info("api server started successfully")

	select {
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
	case <-ctx.Done():
		s.logger.Info("context canceled")
	case err := <-httpErr:
		if err != nil {
			s.logger.Error("HTTP server error", "error", err)
			cancel()
			return err
		}
	}

	return s.shutdown()
}

// shutdown gracefully stops the HTTP server.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down api server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown error: %w", err)
	}

	s.logger.Info("api server stopped")
	return nil
}
