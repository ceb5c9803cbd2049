package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
	"go.uber.org/zap"

	"github.com/late24/playrank/internal/api/middleware"
	"github.com/late24/playrank/internal/api/rest"
	"github.com/late24/playrank/internal/logger"
)

// Config holds the server configuration
type Config struct {
	Debug            bool
	Host             string
	Port             int
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	IngestRatePerSec int
	Auth             middleware.AuthConfig
}

// Server wraps the HTTP server
type Server struct {
	config     Config
	service    rest.Service
	limiter    *redis_rate.Limiter
	httpServer *http.Server
}

// New creates a new API server; limiter may be nil to disable throttling
func New(cfg Config, svc rest.Service, limiter *redis_rate.Limiter) *Server {
	return &Server{
		config:  cfg,
		service: svc,
		limiter: limiter,
	}
}

// Start initializes and starts the HTTP server
func (s *Server) Start() error {
	// Set Gin mode based on debug flag
	if s.config.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Create Gin router
	router := gin.New()

	// Setup middleware
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger())
	router.Use(middleware.SetupCORS())

	// Create REST handler and routes
	restHandler := rest.NewHandler(s.service)

	var rateLimit gin.HandlerFunc
	if s.limiter != nil && s.config.IngestRatePerSec > 0 {
		rateLimit = middleware.RateLimit(s.limiter, s.config.IngestRatePerSec)
	}
	rest.SetupRoutes(router, restHandler, s.config.Auth, rateLimit)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	logger.Info("Starting API server",
		zap.String("address", addr),
	)

	// Start server
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info("Shutting down API server")

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
	}

	return nil
}
