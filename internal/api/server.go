package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/trial-eligibility-server/internal/domain"
	"github.com/trial-eligibility-server/internal/middleware"
	"github.com/trial-eligibility-server/internal/service"
	"github.com/trial-eligibility-server/internal/trial"
)

// Server is the HTTP front end: trial registration, criteria parsing,
// and eligibility checks.
type Server struct {
	cfg         *domain.Config
	eligibility *service.EligibilityService
	trials      trial.Store
	log         *logrus.Logger
	router      *gin.Engine
	server      *http.Server
}

// NewServer creates a new HTTP server instance.
func NewServer(cfg *domain.Config, eligibility *service.EligibilityService, trials trial.Store, logger *logrus.Logger) *Server {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(middleware.AuditLogger())
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.SecurityHeaders())

	server := &Server{
		cfg:         cfg,
		eligibility: eligibility,
		trials:      trials,
		log:         logger,
		router:      router,
	}

	server.setupRoutes()

	return server
}

// Start starts the HTTP server and blocks until the context is canceled,
// then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.cfg.Server
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes.
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/trials", s.handleRegisterTrial)
		v1.GET("/trials", s.handleListTrials)
		v1.GET("/trials/export", s.handleExportTrials)
		v1.GET("/trials/:id", s.handleGetTrial)
		v1.DELETE("/trials/:id", s.handleDeleteTrial)
		v1.GET("/trials/:id/criteria", s.handleGetCriteria)

		v1.POST("/criteria/parse", s.handleParseCriteria)

		v1.POST("/eligibility/check", s.handleCheckEligibility)
		v1.GET("/eligibility/stream", s.handleEligibilityStream)
	}
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
		"version":   "1.0.0",
	})
}

// corsMiddleware adds CORS headers to responses.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, X-API-Key")
		c.Header("Access-Control-Expose-Headers", "Content-Length")
		c.Header("Access-Control-Allow-Credentials", "true")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
