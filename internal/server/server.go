package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"literary-archive/config"
	"literary-archive/internal/handler"
	"literary-archive/internal/middleware"
	"literary-archive/internal/redis"
	"literary-archive/internal/transport/httpdto"
	archive_errors "literary-archive/pkg/errors"
	"literary-archive/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	config     *config.Config
	logger     *logger.Logger
}

var (
	ReleaseMode = "release"
	DebugMode   = "debug"
	TestMode    = "test"
)

type Handlers struct {
	Upload  *handler.UploadHandler
	Cleanup *handler.CleanupHandler
}

// HealthCheck reports whether a backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Options struct {
	Limiter *redis.RateLimiter
	Health  map[string]HealthCheck
}

func New(cfg *config.Config, l *logger.Logger) *Server {
	if cfg.AppMode == ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	} else if cfg.AppMode == TestMode {
		gin.SetMode(gin.TestMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%s", cfg.AppPort),
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
		engine: engine,
		config: cfg,
		logger: l,
	}
}

// Engine exposes the router for tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) SetupRoutes(handlers *Handlers, opts Options) {
	s.engine.Use(middleware.RequestIDMiddleware())
	s.engine.Use(middleware.CORSMiddleware(s.config.CORSAllowedOrigins))
	s.engine.Use(middleware.LoggingMiddleware(s.logger))
	s.engine.Use(middleware.ErrorHandler(s.logger))

	s.engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, httpdto.NewStatusResponse("pong"))
	})

	s.engine.GET("/health", func(c *gin.Context) {
		for name, check := range opts.Health {
			if err := check(c.Request.Context()); err != nil {
				if s.logger != nil {
					s.logger.Warn(c.Request.Context(), "health check failed", zap.String("dependency", name), zap.Error(err))
				}
				c.JSON(http.StatusServiceUnavailable, httpdto.NewErrorResponse(name+" unavailable", "unhealthy"))
				return
			}
		}
		c.JSON(http.StatusOK, httpdto.NewStatusResponse("healthy"))
	})

	uploads := s.engine.Group("/v1/uploads")
	{
		uploads.POST("/token", middleware.IssueRateLimitMiddleware(opts.Limiter, s.logger), handlers.Upload.IssueToken)
		uploads.POST("/finalize", handlers.Upload.Finalize)
		uploads.POST("/cancel", handlers.Upload.Cancel)
	}

	internal := s.engine.Group("/v1/internal")
	internal.Use(middleware.CronAuthMiddleware(s.config.CleanupSecret))
	{
		internal.POST("/cleanup", handlers.Cleanup.Run)
	}

	s.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, httpdto.NewErrorResponse("route not found", archive_errors.CodeNotFound))
	})
}

// Start serves until SIGINT or SIGTERM, then shuts down gracefully.
func (s *Server) Start() error {
	go func() {
		if s.logger != nil {
			s.logger.Infof("Starting the server on port %s...", s.config.AppPort)
		}
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if s.logger != nil {
				s.logger.Errorf("Error in starting the server: %s", err)
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	if s.logger != nil {
		s.logger.Infof("Server is running on :%s", s.config.AppPort)
	}

	<-quit

	if s.logger != nil {
		s.logger.Infof("Quitting signal received.. Shutting down after 5 seconds")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		if s.logger != nil {
			s.logger.Infof("Error in the graceful shutdown of the server: %s", err)
		}
		return err
	}

	if s.logger != nil {
		s.logger.Infof("Server stopped gracefully")
	}

	return nil
}
