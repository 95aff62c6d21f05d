package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agentpost/internal/config"
	"agentpost/internal/handler"
	"agentpost/internal/middleware"
	"agentpost/internal/ratelimit"
	"agentpost/internal/services"
	"agentpost/internal/store"
	"agentpost/internal/transport/httpdto"
	"agentpost/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	config     *config.Config
	logger     *logger.Logger
}

var (
	ReleaseMode = "production"
	TestMode    = "test"
)

type Handlers struct {
	Messages *handler.MessageHandler
	Agents   *handler.AgentHandler
	Admin    *handler.AdminHandler
	Stream   *handler.StreamHandler
}

func New(cfg *config.Config, l *logger.Logger) *Server {
	switch cfg.Server.Environment {
	case ReleaseMode:
		gin.SetMode(gin.ReleaseMode)
	case TestMode:
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	return &Server{
		httpServer: &http.Server{
			Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
			Handler: engine,
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

func (s *Server) SetupRoutes(handlers *Handlers, admin *services.AdminService, limiter *ratelimit.Limiter, st store.RecordStore) {
	s.engine.Use(middleware.RequestIDMiddleware())
	s.engine.Use(middleware.LoggingMiddleware(s.logger))
	s.engine.Use(middleware.ErrorHandler(s.logger))

	s.engine.GET("/healthz", func(c *gin.Context) {
		if err := st.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, httpdto.NewErrorResponse(err.Error(), "UNHEALTHY"))
			return
		}
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"status": "healthy"}))
	})

	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	byIP := middleware.IdentityFromIP()

	v1 := s.engine.Group("/v1")
	{
		v1.POST("/messages", handlers.Messages.Send)
		v1.GET("/messages/:id", handlers.Messages.Get)
		v1.POST("/messages/:id/read",
			middleware.FailedRequestGate(limiter, byIP),
			middleware.RateLimitMiddleware(limiter, ratelimit.ScopeRead, limiter.LimitFor(true), byIP),
			handlers.Messages.MarkRead)
		v1.POST("/messages/:id/reply",
			middleware.FailedRequestGate(limiter, byIP),
			middleware.RateLimitMiddleware(limiter, ratelimit.ScopeReply, limiter.LimitFor(true), byIP),
			handlers.Messages.Reply)

		v1.POST("/agents",
			middleware.FailedRequestGate(limiter, byIP),
			middleware.RateLimitMiddleware(limiter, ratelimit.ScopeRegister, limiter.LimitFor(false), byIP),
			handlers.Agents.Register)
		v1.GET("/agents/:address", handlers.Agents.Get)
		v1.GET("/agents/:address/inbox", handlers.Messages.ListInbox)
		v1.GET("/agents/:address/outbox", handlers.Messages.ListOutbox)
		v1.GET("/agents/:address/stream", handlers.Stream.Handle)
	}

	adminGroup := s.engine.Group("/admin")
	{
		adminGroup.POST("/login",
			middleware.FailedRequestGate(limiter, byIP),
			handlers.Admin.Login)
		adminGroup.DELETE("/agents/:address",
			middleware.AdminAuthMiddleware(admin),
			handlers.Admin.PurgeAgent)
		adminGroup.POST("/agents/:address/rebuild-index",
			middleware.AdminAuthMiddleware(admin),
			handlers.Admin.RebuildIndex)
	}
}

func (s *Server) Start() error {
	go func() {
		if s.logger != nil {
			s.logger.Infof("Starting the server on port %s...", s.config.Server.Port)
		}
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if s.logger != nil {
				s.logger.Errorf("Error in starting the server: %s", err)
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

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
