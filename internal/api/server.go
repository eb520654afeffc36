package api

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/printomat/printomat/internal/api/handlers"
	"github.com/printomat/printomat/internal/api/middleware"
	"github.com/printomat/printomat/internal/archive"
	"github.com/printomat/printomat/internal/config"
	"github.com/printomat/printomat/internal/core"
	"github.com/printomat/printomat/internal/db"
)

// Server wires the stores, the admission controller, and the printer session
// registry behind a single gin engine.
type Server struct {
	cfg    *config.Config
	logger *slog.Logger
	engine *gin.Engine
	http   *http.Server
}

func NewServer(cfg *config.Config, database *sql.DB, archiver *archive.Archiver, logger *slog.Logger) (*Server, error) {
	jobs := db.NewJobStore(database)
	settings := db.NewSettingsStore(database)
	metrics := core.NewMetrics(jobs)
	registry := core.NewSessionRegistry(metrics)
	admission := core.NewAdmissionController(jobs, cfg, cfg, logger, metrics)

	auth, err := middleware.NewAuthMiddleware(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize auth: %w", err)
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(logger))

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", gin.WrapH(metrics.Handler()))

	handlers.NewSubmitHandler(admission, registry, logger).RegisterRoutes(engine)
	handlers.NewPrinterHandler(jobs, cfg, registry, logger, metrics).RegisterRoutes(engine)

	authGroup := engine.Group("/api/auth")
	{
		authGroup.POST("/setup", auth.SetupHandler)
		authGroup.POST("/login", auth.LoginHandler)
		authGroup.POST("/logout", auth.LogoutHandler)
		authGroup.GET("/status", auth.StatusHandler)
	}

	apiGroup := engine.Group("/api")
	apiGroup.Use(auth.RequireAuth())
	handlers.NewAdminHandler(jobs, cfg, registry, archiver, logger).RegisterRoutes(apiGroup)

	return &Server{
		cfg:    cfg,
		logger: logger,
		engine: engine,
		http: &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
			Handler: engine,
			// The websocket upgrade hijacks its connection and clears these
			// deadlines, so they only bound plain HTTP requests.
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}, nil
}

func (s *Server) Run() error {
	s.logger.Info("server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Handler exposes the routing tree for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		// The websocket endpoint logs its own lifecycle.
		if c.Request.URL.Path == "/ws" {
			return
		}

		logger.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", c.ClientIP(),
		)
	}
}
