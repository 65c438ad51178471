package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/backupwatch/backupwatch/internal/api/handlers"
	"github.com/backupwatch/backupwatch/internal/api/middleware"
	"github.com/backupwatch/backupwatch/internal/config"
	"github.com/backupwatch/backupwatch/internal/db"
	"github.com/backupwatch/backupwatch/internal/metrics"
)

type Server struct {
	Config *config.Config
	Router *gin.Engine
	Repo   *db.Repository
	Logger *zap.Logger
}

func NewServer(cfg *config.Config, repo *db.Repository, collector *metrics.Collector, logger *zap.Logger) *Server {
	gin.SetMode(cfg.Server.Mode)
	router := gin.New()

	// Middleware
	router.Use(middleware.Logger(logger))
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())

	server := &Server{
		Config: cfg,
		Router: router,
		Repo:   repo,
		Logger: logger,
	}

	server.setupRoutes(collector)
	return server
}

func (s *Server) setupRoutes(collector *metrics.Collector) {
	h := handlers.NewHandler(s.Repo, collector, s.Logger)

	// Unauthenticated surface
	s.Router.GET("/api/status", h.Status)
	s.Router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Agent API (API-key authenticated)
	limiter := middleware.NewRateLimiter(s.Config.Ingest.RateLimit, s.Config.Ingest.RateBurst)
	api := s.Router.Group("/api")
	api.Use(limiter.Middleware())
	api.Use(middleware.APIKeyAuth(s.Repo, s.Logger))
	{
		api.GET("/me", h.Me)
		api.GET("/rotinas", h.ListRoutines)
		api.GET("/hosts", h.ListHosts)
		api.GET("/hosts/:id/telemetria", h.ListHostTelemetry)
		api.GET("/execucoes", h.ListExecutions)
		api.POST("/backup", h.Backup)
		api.POST("/telemetry", h.Telemetry)
		api.POST("/heartbeat", h.Telemetry)
	}
}
