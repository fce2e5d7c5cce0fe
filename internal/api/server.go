package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sightline-obs/sightline-core/internal/api/handlers"
	"github.com/sightline-obs/sightline-core/internal/api/middleware"
	"github.com/sightline-obs/sightline-core/internal/config"
	"github.com/sightline-obs/sightline-core/internal/services"
	"github.com/sightline-obs/sightline-core/pkg/logger"
)

// Version is stamped at build time.
var Version = "dev"

// Server is the HTTP surface of sightline-core.
type Server struct {
	cfg    *config.Config
	engine *services.SearchEngine
	logger logger.Logger
	http   *http.Server
}

func NewServer(cfg *config.Config, engine *services.SearchEngine, log logger.Logger) *Server {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.Metrics())
	router.Use(middleware.CORS(cfg.CORS))

	searchHandler := handlers.NewSearchHandler(engine, log)
	healthHandler := handlers.NewHealthHandler(engine, Version)

	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)
	if cfg.Monitoring.Enabled {
		path := cfg.Monitoring.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		router.GET(path, gin.WrapH(promhttp.Handler()))
	}

	v1 := router.Group("/api/v1")
	v1.Use(middleware.TenantMiddleware(log))
	v1.Use(middleware.RateLimiter(cfg.RateLimit))
	{
		v1.POST("/search", searchHandler.Search)
		v1.POST("/search/facets", searchHandler.Facets)
		v1.GET("/search/correlate/:correlationId", searchHandler.Correlate)
		v1.GET("/search/health", healthHandler.Breakers)
	}

	return &Server{
		cfg:    cfg,
		engine: engine,
		logger: log,
		http: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Start blocks serving requests until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "port", s.cfg.Port, "environment", s.cfg.Environment)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.http.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}
