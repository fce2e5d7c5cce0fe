package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sightline-obs/sightline-core/internal/api"
	"github.com/sightline-obs/sightline-core/internal/config"
	"github.com/sightline-obs/sightline-core/internal/models"
	"github.com/sightline-obs/sightline-core/internal/services"
	"github.com/sightline-obs/sightline-core/pkg/cache"
	"github.com/sightline-obs/sightline-core/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}

	log := logger.New(cfg.LogLevel)
	log.Info("starting sightline-core",
		"version", api.Version,
		"environment", cfg.Environment,
		"port", cfg.Port,
	)

	valkey := connectCache(cfg, log)
	engine := buildEngine(cfg, valkey, log)
	server := api.NewServer(cfg, engine, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if path := config.FileUsed(); path != "" {
		watcher := config.NewWatcher(path, log)
		watcher.Subscribe(func(updated *config.Config) {
			log.Info("configuration reloaded", "log_level", updated.LogLevel)
		})
		go func() {
			if err := watcher.Start(ctx); err != nil {
				log.Warn("config watcher stopped", "error", err)
			}
		}()
	}

	go func() {
		if err := server.Start(); err != nil {
			log.Fatal("http server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	log.Info("sightline-core stopped")
}

// connectCache prefers Valkey and degrades to the in-memory cache so the
// search path keeps working without the external dependency.
func connectCache(cfg *config.Config, log logger.Logger) cache.Valkey {
	if len(cfg.Cache.Nodes) == 0 {
		log.Warn("no cache nodes configured, using in-memory cache")
		return cache.NewNoopValkey(log)
	}
	ttl := time.Duration(cfg.Cache.TTL) * time.Second
	valkey, err := cache.NewValkey(cfg.Cache.Nodes[0], cfg.Cache.Password, cfg.Cache.DB, ttl, log)
	if err != nil {
		log.Warn("valkey unreachable, using in-memory cache", "error", err)
		return cache.NewNoopValkey(log)
	}
	log.Info("connected to valkey", "node", cfg.Cache.Nodes[0])
	return valkey
}

func buildEngine(cfg *config.Config, valkey cache.Valkey, log logger.Logger) *services.SearchEngine {
	adapters := map[models.SourceType]services.BackendAdapter{
		models.SourceLogs:    services.NewLokiService(cfg.Backends.Loki, log),
		models.SourceMetrics: services.NewPrometheusService(cfg.Backends.Prometheus, log),
		models.SourceTraces:  services.NewTempoService(cfg.Backends.Tempo, log),
	}
	breakers := services.NewBreakerTable(cfg.Engine.Breaker, models.AllSources)
	return services.NewSearchEngine(adapters, breakers, valkey, cfg.Engine, log)
}
