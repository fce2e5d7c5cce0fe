package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

var fileUsed string

// FileUsed reports the config file the last Load read, empty when running on
// defaults and environment variables only.
func FileUsed() string { return fileUsed }

// Load loads configuration with priority order:
// 1. Environment variables (SIGHTLINE_ prefix)
// 2. Configuration file (config.yaml)
// 3. Default values
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/sightline/")
	v.AddConfigPath("./configs/")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("SIGHTLINE")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - continue with env vars and defaults
	}
	fileUsed = v.ConfigFileUsed()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")

	// Backend defaults track the localdev docker-compose ports
	v.SetDefault("backends.loki.endpoints", []string{"http://localhost:3100"})
	v.SetDefault("backends.loki.timeout", 5000)
	v.SetDefault("backends.prometheus.endpoints", []string{"http://localhost:9090"})
	v.SetDefault("backends.prometheus.timeout", 5000)
	v.SetDefault("backends.tempo.endpoints", []string{"http://localhost:3200"})
	v.SetDefault("backends.tempo.timeout", 5000)

	// Engine defaults
	v.SetDefault("engine.request_deadline", 10000)
	v.SetDefault("engine.max_concurrency", 3)
	v.SetDefault("engine.max_limit", 1000)
	v.SetDefault("engine.default_limit", 100)
	v.SetDefault("engine.facet_fields", []string{"service", "level"})
	v.SetDefault("engine.facet_top_n", 10)
	v.SetDefault("engine.tenant_label", "tenant_id")
	v.SetDefault("engine.breaker.failure_threshold", 5)
	v.SetDefault("engine.breaker.window", 60)
	v.SetDefault("engine.breaker.cooldown", 30)
	v.SetDefault("engine.result_cache.enabled", true)
	v.SetDefault("engine.result_cache.ttl", 60)

	// Cache defaults
	v.SetDefault("cache.nodes", []string{"localhost:6379"})
	v.SetDefault("cache.ttl", 300)
	v.SetDefault("cache.db", 0)

	// Rate limiting
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.per_minute", 600)

	// Monitoring
	v.SetDefault("monitoring.enabled", true)
	v.SetDefault("monitoring.metrics_path", "/metrics")
}

func validateConfig(cfg *Config) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", cfg.Port)
	}

	for name, backend := range map[string]BackendConfig{
		"loki":       cfg.Backends.Loki,
		"prometheus": cfg.Backends.Prometheus,
		"tempo":      cfg.Backends.Tempo,
	} {
		if len(backend.Endpoints) == 0 {
			return fmt.Errorf("backends.%s.endpoints must not be empty", name)
		}
		for _, ep := range backend.Endpoints {
			if err := ValidateEndpoint(ep); err != nil {
				return fmt.Errorf("backends.%s: %w", name, err)
			}
		}
		if backend.Timeout <= 0 {
			return fmt.Errorf("backends.%s.timeout must be positive", name)
		}
	}

	if cfg.Engine.MaxLimit < 1 {
		return fmt.Errorf("engine.max_limit must be at least 1")
	}
	if cfg.Engine.DefaultLimit < 1 || cfg.Engine.DefaultLimit > cfg.Engine.MaxLimit {
		return fmt.Errorf("engine.default_limit must be in [1, %d]", cfg.Engine.MaxLimit)
	}
	if cfg.Engine.MaxConcurrency < 1 {
		return fmt.Errorf("engine.max_concurrency must be at least 1")
	}
	if cfg.Engine.Breaker.FailureThreshold < 1 {
		return fmt.Errorf("engine.breaker.failure_threshold must be at least 1")
	}
	if cfg.Engine.Breaker.Cooldown < 1 || cfg.Engine.Breaker.Window < 1 {
		return fmt.Errorf("engine.breaker window and cooldown must be positive")
	}
	if cfg.Engine.TenantLabel == "" {
		return fmt.Errorf("engine.tenant_label must not be empty")
	}

	return nil
}
