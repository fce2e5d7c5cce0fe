package config

import "time"

type Config struct {
	Environment string `mapstructure:"environment" yaml:"environment"`
	Port        int    `mapstructure:"port" yaml:"port"`
	LogLevel    string `mapstructure:"log_level" yaml:"log_level"`

	Backends   BackendsConfig   `mapstructure:"backends" yaml:"backends"`
	Engine     EngineConfig     `mapstructure:"engine" yaml:"engine"`
	Cache      CacheConfig      `mapstructure:"cache" yaml:"cache"`
	CORS       CORSConfig       `mapstructure:"cors" yaml:"cors"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit" yaml:"rate_limit"`
	Monitoring MonitoringConfig `mapstructure:"monitoring" yaml:"monitoring"`
}

// BackendsConfig wires the three observability stores the engine fans out to.
type BackendsConfig struct {
	Loki       BackendConfig `mapstructure:"loki" yaml:"loki"`
	Prometheus BackendConfig `mapstructure:"prometheus" yaml:"prometheus"`
	Tempo      BackendConfig `mapstructure:"tempo" yaml:"tempo"`
}

// BackendConfig is the per-store HTTP client configuration.
type BackendConfig struct {
	// Optional friendly name for this backend, used in logs and metrics
	Name      string   `mapstructure:"name" yaml:"name"`
	Endpoints []string `mapstructure:"endpoints" yaml:"endpoints"`
	Timeout   int      `mapstructure:"timeout" yaml:"timeout"` // milliseconds
	Username  string   `mapstructure:"username" yaml:"username"`
	Password  string   `mapstructure:"password" yaml:"password"`
}

// EngineConfig holds the cross-signal search engine tunables.
type EngineConfig struct {
	// RequestDeadline bounds one whole fan-out, in milliseconds.
	RequestDeadline int `mapstructure:"request_deadline" yaml:"request_deadline"`
	// MaxConcurrency caps concurrently running backend sub-queries.
	MaxConcurrency int `mapstructure:"max_concurrency" yaml:"max_concurrency"`
	// MaxLimit is the upper bound on a query's result limit.
	MaxLimit int `mapstructure:"max_limit" yaml:"max_limit"`
	// DefaultLimit applies when a query carries no limit.
	DefaultLimit int `mapstructure:"default_limit" yaml:"default_limit"`
	// FacetFields are the envelope/payload fields facets are computed over.
	FacetFields []string `mapstructure:"facet_fields" yaml:"facet_fields"`
	// FacetTopN caps the value buckets returned per facet field.
	FacetTopN int `mapstructure:"facet_top_n" yaml:"facet_top_n"`
	// TenantLabel is the reserved label that carries tenant scoping in
	// backend queries. User filters on it are rejected.
	TenantLabel string            `mapstructure:"tenant_label" yaml:"tenant_label"`
	Breaker     BreakerConfig     `mapstructure:"breaker" yaml:"breaker"`
	ResultCache ResultCacheConfig `mapstructure:"result_cache" yaml:"result_cache"`
}

// BreakerConfig holds circuit breaker thresholds shared by all backends.
type BreakerConfig struct {
	// FailureThreshold trips the breaker after this many failures inside Window.
	FailureThreshold int `mapstructure:"failure_threshold" yaml:"failure_threshold"`
	// Window is the sliding failure-count window, in seconds.
	Window int `mapstructure:"window" yaml:"window"`
	// Cooldown is how long an open breaker rejects calls, in seconds.
	Cooldown int `mapstructure:"cooldown" yaml:"cooldown"`
}

// ResultCacheConfig controls Valkey-backed caching of search responses.
type ResultCacheConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	TTL     int  `mapstructure:"ttl" yaml:"ttl"` // seconds
}

// CacheConfig handles Valkey connection configuration.
type CacheConfig struct {
	Nodes    []string `mapstructure:"nodes" yaml:"nodes"`
	TTL      int      `mapstructure:"ttl" yaml:"ttl"` // seconds
	Password string   `mapstructure:"password" yaml:"password"`
	DB       int      `mapstructure:"db" yaml:"db"`
}

// CORSConfig handles Cross-Origin Resource Sharing for the dashboard UI.
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods" yaml:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers" yaml:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials" yaml:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age" yaml:"max_age"`
}

// RateLimitConfig bounds per-tenant request rates.
type RateLimitConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// PerMinute is the per-tenant request budget in a one-minute window.
	PerMinute int `mapstructure:"per_minute" yaml:"per_minute"`
}

// MonitoringConfig handles self-monitoring configuration.
type MonitoringConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
	MetricsPath string `mapstructure:"metrics_path" yaml:"metrics_path"`
}

// RequestDeadlineDuration returns the fan-out deadline as a Duration.
func (e EngineConfig) RequestDeadlineDuration() time.Duration {
	return time.Duration(e.RequestDeadline) * time.Millisecond
}

// CooldownDuration returns the breaker cool-down as a Duration.
func (b BreakerConfig) CooldownDuration() time.Duration {
	return time.Duration(b.Cooldown) * time.Second
}

// WindowDuration returns the breaker sliding window as a Duration.
func (b BreakerConfig) WindowDuration() time.Duration {
	return time.Duration(b.Window) * time.Second
}
