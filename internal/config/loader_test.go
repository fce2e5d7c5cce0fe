package config

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	cwd, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	defer os.Chdir(cwd)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("default port = %d; want 8080", cfg.Port)
	}
	if cfg.Engine.MaxLimit != 1000 {
		t.Errorf("default max_limit = %d; want 1000", cfg.Engine.MaxLimit)
	}
	if cfg.Engine.Breaker.FailureThreshold != 5 {
		t.Errorf("default breaker threshold = %d; want 5", cfg.Engine.Breaker.FailureThreshold)
	}
	if got := cfg.Engine.TenantLabel; got != "tenant_id" {
		t.Errorf("default tenant label = %q; want tenant_id", got)
	}
	if len(cfg.Engine.FacetFields) != 2 {
		t.Errorf("default facet fields = %v", cfg.Engine.FacetFields)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	raw := []byte(`
port: 9191
engine:
  max_limit: 500
  default_limit: 50
  facet_fields: [service, level, status]
backends:
  loki:
    endpoints: ["http://loki:3100"]
`)
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), raw, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cwd, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	defer os.Chdir(cwd)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 9191 {
		t.Errorf("port = %d; want 9191", cfg.Port)
	}
	if cfg.Engine.MaxLimit != 500 {
		t.Errorf("max_limit = %d; want 500", cfg.Engine.MaxLimit)
	}
	if len(cfg.Engine.FacetFields) != 3 {
		t.Errorf("facet fields = %v; want 3 entries", cfg.Engine.FacetFields)
	}
	if got := cfg.Backends.Loki.Endpoints[0]; got != "http://loki:3100" {
		t.Errorf("loki endpoint = %q", got)
	}
	// Untouched sections keep their defaults
	if got := cfg.Backends.Tempo.Endpoints[0]; got != "http://localhost:3200" {
		t.Errorf("tempo endpoint = %q; want default", got)
	}
}

func TestValidateEndpoint(t *testing.T) {
	cases := []struct {
		endpoint string
		wantErr  bool
	}{
		{"http://localhost:3100", false},
		{"https://loki.internal:443", false},
		{"", true},
		{"localhost:3100", true},
		{"ftp://loki:21", true},
	}
	for _, tc := range cases {
		err := ValidateEndpoint(tc.endpoint)
		if (err != nil) != tc.wantErr {
			t.Errorf("ValidateEndpoint(%q) err=%v; wantErr=%v", tc.endpoint, err, tc.wantErr)
		}
	}
}

func TestValidateConfig_RejectsBadLimits(t *testing.T) {
	cfg := &Config{
		Port: 8080,
		Backends: BackendsConfig{
			Loki:       BackendConfig{Endpoints: []string{"http://l:1"}, Timeout: 1000},
			Prometheus: BackendConfig{Endpoints: []string{"http://p:1"}, Timeout: 1000},
			Tempo:      BackendConfig{Endpoints: []string{"http://t:1"}, Timeout: 1000},
		},
		Engine: EngineConfig{
			MaxLimit:       100,
			DefaultLimit:   500, // exceeds max
			MaxConcurrency: 3,
			TenantLabel:    "tenant_id",
			Breaker:        BreakerConfig{FailureThreshold: 5, Window: 60, Cooldown: 30},
		},
	}
	if err := validateConfig(cfg); err == nil {
		t.Fatal("expected validation error for default_limit > max_limit")
	}
}

func TestLoad_ReadsYAMLMarshaledConfig(t *testing.T) {
	dir := t.TempDir()
	override := Config{
		Port:     9090,
		LogLevel: "debug",
		Backends: BackendsConfig{
			Loki:       BackendConfig{Endpoints: []string{"http://loki:3100"}, Timeout: 4000},
			Prometheus: BackendConfig{Endpoints: []string{"http://prom:9090"}, Timeout: 4000},
			Tempo:      BackendConfig{Endpoints: []string{"http://tempo:3200"}, Timeout: 4000},
		},
		Engine: EngineConfig{
			RequestDeadline: 8000,
			MaxConcurrency:  2,
			MaxLimit:        200,
			DefaultLimit:    20,
			TenantLabel:     "org_id",
			Breaker:         BreakerConfig{FailureThreshold: 3, Window: 30, Cooldown: 15},
		},
	}
	raw, err := yaml.Marshal(override)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), raw, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cwd, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	defer os.Chdir(cwd)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Engine.TenantLabel != "org_id" {
		t.Errorf("tenant label = %q; want org_id", cfg.Engine.TenantLabel)
	}
	if cfg.Engine.Breaker.Cooldown != 15 {
		t.Errorf("breaker cooldown = %d; want 15", cfg.Engine.Breaker.Cooldown)
	}
	if got := FileUsed(); filepath.Dir(got) != dir {
		t.Errorf("FileUsed = %q; want file in %q", got, dir)
	}
}
