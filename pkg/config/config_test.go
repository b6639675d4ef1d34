package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestDefaultConfig verifies default configuration values.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}
	if cfg.Redis.Addr != DefaultRedisAddr {
		t.Errorf("Redis.Addr = %v, want %v", cfg.Redis.Addr, DefaultRedisAddr)
	}
	if cfg.Postgres.IsConfigured() {
		t.Error("Postgres should not be configured by default")
	}
	if cfg.Queues.Transcribe.MaxDepth != DefaultStageMaxDepth {
		t.Errorf("Queues.Transcribe.MaxDepth = %v, want %v", cfg.Queues.Transcribe.MaxDepth, DefaultStageMaxDepth)
	}
	if cfg.Deadlines.Transcribe != 30*time.Minute {
		t.Errorf("Deadlines.Transcribe = %v, want 30m", cfg.Deadlines.Transcribe)
	}
	if cfg.LLM.Model != DefaultLLMModel {
		t.Errorf("LLM.Model = %v, want %v", cfg.LLM.Model, DefaultLLMModel)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config does not validate: %v", err)
	}
}

// TestLoadConfigFromFile verifies YAML loading with string durations.
func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
redis:
  addr: redis.internal:6380
postgres:
  host: db.internal
  database: meetbrief
  user: pipeline
queues:
  transcribe:
    max_depth: 25
    visibility_timeout: 45m
deadlines:
  transcribe: 20m
  analyze: 5m
llm:
  model: deepseek-reasoner
  temperature: 0.1
workers:
  transcribe: 1
  diarize: 1
  analyze: 2
log_level: debug
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Redis.Addr != "redis.internal:6380" {
		t.Errorf("Redis.Addr = %v", cfg.Redis.Addr)
	}
	if !cfg.Postgres.IsConfigured() {
		t.Error("Postgres should be configured")
	}
	if cfg.Queues.Transcribe.MaxDepth != 25 {
		t.Errorf("Queues.Transcribe.MaxDepth = %v, want 25", cfg.Queues.Transcribe.MaxDepth)
	}
	if cfg.Queues.Transcribe.VisibilityTimeout != 45*time.Minute {
		t.Errorf("Queues.Transcribe.VisibilityTimeout = %v, want 45m", cfg.Queues.Transcribe.VisibilityTimeout)
	}
	// Unspecified sections keep their defaults.
	if cfg.Queues.Diarize.MaxDepth != DefaultStageMaxDepth {
		t.Errorf("Queues.Diarize.MaxDepth = %v, want default", cfg.Queues.Diarize.MaxDepth)
	}
	if cfg.Deadlines.Transcribe != 20*time.Minute {
		t.Errorf("Deadlines.Transcribe = %v, want 20m", cfg.Deadlines.Transcribe)
	}
	if cfg.Deadlines.Diarize != 30*time.Minute {
		t.Errorf("Deadlines.Diarize = %v, want default 30m", cfg.Deadlines.Diarize)
	}
	if cfg.LLM.Model != "deepseek-reasoner" {
		t.Errorf("LLM.Model = %v", cfg.LLM.Model)
	}
	if cfg.LLM.Temperature != 0.1 {
		t.Errorf("LLM.Temperature = %v, want 0.1", cfg.LLM.Temperature)
	}
	if cfg.Workers.Analyze != 2 {
		t.Errorf("Workers.Analyze = %v, want 2", cfg.Workers.Analyze)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %v, want debug", cfg.LogLevel)
	}
}

// TestLoadConfigEnvOverride verifies environment variables win over file
// values.
func TestLoadConfigEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("redis:\n  addr: from-file:6379\n"), 0600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	t.Setenv("MEETBRIEF_REDIS_ADDR", "from-env:6379")
	t.Setenv("MEETBRIEF_LLM_MODEL", "env-model")
	t.Setenv("MEETBRIEF_POSTGRES_HOST", "env-db")
	t.Setenv("MEETBRIEF_POSTGRES_DATABASE", "meetbrief")
	t.Setenv("MEETBRIEF_POSTGRES_USER", "pipeline")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Redis.Addr != "from-env:6379" {
		t.Errorf("Redis.Addr = %v, want from-env:6379", cfg.Redis.Addr)
	}
	if cfg.LLM.Model != "env-model" {
		t.Errorf("LLM.Model = %v, want env-model", cfg.LLM.Model)
	}
	if !cfg.Postgres.IsConfigured() {
		t.Error("Postgres should be configured from env")
	}
	if cfg.Postgres.Host != "env-db" {
		t.Errorf("Postgres.Host = %v, want env-db", cfg.Postgres.Host)
	}
}

// TestLoadConfigMissingFile verifies a missing file falls back to defaults.
func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Redis.Addr != DefaultRedisAddr {
		t.Errorf("Redis.Addr = %v, want default", cfg.Redis.Addr)
	}
}

// TestValidateRejectsBadValues verifies validation failures.
func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty redis addr", func(c *Config) { c.Redis.Addr = "" }},
		{"zero queue depth", func(c *Config) { c.Queues.Analyze.MaxDepth = 0 }},
		{"negative retries", func(c *Config) { c.Queues.Transcribe.MaxRetries = -1 }},
		{"zero deadline", func(c *Config) { c.Deadlines.Diarize = 0 }},
		{"no llm model", func(c *Config) { c.LLM.Model = "" }},
		{"zero workers", func(c *Config) { c.Workers.Analyze = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

// TestPostgresConnectionString verifies DSN construction.
func TestPostgresConnectionString(t *testing.T) {
	pg := &PostgresConfig{Host: "db", Database: "meetbrief", User: "pipeline", Password: "s3cret"}
	got := pg.ConnectionString()
	want := "host=db port=5432 dbname=meetbrief user=pipeline sslmode=require password=s3cret"
	if got != want {
		t.Errorf("ConnectionString() = %q, want %q", got, want)
	}

	var unset *PostgresConfig
	if unset.ConnectionString() != "" {
		t.Error("nil config should produce empty connection string")
	}
}
