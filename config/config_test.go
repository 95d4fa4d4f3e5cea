package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scriptgen.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8000" {
		t.Errorf("Addr = %q, want :8000", cfg.Server.Addr)
	}
	if cfg.Chunking.Size != 6000 || cfg.Chunking.Overlap != 200 {
		t.Errorf("Chunking = %+v, want 6000/200", cfg.Chunking)
	}
	if cfg.Store.Driver != "memory" {
		t.Errorf("Store.Driver = %q, want memory", cfg.Store.Driver)
	}
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9999"
log_level: debug
task_timeout: 90s
quality:
  min_word_count: 120
generation:
  providers:
    - name: primary
      type: anthropic
      model: claude-sonnet-4-20250514
store:
  driver: sqlite
  sqlite_path: /tmp/x.db
retention:
  ttl: 1h
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9999" {
		t.Errorf("Addr = %q, want :9999", cfg.Server.Addr)
	}
	if cfg.TaskTimeout != 90*time.Second {
		t.Errorf("TaskTimeout = %v, want 90s", cfg.TaskTimeout)
	}
	if cfg.Quality.MinWordCount != 120 {
		t.Errorf("MinWordCount = %d, want 120", cfg.Quality.MinWordCount)
	}
	// Unset keys keep their defaults.
	if cfg.Quality.MinFleschScore != 60 {
		t.Errorf("MinFleschScore = %v, want 60", cfg.Quality.MinFleschScore)
	}
	if len(cfg.Generation.Providers) != 1 || cfg.Generation.Providers[0].Type != "anthropic" {
		t.Errorf("Providers = %+v, want single anthropic provider", cfg.Generation.Providers)
	}
	if cfg.Retention.TTL != time.Hour {
		t.Errorf("Retention.TTL = %v, want 1h", cfg.Retention.TTL)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Generation.Providers = append(cfg.Generation.Providers, ProviderConfig{Name: "claude", Type: "anthropic", APIKey: "explicit"})
	env := map[string]string{
		"SCRIPTGEN_ADDR":    ":7000",
		"SCRIPTGEN_STORE":   "redis",
		"OPENAI_API_KEY":    "sk-env",
		"ANTHROPIC_API_KEY": "ak-env",
	}
	cfg.ApplyEnv(func(k string) string { return env[k] })

	if cfg.Server.Addr != ":7000" {
		t.Errorf("Addr = %q, want :7000", cfg.Server.Addr)
	}
	if cfg.Store.Driver != "redis" {
		t.Errorf("Store.Driver = %q, want redis", cfg.Store.Driver)
	}
	if got := cfg.Generation.Providers[0].APIKey; got != "sk-env" {
		t.Errorf("openai APIKey = %q, want sk-env", got)
	}
	if got := cfg.Generation.Providers[2].APIKey; got != "explicit" {
		t.Errorf("explicit APIKey overwritten: got %q", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown store", func(c *Config) { c.Store.Driver = "mongo" }},
		{"no providers", func(c *Config) { c.Generation.Providers = nil }},
		{"provider without type", func(c *Config) { c.Generation.Providers[0].Type = "" }},
		{"zero chunk size", func(c *Config) { c.Chunking.Size = 0 }},
		{"overlap too large", func(c *Config) { c.Chunking.Overlap = c.Chunking.Size }},
		{"zero attempts", func(c *Config) { c.Generation.Retry.MaxAttempts = 0 }},
		{"negative timeout", func(c *Config) { c.TaskTimeout = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}
