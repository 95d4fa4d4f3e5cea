package main

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/K-Arthur/script-generator/config"
	"github.com/K-Arthur/script-generator/task"
)

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	s, err := openStore(ctx, config.StoreConfig{Driver: "memory"})
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	if _, ok := s.(*task.MemoryStore); !ok {
		t.Errorf("memory driver returned %T", s)
	}

	path := filepath.Join(t.TempDir(), "nested", "tasks.db")
	s, err = openStore(ctx, config.StoreConfig{Driver: "sqlite", SQLitePath: path})
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	defer s.Close() //nolint:errcheck
	if _, ok := s.(*task.SQLiteStore); !ok {
		t.Errorf("sqlite driver returned %T", s)
	}

	if _, err := openStore(ctx, config.StoreConfig{Driver: "etcd"}); err == nil {
		t.Error("expected error for unknown driver")
	}
}

func TestBuildProviders(t *testing.T) {
	chain, err := buildProviders(config.GenerationConfig{
		Providers: []config.ProviderConfig{
			{Name: "primary", Type: "mock"},
			{Name: "backup", Type: "openai", APIKey: "k", Model: "gpt-4o-mini"},
		},
		Temperature: 0.7,
	})
	if err != nil {
		t.Fatalf("buildProviders: %v", err)
	}
	if len(chain) != 2 || chain[0].Name() != "primary" || chain[1].Name() != "backup" {
		t.Fatalf("chain = %v", chain)
	}

	_, err = buildProviders(config.GenerationConfig{
		Providers: []config.ProviderConfig{{Name: "p", Type: "openai"}},
	})
	if err == nil {
		t.Error("expected error for openai provider without API key")
	}
}

func TestThresholds(t *testing.T) {
	th := thresholds(config.DefaultConfig().Quality)
	if th.MinFleschScore != 60 || th.MaxSentenceLength != 20 || th.MinWordCount != 300 || th.MinTransitionWords != 2 {
		t.Errorf("thresholds = %+v", th)
	}
}

func TestNewLogger(t *testing.T) {
	ctx := context.Background()
	if !newLogger("debug", "json").Enabled(ctx, slog.LevelDebug) {
		t.Error("debug level not enabled")
	}
	if newLogger("bogus", "text").Enabled(ctx, slog.LevelDebug) {
		t.Error("invalid level should fall back to info")
	}
}
