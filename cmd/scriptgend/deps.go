package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-redis/redis/v8"

	"github.com/K-Arthur/script-generator/config"
	"github.com/K-Arthur/script-generator/provider"
	"github.com/K-Arthur/script-generator/provider/mock"
	"github.com/K-Arthur/script-generator/task"
)

// openStore builds the task table selected by cfg.Driver.
func openStore(ctx context.Context, cfg config.StoreConfig) (task.Store, error) {
	switch cfg.Driver {
	case "memory":
		return task.NewMemoryStore(), nil
	case "sqlite":
		if dir := filepath.Dir(cfg.SQLitePath); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
		return task.NewSQLiteStore(cfg.SQLitePath)
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
		}
		return task.NewRedisStore(rdb, cfg.RedisPrefix, cfg.RedisTTL), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// buildProviders creates the generation fallback chain in config order.
func buildProviders(cfg config.GenerationConfig) ([]provider.Provider, error) {
	reg := provider.NewRegistry()
	if err := reg.Register("mock", func(c provider.Config) (provider.Provider, error) {
		return mock.New().WithName(c.Name), nil
	}); err != nil {
		return nil, err
	}

	chain := make([]provider.Provider, 0, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		p, err := reg.New(provider.Config{
			Name:        pc.Name,
			Type:        pc.Type,
			Model:       pc.Model,
			APIKey:      pc.APIKey,
			BaseURL:     pc.BaseURL,
			MaxTokens:   pc.MaxTokens,
			Temperature: cfg.Temperature,
			TopP:        cfg.TopP,
		})
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", pc.Name, err)
		}
		chain = append(chain, p)
	}
	return chain, nil
}
