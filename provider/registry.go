package provider

import (
	"fmt"
	"sort"
	"sync"
)

// Config describes one backend independently of its type.
type Config struct {
	Name        string
	Type        string
	Model       string
	APIKey      string
	BaseURL     string
	MaxTokens   int
	Temperature float64
	TopP        float64
}

// Factory builds a provider from its config.
type Factory func(cfg Config) (Provider, error)

// Registry maps provider types to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates a registry preloaded with the openai and anthropic factories.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	_ = r.Register("openai", func(cfg Config) (Provider, error) {
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("provider %q: openai requires an API key", cfg.Name)
		}
		return NewOpenAIProvider(OpenAIConfig{
			Name:        cfg.Name,
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			BaseURL:     cfg.BaseURL,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			TopP:        cfg.TopP,
		}), nil
	})
	_ = r.Register("anthropic", func(cfg Config) (Provider, error) {
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("provider %q: anthropic requires an API key", cfg.Name)
		}
		return NewAnthropicProvider(AnthropicConfig{
			Name:        cfg.Name,
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			BaseURL:     cfg.BaseURL,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			TopP:        cfg.TopP,
		}), nil
	})
	return r
}

// Register adds a factory for a provider type.
// Returns an error if the type is already registered.
func (r *Registry) Register(typ string, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[typ]; exists {
		return fmt.Errorf("provider type %q already registered", typ)
	}
	r.factories[typ] = f
	return nil
}

// New builds a provider for cfg using the factory registered for cfg.Type.
func (r *Registry) New(cfg Config) (Provider, error) {
	r.mu.RLock()
	f, ok := r.factories[cfg.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("provider %q: unknown type %q", cfg.Name, cfg.Type)
	}
	return f(cfg)
}

// Types returns the registered provider types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]string, 0, len(r.factories))
	for typ := range r.factories {
		result = append(result, typ)
	}
	sort.Strings(result)
	return result
}
