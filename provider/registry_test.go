package provider

import (
	"context"
	"testing"
)

type stubProvider struct{ name string }

func (s stubProvider) Name() string { return s.name }

func (s stubProvider) Chat(context.Context, []Message) (*Response, error) {
	return &Response{Content: s.name}, nil
}

func TestRegistry_Builtins(t *testing.T) {
	r := NewRegistry()

	types := r.Types()
	if len(types) != 2 || types[0] != "anthropic" || types[1] != "openai" {
		t.Fatalf("Types() = %v, want [anthropic openai]", types)
	}

	p, err := r.New(Config{Name: "default", Type: "openai", APIKey: "k"})
	if err != nil {
		t.Fatalf("New(openai): %v", err)
	}
	if p.Name() != "default" {
		t.Errorf("Name() = %q, want default", p.Name())
	}

	p, err = r.New(Config{Name: "claude", Type: "anthropic", APIKey: "k"})
	if err != nil {
		t.Fatalf("New(anthropic): %v", err)
	}
	if _, ok := p.(*AnthropicProvider); !ok {
		t.Errorf("expected *AnthropicProvider, got %T", p)
	}
}

func TestRegistry_MissingKey(t *testing.T) {
	r := NewRegistry()
	for _, typ := range []string{"openai", "anthropic"} {
		if _, err := r.New(Config{Name: "x", Type: typ}); err == nil {
			t.Errorf("New(%s) without key: expected error", typ)
		}
	}
}

func TestRegistry_UnknownType(t *testing.T) {
	if _, err := NewRegistry().New(Config{Name: "x", Type: "bogus"}); err == nil {
		t.Fatal("expected error for unknown type")
	}
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	factory := func(cfg Config) (Provider, error) { return stubProvider{name: cfg.Name}, nil }

	if err := r.Register("stub", factory); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register("stub", factory); err == nil {
		t.Error("expected duplicate registration error")
	}

	p, err := r.New(Config{Name: "s1", Type: "stub"})
	if err != nil {
		t.Fatalf("New(stub): %v", err)
	}
	resp, _ := p.Chat(context.Background(), nil)
	if resp.Content != "s1" {
		t.Errorf("Chat() = %q, want s1", resp.Content)
	}
}
