// Package generation drafts and revises narration scripts through a chain of
// language-model providers, retrying transient failures and falling back to
// the next provider when one is exhausted.
package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/K-Arthur/script-generator/provider"
	"github.com/K-Arthur/script-generator/templates"
	"github.com/K-Arthur/script-generator/validation"
)

const (
	defaultSystemPrompt = "You are an expert scriptwriter for narrated explainer videos."
	defaultMinWordCount = 1500
)

// Call outcomes reported to a CallObserver.
const (
	OutcomeSuccess = "success"
	OutcomeRetry   = "retry"
	OutcomeFailure = "failure"
)

// Request is a script generation request. Content is required; the other
// fields are optional.
type Request struct {
	Content       string
	TemplateName  string
	Concept       string
	PreviousTopic string
}

// CallObserver is notified of every provider attempt.
type CallObserver interface {
	ObserveCall(op, provider, outcome string)
}

// Client is the generation client. It is safe for concurrent use.
type Client struct {
	providers    []provider.Provider
	templates    *templates.Registry
	retry        RetryConfig
	systemPrompt string
	minWords     int
	observer     CallObserver
	logger       *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRetryConfig sets the per-provider retry configuration.
func WithRetryConfig(cfg RetryConfig) Option {
	return func(c *Client) {
		c.retry = cfg
	}
}

// WithTemplates sets the registry used to expand template names in prompts.
func WithTemplates(r *templates.Registry) Option {
	return func(c *Client) {
		c.templates = r
	}
}

// WithSystemPrompt overrides the system prompt.
func WithSystemPrompt(prompt string) Option {
	return func(c *Client) {
		if prompt != "" {
			c.systemPrompt = prompt
		}
	}
}

// WithMinWordCount sets the target length requested from the backend.
func WithMinWordCount(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.minWords = n
		}
	}
}

// WithObserver sets the observer notified of provider attempts.
func WithObserver(o CallObserver) Option {
	return func(c *Client) {
		c.observer = o
	}
}

// NewClient creates a client over providers, tried in order.
func NewClient(providers []provider.Provider, opts ...Option) (*Client, error) {
	if len(providers) == 0 {
		return nil, errors.New("generation: at least one provider is required")
	}
	c := &Client{
		providers:    providers,
		retry:        DefaultRetryConfig(),
		systemPrompt: defaultSystemPrompt,
		minWords:     defaultMinWordCount,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retry.MaxAttempts < 1 {
		c.retry.MaxAttempts = 1
	}
	return c, nil
}

// Generate drafts a script from req.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.Content) == "" {
		return "", &Error{Op: OpGenerate, Err: errors.New("content is empty")}
	}

	var tmpl *templates.Template
	if req.TemplateName != "" && c.templates != nil {
		if t, ok := c.templates.Get(req.TemplateName); ok {
			tmpl = &t
		}
	}
	return c.complete(ctx, OpGenerate, generatePrompt(req, tmpl, c.minWords))
}

// Improve asks for a revision of script addressing every failure in report.
func (c *Client) Improve(ctx context.Context, script string, report *validation.Report) (string, error) {
	if report == nil {
		return "", &Error{Op: OpImprove, Err: errors.New("validation report is required")}
	}
	return c.complete(ctx, OpImprove, improvePrompt(script, report))
}

// complete walks the provider chain. A fatal error ends the current
// provider's retries but still falls through to the next provider; a
// context error stops immediately.
func (c *Client) complete(ctx context.Context, op, prompt string) (string, error) {
	messages := []provider.Message{
		{Role: provider.RoleSystem, Content: c.systemPrompt},
		{Role: provider.RoleUser, Content: prompt},
	}

	var lastErr error
	var lastProvider string
	for i, p := range c.providers {
		content, err := c.tryProvider(ctx, op, p, messages)
		if err == nil {
			if i > 0 {
				c.logger.Info("fallback provider succeeded",
					slog.String("op", op),
					slog.String("provider", p.Name()))
			}
			return content, nil
		}
		lastErr, lastProvider = err, p.Name()
		if isContextErr(err) {
			break
		}
		c.logger.Warn("provider failed, trying fallback",
			slog.String("op", op),
			slog.String("provider", p.Name()),
			slog.Any("err", err))
	}
	return "", &Error{Op: op, Provider: lastProvider, Err: lastErr}
}

func (c *Client) tryProvider(ctx context.Context, op string, p provider.Provider, messages []provider.Message) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		resp, err := p.Chat(ctx, messages)
		if err == nil && strings.TrimSpace(resp.Content) == "" {
			err = &FatalError{err: fmt.Errorf("%s: empty response", p.Name())}
		}
		if err == nil {
			c.observe(op, p.Name(), OutcomeSuccess)
			return resp.Content, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			c.observe(op, p.Name(), OutcomeFailure)
			return "", ctxErr
		}

		if !IsFatal(err) && !IsTransient(err) {
			err = classify(err)
		}
		lastErr = err
		if IsFatal(err) || attempt == c.retry.MaxAttempts {
			c.observe(op, p.Name(), OutcomeFailure)
			return "", err
		}

		c.observe(op, p.Name(), OutcomeRetry)
		backoff := c.retry.backoff(attempt)
		c.logger.Debug("request failed, retrying",
			slog.String("op", op),
			slog.String("provider", p.Name()),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", backoff),
			slog.Any("err", err))

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
	}
	return "", lastErr
}

func (c *Client) observe(op, name, outcome string) {
	if c.observer != nil {
		c.observer.ObserveCall(op, name, outcome)
	}
}
