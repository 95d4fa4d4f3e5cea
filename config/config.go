// Package config defines the script generator configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level service configuration.
type Config struct {
	Server        ServerConfig     `json:"server" yaml:"server"`
	LogLevel      string           `json:"log_level" yaml:"log_level"`
	LogFormat     string           `json:"log_format" yaml:"log_format"` // "text" or "json"
	TemplatesPath string           `json:"templates_path,omitempty" yaml:"templates_path"`
	Chunking      ChunkingConfig   `json:"chunking" yaml:"chunking"`
	Quality       QualityConfig    `json:"quality" yaml:"quality"`
	Generation    GenerationConfig `json:"generation" yaml:"generation"`
	Store         StoreConfig      `json:"store" yaml:"store"`
	Retention     RetentionConfig  `json:"retention" yaml:"retention"`
	Events        EventsConfig     `json:"events" yaml:"events"`

	// TaskTimeout bounds one task's backend calls. Zero disables the deadline.
	TaskTimeout time.Duration `json:"task_timeout" yaml:"task_timeout"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Addr       string `json:"addr" yaml:"addr"` // listen address, e.g., ":8000"
	CORSOrigin string `json:"cors_origin" yaml:"cors_origin"`
	Gzip       bool   `json:"gzip" yaml:"gzip"`
}

// ChunkingConfig sizes the pre-processing chunker, in characters.
type ChunkingConfig struct {
	Size    int `json:"size" yaml:"size"`
	Overlap int `json:"overlap" yaml:"overlap"`
}

// QualityConfig holds the validation thresholds.
type QualityConfig struct {
	MinFleschScore     float64 `json:"min_flesch_score" yaml:"min_flesch_score"`
	MaxSentenceLength  float64 `json:"max_sentence_length" yaml:"max_sentence_length"`
	MaxGradeLevel      float64 `json:"max_grade_level" yaml:"max_grade_level"`
	MinWordCount       int     `json:"min_word_count" yaml:"min_word_count"`
	MinParagraphCount  int     `json:"min_paragraph_count" yaml:"min_paragraph_count"`
	MinQuestionCount   int     `json:"min_question_count" yaml:"min_question_count"`
	MinTransitionWords int     `json:"min_transition_words" yaml:"min_transition_words"`
}

// ProviderConfig defines one backend in the generation fallback chain.
type ProviderConfig struct {
	Name      string `json:"name" yaml:"name"`
	Type      string `json:"type" yaml:"type"` // "openai", "anthropic", "mock"
	Model     string `json:"model,omitempty" yaml:"model"`
	APIKey    string `json:"-" yaml:"api_key"`
	BaseURL   string `json:"base_url,omitempty" yaml:"base_url"`
	MaxTokens int    `json:"max_tokens,omitempty" yaml:"max_tokens"`
}

// RetryConfig controls per-provider retries of transient failures.
type RetryConfig struct {
	MaxAttempts       int           `json:"max_attempts" yaml:"max_attempts"`
	BackoffBase       time.Duration `json:"backoff_base" yaml:"backoff_base"`
	BackoffMultiplier float64       `json:"backoff_multiplier" yaml:"backoff_multiplier"`
	MaxBackoff        time.Duration `json:"max_backoff" yaml:"max_backoff"`
}

// GenerationConfig controls prompting and the provider chain.
type GenerationConfig struct {
	Providers    []ProviderConfig `json:"providers" yaml:"providers"`
	SystemPrompt string           `json:"system_prompt" yaml:"system_prompt"`
	MinWordCount int              `json:"min_word_count" yaml:"min_word_count"`
	Temperature  float64          `json:"temperature" yaml:"temperature"`
	TopP         float64          `json:"top_p" yaml:"top_p"`
	Retry        RetryConfig      `json:"retry" yaml:"retry"`
}

// StoreConfig selects the task table backend.
type StoreConfig struct {
	Driver      string        `json:"driver" yaml:"driver"` // "memory", "sqlite", "redis"
	SQLitePath  string        `json:"sqlite_path,omitempty" yaml:"sqlite_path"`
	RedisAddr   string        `json:"redis_addr,omitempty" yaml:"redis_addr"`
	RedisPrefix string        `json:"redis_prefix,omitempty" yaml:"redis_prefix"`
	RedisTTL    time.Duration `json:"redis_ttl,omitempty" yaml:"redis_ttl"`
}

// RetentionConfig controls pruning of finished tasks.
type RetentionConfig struct {
	TTL      time.Duration `json:"ttl" yaml:"ttl"`
	Schedule string        `json:"schedule" yaml:"schedule"` // cron spec, e.g. "@every 10m"
}

// EventsConfig controls optional forwarding of task lifecycle events.
type EventsConfig struct {
	NATSURL       string `json:"nats_url,omitempty" yaml:"nats_url"`
	SubjectPrefix string `json:"subject_prefix" yaml:"subject_prefix"`
}

const defaultSystemPrompt = "You are an expert scriptwriter for narrated explainer videos. " +
	"You write clear, conversational narration that a voice actor can read aloud, " +
	"with vivid analogies and smooth transitions between ideas."

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:       ":8000",
			CORSOrigin: "*",
			Gzip:       true,
		},
		LogLevel:  "info",
		LogFormat: "text",
		Chunking: ChunkingConfig{
			Size:    6000,
			Overlap: 200,
		},
		Quality: QualityConfig{
			MinFleschScore:     60,
			MaxSentenceLength:  20,
			MaxGradeLevel:      12,
			MinWordCount:       300,
			MinParagraphCount:  3,
			MinQuestionCount:   1,
			MinTransitionWords: 2,
		},
		Generation: GenerationConfig{
			Providers: []ProviderConfig{
				{Name: "default", Type: "openai", Model: "gpt-4o"},
				{Name: "fallback", Type: "openai", Model: "gpt-4o-mini"},
			},
			SystemPrompt: defaultSystemPrompt,
			MinWordCount: 1500,
			Temperature:  0.7,
			TopP:         1.0,
			Retry: RetryConfig{
				MaxAttempts:       3,
				BackoffBase:       2 * time.Second,
				BackoffMultiplier: 2.0,
				MaxBackoff:        30 * time.Second,
			},
		},
		Store: StoreConfig{
			Driver:      "memory",
			SQLitePath:  "./data/tasks.db",
			RedisAddr:   "localhost:6379",
			RedisPrefix: "scriptgen:task:",
		},
		Retention: RetentionConfig{
			TTL:      24 * time.Hour,
			Schedule: "@every 10m",
		},
		Events: EventsConfig{
			SubjectPrefix: "scriptgen.tasks",
		},
	}
}

// Load reads a YAML config file and returns the parsed configuration with
// environment overrides applied. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	// A missing .env file is normal outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg.ApplyEnv(os.Getenv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides config values from environment variables. getenv is
// injected so tests don't depend on the process environment.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("SCRIPTGEN_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := getenv("SCRIPTGEN_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := getenv("SCRIPTGEN_STORE"); v != "" {
		c.Store.Driver = v
	}
	if v := getenv("SCRIPTGEN_REDIS_ADDR"); v != "" {
		c.Store.RedisAddr = v
	}
	if v := getenv("SCRIPTGEN_NATS_URL"); v != "" {
		c.Events.NATSURL = v
	}

	keys := map[string]string{
		"openai":    getenv("OPENAI_API_KEY"),
		"anthropic": getenv("ANTHROPIC_API_KEY"),
	}
	for i := range c.Generation.Providers {
		p := &c.Generation.Providers[i]
		if p.APIKey == "" {
			p.APIKey = keys[p.Type]
		}
	}
}

// Validate checks that the configuration can be used to build the service.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "memory", "sqlite", "redis":
	default:
		return fmt.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if len(c.Generation.Providers) == 0 {
		return errors.New("config: generation.providers must not be empty")
	}
	for i, p := range c.Generation.Providers {
		if p.Type == "" {
			return fmt.Errorf("config: generation.providers[%d] has no type", i)
		}
	}
	if c.Chunking.Size <= 0 {
		return fmt.Errorf("config: chunking.size must be positive, got %d", c.Chunking.Size)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("config: chunking.overlap must be in [0, %d), got %d", c.Chunking.Size, c.Chunking.Overlap)
	}
	if c.Generation.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("config: generation.retry.max_attempts must be positive, got %d", c.Generation.Retry.MaxAttempts)
	}
	if c.TaskTimeout < 0 {
		return errors.New("config: task_timeout must not be negative")
	}
	return nil
}
